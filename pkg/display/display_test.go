package display

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/0xmhha/runmirror/pkg/coord"
	"github.com/0xmhha/runmirror/pkg/store"
)

// testSnapshot builds:
//
//	exp1: command, scalars loss (global, steps 1 and 2), images pred (step 2)
//	exp2: empty
func testSnapshot(t *testing.T) store.Snapshot {
	t.Helper()

	st := store.New(store.Config{})
	err := st.Update(func(tx *store.Tx) error {
		tx.AddExperiment("exp2")
		tx.SetRunMetadata("exp1", map[string]any{"bin": "train.py"})
		for _, step := range []coord.Step{coord.Global, coord.StepAt(1), coord.StepAt(2)} {
			if err := tx.SetLeaf(coord.KindScalars, "exp1", step, "loss", 0.5, false); err != nil {
				return err
			}
		}
		return tx.SetLeaf(coord.KindImages, "exp1", coord.StepAt(2), "pred", map[string]any{"source": "/data/p.png"}, false)
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	return st.Snapshot()
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		config Config
		want   string // Type name
	}{
		{
			name:   "default format (table)",
			config: Config{},
			want:   "*display.tableFormatter",
		},
		{
			name:   "table format",
			config: Config{Format: FormatTable},
			want:   "*display.tableFormatter",
		},
		{
			name:   "json format",
			config: Config{Format: FormatJSON},
			want:   "*display.jsonFormatter",
		},
		{
			name:   "simple format",
			config: Config{Format: FormatSimple},
			want:   "*display.simpleFormatter",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			formatter := New(tt.config)
			if formatter == nil {
				t.Fatal("New() returned nil")
			}

			got := fmt.Sprintf("%T", formatter)
			if got != tt.want {
				t.Errorf("New() type = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"table", FormatTable, false},
		{"JSON", FormatJSON, false},
		{"simple", FormatSimple, false},
		{"", FormatTable, false},
		{"yaml", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	summaries := Summarize(testSnapshot(t))
	if len(summaries) != 2 {
		t.Fatalf("Summarize() returned %d summaries, want 2", len(summaries))
	}

	exp1 := summaries[0]
	if exp1.Name != "exp1" {
		t.Errorf("first summary = %s, want exp1", exp1.Name)
	}
	if !exp1.HasCommand {
		t.Error("exp1 HasCommand = false")
	}
	if exp1.Categories[coord.KindScalars] != 1 || exp1.Categories[coord.KindImages] != 1 {
		t.Errorf("exp1 categories = %v", exp1.Categories)
	}
	if exp1.Steps != 2 {
		t.Errorf("exp1 steps = %d, want 2", exp1.Steps)
	}
	if exp1.Values != 4 {
		t.Errorf("exp1 values = %d, want 4", exp1.Values)
	}

	exp2 := summaries[1]
	if exp2.HasCommand || exp2.Values != 0 || exp2.Steps != 0 {
		t.Errorf("exp2 summary = %+v, want empty", exp2)
	}
}

func TestTableFormatter_FormatSnapshot(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := New(Config{Format: FormatTable}).FormatSnapshot(&buf, testSnapshot(t)); err != nil {
		t.Fatalf("FormatSnapshot() error = %v", err)
	}

	output := buf.String()
	for _, want := range []string{"Experiments", "Experiment", "Scalars", "Markdown", "exp1", "exp2", "yes"} {
		if !strings.Contains(output, want) {
			t.Errorf("table output missing %q:\n%s", want, output)
		}
	}

	// exp1 precedes exp2.
	if strings.Index(output, "exp1") > strings.Index(output, "exp2") {
		t.Error("experiments are not sorted")
	}
}

func TestTableFormatter_FormatUpdate(t *testing.T) {
	t.Parallel()

	n := store.Notification{Seq: 7, At: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}

	var buf bytes.Buffer
	if err := New(Config{Format: FormatTable, ShowTimestamps: true}).FormatUpdate(&buf, n, testSnapshot(t)); err != nil {
		t.Fatalf("FormatUpdate() error = %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "Update #7 at 2024-01-01 12:00:00") {
		t.Errorf("update header missing:\n%s", output)
	}
}

func TestJSONFormatter_FormatSnapshot(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := New(Config{Format: FormatJSON}).FormatSnapshot(&buf, testSnapshot(t)); err != nil {
		t.Fatalf("FormatSnapshot() error = %v", err)
	}

	var decoded map[string]map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if _, ok := decoded["exp1"]["scalars"]; !ok {
		t.Errorf("exp1 has no scalars: %v", decoded["exp1"])
	}
	if _, ok := decoded["exp1"]["command"]; !ok {
		t.Errorf("exp1 has no command: %v", decoded["exp1"])
	}
	if len(decoded["exp2"]) != 0 {
		t.Errorf("exp2 = %v, want empty object", decoded["exp2"])
	}
}

func TestJSONFormatter_FormatUpdate(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	n := store.Notification{Seq: 3, At: time.Now()}
	if err := New(Config{Format: FormatJSON, Compact: true}).FormatUpdate(&buf, n, testSnapshot(t)); err != nil {
		t.Fatalf("FormatUpdate() error = %v", err)
	}

	var decoded struct {
		Seq         uint64                    `json:"seq"`
		At          *time.Time                `json:"at"`
		Experiments map[string]map[string]any `json:"experiments"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if decoded.Seq != 3 {
		t.Errorf("seq = %d, want 3", decoded.Seq)
	}
	if decoded.At != nil {
		t.Error("timestamp written without ShowTimestamps")
	}
	if len(decoded.Experiments) != 2 {
		t.Errorf("got %d experiments, want 2", len(decoded.Experiments))
	}
	if strings.Count(buf.String(), "\n") != 1 {
		t.Error("compact output spans multiple lines")
	}
}

func TestSimpleFormatter(t *testing.T) {
	t.Parallel()

	formatter := New(Config{Format: FormatSimple})

	var buf bytes.Buffer
	if err := formatter.FormatSnapshot(&buf, testSnapshot(t)); err != nil {
		t.Fatalf("FormatSnapshot() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), buf.String())
	}
	if want := "exp1: scalars=1 images=1 | 2 steps | 4 values | command"; lines[0] != want {
		t.Errorf("line 0 = %q, want %q", lines[0], want)
	}
	if want := "exp2: empty | 0 steps | 0 values"; lines[1] != want {
		t.Errorf("line 1 = %q, want %q", lines[1], want)
	}

	buf.Reset()
	if err := formatter.FormatUpdate(&buf, store.Notification{Seq: 2}, testSnapshot(t)); err != nil {
		t.Fatalf("FormatUpdate() error = %v", err)
	}
	if !strings.HasPrefix(buf.String(), "Update #2: 2 experiments, 4 values\n") {
		t.Errorf("update output = %q", buf.String())
	}
}

func TestFormatNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		n    int
		want string
	}{
		{"zero", 0, "0"},
		{"small", 123, "123"},
		{"thousand", 1000, "1,000"},
		{"ten thousand", 12345, "12,345"},
		{"million", 1234567, "1,234,567"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := formatNumber(tt.n)
			if got != tt.want {
				t.Errorf("formatNumber(%d) = %v, want %v", tt.n, got, tt.want)
			}
		})
	}
}

func TestCompactMode(t *testing.T) {
	t.Parallel()

	snap := testSnapshot(t)

	// Non-compact.
	var buf1 bytes.Buffer
	if err := New(Config{Format: FormatTable, Compact: false}).FormatSnapshot(&buf1, snap); err != nil {
		t.Fatalf("FormatSnapshot() error = %v", err)
	}

	// Compact.
	var buf2 bytes.Buffer
	if err := New(Config{Format: FormatTable, Compact: true}).FormatSnapshot(&buf2, snap); err != nil {
		t.Fatalf("FormatSnapshot() error = %v", err)
	}

	// Compact output should be shorter.
	if len(buf2.String()) >= len(buf1.String()) {
		t.Error("Compact mode did not reduce output length")
	}
}

func TestEmptyData(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := New(Config{Format: FormatTable}).FormatSnapshot(&buf, store.Snapshot{}); err != nil {
		t.Fatalf("FormatSnapshot() error = %v", err)
	}

	if !strings.Contains(buf.String(), "No experiments") {
		t.Error("Empty snapshot should show 'No experiments'")
	}
}
