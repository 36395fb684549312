package logger

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readLog(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path) // nolint:gosec
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	return string(data)
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		level string
		want  []string
		drop  []string
	}{
		{"debug", []string{"store updated", "watching", "watcher error", "failed to apply"}, nil},
		{"", []string{"watching", "watcher error", "failed to apply"}, []string{"store updated"}},
		{"WARNING", []string{"watcher error", "failed to apply"}, []string{"store updated", "watching"}},
		{"error", []string{"failed to apply"}, []string{"store updated", "watching", "watcher error"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logFile := filepath.Join(t.TempDir(), "runmirror.log")
			log := New(Config{Level: tt.level, Output: logFile, Format: FormatText})

			log.Debug("store updated")
			log.Info("watching")
			log.Warn("watcher error")
			log.Error("failed to apply")

			content := readLog(t, logFile)
			for _, msg := range tt.want {
				if !strings.Contains(content, msg) {
					t.Errorf("level %q: %q missing from %q", tt.level, msg, content)
				}
			}
			for _, msg := range tt.drop {
				if strings.Contains(content, msg) {
					t.Errorf("level %q: %q should be filtered", tt.level, msg)
				}
			}
		})
	}
}

func TestWithFieldsJSON(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "runmirror.json")

	log := New(Config{Level: "info", Output: logFile, Format: FormatJSON}).With("root", "/runs")
	log.Info("scan complete", "experiments", 2)

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(readLog(t, logFile)), &entry); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if entry["msg"] != "scan complete" {
		t.Errorf("msg = %v, want scan complete", entry["msg"])
	}
	if entry["root"] != "/runs" {
		t.Errorf("root = %v, want /runs", entry["root"])
	}
	if entry["experiments"] != float64(2) {
		t.Errorf("experiments = %v, want 2", entry["experiments"])
	}
}

func TestResolveFormat(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "out.log"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer f.Close()

	tests := []struct {
		name   string
		format string
		writer io.Writer
		want   string
	}{
		{"text", "text", f, FormatText},
		{"json", "JSON", f, FormatJSON},
		{"empty", "", f, FormatText},
		{"unknown", "xml", f, FormatText},
		{"auto on file", "auto", f, FormatJSON},
		{"auto on buffer", "auto", &bytes.Buffer{}, FormatJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveFormat(tt.format, tt.writer); got != tt.want {
				t.Errorf("resolveFormat(%q) = %q, want %q", tt.format, got, tt.want)
			}
		})
	}
}

func TestAutoFormatToFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "auto.log")

	log := New(Config{Level: "info", Output: logFile, Format: FormatAuto})
	log.Info("scan complete", "experiments", 2)

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(readLog(t, logFile)), &entry); err != nil {
		t.Fatalf("auto format on a file is not JSON: %v", err)
	}
}

func TestUnopenableOutput(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing", "runmirror.log")

	if _, err := getWriter(missing); err == nil {
		t.Fatal("getWriter() error = nil, want error")
	}

	// Falls back to stderr.
	log := New(Config{Level: "info", Output: missing})
	log.Info("still logging")
}

func TestNoop(t *testing.T) {
	log := Noop().With("component", "syncer")
	log.Debug("debug")
	log.Error("error", "path", "/runs/exp")
}
