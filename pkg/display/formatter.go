package display

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/0xmhha/runmirror/pkg/coord"
	"github.com/0xmhha/runmirror/pkg/store"
)

// New creates a new formatter based on configuration.
//
// Parameters:
//   - cfg: Formatter configuration
//
// Returns a configured Formatter.
func New(cfg Config) Formatter {
	// Set defaults.
	if cfg.Format == "" {
		cfg.Format = FormatTable
	}

	switch cfg.Format {
	case FormatJSON:
		return &jsonFormatter{config: cfg}
	case FormatSimple:
		return &simpleFormatter{config: cfg}
	case FormatTable:
		fallthrough
	default:
		return &tableFormatter{config: cfg}
	}
}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatTable, FormatJSON, FormatSimple:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unknown format %q: must be table, json, or simple", s)
	}
}

// Summarize returns one summary per experiment, sorted by name.
func Summarize(snap store.Snapshot) []Summary {
	summaries := make([]Summary, 0, len(snap))

	for name, exp := range snap {
		s := Summary{
			Name:       name,
			HasCommand: exp.Command != nil,
			Categories: make(map[coord.Kind]int, len(exp.Kinds)),
		}

		steps := make(map[int]bool)
		for kind, categories := range exp.Kinds {
			s.Categories[kind] = len(categories)
			for _, c := range categories {
				if c.HasGlobal {
					s.Values++
				}
				for step := range c.Steps {
					steps[step] = true
					s.Values++
				}
			}
		}
		s.Steps = len(steps)

		summaries = append(summaries, s)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Name < summaries[j].Name
	})
	return summaries
}

// formatNumber formats a number with thousand separators.
func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}

	// Convert to string and add commas.
	s := fmt.Sprintf("%d", n)
	result := ""
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			result += ","
		}
		result += string(c)
	}
	return result
}

// updateTitle names an update for headers.
func updateTitle(n store.Notification, showTime bool) string {
	if showTime && !n.At.IsZero() {
		return fmt.Sprintf("Update #%d at %s", n.Seq, n.At.Format("2006-01-02 15:04:05"))
	}
	return fmt.Sprintf("Update #%d", n.Seq)
}

// writeHeader writes a section header.
func writeHeader(w io.Writer, title string, compact bool) error {
	if compact {
		_, err := fmt.Fprintf(w, "%s\n", title)
		return err
	}

	_, err := fmt.Fprintf(w, "\n%s\n%s\n\n", title, strings.Repeat("=", len(title)))
	return err
}
