package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/0xmhha/runmirror/pkg/coord"
	"github.com/0xmhha/runmirror/pkg/store"
)

// simpleFormatter formats output as simple text.
type simpleFormatter struct {
	config Config
}

// FormatSnapshot implements Formatter.FormatSnapshot.
func (f *simpleFormatter) FormatSnapshot(w io.Writer, snap store.Snapshot) error {
	for _, s := range Summarize(snap) {
		if _, err := fmt.Fprintln(w, summaryLine(s)); err != nil {
			return err
		}
	}
	return nil
}

// FormatUpdate implements Formatter.FormatUpdate.
func (f *simpleFormatter) FormatUpdate(w io.Writer, n store.Notification, snap store.Snapshot) error {
	summaries := Summarize(snap)

	values := 0
	for _, s := range summaries {
		values += s.Values
	}
	if _, err := fmt.Fprintf(w, "%s: %d experiments, %s values\n",
		updateTitle(n, f.config.ShowTimestamps),
		len(summaries),
		formatNumber(values)); err != nil {
		return err
	}

	return f.FormatSnapshot(w, snap)
}

// summaryLine renders e.g. "exp1: scalars=2 images=1 | 3 steps | 7 values | command".
func summaryLine(s Summary) string {
	var kinds []string
	for _, kind := range coord.AllKinds {
		if n := s.Categories[kind]; n > 0 {
			kinds = append(kinds, fmt.Sprintf("%s=%d", kind, n))
		}
	}
	if len(kinds) == 0 {
		kinds = append(kinds, "empty")
	}

	line := fmt.Sprintf("%s: %s | %d steps | %s values",
		s.Name,
		strings.Join(kinds, " "),
		s.Steps,
		formatNumber(s.Values))
	if s.HasCommand {
		line += " | command"
	}
	return line
}
