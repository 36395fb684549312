package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/0xmhha/runmirror/pkg/coord"
	"github.com/0xmhha/runmirror/pkg/store"
)

// tableFormatter formats output as tables.
type tableFormatter struct {
	config Config
}

// FormatSnapshot implements Formatter.FormatSnapshot.
func (f *tableFormatter) FormatSnapshot(w io.Writer, snap store.Snapshot) error {
	if err := writeHeader(w, "Experiments", f.config.Compact); err != nil {
		return err
	}
	return f.writeSummaries(w, snap)
}

// FormatUpdate implements Formatter.FormatUpdate.
func (f *tableFormatter) FormatUpdate(w io.Writer, n store.Notification, snap store.Snapshot) error {
	if err := writeHeader(w, updateTitle(n, f.config.ShowTimestamps), f.config.Compact); err != nil {
		return err
	}
	return f.writeSummaries(w, snap)
}

func (f *tableFormatter) writeSummaries(w io.Writer, snap store.Snapshot) error {
	header := []string{"Experiment"}
	for _, kind := range coord.AllKinds {
		header = append(header, strings.ToUpper(string(kind[:1]))+string(kind[1:]))
	}
	header = append(header, "Steps", "Values", "Command")

	summaries := Summarize(snap)
	rows := make([][]string, len(summaries))
	for i, s := range summaries {
		row := []string{s.Name}
		for _, kind := range coord.AllKinds {
			row = append(row, formatNumber(s.Categories[kind]))
		}

		command := "-"
		if s.HasCommand {
			command = "yes"
		}
		rows[i] = append(row, formatNumber(s.Steps), formatNumber(s.Values), command)
	}

	return f.writeTable(w, header, rows)
}

// writeTable writes a formatted table.
func (f *tableFormatter) writeTable(w io.Writer, header []string, rows [][]string) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No experiments")
		return err
	}

	// Calculate column widths.
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	// Write header.
	if err := f.writeRow(w, header, widths); err != nil {
		return err
	}

	// Write separator.
	if !f.config.Compact {
		separator := make([]string, len(header))
		for i, width := range widths {
			separator[i] = strings.Repeat("-", width)
		}
		if err := f.writeRow(w, separator, widths); err != nil {
			return err
		}
	}

	// Write rows.
	for _, row := range rows {
		if err := f.writeRow(w, row, widths); err != nil {
			return err
		}
	}

	// Add spacing.
	if !f.config.Compact {
		_, err := fmt.Fprintln(w)
		return err
	}

	return nil
}

// writeRow writes a single table row.
func (f *tableFormatter) writeRow(w io.Writer, cells []string, widths []int) error {
	for i, cell := range cells {
		if i > 0 {
			if f.config.Compact {
				if _, err := fmt.Fprint(w, " "); err != nil {
					return err
				}
			} else {
				if _, err := fmt.Fprint(w, "  "); err != nil {
					return err
				}
			}
		}

		format := fmt.Sprintf("%%-%ds", widths[i])
		if _, err := fmt.Fprintf(w, format, cell); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintln(w)
	return err
}
