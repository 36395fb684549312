// Package display provides output formatting for store snapshots.
//
// It supports multiple output formats (table, JSON, simple text). Table and
// simple output summarize each experiment; JSON writes the snapshot itself.
package display

import (
	"io"

	"github.com/0xmhha/runmirror/pkg/coord"
	"github.com/0xmhha/runmirror/pkg/store"
)

// Format represents an output format.
type Format string

const (
	// FormatTable displays one summary row per experiment.
	FormatTable Format = "table"

	// FormatJSON displays the snapshot as JSON.
	FormatJSON Format = "json"

	// FormatSimple displays one summary line per experiment.
	FormatSimple Format = "simple"
)

// Formatter formats and displays store contents.
type Formatter interface {
	// FormatSnapshot formats the contents of a snapshot.
	//
	// Parameters:
	//   - w: Output writer
	//   - snap: Snapshot to format
	//
	// Returns error if formatting fails.
	FormatSnapshot(w io.Writer, snap store.Snapshot) error

	// FormatUpdate formats a snapshot taken after a change notification.
	//
	// Parameters:
	//   - w: Output writer
	//   - n: Notification that triggered the update
	//   - snap: Snapshot taken after the notification
	//
	// Returns error if formatting fails.
	FormatUpdate(w io.Writer, n store.Notification, snap store.Snapshot) error
}

// Config contains formatter configuration.
type Config struct {
	// Format specifies the output format.
	// Default: FormatTable.
	Format Format

	// ShowTimestamps adds the change time to update output.
	// Default: false.
	ShowTimestamps bool

	// Compact enables compact output (less whitespace).
	// Default: false.
	Compact bool
}

// Summary condenses one experiment.
type Summary struct {
	// Name of the experiment.
	Name string `json:"name"`

	// HasCommand is true when run metadata is present.
	HasCommand bool `json:"has_command"`

	// Categories counts the categories of each kind.
	Categories map[coord.Kind]int `json:"categories"`

	// Steps is the number of distinct step indices.
	Steps int `json:"steps"`

	// Values is the number of stored leaves.
	Values int `json:"values"`
}
