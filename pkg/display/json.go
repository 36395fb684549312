package display

import (
	"encoding/json"
	"io"
	"time"

	"github.com/0xmhha/runmirror/pkg/store"
)

// jsonFormatter formats output as JSON.
type jsonFormatter struct {
	config Config
}

// jsonUpdate is the envelope written for each update.
type jsonUpdate struct {
	Seq         uint64         `json:"seq"`
	At          *time.Time     `json:"at,omitempty"`
	Experiments store.Snapshot `json:"experiments"`
}

func (f *jsonFormatter) encoder(w io.Writer) *json.Encoder {
	encoder := json.NewEncoder(w)
	if !f.config.Compact {
		encoder.SetIndent("", "  ")
	}
	return encoder
}

// FormatSnapshot implements Formatter.FormatSnapshot.
func (f *jsonFormatter) FormatSnapshot(w io.Writer, snap store.Snapshot) error {
	return f.encoder(w).Encode(snap)
}

// FormatUpdate implements Formatter.FormatUpdate.
func (f *jsonFormatter) FormatUpdate(w io.Writer, n store.Notification, snap store.Snapshot) error {
	update := jsonUpdate{Seq: n.Seq, Experiments: snap}
	if f.config.ShowTimestamps && !n.At.IsZero() {
		at := n.At
		update.At = &at
	}
	return f.encoder(w).Encode(update)
}
