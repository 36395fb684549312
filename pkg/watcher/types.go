// Package watcher provides real-time file system monitoring of a run
// directory tree.
//
// It uses fsnotify and watches every directory below the root. New
// directories are watched as soon as they appear, and their existing
// contents are reported as Create events since fsnotify cannot see entries
// created before the watch was registered. Write events are debounced per
// path; all other events are forwarded immediately, in arrival order.
//
// Example usage:
//
//	w, err := watcher.New(watcher.Config{
//	    DebounceInterval: 50 * time.Millisecond,
//	}, logger.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Close()
//
//	if err := w.Start(ctx, "/runs"); err != nil {
//	    log.Fatal(err)
//	}
//
//	for event := range w.Events() {
//	    fmt.Printf("%s %s\n", event.Op, event.Path)
//	}
package watcher

import (
	"context"
	"time"
)

// Op describes a file operation type.
type Op uint32

// File operation types.
const (
	OpCreate Op = 1 << iota // File or directory created
	OpWrite                 // File modified
	OpRemove                // File or directory deleted
	OpRename                // Renamed away; the new name arrives as OpCreate
	OpChmod                 // File permissions changed
	OpMove                  // Moved from Path to Dest
)

// String returns a human-readable operation name.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpWrite:
		return "WRITE"
	case OpRemove:
		return "REMOVE"
	case OpRename:
		return "RENAME"
	case OpChmod:
		return "CHMOD"
	case OpMove:
		return "MOVE"
	default:
		return "UNKNOWN"
	}
}

// Event represents a file system event.
type Event struct {
	// Path is the absolute path that triggered the event.
	Path string

	// Dest is the new path of an OpMove event.
	Dest string

	// Op is the operation that triggered the event.
	Op Op

	// IsDir reports whether Path is (or was) a directory.
	IsDir bool

	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// Watcher provides file system monitoring.
type Watcher interface {
	// Start begins watching root and every directory below it.
	//
	// Parameters:
	//   - ctx: Context for cancellation
	//   - root: Directory to watch
	//
	// Returns ErrWatchLimit when the OS watch quota is exhausted. On any
	// error the watcher is closed.
	Start(ctx context.Context, root string) error

	// Stop ends event processing and waits for it to finish.
	Stop() error

	// Events returns the channel for receiving file system events.
	//
	// The channel is closed when the watcher stops.
	Events() <-chan Event

	// Errors returns the channel for receiving watcher errors.
	//
	// Non-fatal errors are sent to this channel.
	// The channel is closed when the watcher stops.
	Errors() <-chan error

	// Close stops the watcher and releases every OS watch handle.
	Close() error
}

// Config contains watcher configuration.
type Config struct {
	// DebounceInterval delays Write events. Writes to the same path within
	// the interval are coalesced. Negative disables debouncing.
	// Default: 50ms.
	DebounceInterval time.Duration

	// QueueSize is the capacity of the Events channel.
	// Default: 256.
	QueueSize int

	// CircuitBreakerThreshold is the number of consecutive failures
	// before ErrCircuitBreakerOpen is reported.
	// Default: 5.
	CircuitBreakerThreshold int
}
