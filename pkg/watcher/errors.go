package watcher

import (
	"errors"
	"fmt"
)

// Common errors returned by the watcher.
var (
	// ErrWatcherClosed is returned when attempting to use a closed watcher.
	ErrWatcherClosed = errors.New("watcher is closed")

	// ErrAlreadyStarted is returned when Start is called on a running watcher.
	ErrAlreadyStarted = errors.New("watcher already started")

	// ErrNotStarted is returned when Stop is called on a non-running watcher.
	ErrNotStarted = errors.New("watcher not started")

	// ErrCircuitBreakerOpen is returned when the circuit breaker is open.
	ErrCircuitBreakerOpen = errors.New("circuit breaker open")

	// ErrInvalidPath is returned when the watch root is not a directory.
	ErrInvalidPath = errors.New("invalid watch path")

	// ErrWatchLimit is matched by WatchLimitError.
	ErrWatchLimit = errors.New("file watch limit reached")
)

// WatchLimitError reports that the OS refused another watch.
type WatchLimitError struct {
	// Path is the directory that could not be watched.
	Path string

	// Err is the underlying OS error.
	Err error
}

// Error returns the message with remediation advice.
func (e *WatchLimitError) Error() string {
	return fmt.Sprintf("%s: cannot watch %s: %v\n\n"+
		"Try increasing the number of allowed watches:\n\n"+
		"  sudo sysctl fs.inotify.max_user_watches=524288",
		ErrWatchLimit, e.Path, e.Err)
}

// Unwrap returns the underlying OS error.
func (e *WatchLimitError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrWatchLimit) match.
func (e *WatchLimitError) Is(target error) bool {
	return target == ErrWatchLimit
}
