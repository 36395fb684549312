package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/0xmhha/runmirror/pkg/logger"
)

// watcher implements the Watcher interface using fsnotify.
type watcher struct {
	fsw    *fsnotify.Watcher
	logger logger.Logger
	config Config

	events chan Event
	errors chan error
	flush  chan Event // debounced writes, drained by the event loop

	mu       sync.Mutex
	running  bool
	started  bool
	closed   bool
	stopChan chan struct{}
	done     chan struct{}

	// Directory bookkeeping. fsnotify does not say whether a removed path
	// was a directory.
	dirMu   sync.Mutex
	dirs    map[string]struct{}
	removed map[string]struct{}

	// Debouncing state.
	debounceTimers map[string]*time.Timer
	debounceMu     sync.Mutex

	// Circuit breaker state.
	failureCount int
}

// New creates a new file system watcher.
//
// Parameters:
//   - cfg: Watcher configuration
//   - log: Logger instance
//
// Returns:
//   - Configured Watcher
//   - Error if watcher cannot be created
func New(cfg Config, log logger.Logger) (Watcher, error) {
	// Set defaults.
	if cfg.DebounceInterval == 0 {
		cfg.DebounceInterval = 50 * time.Millisecond
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.CircuitBreakerThreshold <= 0 {
		cfg.CircuitBreakerThreshold = 5
	}
	if log == nil {
		log = logger.Noop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", watchError("", err))
	}

	w := &watcher{
		fsw:            fsw,
		logger:         log,
		config:         cfg,
		events:         make(chan Event, cfg.QueueSize),
		errors:         make(chan error, 10),
		flush:          make(chan Event, cfg.QueueSize),
		stopChan:       make(chan struct{}),
		done:           make(chan struct{}),
		dirs:           make(map[string]struct{}),
		removed:        make(map[string]struct{}),
		debounceTimers: make(map[string]*time.Timer),
	}

	log.Debug("file watcher created",
		"debounce_interval", cfg.DebounceInterval,
		"queue_size", cfg.QueueSize)

	return w, nil
}

// Start implements Watcher.Start.
func (w *watcher) Start(ctx context.Context, root string) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWatcherClosed
	}
	if w.running {
		w.mu.Unlock()
		return ErrAlreadyStarted
	}
	w.running = true
	w.mu.Unlock()

	abs, err := filepath.Abs(root)
	if err != nil {
		w.abort()
		return fmt.Errorf("%w: %s: %v", ErrInvalidPath, root, err)
	}

	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		w.abort()
		return fmt.Errorf("%w: %s", ErrInvalidPath, abs)
	}

	if _, err := w.addRecursive(abs, false); err != nil {
		w.abort()
		return fmt.Errorf("failed to watch %s: %w", abs, err)
	}

	w.mu.Lock()
	w.started = true
	w.mu.Unlock()

	w.logger.Info("watcher started",
		"root", abs,
		"directories", w.dirCount())

	go w.processEvents(ctx)

	return nil
}

// abort releases everything after a failed Start.
func (w *watcher) abort() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.closed = true
	w.running = false
	close(w.stopChan)
	close(w.events)
	close(w.errors)

	if err := w.fsw.Close(); err != nil {
		w.logger.Warn("failed to close fsnotify watcher", "error", err)
	}
}

// Stop implements Watcher.Stop.
func (w *watcher) Stop() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWatcherClosed
	}
	if !w.running {
		w.mu.Unlock()
		return ErrNotStarted
	}

	close(w.stopChan)
	w.running = false
	w.mu.Unlock()

	<-w.done
	w.stopTimers()

	w.logger.Info("watcher stopped")
	return nil
}

// Events implements Watcher.Events.
func (w *watcher) Events() <-chan Event {
	return w.events
}

// Errors implements Watcher.Errors.
func (w *watcher) Errors() <-chan error {
	return w.errors
}

// Close implements Watcher.Close.
func (w *watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.running {
		close(w.stopChan)
		w.running = false
	}
	started := w.started
	w.mu.Unlock()

	if started {
		// The event loop owns and closes the channels.
		<-w.done
	} else {
		close(w.events)
		close(w.errors)
	}

	w.stopTimers()

	if err := w.fsw.Close(); err != nil {
		w.logger.Error("failed to close fsnotify watcher", "error", err)
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	w.logger.Debug("watcher closed")
	return nil
}

// processEvents handles events from fsnotify. It is the only sender on the
// Events and Errors channels.
func (w *watcher) processEvents(ctx context.Context) {
	defer func() {
		close(w.events)
		close(w.errors)
		close(w.done)
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("event processing stopped", "reason", "context cancelled")
			return

		case <-w.stopChan:
			w.logger.Debug("event processing stopped", "reason", "stop signal")
			return

		case event := <-w.flush:
			if !w.emit(ctx, event) {
				return
			}

		case event, ok := <-w.fsw.Events:
			if !ok {
				w.logger.Warn("fsnotify events channel closed")
				return
			}

			for _, ev := range w.handleEvent(event) {
				if !w.emit(ctx, ev) {
					return
				}
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				w.logger.Warn("fsnotify errors channel closed")
				return
			}

			w.handleError(err)
		}
	}
}

// emit delivers an event, blocking while the queue is full.
func (w *watcher) emit(ctx context.Context, ev Event) bool {
	select {
	case w.events <- ev:
		return true
	case <-ctx.Done():
		return false
	case <-w.stopChan:
		return false
	}
}

// handleEvent translates one fsnotify event into zero or more events to
// emit now. Debounced writes are emitted later through flush.
func (w *watcher) handleEvent(event fsnotify.Event) []Event {
	w.mu.Lock()
	w.failureCount = 0
	w.mu.Unlock()

	now := time.Now()
	path := event.Name

	switch {
	case event.Has(fsnotify.Create):
		return w.handleCreate(path, now)

	case event.Has(fsnotify.Write):
		if w.isDir(path) {
			return nil
		}
		if w.config.DebounceInterval < 0 {
			return []Event{{Path: path, Op: OpWrite, Timestamp: now}}
		}
		w.debounceWrite(Event{Path: path, Op: OpWrite, Timestamp: now})
		return nil

	case event.Has(fsnotify.Remove):
		return w.handleRemoval(path, OpRemove, now)

	case event.Has(fsnotify.Rename):
		return w.handleRemoval(path, OpRename, now)

	case event.Has(fsnotify.Chmod):
		// Permission changes don't alter contents.
		return nil

	default:
		w.logger.Debug("unknown fsnotify operation",
			"op", event.Op,
			"path", path)
		return nil
	}
}

// handleCreate watches a new directory and reports its existing contents.
func (w *watcher) handleCreate(path string, now time.Time) []Event {
	// The path is live again; a later removal is a new one.
	w.dirMu.Lock()
	delete(w.removed, path)
	w.dirMu.Unlock()

	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return []Event{{Path: path, Op: OpCreate, Timestamp: now}}
	}

	events := []Event{{Path: path, Op: OpCreate, IsDir: true, Timestamp: now}}

	existing, err := w.addRecursive(path, true)
	if err != nil {
		w.report(err)
	}
	return append(events, existing...)
}

// handleRemoval reports a removed or renamed path. A directory drops its
// own watches and those of its descendants.
func (w *watcher) handleRemoval(path string, op Op, now time.Time) []Event {
	w.dirMu.Lock()
	_, isDir := w.dirs[path]
	if !isDir {
		if _, dup := w.removed[path]; dup {
			// Second notification from the directory's own watch.
			delete(w.removed, path)
			w.dirMu.Unlock()
			return nil
		}
	}

	var dropped []string
	if isDir {
		prefix := path + string(filepath.Separator)
		for dir := range w.dirs {
			if dir == path || strings.HasPrefix(dir, prefix) {
				dropped = append(dropped, dir)
				delete(w.dirs, dir)
			}
		}
		w.removed[path] = struct{}{}
	}
	w.dirMu.Unlock()

	for _, dir := range dropped {
		// Fails for directories the kernel already forgot; that is fine.
		if err := w.fsw.Remove(dir); err != nil {
			w.logger.Debug("watch already gone", "path", dir)
		}
	}

	w.cancelWrites(path, isDir)

	return []Event{{Path: path, Op: op, IsDir: isDir, Timestamp: now}}
}

// debounceWrite implements per-path write debouncing.
func (w *watcher) debounceWrite(event Event) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimers == nil {
		return
	}

	// Cancel existing timer for this path.
	if timer, exists := w.debounceTimers[event.Path]; exists {
		timer.Stop()
	}

	w.debounceTimers[event.Path] = time.AfterFunc(w.config.DebounceInterval, func() {
		w.debounceMu.Lock()
		delete(w.debounceTimers, event.Path)
		w.debounceMu.Unlock()

		select {
		case w.flush <- event:
		case <-w.done:
		}
	})
}

// cancelWrites drops pending writes for path, and for everything below it
// when it is a directory.
func (w *watcher) cancelWrites(path string, isDir bool) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	prefix := path + string(filepath.Separator)
	for p, timer := range w.debounceTimers {
		if p == path || (isDir && strings.HasPrefix(p, prefix)) {
			timer.Stop()
			delete(w.debounceTimers, p)
		}
	}
}

func (w *watcher) stopTimers() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	for _, timer := range w.debounceTimers {
		timer.Stop()
	}
	w.debounceTimers = nil
}

// handleError processes fsnotify errors with circuit breaker pattern.
func (w *watcher) handleError(err error) {
	w.mu.Lock()
	w.failureCount++
	failures := w.failureCount
	w.mu.Unlock()

	w.logger.Warn("fsnotify error",
		"error", err,
		"failure_count", failures)

	if failures >= w.config.CircuitBreakerThreshold {
		w.logger.Error("circuit breaker opened",
			"threshold", w.config.CircuitBreakerThreshold)
		w.report(ErrCircuitBreakerOpen)
		return
	}

	w.report(err)
}

// report sends a non-fatal error without blocking.
func (w *watcher) report(err error) {
	select {
	case w.errors <- err:
	default:
		w.logger.Warn("error channel full, dropping error", "error", err)
	}
}

// addRecursive watches dir and every directory below it. With emit set it
// returns Create events for everything found below dir.
func (w *watcher) addRecursive(dir string, emit bool) ([]Event, error) {
	var events []Event
	now := time.Now()

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("error walking path",
				"path", p,
				"error", err)
			if p == dir {
				return err
			}
			return nil // Skip but continue walking.
		}

		if p != dir && emit {
			events = append(events, Event{Path: p, Op: OpCreate, IsDir: d.IsDir(), Timestamp: now})
		}

		if !d.IsDir() {
			return nil
		}

		if addErr := w.fsw.Add(p); addErr != nil {
			addErr = watchError(p, addErr)
			if errors.Is(addErr, ErrWatchLimit) || p == dir {
				return addErr
			}
			w.logger.Warn("failed to add subdirectory",
				"path", p,
				"error", addErr)
			return nil
		}

		w.dirMu.Lock()
		w.dirs[p] = struct{}{}
		w.dirMu.Unlock()

		w.logger.Debug("added watch", "path", p)
		return nil
	})

	return events, err
}

// watchError classifies quota exhaustion.
func watchError(path string, err error) error {
	if errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EMFILE) {
		return &WatchLimitError{Path: path, Err: err}
	}
	return err
}

func (w *watcher) isDir(path string) bool {
	w.dirMu.Lock()
	defer w.dirMu.Unlock()

	_, ok := w.dirs[path]
	return ok
}

func (w *watcher) dirCount() int {
	w.dirMu.Lock()
	defer w.dirMu.Unlock()

	return len(w.dirs)
}
