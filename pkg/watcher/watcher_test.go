package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/0xmhha/runmirror/pkg/logger"
)

// startWatcher starts a watcher on dir and closes it when the test ends.
func startWatcher(t *testing.T, dir string, cfg Config) Watcher {
	t.Helper()

	w, err := New(cfg, logger.Noop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		if closeErr := w.Close(); closeErr != nil {
			t.Logf("Close() error = %v", closeErr)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	if err := w.Start(ctx, dir); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return w
}

// waitFor reads events until one matches or the timeout expires.
func waitFor(t *testing.T, w Watcher, desc string, match func(Event) bool) Event {
	t.Helper()

	timeout := time.After(3 * time.Second)
	for {
		select {
		case event, ok := <-w.Events():
			if !ok {
				t.Fatalf("events channel closed while waiting for %s", desc)
			}
			if match(event) {
				return event
			}
		case <-timeout:
			t.Fatalf("Timeout waiting for %s", desc)
		}
	}
}

func TestNew(t *testing.T) {
	w, err := New(Config{}, logger.Noop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if w == nil {
		t.Error("New() returned nil watcher")
	}

	if closeErr := w.Close(); closeErr != nil {
		t.Errorf("Close() error = %v", closeErr)
	}
}

func TestNewWithConfig(t *testing.T) {
	cfg := Config{
		DebounceInterval:        200 * time.Millisecond,
		QueueSize:               16,
		CircuitBreakerThreshold: 10,
	}

	w, err := New(cfg, logger.Noop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if closeErr := w.Close(); closeErr != nil {
		t.Errorf("Close() error = %v", closeErr)
	}
}

func TestStartInvalidPath(t *testing.T) {
	tmpDir := t.TempDir()
	file := filepath.Join(tmpDir, "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0600); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	for _, root := range []string{filepath.Join(tmpDir, "nonexistent"), file} {
		w, err := New(Config{}, logger.Noop())
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		startErr := w.Start(context.Background(), root)
		if !errors.Is(startErr, ErrInvalidPath) {
			t.Errorf("Start(%s) error = %v, want ErrInvalidPath", root, startErr)
		}

		// A failed start releases the watcher.
		if startErr := w.Start(context.Background(), tmpDir); startErr != ErrWatcherClosed {
			t.Errorf("Start() after failure error = %v, want ErrWatcherClosed", startErr)
		}
		if closeErr := w.Close(); closeErr != nil {
			t.Errorf("Close() error = %v", closeErr)
		}
	}
}

func TestStartAlreadyStarted(t *testing.T) {
	tmpDir := t.TempDir()
	w := startWatcher(t, tmpDir, Config{})

	startErr := w.Start(context.Background(), tmpDir)
	if startErr != ErrAlreadyStarted {
		t.Errorf("Start() error = %v, want ErrAlreadyStarted", startErr)
	}
}

func TestFileCreate(t *testing.T) {
	tmpDir := t.TempDir()
	w := startWatcher(t, tmpDir, Config{DebounceInterval: 50 * time.Millisecond})

	testFile := filepath.Join(tmpDir, "loss.json")
	if writeErr := os.WriteFile(testFile, []byte("{}"), 0600); writeErr != nil {
		t.Fatalf("Failed to create test file: %v", writeErr)
	}

	event := waitFor(t, w, "create event", func(e Event) bool { return e.Op == OpCreate })
	if event.Path != testFile {
		t.Errorf("Event path = %s, want %s", event.Path, testFile)
	}
	if event.IsDir {
		t.Error("file create reported as directory")
	}
}

func TestFileModify(t *testing.T) {
	tmpDir := t.TempDir()

	testFile := filepath.Join(tmpDir, "notes.txt")
	if err := os.WriteFile(testFile, []byte("initial"), 0600); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	w := startWatcher(t, tmpDir, Config{DebounceInterval: 50 * time.Millisecond})

	if writeErr := os.WriteFile(testFile, []byte("modified"), 0600); writeErr != nil {
		t.Fatalf("Failed to modify test file: %v", writeErr)
	}

	event := waitFor(t, w, "write event", func(e Event) bool { return e.Op == OpWrite })
	if event.Path != testFile {
		t.Errorf("Event path = %s, want %s", event.Path, testFile)
	}
}

func TestFileDelete(t *testing.T) {
	tmpDir := t.TempDir()

	testFile := filepath.Join(tmpDir, "notes.txt")
	if err := os.WriteFile(testFile, []byte("test"), 0600); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	w := startWatcher(t, tmpDir, Config{DebounceInterval: 50 * time.Millisecond})

	if removeErr := os.Remove(testFile); removeErr != nil {
		t.Fatalf("Failed to delete test file: %v", removeErr)
	}

	event := waitFor(t, w, "remove event", func(e Event) bool { return e.Op == OpRemove })
	if event.Path != testFile {
		t.Errorf("Event path = %s, want %s", event.Path, testFile)
	}
	if event.IsDir {
		t.Error("file removal reported as directory")
	}
}

func TestDebouncing(t *testing.T) {
	tmpDir := t.TempDir()

	testFile := filepath.Join(tmpDir, "train.log")
	if writeErr := os.WriteFile(testFile, []byte("initial"), 0600); writeErr != nil {
		t.Fatalf("Failed to create test file: %v", writeErr)
	}

	w := startWatcher(t, tmpDir, Config{DebounceInterval: 200 * time.Millisecond})

	// Rapid file modifications.
	for i := 0; i < 5; i++ {
		if writeErr := os.WriteFile(testFile, []byte(fmt.Sprintf("content %d", i)), 0600); writeErr != nil {
			t.Fatalf("Failed to write test file: %v", writeErr)
		}
		time.Sleep(30 * time.Millisecond) // Less than debounce interval.
	}

	writes := 0
	timeout := time.After(time.Second)
loop:
	for {
		select {
		case event := <-w.Events():
			if event.Op == OpWrite {
				writes++
			}
		case <-timeout:
			break loop
		}
	}

	if writes == 0 {
		t.Error("No write events received")
	}
	if writes >= 5 {
		t.Errorf("Received %d events for 5 rapid writes, debouncing not working", writes)
	}
}

func TestNewDirectoryContents(t *testing.T) {
	root := t.TempDir()
	staging := t.TempDir()

	// Build a tree elsewhere, then move it in at once.
	src := filepath.Join(staging, "exp1")
	if err := os.MkdirAll(filepath.Join(src, "3"), 0700); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "3", "loss.json"), []byte("{}"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	w := startWatcher(t, root, Config{})

	dest := filepath.Join(root, "exp1")
	if err := os.Rename(src, dest); err != nil {
		t.Skipf("cannot move across temp directories: %v", err)
	}

	dirEvent := waitFor(t, w, "directory create", func(e Event) bool { return e.Path == dest })
	if dirEvent.Op != OpCreate || !dirEvent.IsDir {
		t.Errorf("directory event = %+v, want directory create", dirEvent)
	}

	want := filepath.Join(dest, "3", "loss.json")
	fileEvent := waitFor(t, w, "synthetic file create", func(e Event) bool { return e.Path == want })
	if fileEvent.Op != OpCreate || fileEvent.IsDir {
		t.Errorf("file event = %+v, want file create", fileEvent)
	}

	// The nested directory is watched too.
	later := filepath.Join(dest, "3", "acc.json")
	if err := os.WriteFile(later, []byte("{}"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	waitFor(t, w, "create in nested directory", func(e Event) bool { return e.Path == later })
}

func TestDirectoryRemove(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "exp1", "samples")
	if err := os.MkdirAll(sub, 0700); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	w := startWatcher(t, root, Config{})

	if err := os.RemoveAll(filepath.Join(root, "exp1")); err != nil {
		t.Fatalf("RemoveAll() error = %v", err)
	}

	event := waitFor(t, w, "directory removal", func(e Event) bool {
		return e.Path == filepath.Join(root, "exp1") && e.Op == OpRemove
	})
	if !event.IsDir {
		t.Error("directory removal not reported as directory")
	}
}

func TestDirectoryRenameDropsOldWatches(t *testing.T) {
	root := t.TempDir()
	oldDir := filepath.Join(root, "a")
	if err := os.MkdirAll(oldDir, 0700); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	w := startWatcher(t, root, Config{})

	newDir := filepath.Join(root, "b")
	if err := os.Rename(oldDir, newDir); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}

	renamed := waitFor(t, w, "rename", func(e Event) bool { return e.Path == oldDir })
	if renamed.Op != OpRename || !renamed.IsDir {
		t.Errorf("rename event = %+v, want directory rename", renamed)
	}
	waitFor(t, w, "create of new name", func(e Event) bool { return e.Path == newDir && e.Op == OpCreate })

	// Files in the moved directory are reported under the new name.
	file := filepath.Join(newDir, "x.txt")
	if err := os.WriteFile(file, []byte("x"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	event := waitFor(t, w, "create in renamed directory", func(e Event) bool {
		return strings.HasSuffix(e.Path, "x.txt")
	})
	if event.Path != file {
		t.Errorf("Event path = %s, want %s", event.Path, file)
	}
}

func TestStopClosesEvents(t *testing.T) {
	w := startWatcher(t, t.TempDir(), Config{})

	if err := w.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	select {
	case _, ok := <-w.Events():
		if ok {
			t.Error("received event after Stop()")
		}
	case <-time.After(time.Second):
		t.Error("events channel not closed after Stop()")
	}

	if err := w.Stop(); err != ErrNotStarted {
		t.Errorf("second Stop() error = %v, want ErrNotStarted", err)
	}
}

func TestWatchLimitError(t *testing.T) {
	err := watchError("/runs/exp1", fmt.Errorf("add: %w", syscall.ENOSPC))

	if !errors.Is(err, ErrWatchLimit) {
		t.Errorf("errors.Is(%v, ErrWatchLimit) = false", err)
	}
	if !errors.Is(err, syscall.ENOSPC) {
		t.Error("underlying errno lost")
	}

	var limitErr *WatchLimitError
	if !errors.As(err, &limitErr) || limitErr.Path != "/runs/exp1" {
		t.Errorf("errors.As() = %v, want WatchLimitError for /runs/exp1", limitErr)
	}
	if !strings.Contains(err.Error(), "fs.inotify.max_user_watches=524288") {
		t.Errorf("message lacks remediation: %s", err.Error())
	}

	if errors.Is(watchError("/x", syscall.EACCES), ErrWatchLimit) {
		t.Error("permission error classified as watch limit")
	}
}

func TestOpString(t *testing.T) {
	tests := []struct {
		op   Op
		want string
	}{
		{OpCreate, "CREATE"},
		{OpWrite, "WRITE"},
		{OpRemove, "REMOVE"},
		{OpRename, "RENAME"},
		{OpChmod, "CHMOD"},
		{OpMove, "MOVE"},
		{Op(999), "UNKNOWN"},
	}

	for _, tt := range tests {
		got := tt.op.String()
		if got != tt.want {
			t.Errorf("Op.String() = %s, want %s", got, tt.want)
		}
	}
}

func TestStopNotStarted(t *testing.T) {
	w, err := New(Config{}, logger.Noop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() {
		if closeErr := w.Close(); closeErr != nil {
			t.Logf("Close() error = %v", closeErr)
		}
	}()

	stopErr := w.Stop()
	if stopErr != ErrNotStarted {
		t.Errorf("Stop() error = %v, want ErrNotStarted", stopErr)
	}
}

func TestCloseTwice(t *testing.T) {
	w, err := New(Config{}, logger.Noop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if closeErr := w.Close(); closeErr != nil {
		t.Errorf("First Close() error = %v", closeErr)
	}

	// Second close should not error.
	if closeErr := w.Close(); closeErr != nil {
		t.Errorf("Second Close() error = %v", closeErr)
	}
}

func TestStartAfterClose(t *testing.T) {
	tmpDir := t.TempDir()

	w, err := New(Config{}, logger.Noop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if closeErr := w.Close(); closeErr != nil {
		t.Errorf("Close() error = %v", closeErr)
	}

	startErr := w.Start(context.Background(), tmpDir)
	if startErr != ErrWatcherClosed {
		t.Errorf("Start() error = %v, want ErrWatcherClosed", startErr)
	}
}
