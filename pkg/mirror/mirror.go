package mirror

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/0xmhha/runmirror/pkg/extract"
	"github.com/0xmhha/runmirror/pkg/scanner"
	"github.com/0xmhha/runmirror/pkg/store"
	"github.com/0xmhha/runmirror/pkg/watcher"
)

// Scan builds a store from the run directory root.
func Scan(ctx context.Context, root string, opts ...Option) (*store.Store, error) {
	cfg := newConfig(opts)

	abs, err := absRoot(root)
	if err != nil {
		return nil, err
	}

	sc := scanner.New(cfg.Fs, newExtractor(cfg, abs), cfg.Logger, cfg.Scan)
	return sc.Scan(ctx, abs)
}

// Open scans root and keeps the resulting store in sync with it until the
// returned stop function is called or ctx is done.
//
// The watcher starts before the scan, so changes made while the scan runs
// are queued and applied once it completes.
func Open(ctx context.Context, root string, opts ...Option) (*store.Store, func() error, error) {
	cfg := newConfig(opts)

	abs, err := absRoot(root)
	if err != nil {
		return nil, nil, err
	}

	w, err := startWatcher(ctx, cfg, abs)
	if err != nil {
		return nil, nil, err
	}

	sc := scanner.New(cfg.Fs, newExtractor(cfg, abs), cfg.Logger, cfg.Scan)
	st, err := sc.Scan(ctx, abs)
	if err != nil {
		_ = w.Close()
		return nil, nil, err
	}

	stop, err := run(ctx, cfg, abs, st, w)
	if err != nil {
		return nil, nil, err
	}
	return st, stop, nil
}

// StartWatching applies changes below root to st until the returned stop
// function is called or ctx is done.
//
// st is expected to hold a scan of root. Changes made between that scan and
// this call are not seen; use Open to avoid the gap. Nothing in st is
// modified when StartWatching fails; an exhausted watch limit is reported
// as an error matching watcher.ErrWatchLimit.
//
// stop waits for the event worker to exit and releases the watcher. It is
// safe to call more than once.
func StartWatching(ctx context.Context, root string, st *store.Store, opts ...Option) (func() error, error) {
	cfg := newConfig(opts)

	abs, err := absRoot(root)
	if err != nil {
		return nil, err
	}

	w, err := startWatcher(ctx, cfg, abs)
	if err != nil {
		return nil, err
	}
	return run(ctx, cfg, abs, st, w)
}

func startWatcher(ctx context.Context, cfg Config, abs string) (watcher.Watcher, error) {
	w, err := watcher.New(cfg.Watch, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Start(ctx, abs); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", abs, err)
	}
	return w, nil
}

// run applies the events of w to st on a worker goroutine. w is closed
// when run fails or stop is called.
func run(ctx context.Context, cfg Config, abs string, st *store.Store, w watcher.Watcher) (func() error, error) {
	syncer := NewSyncer(abs, st, newExtractor(cfg, abs), cfg.Fs, cfg.Logger)
	if err := syncer.Index(); err != nil {
		_ = w.Close()
		return nil, err
	}

	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		syncer.Run(workerCtx, w.Events(), w.Errors())
	}()

	cfg.Logger.Info("watching for changes", "root", abs)

	var (
		once    sync.Once
		stopErr error
	)
	stop := func() error {
		once.Do(func() {
			cancel()
			<-done
			stopErr = w.Close()
		})
		return stopErr
	}
	return stop, nil
}

func newExtractor(cfg Config, root string) *extract.Extractor {
	ecfg := cfg.Extract
	ecfg.Root = root
	return extract.New(ecfg, cfg.Fs, cfg.Cache, cfg.Logger)
}

func absRoot(root string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidRoot)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRoot, err)
	}
	return abs, nil
}
