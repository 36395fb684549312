package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/0xmhha/runmirror/pkg/config"
	"github.com/0xmhha/runmirror/pkg/display"
	"github.com/0xmhha/runmirror/pkg/extract"
	"github.com/0xmhha/runmirror/pkg/logger"
	"github.com/0xmhha/runmirror/pkg/mirror"
	"github.com/0xmhha/runmirror/pkg/scanner"
	"github.com/0xmhha/runmirror/pkg/store"
	"github.com/0xmhha/runmirror/pkg/thumbcache"
	"github.com/0xmhha/runmirror/pkg/watcher"
)

// cacheOpenTimeout bounds waiting for another process holding the cache.
const cacheOpenTimeout = time.Second

// app carries the global flags shared by all commands.
type app struct {
	configPath string
	root       string
	out        io.Writer
}

// loadConfig loads configuration and applies the -root flag.
func (a *app) loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader(a.configPath).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if a.root != "" {
		cfg.Root = a.root
	}
	return cfg, nil
}

// newLogger creates the logger described by cfg.
func newLogger(cfg *config.Config) logger.Logger {
	return logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Output: cfg.Logging.Output,
		Format: cfg.Logging.Format,
	})
}

// openCache opens the configured thumbnail cache.
func openCache(cfg *config.Config) (thumbcache.Cache, error) {
	switch {
	case cfg.Cache.Path != "":
		cache, err := thumbcache.NewBolt(cfg.Cache.Path, cacheOpenTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to open thumbnail cache: %w", err)
		}
		return cache, nil
	case cfg.Cache.Size > 0:
		return thumbcache.NewMemory(cfg.Cache.Size)
	default:
		return thumbcache.Nop(), nil
	}
}

// watchConfig translates the watch section. A zero debounce disables
// coalescing.
func watchConfig(cfg *config.Config) watcher.Config {
	debounce := cfg.Watch.Debounce
	if debounce == 0 {
		debounce = -1
	}

	return watcher.Config{
		DebounceInterval:        debounce,
		QueueSize:               cfg.Watch.QueueSize,
		CircuitBreakerThreshold: cfg.Watch.CircuitBreakerThreshold,
	}
}

// mirrorOptions translates configuration into mirror options.
func mirrorOptions(cfg *config.Config, log logger.Logger, cache thumbcache.Cache) []mirror.Option {
	return []mirror.Option{
		mirror.WithLogger(log),
		mirror.WithCache(cache),
		mirror.WithExtract(extract.Config{
			TextLength:    cfg.Truncation.TextLength,
			LogLines:      cfg.Truncation.LogLines,
			ThumbnailSize: cfg.Images.ThumbnailSize,
			PublicPrefix:  cfg.Images.PublicPrefix,
			MaxFileSize:   cfg.Images.MaxFileSize,
		}),
		mirror.WithScan(scanner.Config{
			Workers: cfg.Scan.Workers,
			Store:   store.Config{ReferenceURL: cfg.API.ReferenceURL},
		}),
		mirror.WithWatch(watchConfig(cfg)),
	}
}

// outputFlags are shared by scan and watch.
type outputFlags struct {
	format     string
	compact    bool
	timestamps bool
}

func parseOutputFlags(name string, args []string) (outputFlags, error) {
	var o outputFlags

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&o.format, "format", "table", "output format (table, json, simple)")
	fs.BoolVar(&o.compact, "compact", false, "compact output")
	fs.BoolVar(&o.timestamps, "timestamps", false, "show change times")

	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() > 0 {
		return o, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return o, nil
}

func (o outputFlags) formatter() (display.Formatter, error) {
	format, err := display.ParseFormat(o.format)
	if err != nil {
		return nil, err
	}
	return display.New(display.Config{
		Format:         format,
		Compact:        o.compact,
		ShowTimestamps: o.timestamps,
	}), nil
}

// session is an open configuration, logger and cache.
type session struct {
	cfg   *config.Config
	log   logger.Logger
	cache thumbcache.Cache
	opts  []mirror.Option
}

func (a *app) open() (*session, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}

	log := newLogger(cfg)

	cache, err := openCache(cfg)
	if err != nil {
		return nil, err
	}

	return &session{
		cfg:   cfg,
		log:   log,
		cache: cache,
		opts:  mirrorOptions(cfg, log, cache),
	}, nil
}

func (s *session) close() {
	if err := s.cache.Close(); err != nil {
		s.log.Error("failed to close thumbnail cache", "error", err)
	}
}

// runScanCommand runs the scan command.
func (a *app) runScanCommand(ctx context.Context, args []string) error {
	o, err := parseOutputFlags("scan", args)
	if err != nil {
		return err
	}
	formatter, err := o.formatter()
	if err != nil {
		return err
	}

	s, err := a.open()
	if err != nil {
		return err
	}
	defer s.close()

	st, err := mirror.Scan(ctx, s.cfg.Root, s.opts...)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	return formatter.FormatSnapshot(a.out, st.Snapshot())
}

// runWatchCommand runs the watch command until ctx is done.
func (a *app) runWatchCommand(ctx context.Context, args []string) error {
	o, err := parseOutputFlags("watch", args)
	if err != nil {
		return err
	}
	formatter, err := o.formatter()
	if err != nil {
		return err
	}

	s, err := a.open()
	if err != nil {
		return err
	}
	defer s.close()

	st, stop, err := mirror.Open(ctx, s.cfg.Root, s.opts...)
	if err != nil {
		return fmt.Errorf("watch failed: %w", err)
	}
	defer func() {
		if err := stop(); err != nil {
			s.log.Error("failed to stop watching", "error", err)
		}
	}()

	updates, unsubscribe := st.Subscribe()
	defer unsubscribe()

	if err := formatter.FormatSnapshot(a.out, st.Snapshot()); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-updates:
			if !ok {
				return nil
			}
			if err := formatter.FormatUpdate(a.out, n, st.Snapshot()); err != nil {
				return err
			}
		}
	}
}
