// Package mirror keeps a store in sync with a run directory.
//
// Scan builds a store from the directory as it is now. StartWatching then
// applies file system changes to that store incrementally, so that after
// every processed event the store equals what a fresh scan would produce.
// Open does both, watching from before the scan begins.
//
// Example usage:
//
//	st, stop, err := mirror.Open(ctx, "/runs", mirror.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	defer stop()
package mirror

import (
	"github.com/spf13/afero"

	"github.com/0xmhha/runmirror/pkg/extract"
	"github.com/0xmhha/runmirror/pkg/logger"
	"github.com/0xmhha/runmirror/pkg/scanner"
	"github.com/0xmhha/runmirror/pkg/thumbcache"
	"github.com/0xmhha/runmirror/pkg/watcher"
)

// Config collects the settings shared by Scan, StartWatching and Open.
type Config struct {
	// Extract configures file extraction. Root is set from the scanned
	// directory.
	Extract extract.Config

	// Scan configures the initial scan, including the store it creates.
	Scan scanner.Config

	// Watch configures the file system watcher.
	Watch watcher.Config

	// Fs is the filesystem holding the run directory.
	// Default: the OS filesystem. Watching always observes the OS.
	Fs afero.Fs

	// Cache stores generated thumbnails. Default: no caching.
	Cache thumbcache.Cache

	// Logger receives progress and error messages. Default: discard.
	Logger logger.Logger
}

// Option configures Scan, StartWatching and Open.
type Option func(*Config)

// WithExtract sets the extraction settings.
func WithExtract(cfg extract.Config) Option {
	return func(c *Config) {
		c.Extract = cfg
	}
}

// WithScan sets the scanner settings.
func WithScan(cfg scanner.Config) Option {
	return func(c *Config) {
		c.Scan = cfg
	}
}

// WithWatch sets the watcher settings.
func WithWatch(cfg watcher.Config) Option {
	return func(c *Config) {
		c.Watch = cfg
	}
}

// WithFs sets the filesystem.
func WithFs(fsys afero.Fs) Option {
	return func(c *Config) {
		c.Fs = fsys
	}
}

// WithCache sets the thumbnail cache.
func WithCache(cache thumbcache.Cache) Option {
	return func(c *Config) {
		c.Cache = cache
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func newConfig(opts []Option) Config {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.Cache == nil {
		cfg.Cache = thumbcache.Nop()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Noop()
	}
	return cfg
}
