// Package config provides configuration management for runmirror.
//
// Configuration is loaded from multiple sources with the following precedence:
// 1. Command-line flags (highest priority)
// 2. Environment variables
// 3. Configuration file
// 4. Default values (lowest priority)
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Run directory: %s\n", cfg.Root)
package config

import (
	"strings"
	"time"
)

// Config represents the complete application configuration.
//
// Invariants:
// - Root must not be empty
// - Truncation limits and ThumbnailSize must be > 0
// - PublicPrefix must be an absolute URL path
// - ReferenceURL must contain every placeholder
// - QueueSize, CircuitBreakerThreshold and Workers must be > 0
// - Cache.Size must be >= 0.
type Config struct {
	// Run directory to mirror
	Root string `yaml:"root"`

	// Truncation limits for large values
	Truncation TruncationConfig `yaml:"truncation"`

	// Image settings
	Images ImagesConfig `yaml:"images"`

	// API settings
	API APIConfig `yaml:"api"`

	// Watcher settings
	Watch WatchConfig `yaml:"watch"`

	// Scanner settings
	Scan ScanConfig `yaml:"scan"`

	// Thumbnail cache settings
	Cache CacheConfig `yaml:"cache"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging"`
}

// TruncationConfig contains the limits above which values are replaced by
// a reference.
type TruncationConfig struct {
	// Maximum characters of a text or markdown value
	TextLength int `yaml:"text_length"`

	// Maximum lines of a log value
	LogLines int `yaml:"log_lines"`
}

// ImagesConfig contains image-related settings.
type ImagesConfig struct {
	// Longest side of generated thumbnails in pixels
	ThumbnailSize int `yaml:"thumbnail_size"`

	// URL prefix for image sources
	PublicPrefix string `yaml:"public_prefix"`

	// Files larger than this are skipped
	MaxFileSize int64 `yaml:"max_file_size"`
}

// APIConfig contains settings for the references stored in place of
// truncated values.
type APIConfig struct {
	// URL template with {kind}, {name}, {step} and {category}
	ReferenceURL string `yaml:"reference_url"`
}

// WatchConfig contains file watching settings.
type WatchConfig struct {
	// Buffered events before the watcher blocks
	QueueSize int `yaml:"queue_size"`

	// Write coalescing window; negative disables it
	Debounce time.Duration `yaml:"debounce"`

	// Consecutive watcher errors tolerated before giving up
	CircuitBreakerThreshold int `yaml:"circuit_breaker_threshold"`
}

// ScanConfig contains scan settings.
type ScanConfig struct {
	// Concurrent file readers
	Workers int `yaml:"workers"`
}

// CacheConfig contains thumbnail cache settings.
type CacheConfig struct {
	// BoltDB file; empty keeps thumbnails in memory only
	Path string `yaml:"path"`

	// Entries kept by the in-memory cache; 0 disables caching
	Size int `yaml:"size"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `yaml:"level"`

	// Log output destination (stdout, stderr, file path)
	Output string `yaml:"output"`

	// Log format (text, json, auto)
	Format string `yaml:"format"`
}

// referencePlaceholders must all appear in APIConfig.ReferenceURL.
var referencePlaceholders = []string{"{kind}", "{name}", "{step}", "{category}"}

// Validate checks if the configuration satisfies all invariants.
//
// Thread-safety: This method is read-only and thread-safe.
func (c *Config) Validate() error {
	if c.Root == "" {
		return ErrEmptyRoot
	}

	if c.Truncation.TextLength <= 0 {
		return ErrInvalidTextLength
	}
	if c.Truncation.LogLines <= 0 {
		return ErrInvalidLogLines
	}

	if c.Images.ThumbnailSize <= 0 {
		return ErrInvalidThumbnailSize
	}
	if !strings.HasPrefix(c.Images.PublicPrefix, "/") {
		return ErrInvalidPublicPrefix
	}
	if c.Images.MaxFileSize <= 0 {
		return ErrInvalidMaxFileSize
	}

	for _, p := range referencePlaceholders {
		if !strings.Contains(c.API.ReferenceURL, p) {
			return ErrInvalidReferenceURL
		}
	}

	if c.Watch.QueueSize <= 0 {
		return ErrInvalidQueueSize
	}
	if c.Watch.CircuitBreakerThreshold <= 0 {
		return ErrInvalidCircuitBreaker
	}

	if c.Scan.Workers <= 0 {
		return ErrInvalidWorkers
	}

	if c.Cache.Size < 0 {
		return ErrInvalidCacheSize
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Logging.Level] {
		return ErrInvalidLogLevel
	}

	validFormats := map[string]bool{
		"text": true,
		"json": true,
		"auto": true,
	}
	if !validFormats[c.Logging.Format] {
		return ErrInvalidLogFormat
	}

	return nil
}

// Default returns a configuration with default values.
func Default() *Config {
	return &Config{
		Root: "./logs",
		Truncation: TruncationConfig{
			TextLength: 1024,
			LogLines:   100,
		},
		Images: ImagesConfig{
			ThumbnailSize: 40,
			PublicPrefix:  "/data",
			MaxFileSize:   100 << 20,
		},
		API: APIConfig{
			ReferenceURL: "/api/{kind}/{name}/{step}/{category}",
		},
		Watch: WatchConfig{
			QueueSize:               256,
			Debounce:                50 * time.Millisecond,
			CircuitBreakerThreshold: 5,
		},
		Scan: ScanConfig{
			Workers: 4,
		},
		Cache: CacheConfig{
			Path: "",
			Size: 512,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stderr",
			Format: "auto",
		},
	}
}
