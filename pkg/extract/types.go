// Package extract turns artifact files into store payloads.
//
// Every supported file type has an extractor. Extractors never fail the
// caller: a file that cannot be read or parsed simply yields no results, and
// the reason is logged at debug level. This matters for the live watcher,
// which regularly sees files that are still being written.
//
// Example usage:
//
//	ex := extract.New(extract.Config{Root: "/runs"}, afero.NewOsFs(), thumbcache.Nop(), logger.Default())
//	for _, r := range ex.Extract("/runs/exp1/3/loss.json", filetype.JSON) {
//	    fmt.Println(r.Kind, r.Truncate)
//	}
package extract

import "github.com/0xmhha/runmirror/pkg/coord"

// Default limits.
const (
	// DefaultTextLength is the rune count above which texts and markdown
	// are truncated.
	DefaultTextLength = 1024

	// DefaultLogLines is the line count above which logs are truncated.
	DefaultLogLines = 100

	// DefaultThumbnailSize bounds both thumbnail dimensions in pixels.
	DefaultThumbnailSize = 40

	// DefaultPublicPrefix is prepended to image sources.
	DefaultPublicPrefix = "/data"

	// DefaultMaxFileSize is the largest file that will be read.
	DefaultMaxFileSize = 100 * 1024 * 1024
)

// Config contains extractor configuration.
type Config struct {
	// Root is the watched directory. Image sources are relative to it.
	Root string

	// TextLength is the truncation threshold for texts and markdown.
	// Default: 1024
	TextLength int

	// LogLines is the truncation threshold for logs.
	// Default: 100
	LogLines int

	// ThumbnailSize bounds the thumbnail width and height.
	// Default: 40
	ThumbnailSize int

	// PublicPrefix is the URL prefix under which the root is served.
	// Default: /data
	PublicPrefix string

	// MaxFileSize makes larger files unreadable.
	// Default: 100MB
	MaxFileSize int64
}

// Policy decides how a result interacts with an existing value.
type Policy int

const (
	// PolicyOverwrite always replaces the existing value.
	PolicyOverwrite Policy = iota

	// PolicyKeepSameSource replaces the existing image only when it is
	// absent or was produced from a different source.
	PolicyKeepSameSource
)

// Result is one payload destined for a leaf of the store.
type Result struct {
	Kind     coord.Kind
	Value    any
	Truncate bool
	Policy   Policy
}
