// Package thumbcache memoizes decoded image metadata and thumbnails.
//
// Decoding and re-encoding an image is the most expensive part of
// extraction. Entries are keyed by path, size and modification time, so a
// file that has not changed since the last scan is never decoded again, even
// across restarts when the bolt backend is used. Only successful decodes are
// cached; a partially written image is retried on its next event.
//
// Example usage:
//
//	cache, err := thumbcache.NewBolt("~/.cache/runmirror/thumbs.db", time.Second)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cache.Close()
package thumbcache

import "time"

// Key identifies one version of an image file.
type Key struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Entry is the cached decode result.
type Entry struct {
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Frames  int    `json:"frames,omitempty"`
	DataURI string `json:"data_uri"`
}

// Cache stores decode results.
type Cache interface {
	// Get returns the entry for key if present.
	Get(key Key) (Entry, bool)

	// Put stores the entry for key.
	Put(key Key, entry Entry) error

	// Close releases resources held by the cache.
	Close() error
}
