package thumbcache

import "errors"

// Common errors returned by the cache.
var (
	// ErrCacheClosed is returned when writing to a closed cache.
	ErrCacheClosed = errors.New("thumbnail cache is closed")
)
