package thumbcache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketThumbnails = []byte("thumbnails") // path|size|mtime -> Entry
)

// encodeKey flattens a key into a bolt key.
func encodeKey(k Key) []byte {
	return []byte(k.Path + "|" + strconv.FormatInt(k.Size, 10) + "|" + strconv.FormatInt(k.ModTime.UnixNano(), 10))
}

// boltCache implements Cache using BoltDB.
type boltCache struct {
	db *bolt.DB

	mu     sync.RWMutex
	closed bool
}

// NewBolt opens (or creates) a bolt-backed cache at path.
//
// Parameters:
//   - path: Database file path, "~" is expanded
//   - timeout: How long to wait for the file lock
//
// Returns:
//   - Configured Cache
//   - Error if the database cannot be opened
func NewBolt(path string, timeout time.Duration) (Cache, error) {
	if timeout == 0 {
		timeout = time.Second
	}

	path = expandHome(path)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open thumbnail cache: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, createErr := tx.CreateBucketIfNotExists(bucketThumbnails)
		return createErr
	}); err != nil {
		_ = db.Close() // nolint:errcheck // already failing
		return nil, fmt.Errorf("failed to create thumbnails bucket: %w", err)
	}

	return &boltCache{db: db}, nil
}

// Get implements Cache.Get.
func (c *boltCache) Get(key Key) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return Entry{}, false
	}

	var (
		entry Entry
		found bool
	)
	_ = c.db.View(func(tx *bolt.Tx) error { // nolint:errcheck // misses are not errors
		data := tx.Bucket(bucketThumbnails).Get(encodeKey(key))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &entry); err != nil {
			return nil
		}
		found = true
		return nil
	})

	return entry, found
}

// Put implements Cache.Put.
func (c *boltCache) Put(key Key, entry Entry) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrCacheClosed
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketThumbnails)

		// Older versions of the same file are dead weight.
		prefix := []byte(key.Path + "|")
		var stale [][]byte
		cur := b.Cursor()
		for k, _ := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = cur.Next() {
			stale = append(stale, append([]byte(nil), k...))
		}
		for _, k := range stale {
			if delErr := b.Delete(k); delErr != nil {
				return fmt.Errorf("failed to evict stale entry: %w", delErr)
			}
		}

		if putErr := b.Put(encodeKey(key), data); putErr != nil {
			return fmt.Errorf("failed to store entry: %w", putErr)
		}
		return nil
	})
}

// Close implements Cache.Close.
func (c *boltCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.db.Close()
}

// memoryCache implements Cache with a bounded LRU.
type memoryCache struct {
	lru *lru.Cache[Key, Entry]
}

// NewMemory creates an in-memory cache holding at most size entries.
func NewMemory(size int) (Cache, error) {
	if size <= 0 {
		size = 512
	}

	l, err := lru.New[Key, Entry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru: %w", err)
	}
	return &memoryCache{lru: l}, nil
}

// Get implements Cache.Get.
func (c *memoryCache) Get(key Key) (Entry, bool) {
	return c.lru.Get(normalize(key))
}

// Put implements Cache.Put.
func (c *memoryCache) Put(key Key, entry Entry) error {
	c.lru.Add(normalize(key), entry)
	return nil
}

// Close implements Cache.Close.
func (c *memoryCache) Close() error {
	c.lru.Purge()
	return nil
}

// normalize strips the monotonic clock so equal instants compare equal.
func normalize(k Key) Key {
	k.ModTime = time.Unix(0, k.ModTime.UnixNano())
	return k
}

type nopCache struct{}

// Nop returns a cache that stores nothing.
func Nop() Cache {
	return nopCache{}
}

func (nopCache) Get(Key) (Entry, bool) { return Entry{}, false }
func (nopCache) Put(Key, Entry) error  { return nil }
func (nopCache) Close() error          { return nil }

// expandHome expands ~ in file paths to the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return homeDir
	}

	return filepath.Join(homeDir, path[2:])
}
