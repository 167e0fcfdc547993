package identity

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of usernames the FormatCache remembers.
const DefaultCacheSize = 200

// CacheEntry records the login name format that last worked for a username.
type CacheEntry struct {
	Key        string
	Format     Format
	Updated    time.Time
	Generation uint64
}

// FormatCache is a bounded, least-recently-used map from lowercased username to the
// format that last authenticated it. Only UPN and down-level formats are stored.
type FormatCache struct {
	mu      sync.Mutex // serializes the compare-and-store in Put, and Purge
	cache   *lru.Cache[string, CacheEntry]
	purging atomic.Bool
}

// NewFormatCache creates a cache holding at most size entries. onEvict, when set, is
// called for each entry dropped to make room; Purge does not call it.
func NewFormatCache(size int, onEvict func(key string, entry CacheEntry)) (*FormatCache, error) {
	if size <= 0 {
		return nil, fmt.Errorf("format cache size must be positive, got %d", size)
	}

	fc := &FormatCache{}

	var (
		c   *lru.Cache[string, CacheEntry]
		err error
	)
	if onEvict != nil {
		c, err = lru.NewWithEvict(size, func(key string, entry CacheEntry) {
			if !fc.purging.Load() {
				onEvict(key, entry)
			}
		})
	} else {
		c, err = lru.New[string, CacheEntry](size)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create format cache: %w", err)
	}

	fc.cache = c
	return fc, nil
}

// Get returns the remembered entry for key and marks it most recently used.
func (c *FormatCache) Get(key string) (CacheEntry, bool) {
	return c.cache.Get(key)
}

// Peek returns the remembered entry without touching its recency.
func (c *FormatCache) Peek(key string) (CacheEntry, bool) {
	return c.cache.Peek(key)
}

// Put records format for key. The write is rejected, and false returned, when format is
// unclassified or the stored entry comes from a newer resolution than generation.
func (c *FormatCache) Put(key string, format Format, generation uint64) bool {
	if format != FormatUPN && format != FormatDownLevel {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.cache.Peek(key); ok && existing.Generation > generation {
		return false
	}

	c.cache.Add(key, CacheEntry{
		Key:        key,
		Format:     format,
		Updated:    time.Now(),
		Generation: generation,
	})
	return true
}

// Len returns the number of remembered usernames.
func (c *FormatCache) Len() int {
	return c.cache.Len()
}

// Keys returns the remembered usernames from least to most recently used.
func (c *FormatCache) Keys() []string {
	return c.cache.Keys()
}

// Purge forgets every entry. Purged entries are not reported as evictions.
func (c *FormatCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.purging.Store(true)
	defer c.purging.Store(false)
	c.cache.Purge()
}
