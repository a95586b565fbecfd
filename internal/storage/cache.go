package storage

import (
	"sync"
	"time"

	"github.com/franz/music-indexer/internal/model"
)

// Cache is a read-through cache of parsed band metadata keyed by the
// metadata file path. Entries expire after a TTL and are dropped when
// the file's mtime advances past the cached one. A zero TTL disables
// caching entirely.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry

	hits   int64
	misses int64
}

type cacheEntry struct {
	band     *model.Band
	mtime    time.Time
	loadedAt time.Time
}

// NewCache creates a cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: map[string]cacheEntry{},
	}
}

// Get returns a copy of the cached band when the entry is fresh:
// younger than the TTL and not invalidated by a newer file mtime.
func (c *Cache) Get(path string, mtime time.Time) (*model.Band, bool) {
	if c == nil || c.ttl <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[path]
	if !ok {
		c.misses++
		return nil, false
	}
	if time.Since(e.loadedAt) > c.ttl || mtime.After(e.mtime) {
		delete(c.entries, path)
		c.misses++
		return nil, false
	}
	c.hits++
	return e.band.Clone(), true
}

// Put stores a copy of the band under path.
func (c *Cache) Put(path string, band *model.Band, mtime time.Time) {
	if c == nil || c.ttl <= 0 || band == nil {
		return
	}
	clone := band.Clone()
	if clone == nil {
		return
	}
	c.mu.Lock()
	c.entries[path] = cacheEntry{band: clone, mtime: mtime, loadedAt: time.Now()}
	c.mu.Unlock()
}

// Invalidate drops the entry for path.
func (c *Cache) Invalidate(path string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.entries, path)
	c.mu.Unlock()
}

// Clear drops all entries.
func (c *Cache) Clear() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = map[string]cacheEntry{}
	c.mu.Unlock()
}

// Stats returns hit and miss counters.
func (c *Cache) Stats() (hits, misses int64) {
	if c == nil {
		return 0, 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
