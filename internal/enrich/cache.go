package enrich

import (
	"sync"

	"go.uber.org/atomic"
)

// CacheStats contains cache statistics.
type CacheStats struct {
	Hits   int64
	Misses int64
	Size   int
}

// Cache provides thread-safe caching of hostname lookups. Failed lookups
// are cached as empty names so unresolvable routers are asked only once.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]string
	maxSize int
	hits    *atomic.Int64
	misses  *atomic.Int64
}

// NewCache creates a new cache with the given maximum size.
func NewCache(maxSize int) *Cache {
	return &Cache{
		entries: make(map[string]string),
		maxSize: maxSize,
		hits:    atomic.NewInt64(0),
		misses:  atomic.NewInt64(0),
	}
}

// Get retrieves a hostname from the cache.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.RLock()
	name, ok := c.entries[key]
	c.mu.RUnlock()

	if ok {
		c.hits.Inc()
	} else {
		c.misses.Inc()
	}
	return name, ok
}

// Set stores a hostname in the cache.
func (c *Cache) Set(key, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple eviction: clear half the cache when full
	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		count := 0
		for k := range c.entries {
			delete(c.entries, k)
			count++
			if count >= c.maxSize/2 {
				break
			}
		}
	}

	c.entries[key] = name
}

// Stats returns cache statistics.
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	size := len(c.entries)
	c.mu.RUnlock()

	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   size,
	}
}
