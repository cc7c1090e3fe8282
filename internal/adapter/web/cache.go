package web

import (
	"sync"
	"time"
)

// Default cache settings.
const (
	DefaultCacheSize = 100
	DefaultCacheTTL  = 5 * time.Minute
)

// cacheEntry holds a cached value with the time it was stored.
type cacheEntry[V any] struct {
	value      V
	insertedAt time.Time
}

// Cache is a bounded TTL cache. When full, inserting a new key evicts the
// oldest-inserted key; reads do not affect eviction order.
type Cache[V any] struct {
	maxEntries int
	ttl        time.Duration
	now        func() time.Time // for testing

	mu      sync.Mutex
	entries map[string]cacheEntry[V]
	order   []string // insertion order, oldest first
}

// NewCache creates a cache holding at most maxEntries values for ttl each.
// Non-positive arguments fall back to DefaultCacheSize and DefaultCacheTTL.
func NewCache[V any](maxEntries int, ttl time.Duration) *Cache[V] {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache[V]{
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
		entries:    make(map[string]cacheEntry[V], maxEntries),
	}
}

// Get returns the value for key if present and younger than the TTL.
// Expired entries are removed.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	entry, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if c.now().Sub(entry.insertedAt) >= c.ttl {
		c.remove(key)
		return zero, false
	}
	return entry.value, true
}

// Set stores value under key. An existing key keeps its insertion position.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		if len(c.entries) >= c.maxEntries && len(c.order) > 0 {
			c.remove(c.order[0])
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = cacheEntry[V]{value: value, insertedAt: c.now()}
}

// Len returns the number of stored entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Keys returns the stored keys in insertion order.
func (c *Cache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

// remove deletes key from the map and the order slice. Caller holds mu.
func (c *Cache[V]) remove(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
