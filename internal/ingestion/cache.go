package ingestion

import (
	"sync"
	"time"
)

// TTLCache holds one value per key. Entries past their TTL are not served by
// Get but remain available through Stale until overwritten.
type TTLCache[V any] struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry[V]
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry[V any] struct {
	value     V
	timestamp time.Time
}

// NewTTLCache creates a cache whose entries are fresh for ttl.
func NewTTLCache[V any](ttl time.Duration, now func() time.Time) *TTLCache[V] {
	if now == nil {
		now = time.Now
	}
	return &TTLCache[V]{
		entries: make(map[string]cacheEntry[V]),
		ttl:     ttl,
		now:     now,
	}
}

// Get returns the value for key if it is still fresh.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || c.now().Sub(entry.timestamp) >= c.ttl {
		var zero V
		return zero, false
	}
	return entry.value, true
}

// Stale returns the last value stored for key regardless of age.
func (c *TTLCache[V]) Stale(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	return entry.value, ok
}

// Set stores value under key, stamped now.
func (c *TTLCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry[V]{value: value, timestamp: c.now()}
}

// Invalidate drops key.
func (c *TTLCache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Prune removes entries older than maxAge.
func (c *TTLCache[V]) Prune(maxAge time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, entry := range c.entries {
		if c.now().Sub(entry.timestamp) > maxAge {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}
