// Package cache provides a process-wide TTL cache service.
//
// The cache is constructed once per process and injected into the components
// that need it. Cached values are pure functions of immutable upstream
// content, so last-writer-wins under concurrent access only costs a redundant
// recomputation, never an inconsistency.
package cache

import (
	"sync"
	"time"
)

// entry holds one cached value with its write timestamp.
type entry[T any] struct {
	value    T
	storedAt time.Time
}

// Cache is a string-keyed TTL cache.
type Cache[T any] struct {
	mu      sync.RWMutex
	entries map[string]entry[T]
	ttl     time.Duration

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a cache whose entries expire after ttl.
func New[T any](ttl time.Duration) *Cache[T] {
	return &Cache[T]{
		entries: make(map[string]entry[T]),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached value for key if present and not expired.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.storedAt) > c.ttl {
		var zero T
		return zero, false
	}
	return e.value, true
}

// GetStale returns the cached value for key even if it has expired. Used for
// stale-on-error fallback when the upstream source is unavailable.
func (c *Cache[T]) GetStale(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, refreshing its timestamp.
func (c *Cache[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[T]{value: value, storedAt: c.now()}
}

// Invalidate removes key from the cache.
func (c *Cache[T]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// InvalidateAll removes every entry.
func (c *Cache[T]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[T])
}

// Len returns the number of entries, expired or not.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// SetClock replaces the cache's time source. Tests use this to control
// expiry without sleeping.
func (c *Cache[T]) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}
