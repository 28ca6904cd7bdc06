// Package cache holds the short-lived snapshot and reachability caches consulted before rendering.
package cache

import (
	"sync"
	"time"
)

// DefaultMaxEntries bounds each cache before it is compacted.
const DefaultMaxEntries = 100

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// TTL is a concurrency-safe map whose entries go stale after a fixed duration.
// Stale entries are ignored on read rather than evicted; once the map grows past
// maxEntries the next Put clears it entirely.
type TTL[V any] struct {
	mu         sync.RWMutex
	entries    map[string]entry[V]
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// NewTTL builds a TTL map. A nil now uses time.Now.
func NewTTL[V any](ttl time.Duration, maxEntries int, now func() time.Time) *TTL[V] {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if now == nil {
		now = time.Now
	}
	return &TTL[V]{
		entries:    make(map[string]entry[V]),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        now,
	}
}

// Get returns the value for key when it is still fresh.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.now().Sub(e.storedAt) >= c.ttl {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put stores value under key, stamping it with the current time.
func (c *TTL[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.maxEntries {
		if _, exists := c.entries[key]; !exists {
			clear(c.entries)
		}
	}
	c.entries[key] = entry[V]{value: value, storedAt: c.now()}
}

// Len returns the number of stored entries, fresh or stale.
func (c *TTL[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
