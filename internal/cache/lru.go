// Package cache provides a size-bounded LRU cache with per-entry TTL. It
// backs the in-memory explanation cache store, keeping expiry semantics
// identical to the file-backed store while bounding memory.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRUWithTTL is a thread-safe LRU cache whose entries expire after a fixed
// duration. Expired entries are treated as misses on read.
type LRUWithTTL[K comparable, V any] struct {
	cache  *lru.Cache[K, *ttlEntry[V]]
	ttl    time.Duration
	mu     sync.RWMutex
	hits   uint64
	misses uint64
}

type ttlEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// NewLRUWithTTL creates a cache holding at most size entries, each valid for
// ttl after being set. A ttl of 0 disables expiration.
func NewLRUWithTTL[K comparable, V any](size int, ttl time.Duration) (*LRUWithTTL[K, V], error) {
	c, err := lru.New[K, *ttlEntry[V]](size)
	if err != nil {
		return nil, err
	}

	return &LRUWithTTL[K, V]{cache: c, ttl: ttl}, nil
}

// Get retrieves a value. Returns the zero value and false when the key is
// absent or its entry has expired.
func (c *LRUWithTTL[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.cache.Get(key)
	if !ok || (c.ttl > 0 && time.Now().After(entry.expiresAt)) {
		c.misses++
		var zero V
		return zero, false
	}

	c.hits++
	return entry.value, true
}

// Set stores a value, evicting the least recently used entry when full.
func (c *LRUWithTTL[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := time.Time{}
	if c.ttl > 0 {
		expiresAt = time.Now().Add(c.ttl)
	}

	c.cache.Add(key, &ttlEntry[V]{value: value, expiresAt: expiresAt})
}

// Delete removes a key.
func (c *LRUWithTTL[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Remove(key)
}

// Len returns the current entry count, expired entries included.
func (c *LRUWithTTL[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.cache.Len()
}

// Clear removes all entries.
func (c *LRUWithTTL[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Purge()
}

// Stats holds hit/miss counters for observability.
type Stats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Size    int     `json:"size"`
	HitRate float64 `json:"hit_rate"`
}

// Stats returns current counters.
func (c *LRUWithTTL[K, V]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := c.hits + c.misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}

	return Stats{
		Hits:    c.hits,
		Misses:  c.misses,
		Size:    c.cache.Len(),
		HitRate: hitRate,
	}
}
