// Package cache provides a thread-safe in-memory cache with TTL expiry and
// LRU eviction.
//
//	c := cache.New[[]float32](time.Hour, 10000)
//	c.Set(key, vec)
//	vec, ok := c.Get(key)
package cache

import (
	"sync"
	"time"
)

// Observer receives hit and miss notifications.
type Observer interface {
	Hit()
	Miss()
}

type entry[V any] struct {
	value        V
	expiresAt    time.Time
	lastAccessed time.Time
}

// TTLCache maps string keys to values of type V.
type TTLCache[V any] struct {
	mu         sync.RWMutex
	entries    map[string]*entry[V]
	ttl        time.Duration
	maxEntries int
	observer   Observer
	now        func() time.Time
}

// New creates a cache. ttl <= 0 disables expiry and maxEntries <= 0
// disables eviction.
func New[V any](ttl time.Duration, maxEntries int) *TTLCache[V] {
	return &TTLCache[V]{
		entries:    make(map[string]*entry[V]),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// SetObserver installs a hit/miss observer.
func (c *TTLCache[V]) SetObserver(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = o
}

// Set stores value under key, evicting the least recently used entry when
// the cache is full.
func (c *TTLCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictLRU()
	}

	e := &entry[V]{value: value, lastAccessed: now}
	if c.ttl > 0 {
		e.expiresAt = now.Add(c.ttl)
	}
	c.entries[key] = e
}

// Get returns the value for key if present and not expired. Expired entries
// are removed.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	var zero V

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.miss()
		return zero, false
	}
	now := c.now()
	if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
		delete(c.entries, key)
		c.miss()
		return zero, false
	}
	e.lastAccessed = now
	if c.observer != nil {
		c.observer.Hit()
	}
	return e.value, true
}

// Delete removes key. It is a no-op when key is absent.
func (c *TTLCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of stored entries, including expired ones not yet
// collected.
func (c *TTLCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear removes all entries.
func (c *TTLCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry[V])
}

func (c *TTLCache[V]) miss() {
	if c.observer != nil {
		c.observer.Miss()
	}
}

// evictLRU removes the least recently used entry. Caller holds the write lock.
func (c *TTLCache[V]) evictLRU() {
	var (
		oldestKey  string
		oldestTime time.Time
		first      = true
	)
	for k, e := range c.entries {
		if first || e.lastAccessed.Before(oldestTime) {
			oldestKey, oldestTime, first = k, e.lastAccessed, false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}
