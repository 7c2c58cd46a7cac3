package cache

import (
	"context"
	"sync"
	"time"
)

// TTLCache is the in-memory cache with per-entry expiration and LRU
// eviction at capacity. A background sweep (driven by the process
// maintenance task) removes expired entries.
type TTLCache struct {
	mu         sync.RWMutex
	entries    map[string]*ttlEntry
	maxEntries int64
	stats      Stats
}

type ttlEntry struct {
	payload  []byte
	expires  time.Time
	accessed time.Time
}

// NewTTLCache creates a TTL cache holding at most maxEntries payloads.
func NewTTLCache(maxEntries int64) *TTLCache {
	return &TTLCache{
		entries:    make(map[string]*ttlEntry),
		maxEntries: maxEntries,
	}
}

// Get returns the payload for key if present and unexpired.
func (c *TTLCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.expires) {
		c.stats.Misses++
		return nil, false
	}
	entry.accessed = time.Now()
	c.stats.Hits++
	return entry.payload, true
}

// GetStale returns the payload for key even if expired. Used by the circuit
// breaker, which prefers a stale cached value over rejection.
func (c *TTLCache) GetStale(_ context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return entry.payload, true
}

// Set stores a payload with the given TTL, evicting the least recently
// accessed entry when at capacity.
func (c *TTLCache) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && int64(len(c.entries)) >= c.maxEntries {
		c.evictLRU()
	}
	c.entries[key] = &ttlEntry{
		payload:  append([]byte(nil), val...),
		expires:  time.Now().Add(ttl),
		accessed: time.Now(),
	}
	return nil
}

// Stats returns a snapshot of cache counters.
func (c *TTLCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := c.stats
	s.Entries = int64(len(c.entries))
	return s
}

// Sweep removes expired entries and returns how many were dropped. Called
// from the background maintenance task.
func (c *TTLCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	dropped := 0
	for key, entry := range c.entries {
		if now.After(entry.expires) {
			delete(c.entries, key)
			dropped++
		}
	}
	return dropped
}

// Clear drops all entries and resets counters.
func (c *TTLCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*ttlEntry)
	c.stats = Stats{}
}

// evictLRU removes the least recently accessed entry. Caller holds the
// write lock.
func (c *TTLCache) evictLRU() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range c.entries {
		if oldestKey == "" || entry.accessed.Before(oldestTime) {
			oldestTime = entry.accessed
			oldestKey = key
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
		c.stats.Evictions++
	}
}
