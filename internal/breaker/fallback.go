package breaker

import (
	"sync"
	"time"
)

// fallbackCache holds recent successful results for degraded answers while
// the breaker is open. Entries are keyed by caller-supplied cache keys.
// Stale entries are served in preference to rejection and only removed by
// the sweep.
type fallbackCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]fallbackEntry
}

type fallbackEntry struct {
	value   any
	expires time.Time
}

func newFallbackCache(ttl time.Duration) *fallbackCache {
	return &fallbackCache{ttl: ttl, entries: make(map[string]fallbackEntry)}
}

func (f *fallbackCache) put(key string, value any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = fallbackEntry{value: value, expires: time.Now().Add(f.ttl)}
}

// get returns the entry for key regardless of expiry.
func (f *fallbackCache) get(key string) (any, bool) {
	if key == "" {
		return nil, false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	e, ok := f.entries[key]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// sweep removes entries expired for longer than one extra TTL, bounding
// staleness of degraded answers.
func (f *fallbackCache) sweep() {
	f.mu.Lock()
	defer f.mu.Unlock()
	cutoff := time.Now().Add(-f.ttl)
	for key, e := range f.entries {
		if e.expires.Before(cutoff) {
			delete(f.entries, key)
		}
	}
}
