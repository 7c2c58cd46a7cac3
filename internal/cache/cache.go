// Package cache provides the fingerprint-keyed payload caches: a TTL
// in-memory cache with LRU eviction and an optional redis backend. Cache
// failures are best-effort by contract; callers log and proceed.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Cache is the payload cache contract shared by the memory and redis
// implementations.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Stats() Stats
}

// Stats summarizes cache performance.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Entries   int64 `json:"entries"`
}

// HitRatio is hits over total lookups, 0 when idle.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Fingerprint derives the deterministic cache/dedup key for a request from
// its identifying parts. Equal parts always produce equal fingerprints.
func Fingerprint(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(h[:16])
}

// TTLForMinutes returns the cache TTL tier for an aggregation timeframe.
func TTLForMinutes(minutes int) time.Duration {
	switch minutes {
	case 1:
		return 60 * time.Second
	case 5:
		return 300 * time.Second
	case 15:
		return 900 * time.Second
	case 30:
		return 1800 * time.Second
	case 60:
		return 3600 * time.Second
	case 240:
		return 14400 * time.Second
	case 1440:
		return 86400 * time.Second
	default:
		return 300 * time.Second
	}
}

// Timestamp formats a time for fingerprint parts.
func Timestamp(t time.Time) string {
	return fmt.Sprintf("%d", t.UTC().Unix())
}
