package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCacheSetGet(t *testing.T) {
	c := NewTTLCache(10)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k1", []byte("payload"), time.Minute))

	got, ok := c.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), got)

	_, ok = c.Get(ctx, "absent")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRatio(), 1e-9)
}

func TestTTLCacheExpiry(t *testing.T) {
	c := NewTTLCache(10)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", []byte("v"), 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get(ctx, "short")
	assert.False(t, ok)

	// Stale reads still see the expired payload until the sweep runs.
	stale, ok := c.GetStale(ctx, "short")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), stale)

	assert.Equal(t, 1, c.Sweep())
	_, ok = c.GetStale(ctx, "short")
	assert.False(t, ok)
}

func TestTTLCacheEvictsLRUAtCapacity(t *testing.T) {
	c := NewTTLCache(2)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Minute))

	// Touch "a" so "b" becomes the LRU victim.
	_, ok := c.Get(ctx, "a")
	require.True(t, ok)

	require.NoError(t, c.Set(ctx, "c", []byte("3"), time.Minute))

	_, ok = c.Get(ctx, "b")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestTTLCacheCopiesPayload(t *testing.T) {
	c := NewTTLCache(10)
	ctx := context.Background()

	src := []byte("original")
	require.NoError(t, c.Set(ctx, "k", src, time.Minute))
	src[0] = 'X'

	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("original"), got)
}

func TestFingerprintDeterministic(t *testing.T) {
	a := Fingerprint("NSE@NIFTY@EQ", "greeks", "5m", "1000", "2000")
	b := Fingerprint("NSE@NIFTY@EQ", "greeks", "5m", "1000", "2000")
	c := Fingerprint("NSE@NIFTY@EQ", "greeks", "15m", "1000", "2000")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32)
}

func TestTTLTiers(t *testing.T) {
	assert.Equal(t, 60*time.Second, TTLForMinutes(1))
	assert.Equal(t, 300*time.Second, TTLForMinutes(5))
	assert.Equal(t, 900*time.Second, TTLForMinutes(15))
	assert.Equal(t, 1800*time.Second, TTLForMinutes(30))
	assert.Equal(t, 3600*time.Second, TTLForMinutes(60))
	assert.Equal(t, 14400*time.Second, TTLForMinutes(240))
	assert.Equal(t, 86400*time.Second, TTLForMinutes(1440))
	assert.Equal(t, 300*time.Second, TTLForMinutes(7), "custom timeframe uses default tier")
}
