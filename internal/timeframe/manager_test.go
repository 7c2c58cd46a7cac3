package timeframe

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantsignals/signalsd/internal/cache"
	"github.com/quantsignals/signalsd/internal/errs"
	"github.com/quantsignals/signalsd/internal/instrument"
)

type fakeFetcher struct {
	calls  atomic.Int64
	points []Point
	err    error
}

func (f *fakeFetcher) FetchBase(_ context.Context, _ instrument.Key, _ SignalType, _, _ time.Time) ([]Point, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.points, nil
}

func managerFixture(t *testing.T) (*Manager, *fakeFetcher, time.Time) {
	t.Helper()
	start := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{
		points: minutePoints(start, []float64{100, 101, 99, 100, 102}, []float64{10, 20, 30, 40, 50}),
	}
	return NewManager(fetcher, cache.NewTTLCache(100), nil), fetcher, start
}

func TestManagerGetAggregatesAndCaches(t *testing.T) {
	m, fetcher, start := managerFixture(t)
	key := instrument.MustParse("NSE@NIFTY@EQ")
	tf, _ := Parse("5m")
	ctx := context.Background()

	series, err := m.Get(ctx, key, SignalIndicators, tf, start, start.Add(5*time.Minute), nil)
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, 102.0, series[0].Fields["close"])
	assert.Equal(t, int64(1), fetcher.calls.Load())

	// Same fingerprint within TTL: served from cache, no second fetch.
	again, err := m.Get(ctx, key, SignalIndicators, tf, start, start.Add(5*time.Minute), nil)
	require.NoError(t, err)
	assert.Equal(t, series, again)
	assert.Equal(t, int64(1), fetcher.calls.Load())

	// A different range is a different fingerprint.
	_, err = m.Get(ctx, key, SignalIndicators, tf, start, start.Add(10*time.Minute), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), fetcher.calls.Load())
}

func TestManagerEmptyUpstreamYieldsEmptySeries(t *testing.T) {
	fetcher := &fakeFetcher{points: nil}
	m := NewManager(fetcher, cache.NewTTLCache(100), nil)
	tf, _ := Parse("5m")

	series, err := m.Get(context.Background(), instrument.MustParse("NSE@NIFTY@EQ"),
		SignalGreeks, tf, time.Unix(0, 0), time.Unix(3600, 0), nil)
	require.NoError(t, err)
	assert.Empty(t, series)
}

func TestManagerPropagatesTransportFailure(t *testing.T) {
	fetcher := &fakeFetcher{err: errs.ServiceUnavailable("ticker down")}
	m := NewManager(fetcher, cache.NewTTLCache(100), nil)
	tf, _ := Parse("5m")

	_, err := m.Get(context.Background(), instrument.MustParse("NSE@NIFTY@EQ"),
		SignalGreeks, tf, time.Unix(0, 0), time.Unix(3600, 0), nil)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindServiceUnavailable))
}

func TestManagerValidation(t *testing.T) {
	m, _, start := managerFixture(t)
	key := instrument.MustParse("NSE@NIFTY@EQ")
	tf, _ := Parse("5m")
	ctx := context.Background()

	_, err := m.Get(ctx, key, SignalType("candles"), tf, start, start.Add(time.Hour), nil)
	assert.True(t, errs.IsKind(err, errs.KindValidation))

	_, err = m.Get(ctx, key, SignalGreeks, Spec{Kind: Custom, Minutes: 1441}, start, start.Add(time.Hour), nil)
	assert.True(t, errs.IsKind(err, errs.KindValidation))

	_, err = m.Get(ctx, key, SignalGreeks, tf, start.Add(time.Hour), start, nil)
	assert.True(t, errs.IsKind(err, errs.KindValidation))
}

func TestManagerListTimeframes(t *testing.T) {
	m, _, start := managerFixture(t)
	key := instrument.MustParse("NSE@NIFTY@EQ")
	ctx := context.Background()

	tags := m.ListTimeframes(key, SignalGreeks)
	assert.Equal(t, []string{"1m", "5m", "15m", "30m", "1h", "4h", "1d"}, tags)

	tf, err := Parse("custom_7")
	require.NoError(t, err)
	_, err = m.Get(ctx, key, SignalGreeks, tf, start, start.Add(time.Hour), nil)
	require.NoError(t, err)

	tags = m.ListTimeframes(key, SignalGreeks)
	assert.Equal(t, []string{"1m", "5m", "custom_7", "15m", "30m", "1h", "4h", "1d"}, tags)

	// Custom tags are scoped to the instrument and signal type they were
	// served for.
	other := m.ListTimeframes(key, SignalIndicators)
	assert.Len(t, other, 7)
}
