package facade

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantsignals/signalsd/internal/errs"
	"github.com/quantsignals/signalsd/internal/instrument"
	"github.com/quantsignals/signalsd/internal/market"
	"github.com/quantsignals/signalsd/internal/moneyness"
	"github.com/quantsignals/signalsd/internal/timeframe"
)

type slowSeries struct {
	calls atomic.Int64
	delay time.Duration
}

func (s *slowSeries) Get(_ context.Context, _ instrument.Key, _ timeframe.SignalType, _ timeframe.Spec, from, _ time.Time, _ []string) ([]timeframe.Point, error) {
	s.calls.Add(1)
	time.Sleep(s.delay)
	return []timeframe.Point{{Timestamp: from, Fields: map[string]float64{"close": 100}}}, nil
}

type fakeBars struct {
	calls atomic.Int64
	bars  []market.Bar
	err   error
}

func (f *fakeBars) Historical(context.Context, string, timeframe.Spec, int, *time.Time, *time.Time) ([]market.Bar, error) {
	f.calls.Add(1)
	return f.bars, f.err
}

func fixtureArgs() (instrument.Key, timeframe.Spec, time.Time, time.Time) {
	key := instrument.MustParse("NSE@NIFTY@EQ")
	tf, _ := timeframe.Parse("5m")
	from := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	return key, tf, from, from.Add(time.Hour)
}

// Two concurrent equal requests share one upstream call.
func TestTimeframeSeriesDeduplicatesConcurrentCalls(t *testing.T) {
	series := &slowSeries{delay: 50 * time.Millisecond}
	f := New(series, &fakeBars{})
	key, tf, from, to := fixtureArgs()

	var wg sync.WaitGroup
	results := make([][]timeframe.Point, 4)
	errors := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errors[i] = f.TimeframeSeries(context.Background(), key, timeframe.SignalGreeks, tf, from, to)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), series.calls.Load())
	for i, pts := range results {
		require.NoError(t, errors[i])
		require.Len(t, pts, 1)
		assert.Equal(t, 100.0, pts[0].Fields["close"])
	}
}

func TestTimeframeSeriesDistinctRequestsDoNotShare(t *testing.T) {
	series := &slowSeries{}
	f := New(series, &fakeBars{})
	key, tf, from, to := fixtureArgs()
	ctx := context.Background()

	_, err := f.TimeframeSeries(ctx, key, timeframe.SignalGreeks, tf, from, to)
	require.NoError(t, err)
	_, err = f.TimeframeSeries(ctx, key, timeframe.SignalIndicators, tf, from, to)
	require.NoError(t, err)
	assert.Equal(t, int64(2), series.calls.Load())
}

func TestMoneynessSeriesUnavailable(t *testing.T) {
	f := New(&slowSeries{}, &fakeBars{})
	key, tf, from, to := fixtureArgs()

	_, err := f.MoneynessSeries(context.Background(), key, moneyness.ATM, tf, from, to)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindServiceUnavailable))
	assert.Contains(t, err.Error(), "moneyness history")
}

func TestPriceRange(t *testing.T) {
	bars := &fakeBars{bars: []market.Bar{
		{High: 105, Low: 98, Close: 100},
		{High: 110, Low: 101, Close: 108},
		{High: 107, Low: 99, Close: 104},
	}}
	f := New(&slowSeries{}, bars)
	key, _, from, to := fixtureArgs()
	ctx := context.Background()

	hi, err := f.PriceRange(ctx, key, from, to, AggMax)
	require.NoError(t, err)
	assert.Equal(t, 110.0, hi)

	lo, err := f.PriceRange(ctx, key, from, to, AggMin)
	require.NoError(t, err)
	assert.Equal(t, 98.0, lo)

	mean, err := f.PriceRange(ctx, key, from, to, AggMean)
	require.NoError(t, err)
	assert.InDelta(t, 104.0, mean, 1e-9)

	_, err = f.PriceRange(ctx, key, from, to, RangeAgg("median"))
	assert.True(t, errs.IsKind(err, errs.KindValidation))
}

func TestPriceRangeNoBars(t *testing.T) {
	f := New(&slowSeries{}, &fakeBars{})
	key, _, from, to := fixtureArgs()

	_, err := f.PriceRange(context.Background(), key, from, to, AggMax)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindDataAccess))
}

func TestHistoricalSpotPriceAlwaysFails(t *testing.T) {
	f := New(&slowSeries{}, &fakeBars{})
	key, _, from, _ := fixtureArgs()

	_, err := f.HistoricalSpotPrice(context.Background(), key, from)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindDataAccess))
	assert.Contains(t, err.Error(), "unsupported")
}

func TestCloseRejectsFurtherCalls(t *testing.T) {
	f := New(&slowSeries{}, &fakeBars{})
	key, tf, from, to := fixtureArgs()
	f.Close()

	_, err := f.TimeframeSeries(context.Background(), key, timeframe.SignalGreeks, tf, from, to)
	assert.True(t, errs.IsKind(err, errs.KindServiceUnavailable))
}

func TestProcessWideLifecycle(t *testing.T) {
	t.Cleanup(Shutdown)
	Shutdown() // reset any prior state

	_, err := Instance()
	assert.True(t, errs.IsKind(err, errs.KindConfiguration))

	require.NoError(t, Init(&slowSeries{}, &fakeBars{}))
	assert.True(t, errs.IsKind(Init(&slowSeries{}, &fakeBars{}), errs.KindConfiguration))

	inst, err := Instance()
	require.NoError(t, err)
	assert.NotNil(t, inst)

	Shutdown()
	_, err = Instance()
	assert.True(t, errs.IsKind(err, errs.KindConfiguration))
}
