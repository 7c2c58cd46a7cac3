// Package facade is the single inward-facing gateway to historical data.
// Every component that needs upstream history goes through it, so equal
// requests collapse into one outbound call.
package facade

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/quantsignals/signalsd/internal/cache"
	"github.com/quantsignals/signalsd/internal/errs"
	"github.com/quantsignals/signalsd/internal/instrument"
	"github.com/quantsignals/signalsd/internal/market"
	"github.com/quantsignals/signalsd/internal/moneyness"
	"github.com/quantsignals/signalsd/internal/timeframe"
)

// SeriesSource serves aggregated signal series; the timeframe manager
// implements it.
type SeriesSource interface {
	Get(ctx context.Context, key instrument.Key, st timeframe.SignalType, tf timeframe.Spec, from, to time.Time, fields []string) ([]timeframe.Point, error)
}

// BarSource serves raw OHLCV history; the ticker client implements it.
type BarSource interface {
	Historical(ctx context.Context, symbol string, tf timeframe.Spec, periods int, start, end *time.Time) ([]market.Bar, error)
}

// RangeAgg selects how PriceRange folds the bars.
type RangeAgg string

const (
	AggMax  RangeAgg = "max"  // highest high
	AggMin  RangeAgg = "min"  // lowest low
	AggMean RangeAgg = "mean" // mean close
)

// Facade deduplicates concurrent equal requests through a singleflight
// group keyed by request fingerprint.
type Facade struct {
	series SeriesSource
	bars   BarSource
	group  singleflight.Group

	mu     sync.Mutex
	closed bool
}

// New builds a facade. Most callers want the process-wide instance from
// Init/Instance instead.
func New(series SeriesSource, bars BarSource) *Facade {
	return &Facade{series: series, bars: bars}
}

func (f *Facade) guard() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errs.ServiceUnavailable("historical data facade is shut down")
	}
	return nil
}

// TimeframeSeries returns the aggregated series for one instrument and
// signal type. Concurrent equal calls share one upstream request.
func (f *Facade) TimeframeSeries(ctx context.Context, key instrument.Key, st timeframe.SignalType, tf timeframe.Spec, from, to time.Time) ([]timeframe.Point, error) {
	if err := f.guard(); err != nil {
		return nil, err
	}
	fp := cache.Fingerprint("facade", "series", key.String(), string(st), tf.String(),
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	reqID := uuid.NewString()

	v, err, shared := f.group.Do(fp, func() (any, error) {
		log.Debug().Str("request_id", reqID).Str("instrument", key.String()).
			Str("timeframe", tf.String()).Msg("facade series fetch")
		return f.series.Get(ctx, key, st, tf, from, to, nil)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Debug().Str("request_id", reqID).Msg("facade series request deduplicated")
	}
	return v.([]timeframe.Point), nil
}

// MoneynessSeries is reserved: the upstream exposes no moneyness history
// yet, so the call reports unavailability instead of inventing a body.
func (f *Facade) MoneynessSeries(ctx context.Context, underlying instrument.Key, cohort moneyness.Cohort, tf timeframe.Spec, from, to time.Time) ([]timeframe.Point, error) {
	if err := f.guard(); err != nil {
		return nil, err
	}
	return nil, errs.ServiceUnavailable(
		"moneyness history for %s cohort %s is not yet served by the upstream", underlying.String(), cohort)
}

// PriceRange folds the bars over [from, to] with the requested aggregate.
func (f *Facade) PriceRange(ctx context.Context, underlying instrument.Key, from, to time.Time, agg RangeAgg) (float64, error) {
	if err := f.guard(); err != nil {
		return 0, err
	}
	switch agg {
	case AggMax, AggMin, AggMean:
	default:
		return 0, errs.Validation("unknown range aggregate %q", agg)
	}

	fp := cache.Fingerprint("facade", "range", underlying.String(), string(agg),
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))

	v, err, _ := f.group.Do(fp, func() (any, error) {
		tf, _ := timeframe.Parse("1d")
		periods := int(to.Sub(from).Hours()/24) + 1
		bars, err := f.bars.Historical(ctx, underlying.Symbol, tf, periods, &from, &to)
		if err != nil {
			return nil, err
		}
		if len(bars) == 0 {
			return nil, errs.DataAccess("no bars for %s in [%s, %s]",
				underlying.String(), from.Format("2006-01-02"), to.Format("2006-01-02"))
		}
		return foldBars(bars, agg), nil
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

func foldBars(bars []market.Bar, agg RangeAgg) float64 {
	xs := make([]float64, len(bars))
	for i, b := range bars {
		switch agg {
		case AggMax:
			xs[i] = b.High
		case AggMin:
			xs[i] = b.Low
		default:
			xs[i] = b.Close
		}
	}
	switch agg {
	case AggMax:
		return floats.Max(xs)
	case AggMin:
		return floats.Min(xs)
	default:
		return stat.Mean(xs, nil)
	}
}

// HistoricalSpotPrice is explicitly unsupported: the upstream keeps no
// per-timestamp spot snapshots. The error names the limitation so callers
// never mistake it for a transient failure.
func (f *Facade) HistoricalSpotPrice(ctx context.Context, key instrument.Key, at time.Time) (float64, error) {
	if err := f.guard(); err != nil {
		return 0, err
	}
	return 0, errs.DataAccess(
		"historical spot price lookup is unsupported: the ticker service keeps no spot snapshot for %s at %s; use PriceRange over a window instead",
		key.String(), strconv.FormatInt(at.Unix(), 10))
}

// Close marks the facade shut down. In-flight singleflight calls finish.
func (f *Facade) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

// Process-wide instance with an explicit lifecycle.
var (
	globalMu sync.Mutex
	global   *Facade
)

// Init installs the process-wide facade. A second Init without Shutdown is
// a configuration error.
func Init(series SeriesSource, bars BarSource) error {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global != nil {
		return errs.Configuration("historical data facade already initialised")
	}
	global = New(series, bars)
	return nil
}

// Instance returns the process-wide facade installed by Init.
func Instance() (*Facade, error) {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		return nil, errs.Configuration("historical data facade not initialised")
	}
	return global, nil
}

// Shutdown closes and removes the process-wide facade.
func Shutdown() {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global != nil {
		global.Close()
		global = nil
	}
}
