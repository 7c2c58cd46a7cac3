package greeks

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quantsignals/signalsd/internal/breaker"
	"github.com/quantsignals/signalsd/internal/compute"
	"github.com/quantsignals/signalsd/internal/errs"
	"github.com/quantsignals/signalsd/internal/instrument"
	"github.com/quantsignals/signalsd/internal/telemetry"
)

// GreekNames is the full greek set, used when callers do not restrict it.
var GreekNames = []string{"delta", "gamma", "theta", "vega", "rho"}

// OptionRequest is the per-option pricing input. Optional fields are nil
// when absent.
type OptionRequest struct {
	Strike          float64
	Expiry          time.Time
	OptionType      instrument.OptionType
	Volatility      *float64
	MarketPrice     *float64
	UnderlyingPrice *float64 // required for PriceBulk only
}

// OptionGreeks maps greek name (and "iv" when solved) to value. A missing
// greek is simply absent from the map, never an out-of-band number.
type OptionGreeks map[string]float64

// Perf reports batch timing.
type Perf struct {
	ElapsedMs     float64 `json:"elapsed_ms"`
	OptionsPerSec float64 `json:"options_per_sec"`
}

// ChainResult is the result of pricing one chain against a common
// underlying. Results preserve input order, one entry per option.
type ChainResult struct {
	Results []OptionGreeks `json:"results"`
	Perf    Perf           `json:"perf"`
	Method  string         `json:"method"`
}

// BulkResult is the result of pricing options across several underlyings.
type BulkResult struct {
	Results []OptionGreeks `json:"results"`
	Groups  int            `json:"groups"`
	Perf    Perf           `json:"perf"`
	Method  string         `json:"method"`
}

// EngineMetrics is the engine's cumulative performance snapshot.
type EngineMetrics struct {
	TotalBatches     int64   `json:"total_batches"`
	TotalOptions     int64   `json:"total_options"`
	Fallbacks        int64   `json:"fallbacks"`
	LastElapsedMs    float64 `json:"last_elapsed_ms"`
	AvgOptionsPerSec float64 `json:"avg_options_per_sec"`
}

// Engine prices option chains in bulk. The vectorized path runs the whole
// batch as one kernel on the compute pool; the per-option path is the
// reference implementation and fallback.
type Engine struct {
	model    *Model
	pool     *compute.Pool
	breakers *breaker.Registry
	metrics  *telemetry.MetricsRegistry

	// allowLegacyFallback enables degradation to the per-option path; it is
	// never effective in production.
	allowLegacyFallback bool
	production          bool

	mu   sync.Mutex
	perf EngineMetrics
	sumS float64 // running sum of options/sec for the average
}

// EngineOptions configures the engine.
type EngineOptions struct {
	AllowLegacyFallback bool
	Production          bool
	Metrics             *telemetry.MetricsRegistry
}

// NewEngine creates the engine.
func NewEngine(model *Model, pool *compute.Pool, breakers *breaker.Registry, opts EngineOptions) *Engine {
	return &Engine{
		model:               model,
		pool:                pool,
		breakers:            breakers,
		metrics:             opts.Metrics,
		allowLegacyFallback: opts.AllowLegacyFallback,
		production:          opts.Production,
	}
}

// Model exposes the configured pricing model.
func (e *Engine) Model() *Model { return e.model }

// TimeToExpiry converts an expiry date to a year fraction, floored at one
// day. Shared with callers that price against the model directly.
func TimeToExpiry(expiry time.Time, now time.Time) float64 {
	return timeToExpiry(expiry, now)
}

// timeToExpiry converts an expiry date to year-fraction, floored at one day.
func timeToExpiry(expiry time.Time, now time.Time) float64 {
	t := expiry.Sub(now).Hours() / (365.25 * 24.0)
	if t < minTime {
		return minTime
	}
	return t
}

// validateChain rejects bad inputs before any pricing runs.
func (e *Engine) validateChain(options []OptionRequest, S float64, greekNames []string) error {
	if S <= 0 {
		return errs.Validation("underlying price must be positive, got %.4f", S)
	}
	for _, name := range greekNames {
		if _, ok := greekFns[name]; !ok {
			return errs.UnsupportedModel("unknown greek %q", name)
		}
	}
	p := e.model.Params()
	for i, opt := range options {
		if opt.Strike <= 0 {
			return errs.Validation("option %d: strike must be positive, got %.4f", i, opt.Strike)
		}
		if opt.OptionType != instrument.Call && opt.OptionType != instrument.Put {
			return errs.Validation("option %d: option_type must be CALL or PUT", i)
		}
		if opt.Volatility != nil && (*opt.Volatility < p.VolatilityMin || *opt.Volatility > p.VolatilityMax) {
			return errs.Configuration("option %d: volatility %.4f outside [%.4f, %.4f]",
				i, *opt.Volatility, p.VolatilityMin, p.VolatilityMax)
		}
	}
	return nil
}

// PriceChain computes the requested greeks for a batch of options against a
// common underlying price. Wrapped by the vectorized circuit breaker; on
// engine-internal failure it degrades to the per-option path when
// allowFallback is set and the environment is not production.
func (e *Engine) PriceChain(ctx context.Context, options []OptionRequest, S float64, greekNames []string, allowFallback bool) (*ChainResult, error) {
	if len(options) == 0 {
		return &ChainResult{Results: []OptionGreeks{}, Method: "none"}, nil
	}
	if len(greekNames) == 0 {
		greekNames = GreekNames
	}
	if err := e.validateChain(options, S, greekNames); err != nil {
		return nil, err
	}

	vb := e.breakers.Get(breaker.ClassVectorized)
	res, err := vb.Execute(ctx, func(ctx context.Context) (any, error) {
		return e.priceChainVectorized(ctx, options, S, greekNames)
	})
	if err == nil {
		return res.(*ChainResult), nil
	}

	// Breaker rejections and deadline violations propagate as-is; only
	// engine-internal failures are eligible for the legacy path.
	kind := errs.KindOf(err)
	if kind == errs.KindCircuitOpen || kind == errs.KindTimeout {
		return nil, err
	}
	if allowFallback && e.allowLegacyFallback && !e.production {
		log.Warn().Err(err).Int("options", len(options)).
			Msg("vectorized pricing failed, degrading to per-option path")
		if e.metrics != nil {
			e.metrics.EngineFallbacks.Inc()
		}
		e.mu.Lock()
		e.perf.Fallbacks++
		e.mu.Unlock()
		return e.PriceChainPerOption(ctx, options, S, greekNames)
	}
	return nil, errs.Wrap(err, errs.KindGreeksCalculation, "vectorized pricing failed for %d options", len(options))
}

// priceChainVectorized builds parallel parameter arrays and runs each
// requested greek as one kernel over the whole array.
func (e *Engine) priceChainVectorized(ctx context.Context, options []OptionRequest, S float64, greekNames []string) (*ChainResult, error) {
	start := time.Now()
	now := start.UTC()
	p := e.model.Params()

	n := len(options)
	inputs := make([]pricingInput, n)
	ivs := make([]float64, n)
	hasIV := make([]bool, n)

	results := make([]OptionGreeks, n)
	for i := range results {
		results[i] = make(OptionGreeks, len(greekNames)+1)
	}

	err := e.pool.Run(ctx, func() error {
		for i, opt := range options {
			sigma := p.DefaultVolatility
			switch {
			case opt.Volatility != nil:
				sigma = *opt.Volatility
			case opt.MarketPrice != nil:
				T := timeToExpiry(opt.Expiry, now)
				if iv, ok := e.model.SolveIV(*opt.MarketPrice, S, opt.Strike, T, opt.OptionType.Flag()); ok {
					sigma = iv
					ivs[i] = iv
					hasIV[i] = true
				}
			}
			if sigma > ivOutputCap {
				sigma = ivOutputCap
			}
			inputs[i] = e.model.input(opt.OptionType.Flag(), S, opt.Strike, timeToExpiry(opt.Expiry, now), sigma, nil, nil)
		}

		for _, name := range greekNames {
			fn := greekFns[name]
			for i := range inputs {
				if v := fn(inputs[i]); inBounds(name, v) {
					results[i][name] = v
				}
			}
		}
		for i := range inputs {
			if hasIV[i] {
				results[i]["iv"] = ivs[i]
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := &ChainResult{Results: results, Perf: perfFor(start, n), Method: "vectorized"}
	e.recordBatch(out.Method, out.Perf, n)
	return out, nil
}

// PriceChainPerOption is the reference per-option path, wrapped by the
// individual circuit breaker. A failure on one option leaves that option's
// greeks missing; it never poisons the batch.
func (e *Engine) PriceChainPerOption(ctx context.Context, options []OptionRequest, S float64, greekNames []string) (*ChainResult, error) {
	if len(options) == 0 {
		return &ChainResult{Results: []OptionGreeks{}, Method: "none"}, nil
	}
	if len(greekNames) == 0 {
		greekNames = GreekNames
	}
	if err := e.validateChain(options, S, greekNames); err != nil {
		return nil, err
	}

	ib := e.breakers.Get(breaker.ClassIndividual)
	res, err := ib.Execute(ctx, func(ctx context.Context) (any, error) {
		start := time.Now()
		now := start.UTC()
		p := e.model.Params()

		results := make([]OptionGreeks, len(options))
		for i, opt := range options {
			results[i] = make(OptionGreeks, len(greekNames)+1)
			T := timeToExpiry(opt.Expiry, now)

			sigma := p.DefaultVolatility
			switch {
			case opt.Volatility != nil:
				sigma = *opt.Volatility
			case opt.MarketPrice != nil:
				if iv, ok := e.model.SolveIV(*opt.MarketPrice, S, opt.Strike, T, opt.OptionType.Flag()); ok {
					sigma = iv
					results[i]["iv"] = iv
				}
			}

			for _, name := range greekNames {
				v, gerr := e.model.ComputeGreek(name, opt.OptionType.Flag(), S, opt.Strike, T, sigma, nil, nil)
				if gerr != nil {
					log.Debug().Err(gerr).Int("option", i).Str("greek", name).
						Msg("per-option greek failed, marking missing")
					continue
				}
				if inBounds(name, v) {
					results[i][name] = v
				}
			}
		}

		out := &ChainResult{Results: results, Perf: perfFor(start, len(options)), Method: "per_option"}
		e.recordBatch(out.Method, out.Perf, len(options))
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*ChainResult), nil
}

// PriceBulk groups options by underlying price and prices each group as a
// chain. Wrapped by the bulk circuit breaker. Results preserve input order.
func (e *Engine) PriceBulk(ctx context.Context, options []OptionRequest) (*BulkResult, error) {
	if len(options) == 0 {
		return &BulkResult{Results: []OptionGreeks{}, Method: "none"}, nil
	}
	for i, opt := range options {
		if opt.UnderlyingPrice == nil || *opt.UnderlyingPrice <= 0 {
			return nil, errs.Validation("option %d: bulk pricing requires a positive underlying_price", i)
		}
	}

	bb := e.breakers.Get(breaker.ClassBulk)
	res, err := bb.Execute(ctx, func(ctx context.Context) (any, error) {
		start := time.Now()

		groups := make(map[float64][]int)
		for i, opt := range options {
			s := *opt.UnderlyingPrice
			groups[s] = append(groups[s], i)
		}

		results := make([]OptionGreeks, len(options))
		for s, idxs := range groups {
			batch := make([]OptionRequest, len(idxs))
			for j, idx := range idxs {
				batch[j] = options[idx]
			}
			chain, cerr := e.PriceChain(ctx, batch, s, GreekNames, true)
			if cerr != nil {
				return nil, cerr
			}
			for j, idx := range idxs {
				results[idx] = chain.Results[j]
			}
		}

		return &BulkResult{
			Results: results,
			Groups:  len(groups),
			Perf:    perfFor(start, len(options)),
			Method:  "bulk",
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*BulkResult), nil
}

func perfFor(start time.Time, n int) Perf {
	elapsed := time.Since(start)
	perf := Perf{ElapsedMs: float64(elapsed.Microseconds()) / 1000.0}
	if elapsed > 0 {
		perf.OptionsPerSec = float64(n) / elapsed.Seconds()
	}
	return perf
}

func (e *Engine) recordBatch(method string, perf Perf, n int) {
	if e.metrics != nil {
		e.metrics.EngineBatchDuration.WithLabelValues(method).Observe(perf.ElapsedMs / 1000.0)
		e.metrics.EngineOptionsTotal.WithLabelValues(method).Add(float64(n))
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.perf.TotalBatches++
	e.perf.TotalOptions += int64(n)
	e.perf.LastElapsedMs = perf.ElapsedMs
	e.sumS += perf.OptionsPerSec
	e.perf.AvgOptionsPerSec = e.sumS / float64(e.perf.TotalBatches)
}

// Metrics returns the cumulative engine metrics.
func (e *Engine) Metrics() EngineMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.perf
}

// ResetMetrics clears the cumulative engine metrics.
func (e *Engine) ResetMetrics() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.perf = EngineMetrics{}
	e.sumS = 0
}
