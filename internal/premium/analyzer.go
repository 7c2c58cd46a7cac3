// Package premium compares market option prices against the configured
// model's theoretical values and classifies mispricing severity.
package premium

import (
	"context"
	"math"
	"time"

	"github.com/quantsignals/signalsd/internal/errs"
	"github.com/quantsignals/signalsd/internal/greeks"
	"github.com/quantsignals/signalsd/internal/instrument"
)

// Severity bands the magnitude of |premium_pct|.
type Severity string

const (
	SeverityLow     Severity = "LOW"
	SeverityMedium  Severity = "MEDIUM"
	SeverityHigh    Severity = "HIGH"
	SeverityExtreme Severity = "EXTREME"
)

// classifySeverity bands |premium_pct|: [0,3) [3,8) [8,15) [15,inf).
func classifySeverity(absPct float64) Severity {
	switch {
	case absPct < 3:
		return SeverityLow
	case absPct < 8:
		return SeverityMedium
	case absPct < 15:
		return SeverityHigh
	default:
		return SeverityExtreme
	}
}

// Result is the premium verdict for one option.
type Result struct {
	Strike           float64               `json:"strike"`
	Expiry           time.Time             `json:"expiry"`
	OptionType       instrument.OptionType `json:"option_type"`
	MarketPrice      float64               `json:"market_price"`
	TheoreticalPrice float64               `json:"theoretical_price"`
	PremiumAmount    float64               `json:"premium_amount"`
	PremiumPct       float64               `json:"premium_pct"`
	Overpriced       bool                  `json:"overpriced"`
	Severity         Severity              `json:"severity"`
	ArbitrageSignal  bool                  `json:"arbitrage_signal"`
	Greeks           greeks.OptionGreeks   `json:"greeks,omitempty"`
}

// AnalyzeResult is the batch premium verdict.
type AnalyzeResult struct {
	Results   []Result `json:"results"`
	Arbitrage int      `json:"arbitrage_count"`
}

// Analyzer prices options through the configured model and flags premium
// or discount versus the market.
type Analyzer struct {
	engine *greeks.Engine
}

// NewAnalyzer wires the analyzer to the Greeks engine it prices with.
func NewAnalyzer(engine *greeks.Engine) *Analyzer {
	return &Analyzer{engine: engine}
}

// Analyze compares market prices against theoretical prices for a batch of
// options on one underlying. Lengths must match; an empty batch returns an
// empty result. With includeGreeks the vectorized engine prices the same
// batch and the per-option greeks are merged into the results.
func (a *Analyzer) Analyze(ctx context.Context, marketPrices []float64, options []greeks.OptionRequest, S float64, includeGreeks bool) (*AnalyzeResult, error) {
	if len(marketPrices) != len(options) {
		return nil, errs.Validation("market prices (%d) and options (%d) must align", len(marketPrices), len(options))
	}
	if len(options) == 0 {
		return &AnalyzeResult{Results: []Result{}}, nil
	}
	if S <= 0 {
		return nil, errs.Validation("underlying price must be positive, got %.4f", S)
	}

	model := a.engine.Model()
	params := model.Params()
	now := time.Now().UTC()

	out := &AnalyzeResult{Results: make([]Result, len(options))}
	for i, opt := range options {
		sigma := params.DefaultVolatility
		if opt.Volatility != nil {
			sigma = *opt.Volatility
		}
		T := greeks.TimeToExpiry(opt.Expiry, now)
		theo, err := model.Price(opt.OptionType.Flag(), S, opt.Strike, T, sigma)
		if err != nil {
			return nil, err
		}

		r := Result{
			Strike:           opt.Strike,
			Expiry:           opt.Expiry,
			OptionType:       opt.OptionType,
			MarketPrice:      marketPrices[i],
			TheoreticalPrice: theo,
			PremiumAmount:    marketPrices[i] - theo,
		}
		if theo > 0 {
			r.PremiumPct = r.PremiumAmount / theo * 100
		}
		r.Overpriced = r.PremiumAmount > 0
		r.Severity = classifySeverity(math.Abs(r.PremiumPct))
		r.ArbitrageSignal = r.Severity == SeverityHigh || r.Severity == SeverityExtreme
		if r.ArbitrageSignal {
			out.Arbitrage++
		}
		out.Results[i] = r
	}

	if includeGreeks {
		chain, err := a.engine.PriceChain(ctx, options, S, nil, true)
		if err != nil {
			return nil, err
		}
		for i := range out.Results {
			out.Results[i].Greeks = chain.Results[i]
		}
	}
	return out, nil
}
