package premium

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/quantsignals/signalsd/internal/greeks"
	"github.com/quantsignals/signalsd/internal/instrument"
)

// Detector thresholds in price units.
const (
	parityThreshold    = 0.5
	inversionThreshold = 0.5
)

// Quote is one chain row with its observed market price.
type Quote struct {
	Strike      float64
	Expiry      time.Time
	OptionType  instrument.OptionType
	MarketPrice float64
	Volatility  *float64
}

// ParityViolation is a same-strike call/put pair whose prices stray from
// put-call parity by more than the threshold.
type ParityViolation struct {
	Strike    float64   `json:"strike"`
	Expiry    time.Time `json:"expiry"`
	CallPrice float64   `json:"call_price"`
	PutPrice  float64   `json:"put_price"`
	Deviation float64   `json:"deviation"`
}

// VerticalInversion is an adjacent strike pair priced against the vertical
// monotonicity that calls decay and puts grow with strike.
type VerticalInversion struct {
	Expiry       time.Time             `json:"expiry"`
	OptionType   instrument.OptionType `json:"option_type"`
	LowerStrike  float64               `json:"lower_strike"`
	HigherStrike float64               `json:"higher_strike"`
	LowerPrice   float64               `json:"lower_price"`
	HigherPrice  float64               `json:"higher_price"`
}

// ChainAnalyze is the whole-chain verdict: per-expiry premium analysis plus
// the structural detectors.
type ChainAnalyze struct {
	Groups     map[string]*AnalyzeResult `json:"groups"` // keyed by expiry date
	Mispriced  []Result                  `json:"mispriced"`
	Parity     []ParityViolation         `json:"parity_violations"`
	Inversions []VerticalInversion       `json:"vertical_inversions"`
}

// AnalyzeChain groups quotes by expiry, runs Analyze per group, and then
// runs the mispricing, put-call-parity and vertical-inversion detectors.
func (a *Analyzer) AnalyzeChain(ctx context.Context, quotes []Quote, S float64) (*ChainAnalyze, error) {
	out := &ChainAnalyze{Groups: map[string]*AnalyzeResult{}}
	if len(quotes) == 0 {
		return out, nil
	}

	byExpiry := map[string][]Quote{}
	for _, q := range quotes {
		k := q.Expiry.UTC().Format("2006-01-02")
		byExpiry[k] = append(byExpiry[k], q)
	}

	for expiry, group := range byExpiry {
		prices := make([]float64, len(group))
		opts := make([]greeks.OptionRequest, len(group))
		for i, q := range group {
			prices[i] = q.MarketPrice
			opts[i] = greeks.OptionRequest{
				Strike:     q.Strike,
				Expiry:     q.Expiry,
				OptionType: q.OptionType,
				Volatility: q.Volatility,
			}
		}
		res, err := a.Analyze(ctx, prices, opts, S, false)
		if err != nil {
			return nil, err
		}
		out.Groups[expiry] = res
		out.Mispriced = append(out.Mispriced, detectMispricing(res)...)
		out.Parity = append(out.Parity, a.detectParityViolations(group, S)...)
		out.Inversions = append(out.Inversions, detectVerticalInversions(group)...)
	}

	sort.Slice(out.Mispriced, func(i, j int) bool {
		return math.Abs(out.Mispriced[i].PremiumPct) > math.Abs(out.Mispriced[j].PremiumPct)
	})
	return out, nil
}

// detectMispricing keeps the results whose severity already signals
// arbitrage.
func detectMispricing(res *AnalyzeResult) []Result {
	var out []Result
	for _, r := range res.Results {
		if r.ArbitrageSignal {
			out = append(out, r)
		}
	}
	return out
}

// detectParityViolations pairs calls and puts on the same strike and flags
// pairs where C - P strays from S - K*e^(-rT) by more than the threshold.
func (a *Analyzer) detectParityViolations(group []Quote, S float64) []ParityViolation {
	r := a.engine.Model().Params().RiskFreeRate
	now := time.Now().UTC()

	calls := map[float64]Quote{}
	puts := map[float64]Quote{}
	for _, q := range group {
		if q.OptionType == instrument.Call {
			calls[q.Strike] = q
		} else {
			puts[q.Strike] = q
		}
	}

	var out []ParityViolation
	for strike, call := range calls {
		put, ok := puts[strike]
		if !ok {
			continue
		}
		T := greeks.TimeToExpiry(call.Expiry, now)
		parity := S - strike*math.Exp(-r*T)
		dev := (call.MarketPrice - put.MarketPrice) - parity
		if math.Abs(dev) > parityThreshold {
			out = append(out, ParityViolation{
				Strike:    strike,
				Expiry:    call.Expiry,
				CallPrice: call.MarketPrice,
				PutPrice:  put.MarketPrice,
				Deviation: dev,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Strike < out[j].Strike })
	return out
}

// detectVerticalInversions walks each side sorted by strike. A call spread
// inverts when the lower strike is cheaper than the higher by more than the
// threshold; a put spread inverts when the lower strike is dearer.
func detectVerticalInversions(group []Quote) []VerticalInversion {
	sides := map[instrument.OptionType][]Quote{}
	for _, q := range group {
		sides[q.OptionType] = append(sides[q.OptionType], q)
	}

	var out []VerticalInversion
	for _, ot := range []instrument.OptionType{instrument.Call, instrument.Put} {
		side := sides[ot]
		sort.Slice(side, func(i, j int) bool { return side[i].Strike < side[j].Strike })
		for i := 0; i+1 < len(side); i++ {
			lo, hi := side[i], side[i+1]
			inverted := false
			if ot == instrument.Call {
				inverted = lo.MarketPrice < hi.MarketPrice-inversionThreshold
			} else {
				inverted = lo.MarketPrice > hi.MarketPrice+inversionThreshold
			}
			if inverted {
				out = append(out, VerticalInversion{
					Expiry:       lo.Expiry,
					OptionType:   ot,
					LowerStrike:  lo.Strike,
					HigherStrike: hi.Strike,
					LowerPrice:   lo.MarketPrice,
					HigherPrice:  hi.MarketPrice,
				})
			}
		}
	}
	return out
}
