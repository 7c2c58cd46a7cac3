package greeks

import (
	"math"

	"github.com/quantsignals/signalsd/internal/config"
	"github.com/quantsignals/signalsd/internal/errs"
)

// Model binds the configured pricing model and its parameters. Loaded once
// at startup; immutable thereafter.
type Model struct {
	name   string
	params config.ModelParams
}

// NewModel builds the model from validated configuration.
func NewModel(cfg *config.Config) *Model {
	return &Model{
		name:   cfg.SignalService.OptionsPricingModel,
		params: cfg.SignalService.ModelParams,
	}
}

// Name returns the configured model name.
func (m *Model) Name() string { return m.name }

// Params returns the model parameters.
func (m *Model) Params() config.ModelParams { return m.params }

// input assembles a pricingInput, applying the time floor and model
// defaults for rate and yield. For black_scholes the dividend yield is
// ignored by carry().
func (m *Model) input(flag byte, S, K, T, sigma float64, r, q *float64) pricingInput {
	rate := m.params.RiskFreeRate
	if r != nil {
		rate = *r
	}
	yield := m.params.DividendYield
	if q != nil {
		yield = *q
	}
	if T < minTime {
		T = minTime
	}
	return pricingInput{
		S: S, K: K, T: T,
		R:     rate,
		B:     carry(m.name, rate, yield),
		Sigma: sigma,
		Flag:  flag,
	}
}

// ComputeGreek evaluates one greek for one option. Unknown greek names fail
// with UnsupportedModel; sigma outside [vol_min, vol_max] fails with
// Configuration; a non-finite result fails with GreeksCalculation carrying
// the input snapshot.
func (m *Model) ComputeGreek(name string, flag byte, S, K, T, sigma float64, r, q *float64) (float64, error) {
	fn, ok := greekFns[name]
	if !ok {
		return 0, errs.UnsupportedModel("unknown greek %q", name)
	}
	if sigma < m.params.VolatilityMin || sigma > m.params.VolatilityMax {
		return 0, errs.Configuration("volatility %.4f outside [%.4f, %.4f]",
			sigma, m.params.VolatilityMin, m.params.VolatilityMax)
	}
	if S <= 0 || K <= 0 {
		return 0, errs.Validation("underlying and strike must be positive (S=%.4f, K=%.4f)", S, K)
	}

	v := fn(m.input(flag, S, K, T, sigma, r, q))
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errs.GreeksCalculation("non-finite %s", name).
			With("S", S).With("K", K).With("T", T).
			With("sigma", sigma).With("flag", string(flag))
	}
	return v, nil
}

// Price evaluates the theoretical option price under the configured model.
func (m *Model) Price(flag byte, S, K, T, sigma float64) (float64, error) {
	if sigma <= 0 {
		return 0, errs.Validation("volatility must be positive, got %.4f", sigma)
	}
	if S <= 0 || K <= 0 {
		return 0, errs.Validation("underlying and strike must be positive (S=%.4f, K=%.4f)", S, K)
	}
	v := price(m.input(flag, S, K, T, sigma, nil, nil))
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errs.GreeksCalculation("non-finite price").
			With("S", S).With("K", K).With("T", T).With("sigma", sigma)
	}
	return v, nil
}
