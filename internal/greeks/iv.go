package greeks

import "math"

const (
	ivTolerance     = 1e-4
	ivMaxIterations = 100
	ivOutputCap     = 5.0
)

// solveIV finds the volatility reconciling marketPrice with the model by
// bisection on [lo, hi]. It returns (sigma, true) for sigma in (0, 5], or
// (0, false) for non-convergence, negative time value, or an out-of-band
// result.
func (m *Model) solveIV(marketPrice, S, K, T float64, flag byte, lo, hi float64) (float64, bool) {
	if marketPrice <= 0 || S <= 0 || K <= 0 {
		return 0, false
	}
	if T < minTime {
		T = minTime
	}
	if lo <= 0 {
		lo = ivTolerance
	}
	if hi > ivOutputCap {
		hi = ivOutputCap
	}
	if lo >= hi {
		return 0, false
	}

	priceAt := func(sigma float64) float64 {
		return price(m.input(flag, S, K, T, sigma, nil, nil))
	}

	// Negative time value: market below the model's zero-vol floor means no
	// volatility can reconcile the price.
	if marketPrice < priceAt(lo) {
		return 0, false
	}
	// Market above the upper-bound price is equally unreachable.
	if marketPrice > priceAt(hi) {
		return 0, false
	}

	for i := 0; i < ivMaxIterations && hi-lo > ivTolerance; i++ {
		mid := (lo + hi) / 2.0
		if priceAt(mid) > marketPrice {
			hi = mid
		} else {
			lo = mid
		}
	}

	sigma := (lo + hi) / 2.0
	if sigma > ivOutputCap {
		sigma = ivOutputCap
	}
	if sigma <= 0 || math.IsNaN(sigma) {
		return 0, false
	}
	return sigma, true
}

// SolveIV is the exported per-option entry point, bounded by the configured
// [vol_min, vol_max].
func (m *Model) SolveIV(marketPrice, S, K, T float64, flag byte) (float64, bool) {
	return m.solveIV(marketPrice, S, K, T, flag, m.params.VolatilityMin, m.params.VolatilityMax)
}
