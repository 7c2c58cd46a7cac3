// Package greeks implements the pricing models and the vectorized greeks
// engine. Supported models are black_scholes, black_scholes_merton and
// black_76, expressed through the generalized cost-of-carry form.
package greeks

import "math"

const (
	sqrt2  = 1.4142135623730951
	rootPi = 2.50662827463 // sqrt(2*pi)

	// minTime floors time-to-expiry at one day.
	minTime = 1.0 / 365.25
)

// normCDF is the standard normal cumulative distribution.
func normCDF(z float64) float64 {
	return 0.5 * (1.0 + math.Erf(z/sqrt2))
}

// normPDF is the standard normal density.
func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / rootPi
}

// carry returns the cost-of-carry rate b for a model: b=r for Black-Scholes
// (dividend yield ignored), b=r-q for Black-Scholes-Merton, b=0 for
// Black-76 (underlying is a forward).
func carry(model string, r, q float64) float64 {
	switch model {
	case "black_scholes_merton":
		return r - q
	case "black_76":
		return 0
	default: // black_scholes
		return r
	}
}

type pricingInput struct {
	S, K, T, R, B, Sigma float64
	Flag                 byte // 'c' or 'p'
}

func d1(in pricingInput) float64 {
	return (math.Log(in.S/in.K) + (in.B+0.5*in.Sigma*in.Sigma)*in.T) / (in.Sigma * math.Sqrt(in.T))
}

func d2(in pricingInput) float64 {
	return d1(in) - in.Sigma*math.Sqrt(in.T)
}

// price is the generalized Black-Scholes price.
func price(in pricingInput) float64 {
	dOne, dTwo := d1(in), d2(in)
	growth := math.Exp((in.B - in.R) * in.T)
	disc := math.Exp(-in.R * in.T)
	if in.Flag == 'p' {
		return in.K*disc*normCDF(-dTwo) - in.S*growth*normCDF(-dOne)
	}
	return in.S*growth*normCDF(dOne) - in.K*disc*normCDF(dTwo)
}

// deltaOf is dV/dS.
func deltaOf(in pricingInput) float64 {
	growth := math.Exp((in.B - in.R) * in.T)
	if in.Flag == 'p' {
		return growth * (normCDF(d1(in)) - 1.0)
	}
	return growth * normCDF(d1(in))
}

// gammaOf is d2V/dS2, identical for calls and puts.
func gammaOf(in pricingInput) float64 {
	growth := math.Exp((in.B - in.R) * in.T)
	return growth * normPDF(d1(in)) / (in.S * in.Sigma * math.Sqrt(in.T))
}

// thetaOf is dV/dt per calendar day.
func thetaOf(in pricingInput) float64 {
	dOne, dTwo := d1(in), d2(in)
	growth := math.Exp((in.B - in.R) * in.T)
	disc := math.Exp(-in.R * in.T)

	decay := -in.S * growth * normPDF(dOne) * in.Sigma / (2.0 * math.Sqrt(in.T))
	if in.Flag == 'p' {
		carryTerm := (in.B - in.R) * in.S * growth * normCDF(-dOne)
		strikeTerm := in.R * in.K * disc * normCDF(-dTwo)
		return (decay + carryTerm + strikeTerm) / 365.0
	}
	carryTerm := -(in.B - in.R) * in.S * growth * normCDF(dOne)
	strikeTerm := -in.R * in.K * disc * normCDF(dTwo)
	return (decay + carryTerm + strikeTerm) / 365.0
}

// vegaOf is dV/dsigma per volatility point (1%).
func vegaOf(in pricingInput) float64 {
	growth := math.Exp((in.B - in.R) * in.T)
	return in.S * growth * normPDF(d1(in)) * math.Sqrt(in.T) / 100.0
}

// rhoOf is dV/dr per rate point (1%).
func rhoOf(in pricingInput) float64 {
	disc := math.Exp(-in.R * in.T)
	if in.Flag == 'p' {
		return -in.K * in.T * disc * normCDF(-d2(in)) / 100.0
	}
	return in.K * in.T * disc * normCDF(d2(in)) / 100.0
}

// greekFns maps greek names to kernels.
var greekFns = map[string]func(pricingInput) float64{
	"delta": deltaOf,
	"gamma": gammaOf,
	"theta": thetaOf,
	"vega":  vegaOf,
	"rho":   rhoOf,
}

// validityBounds maps out-of-range greek values to missing.
var validityBounds = map[string][2]float64{
	"delta": {-1, 1},
	"gamma": {0, 1},
	"theta": {-1, 1},
	"vega":  {0, 100},
	"rho":   {-100, 100},
}

// inBounds reports whether v is a finite value within the greek's validity
// bounds.
func inBounds(greek string, v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	b, ok := validityBounds[greek]
	if !ok {
		return true
	}
	return v >= b[0] && v <= b[1]
}
