package premium

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantsignals/signalsd/internal/breaker"
	"github.com/quantsignals/signalsd/internal/compute"
	"github.com/quantsignals/signalsd/internal/config"
	"github.com/quantsignals/signalsd/internal/errs"
	"github.com/quantsignals/signalsd/internal/greeks"
	"github.com/quantsignals/signalsd/internal/instrument"
)

func ptr(v float64) *float64 { return &v }

func testAnalyzer() *Analyzer {
	cfg := &config.Config{
		SignalService: config.SignalService{
			OptionsPricingModel: config.ModelBlackScholes,
			ModelParams: config.ModelParams{
				RiskFreeRate:      0.05,
				DefaultVolatility: 0.20,
				VolatilityMin:     0.01,
				VolatilityMax:     3.0,
			},
		},
	}
	engine := greeks.NewEngine(greeks.NewModel(cfg), compute.NewPool(2), breaker.NewRegistry(), greeks.EngineOptions{})
	return NewAnalyzer(engine)
}

func TestSeverityBands(t *testing.T) {
	cases := map[float64]Severity{
		0:    SeverityLow,
		2.9:  SeverityLow,
		3:    SeverityMedium,
		7.9:  SeverityMedium,
		8:    SeverityHigh,
		10:   SeverityHigh,
		14.9: SeverityHigh,
		15:   SeverityExtreme,
		40:   SeverityExtreme,
	}
	for pct, want := range cases {
		assert.Equal(t, want, classifySeverity(pct), "pct %.1f", pct)
	}
}

// Market 10% above theoretical: HIGH severity, overpriced, arbitrage flag.
func TestAnalyzeOverpricedOption(t *testing.T) {
	a := testAnalyzer()
	expiry := time.Now().UTC().AddDate(0, 3, 0)
	opt := greeks.OptionRequest{Strike: 100, Expiry: expiry, OptionType: instrument.Call, Volatility: ptr(0.20)}

	theo, err := a.engine.Model().Price('c', 100, 100, greeks.TimeToExpiry(expiry, time.Now().UTC()), 0.20)
	require.NoError(t, err)

	res, err := a.Analyze(context.Background(), []float64{theo * 1.10}, []greeks.OptionRequest{opt}, 100, false)
	require.NoError(t, err)
	require.Len(t, res.Results, 1)

	r := res.Results[0]
	assert.InDelta(t, 10.0, r.PremiumPct, 0.05)
	assert.True(t, r.Overpriced)
	assert.Equal(t, SeverityHigh, r.Severity)
	assert.True(t, r.ArbitrageSignal)
	assert.Equal(t, 1, res.Arbitrage)
	assert.Nil(t, r.Greeks)
}

func TestAnalyzeDiscountedOption(t *testing.T) {
	a := testAnalyzer()
	expiry := time.Now().UTC().AddDate(0, 3, 0)
	opt := greeks.OptionRequest{Strike: 100, Expiry: expiry, OptionType: instrument.Put, Volatility: ptr(0.20)}

	theo, err := a.engine.Model().Price('p', 100, 100, greeks.TimeToExpiry(expiry, time.Now().UTC()), 0.20)
	require.NoError(t, err)

	res, err := a.Analyze(context.Background(), []float64{theo * 0.95}, []greeks.OptionRequest{opt}, 100, false)
	require.NoError(t, err)

	r := res.Results[0]
	assert.False(t, r.Overpriced)
	assert.Less(t, r.PremiumAmount, 0.0)
	assert.Equal(t, SeverityMedium, r.Severity)
	assert.False(t, r.ArbitrageSignal)
}

func TestAnalyzeValidation(t *testing.T) {
	a := testAnalyzer()
	expiry := time.Now().AddDate(0, 1, 0)
	opts := []greeks.OptionRequest{{Strike: 100, Expiry: expiry, OptionType: instrument.Call}}

	_, err := a.Analyze(context.Background(), []float64{1, 2}, opts, 100, false)
	assert.True(t, errs.IsKind(err, errs.KindValidation))

	_, err = a.Analyze(context.Background(), []float64{1}, opts, -5, false)
	assert.True(t, errs.IsKind(err, errs.KindValidation))
}

func TestAnalyzeEmptyBatch(t *testing.T) {
	a := testAnalyzer()
	res, err := a.Analyze(context.Background(), nil, nil, 100, true)
	require.NoError(t, err)
	assert.Empty(t, res.Results)
	assert.Equal(t, 0, res.Arbitrage)
}

func TestAnalyzeMergesGreeks(t *testing.T) {
	a := testAnalyzer()
	expiry := time.Now().UTC().AddDate(0, 3, 0)
	opts := []greeks.OptionRequest{
		{Strike: 100, Expiry: expiry, OptionType: instrument.Call, Volatility: ptr(0.2)},
		{Strike: 100, Expiry: expiry, OptionType: instrument.Put, Volatility: ptr(0.2)},
	}

	res, err := a.Analyze(context.Background(), []float64{5, 4}, opts, 100, true)
	require.NoError(t, err)
	require.Len(t, res.Results, 2)

	require.NotNil(t, res.Results[0].Greeks)
	assert.Greater(t, res.Results[0].Greeks["delta"], 0.0)
	assert.Less(t, res.Results[1].Greeks["delta"], 0.0)
}
