package moneyness

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
	"github.com/quantsignals/signalsd/internal/ticker"
)

type fakeCatalog struct {
	chain []ticker.ChainOption
	err   error
}

func (f *fakeCatalog) OptionChain(context.Context, instrument.Key, *time.Time) ([]ticker.ChainOption, error) {
	return f.chain, f.err
}

func ptr(v float64) *float64 { return &v }

func testEngine() *greeks.Engine {
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
	return greeks.NewEngine(greeks.NewModel(cfg), compute.NewPool(2), breaker.NewRegistry(), greeks.EngineOptions{})
}

// chainFixture covers every band on both sides of spot=100. Strikes 93.5
// and 112 sit close to 25-delta for the fixture vols and expiry.
func chainFixture() []ticker.ChainOption {
	expiry := "2026-12-24"
	rows := []ticker.ChainOption{}
	for _, strike := range []float64{80, 90, 93.5, 95, 100, 105, 110, 112, 120, 140} {
		rows = append(rows,
			ticker.ChainOption{Strike: strike, Expiry: expiry, OptionType: "CALL", IV: ptr(0.22)},
			ticker.ChainOption{Strike: strike, Expiry: expiry, OptionType: "PUT", IV: ptr(0.24)},
		)
	}
	return rows
}

func testExpiry() time.Time {
	return time.Now().UTC().AddDate(0, 4, 0)
}

func TestResolveBandCohorts(t *testing.T) {
	a := NewAggregator(&fakeCatalog{chain: chainFixture()}, testEngine())
	key := instrument.MustParse("NSE@NIFTY@EQ")
	ctx := context.Background()

	atm, err := a.Resolve(ctx, key, testExpiry(), ATM, 100)
	require.NoError(t, err)
	// Strike 100 call + put only; 2% band excludes 95 and 105.
	require.Len(t, atm.Members, 2)
	for _, m := range atm.Members {
		assert.Equal(t, 100.0, m.Strike)
	}

	otm, err := a.Resolve(ctx, key, testExpiry(), OTM, 100)
	require.NoError(t, err)
	// Calls at 105 and 110; puts at 95, 93.5 and 90.
	require.Len(t, otm.Members, 5)
	for _, m := range otm.Members {
		if m.OptionType == instrument.Call {
			assert.Greater(t, m.Strike, 100.0)
		} else {
			assert.Less(t, m.Strike, 100.0)
		}
	}
}

func TestResolveEmptyChainIsReasonNotError(t *testing.T) {
	a := NewAggregator(&fakeCatalog{}, testEngine())
	res, err := a.Resolve(context.Background(), instrument.MustParse("NSE@NIFTY@EQ"), testExpiry(), ATM, 100)
	require.NoError(t, err)
	assert.Empty(t, res.Members)
	assert.Contains(t, res.Reason, "no option chain")
}

func TestResolvePropagatesCatalogFailure(t *testing.T) {
	a := NewAggregator(&fakeCatalog{err: errs.ServiceUnavailable("ticker down")}, testEngine())
	_, err := a.Resolve(context.Background(), instrument.MustParse("NSE@NIFTY@EQ"), testExpiry(), ATM, 100)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindServiceUnavailable))
}

func TestAggregateATM(t *testing.T) {
	a := NewAggregator(&fakeCatalog{chain: chainFixture()}, testEngine())
	agg, err := a.Aggregate(context.Background(), instrument.MustParse("NSE@NIFTY@EQ"), testExpiry(), ATM, 100)
	require.NoError(t, err)

	assert.Equal(t, 2, agg.All.Count)
	assert.Equal(t, 1, agg.Calls.Count)
	assert.Equal(t, 1, agg.Puts.Count)
	assert.Equal(t, 100.0, agg.StrikeMin)
	assert.Equal(t, 100.0, agg.StrikeMax)
	assert.Equal(t, 1, agg.UniqueStrikes)

	// An ATM call delta near 0.5, put near -0.5: the mixed mean sits near 0.
	assert.Greater(t, agg.Calls.Delta, 0.4)
	assert.Less(t, agg.Puts.Delta, -0.4)
	assert.InDelta(t, 0.0, agg.All.Delta, 0.15)
	assert.Greater(t, agg.All.Gamma, 0.0)
	assert.InDelta(t, 0.22, agg.Calls.IV, 1e-9)
	assert.InDelta(t, 0.24, agg.Puts.IV, 1e-9)
}

func TestAggregateDeltaCohortKeepsClosestPerSide(t *testing.T) {
	a := NewAggregator(&fakeCatalog{chain: chainFixture()}, testEngine())
	agg, err := a.Aggregate(context.Background(), instrument.MustParse("NSE@NIFTY@EQ"), testExpiry(), OTMDelta25, 100)
	require.NoError(t, err)

	// Exactly one contract survives per side: the 112 call and 93.5 put.
	require.Equal(t, 1, agg.Calls.Count)
	require.Equal(t, 1, agg.Puts.Count)
	assert.Equal(t, 93.5, agg.StrikeMin)
	assert.Equal(t, 112.0, agg.StrikeMax)
	assert.InDelta(t, 0.25, agg.Calls.Delta, deltaTolerance)
	assert.InDelta(t, 0.25, -agg.Puts.Delta, deltaTolerance)
}

func TestAggregateEmptyCohort(t *testing.T) {
	a := NewAggregator(&fakeCatalog{chain: chainFixture()}, testEngine())
	// At spot 1000 every put in the fixture is hopelessly deep out of the
	// money: no contract gets near the 5-delta target.
	agg, err := a.Aggregate(context.Background(), instrument.MustParse("NSE@NIFTY@EQ"), testExpiry(), OTMDelta5, 1000)
	require.NoError(t, err)
	assert.Equal(t, 0, agg.All.Count)
	assert.NotEmpty(t, agg.Reason)
}

func TestATMIVSkew(t *testing.T) {
	a := NewAggregator(&fakeCatalog{chain: chainFixture()}, testEngine())
	vol, err := a.ATMIV(context.Background(), instrument.MustParse("NSE@NIFTY@EQ"), testExpiry(), 100)
	require.NoError(t, err)

	assert.Equal(t, 2, vol.Count)
	assert.InDelta(t, 0.22, vol.CallIV, 1e-9)
	assert.InDelta(t, 0.24, vol.PutIV, 1e-9)
	assert.InDelta(t, 0.02, vol.Skew, 1e-9)
	assert.InDelta(t, 0.23, vol.IV, 1e-9)
}

func TestATMIVEmpty(t *testing.T) {
	a := NewAggregator(&fakeCatalog{}, testEngine())
	vol, err := a.ATMIV(context.Background(), instrument.MustParse("NSE@NIFTY@EQ"), testExpiry(), 100)
	require.NoError(t, err)
	assert.Equal(t, 0, vol.Count)
	assert.NotEmpty(t, vol.Reason)
}

func TestDistributionCoversEveryCohort(t *testing.T) {
	a := NewAggregator(&fakeCatalog{chain: chainFixture()}, testEngine())
	dist, err := a.Distribution(context.Background(), instrument.MustParse("NSE@NIFTY@EQ"), testExpiry(), 100)
	require.NoError(t, err)

	require.Len(t, dist, len(Cohorts()))
	for _, cohort := range Cohorts() {
		_, ok := dist[cohort]
		assert.True(t, ok, "missing cohort %s", cohort)
	}
	assert.Greater(t, dist[ATM].All.Count, 0)
	assert.Greater(t, dist[DOTM].All.Count, 0)
}
