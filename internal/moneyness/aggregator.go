package moneyness

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/quantsignals/signalsd/internal/errs"
	"github.com/quantsignals/signalsd/internal/greeks"
	"github.com/quantsignals/signalsd/internal/instrument"
	"github.com/quantsignals/signalsd/internal/ticker"
)

// Catalog is the instrument-catalog collaborator: the slice of the ticker
// client the aggregator needs.
type Catalog interface {
	OptionChain(ctx context.Context, underlying instrument.Key, expiry *time.Time) ([]ticker.ChainOption, error)
}

// Member is one contract resolved into a cohort.
type Member struct {
	Strike      float64
	OptionType  instrument.OptionType
	IV          *float64
	MarketPrice *float64
}

// Resolution is the concrete membership of a cohort on one expiry. Reason
// is set instead of an error when the catalog simply has nothing.
type Resolution struct {
	Cohort  Cohort   `json:"cohort"`
	Members []Member `json:"members"`
	Reason  string   `json:"reason,omitempty"`
}

// SideSummary is the mean Greeks over one side (or all) of a cohort.
type SideSummary struct {
	Count int     `json:"count"`
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	Rho   float64 `json:"rho"`
	IV    float64 `json:"iv"`
}

// CohortGreeks is the aggregate over all cohort members.
type CohortGreeks struct {
	Cohort        Cohort      `json:"cohort"`
	All           SideSummary `json:"all"`
	Calls         SideSummary `json:"calls"`
	Puts          SideSummary `json:"puts"`
	StrikeMin     float64     `json:"strike_min"`
	StrikeMax     float64     `json:"strike_max"`
	UniqueStrikes int         `json:"unique_strikes"`
	Reason        string      `json:"reason,omitempty"`
}

// ATMVol is the ATM implied-volatility summary. Skew is put minus call IV
// and is meaningful only when both sides have members.
type ATMVol struct {
	IV     float64 `json:"iv"`
	CallIV float64 `json:"call_iv"`
	PutIV  float64 `json:"put_iv"`
	Skew   float64 `json:"skew"`
	Count  int     `json:"count"`
	Reason string  `json:"reason,omitempty"`
}

// Aggregator resolves cohorts against the catalog and prices them through
// the Greeks engine.
type Aggregator struct {
	catalog Catalog
	engine  *greeks.Engine
}

// NewAggregator wires the aggregator to its collaborators.
func NewAggregator(catalog Catalog, engine *greeks.Engine) *Aggregator {
	return &Aggregator{catalog: catalog, engine: engine}
}

// Resolve returns the concrete (strike, option_type) members of a cohort on
// one expiry. For delta cohorts the members are candidates: the caller
// narrows them to the delta target after pricing.
func (a *Aggregator) Resolve(ctx context.Context, underlying instrument.Key, expiry time.Time, cohort Cohort, spot float64) (Resolution, error) {
	if spot <= 0 {
		return Resolution{}, errs.Validation("spot must be positive, got %.4f", spot)
	}
	chain, err := a.catalog.OptionChain(ctx, underlying, &expiry)
	if err != nil {
		return Resolution{}, err
	}
	if len(chain) == 0 {
		return Resolution{Cohort: cohort, Reason: "no option chain for " + underlying.String() + " on " + expiry.Format("2006-01-02")}, nil
	}

	res := Resolution{Cohort: cohort}
	for _, row := range chain {
		if row.Strike <= 0 {
			continue
		}
		ot, err := instrument.ParseOptionType(row.OptionType)
		if err != nil {
			log.Warn().Str("underlying", underlying.String()).Str("option_type", row.OptionType).
				Msg("skipping chain row with unknown option type")
			continue
		}
		if !cohort.matches(Classify(row.Strike, spot, ot)) {
			continue
		}
		res.Members = append(res.Members, Member{
			Strike:      row.Strike,
			OptionType:  ot,
			IV:          row.IV,
			MarketPrice: firstNonNil(row.MarketPrice, priceOf(row)),
		})
	}
	if len(res.Members) == 0 {
		res.Reason = "no contracts in cohort " + string(cohort)
	}
	return res, nil
}

func priceOf(row ticker.ChainOption) *float64 {
	if row.LTP == nil {
		return nil
	}
	v := row.LTP.Float()
	return &v
}

func firstNonNil(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

// member pairs a resolved contract with its priced Greeks.
type pricedMember struct {
	Member
	greeks greeks.OptionGreeks
}

// Aggregate prices every cohort member and emits mean Greeks for the whole
// cohort and per side. Missing data yields an empty summary with a reason.
func (a *Aggregator) Aggregate(ctx context.Context, underlying instrument.Key, expiry time.Time, cohort Cohort, spot float64) (CohortGreeks, error) {
	res, err := a.Resolve(ctx, underlying, expiry, cohort, spot)
	if err != nil {
		return CohortGreeks{}, err
	}
	if len(res.Members) == 0 {
		return CohortGreeks{Cohort: cohort, Reason: res.Reason}, nil
	}

	priced, err := a.price(ctx, res.Members, expiry, spot)
	if err != nil {
		return CohortGreeks{}, err
	}
	if target, ok := cohort.DeltaTarget(); ok {
		priced = filterByDelta(priced, target)
		if len(priced) == 0 {
			return CohortGreeks{Cohort: cohort, Reason: "no contract within delta tolerance of target"}, nil
		}
	}

	out := CohortGreeks{Cohort: cohort}
	out.All = summarize(priced, "")
	out.Calls = summarize(priced, instrument.Call)
	out.Puts = summarize(priced, instrument.Put)

	strikes := make([]float64, 0, len(priced))
	unique := make(map[float64]struct{}, len(priced))
	for _, m := range priced {
		strikes = append(strikes, m.Strike)
		unique[m.Strike] = struct{}{}
	}
	out.StrikeMin = floats.Min(strikes)
	out.StrikeMax = floats.Max(strikes)
	out.UniqueStrikes = len(unique)
	return out, nil
}

// price runs the cohort through the vectorized engine, preserving member
// order. Per-option failures come back as empty greek maps and are kept; a
// batch failure propagates.
func (a *Aggregator) price(ctx context.Context, members []Member, expiry time.Time, spot float64) ([]pricedMember, error) {
	reqs := make([]greeks.OptionRequest, len(members))
	for i, m := range members {
		reqs[i] = greeks.OptionRequest{
			Strike:      m.Strike,
			Expiry:      expiry,
			OptionType:  m.OptionType,
			Volatility:  m.IV,
			MarketPrice: m.MarketPrice,
		}
	}
	chain, err := a.engine.PriceChain(ctx, reqs, spot, nil, true)
	if err != nil {
		return nil, err
	}
	priced := make([]pricedMember, len(members))
	for i, m := range members {
		priced[i] = pricedMember{Member: m, greeks: chain.Results[i]}
	}
	return priced, nil
}

// filterByDelta keeps, per side, the contracts within tolerance of the
// |delta| target, then narrows each side to its single closest match.
func filterByDelta(priced []pricedMember, target float64) []pricedMember {
	best := map[instrument.OptionType]*pricedMember{}
	dist := map[instrument.OptionType]float64{}
	for i := range priced {
		m := priced[i]
		delta, ok := m.greeks["delta"]
		if !ok {
			continue
		}
		d := math.Abs(math.Abs(delta) - target)
		if d > deltaTolerance {
			continue
		}
		if cur, seen := best[m.OptionType]; !seen || d < dist[m.OptionType] || (d == dist[m.OptionType] && m.Strike < cur.Strike) {
			cp := m
			best[m.OptionType] = &cp
			dist[m.OptionType] = d
		}
	}
	out := make([]pricedMember, 0, 2)
	for _, ot := range []instrument.OptionType{instrument.Call, instrument.Put} {
		if m, ok := best[ot]; ok {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Strike < out[j].Strike })
	return out
}

// summarize means each greek over the members of one side; side "" means
// everything. Members missing a greek are excluded from that greek's mean.
func summarize(priced []pricedMember, side instrument.OptionType) SideSummary {
	var s SideSummary
	cols := map[string][]float64{}
	for _, m := range priced {
		if side != "" && m.OptionType != side {
			continue
		}
		s.Count++
		for _, name := range []string{"delta", "gamma", "theta", "vega", "rho"} {
			if v, ok := m.greeks[name]; ok {
				cols[name] = append(cols[name], v)
			}
		}
		// Prefer the engine-solved IV; fall back to the quoted one.
		if v, ok := m.greeks["iv"]; ok {
			cols["iv"] = append(cols["iv"], v)
		} else if m.IV != nil {
			cols["iv"] = append(cols["iv"], *m.IV)
		}
	}
	if s.Count == 0 {
		return s
	}
	s.Delta = meanOf(cols["delta"])
	s.Gamma = meanOf(cols["gamma"])
	s.Theta = meanOf(cols["theta"])
	s.Vega = meanOf(cols["vega"])
	s.Rho = meanOf(cols["rho"])
	s.IV = meanOf(cols["iv"])
	return s
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

// ATMIV aggregates implied volatility over the ATM cohort. Skew is put IV
// minus call IV when both sides exist.
func (a *Aggregator) ATMIV(ctx context.Context, underlying instrument.Key, expiry time.Time, spot float64) (ATMVol, error) {
	agg, err := a.Aggregate(ctx, underlying, expiry, ATM, spot)
	if err != nil {
		return ATMVol{}, err
	}
	if agg.All.Count == 0 {
		return ATMVol{Reason: agg.Reason}, nil
	}
	out := ATMVol{
		IV:     agg.All.IV,
		CallIV: agg.Calls.IV,
		PutIV:  agg.Puts.IV,
		Count:  agg.All.Count,
	}
	if agg.Calls.Count > 0 && agg.Puts.Count > 0 {
		out.Skew = agg.Puts.IV - agg.Calls.IV
	}
	return out, nil
}

// Distribution aggregates every cohort for one underlying/expiry.
func (a *Aggregator) Distribution(ctx context.Context, underlying instrument.Key, expiry time.Time, spot float64) (map[Cohort]CohortGreeks, error) {
	out := make(map[Cohort]CohortGreeks, len(Cohorts()))
	for _, cohort := range Cohorts() {
		agg, err := a.Aggregate(ctx, underlying, expiry, cohort, spot)
		if err != nil {
			return nil, err
		}
		out[cohort] = agg
	}
	return out, nil
}
