package ticker

import (
	"encoding/json"
	"time"

	"github.com/quantsignals/signalsd/internal/errs"
	"github.com/quantsignals/signalsd/internal/market"
	"github.com/quantsignals/signalsd/internal/timeframe"
)

// ChainOption is one contract row from the option chain endpoints.
type ChainOption struct {
	Strike      float64       `json:"strike"`
	Expiry      string        `json:"expiry"`
	OptionType  string        `json:"option_type"`
	LTP         *market.Price `json:"ltp,omitempty"`
	IV          *float64      `json:"iv,omitempty"`
	Volume      *int64        `json:"volume,omitempty"`
	OI          *int64        `json:"oi,omitempty"`
	Moneyness   string        `json:"moneyness,omitempty"`
	Delta       *float64      `json:"delta,omitempty"`
	MarketPrice *float64      `json:"market_price,omitempty"`
}

// priceResponse accepts the {price | ltp} union the upstream emits.
type priceResponse struct {
	Price *float64      `json:"price"`
	LTP   *market.Price `json:"ltp"`
}

func (r priceResponse) value() (float64, bool) {
	if r.Price != nil {
		return *r.Price, true
	}
	if r.LTP != nil {
		return r.LTP.Float(), true
	}
	return 0, false
}

// ivResponse accepts {iv | implied_volatility | null}.
type ivResponse struct {
	IV                *float64 `json:"iv"`
	ImpliedVolatility *float64 `json:"implied_volatility"`
}

func (r ivResponse) value() *float64 {
	if r.IV != nil {
		return r.IV
	}
	return r.ImpliedVolatility
}

// chainResponse accepts {options | chain: [...]}.
type chainResponse struct {
	Options []ChainOption `json:"options"`
	Chain   []ChainOption `json:"chain"`
}

func (r chainResponse) rows() []ChainOption {
	if len(r.Options) > 0 {
		return r.Options
	}
	return r.Chain
}

// rawSeries decodes the loosely shaped historical payloads: each row
// carries a timestamp under timestamp|date|time (RFC3339 or epoch seconds)
// plus arbitrary numeric fields.
type rawSeries []map[string]json.RawMessage

func (rs rawSeries) points() ([]timeframe.Point, error) {
	points := make([]timeframe.Point, 0, len(rs))
	for _, row := range rs {
		ts, err := rowTimestamp(row)
		if err != nil {
			return nil, err
		}
		fields := make(map[string]float64, len(row))
		for name, raw := range row {
			switch name {
			case "timestamp", "date", "time":
				continue
			}
			var v float64
			if err := json.Unmarshal(raw, &v); err == nil {
				fields[name] = v
			}
		}
		points = append(points, timeframe.Point{Timestamp: ts, Fields: fields})
	}
	return points, nil
}

func rowTimestamp(row map[string]json.RawMessage) (time.Time, error) {
	for _, key := range []string{"timestamp", "date", "time"} {
		raw, ok := row[key]
		if !ok {
			continue
		}
		var epoch int64
		if err := json.Unmarshal(raw, &epoch); err == nil {
			return time.Unix(epoch, 0).UTC(), nil
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if ts, err := time.Parse(time.RFC3339, s); err == nil {
				return ts.UTC(), nil
			}
			if ts, err := time.Parse("2006-01-02", s); err == nil {
				return ts.UTC(), nil
			}
		}
	}
	return time.Time{}, errs.Validation("historical row missing a parseable timestamp")
}

// bars converts a raw series into validated OHLCV bars.
func (rs rawSeries) bars(timeframeMinutes int) ([]market.Bar, error) {
	points, err := rs.points()
	if err != nil {
		return nil, err
	}
	bars := make([]market.Bar, 0, len(points))
	for _, p := range points {
		bar := market.Bar{
			Timestamp:        p.Timestamp,
			Open:             p.Fields["open"],
			High:             p.Fields["high"],
			Low:              p.Fields["low"],
			Close:            p.Fields["close"],
			Volume:           p.Fields["volume"],
			OI:               p.Fields["oi"],
			TimeframeMinutes: timeframeMinutes,
		}
		bars = append(bars, bar)
	}
	return bars, nil
}
