// Package market holds the wire-facing market data model: prices with
// explicit currency, tick envelopes and OHLCV bars.
package market

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/quantsignals/signalsd/internal/errs"
)

// Price is a sum type: either a bare scalar or an amount tagged with a
// currency. Upstream ticks emit both shapes; internal arithmetic always
// goes through Money.
type Price struct {
	Value    decimal.Decimal
	Currency string // empty for scalar prices
}

// Scalar builds an untagged price.
func Scalar(v float64) Price {
	return Price{Value: decimal.NewFromFloat(v)}
}

// Money builds a currency-tagged price.
func Money(v float64, currency string) Price {
	return Price{Value: decimal.NewFromFloat(v), Currency: currency}
}

// IsMoney reports whether the price carries a currency tag.
func (p Price) IsMoney() bool { return p.Currency != "" }

// Float returns the numeric value; currency is the caller's problem.
func (p Price) Float() float64 {
	f, _ := p.Value.Float64()
	return f
}

// In converts the price to the target currency. Scalar prices are assumed
// to already be in the target currency.
func (p Price) In(target string) Price {
	if !p.IsMoney() || p.Currency == target {
		return Price{Value: p.Value, Currency: target}
	}
	rate := conversionRate(p.Currency, target)
	return Price{Value: p.Value.Mul(rate), Currency: target}
}

// Add combines two prices. Both must share a currency (after tagging);
// mixing tagged and scalar values is a validation error.
func (p Price) Add(q Price) (Price, error) {
	if p.IsMoney() != q.IsMoney() {
		return Price{}, errs.Validation("cannot combine money %q with scalar price", p.Currency+q.Currency)
	}
	if p.IsMoney() && p.Currency != q.Currency {
		q = q.In(p.Currency)
	}
	return Price{Value: p.Value.Add(q.Value), Currency: p.Currency}, nil
}

// UnmarshalJSON accepts either a bare number or {value, currency}.
func (p *Price) UnmarshalJSON(b []byte) error {
	var scalar float64
	if err := json.Unmarshal(b, &scalar); err == nil {
		*p = Scalar(scalar)
		return nil
	}
	var tagged struct {
		Value    float64 `json:"value"`
		Currency string  `json:"currency"`
	}
	if err := json.Unmarshal(b, &tagged); err != nil {
		return errs.Validation("price must be a number or {value, currency}: %s", string(b))
	}
	*p = Money(tagged.Value, tagged.Currency)
	return nil
}

// MarshalJSON emits the tagged form when a currency is present.
func (p Price) MarshalJSON() ([]byte, error) {
	if !p.IsMoney() {
		return json.Marshal(p.Float())
	}
	return json.Marshal(struct {
		Value    float64 `json:"value"`
		Currency string  `json:"currency"`
	}{p.Float(), p.Currency})
}
