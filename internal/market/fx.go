package market

import (
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// conversionTable holds static pair rates. Known operational hazard: pairs
// missing here convert at 1.0 with a warning. Production deployments should
// swap this table for a live rate source; the Price contract is unchanged.
var conversionTable = map[[2]string]decimal.Decimal{
	{"USD", "INR"}: decimal.NewFromFloat(83.20),
	{"INR", "USD"}: decimal.NewFromFloat(1.0 / 83.20),
	{"USD", "EUR"}: decimal.NewFromFloat(0.92),
	{"EUR", "USD"}: decimal.NewFromFloat(1.0 / 0.92),
	{"USD", "GBP"}: decimal.NewFromFloat(0.79),
	{"GBP", "USD"}: decimal.NewFromFloat(1.0 / 0.79),
}

func conversionRate(from, to string) decimal.Decimal {
	if rate, ok := conversionTable[[2]string{from, to}]; ok {
		return rate
	}
	log.Warn().
		Str("from", from).
		Str("to", to).
		Msg("unknown currency pair, converting at 1.0")
	return decimal.NewFromInt(1)
}
