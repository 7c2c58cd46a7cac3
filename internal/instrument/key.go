// Package instrument parses and formats canonical instrument keys of the
// form EXCHANGE@SYMBOL@PRODUCT[@EXPIRY[@OPTION_TYPE[@STRIKE]]].
package instrument

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/quantsignals/signalsd/internal/errs"
)

// OptionType is the side of an option contract.
type OptionType string

const (
	Call OptionType = "CALL"
	Put  OptionType = "PUT"
)

// Flag maps the option type to the single-character convention used by the
// pricing models.
func (ot OptionType) Flag() byte {
	if ot == Put {
		return 'p'
	}
	return 'c'
}

// ParseOptionType accepts CALL/PUT (any case) and the short c/p forms.
func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CALL", "C", "CE":
		return Call, nil
	case "PUT", "P", "PE":
		return Put, nil
	default:
		return "", errs.Validation("unknown option type %q", s)
	}
}

const expiryLayout = "2006-01-02"

// Key is a parsed instrument identifier. Expiry, OptionType and Strike are
// present only for derivative products.
type Key struct {
	Exchange   string
	Symbol     string
	Product    string
	Expiry     time.Time
	OptionType OptionType
	Strike     float64
}

// IsOption reports whether the key identifies a single option contract.
func (k Key) IsOption() bool { return k.OptionType != "" && k.Strike > 0 }

// HasExpiry reports whether the key carries an expiry segment.
func (k Key) HasExpiry() bool { return !k.Expiry.IsZero() }

// String renders the canonical form.
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(k.Exchange)
	b.WriteByte('@')
	b.WriteString(k.Symbol)
	b.WriteByte('@')
	b.WriteString(k.Product)
	if k.HasExpiry() {
		b.WriteByte('@')
		b.WriteString(k.Expiry.Format(expiryLayout))
		if k.OptionType != "" {
			b.WriteByte('@')
			b.WriteString(string(k.OptionType))
			if k.Strike > 0 {
				b.WriteByte('@')
				b.WriteString(strconv.FormatFloat(k.Strike, 'f', -1, 64))
			}
		}
	}
	return b.String()
}

// Underlying returns the key truncated to its exchange/symbol/product root.
func (k Key) Underlying() Key {
	return Key{Exchange: k.Exchange, Symbol: k.Symbol, Product: k.Product}
}

// Parse parses a canonical key. The legacy EXCHANGE:SYMBOL form is accepted
// and rewritten to EXCHANGE@SYMBOL@EQ; all other shapes must be canonical.
func Parse(raw string) (Key, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Key{}, errs.Validation("empty instrument key")
	}

	// Legacy colon form, rewritten on input.
	if !strings.Contains(s, "@") && strings.Count(s, ":") == 1 {
		parts := strings.SplitN(s, ":", 2)
		if parts[0] == "" || parts[1] == "" {
			return Key{}, errs.Validation("malformed legacy instrument key %q", raw)
		}
		return Key{Exchange: parts[0], Symbol: parts[1], Product: "EQ"}, nil
	}

	parts := strings.Split(s, "@")
	if len(parts) < 3 || len(parts) > 6 {
		return Key{}, errs.Validation("instrument key %q: want 3-6 segments, got %d", raw, len(parts))
	}
	for i, p := range parts {
		if p == "" {
			return Key{}, errs.Validation("instrument key %q: empty segment %d", raw, i)
		}
	}

	k := Key{Exchange: parts[0], Symbol: parts[1], Product: parts[2]}

	if len(parts) >= 4 {
		exp, err := time.Parse(expiryLayout, parts[3])
		if err != nil {
			return Key{}, errs.Validation("instrument key %q: bad expiry %q", raw, parts[3])
		}
		k.Expiry = exp.UTC()
	}
	if len(parts) >= 5 {
		ot, err := ParseOptionType(parts[4])
		if err != nil {
			return Key{}, errs.Validation("instrument key %q: bad option type %q", raw, parts[4])
		}
		k.OptionType = ot
	}
	if len(parts) == 6 {
		strike, err := strconv.ParseFloat(parts[5], 64)
		if err != nil || strike <= 0 {
			return Key{}, errs.Validation("instrument key %q: bad strike %q", raw, parts[5])
		}
		k.Strike = strike
	}
	return k, nil
}

// MustParse is Parse for statically known keys; it panics on error.
func MustParse(raw string) Key {
	k, err := Parse(raw)
	if err != nil {
		panic(fmt.Sprintf("instrument: %v", err))
	}
	return k
}

// OptionKey builds the key for one contract on an underlying.
func OptionKey(underlying Key, expiry time.Time, ot OptionType, strike float64) Key {
	return Key{
		Exchange:   underlying.Exchange,
		Symbol:     underlying.Symbol,
		Product:    "OPT",
		Expiry:     expiry.UTC(),
		OptionType: ot,
		Strike:     strike,
	}
}
