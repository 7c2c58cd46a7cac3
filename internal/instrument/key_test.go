package instrument

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCanonicalOption(t *testing.T) {
	k, err := Parse("NSE@NIFTY@OPT@2026-09-24@CALL@24500")
	require.NoError(t, err)

	assert.Equal(t, "NSE", k.Exchange)
	assert.Equal(t, "NIFTY", k.Symbol)
	assert.Equal(t, "OPT", k.Product)
	assert.Equal(t, time.Date(2026, 9, 24, 0, 0, 0, 0, time.UTC), k.Expiry)
	assert.Equal(t, Call, k.OptionType)
	assert.Equal(t, 24500.0, k.Strike)
	assert.True(t, k.IsOption())
}

func TestParseLegacyColonFormRewritten(t *testing.T) {
	k, err := Parse("NSE:RELIANCE")
	require.NoError(t, err)

	assert.Equal(t, "NSE@RELIANCE@EQ", k.String())
	assert.False(t, k.IsOption())
}

func TestRoundTripFormatParse(t *testing.T) {
	keys := []string{
		"NSE@NIFTY@EQ",
		"NSE@BANKNIFTY@FUT@2026-08-27",
		"NSE@NIFTY@OPT@2026-09-24@PUT@24000",
		"CME@ES@OPT@2026-12-18@CALL@5500.5",
	}
	for _, raw := range keys {
		k, err := Parse(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, raw, k.String(), raw)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	bad := []string{
		"",
		"NSE",
		"NSE@NIFTY",
		"NSE@@OPT",
		"NSE@NIFTY@OPT@24-09-2026",
		"NSE@NIFTY@OPT@2026-09-24@STRADDLE@24500",
		"NSE@NIFTY@OPT@2026-09-24@CALL@-100",
		"NSE@NIFTY@OPT@2026-09-24@CALL@24500@extra@extra",
	}
	for _, raw := range bad {
		_, err := Parse(raw)
		assert.Error(t, err, raw)
	}
}

func TestOptionTypeFlag(t *testing.T) {
	assert.Equal(t, byte('c'), Call.Flag())
	assert.Equal(t, byte('p'), Put.Flag())

	ot, err := ParseOptionType("pe")
	require.NoError(t, err)
	assert.Equal(t, Put, ot)
}

func TestUnderlyingTruncation(t *testing.T) {
	k := MustParse("NSE@NIFTY@OPT@2026-09-24@CALL@24500")
	u := k.Underlying()
	assert.Equal(t, "NSE@NIFTY@OPT", u.String())
	assert.False(t, u.HasExpiry())
}
