package timeframe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStandardTags(t *testing.T) {
	cases := map[string]int{
		"1m": 1, "5m": 5, "15m": 15, "30m": 30, "1h": 60, "4h": 240, "1d": 1440,
	}
	for tag, minutes := range cases {
		spec, err := Parse(tag)
		require.NoError(t, err, tag)
		assert.Equal(t, Standard, spec.Kind, tag)
		assert.Equal(t, minutes, spec.Minutes, tag)
	}
}

func TestParseCustomForms(t *testing.T) {
	spec, err := Parse("7m")
	require.NoError(t, err)
	assert.Equal(t, Custom, spec.Kind)
	assert.Equal(t, 7, spec.Minutes)

	spec, err = Parse("custom_90")
	require.NoError(t, err)
	assert.Equal(t, Custom, spec.Kind)
	assert.Equal(t, 90, spec.Minutes)

	// A custom form naming a standard count normalizes to standard.
	spec, err = Parse("custom_60")
	require.NoError(t, err)
	assert.Equal(t, Standard, spec.Kind)
	assert.Equal(t, "1h", spec.String())
}

func TestParseBoundaries(t *testing.T) {
	spec, err := Parse("1m")
	require.NoError(t, err)
	assert.Equal(t, 1, spec.Minutes)

	spec, err = Parse("custom_1440")
	require.NoError(t, err)
	assert.Equal(t, 1440, spec.Minutes)

	_, err = Parse("0m")
	assert.Error(t, err)
	_, err = Parse("custom_1441")
	assert.Error(t, err)
	_, err = Parse("")
	assert.Error(t, err)
	_, err = Parse("fortnight")
	assert.Error(t, err)
	_, err = Parse("custom_abc")
	assert.Error(t, err)
}

func TestRoundTripParseFormat(t *testing.T) {
	for _, raw := range []string{"1m", "5m", "15m", "30m", "1h", "4h", "1d", "custom_7", "custom_90"} {
		spec, err := Parse(raw)
		require.NoError(t, err, raw)

		again, err := Parse(spec.String())
		require.NoError(t, err, raw)
		assert.Equal(t, spec, again, raw)
	}
}

func TestStandardTagsOrdered(t *testing.T) {
	assert.Equal(t, []string{"1m", "5m", "15m", "30m", "1h", "4h", "1d"}, StandardTags())
}
