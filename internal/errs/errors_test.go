package errs

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKindMatching(t *testing.T) {
	err := ServiceUnavailable("ticker unreachable")
	wrapped := fmt.Errorf("fetch failed: %w", err)

	assert.True(t, IsKind(wrapped, KindServiceUnavailable))
	assert.False(t, IsKind(wrapped, KindTimeout))
	assert.Equal(t, KindServiceUnavailable, KindOf(wrapped))
}

func TestErrorIsComparesByKind(t *testing.T) {
	a := Validation("strike must be positive")
	b := Validation("different message")

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, Timeout("deadline exceeded")))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, KindServiceUnavailable, "GET /api/v1/latest failed")

	require.NotNil(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")

	assert.Nil(t, Wrap(nil, KindTimeout, "unused"))
}

func TestMarshalJSONEnvelope(t *testing.T) {
	err := GreeksCalculation("iv solve failed").
		With("strike", 21500.0).
		With("option_type", "CALL")

	b, merr := json.Marshal(err)
	require.NoError(t, merr)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "greeks_calculation", got["kind"])
	assert.Equal(t, "iv solve failed", got["message"])
	details := got["details"].(map[string]any)
	assert.Equal(t, "CALL", details["option_type"])
}

func TestRetryableKinds(t *testing.T) {
	assert.True(t, KindServiceUnavailable.Retryable())
	assert.True(t, KindTimeout.Retryable())
	assert.False(t, KindNotAuthorized.Retryable())
	assert.False(t, KindValidation.Retryable())
	assert.False(t, KindUnsupportedModel.Retryable())
}
