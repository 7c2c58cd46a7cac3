package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantsignals/signalsd/internal/breaker"
	"github.com/quantsignals/signalsd/internal/config"
	"github.com/quantsignals/signalsd/internal/telemetry"
)

func testServer() (*Server, *breaker.Registry) {
	cfg := &config.Config{
		Environment: "test",
		SignalService: config.SignalService{
			OptionsPricingModel: config.ModelBlackScholes,
		},
		Endpoints: config.Endpoints{TickerService: "http://ticker.internal:8080"},
		Ops:       config.OpsConfig{Host: "127.0.0.1", Port: 0},
	}
	reg := breaker.NewRegistry()
	return NewServer(cfg, reg, telemetry.NewMetricsRegistry(), nil), reg
}

func TestHealthOK(t *testing.T) {
	s, reg := testServer()
	reg.Get(breaker.ClassDefault) // materialise one breaker

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, config.ModelBlackScholes, resp.Model)
	assert.True(t, resp.Ticker.Reachable)
	assert.Contains(t, resp.Breakers, string(breaker.ClassDefault))
}

func TestHealthDegradedWhenBreakerOpen(t *testing.T) {
	s, reg := testServer()
	b := reg.Get(breaker.ClassDefault)
	for i := 0; i < 5; i++ {
		_, _ = b.Execute(context.Background(), func(context.Context) (any, error) {
			return nil, errors.New("boom")
		})
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "open", resp.Breakers[string(breaker.ClassDefault)].State)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := testServer()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "signalsd_")
}
