// Package telemetry holds the prometheus metrics registry for the signals
// service.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRegistry holds all prometheus metrics.
type MetricsRegistry struct {
	registry *prometheus.Registry

	// Greeks engine
	EngineBatchDuration *prometheus.HistogramVec
	EngineOptionsTotal  *prometheus.CounterVec
	EngineFallbacks     prometheus.Counter

	// Caches
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// Circuit breakers
	BreakerState       *prometheus.GaugeVec
	BreakerTransitions *prometheus.CounterVec

	// Ticker client
	TickerRequestDuration *prometheus.HistogramVec
}

// NewMetricsRegistry creates and registers all service metrics on a fresh
// prometheus registry.
func NewMetricsRegistry() *MetricsRegistry {
	m := &MetricsRegistry{
		registry: prometheus.NewRegistry(),

		EngineBatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signalsd_engine_batch_duration_seconds",
				Help:    "Duration of greeks engine batches",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"method"},
		),
		EngineOptionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalsd_engine_options_total",
				Help: "Options priced, by method",
			},
			[]string{"method"},
		),
		EngineFallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "signalsd_engine_fallbacks_total",
				Help: "Vectorized batches degraded to the per-option path",
			},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalsd_cache_hits_total",
				Help: "Cache hits by tier",
			},
			[]string{"tier"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalsd_cache_misses_total",
				Help: "Cache misses by tier",
			},
			[]string{"tier"},
		),

		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "signalsd_breaker_state",
				Help: "Breaker state (0 closed, 1 open, 2 half-open)",
			},
			[]string{"breaker"},
		),
		BreakerTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalsd_breaker_transitions_total",
				Help: "Breaker state transitions",
			},
			[]string{"breaker", "to"},
		),

		TickerRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signalsd_ticker_request_duration_seconds",
				Help:    "Outbound ticker service request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint", "status_class"},
		),
	}

	m.registry.MustRegister(
		m.EngineBatchDuration,
		m.EngineOptionsTotal,
		m.EngineFallbacks,
		m.CacheHits,
		m.CacheMisses,
		m.BreakerState,
		m.BreakerTransitions,
		m.TickerRequestDuration,
	)
	return m
}

// Gatherer exposes the underlying registry for the /metrics handler.
func (m *MetricsRegistry) Gatherer() prometheus.Gatherer { return m.registry }
