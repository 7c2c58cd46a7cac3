// Package ops serves the operational HTTP surface: liveness/health and
// prometheus metrics.
package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/quantsignals/signalsd/internal/breaker"
	"github.com/quantsignals/signalsd/internal/config"
	"github.com/quantsignals/signalsd/internal/greeks"
	"github.com/quantsignals/signalsd/internal/telemetry"
)

// EngineStats is the slice of the greeks engine the health check reports.
type EngineStats interface {
	Metrics() greeks.EngineMetrics
}

// Server is the ops HTTP server.
type Server struct {
	cfg      *config.Config
	breakers *breaker.Registry
	metrics  *telemetry.MetricsRegistry
	engine   EngineStats
	httpSrv  *http.Server
	started  time.Time
}

// NewServer wires the ops routes. engine may be nil in tests.
func NewServer(cfg *config.Config, breakers *breaker.Registry, metrics *telemetry.MetricsRegistry, engine EngineStats) *Server {
	s := &Server{
		cfg:      cfg,
		breakers: breakers,
		metrics:  metrics,
		engine:   engine,
		started:  time.Now().UTC(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Gatherer(), promhttp.HandlerOpts{})).Methods(http.MethodGet)

	s.httpSrv = &http.Server{
		Addr:         cfg.OpsAddr(),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

type healthResponse struct {
	Status      string                     `json:"status"`
	Environment string                     `json:"environment"`
	Model       string                     `json:"model"`
	UptimeSec   float64                    `json:"uptime_seconds"`
	Ticker      tickerHealth               `json:"ticker"`
	Breakers    map[string]breaker.Metrics `json:"breakers"`
	Engine      *greeks.EngineMetrics      `json:"engine,omitempty"`
}

type tickerHealth struct {
	BaseURL   string `json:"base_url"`
	Reachable bool   `json:"url_valid"`
}

// handleHealth reports configuration, breaker and upstream wiring state.
// Any breaker stuck OPEN degrades the status without failing the check.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:      "ok",
		Environment: s.cfg.Environment,
		Model:       s.cfg.SignalService.OptionsPricingModel,
		UptimeSec:   time.Since(s.started).Seconds(),
		Breakers:    s.breakers.Stats(),
	}
	if s.engine != nil {
		em := s.engine.Metrics()
		resp.Engine = &em
	}

	u, err := url.Parse(s.cfg.Endpoints.TickerService)
	resp.Ticker = tickerHealth{
		BaseURL:   s.cfg.Endpoints.TickerService,
		Reachable: err == nil && u.Scheme != "" && u.Host != "",
	}
	if !resp.Ticker.Reachable {
		resp.Status = "degraded"
	}
	for _, m := range resp.Breakers {
		if m.State == "open" {
			resp.Status = "degraded"
			break
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("encode health response")
	}
}

// Start serves until Shutdown; it blocks the calling goroutine.
func (s *Server) Start() error {
	log.Info().Str("addr", s.httpSrv.Addr).Msg("ops server listening")
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }
