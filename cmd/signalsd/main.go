// Command signalsd runs the signals computation service: greeks engine,
// timeframe manager, moneyness aggregator and the ops HTTP surface.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantsignals/signalsd/internal/breaker"
	"github.com/quantsignals/signalsd/internal/cache"
	"github.com/quantsignals/signalsd/internal/compute"
	"github.com/quantsignals/signalsd/internal/config"
	"github.com/quantsignals/signalsd/internal/facade"
	"github.com/quantsignals/signalsd/internal/greeks"
	"github.com/quantsignals/signalsd/internal/ops"
	"github.com/quantsignals/signalsd/internal/telemetry"
	"github.com/quantsignals/signalsd/internal/ticker"
	"github.com/quantsignals/signalsd/internal/timeframe"
)

var (
	configPath string
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "signalsd",
		Short: "Signals computation service for derivatives trading",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the yaml configuration")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "zerolog level (trace..panic)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the service until interrupted",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServe()
		},
	}
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("signalsd exited with error")
		os.Exit(1)
	}
}

func setupLogging(production bool) {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if !production {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

func runServe() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setupLogging(cfg.IsProduction())
	log.Info().
		Str("environment", cfg.Environment).
		Str("model", cfg.SignalService.OptionsPricingModel).
		Msg("starting signalsd")

	metrics := telemetry.NewMetricsRegistry()
	registry := breaker.NewRegistry()
	wireBreakerTelemetry(registry, metrics)

	payloadCache := cache.NewAuto(cfg.Cache.RedisAddr, cfg.Cache.RedisDB, cfg.Cache.MaxEntries)
	pool := compute.NewPool(cfg.ComputeWorkers)

	engine := greeks.NewEngine(greeks.NewModel(cfg), pool, registry, greeks.EngineOptions{
		AllowLegacyFallback: cfg.SignalService.AllowLegacyFallback,
		Production:          cfg.IsProduction(),
		Metrics:             metrics,
	})

	client := ticker.NewClient(ticker.ClientConfig{
		BaseURL: cfg.Endpoints.TickerService,
		APIKey:  cfg.InternalAPIKey,
		Pool:    ticker.DefaultPoolConfig(),
		Metrics: metrics,
	})
	manager := timeframe.NewManager(client, payloadCache, metrics)

	if err := facade.Init(manager, client); err != nil {
		return err
	}
	defer facade.Shutdown()

	stop := make(chan struct{})
	go maintenanceLoop(stop, payloadCache, registry)
	defer close(stop)

	opsSrv := ops.NewServer(cfg, registry, metrics, engine)
	errCh := make(chan error, 1)
	go func() { errCh <- opsSrv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return opsSrv.Shutdown(ctx)
}

// wireBreakerTelemetry materialises the breaker classes and feeds their
// transitions into the prometheus gauges.
func wireBreakerTelemetry(registry *breaker.Registry, metrics *telemetry.MetricsRegistry) {
	onTransition := func(name string, _, to breaker.State) {
		metrics.BreakerState.WithLabelValues(name).Set(float64(to))
		metrics.BreakerTransitions.WithLabelValues(name, to.String()).Inc()
		log.Warn().Str("breaker", name).Str("to", to.String()).Msg("breaker state change")
	}
	for _, class := range []breaker.Class{
		breaker.ClassDefault, breaker.ClassIndividual, breaker.ClassVectorized, breaker.ClassBulk,
	} {
		registry.Get(class).OnTransition(onTransition)
		metrics.BreakerState.WithLabelValues(string(class)).Set(float64(breaker.StateClosed))
	}
}

// maintenanceLoop sweeps the in-memory cache and compacts breaker windows
// once a minute.
func maintenanceLoop(stop <-chan struct{}, payloadCache cache.Cache, registry *breaker.Registry) {
	tick := time.NewTicker(time.Minute)
	defer tick.Stop()
	for {
		select {
		case <-stop:
			return
		case <-tick.C:
			registry.CompactAll()
			if ttl, ok := payloadCache.(*cache.TTLCache); ok {
				if dropped := ttl.Sweep(); dropped > 0 {
					log.Debug().Int("dropped", dropped).Msg("cache sweep")
				}
			}
		}
	}
}
