// Package config loads and validates service configuration. Configuration
// is read once at startup and is immutable for the service lifetime;
// missing or out-of-range values fail startup.
package config

import (
	"fmt"
	"net/url"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quantsignals/signalsd/internal/errs"
)

// Model names accepted by signal_service.options_pricing_model.
const (
	ModelBlackScholes       = "black_scholes"
	ModelBlackScholesMerton = "black_scholes_merton"
	ModelBlack76            = "black_76"
)

// ModelParams are the pricing-model parameters.
type ModelParams struct {
	RiskFreeRate      float64 `yaml:"risk_free_rate"`
	DividendYield     float64 `yaml:"dividend_yield"`
	DefaultVolatility float64 `yaml:"default_volatility"`
	VolatilityMin     float64 `yaml:"volatility_min"`
	VolatilityMax     float64 `yaml:"volatility_max"`
}

// SignalService is the signal_service config block.
type SignalService struct {
	OptionsPricingModel string      `yaml:"options_pricing_model"`
	ModelParams         ModelParams `yaml:"model_params"`
	// AllowLegacyFallback lets the vectorized engine degrade to the
	// per-option path outside production. Named policy, not a silent toggle.
	AllowLegacyFallback bool `yaml:"allow_legacy_fallback"`
}

// Endpoints are the upstream service base URLs.
type Endpoints struct {
	TickerService string `yaml:"ticker_service"`
	ConfigService string `yaml:"config_service,omitempty"`
}

// CacheConfig selects the payload cache backend. With an empty redis addr
// the in-memory cache is used.
type CacheConfig struct {
	RedisAddr  string `yaml:"redis_addr"`
	RedisDB    int    `yaml:"redis_db"`
	MaxEntries int64  `yaml:"max_entries"`
}

// OpsConfig configures the health/metrics HTTP server.
type OpsConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Config is the root configuration.
type Config struct {
	Environment    string        `yaml:"environment"`
	SignalService  SignalService `yaml:"signal_service"`
	Endpoints      Endpoints     `yaml:"endpoints"`
	Cache          CacheConfig   `yaml:"cache"`
	Ops            OpsConfig     `yaml:"ops"`
	InternalAPIKey string        `yaml:"internal_api_key"`
	// ComputeWorkers bounds the numeric kernel pool; 0 means GOMAXPROCS.
	ComputeWorkers int           `yaml:"compute_workers"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Load reads, overlays env secrets, and validates the configuration.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(err, errs.KindConfiguration, "read config %s", path)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, errs.Wrap(err, errs.KindConfiguration, "parse config %s", path)
	}
	c.applyDefaults()
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Ops.Host == "" {
		c.Ops.Host = "127.0.0.1"
	}
	if c.Ops.Port == 0 {
		c.Ops.Port = 8090
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = 10000
	}
	if c.ComputeWorkers == 0 {
		c.ComputeWorkers = runtime.GOMAXPROCS(0)
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
}

func (c *Config) applyEnv() {
	if key := os.Getenv("INTERNAL_API_KEY"); key != "" {
		c.InternalAPIKey = key
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Cache.RedisAddr = addr
	}
}

// Validate enforces the required keys and parameter ranges. All violations
// are Configuration errors; the process must not start with any of them.
func (c *Config) Validate() error {
	switch c.SignalService.OptionsPricingModel {
	case ModelBlackScholes, ModelBlackScholesMerton, ModelBlack76:
	case "":
		return errs.Configuration("signal_service.options_pricing_model is required")
	default:
		return errs.Configuration("unknown pricing model %q", c.SignalService.OptionsPricingModel)
	}

	p := c.SignalService.ModelParams
	if p.RiskFreeRate < 0 || p.RiskFreeRate > 0.50 {
		return errs.Configuration("risk_free_rate %.4f outside [0, 0.50]", p.RiskFreeRate)
	}
	if p.DividendYield < 0 || p.DividendYield > 0.20 {
		return errs.Configuration("dividend_yield %.4f outside [0, 0.20]", p.DividendYield)
	}
	if p.DefaultVolatility < 0.01 || p.DefaultVolatility > 10 {
		return errs.Configuration("default_volatility %.4f outside [0.01, 10]", p.DefaultVolatility)
	}
	if p.VolatilityMin >= p.VolatilityMax {
		return errs.Configuration("volatility_min %.4f must be < volatility_max %.4f", p.VolatilityMin, p.VolatilityMax)
	}

	if c.Endpoints.TickerService == "" {
		return errs.Configuration("endpoints.ticker_service is required")
	}
	if u, err := url.Parse(c.Endpoints.TickerService); err != nil || u.Scheme == "" || u.Host == "" {
		return errs.Configuration("endpoints.ticker_service %q is not a valid URL", c.Endpoints.TickerService)
	}

	if c.InternalAPIKey == "" {
		return errs.Configuration("INTERNAL_API_KEY is required (config key internal_api_key or env)")
	}
	return nil
}

// IsProduction reports whether the service runs in the production
// environment, which disables the vectorized engine's legacy fallback.
func (c *Config) IsProduction() bool { return c.Environment == "production" }

// OpsAddr is the listen address for the ops server.
func (c *Config) OpsAddr() string { return fmt.Sprintf("%s:%d", c.Ops.Host, c.Ops.Port) }
