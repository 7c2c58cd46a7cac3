package ticker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/quantsignals/signalsd/internal/errs"
	"github.com/quantsignals/signalsd/internal/instrument"
	"github.com/quantsignals/signalsd/internal/market"
	"github.com/quantsignals/signalsd/internal/telemetry"
	"github.com/quantsignals/signalsd/internal/timeframe"
)

// Client talks to the ticker service. All methods map 1:1 onto REST
// endpoints; 404 means absent, never an error.
type Client struct {
	baseURL string
	apiKey  string
	pool    *clientPool
	breaker *gobreaker.CircuitBreaker
	metrics *telemetry.MetricsRegistry
}

// ClientConfig configures the client.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Pool    PoolConfig
	Metrics *telemetry.MetricsRegistry
}

// NewClient creates a ticker client. A plain transport breaker guards the
// upstream; the compute-class breakers in internal/breaker are layered
// above by callers.
func NewClient(cfg ClientConfig) *Client {
	settings := gobreaker.Settings{Name: "ticker-transport"}
	settings.Interval = 60 * time.Second
	settings.Timeout = 30 * time.Second
	settings.ReadyToTrip = func(counts gobreaker.Counts) bool {
		if counts.ConsecutiveFailures >= 5 {
			return true
		}
		if counts.Requests < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) > 0.5
	}

	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		pool:    newClientPool(cfg.Pool),
		breaker: gobreaker.NewCircuitBreaker(settings),
		metrics: cfg.Metrics,
	}
}

// get performs one authenticated GET and returns the body for 2xx, nil for
// 404, and a taxonomy error otherwise.
func (c *Client) get(ctx context.Context, endpoint string, query url.Values) ([]byte, error) {
	u := c.baseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	body, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, errs.Wrap(err, errs.KindValidation, "build request %s", endpoint)
		}
		req.Header.Set("X-Internal-API-Key", c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		start := time.Now()
		resp, err := c.pool.Do(ctx, req)
		if err != nil {
			c.observe(endpoint, "error", start)
			log.Error().Err(err).Str("endpoint", endpoint).Msg("ticker request failed")
			return nil, errs.Wrap(err, errs.KindServiceUnavailable, "GET %s", endpoint)
		}
		defer resp.Body.Close()
		c.observe(endpoint, statusClass(resp.StatusCode), start)

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return []byte(nil), nil
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, errs.NotAuthorized("ticker rejected credentials on %s (HTTP %d)", endpoint, resp.StatusCode)
		case resp.StatusCode >= 500:
			return nil, errs.ServiceUnavailable("ticker returned HTTP %d on %s", resp.StatusCode, endpoint)
		case resp.StatusCode >= 400:
			return nil, errs.Validation("ticker returned HTTP %d on %s", resp.StatusCode, endpoint)
		}

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, errs.Wrap(err, errs.KindServiceUnavailable, "read body from %s", endpoint)
		}
		return b, nil
	})
	if err != nil {
		if _, ok := err.(*errs.Error); ok {
			return nil, err
		}
		// gobreaker's own rejections surface as CircuitOpen.
		return nil, errs.Wrap(err, errs.KindCircuitOpen, "ticker transport breaker open")
	}
	if body == nil {
		return nil, nil
	}
	return body.([]byte), nil
}

func (c *Client) observe(endpoint, class string, start time.Time) {
	if c.metrics != nil {
		c.metrics.TickerRequestDuration.WithLabelValues(endpoint, class).Observe(time.Since(start).Seconds())
	}
}

func statusClass(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}

// Latest returns the last traded price for an instrument, or nil when the
// upstream has none.
func (c *Client) Latest(ctx context.Context, key instrument.Key) (*market.Price, error) {
	body, err := c.get(ctx, "/api/v1/latest/"+url.PathEscape(key.String()), nil)
	if err != nil || body == nil {
		return nil, err
	}
	var pr priceResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return nil, errs.Wrap(err, errs.KindServiceUnavailable, "decode latest price")
	}
	if pr.LTP != nil {
		return pr.LTP, nil
	}
	if pr.Price != nil {
		p := market.Scalar(*pr.Price)
		return &p, nil
	}
	return nil, nil
}

func optionQuery(underlying instrument.Key, strike float64, expiry time.Time, ot instrument.OptionType) url.Values {
	q := url.Values{}
	q.Set("underlying", underlying.String())
	q.Set("strike", strconv.FormatFloat(strike, 'f', -1, 64))
	q.Set("expiry", expiry.UTC().Format("2006-01-02"))
	q.Set("option_type", string(ot))
	return q
}

// OptionPrice returns one contract's market price, or nil when absent.
func (c *Client) OptionPrice(ctx context.Context, underlying instrument.Key, strike float64, expiry time.Time, ot instrument.OptionType) (*float64, error) {
	body, err := c.get(ctx, "/api/v1/options/price", optionQuery(underlying, strike, expiry, ot))
	if err != nil || body == nil {
		return nil, err
	}
	var pr priceResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return nil, errs.Wrap(err, errs.KindServiceUnavailable, "decode option price")
	}
	if v, ok := pr.value(); ok {
		return &v, nil
	}
	return nil, nil
}

// OptionIV returns one contract's implied volatility, optionally as of a
// historical timestamp. nil means the upstream has no value.
func (c *Client) OptionIV(ctx context.Context, underlying instrument.Key, strike float64, expiry time.Time, ot instrument.OptionType, asOf *time.Time) (*float64, error) {
	q := optionQuery(underlying, strike, expiry, ot)
	if asOf != nil {
		q.Set("timestamp", asOf.UTC().Format(time.RFC3339))
	}
	body, err := c.get(ctx, "/api/v1/options/iv", q)
	if err != nil || body == nil {
		return nil, err
	}
	var ir ivResponse
	if err := json.Unmarshal(body, &ir); err != nil {
		return nil, errs.Wrap(err, errs.KindServiceUnavailable, "decode option iv")
	}
	return ir.value(), nil
}

// OptionChain returns the chain for an underlying, optionally restricted to
// one expiry. A 404 yields an empty chain.
func (c *Client) OptionChain(ctx context.Context, underlying instrument.Key, expiry *time.Time) ([]ChainOption, error) {
	q := url.Values{}
	q.Set("underlying", underlying.String())
	if expiry != nil {
		q.Set("expiry", expiry.UTC().Format("2006-01-02"))
	}
	body, err := c.get(ctx, "/api/v1/options/chain", q)
	if err != nil || body == nil {
		return nil, err
	}
	var cr chainResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, errs.Wrap(err, errs.KindServiceUnavailable, "decode option chain")
	}
	return cr.rows(), nil
}

// OptionsHistorical returns historical option rows for an expiry date,
// optionally filtered by timestamp and moneyness level.
func (c *Client) OptionsHistorical(ctx context.Context, underlying instrument.Key, expiryDate time.Time, asOf *time.Time, moneynessLevel string) ([]ChainOption, error) {
	q := url.Values{}
	q.Set("underlying", underlying.String())
	q.Set("expiry_date", expiryDate.UTC().Format("2006-01-02"))
	if asOf != nil {
		q.Set("timestamp", asOf.UTC().Format(time.RFC3339))
	}
	if moneynessLevel != "" {
		q.Set("moneyness_level", moneynessLevel)
	}
	body, err := c.get(ctx, "/api/v1/options/historical", q)
	if err != nil || body == nil {
		return nil, err
	}
	var hr struct {
		Options []ChainOption `json:"options"`
	}
	if err := json.Unmarshal(body, &hr); err != nil {
		return nil, errs.Wrap(err, errs.KindServiceUnavailable, "decode historical options")
	}
	return hr.Options, nil
}

// Historical returns OHLCV bars for a symbol. A 404 yields an empty slice.
func (c *Client) Historical(ctx context.Context, symbol string, tf timeframe.Spec, periods int, start, end *time.Time) ([]market.Bar, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("timeframe", tf.String())
	q.Set("periods", strconv.Itoa(periods))
	if start != nil {
		q.Set("start_date", start.UTC().Format("2006-01-02"))
	}
	if end != nil {
		q.Set("end_date", end.UTC().Format("2006-01-02"))
	}
	body, err := c.get(ctx, "/api/v1/historical", q)
	if err != nil || body == nil {
		return nil, err
	}
	var hr struct {
		Data       rawSeries `json:"data"`
		Historical rawSeries `json:"historical"`
	}
	if err := json.Unmarshal(body, &hr); err != nil {
		return nil, errs.Wrap(err, errs.KindServiceUnavailable, "decode historical bars")
	}
	rows := hr.Data
	if len(rows) == 0 {
		rows = hr.Historical
	}
	return rows.bars(tf.Minutes)
}

// HistoricalSignals returns the 1-minute base series for a signal type.
// A 404 yields an empty series.
func (c *Client) HistoricalSignals(ctx context.Context, key instrument.Key, st timeframe.SignalType, from, to time.Time) ([]timeframe.Point, error) {
	endpoint := "/api/v1/historical/" + signalPath(st)
	q := url.Values{}
	q.Set("instrument_key", key.String())
	q.Set("start_time", from.UTC().Format(time.RFC3339))
	q.Set("end_time", to.UTC().Format(time.RFC3339))
	q.Set("timeframe", "1m")

	body, err := c.get(ctx, endpoint, q)
	if err != nil || body == nil {
		return nil, err
	}
	var sr struct {
		DataPoints rawSeries `json:"data_points"`
	}
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, errs.Wrap(err, errs.KindServiceUnavailable, "decode %s series", st)
	}
	return sr.DataPoints.points()
}

func signalPath(st timeframe.SignalType) string {
	if st == timeframe.SignalMoneynessGreeks {
		return "moneyness"
	}
	return string(st)
}

// FetchBase adapts the client to the timeframe manager's BaseFetcher.
func (c *Client) FetchBase(ctx context.Context, key instrument.Key, st timeframe.SignalType, from, to time.Time) ([]timeframe.Point, error) {
	return c.HistoricalSignals(ctx, key, st, from, to)
}

// Stats returns transport counters.
func (c *Client) Stats() PoolStats { return c.pool.Stats() }
