// Package breaker implements the compute-path circuit breaker: a three
// state machine with a rolling observation window, slow-call tracking,
// half-open probing and a degraded-answer fallback cache.
package breaker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quantsignals/signalsd/internal/errs"
)

// State is the breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds breaker tuning. Class presets are defined in class.go.
type Config struct {
	Name                  string
	FailureThreshold      int64
	TimeoutDuration       time.Duration // how long OPEN lasts before a probe
	OpTimeout             time.Duration // deadline applied to each wrapped call
	FailureRateThreshold  float64
	SlowCallThreshold     time.Duration
	SlowCallRateThreshold float64
	RollingWindow         time.Duration
	HalfOpenMaxCalls      int
	MinWindowCalls        int
}

// Counters are the cumulative call counters since the last state entry.
type Counters struct {
	Total    int64 `json:"total"`
	Success  int64 `json:"success"`
	Failed   int64 `json:"failed"`
	Rejected int64 `json:"rejected"`
	Slow     int64 `json:"slow"`
}

type windowEntry struct {
	ts       time.Time
	ok       bool
	slow     bool
	duration time.Duration
}

// Breaker is one circuit breaker instance. State mutates only through its
// own transition rules; counters use atomics, the ring is lock-guarded.
type Breaker struct {
	config Config

	total    atomic.Int64
	success  atomic.Int64
	failed   atomic.Int64
	rejected atomic.Int64
	slow     atomic.Int64

	mu             sync.Mutex
	state          State
	stateEnteredAt time.Time
	window         []windowEntry
	halfOpenCalls  int
	halfOpenOK     int64
	halfOpenTotal  int64

	fallbacks *fallbackCache

	onTransition func(name string, from, to State)
}

// New creates a breaker with the given configuration.
func New(cfg Config) *Breaker {
	if cfg.FailureRateThreshold == 0 {
		cfg.FailureRateThreshold = 0.5
	}
	if cfg.SlowCallThreshold == 0 {
		cfg.SlowCallThreshold = 5 * time.Second
	}
	if cfg.SlowCallRateThreshold == 0 {
		cfg.SlowCallRateThreshold = 0.8
	}
	if cfg.RollingWindow == 0 {
		cfg.RollingWindow = 60 * time.Second
	}
	if cfg.HalfOpenMaxCalls == 0 {
		cfg.HalfOpenMaxCalls = 3
	}
	if cfg.MinWindowCalls == 0 {
		cfg.MinWindowCalls = 5
	}
	return &Breaker{
		config:         cfg,
		state:          StateClosed,
		stateEnteredAt: time.Now(),
		fallbacks:      newFallbackCache(300 * time.Second),
	}
}

// OnTransition registers a callback invoked on every state change, used to
// feed the telemetry gauges.
func (b *Breaker) OnTransition(fn func(name string, from, to State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTransition = fn
}

// CallOption modifies one Execute invocation.
type CallOption func(*callOptions)

type callOptions struct {
	fallbackValue any
	hasFallback   bool
	cacheKey      string
}

// WithFallback supplies a value returned when the breaker is open.
func WithFallback(v any) CallOption {
	return func(o *callOptions) { o.fallbackValue = v; o.hasFallback = true }
}

// WithCacheKey caches successful results under key for degraded answers
// while the breaker is open. Stale entries are preferred over rejection.
func WithCacheKey(key string) CallOption {
	return func(o *callOptions) { o.cacheKey = key }
}

// Execute runs fn under the breaker. While OPEN, calls are rejected with
// CircuitOpen unless a fallback value or cached value is available. The
// class op timeout is enforced on fn via context cancellation; a timeout
// counts as a failure.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) (any, error), opts ...CallOption) (any, error) {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}

	if !b.acquire() {
		b.rejected.Add(1)
		if v, ok := b.degraded(o); ok {
			log.Warn().
				Str("breaker", b.config.Name).
				Str("state", b.CurrentState().String()).
				Msg("circuit open, serving degraded value")
			return v, nil
		}
		return nil, errs.CircuitOpen("breaker %s is %s", b.config.Name, b.CurrentState()).
			With("breaker", b.config.Name)
	}
	defer b.release()

	callCtx := ctx
	var cancel context.CancelFunc
	if b.config.OpTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, b.config.OpTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := b.run(callCtx, fn)
	duration := time.Since(start)

	if err != nil {
		b.record(false, duration)
		return nil, err
	}
	b.record(true, duration)
	if o.cacheKey != "" {
		b.fallbacks.put(o.cacheKey, result)
	}
	return result, nil
}

// run executes fn and converts a context deadline into a Timeout error.
// The wrapped call is abandoned once its deadline passes; its result, if
// any, is discarded.
func (b *Breaker) run(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	type outcome struct {
		v   any
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(ctx)
		done <- outcome{v, err}
	}()

	select {
	case out := <-done:
		return out.v, out.err
	case <-ctx.Done():
		return nil, errs.Wrap(ctx.Err(), errs.KindTimeout, "breaker %s call exceeded %s", b.config.Name, b.config.OpTimeout)
	}
}

func (b *Breaker) degraded(o callOptions) (any, bool) {
	if v, ok := b.fallbacks.get(o.cacheKey); ok {
		return v, true
	}
	if o.hasFallback {
		return o.fallbackValue, true
	}
	return nil, false
}

// acquire decides whether a call may proceed, applying the OPEN →
// HALF_OPEN transition when the open timeout has elapsed and capping
// concurrent half-open probes.
func (b *Breaker) acquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(b.stateEnteredAt) >= b.config.TimeoutDuration {
			b.transition(StateHalfOpen)
			b.halfOpenCalls = 1
			return true
		}
		return false
	case StateHalfOpen:
		if b.halfOpenCalls >= b.config.HalfOpenMaxCalls {
			return false
		}
		b.halfOpenCalls++
		return true
	}
	return false
}

func (b *Breaker) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen && b.halfOpenCalls > 0 {
		b.halfOpenCalls--
	}
}

// record updates counters, the rolling window, and applies transitions.
func (b *Breaker) record(ok bool, duration time.Duration) {
	slow := duration >= b.config.SlowCallThreshold

	b.total.Add(1)
	if ok {
		b.success.Add(1)
	} else {
		b.failed.Add(1)
	}
	if slow {
		b.slow.Add(1)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.window = append(b.window, windowEntry{ts: now, ok: ok, slow: slow, duration: duration})
	b.compactLocked(now)

	switch b.state {
	case StateClosed:
		if b.shouldTripLocked() {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.halfOpenTotal++
		if !ok {
			b.transition(StateOpen)
			return
		}
		b.halfOpenOK++
		if b.halfOpenOK >= 2 && float64(b.halfOpenOK)/float64(b.halfOpenTotal) >= 0.8 {
			b.transition(StateClosed)
		}
	case StateOpen:
		// A straggler finishing after the trip; window already recorded it.
	}
}

// shouldTripLocked evaluates the CLOSED → OPEN conditions: cumulative
// failures, windowed failure rate, or windowed slow-call rate.
func (b *Breaker) shouldTripLocked() bool {
	if b.failed.Load() >= b.config.FailureThreshold {
		return true
	}
	calls := len(b.window)
	if calls < b.config.MinWindowCalls {
		return false
	}
	var failures, slow int
	for _, e := range b.window {
		if !e.ok {
			failures++
		}
		if e.slow {
			slow++
		}
	}
	if float64(failures)/float64(calls) >= b.config.FailureRateThreshold {
		return true
	}
	return float64(slow)/float64(calls) >= b.config.SlowCallRateThreshold
}

// transition moves to a new state. Caller holds the lock. Counters reset on
// every entry so thresholds apply per state episode.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.stateEnteredAt = time.Now()
	b.halfOpenCalls = 0
	b.halfOpenOK = 0
	b.halfOpenTotal = 0

	b.total.Store(0)
	b.success.Store(0)
	b.failed.Store(0)
	b.slow.Store(0)

	log.Info().
		Str("breaker", b.config.Name).
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("circuit breaker state transition")

	if b.onTransition != nil {
		b.onTransition(b.config.Name, from, to)
	}
}

// compactLocked drops window entries older than the rolling window. Caller
// holds the lock.
func (b *Breaker) compactLocked(now time.Time) {
	cutoff := now.Add(-b.config.RollingWindow)
	i := 0
	for ; i < len(b.window); i++ {
		if b.window[i].ts.After(cutoff) {
			break
		}
	}
	if i > 0 {
		b.window = append(b.window[:0], b.window[i:]...)
	}
}

// Compact trims the rolling window; called from the background maintenance
// task so idle breakers do not hold stale entries.
func (b *Breaker) Compact() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.compactLocked(time.Now())
	b.fallbacks.sweep()
}

// CurrentState returns the state, applying the lazy OPEN → HALF_OPEN check
// so observers see the effective state.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Metrics is the observable breaker snapshot.
type Metrics struct {
	Name           string    `json:"name"`
	State          string    `json:"state"`
	StateEnteredAt time.Time `json:"state_entered_at"`
	Counters       Counters  `json:"counters"`
	WindowCalls    int       `json:"window_calls"`
	FailureRate    float64   `json:"failure_rate"`
	SlowCallRate   float64   `json:"slow_call_rate"`
}

// MetricsSnapshot returns current counters and windowed rates.
func (b *Breaker) MetricsSnapshot() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	var failures, slow int
	for _, e := range b.window {
		if !e.ok {
			failures++
		}
		if e.slow {
			slow++
		}
	}
	m := Metrics{
		Name:           b.config.Name,
		State:          b.state.String(),
		StateEnteredAt: b.stateEnteredAt,
		Counters: Counters{
			Total:    b.total.Load(),
			Success:  b.success.Load(),
			Failed:   b.failed.Load(),
			Rejected: b.rejected.Load(),
			Slow:     b.slow.Load(),
		},
		WindowCalls: len(b.window),
	}
	if len(b.window) > 0 {
		m.FailureRate = float64(failures) / float64(len(b.window))
		m.SlowCallRate = float64(slow) / float64(len(b.window))
	}
	return m
}

// Reset returns the breaker to CLOSED with empty counters and window.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateClosed {
		b.transition(StateClosed)
	} else {
		b.stateEnteredAt = time.Now()
		b.total.Store(0)
		b.success.Store(0)
		b.failed.Store(0)
		b.slow.Store(0)
	}
	b.window = b.window[:0]
	b.rejected.Store(0)
}
