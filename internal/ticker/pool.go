// Package ticker is the outbound HTTP client for the ticker service: the
// single place the service talks to the network. It never retries; status
// codes map onto the error taxonomy and resilience lives in the breakers.
package ticker

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// PoolConfig tunes the shared HTTP client.
type PoolConfig struct {
	MaxConcurrency int
	RequestTimeout time.Duration
	UserAgent      string
}

// DefaultPoolConfig returns the production transport settings.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConcurrency: 32,
		RequestTimeout: 30 * time.Second,
		UserAgent:      "signalsd/1.0",
	}
}

// clientPool wraps one shared, connection-pooled http.Client behind a
// concurrency semaphore.
type clientPool struct {
	config    PoolConfig
	semaphore chan struct{}
	client    *http.Client

	mu    sync.Mutex
	stats PoolStats
}

// PoolStats counts transport outcomes.
type PoolStats struct {
	TotalRequests  int64
	FailedRequests int64
	TotalLatency   time.Duration
}

func newClientPool(config PoolConfig) *clientPool {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 32
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 30 * time.Second
	}
	return &clientPool{
		config:    config,
		semaphore: make(chan struct{}, config.MaxConcurrency),
		client: &http.Client{
			Timeout: config.RequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Do performs one request under the concurrency limit. No retries: a
// failed call is the caller's to classify.
func (cp *clientPool) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	select {
	case cp.semaphore <- struct{}{}:
		defer func() { <-cp.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if cp.config.UserAgent != "" {
		req.Header.Set("User-Agent", cp.config.UserAgent)
	}

	start := time.Now()
	resp, err := cp.client.Do(req.WithContext(ctx))
	cp.record(time.Since(start), err != nil)
	return resp, err
}

func (cp *clientPool) record(latency time.Duration, failed bool) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.stats.TotalRequests++
	cp.stats.TotalLatency += latency
	if failed {
		cp.stats.FailedRequests++
	}
}

// Stats returns a transport counter snapshot.
func (cp *clientPool) Stats() PoolStats {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return cp.stats
}
