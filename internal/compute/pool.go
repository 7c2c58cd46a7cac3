// Package compute bounds the CPU-bound numeric kernels (greeks arrays, IV
// solving) to a fixed worker budget with a small queue. Beyond the queue,
// submissions fail fast so the breaker's reject path is taken.
package compute

import (
	"context"
	"runtime"

	"github.com/quantsignals/signalsd/internal/errs"
)

// Pool is a bounded execution slot pool. Each Run occupies one slot for
// the duration of the kernel; queued callers wait in a bounded backlog.
type Pool struct {
	slots   chan struct{}
	backlog chan struct{}
}

// NewPool creates a pool with the given parallelism and a queue depth of
// three times the worker count. workers <= 0 selects the available
// parallelism.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{
		slots:   make(chan struct{}, workers),
		backlog: make(chan struct{}, workers*3),
	}
}

// Run executes fn on a pool slot. The caller suspends while the kernel
// runs. When the backlog is full, Run fails immediately with CircuitOpen
// semantics left to the wrapping breaker; here it is a plain rejection.
func (p *Pool) Run(ctx context.Context, fn func() error) error {
	select {
	case p.backlog <- struct{}{}:
		defer func() { <-p.backlog }()
	default:
		return errs.ServiceUnavailable("compute pool backlog full")
	}

	select {
	case p.slots <- struct{}{}:
		defer func() { <-p.slots }()
	case <-ctx.Done():
		return errs.Wrap(ctx.Err(), errs.KindTimeout, "waiting for compute slot")
	}

	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, errs.KindTimeout, "compute cancelled before start")
	}
	return fn()
}

// Size returns the worker budget.
func (p *Pool) Size() int { return cap(p.slots) }
