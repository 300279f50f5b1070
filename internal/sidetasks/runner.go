package sidetasks

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const defaultTimeout = 10 * time.Second

// Task is a best-effort unit of work.
type Task func(ctx context.Context) error

type failureMetrics interface {
	IncSideTaskFailure(task string)
}

// Runner executes detached tasks whose outcome never reaches the caller.
// Each task gets its own timeout and is detached from the caller's
// cancellation while keeping its logging fields.
type Runner struct {
	logg    *logger.Logger
	timeout time.Duration
	metrics failureMetrics
	wg      sync.WaitGroup
}

// NewRunner builds a runner. A non-positive timeout uses the default.
func NewRunner(logg *logger.Logger, timeout time.Duration, metrics failureMetrics) (*Runner, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Runner{logg: logg, timeout: timeout, metrics: metrics}, nil
}

// Go starts fn in its own goroutine.
func (r *Runner) Go(ctx context.Context, name string, fn Task) {
	if fn == nil {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(context.WithoutCancel(ctx), name, fn)
	}()
}

func (r *Runner) run(parent context.Context, name string, fn Task) {
	ctx, cancel := context.WithTimeout(parent, r.timeout)
	defer cancel()
	logCtx := r.logg.WithField(ctx, "side_task", name)

	defer func() {
		if rec := recover(); rec != nil {
			r.fail(logCtx, name, fmt.Errorf("panic: %v\n%s", rec, debug.Stack()))
		}
	}()

	started := time.Now()
	if err := fn(ctx); err != nil {
		r.fail(logCtx, name, err)
		return
	}
	r.logg.Debug(r.logg.WithField(logCtx, "duration_ms", time.Since(started).Milliseconds()), "side task finished")
}

func (r *Runner) fail(ctx context.Context, name string, err error) {
	if r.metrics != nil {
		r.metrics.IncSideTaskFailure(name)
	}
	r.logg.Error(ctx, "side task failed", err)
}

// Wait blocks until running tasks finish or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
