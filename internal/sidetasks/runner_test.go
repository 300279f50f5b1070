package sidetasks

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type countingMetrics struct {
	mu       sync.Mutex
	failures map[string]int
}

func (m *countingMetrics) IncSideTaskFailure(task string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures == nil {
		m.failures = map[string]int{}
	}
	m.failures[task]++
}

func (m *countingMetrics) count(task string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures[task]
}

func newTestRunner(t *testing.T, timeout time.Duration, metrics failureMetrics) *Runner {
	t.Helper()
	r, err := NewRunner(logger.New(logger.Options{ServiceName: "sidetasks-test", Output: io.Discard}), timeout, metrics)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	return r
}

func TestGoSurvivesCallerCancellation(t *testing.T) {
	r := newTestRunner(t, time.Second, nil)
	ctx, cancel := context.WithCancel(context.Background())

	ran := make(chan error, 1)
	r.Go(ctx, "email", func(ctx context.Context) error {
		time.Sleep(10 * time.Millisecond)
		ran <- ctx.Err()
		return nil
	})
	cancel()

	if err := r.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if err := <-ran; err != nil {
		t.Fatalf("task context should not inherit caller cancellation, got %v", err)
	}
}

func TestFailuresAndPanicsAreCountedNotPropagated(t *testing.T) {
	metrics := &countingMetrics{}
	r := newTestRunner(t, time.Second, metrics)

	r.Go(context.Background(), "coupon_usage", func(context.Context) error { return errors.New("db down") })
	r.Go(context.Background(), "analytics", func(context.Context) error { panic("boom") })
	r.Go(context.Background(), "event", func(context.Context) error { return nil })

	if err := r.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if metrics.count("coupon_usage") != 1 || metrics.count("analytics") != 1 || metrics.count("event") != 0 {
		t.Fatalf("unexpected failure counts %+v", metrics.failures)
	}
}

func TestTaskTimeoutIsEnforced(t *testing.T) {
	metrics := &countingMetrics{}
	r := newTestRunner(t, 5*time.Millisecond, metrics)

	r.Go(context.Background(), "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err := r.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if metrics.count("slow") != 1 {
		t.Fatal("expected timeout to be recorded as failure")
	}
}

func TestWaitHonoursContext(t *testing.T) {
	r := newTestRunner(t, time.Second, nil)
	release := make(chan struct{})
	r.Go(context.Background(), "blocked", func(context.Context) error {
		<-release
		return nil
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if err := r.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
