package orders

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	DefaultPersistAttempts = 3
	DefaultPersistBackoff  = time.Second

	outcomeSuccess   = "success"
	outcomeRetryable = "retryable"
	outcomeFinal     = "final"
)

// Persister submits a finalized order to the store with bounded retries.
// Backoff starts at the configured base and doubles after every failed
// attempt. A 4xx rejection stops immediately.
type Persister struct {
	store    Store
	attempts int
	backoff  time.Duration
	timeout  time.Duration
	metrics  persistMetrics
	logg     *logger.Logger
}

// PersisterOption configures optional persister behavior.
type PersisterOption func(*Persister)

// WithPersistMetrics records attempt outcomes and total duration.
func WithPersistMetrics(m persistMetrics) PersisterOption {
	return func(p *Persister) {
		p.metrics = m
	}
}

// WithAttemptTimeout bounds each store call so one hung attempt cannot use
// up the whole persist budget.
func WithAttemptTimeout(d time.Duration) PersisterOption {
	return func(p *Persister) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// NewPersister wires the persister. Non-positive attempts or backoff fall
// back to the defaults.
func NewPersister(store Store, attempts int, backoff time.Duration, logg *logger.Logger, opts ...PersisterOption) (*Persister, error) {
	if store == nil {
		return nil, fmt.Errorf("order store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if attempts <= 0 {
		attempts = DefaultPersistAttempts
	}
	if backoff <= 0 {
		backoff = DefaultPersistBackoff
	}
	p := &Persister{store: store, attempts: attempts, backoff: backoff, logg: logg}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// Attempts returns the configured attempt budget.
func (p *Persister) Attempts() int {
	return p.attempts
}

// Save stores order and returns the assigned order id. On exhaustion or a
// final rejection it returns ORDER_SAVE_FAILED wrapping the last store error.
func (p *Persister) Save(ctx context.Context, order Order) (string, error) {
	started := time.Now()
	ctx = p.logg.WithFields(ctx, map[string]any{
		"provider_order_id": order.ProviderOrderID,
		"transaction_id":    order.TransactionID,
	})

	var (
		orderID string
		lastErr error
		tries   int
	)
	backoff := retry.WithMaxRetries(uint64(p.attempts-1), retry.NewExponential(p.backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		tries++
		id, err := p.createOrder(ctx, order)
		if err == nil && strings.TrimSpace(id) == "" {
			err = &StoreError{StatusCode: http.StatusBadGateway, Message: "order store returned no order id"}
		}
		if err == nil {
			orderID = id
			p.observeAttempt(outcomeSuccess)
			return nil
		}

		lastErr = err
		attemptCtx := p.logg.WithFields(ctx, map[string]any{
			"attempt":      tries,
			"max_attempts": p.attempts,
			"error":        err.Error(),
		})
		if !IsRetryable(err) {
			p.observeAttempt(outcomeFinal)
			p.logg.Warn(attemptCtx, "order store rejected order")
			return err
		}
		p.observeAttempt(outcomeRetryable)
		p.logg.Warn(attemptCtx, "order store attempt failed")
		return retry.RetryableError(err)
	})
	if p.metrics != nil {
		p.metrics.ObservePersistDuration(time.Since(started))
	}
	if err == nil {
		p.logg.Info(p.logg.WithFields(ctx, map[string]any{"order_id": orderID, "attempts": tries}), "order persisted")
		return orderID, nil
	}

	if lastErr == nil {
		lastErr = err
	}
	retryable := IsRetryable(lastErr)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		lastErr = fmt.Errorf("%w (after %v)", err, lastErr)
	}
	failure := pkgerrors.Wrap(pkgerrors.CodeOrderSaveFailed, lastErr, "order could not be saved").
		WithDetails(map[string]any{
			"attempts":  tries,
			"retryable": retryable,
		})
	p.logg.Error(p.logg.WithFields(ctx, map[string]any{"attempts": tries}), "order persistence failed", failure)
	return "", failure
}

func (p *Persister) createOrder(ctx context.Context, order Order) (string, error) {
	if p.timeout <= 0 {
		return p.store.CreateOrder(ctx, order)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.store.CreateOrder(attemptCtx, order)
}

func (p *Persister) observeAttempt(outcome string) {
	if p.metrics != nil {
		p.metrics.IncPersistAttempt(outcome)
	}
}
