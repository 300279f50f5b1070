package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
)

const (
	EventTypeOrderCompleted = "order.completed"

	defaultPublishTimeout = 10 * time.Second
)

// OrderCompletedEvent is published once per completed checkout.
type OrderCompletedEvent struct {
	EventID         string    `json:"event_id"`
	EventType       string    `json:"event_type"`
	OccurredAt      time.Time `json:"occurred_at"`
	CheckoutID      string    `json:"checkout_id"`
	OrderID         string    `json:"order_id"`
	ProviderOrderID string    `json:"provider_order_id"`
	TransactionID   string    `json:"transaction_id"`
	Currency        string    `json:"currency"`
	SubtotalCents   int64     `json:"subtotal_cents"`
	DiscountCents   int64     `json:"discount_cents"`
	TotalCents      int64     `json:"total_cents"`
	CouponCode      string    `json:"coupon_code,omitempty"`
	ItemCount       int       `json:"item_count"`
	EmailFailed     bool      `json:"email_failed"`
}

// EventPublisher emits completed-order events.
type EventPublisher interface {
	PublishOrderCompleted(ctx context.Context, event OrderCompletedEvent) error
}

// NoopEventPublisher drops events. Used when Pub/Sub is disabled.
type NoopEventPublisher struct{}

func (NoopEventPublisher) PublishOrderCompleted(context.Context, OrderCompletedEvent) error {
	return nil
}

type publisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

// PubSubEventPublisher publishes events as JSON messages.
type PubSubEventPublisher struct {
	pub     publisher
	timeout time.Duration
}

// NewPubSubEventPublisher wraps a Pub/Sub topic publisher.
func NewPubSubEventPublisher(p *gcppubsub.Publisher) (*PubSubEventPublisher, error) {
	if p == nil {
		return nil, errors.New("pubsub publisher required")
	}
	return newPubSubEventPublisher(&gcpPublisher{Publisher: p}), nil
}

func newPubSubEventPublisher(p publisher) *PubSubEventPublisher {
	return &PubSubEventPublisher{pub: p, timeout: defaultPublishTimeout}
}

func (p *PubSubEventPublisher) PublishOrderCompleted(ctx context.Context, event OrderCompletedEvent) error {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.EventType == "" {
		event.EventType = EventTypeOrderCompleted
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.EventType, err)
	}
	msg := &gcppubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event_id":          event.EventID,
			"event_type":        event.EventType,
			"checkout_id":       event.CheckoutID,
			"order_id":          event.OrderID,
			"provider_order_id": event.ProviderOrderID,
			"created_at":        event.OccurredAt.Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	result := p.pub.Publish(publishCtx, msg)
	if result == nil {
		return errors.New("publisher returned nil result")
	}
	if _, err := result.Get(publishCtx); err != nil {
		return fmt.Errorf("publish %s event: %w", event.EventType, err)
	}
	return nil
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
