package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/stretchr/testify/require"
)

type stubPublishResult struct {
	err error
}

func (r stubPublishResult) Get(context.Context) (string, error) {
	return "msg-1", r.err
}

type stubPublisher struct {
	messages []*gcppubsub.Message
	err      error
}

func (p *stubPublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	p.messages = append(p.messages, msg)
	return stubPublishResult{err: p.err}
}

func TestPublishOrderCompletedEnvelope(t *testing.T) {
	pub := &stubPublisher{}
	events := newPubSubEventPublisher(pub)

	err := events.PublishOrderCompleted(context.Background(), OrderCompletedEvent{
		CheckoutID:      "chk-1",
		OrderID:         "order-1",
		ProviderOrderID: "PP-1",
		TotalCents:      18000,
	})
	require.NoError(t, err)
	require.Len(t, pub.messages, 1)

	msg := pub.messages[0]
	require.Equal(t, EventTypeOrderCompleted, msg.Attributes["event_type"])
	require.Equal(t, "order-1", msg.Attributes["order_id"])
	require.Equal(t, "PP-1", msg.Attributes["provider_order_id"])
	require.NotEmpty(t, msg.Attributes["event_id"])

	var decoded OrderCompletedEvent
	require.NoError(t, json.Unmarshal(msg.Data, &decoded))
	require.Equal(t, int64(18000), decoded.TotalCents)
	require.Equal(t, msg.Attributes["event_id"], decoded.EventID)
	require.False(t, decoded.OccurredAt.IsZero())
}

func TestPublishOrderCompletedSurfacesPublishError(t *testing.T) {
	pub := &stubPublisher{err: errors.New("topic not found")}
	err := newPubSubEventPublisher(pub).PublishOrderCompleted(context.Background(), OrderCompletedEvent{OrderID: "order-1"})
	require.ErrorContains(t, err, "topic not found")
}

func TestNewPubSubEventPublisherRequiresPublisher(t *testing.T) {
	_, err := NewPubSubEventPublisher(nil)
	require.Error(t, err)
}
