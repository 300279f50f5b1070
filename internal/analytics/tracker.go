package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// EventType names a step in the checkout funnel.
type EventType string

const (
	EventCheckoutStarted EventType = "checkout_started"
	EventPaymentCreated  EventType = "payment_created"
	EventPaymentCaptured EventType = "payment_captured"
	EventOrderCompleted  EventType = "order_completed"
	EventCheckoutFailed  EventType = "checkout_failed"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaximumBackoff = 2 * time.Second
)

// Event is a single checkout funnel observation.
type Event struct {
	Type            EventType
	CheckoutID      string
	ProviderOrderID string
	OrderID         string
	State           string
	FailureKind     string
	SubtotalCents   int64
	DiscountCents   int64
	TotalCents      int64
	CouponCode      string
	Payload         map[string]any
	OccurredAt      time.Time
}

// CheckoutEventRow mirrors the checkout_events BigQuery schema.
type CheckoutEventRow struct {
	EventID         string             `bigquery:"event_id"`
	EventType       string             `bigquery:"event_type"`
	OccurredAt      time.Time          `bigquery:"occurred_at"`
	CheckoutID      string             `bigquery:"checkout_id"`
	ProviderOrderID *string            `bigquery:"provider_order_id"`
	OrderID         *string            `bigquery:"order_id"`
	State           *string            `bigquery:"state"`
	FailureKind     *string            `bigquery:"failure_kind"`
	SubtotalCents   int64              `bigquery:"subtotal_cents"`
	DiscountCents   int64              `bigquery:"discount_cents"`
	TotalCents      int64              `bigquery:"total_cents"`
	CouponCode      *string            `bigquery:"coupon_code"`
	Payload         cbigquery.NullJSON `bigquery:"payload"`
}

// CheckoutEventPartitionField is the day-partition column of the events table.
const CheckoutEventPartitionField = "occurred_at"

// CheckoutEventSchema is the table schema for CheckoutEventRow.
func CheckoutEventSchema() cbigquery.Schema {
	required := func(name string, t cbigquery.FieldType) *cbigquery.FieldSchema {
		return &cbigquery.FieldSchema{Name: name, Type: t, Required: true}
	}
	nullable := func(name string, t cbigquery.FieldType) *cbigquery.FieldSchema {
		return &cbigquery.FieldSchema{Name: name, Type: t}
	}
	return cbigquery.Schema{
		required("event_id", cbigquery.StringFieldType),
		required("event_type", cbigquery.StringFieldType),
		required(CheckoutEventPartitionField, cbigquery.TimestampFieldType),
		required("checkout_id", cbigquery.StringFieldType),
		nullable("provider_order_id", cbigquery.StringFieldType),
		nullable("order_id", cbigquery.StringFieldType),
		nullable("state", cbigquery.StringFieldType),
		nullable("failure_kind", cbigquery.StringFieldType),
		required("subtotal_cents", cbigquery.IntegerFieldType),
		required("discount_cents", cbigquery.IntegerFieldType),
		required("total_cents", cbigquery.IntegerFieldType),
		nullable("coupon_code", cbigquery.StringFieldType),
		nullable("payload", cbigquery.JSONFieldType),
	}
}

// Tracker records checkout funnel events.
type Tracker interface {
	Track(ctx context.Context, event Event) error
}

// NoopTracker drops every event. Used when analytics are disabled.
type NoopTracker struct{}

func (NoopTracker) Track(context.Context, Event) error { return nil }

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// RetryPolicy controls how many times BigQuery inserts are retried.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

// BigQueryTracker inserts one row per event into the checkout events table.
type BigQueryTracker struct {
	client tableInserter
	table  string
	retry  RetryPolicy
	now    func() time.Time
}

// NewBigQueryTracker builds a tracker over a shared BigQuery client.
func NewBigQueryTracker(client tableInserter, table string, policy RetryPolicy) (*BigQueryTracker, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	trimmed := strings.TrimSpace(table)
	if trimmed == "" {
		return nil, errors.New("checkout events table is required")
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = defaultMaxAttempts
	}
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = defaultInitialBackoff
	}
	if policy.MaximumBackoff < policy.InitialBackoff {
		policy.MaximumBackoff = max(defaultMaximumBackoff, policy.InitialBackoff)
	}
	return &BigQueryTracker{
		client: client,
		table:  trimmed,
		retry:  policy,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (t *BigQueryTracker) Track(ctx context.Context, event Event) error {
	row, err := t.row(event)
	if err != nil {
		return err
	}
	backoff := retry.NewExponential(t.retry.InitialBackoff)
	backoff = retry.WithCappedDuration(t.retry.MaximumBackoff, backoff)
	backoff = retry.WithMaxRetries(uint64(t.retry.MaxAttempts-1), backoff)

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := t.client.InsertRows(ctx, t.table, []any{row})
		if err == nil {
			return nil
		}
		wrapped := fmt.Errorf("insert %s rows: %w", t.table, err)
		if isRetryableBigQueryError(err) {
			return retry.RetryableError(wrapped)
		}
		return wrapped
	})
}

func (t *BigQueryTracker) row(event Event) (*CheckoutEventRow, error) {
	if event.Type == "" {
		return nil, errors.New("event type is required")
	}
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = t.now()
	}
	row := &CheckoutEventRow{
		EventID:         uuid.NewString(),
		EventType:       string(event.Type),
		OccurredAt:      occurred.UTC(),
		CheckoutID:      event.CheckoutID,
		ProviderOrderID: optional(event.ProviderOrderID),
		OrderID:         optional(event.OrderID),
		State:           optional(event.State),
		FailureKind:     optional(event.FailureKind),
		SubtotalCents:   event.SubtotalCents,
		DiscountCents:   event.DiscountCents,
		TotalCents:      event.TotalCents,
		CouponCode:      optional(event.CouponCode),
	}
	if len(event.Payload) > 0 {
		raw, err := json.Marshal(event.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode event payload: %w", err)
		}
		row.Payload = cbigquery.NullJSON{JSONVal: string(raw), Valid: true}
	}
	return row, nil
}

func optional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func isRetryableBigQueryError(err error) bool {
	if err == nil {
		return false
	}

	var pme cbigquery.PutMultiError
	if errors.As(err, &pme) {
		if len(pme) == 0 {
			return false
		}
		for _, rowErr := range pme {
			if !isRetryableBigQueryError(rowErr.Errors) {
				return false
			}
		}
		return true
	}

	var multi cbigquery.MultiError
	if errors.As(err, &multi) {
		if len(multi) == 0 {
			return false
		}
		for _, inner := range multi {
			if !isRetryableBigQueryError(inner) {
				return false
			}
		}
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return isRetryableHTTPCode(apiErr.Code)
	}

	var statusErr interface{ GRPCStatus() *status.Status }
	if errors.As(err, &statusErr) {
		if st := statusErr.GRPCStatus(); st != nil {
			return isRetryableGRPCCode(st.Code())
		}
	}

	return false
}

func isRetryableHTTPCode(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func isRetryableGRPCCode(code codes.Code) bool {
	switch code {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted, codes.Internal:
		return true
	default:
		return false
	}
}
