package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

const (
	captureOutcomeCompleted = "completed"
	captureOutcomePending   = "pending"
	captureOutcomeFailed    = "failed"
	captureOutcomeDuplicate = "duplicate"
)

// Session wraps provider order creation and the latched capture.
type Session struct {
	provider Provider
	latch    Latch
	currency string
	metrics  captureMetrics
}

// NewSession wires a payment session.
func NewSession(provider Provider, latch Latch, currency string, metrics captureMetrics) (*Session, error) {
	if provider == nil {
		return nil, fmt.Errorf("payment provider required")
	}
	if latch == nil {
		return nil, fmt.Errorf("capture latch required")
	}
	return &Session{
		provider: provider,
		latch:    latch,
		currency: strings.ToUpper(strings.TrimSpace(currency)),
		metrics:  metrics,
	}, nil
}

// CreateOrder opens a provider order for the priced cart. An empty cart or a
// non-positive total fails before the provider is contacted.
func (s *Session) CreateOrder(ctx context.Context, snapshot cart.Snapshot, totals pricing.Totals, reference, invoiceID string) (string, error) {
	if snapshot.IsEmpty() || !totals.FinalAmount.IsPositive() {
		return "", pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
	}

	lines := make([]OrderLine, 0, len(snapshot.Items))
	for _, item := range snapshot.Items {
		line := OrderLine{
			Name:       item.Name,
			UnitAmount: item.UnitPrice.Round(2),
			Quantity:   item.Quantity,
		}
		if item.SelectedVariation != nil {
			line.SKU = item.SelectedVariation.SKU
		}
		if line.Name == "" {
			line.Name = item.ID
		}
		lines = append(lines, line)
	}

	id, err := s.provider.CreateOrder(ctx, CreateOrderRequest{
		Reference: reference,
		InvoiceID: invoiceID,
		Currency:  s.currency,
		Items:     lines,
		ItemTotal: totals.Subtotal,
		Discount:  totals.DiscountAmount,
		Total:     totals.FinalAmount,
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return "", err
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment order")
	}
	return id, nil
}

// Capture finalizes the provider order exactly once. A second call for the
// same order returns CAPTURE_ALREADY_ATTEMPTED without reaching the provider,
// and a provider failure is never retried here.
func (s *Session) Capture(ctx context.Context, providerOrderID, owner string) (Capture, error) {
	providerOrderID = strings.TrimSpace(providerOrderID)
	if providerOrderID == "" {
		return Capture{}, pkgerrors.New(pkgerrors.CodeValidation, "provider order id is required")
	}

	acquired, err := s.latch.Acquire(ctx, providerOrderID, owner)
	if err != nil {
		return Capture{}, pkgerrors.Wrap(pkgerrors.CodeServiceUnavailable, err, "capture latch unavailable")
	}
	if !acquired {
		s.observe(captureOutcomeDuplicate)
		return Capture{}, pkgerrors.New(pkgerrors.CodeCaptureAttempted, "payment capture already attempted").
			WithDetails(map[string]any{"provider_order_id": providerOrderID})
	}

	capture, err := s.provider.CaptureOrder(ctx, providerOrderID)
	if err != nil {
		s.observe(captureOutcomeFailed)
		return Capture{}, captureFailed(providerOrderID, err)
	}
	if capture.Status == enums.CaptureStatusFailed {
		s.observe(captureOutcomeFailed)
		return Capture{}, pkgerrors.New(pkgerrors.CodeCaptureFailed, "payment was declined").
			WithDetails(map[string]any{"provider_order_id": providerOrderID})
	}
	if capture.ProviderOrderID == "" {
		capture.ProviderOrderID = providerOrderID
	}
	if capture.Status == enums.CaptureStatusPending {
		s.observe(captureOutcomePending)
	} else {
		s.observe(captureOutcomeCompleted)
	}
	return capture, nil
}

func (s *Session) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.IncCapture(outcome)
	}
}

func captureFailed(providerOrderID string, err error) error {
	details := map[string]any{"provider_order_id": providerOrderID}
	if typed := pkgerrors.As(err); typed != nil {
		if provider, ok := typed.Details().(map[string]any); ok {
			details["provider"] = provider
		}
	}
	return pkgerrors.Wrap(pkgerrors.CodeCaptureFailed, err, "payment could not be captured").WithDetails(details)
}
