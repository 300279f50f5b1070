package payments

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/internal/shipping"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Capture is the result of a successful capture call. It is never mutated
// once returned.
type Capture struct {
	ProviderOrderID string              `json:"provider_order_id"`
	TransactionID   string              `json:"transaction_id"`
	PayerShipping   shipping.Address    `json:"payer_shipping"`
	CapturedAmount  decimal.Decimal     `json:"captured_amount"`
	Currency        string              `json:"currency"`
	Status          enums.CaptureStatus `json:"status"`
}

// OrderLine is a cart line as presented to the provider.
type OrderLine struct {
	Name       string
	SKU        string
	UnitAmount decimal.Decimal
	Quantity   int
}

// CreateOrderRequest carries everything the provider needs to open an order.
type CreateOrderRequest struct {
	Reference string
	InvoiceID string
	Currency  string
	Items     []OrderLine
	ItemTotal decimal.Decimal
	Discount  decimal.Decimal
	Total     decimal.Decimal
}

// Provider is the external payment processor.
type Provider interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (string, error)
	CaptureOrder(ctx context.Context, providerOrderID string) (Capture, error)
}

// Latch guards the one-time capture of a provider order. Acquire returns
// false when the order was already latched.
type Latch interface {
	Acquire(ctx context.Context, providerOrderID, owner string) (bool, error)
}

type captureMetrics interface {
	IncCapture(outcome string)
}
