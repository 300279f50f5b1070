package checkout

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/internal/shipping"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Context is the single mutable record of one checkout attempt. Every
// dispatch loads it, runs one transition and stores it again.
type Context struct {
	ID               uuid.UUID           `json:"id"`
	State            enums.CheckoutState `json:"state"`
	Cart             cart.Snapshot       `json:"cart"`
	Shipping         shipping.Address    `json:"shipping"`
	AppliedCoupon    *coupons.Coupon     `json:"applied_coupon,omitempty"`
	Totals           pricing.Totals      `json:"totals"`
	ProviderOrderID  string              `json:"provider_order_id,omitempty"`
	ProviderOrderIDs []string            `json:"provider_order_ids,omitempty"`
	CaptureLatched   bool                `json:"capture_latched"`
	Capture          *payments.Capture   `json:"capture,omitempty"`
	MissingFields    []shipping.Field    `json:"missing_fields"`
	Failure          *Failure            `json:"failure,omitempty"`
	Outcome          *Outcome            `json:"outcome,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// Failure describes why a checkout ended in the failed state. Post-capture
// failures always carry the provider order id.
type Failure struct {
	Kind             enums.FailureKind `json:"kind"`
	Message          string            `json:"message"`
	ProviderOrderID  string            `json:"provider_order_id,omitempty"`
	SupportReference string            `json:"support_reference,omitempty"`
	At               time.Time         `json:"at"`
}

// Outcome is the result of a completed checkout.
type Outcome struct {
	OrderID         string          `json:"order_id"`
	ProviderOrderID string          `json:"provider_order_id"`
	TransactionID   string          `json:"transaction_id"`
	FinalAmount     decimal.Decimal `json:"final_amount"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	Currency        string          `json:"currency"`
	EmailFailed     bool            `json:"email_failed"`
	CompletedAt     time.Time       `json:"completed_at"`
}

// PaymentTaken reports whether funds may have moved for this checkout. Once
// true there is no way back to idle.
func (c *Context) PaymentTaken() bool {
	return c.CaptureLatched || c.Capture != nil || c.State.IsPostCapture()
}

// OwnsProviderOrder reports whether the provider order was opened by this
// checkout.
func (c *Context) OwnsProviderOrder(providerOrderID string) bool {
	for _, id := range c.ProviderOrderIDs {
		if id == providerOrderID {
			return true
		}
	}
	return false
}

// PaymentOpened reports whether a provider order exists, which freezes the
// cart and coupon.
func (c *Context) PaymentOpened() bool {
	return len(c.ProviderOrderIDs) > 0
}

func (c *Context) reprice() {
	c.Totals = pricing.ComputeTotals(c.Cart.Subtotal(), c.AppliedCoupon)
}
