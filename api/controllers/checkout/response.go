package checkout

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/shipping"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type couponView struct {
	Code            string          `json:"code"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
}

type totalsView struct {
	Subtotal        decimal.Decimal `json:"subtotal"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	FinalAmount     decimal.Decimal `json:"final_amount"`
	Currency        string          `json:"currency"`
}

type failureView struct {
	Kind             string `json:"kind"`
	Message          string `json:"message"`
	ProviderOrderID  string `json:"provider_order_id,omitempty"`
	SupportReference string `json:"support_reference,omitempty"`
	Restart          bool   `json:"restart"`
}

type outcomeView struct {
	OrderID         string          `json:"order_id"`
	ProviderOrderID string          `json:"provider_order_id"`
	TransactionID   string          `json:"transaction_id"`
	FinalAmount     decimal.Decimal `json:"final_amount"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	Currency        string          `json:"currency"`
	EmailFailed     bool            `json:"email_failed"`
	CompletedAt     time.Time       `json:"completed_at"`
}

type checkoutView struct {
	ID              uuid.UUID        `json:"id"`
	State           string           `json:"state"`
	Items           []types.LineItem `json:"items"`
	ItemCount       int              `json:"item_count"`
	Coupon          *couponView      `json:"coupon,omitempty"`
	Totals          totalsView       `json:"totals"`
	Shipping        shipping.Address `json:"shipping"`
	MissingFields   []shipping.Field `json:"missing_fields"`
	ProviderOrderID string           `json:"provider_order_id,omitempty"`
	Failure         *failureView     `json:"failure,omitempty"`
	Outcome         *outcomeView     `json:"outcome,omitempty"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

type paymentConfigView struct {
	ClientID         string `json:"client_id"`
	Currency         string `json:"currency"`
	Environment      string `json:"environment"`
	SDKLoadTimeoutMs int64  `json:"sdk_load_timeout_ms"`
	ProviderOrderID  string `json:"provider_order_id,omitempty"`
}

func newCheckoutView(c *checkoutsvc.Context, currency string) checkoutView {
	items := c.Cart.Items
	if items == nil {
		items = []types.LineItem{}
	}
	missing := c.MissingFields
	if missing == nil {
		missing = []shipping.Field{}
	}
	view := checkoutView{
		ID:        c.ID,
		State:     c.State.String(),
		Items:     items,
		ItemCount: c.Cart.ItemCount(),
		Totals: totalsView{
			Subtotal:        c.Totals.Subtotal,
			DiscountPercent: c.Totals.DiscountPercent,
			DiscountAmount:  c.Totals.DiscountAmount,
			FinalAmount:     c.Totals.FinalAmount,
			Currency:        currency,
		},
		Shipping:        c.Shipping,
		MissingFields:   missing,
		ProviderOrderID: c.ProviderOrderID,
		UpdatedAt:       c.UpdatedAt,
	}
	if c.AppliedCoupon != nil {
		view.Coupon = &couponView{Code: c.AppliedCoupon.Code, DiscountPercent: c.AppliedCoupon.DiscountPercent}
	}
	if f := c.Failure; f != nil {
		view.Failure = &failureView{
			Kind:             f.Kind.String(),
			Message:          f.Message,
			ProviderOrderID:  f.ProviderOrderID,
			SupportReference: f.SupportReference,
			Restart:          !c.PaymentTaken(),
		}
	}
	if o := c.Outcome; o != nil {
		view.Outcome = &outcomeView{
			OrderID:         o.OrderID,
			ProviderOrderID: o.ProviderOrderID,
			TransactionID:   o.TransactionID,
			FinalAmount:     o.FinalAmount,
			DiscountAmount:  o.DiscountAmount,
			Currency:        o.Currency,
			EmailFailed:     o.EmailFailed,
			CompletedAt:     o.CompletedAt,
		}
	}
	return view
}
