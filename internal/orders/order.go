package orders

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/internal/shipping"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Order is a finalized checkout ready to be stored.
type Order struct {
	ID              string           `json:"id,omitempty"`
	CheckoutID      string           `json:"checkout_id,omitempty"`
	Items           []cart.LineItem  `json:"items"`
	Subtotal        decimal.Decimal  `json:"subtotal"`
	DiscountAmount  decimal.Decimal  `json:"discount_amount"`
	FinalAmount     decimal.Decimal  `json:"final_amount"`
	Currency        string           `json:"currency"`
	Shipping        shipping.Address `json:"shipping"`
	ProviderOrderID string           `json:"provider_order_id"`
	TransactionID   string           `json:"transaction_id"`
	CouponID        string           `json:"coupon_id,omitempty"`
	CouponCode      string           `json:"coupon_code,omitempty"`
	CreatedAt       time.Time        `json:"created_at,omitempty"`
}

// StoreError is a failed call to an order store. StatusCode is zero for
// transport failures.
type StoreError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *StoreError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("order store unreachable: %v", e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("order store returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("order store returned %d", e.StatusCode)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) UpstreamStatus() int {
	return e.StatusCode
}

// Retryable reports whether the failure may be transient. Any 4xx is a
// rejection of the request itself and is final.
func (e *StoreError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode >= http.StatusInternalServerError
}

// IsRetryable classifies an arbitrary store error. Typed application errors
// are final when they map to a 4xx status.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Retryable()
	}
	if typed := pkgerrors.As(err); typed != nil {
		return pkgerrors.MetadataFor(typed.Code()).HTTPStatus >= http.StatusInternalServerError
	}
	return true
}

// FromModel converts a stored row into an Order.
func FromModel(row *models.Order) Order {
	if row == nil {
		return Order{}
	}
	order := Order{
		ID:              row.ID.String(),
		Items:           row.Items,
		Subtotal:        pricing.FromCents(row.SubtotalCents),
		DiscountAmount:  pricing.FromCents(row.DiscountCents),
		FinalAmount:     pricing.FromCents(row.TotalCents),
		Currency:        row.Currency.String(),
		Shipping:        row.Shipping,
		ProviderOrderID: row.PayPalOrderID,
		TransactionID:   row.PayPalTransactionID,
		CreatedAt:       row.CreatedAt,
	}
	if row.CheckoutID != nil {
		order.CheckoutID = row.CheckoutID.String()
	}
	if row.CouponID != nil {
		order.CouponID = *row.CouponID
	}
	if row.CouponCode != nil {
		order.CouponCode = *row.CouponCode
	}
	return order
}

func toModel(order Order) (*models.Order, error) {
	currency, err := enums.ParseCurrency(order.Currency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported currency")
	}
	row := &models.Order{
		PayPalOrderID:       order.ProviderOrderID,
		PayPalTransactionID: order.TransactionID,
		Currency:            currency,
		Items:               order.Items,
		SubtotalCents:       pricing.ToCents(order.Subtotal),
		DiscountCents:       pricing.ToCents(order.DiscountAmount),
		TotalCents:          pricing.ToCents(order.FinalAmount),
		Shipping:            order.Shipping,
	}
	if order.CheckoutID != "" {
		checkoutID, err := uuid.Parse(order.CheckoutID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid checkout id")
		}
		row.CheckoutID = &checkoutID
	}
	if order.CouponID != "" {
		id := order.CouponID
		row.CouponID = &id
	}
	if order.CouponCode != "" {
		code := order.CouponCode
		row.CouponCode = &code
	}
	return row, nil
}
