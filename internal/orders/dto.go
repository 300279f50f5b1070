package orders

import (
	"encoding/json"
	"strings"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// CreateOrderRequest is the JSON body of the order creation endpoint. Items
// travel as a JSON encoded string.
type CreateOrderRequest struct {
	Amount              json.Number `json:"amount" validate:"required"`
	Items               string      `json:"items" validate:"required"`
	Subtotal            json.Number `json:"subtotal,omitempty"`
	DiscountAmount      json.Number `json:"discountAmount,omitempty"`
	Currency            string      `json:"currency,omitempty" validate:"omitempty,len=3"`
	CheckoutID          string      `json:"checkoutId,omitempty" validate:"omitempty,uuid"`
	FullName            string      `json:"fullName" validate:"required"`
	Email               string      `json:"email" validate:"required,email"`
	Phone               string      `json:"phone" validate:"required"`
	Address             string      `json:"address" validate:"required"`
	City                string      `json:"city" validate:"required"`
	ZipCode             string      `json:"zipCode" validate:"required"`
	Country             string      `json:"country" validate:"required"`
	PayPalOrderID       string      `json:"paypalOrderId" validate:"required"`
	PayPalTransactionID string      `json:"paypalTransactionId" validate:"required"`
	CouponID            string      `json:"couponId,omitempty"`
	CouponCode          string      `json:"couponCode,omitempty"`
}

// CreateOrderResponse is the JSON reply of the order creation endpoint.
type CreateOrderResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"orderId,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ToRequest renders an order in the wire format.
func ToRequest(order Order) (CreateOrderRequest, error) {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return CreateOrderRequest{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode order items")
	}
	return CreateOrderRequest{
		Amount:              json.Number(order.FinalAmount.StringFixed(2)),
		Items:               string(items),
		Subtotal:            json.Number(order.Subtotal.StringFixed(2)),
		DiscountAmount:      json.Number(order.DiscountAmount.StringFixed(2)),
		Currency:            order.Currency,
		CheckoutID:          order.CheckoutID,
		FullName:            order.Shipping.FullName,
		Email:               order.Shipping.Email,
		Phone:               order.Shipping.Phone,
		Address:             order.Shipping.Address,
		City:                order.Shipping.City,
		ZipCode:             order.Shipping.ZipCode,
		Country:             order.Shipping.Country,
		PayPalOrderID:       order.ProviderOrderID,
		PayPalTransactionID: order.TransactionID,
		CouponID:            order.CouponID,
		CouponCode:          order.CouponCode,
	}, nil
}

func decodeItems(raw string) ([]cart.LineItem, error) {
	var items []cart.LineItem
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &items); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "items must be a JSON encoded list")
	}
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "items must not be empty")
	}
	return items, nil
}
