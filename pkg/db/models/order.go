package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Order is the persisted record of a paid checkout. At most one row exists per
// PayPal transaction id.
type Order struct {
	ID                  uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	CheckoutID          *uuid.UUID            `gorm:"column:checkout_id;type:uuid"`
	PayPalOrderID       string                `gorm:"column:paypal_order_id;type:text;not null"`
	PayPalTransactionID string                `gorm:"column:paypal_transaction_id;type:text;not null;uniqueIndex"`
	Currency            enums.Currency        `gorm:"column:currency;type:text;not null;default:'USD'"`
	Items               []types.LineItem      `gorm:"column:items;type:jsonb;serializer:json;not null"`
	SubtotalCents       int64                 `gorm:"column:subtotal_cents;not null"`
	DiscountCents       int64                 `gorm:"column:discount_cents;not null;default:0"`
	TotalCents          int64                 `gorm:"column:total_cents;not null"`
	Shipping            types.ShippingAddress `gorm:"column:shipping;type:jsonb;serializer:json;not null"`
	CouponID            *string               `gorm:"column:coupon_id;type:text"`
	CouponCode          *string               `gorm:"column:coupon_code;type:text"`
	CreatedAt           time.Time             `gorm:"column:created_at;autoCreateTime"`
}
