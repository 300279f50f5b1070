package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// RecoveryRecord lives in the node-local store and carries everything needed
// to rebuild an order whose payment moved but whose save did not.
type RecoveryRecord struct {
	ID              uuid.UUID             `gorm:"column:id;type:text;primaryKey"`
	Kind            enums.RecoveryKind    `gorm:"column:kind;type:text;not null;index"`
	CheckoutID      string                `gorm:"column:checkout_id;type:text;not null;index"`
	ProviderOrderID string                `gorm:"column:provider_order_id;type:text;not null;index"`
	TransactionID   *string               `gorm:"column:transaction_id;type:text"`
	Currency        enums.Currency        `gorm:"column:currency;type:text;not null"`
	SubtotalCents   int64                 `gorm:"column:subtotal_cents;not null"`
	DiscountCents   int64                 `gorm:"column:discount_cents;not null"`
	TotalCents      int64                 `gorm:"column:total_cents;not null"`
	CouponID        *string               `gorm:"column:coupon_id;type:text"`
	CouponCode      *string               `gorm:"column:coupon_code;type:text"`
	Shipping        types.ShippingAddress `gorm:"column:shipping;type:text;serializer:json"`
	Items           []types.LineItem      `gorm:"column:items;type:text;serializer:json"`
	LastError       string                `gorm:"column:last_error;type:text"`
	ReplayAttempts  int                   `gorm:"column:replay_attempts;not null;default:0"`
	ResolvedOrderID *string               `gorm:"column:resolved_order_id;type:text"`
	ResolutionNote  *string               `gorm:"column:resolution_note;type:text"`
	ResolvedAt      *time.Time            `gorm:"column:resolved_at"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
