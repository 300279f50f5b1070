package coupons

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

var hundred = decimal.NewFromInt(100)

// Coupon is the resolved, read-only view of a discount code.
type Coupon struct {
	ID              string          `json:"id"`
	Code            string          `json:"code"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	Active          bool            `json:"active"`
}

// Resolver validates user-supplied codes against the coupon store.
type Resolver struct {
	repo Repository
}

// NewResolver wires a resolver to its repository.
func NewResolver(repo Repository) (*Resolver, error) {
	if repo == nil {
		return nil, fmt.Errorf("coupon repository required")
	}
	return &Resolver{repo: repo}, nil
}

// Resolve returns the active coupon for code. A stored percentage outside
// [0,100] is reported as misconfigured and never clamped here.
func (r *Resolver) Resolve(ctx context.Context, code string) (Coupon, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return Coupon{}, pkgerrors.New(pkgerrors.CodeInvalidCoupon, "coupon code is required")
	}

	row, err := r.repo.FindActiveByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Coupon{}, pkgerrors.New(pkgerrors.CodeInvalidCoupon, "coupon code is invalid").
				WithDetails(map[string]any{"code": normalized})
		}
		return Coupon{}, pkgerrors.Wrap(pkgerrors.CodeServiceUnavailable, err, "coupon store unavailable")
	}
	if row == nil || !row.Active {
		return Coupon{}, pkgerrors.New(pkgerrors.CodeInvalidCoupon, "coupon code is invalid").
			WithDetails(map[string]any{"code": normalized})
	}
	if row.DiscountPercent.IsNegative() || row.DiscountPercent.GreaterThan(hundred) {
		return Coupon{}, pkgerrors.New(pkgerrors.CodeMalformedConfig, "coupon discount out of range").
			WithDetails(map[string]any{"code": normalized, "discount_percent": row.DiscountPercent.String()})
	}

	return Coupon{
		ID:              row.ID.String(),
		Code:            row.Code,
		DiscountPercent: row.DiscountPercent,
		Active:          row.Active,
	}, nil
}

// RecordUsage bumps the usage counter of an applied coupon.
func (r *Resolver) RecordUsage(ctx context.Context, couponID string) error {
	id, err := uuid.Parse(couponID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid coupon id")
	}
	if err := r.repo.IncrementUsage(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "coupon not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeServiceUnavailable, err, "increment coupon usage")
	}
	return nil
}
