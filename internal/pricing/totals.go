package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/internal/coupons"
)

const centsPlaces = 2

var hundred = decimal.NewFromInt(100)

// Totals is the priced view of a cart with an optional coupon applied.
type Totals struct {
	Subtotal        decimal.Decimal `json:"subtotal"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	FinalAmount     decimal.Decimal `json:"final_amount"`
}

// ComputeTotals applies coupon to subtotal. The percent is clamped to [0,100],
// the discount is rounded to cents and capped at the subtotal, and the final
// amount is derived by subtraction so it is never negative.
func ComputeTotals(subtotal decimal.Decimal, coupon *coupons.Coupon) Totals {
	if subtotal.IsNegative() {
		subtotal = decimal.Zero
	}
	subtotal = subtotal.Round(centsPlaces)

	pct := decimal.Zero
	if coupon != nil {
		pct = clampPercent(coupon.DiscountPercent)
	}

	discount := subtotal.Mul(pct).Div(hundred).Round(centsPlaces)
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}

	return Totals{
		Subtotal:        subtotal,
		DiscountPercent: pct,
		DiscountAmount:  discount,
		FinalAmount:     subtotal.Sub(discount),
	}
}

// ToCents converts an amount to integer minor units.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromCents converts integer minor units back to an amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -centsPlaces)
}

func clampPercent(pct decimal.Decimal) decimal.Decimal {
	if pct.IsNegative() {
		return decimal.Zero
	}
	if pct.GreaterThan(hundred) {
		return hundred
	}
	return pct
}
