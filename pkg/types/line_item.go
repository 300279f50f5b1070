package types

import "github.com/shopspring/decimal"

// LineItem is a single cart row as submitted by the storefront.
type LineItem struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	Quantity          int             `json:"quantity"`
	SelectedSize      string          `json:"selected_size,omitempty"`
	SelectedVariation *Variation      `json:"selected_variation,omitempty"`
}

// Variation captures the product option chosen for a line item.
type Variation struct {
	Name        string           `json:"name"`
	SKU         string           `json:"sku,omitempty"`
	DiscountPct *decimal.Decimal `json:"discount_pct,omitempty"`
}

// LineTotal returns unit price times quantity.
func (i LineItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
