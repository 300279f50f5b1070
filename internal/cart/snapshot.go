package cart

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// LineItem is a single cart row.
type LineItem = types.LineItem

// Variation is the product option attached to a line item.
type Variation = types.Variation

// Snapshot is the ordered list of line items for one checkout attempt.
type Snapshot struct {
	Items []LineItem `json:"items"`
}

// Subtotal sums unit price times quantity over every line.
func (s Snapshot) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range s.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// IsEmpty reports whether the cart has no lines.
func (s Snapshot) IsEmpty() bool {
	return len(s.Items) == 0
}

// ItemCount returns the total number of units across lines.
func (s Snapshot) ItemCount() int {
	count := 0
	for _, item := range s.Items {
		count += item.Quantity
	}
	return count
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (s Snapshot) Clone() Snapshot {
	items := make([]LineItem, len(s.Items))
	for i, item := range s.Items {
		if item.SelectedVariation != nil {
			variation := *item.SelectedVariation
			item.SelectedVariation = &variation
		}
		items[i] = item
	}
	return Snapshot{Items: items}
}

// Add appends an item, merging quantities when the same product, size and
// variation is already present.
func (s *Snapshot) Add(item LineItem) error {
	normalized, err := normalizeItem(item)
	if err != nil {
		return err
	}
	key := LineKey(normalized)
	for i := range s.Items {
		if LineKey(s.Items[i]) == key {
			s.Items[i].Quantity += normalized.Quantity
			return nil
		}
	}
	s.Items = append(s.Items, normalized)
	return nil
}

// SetQuantity updates the quantity of the line identified by key.
func (s *Snapshot) SetQuantity(key string, quantity float64) error {
	for i := range s.Items {
		if LineKey(s.Items[i]) == key || s.Items[i].ID == key {
			s.Items[i].Quantity = ClampQuantity(quantity)
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
}

// Remove drops the line identified by key.
func (s *Snapshot) Remove(key string) error {
	for i := range s.Items {
		if LineKey(s.Items[i]) == key || s.Items[i].ID == key {
			s.Items = append(s.Items[:i], s.Items[i+1:]...)
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
}

// Clear empties the cart.
func (s *Snapshot) Clear() {
	s.Items = nil
}

// Replace swaps the whole cart for items, normalizing each line.
func (s *Snapshot) Replace(items []LineItem) error {
	next := Snapshot{}
	for _, item := range items {
		if err := next.Add(item); err != nil {
			return err
		}
	}
	s.Items = next.Items
	return nil
}

// ClampQuantity coerces zero, negative, NaN and infinite input to 1 and
// truncates fractions.
func ClampQuantity(value float64) int {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 1 {
		return 1
	}
	if value > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(math.Trunc(value))
}

// LineKey identifies a line by product id, size and variation.
func LineKey(item LineItem) string {
	parts := []string{item.ID, item.SelectedSize}
	if item.SelectedVariation != nil {
		parts = append(parts, item.SelectedVariation.Name)
	}
	return strings.Join(parts, "|")
}

func normalizeItem(item LineItem) (LineItem, error) {
	item.ID = strings.TrimSpace(item.ID)
	item.Name = strings.TrimSpace(item.Name)
	item.SelectedSize = strings.TrimSpace(item.SelectedSize)
	if item.ID == "" {
		return LineItem{}, pkgerrors.New(pkgerrors.CodeValidation, "line item id is required")
	}
	if item.UnitPrice.IsNegative() {
		return LineItem{}, pkgerrors.New(pkgerrors.CodeValidation, "unit price must not be negative").
			WithDetails(map[string]any{"id": item.ID})
	}
	if item.Quantity < 1 {
		item.Quantity = 1
	}
	if v := item.SelectedVariation; v != nil && v.DiscountPct != nil {
		if v.DiscountPct.IsNegative() || v.DiscountPct.GreaterThan(decimal.NewFromInt(100)) {
			return LineItem{}, pkgerrors.New(pkgerrors.CodeValidation, "variation discount must be between 0 and 100").
				WithDetails(map[string]any{"id": item.ID})
		}
	}
	return item, nil
}
