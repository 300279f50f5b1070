package checkout

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/shipping"
)

type variationRequest struct {
	Name        string           `json:"name" validate:"required,max=120"`
	SKU         string           `json:"sku,omitempty" validate:"max=64"`
	DiscountPct *decimal.Decimal `json:"discount_pct,omitempty"`
}

type lineItemRequest struct {
	ID                string            `json:"id" validate:"required,max=64"`
	Name              string            `json:"name" validate:"required,max=200"`
	UnitPrice         decimal.Decimal   `json:"unit_price"`
	Quantity          float64           `json:"quantity"`
	SelectedSize      string            `json:"selected_size,omitempty" validate:"max=32"`
	SelectedVariation *variationRequest `json:"selected_variation,omitempty"`
}

type shippingRequest struct {
	FullName string `json:"full_name,omitempty" validate:"max=200"`
	Email    string `json:"email,omitempty" validate:"max=254"`
	Phone    string `json:"phone,omitempty" validate:"max=40"`
	Address  string `json:"address,omitempty" validate:"max=300"`
	City     string `json:"city,omitempty" validate:"max=120"`
	ZipCode  string `json:"zip_code,omitempty" validate:"max=20"`
	Country  string `json:"country,omitempty" validate:"max=80"`
}

type beginRequest struct {
	Items      []lineItemRequest `json:"items" validate:"max=500,dive"`
	Shipping   *shippingRequest  `json:"shipping,omitempty"`
	ResumeFrom string            `json:"resume_from,omitempty" validate:"omitempty,uuid"`
}

type cartUpdateRequest struct {
	Action   string            `json:"action" validate:"required,oneof=add set_quantity remove replace clear"`
	Item     *lineItemRequest  `json:"item,omitempty"`
	LineKey  string            `json:"line_key,omitempty"`
	Quantity float64           `json:"quantity,omitempty"`
	Items    []lineItemRequest `json:"items,omitempty" validate:"max=500,dive"`
}

type couponRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

type approveRequest struct {
	OrderID string `json:"order_id" validate:"required,max=64"`
}

type paymentErrorRequest struct {
	Kind    string `json:"kind,omitempty" validate:"max=40"`
	Message string `json:"message,omitempty" validate:"max=500"`
}

type missingFieldsRequest struct {
	Shipping shippingRequest `json:"shipping"`
	Override bool            `json:"override,omitempty"`
}

func (r lineItemRequest) toLineItem() cart.LineItem {
	item := cart.LineItem{
		ID:           r.ID,
		Name:         r.Name,
		UnitPrice:    r.UnitPrice,
		Quantity:     cart.ClampQuantity(r.Quantity),
		SelectedSize: r.SelectedSize,
	}
	if r.SelectedVariation != nil {
		item.SelectedVariation = &cart.Variation{
			Name:        r.SelectedVariation.Name,
			SKU:         r.SelectedVariation.SKU,
			DiscountPct: r.SelectedVariation.DiscountPct,
		}
	}
	return item
}

func toLineItems(items []lineItemRequest) []cart.LineItem {
	out := make([]cart.LineItem, 0, len(items))
	for _, item := range items {
		out = append(out, item.toLineItem())
	}
	return out
}

func (r *shippingRequest) toAddress() shipping.Address {
	if r == nil {
		return shipping.Address{}
	}
	return shipping.Address{
		FullName: r.FullName,
		Email:    r.Email,
		Phone:    r.Phone,
		Address:  r.Address,
		City:     r.City,
		ZipCode:  r.ZipCode,
		Country:  r.Country,
	}
}

func (r cartUpdateRequest) toUpdate() cart.Update {
	update := cart.Update{
		Action:   cart.Action(r.Action),
		LineKey:  r.LineKey,
		Quantity: r.Quantity,
		Items:    toLineItems(r.Items),
	}
	if r.Item != nil {
		item := r.Item.toLineItem()
		update.Item = &item
	}
	return update
}
