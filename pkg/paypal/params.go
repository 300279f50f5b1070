package paypal

import (
	"strconv"

	pp "github.com/plutov/paypal/v4"
	"github.com/shopspring/decimal"
)

// OrderItem is one purchase unit line sent to PayPal.
type OrderItem struct {
	Name       string
	SKU        string
	UnitAmount decimal.Decimal
	Quantity   int
}

// CreateOrderParams describes the order PayPal should present to the buyer.
type CreateOrderParams struct {
	// ReferenceID is echoed back on the purchase unit and as custom_id.
	ReferenceID string
	// InvoiceID is the client generated reference, unique per create call.
	InvoiceID string
	Currency  string
	Items     []OrderItem
	ItemTotal decimal.Decimal
	Discount  decimal.Decimal
	Total     decimal.Decimal
}

// Payer is the buyer profile returned with a capture.
type Payer struct {
	GivenName string
	Surname   string
	Email     string
	Phone     string
}

// ShippingAddress is the purchase unit shipping block returned with a capture.
type ShippingAddress struct {
	FullName    string
	Line1       string
	Line2       string
	City        string
	State       string
	PostalCode  string
	CountryCode string
}

// CaptureResult is the subset of a capture response the checkout needs.
type CaptureResult struct {
	OrderID       string
	Status        string
	CaptureID     string
	CaptureStatus string
	Amount        decimal.Decimal
	Currency      string
	Payer         Payer
	Shipping      ShippingAddress
}

func (p CreateOrderParams) toPurchaseUnit(currency string) pp.PurchaseUnitRequest {
	items := make([]pp.Item, 0, len(p.Items))
	for _, item := range p.Items {
		items = append(items, pp.Item{
			Name:       truncate(item.Name, 127),
			SKU:        truncate(item.SKU, 127),
			Quantity:   strconv.Itoa(item.Quantity),
			UnitAmount: money(currency, item.UnitAmount),
		})
	}

	breakdown := &pp.PurchaseUnitAmountBreakdown{
		ItemTotal: money(currency, p.ItemTotal),
	}
	if p.Discount.IsPositive() {
		breakdown.Discount = money(currency, p.Discount)
	}

	return pp.PurchaseUnitRequest{
		ReferenceID: p.ReferenceID,
		CustomID:    p.ReferenceID,
		InvoiceID:   p.InvoiceID,
		Amount: &pp.PurchaseUnitAmount{
			Currency:  currency,
			Value:     p.Total.StringFixed(2),
			Breakdown: breakdown,
		},
		Items: items,
	}
}

func money(currency string, amount decimal.Decimal) *pp.Money {
	return &pp.Money{Currency: currency, Value: amount.StringFixed(2)}
}

func truncate(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max])
}

type captureResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Payer  struct {
		Name struct {
			GivenName string `json:"given_name"`
			Surname   string `json:"surname"`
		} `json:"name"`
		EmailAddress string `json:"email_address"`
		Phone        struct {
			PhoneNumber struct {
				NationalNumber string `json:"national_number"`
			} `json:"phone_number"`
		} `json:"phone"`
	} `json:"payer"`
	PurchaseUnits []struct {
		ReferenceID string `json:"reference_id"`
		Shipping    struct {
			Name struct {
				FullName string `json:"full_name"`
			} `json:"name"`
			Address struct {
				AddressLine1 string `json:"address_line_1"`
				AddressLine2 string `json:"address_line_2"`
				AdminArea2   string `json:"admin_area_2"`
				AdminArea1   string `json:"admin_area_1"`
				PostalCode   string `json:"postal_code"`
				CountryCode  string `json:"country_code"`
			} `json:"address"`
		} `json:"shipping"`
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
				Amount struct {
					CurrencyCode string `json:"currency_code"`
					Value        string `json:"value"`
				} `json:"amount"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

func (r captureResponse) toResult() CaptureResult {
	result := CaptureResult{
		OrderID: r.ID,
		Status:  r.Status,
		Payer: Payer{
			GivenName: r.Payer.Name.GivenName,
			Surname:   r.Payer.Name.Surname,
			Email:     r.Payer.EmailAddress,
			Phone:     r.Payer.Phone.PhoneNumber.NationalNumber,
		},
	}
	if len(r.PurchaseUnits) == 0 {
		return result
	}
	unit := r.PurchaseUnits[0]
	addr := unit.Shipping.Address
	result.Shipping = ShippingAddress{
		FullName:    unit.Shipping.Name.FullName,
		Line1:       addr.AddressLine1,
		Line2:       addr.AddressLine2,
		City:        addr.AdminArea2,
		State:       addr.AdminArea1,
		PostalCode:  addr.PostalCode,
		CountryCode: addr.CountryCode,
	}
	if len(unit.Payments.Captures) > 0 {
		capture := unit.Payments.Captures[0]
		result.CaptureID = capture.ID
		result.CaptureStatus = capture.Status
		result.Currency = capture.Amount.CurrencyCode
		if amount, err := decimal.NewFromString(capture.Amount.Value); err == nil {
			result.Amount = amount
		}
	}
	return result
}
