package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/storefront-backend/internal/shipping"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/paypal"
)

type paypalAPI interface {
	CreateOrder(ctx context.Context, params paypal.CreateOrderParams) (string, error)
	CaptureOrder(ctx context.Context, orderID string) (paypal.CaptureResult, error)
}

// PayPalProvider adapts the PayPal client to the Provider contract.
type PayPalProvider struct {
	api paypalAPI
}

// NewPayPalProvider wraps a PayPal client.
func NewPayPalProvider(api paypalAPI) (*PayPalProvider, error) {
	if api == nil {
		return nil, fmt.Errorf("paypal client required")
	}
	return &PayPalProvider{api: api}, nil
}

func (p *PayPalProvider) CreateOrder(ctx context.Context, req CreateOrderRequest) (string, error) {
	items := make([]paypal.OrderItem, 0, len(req.Items))
	for _, line := range req.Items {
		items = append(items, paypal.OrderItem{
			Name:       line.Name,
			SKU:        line.SKU,
			UnitAmount: line.UnitAmount,
			Quantity:   line.Quantity,
		})
	}
	return p.api.CreateOrder(ctx, paypal.CreateOrderParams{
		ReferenceID: req.Reference,
		InvoiceID:   req.InvoiceID,
		Currency:    req.Currency,
		Items:       items,
		ItemTotal:   req.ItemTotal,
		Discount:    req.Discount,
		Total:       req.Total,
	})
}

func (p *PayPalProvider) CaptureOrder(ctx context.Context, providerOrderID string) (Capture, error) {
	result, err := p.api.CaptureOrder(ctx, providerOrderID)
	if err != nil {
		return Capture{}, err
	}
	return Capture{
		ProviderOrderID: result.OrderID,
		TransactionID:   result.CaptureID,
		PayerShipping:   payerShipping(result),
		CapturedAmount:  result.Amount,
		Currency:        result.Currency,
		Status:          captureStatus(result),
	}, nil
}

func payerShipping(result paypal.CaptureResult) shipping.Address {
	fullName := strings.TrimSpace(result.Shipping.FullName)
	if fullName == "" {
		fullName = strings.TrimSpace(result.Payer.GivenName + " " + result.Payer.Surname)
	}
	street := strings.TrimSpace(result.Shipping.Line1)
	if line2 := strings.TrimSpace(result.Shipping.Line2); line2 != "" {
		street = strings.TrimSpace(street + ", " + line2)
	}
	return shipping.Address{
		FullName: fullName,
		Email:    result.Payer.Email,
		Phone:    result.Payer.Phone,
		Address:  street,
		City:     result.Shipping.City,
		ZipCode:  result.Shipping.PostalCode,
		Country:  result.Shipping.CountryCode,
	}
}

func captureStatus(result paypal.CaptureResult) enums.CaptureStatus {
	status := result.CaptureStatus
	if status == "" {
		status = result.Status
	}
	switch strings.ToUpper(status) {
	case "COMPLETED":
		return enums.CaptureStatusCompleted
	case "PENDING":
		return enums.CaptureStatusPending
	default:
		return enums.CaptureStatusFailed
	}
}
