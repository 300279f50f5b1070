package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/shipping"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const defaultCurrency = "USD"

// Service is the server side of the order creation endpoint.
type Service interface {
	Create(ctx context.Context, req CreateOrderRequest) (Order, bool, error)
	Get(ctx context.Context, id uuid.UUID) (Order, error)
}

type service struct {
	repo Repository
	logg *logger.Logger
}

// NewService wires the order service.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, logg: logg}, nil
}

// Create validates the request and stores it once per PayPal transaction id.
// The bool result is false when an existing order was returned.
func (s *service) Create(ctx context.Context, req CreateOrderRequest) (Order, bool, error) {
	order, err := orderFromRequest(req)
	if err != nil {
		return Order{}, false, err
	}
	row, err := toModel(order)
	if err != nil {
		return Order{}, false, err
	}

	stored, created, err := s.repo.CreateIdempotent(ctx, row)
	if err != nil {
		return Order{}, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store order")
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"order_id":          stored.ID.String(),
		"provider_order_id": stored.PayPalOrderID,
		"created":           created,
	})
	if created {
		s.logg.Info(ctx, "order created")
	} else {
		s.logg.Info(ctx, "order already existed for transaction")
	}
	return FromModel(stored), created, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (Order, error) {
	row, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Order{}, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return Order{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return FromModel(row), nil
}

func orderFromRequest(req CreateOrderRequest) (Order, error) {
	if strings.TrimSpace(req.PayPalOrderID) == "" || strings.TrimSpace(req.PayPalTransactionID) == "" {
		return Order{}, pkgerrors.New(pkgerrors.CodeValidation, "paypalOrderId and paypalTransactionId are required")
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return Order{}, err
	}
	items, err := decodeItems(req.Items)
	if err != nil {
		return Order{}, err
	}
	subtotal := cart.Snapshot{Items: items}.Subtotal().Round(2)
	if req.Subtotal != "" {
		declared, err := parseAmount("subtotal", req.Subtotal)
		if err != nil {
			return Order{}, err
		}
		if !declared.Equal(subtotal) {
			return Order{}, pkgerrors.New(pkgerrors.CodeValidation, "subtotal does not match items").
				WithDetails(map[string]any{"subtotal": declared.String(), "items_subtotal": subtotal.String()})
		}
	}

	discount := subtotal.Sub(amount)
	if req.DiscountAmount != "" {
		if discount, err = parseAmount("discountAmount", req.DiscountAmount); err != nil {
			return Order{}, err
		}
	}
	if discount.IsNegative() || discount.GreaterThan(subtotal) || !subtotal.Sub(discount).Equal(amount) {
		return Order{}, pkgerrors.New(pkgerrors.CodeValidation, "amount does not match items and discount").
			WithDetails(map[string]any{"amount": amount.String(), "subtotal": subtotal.String(), "discount": discount.String()})
	}

	addr := shipping.Address{
		FullName: req.FullName,
		Email:    req.Email,
		Phone:    req.Phone,
		Address:  req.Address,
		City:     req.City,
		ZipCode:  req.ZipCode,
		Country:  req.Country,
	}
	addr = shipping.Merge(addr, shipping.Address{})
	if err := shipping.Validate(addr); err != nil {
		return Order{}, err
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = defaultCurrency
	}

	return Order{
		CheckoutID:      strings.TrimSpace(req.CheckoutID),
		Items:           items,
		Subtotal:        subtotal,
		DiscountAmount:  discount,
		FinalAmount:     amount,
		Currency:        currency,
		Shipping:        addr,
		ProviderOrderID: strings.TrimSpace(req.PayPalOrderID),
		TransactionID:   strings.TrimSpace(req.PayPalTransactionID),
		CouponID:        strings.TrimSpace(req.CouponID),
		CouponCode:      strings.TrimSpace(req.CouponCode),
	}, nil
}

func parseAmount(field string, raw fmt.Stringer) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw.String()))
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeValidation, err, field+" must be a number")
	}
	if value.IsNegative() {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, field+" must not be negative")
	}
	return value.Round(2), nil
}

// LocalStore submits orders to the in-process service using the same wire
// contract as the remote endpoint.
type LocalStore struct {
	svc Service
}

// NewLocalStore wraps the order service as a Store.
func NewLocalStore(svc Service) (*LocalStore, error) {
	if svc == nil {
		return nil, fmt.Errorf("orders service required")
	}
	return &LocalStore{svc: svc}, nil
}

func (s *LocalStore) CreateOrder(ctx context.Context, order Order) (string, error) {
	req, err := ToRequest(order)
	if err != nil {
		return "", err
	}
	stored, _, err := s.svc.Create(ctx, req)
	if err != nil {
		return "", err
	}
	return stored.ID, nil
}
