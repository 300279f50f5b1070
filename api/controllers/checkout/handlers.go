package checkout

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/shipping"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const checkoutIDParam = "checkoutId"

// Service is the checkout dispatch surface used by the storefront routes.
type Service interface {
	Currency() string
	Begin(ctx context.Context, in checkoutsvc.BeginInput) (*checkoutsvc.Context, error)
	Get(ctx context.Context, id uuid.UUID) (*checkoutsvc.Context, error)
	UpdateCart(ctx context.Context, id uuid.UUID, update cart.Update) (*checkoutsvc.Context, error)
	ApplyCoupon(ctx context.Context, id uuid.UUID, code string) (*checkoutsvc.Context, error)
	RemoveCoupon(ctx context.Context, id uuid.UUID) (*checkoutsvc.Context, error)
	UpdateShipping(ctx context.Context, id uuid.UUID, patch shipping.Address) (*checkoutsvc.Context, error)
	CreatePaymentOrder(ctx context.Context, id uuid.UUID) (*checkoutsvc.Context, error)
	ApprovePayment(ctx context.Context, id uuid.UUID, providerOrderID string) (*checkoutsvc.Context, error)
	SupplyMissingFields(ctx context.Context, id uuid.UUID, in checkoutsvc.MissingFieldsInput) (*checkoutsvc.Context, error)
	CancelPayment(ctx context.Context, id uuid.UUID) (*checkoutsvc.Context, error)
	ReportPaymentError(ctx context.Context, id uuid.UUID, kind, message string) (*checkoutsvc.Context, error)
	Abandon(ctx context.Context, id uuid.UUID) error
}

// PaymentSettings is what the browser needs to load the PayPal widget.
type PaymentSettings struct {
	ClientID       string
	Environment    string
	SDKLoadTimeout time.Duration
}

// Begin starts a checkout from the submitted cart.
func Begin(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload beginRequest
		if err := validators.DecodeOptionalJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		c, err := svc.Begin(r.Context(), checkoutsvc.BeginInput{
			Items:      toLineItems(payload.Items),
			Shipping:   payload.Shipping.toAddress(),
			ResumeFrom: payload.ResumeFrom,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newCheckoutView(c, svc.Currency()))
	}
}

// Get returns the checkout view.
func Get(svc Service, logg *logger.Logger) http.HandlerFunc {
	return withCheckout(svc, logg, func(r *http.Request, id uuid.UUID) (*checkoutsvc.Context, error) {
		return svc.Get(r.Context(), id)
	})
}

// Abandon drops a checkout that has not taken payment.
func Abandon(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, checkoutIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Abandon(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func UpdateCart(svc Service, logg *logger.Logger) http.HandlerFunc {
	return withCheckout(svc, logg, func(r *http.Request, id uuid.UUID) (*checkoutsvc.Context, error) {
		var payload cartUpdateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.UpdateCart(r.Context(), id, payload.toUpdate())
	})
}

func ApplyCoupon(svc Service, logg *logger.Logger) http.HandlerFunc {
	return withCheckout(svc, logg, func(r *http.Request, id uuid.UUID) (*checkoutsvc.Context, error) {
		var payload couponRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.ApplyCoupon(r.Context(), id, validators.SanitizeString(payload.Code, 64))
	})
}

func RemoveCoupon(svc Service, logg *logger.Logger) http.HandlerFunc {
	return withCheckout(svc, logg, func(r *http.Request, id uuid.UUID) (*checkoutsvc.Context, error) {
		return svc.RemoveCoupon(r.Context(), id)
	})
}

// UpdateShipping stores user-entered shipping fields. While the checkout is
// waiting for missing fields the submission completes it.
func UpdateShipping(svc Service, logg *logger.Logger) http.HandlerFunc {
	return withCheckout(svc, logg, func(r *http.Request, id uuid.UUID) (*checkoutsvc.Context, error) {
		var payload shippingRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.UpdateShipping(r.Context(), id, payload.toAddress())
	})
}

// SupplyMissingFields completes shipping after capture, optionally
// overriding the remaining gaps where that is enabled.
func SupplyMissingFields(svc Service, logg *logger.Logger) http.HandlerFunc {
	return withCheckout(svc, logg, func(r *http.Request, id uuid.UUID) (*checkoutsvc.Context, error) {
		var payload missingFieldsRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.SupplyMissingFields(r.Context(), id, checkoutsvc.MissingFieldsInput{
			Shipping: payload.Shipping.toAddress(),
			Override: payload.Override,
		})
	})
}

// PaymentConfig returns the widget settings for an open checkout.
func PaymentConfig(svc Service, settings PaymentSettings, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		if settings.ClientID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeMalformedConfig, "payment client is not configured"))
			return
		}
		id, err := validators.ParseUUIDParam(r, checkoutIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		c, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if c.State != enums.CheckoutStateAwaitingPayment {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout is not awaiting payment").
				WithDetails(map[string]any{"state": c.State}))
			return
		}

		responses.WriteSuccess(w, paymentConfigView{
			ClientID:         settings.ClientID,
			Currency:         svc.Currency(),
			Environment:      settings.Environment,
			SDKLoadTimeoutMs: settings.SDKLoadTimeout.Milliseconds(),
			ProviderOrderID:  c.ProviderOrderID,
		})
	}
}

// CreatePaymentOrder backs the widget createOrder callback.
func CreatePaymentOrder(svc Service, logg *logger.Logger) http.HandlerFunc {
	return withCheckout(svc, logg, func(r *http.Request, id uuid.UUID) (*checkoutsvc.Context, error) {
		return svc.CreatePaymentOrder(r.Context(), id)
	})
}

// ApprovePayment backs the widget onApprove callback.
func ApprovePayment(svc Service, logg *logger.Logger) http.HandlerFunc {
	return withCheckout(svc, logg, func(r *http.Request, id uuid.UUID) (*checkoutsvc.Context, error) {
		var payload approveRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.ApprovePayment(r.Context(), id, payload.OrderID)
	})
}

// CancelPayment backs the widget onCancel callback.
func CancelPayment(svc Service, logg *logger.Logger) http.HandlerFunc {
	return withCheckout(svc, logg, func(r *http.Request, id uuid.UUID) (*checkoutsvc.Context, error) {
		return svc.CancelPayment(r.Context(), id)
	})
}

// ReportPaymentError backs the widget onError callback and the SDK load
// timeout.
func ReportPaymentError(svc Service, logg *logger.Logger) http.HandlerFunc {
	return withCheckout(svc, logg, func(r *http.Request, id uuid.UUID) (*checkoutsvc.Context, error) {
		var payload paymentErrorRequest
		if err := validators.DecodeOptionalJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.ReportPaymentError(r.Context(), id, payload.Kind, validators.SanitizeString(payload.Message, 500))
	})
}

func withCheckout(svc Service, logg *logger.Logger, fn func(r *http.Request, id uuid.UUID) (*checkoutsvc.Context, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, checkoutIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if logg != nil {
			r = r.WithContext(logg.WithCheckoutID(r.Context(), id.String()))
		}

		c, err := fn(r, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCheckoutView(c, svc.Currency()))
	}
}
