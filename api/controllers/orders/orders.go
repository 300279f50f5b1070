package orders

import (
	"net/http"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// Create is the order creation endpoint. It speaks the flat
// {success, orderId} / {success:false, error} contract instead of the
// envelope so external checkouts can post to it directly.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			writeFailure(w, r, logg, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		var payload internalorders.CreateOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			writeFailure(w, r, logg, err)
			return
		}

		order, created, err := svc.Create(r.Context(), payload)
		if err != nil {
			writeFailure(w, r, logg, err)
			return
		}

		status := http.StatusCreated
		if !created {
			status = http.StatusOK
		}
		responses.WriteRaw(w, status, internalorders.CreateOrderResponse{Success: true, OrderID: order.ID})
	}
}

// Detail returns a stored order.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func writeFailure(w http.ResponseWriter, r *http.Request, logg *logger.Logger, err error) {
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	msg := meta.PublicMessage
	if meta.HTTPStatus < http.StatusInternalServerError && typed.Message() != "" {
		msg = typed.Message()
	}

	if logg != nil {
		ctx := logg.WithFields(r.Context(), map[string]any{
			"code":   typed.Code(),
			"status": meta.HTTPStatus,
		})
		if meta.HTTPStatus >= http.StatusInternalServerError {
			logg.Error(ctx, "order.create.failed", err)
		} else {
			logg.Warn(ctx, "order.create.rejected")
		}
	}

	responses.WriteRaw(w, meta.HTTPStatus, internalorders.CreateOrderResponse{Success: false, Error: msg})
}
