package recovery

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	internalrecovery "github.com/angelmondragon/storefront-backend/internal/recovery"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

const recordIDParam = "recordId"

type resolveRequest struct {
	OrderID string `json:"order_id,omitempty" validate:"max=64"`
	Note    string `json:"note,omitempty" validate:"max=1000"`
}

// List pages through recovery records, newest first.
func List(svc internalrecovery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "recovery service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		unresolved, err := validators.ParseQueryBool(r, "unresolved")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := internalrecovery.ListParams{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
			Kind:   strings.TrimSpace(r.URL.Query().Get("kind")),
		}
		if unresolved != nil {
			params.UnresolvedOnly = *unresolved
		}

		result, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// Detail returns a single recovery record including its order payload.
func Detail(svc internalrecovery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "recovery service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, recordIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		record, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, record)
	}
}

// Replay re-submits the recorded order to the order store once.
func Replay(svc internalrecovery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "recovery service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, recordIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithActor(ctx, middleware.OperatorFromContext(ctx))
		}
		record, err := svc.Replay(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, record)
	}
}

// Resolve closes a record by hand, typically after the order was created
// out of band.
func Resolve(svc internalrecovery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "recovery service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, recordIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload resolveRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		operator := middleware.OperatorFromContext(ctx)
		note := validators.SanitizeString(payload.Note, 1000)
		if operator != "" && note != "" {
			note = operator + ": " + note
		}

		record, err := svc.Resolve(ctx, id, validators.SanitizeString(payload.OrderID, 64), note)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(logg.WithActor(logg.WithField(ctx, "recovery_id", id.String()), operator), "recovery record resolved")
		}
		responses.WriteSuccess(w, record)
	}
}
