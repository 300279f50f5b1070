package recovery

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/internal/shipping"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Record is a recovery log entry. Order save failures carry the full order so
// it can be rebuilt; capture failures only reference the provider order.
type Record struct {
	ID              uuid.UUID          `json:"id"`
	Kind            enums.RecoveryKind `json:"kind"`
	CheckoutID      string             `json:"checkout_id"`
	ProviderOrderID string             `json:"provider_order_id"`
	TransactionID   string             `json:"transaction_id,omitempty"`
	Currency        string             `json:"currency"`
	Subtotal        decimal.Decimal    `json:"subtotal"`
	DiscountAmount  decimal.Decimal    `json:"discount_amount"`
	FinalAmount     decimal.Decimal    `json:"final_amount"`
	CouponID        string             `json:"coupon_id,omitempty"`
	CouponCode      string             `json:"coupon_code,omitempty"`
	Shipping        shipping.Address   `json:"shipping"`
	Items           []types.LineItem   `json:"items"`
	LastError       string             `json:"last_error,omitempty"`
	ReplayAttempts  int                `json:"replay_attempts"`
	ResolvedOrderID string             `json:"resolved_order_id,omitempty"`
	ResolutionNote  string             `json:"resolution_note,omitempty"`
	ResolvedAt      *time.Time         `json:"resolved_at,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}

// Resolved reports whether an operator or a replay closed the record.
func (r Record) Resolved() bool {
	return r.ResolvedAt != nil
}

// Order rebuilds the order payload from an order save failure record.
func (r Record) Order() orders.Order {
	return orders.Order{
		CheckoutID:      r.CheckoutID,
		Items:           r.Items,
		Subtotal:        r.Subtotal,
		DiscountAmount:  r.DiscountAmount,
		FinalAmount:     r.FinalAmount,
		Currency:        r.Currency,
		Shipping:        r.Shipping,
		ProviderOrderID: r.ProviderOrderID,
		TransactionID:   r.TransactionID,
		CouponID:        r.CouponID,
		CouponCode:      r.CouponCode,
	}
}

// ListParams configures pagination for recovery records.
type ListParams struct {
	Limit          int
	Cursor         string
	UnresolvedOnly bool
	Kind           string
}

// ListResult wraps returned records and the cursor for the next page.
type ListResult struct {
	Items  []Record `json:"items"`
	Cursor string   `json:"cursor"`
}

// Service records and reconciles payments whose order is missing.
type Service interface {
	RecordOrderSaveFailure(ctx context.Context, order orders.Order, cause error) (Record, error)
	RecordCaptureFailure(ctx context.Context, checkoutID, providerOrderID string, cause error) (Record, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Get(ctx context.Context, id uuid.UUID) (Record, error)
	Resolve(ctx context.Context, id uuid.UUID, orderID, note string) (Record, error)
	Replay(ctx context.Context, id uuid.UUID) (Record, error)
}

type service struct {
	repo  Repository
	store orders.Store
	logg  *logger.Logger
	now   func() time.Time
}

// NewService wires the recovery log. store receives replayed orders.
func NewService(repo Repository, store orders.Store, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "recovery repository required")
	}
	if store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "order store required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &service{repo: repo, store: store, logg: logg, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *service) RecordOrderSaveFailure(ctx context.Context, order orders.Order, cause error) (Record, error) {
	currency, err := enums.ParseCurrency(order.Currency)
	if err != nil {
		currency = enums.CurrencyUSD
	}
	row := &models.RecoveryRecord{
		Kind:            enums.RecoveryKindOrderSaveFailed,
		CheckoutID:      order.CheckoutID,
		ProviderOrderID: order.ProviderOrderID,
		TransactionID:   optional(order.TransactionID),
		Currency:        currency,
		SubtotalCents:   pricing.ToCents(order.Subtotal),
		DiscountCents:   pricing.ToCents(order.DiscountAmount),
		TotalCents:      pricing.ToCents(order.FinalAmount),
		CouponID:        optional(order.CouponID),
		CouponCode:      optional(order.CouponCode),
		Shipping:        order.Shipping,
		Items:           order.Items,
		LastError:       errorText(cause),
	}
	return s.create(ctx, row)
}

func (s *service) RecordCaptureFailure(ctx context.Context, checkoutID, providerOrderID string, cause error) (Record, error) {
	row := &models.RecoveryRecord{
		Kind:            enums.RecoveryKindCaptureFailed,
		CheckoutID:      checkoutID,
		ProviderOrderID: providerOrderID,
		Currency:        enums.CurrencyUSD,
		LastError:       errorText(cause),
	}
	return s.create(ctx, row)
}

func (s *service) create(ctx context.Context, row *models.RecoveryRecord) (Record, error) {
	row.CreatedAt = s.now()
	if err := s.repo.Create(ctx, row); err != nil {
		return Record{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write recovery record")
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"recovery_id":       row.ID.String(),
		"recovery_kind":     row.Kind.String(),
		"provider_order_id": row.ProviderOrderID,
	}), "recovery record written")
	return fromModel(row), nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	query := listRecordsParams{
		Limit:          params.Limit,
		UnresolvedOnly: params.UnresolvedOnly,
	}
	if kind := strings.TrimSpace(params.Kind); kind != "" {
		parsed, err := enums.ParseRecoveryKind(kind)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid recovery kind")
		}
		query.Kind = parsed
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list recovery records")
	}

	items := make([]Record, 0, len(rows))
	for i := range rows {
		items = append(items, fromModel(&rows[i]))
	}
	cursor := ""
	if next != nil {
		cursor = next.Encode()
	}
	return &ListResult{Items: items, Cursor: cursor}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (Record, error) {
	row, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Record{}, pkgerrors.New(pkgerrors.CodeNotFound, "recovery record not found")
		}
		return Record{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load recovery record")
	}
	return fromModel(row), nil
}

func (s *service) Resolve(ctx context.Context, id uuid.UUID, orderID, note string) (Record, error) {
	if strings.TrimSpace(orderID) == "" && strings.TrimSpace(note) == "" {
		return Record{}, pkgerrors.New(pkgerrors.CodeValidation, "order id or resolution note required")
	}
	return s.markResolved(ctx, id, orderID, note)
}

// Replay re-submits an order save failure to the order store exactly once.
// Success resolves the record; failure is counted and returned.
func (s *service) Replay(ctx context.Context, id uuid.UUID) (Record, error) {
	record, err := s.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if record.Kind != enums.RecoveryKindOrderSaveFailed {
		return Record{}, pkgerrors.New(pkgerrors.CodeStateConflict, "only order save failures can be replayed").
			WithDetails(map[string]any{"kind": record.Kind})
	}
	if record.Resolved() {
		return Record{}, pkgerrors.New(pkgerrors.CodeStateConflict, "recovery record already resolved")
	}
	if record.TransactionID == "" {
		return Record{}, pkgerrors.New(pkgerrors.CodeStateConflict, "recovery record has no transaction id")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"recovery_id":       record.ID.String(),
		"provider_order_id": record.ProviderOrderID,
	})
	orderID, err := s.store.CreateOrder(ctx, record.Order())
	if err != nil {
		if failErr := s.repo.RecordReplayFailure(ctx, id, err.Error()); failErr != nil {
			s.logg.Error(logCtx, "failed to record replay failure", failErr)
		}
		s.logg.Error(logCtx, "recovery replay failed", err)
		return Record{}, pkgerrors.Wrap(pkgerrors.CodeOrderSaveFailed, err, "replay failed").
			WithDetails(map[string]any{"provider_order_id": record.ProviderOrderID, "retryable": orders.IsRetryable(err)})
	}

	s.logg.Info(s.logg.WithField(logCtx, "order_id", orderID), "recovery replay stored order")
	return s.markResolved(ctx, id, orderID, "replayed")
}

func (s *service) markResolved(ctx context.Context, id uuid.UUID, orderID, note string) (Record, error) {
	updated, err := s.repo.MarkResolved(ctx, id, optional(orderID), optional(note), s.now())
	if err != nil {
		return Record{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve recovery record")
	}
	if !updated {
		if _, err := s.Get(ctx, id); err != nil {
			return Record{}, err
		}
		return Record{}, pkgerrors.New(pkgerrors.CodeStateConflict, "recovery record already resolved")
	}
	return s.Get(ctx, id)
}

func fromModel(row *models.RecoveryRecord) Record {
	record := Record{
		ID:              row.ID,
		Kind:            row.Kind,
		CheckoutID:      row.CheckoutID,
		ProviderOrderID: row.ProviderOrderID,
		Currency:        row.Currency.String(),
		Subtotal:        pricing.FromCents(row.SubtotalCents),
		DiscountAmount:  pricing.FromCents(row.DiscountCents),
		FinalAmount:     pricing.FromCents(row.TotalCents),
		Shipping:        row.Shipping,
		Items:           row.Items,
		LastError:       row.LastError,
		ReplayAttempts:  row.ReplayAttempts,
		ResolvedAt:      row.ResolvedAt,
		CreatedAt:       row.CreatedAt,
	}
	record.TransactionID = deref(row.TransactionID)
	record.CouponID = deref(row.CouponID)
	record.CouponCode = deref(row.CouponCode)
	record.ResolvedOrderID = deref(row.ResolvedOrderID)
	record.ResolutionNote = deref(row.ResolutionNote)
	return record
}

func optional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
