package recovery

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/shipping"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type stubStore struct {
	calls []orders.Order
	err   error
}

func (s *stubStore) CreateOrder(_ context.Context, order orders.Order) (string, error) {
	s.calls = append(s.calls, order)
	if s.err != nil {
		return "", s.err
	}
	return "order-replayed", nil
}

func setupRecoveryTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	return db
}

func newTestService(t *testing.T, store orders.Store) (*service, *gorm.DB) {
	t.Helper()
	db := setupRecoveryTestDB(t)
	svc, err := NewService(NewRepository(db), store, logger.New(logger.Options{ServiceName: "recovery-test", Output: io.Discard}))
	require.NoError(t, err)
	return svc.(*service), db
}

func failedOrder() orders.Order {
	return orders.Order{
		CheckoutID:      uuid.NewString(),
		Items:           []types.LineItem{{ID: "sku-1", Name: "Mug", UnitPrice: decimal.NewFromInt(100), Quantity: 2}},
		Subtotal:        decimal.NewFromInt(200),
		DiscountAmount:  decimal.NewFromInt(20),
		FinalAmount:     decimal.NewFromInt(180),
		Currency:        "USD",
		Shipping:        shipping.Address{FullName: "Ada", Email: "ada@example.com"},
		ProviderOrderID: "PP-1",
		TransactionID:   "TXN-1",
		CouponCode:      "SAVE10",
	}
}

func TestRecordOrderSaveFailureKeepsReconstructionPayload(t *testing.T) {
	svc, _ := newTestService(t, &stubStore{})
	ctx := context.Background()

	written, err := svc.RecordOrderSaveFailure(ctx, failedOrder(), errors.New("store returned 503"))
	require.NoError(t, err)

	loaded, err := svc.Get(ctx, written.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.RecoveryKindOrderSaveFailed, loaded.Kind)
	assert.Equal(t, "PP-1", loaded.ProviderOrderID)
	assert.Equal(t, "TXN-1", loaded.TransactionID)
	assert.True(t, loaded.FinalAmount.Equal(decimal.NewFromInt(180)))
	assert.True(t, loaded.DiscountAmount.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, "SAVE10", loaded.CouponCode)
	assert.Equal(t, "store returned 503", loaded.LastError)
	require.Len(t, loaded.Items, 1)
	assert.Equal(t, 2, loaded.Items[0].Quantity)
	assert.Equal(t, "ada@example.com", loaded.Shipping.Email)
	assert.False(t, loaded.Resolved())
}

func TestReplayResolvesOnSuccess(t *testing.T) {
	store := &stubStore{}
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	written, err := svc.RecordOrderSaveFailure(ctx, failedOrder(), errors.New("boom"))
	require.NoError(t, err)

	replayed, err := svc.Replay(ctx, written.ID)
	require.NoError(t, err)
	assert.True(t, replayed.Resolved())
	assert.Equal(t, "order-replayed", replayed.ResolvedOrderID)
	require.Len(t, store.calls, 1)
	assert.Equal(t, "TXN-1", store.calls[0].TransactionID)
	assert.True(t, store.calls[0].FinalAmount.Equal(decimal.NewFromInt(180)))

	_, err = svc.Replay(ctx, written.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Len(t, store.calls, 1)
}

func TestReplayFailureIsCounted(t *testing.T) {
	store := &stubStore{err: &orders.StoreError{StatusCode: 500}}
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	written, err := svc.RecordOrderSaveFailure(ctx, failedOrder(), errors.New("boom"))
	require.NoError(t, err)

	_, err = svc.Replay(ctx, written.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOrderSaveFailed))

	loaded, err := svc.Get(ctx, written.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.ReplayAttempts)
	assert.Contains(t, loaded.LastError, "500")
	assert.False(t, loaded.Resolved())
}

func TestReplayRejectsCaptureFailures(t *testing.T) {
	store := &stubStore{}
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	written, err := svc.RecordCaptureFailure(ctx, uuid.NewString(), "PP-9", errors.New("declined"))
	require.NoError(t, err)

	_, err = svc.Replay(ctx, written.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Empty(t, store.calls)
}

func TestResolveManually(t *testing.T) {
	svc, _ := newTestService(t, &stubStore{})
	ctx := context.Background()

	written, err := svc.RecordOrderSaveFailure(ctx, failedOrder(), errors.New("boom"))
	require.NoError(t, err)

	_, err = svc.Resolve(ctx, written.ID, "", " ")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	resolved, err := svc.Resolve(ctx, written.ID, "", "refunded in PayPal dashboard")
	require.NoError(t, err)
	assert.Equal(t, "refunded in PayPal dashboard", resolved.ResolutionNote)
	assert.True(t, resolved.Resolved())

	_, err = svc.Resolve(ctx, written.ID, "order-1", "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = svc.Resolve(ctx, uuid.New(), "order-1", "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestListPaginatesNewestFirst(t *testing.T) {
	svc, _ := newTestService(t, &stubStore{})
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		svc.now = func() time.Time { return at }
		rec, err := svc.RecordOrderSaveFailure(ctx, failedOrder(), errors.New("boom"))
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}
	_, err := svc.Resolve(ctx, ids[0], "order-x", "")
	require.NoError(t, err)

	page, err := svc.List(ctx, ListParams{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, ids[2], page.Items[0].ID)
	assert.Equal(t, ids[1], page.Items[1].ID)
	require.NotEmpty(t, page.Cursor)

	next, err := svc.List(ctx, ListParams{Limit: 2, Cursor: page.Cursor})
	require.NoError(t, err)
	require.Len(t, next.Items, 1)
	assert.Equal(t, ids[0], next.Items[0].ID)
	assert.Empty(t, next.Cursor)

	open, err := svc.List(ctx, ListParams{UnresolvedOnly: true})
	require.NoError(t, err)
	assert.Len(t, open.Items, 2)

	_, err = svc.List(ctx, ListParams{Kind: "nope"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = svc.List(ctx, ListParams{Cursor: "%%%"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
