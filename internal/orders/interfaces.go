package orders

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Repository defines persistence operations for the orders table.
type Repository interface {
	// CreateIdempotent inserts order unless a row with the same PayPal
	// transaction id exists, in which case the existing row is returned with
	// created=false.
	CreateIdempotent(ctx context.Context, order *models.Order) (*models.Order, bool, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*models.Order, error)
}

// Store accepts finalized orders. Implementations report transport or
// rejection failures as *StoreError so the persister can classify them.
type Store interface {
	CreateOrder(ctx context.Context, order Order) (string, error)
}

type persistMetrics interface {
	IncPersistAttempt(outcome string)
	ObservePersistDuration(d time.Duration)
}
