package orders

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

const (
	transactionUniqueIndex  = "idx_orders_paypal_transaction_id"
	transactionUniqueColumn = "orders.paypal_transaction_id"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateIdempotent(ctx context.Context, order *models.Order) (*models.Order, bool, error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	err := r.db.WithContext(ctx).Create(order).Error
	if err == nil {
		return order, true, nil
	}
	if !isDuplicateTransaction(err) {
		return nil, false, err
	}
	existing, findErr := r.FindByTransactionID(ctx, order.PayPalTransactionID)
	if findErr != nil {
		return nil, false, multierr.Append(err, findErr)
	}
	return existing, false, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByTransactionID(ctx context.Context, transactionID string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("paypal_transaction_id = ?", transactionID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func isDuplicateTransaction(err error) bool {
	return db.IsUniqueViolation(err, transactionUniqueIndex) || db.IsUniqueViolation(err, transactionUniqueColumn)
}
