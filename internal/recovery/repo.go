package recovery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

// Repository persists recovery records in the node-local store.
type Repository interface {
	Create(ctx context.Context, record *models.RecoveryRecord) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.RecoveryRecord, error)
	List(ctx context.Context, params listRecordsParams) ([]models.RecoveryRecord, *pagination.Cursor, error)
	MarkResolved(ctx context.Context, id uuid.UUID, orderID, note *string, now time.Time) (bool, error)
	RecordReplayFailure(ctx context.Context, id uuid.UUID, lastError string) error
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a recovery repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

// Migrate creates the recovery table in the local store.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.RecoveryRecord{})
}

type listRecordsParams struct {
	Limit          int
	Cursor         *pagination.Cursor
	UnresolvedOnly bool
	Kind           enums.RecoveryKind
}

func (r *repositoryImpl) Create(ctx context.Context, record *models.RecoveryRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.RecoveryRecord, error) {
	var record models.RecoveryRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repositoryImpl) List(ctx context.Context, params listRecordsParams) ([]models.RecoveryRecord, *pagination.Cursor, error) {
	normalized := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).Model(&models.RecoveryRecord{})
	if params.UnresolvedOnly {
		query = query.Where("resolved_at IS NULL")
	}
	if params.Kind != "" {
		query = query.Where("kind = ?", params.Kind)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var records []models.RecoveryRecord
	if err := query.Order("created_at DESC, id DESC").Limit(normalized + 1).Find(&records).Error; err != nil {
		return nil, nil, err
	}

	records, next := pagination.Trim(records, normalized, func(row models.RecoveryRecord) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return records, next, nil
}

func (r *repositoryImpl) MarkResolved(ctx context.Context, id uuid.UUID, orderID, note *string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.RecoveryRecord{}).
		Where("id = ? AND resolved_at IS NULL", id).
		Updates(map[string]any{
			"resolved_at":       now,
			"resolved_order_id": orderID,
			"resolution_note":   note,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) RecordReplayFailure(ctx context.Context, id uuid.UUID, lastError string) error {
	return r.db.WithContext(ctx).
		Model(&models.RecoveryRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"replay_attempts": gorm.Expr("replay_attempts + 1"),
			"last_error":      lastError,
		}).Error
}
