package coupons

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

func setupCouponsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS coupons (
  id TEXT PRIMARY KEY,
  code TEXT NOT NULL UNIQUE,
  discount_percent NUMERIC NOT NULL,
  active INTEGER NOT NULL DEFAULT 1,
  usage_count INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func TestRepositoryFindsOnlyActiveCoupons(t *testing.T) {
	db := setupCouponsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.Coupon{Code: " save10 ", DiscountPercent: decimal.NewFromInt(10), Active: true}))
	require.NoError(t, repo.Create(ctx, &models.Coupon{Code: "OLD", DiscountPercent: decimal.NewFromInt(5), Active: false}))
	require.NoError(t, db.Model(&models.Coupon{}).Where("code = ?", "OLD").Update("active", false).Error)

	found, err := repo.FindActiveByCode(ctx, "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", found.Code)
	assert.True(t, found.DiscountPercent.Equal(decimal.NewFromInt(10)))

	_, err = repo.FindActiveByCode(ctx, "OLD")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryIncrementUsage(t *testing.T) {
	db := setupCouponsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	coupon := &models.Coupon{Code: "TWICE", DiscountPercent: decimal.NewFromInt(15), Active: true}
	require.NoError(t, repo.Create(ctx, coupon))
	require.NoError(t, repo.IncrementUsage(ctx, coupon.ID))
	require.NoError(t, repo.IncrementUsage(ctx, coupon.ID))

	var stored models.Coupon
	require.NoError(t, db.First(&stored, "id = ?", coupon.ID).Error)
	assert.Equal(t, 2, stored.UsageCount)

	assert.ErrorIs(t, repo.IncrementUsage(ctx, uuid.New()), gorm.ErrRecordNotFound)
}

func TestRepositoryRejectsDuplicateCodeCaseInsensitively(t *testing.T) {
	db := setupCouponsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.Coupon{Code: "DUP", DiscountPercent: decimal.NewFromInt(1), Active: true}))
	assert.Error(t, repo.Create(ctx, &models.Coupon{Code: "dup", DiscountPercent: decimal.NewFromInt(2), Active: true}))
}
