package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/pressly/goose/v3"
)

// autoRunDecision reports whether the API may apply the embedded schema on
// boot. Only dev runs with the auto-migrate flag do; other environments go
// through cmd/migrate.
func autoRunDecision(cfg *config.Config) (run bool, ignoredFlag bool) {
	if !cfg.FeatureFlags.AutoMigrate {
		return false, false
	}
	if !cfg.App.IsDev() {
		return false, true
	}
	return true, false
}

// MaybeRunDev brings the orders and coupons schema up to date from the
// embedded migrations when autoRunDecision allows it.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	run, ignored := autoRunDecision(cfg)
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "source": "embedded"})
	if ignored {
		logg.Warn(ctx, "auto-migrate flag ignored outside dev")
	}
	if !run {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	if err := RunEmbedded(ctx, sqlDB, "up"); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, sqlDB)
	if err != nil {
		return fmt.Errorf("auto-migrate: read schema version: %w", err)
	}
	logg.Info(logg.WithField(ctx, "schema_version", version), "schema up to date")
	return nil
}
