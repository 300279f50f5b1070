package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// admin-token mints a short-lived operator JWT for the recovery admin API.
func main() {
	logg := logger.New(logger.Options{ServiceName: "admin-token"})
	_ = godotenv.Load()

	operator := flag.String("operator", "", "operator identity recorded on replay and resolve")
	role := flag.String("role", string(enums.OperatorRoleSupport), "operator role: support|admin")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	token, err := auth.MintOperatorToken(cfg.JWT, time.Now(), auth.OperatorTokenPayload{
		Operator: *operator,
		Role:     enums.OperatorRole(*role),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "mint operator token: %v\n", err)
		os.Exit(1)
	}

	ctx := logg.WithFields(context.Background(), map[string]any{
		"operator":        *operator,
		"role":            *role,
		"expires_minutes": cfg.JWT.ExpirationMinutes,
	})
	logg.Info(ctx, "operator token minted")
	fmt.Println(token)
}
