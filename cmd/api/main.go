package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/api/routes"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/recovery"
	"github.com/angelmondragon/storefront-backend/internal/sidetasks"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/env"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/paypal"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

// captureLatchTTL outlives any PayPal order approval window.
const captureLatchTTL = 72 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	var closers closerList
	defer func() {
		if closeErr := closers.Close(); closeErr != nil {
			logg.Error(context.Background(), "error releasing resources", closeErr)
		}
	}()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	closers.add("database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	localStore, err := db.OpenLocal(ctx, cfg.LocalStore, logg)
	if err != nil {
		return err
	}
	closers.add("local store", localStore.Close)
	if err := recovery.Migrate(localStore.DB()); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	closers.add("redis", redisClient.Close)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	checkoutMetrics := metrics.NewCheckoutMetrics(registry)

	paypalClient, err := paypal.NewClient(ctx, cfg.PayPal, logg, paypal.WithRedirectURLs(cfg.Checkout.ReturnURL, cfg.Checkout.CancelURL))
	if err != nil {
		return err
	}
	provider, err := payments.NewPayPalProvider(paypalClient)
	if err != nil {
		return err
	}
	latch, err := payments.NewRedisLatch(redisClient, captureLatchTTL)
	if err != nil {
		return err
	}
	session, err := payments.NewSession(provider, latch, cfg.PayPal.CurrencyCode(), checkoutMetrics)
	if err != nil {
		return err
	}

	resolver, err := coupons.NewResolver(coupons.NewRepository(dbClient.DB()))
	if err != nil {
		return err
	}

	ordersService, err := orders.NewService(orders.NewRepository(dbClient.DB()), logg)
	if err != nil {
		return err
	}
	orderStore, err := buildOrderStore(cfg.Checkout, ordersService)
	if err != nil {
		return err
	}
	persister, err := orders.NewPersister(orderStore, cfg.Checkout.PersistAttempts, cfg.Checkout.PersistBackoff, logg,
		orders.WithPersistMetrics(checkoutMetrics),
		orders.WithAttemptTimeout(cfg.Checkout.PersistAttemptTimeout),
	)
	if err != nil {
		return err
	}

	recoveryService, err := recovery.NewService(recovery.NewRepository(localStore.DB()), orderStore, logg)
	if err != nil {
		return err
	}

	checkoutStore, err := checkout.NewRedisStore(redisClient, cfg.Checkout.SessionTTL)
	if err != nil {
		return err
	}
	cartStore, err := cart.NewStore(redisClient, cfg.Checkout.SessionTTL)
	if err != nil {
		return err
	}

	runner, err := sidetasks.NewRunner(logg, cfg.Checkout.SideTaskTimeout, checkoutMetrics)
	if err != nil {
		return err
	}

	mailer, err := buildMailer(cfg.Sendgrid, logg)
	if err != nil {
		return err
	}
	tracker, err := buildTracker(ctx, cfg, logg, &closers)
	if err != nil {
		return err
	}
	events, err := buildEventPublisher(ctx, cfg, logg, &closers)
	if err != nil {
		return err
	}

	checkoutService, err := checkout.NewService(checkout.Deps{
		Store:     checkoutStore,
		Carts:     cartStore,
		Coupons:   resolver,
		Payments:  session,
		Persister: persister,
		Recovery:  recoveryService,
		Mailer:    mailer,
		Tracker:   tracker,
		Events:    events,
		Tasks:     runner,
		Metrics:   checkoutMetrics,
		Logger:    logg,
	}, checkout.Options{
		Currency:           cfg.PayPal.CurrencyCode(),
		MaxCartLines:       cfg.Checkout.MaxItemsPerCart,
		EmailTimeout:       cfg.Checkout.EmailTimeout,
		PersistTimeout:     cfg.Checkout.PersistTimeout,
		SupportEmail:       cfg.Checkout.SupportEmail,
		AllowFieldOverride: cfg.Checkout.AllowFieldOverride,
	})
	if err != nil {
		return err
	}

	addr := env.ListenAddr(cfg.App.Port)
	logCtx := logg.WithFields(context.Background(), map[string]any{
		"env":          cfg.App.Env,
		"addr":         addr,
		"paypal_env":   cfg.PayPal.Environment(),
		"order_store":  cfg.Checkout.OrderStore,
		"recovery_log": cfg.LocalStore.Path,
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			checkoutService,
			ordersService,
			recoveryService,
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(logCtx, "http server shutdown", err)
	}
	if err := runner.Wait(shutdownCtx); err != nil {
		logg.Error(logCtx, "side tasks still running at shutdown", err)
	}
	return nil
}
