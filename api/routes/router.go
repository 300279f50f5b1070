package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	checkoutcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/checkout"
	ordercontrollers "github.com/angelmondragon/storefront-backend/api/controllers/orders"
	recoverycontrollers "github.com/angelmondragon/storefront-backend/api/controllers/recovery"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/recovery"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

// kvStore is the Redis surface the HTTP layer needs for idempotency, rate
// limiting and readiness.
type kvStore interface {
	redis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Ping(ctx context.Context) error
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	kv kvStore,
	checkoutService checkoutcontrollers.Service,
	ordersService orders.Service,
	recoveryService recovery.Service,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	beginPolicy := middleware.NewRateLimitPolicy(
		"begin",
		cfg.Checkout.RateLimitWindow,
		cfg.Checkout.BeginLimitPerIP,
		0,
	)
	couponPolicy := middleware.NewRateLimitPolicy(
		"coupon",
		cfg.Checkout.RateLimitWindow,
		cfg.Checkout.CouponLimitPerIP,
		cfg.Checkout.CouponLimitPerIP,
	)

	paymentSettings := checkoutcontrollers.PaymentSettings{
		ClientID:       cfg.PayPal.ClientID,
		Environment:    cfg.PayPal.Environment(),
		SDKLoadTimeout: cfg.Checkout.SDKLoadTimeout,
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readinessChecks(dbP, kv), logg))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/checkout", func(r chi.Router) {
			r.Use(middleware.Idempotency(kv, logg))

			r.With(middleware.RateLimit(beginPolicy, kv, logg)).Post("/", checkoutcontrollers.Begin(checkoutService, logg))

			r.Route("/{checkoutId}", func(r chi.Router) {
				r.Get("/", checkoutcontrollers.Get(checkoutService, logg))
				r.Delete("/", checkoutcontrollers.Abandon(checkoutService, logg))
				r.Put("/cart", checkoutcontrollers.UpdateCart(checkoutService, logg))
				r.With(middleware.RateLimit(couponPolicy, kv, logg)).Post("/coupon", checkoutcontrollers.ApplyCoupon(checkoutService, logg))
				r.Delete("/coupon", checkoutcontrollers.RemoveCoupon(checkoutService, logg))
				r.Put("/shipping", checkoutcontrollers.UpdateShipping(checkoutService, logg))
				r.Post("/missing-fields", checkoutcontrollers.SupplyMissingFields(checkoutService, logg))
				r.Get("/payment-config", checkoutcontrollers.PaymentConfig(checkoutService, paymentSettings, logg))
				r.Route("/payment", func(r chi.Router) {
					r.Post("/orders", checkoutcontrollers.CreatePaymentOrder(checkoutService, logg))
					r.Post("/approve", checkoutcontrollers.ApprovePayment(checkoutService, logg))
					r.Post("/cancel", checkoutcontrollers.CancelPayment(checkoutService, logg))
					r.Post("/error", checkoutcontrollers.ReportPaymentError(checkoutService, logg))
				})
			})
		})

		r.Route("/orders", func(r chi.Router) {
			r.Use(middleware.APIKey(cfg.Checkout.OrdersAPIKey, logg))
			r.Use(middleware.Idempotency(kv, logg))
			r.Post("/", ordercontrollers.Create(ordersService, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(ordersService, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.OperatorAuth(cfg.JWT, logg))

		r.Route("/recovery", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.OperatorRoleSupport, enums.OperatorRoleAdmin))
			r.Get("/", recoverycontrollers.List(recoveryService, logg))
			r.Get("/{recordId}", recoverycontrollers.Detail(recoveryService, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.OperatorRoleAdmin))
				r.Use(middleware.Idempotency(kv, logg))
				r.Post("/{recordId}/replay", recoverycontrollers.Replay(recoveryService, logg))
				r.Post("/{recordId}/resolve", recoverycontrollers.Resolve(recoveryService, logg))
			})
		})
	})

	return r
}

func readinessChecks(dbP db.Pinger, kv kvStore) map[string]controllers.Pinger {
	checks := map[string]controllers.Pinger{}
	if dbP != nil {
		checks["db"] = dbP
	}
	if kv != nil {
		checks["redis"] = kv
	}
	return checks
}
