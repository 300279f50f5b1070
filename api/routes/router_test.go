package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/recovery"
	"github.com/angelmondragon/storefront-backend/internal/shipping"
	pkgAuth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type memKV struct {
	mu       sync.Mutex
	data     map[string]string
	counters map[string]int64
}

func newMemKV() *memKV {
	return &memKV{data: map[string]string{}, counters: map[string]int64{}}
}

func (m *memKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", goredis.Nil
}

func (m *memKV) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key], _ = value.(string)
	return true, nil
}

func (m *memKV) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memKV) IdempotencyKey(scope, id string) string { return "idem:" + scope + ":" + id }

func (m *memKV) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[key]++
	return m.counters[key], nil
}

func (m *memKV) Ping(context.Context) error { return nil }

type stubCheckout struct {
	begins int
}

func (s *stubCheckout) ctx() *checkoutsvc.Context {
	return &checkoutsvc.Context{ID: uuid.New(), State: enums.CheckoutStateAwaitingPayment}
}

func (s *stubCheckout) Currency() string { return "USD" }
func (s *stubCheckout) Begin(context.Context, checkoutsvc.BeginInput) (*checkoutsvc.Context, error) {
	s.begins++
	return s.ctx(), nil
}
func (s *stubCheckout) Get(context.Context, uuid.UUID) (*checkoutsvc.Context, error) {
	return s.ctx(), nil
}
func (s *stubCheckout) UpdateCart(context.Context, uuid.UUID, cart.Update) (*checkoutsvc.Context, error) {
	return s.ctx(), nil
}
func (s *stubCheckout) ApplyCoupon(context.Context, uuid.UUID, string) (*checkoutsvc.Context, error) {
	return s.ctx(), nil
}
func (s *stubCheckout) RemoveCoupon(context.Context, uuid.UUID) (*checkoutsvc.Context, error) {
	return s.ctx(), nil
}
func (s *stubCheckout) UpdateShipping(context.Context, uuid.UUID, shipping.Address) (*checkoutsvc.Context, error) {
	return s.ctx(), nil
}
func (s *stubCheckout) CreatePaymentOrder(context.Context, uuid.UUID) (*checkoutsvc.Context, error) {
	return s.ctx(), nil
}
func (s *stubCheckout) ApprovePayment(context.Context, uuid.UUID, string) (*checkoutsvc.Context, error) {
	return s.ctx(), nil
}
func (s *stubCheckout) SupplyMissingFields(context.Context, uuid.UUID, checkoutsvc.MissingFieldsInput) (*checkoutsvc.Context, error) {
	return s.ctx(), nil
}
func (s *stubCheckout) CancelPayment(context.Context, uuid.UUID) (*checkoutsvc.Context, error) {
	return s.ctx(), nil
}
func (s *stubCheckout) ReportPaymentError(context.Context, uuid.UUID, string, string) (*checkoutsvc.Context, error) {
	return s.ctx(), nil
}
func (s *stubCheckout) Abandon(context.Context, uuid.UUID) error { return nil }

type stubOrders struct{}

func (stubOrders) Create(context.Context, orders.CreateOrderRequest) (orders.Order, bool, error) {
	return orders.Order{ID: "order-1"}, true, nil
}
func (stubOrders) Get(context.Context, uuid.UUID) (orders.Order, error) {
	return orders.Order{ID: "order-1"}, nil
}

type stubRecovery struct{}

func (stubRecovery) RecordOrderSaveFailure(context.Context, orders.Order, error) (recovery.Record, error) {
	return recovery.Record{}, nil
}
func (stubRecovery) RecordCaptureFailure(context.Context, string, string, error) (recovery.Record, error) {
	return recovery.Record{}, nil
}
func (stubRecovery) List(context.Context, recovery.ListParams) (*recovery.ListResult, error) {
	return &recovery.ListResult{Items: []recovery.Record{}}, nil
}
func (stubRecovery) Get(context.Context, uuid.UUID) (recovery.Record, error) {
	return recovery.Record{}, nil
}
func (stubRecovery) Resolve(context.Context, uuid.UUID, string, string) (recovery.Record, error) {
	return recovery.Record{}, nil
}
func (stubRecovery) Replay(context.Context, uuid.UUID) (recovery.Record, error) {
	return recovery.Record{}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App:    config.AppConfig{Env: "test", Port: "0", CORSOrigins: []string{"http://localhost:3000"}},
		JWT:    config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60},
		PayPal: config.PayPalConfig{ClientID: "client-1", Env: "sandbox"},
		Checkout: config.CheckoutConfig{
			SDKLoadTimeout:   5 * time.Second,
			OrdersAPIKey:     "orders-key",
			RateLimitWindow:  time.Minute,
			BeginLimitPerIP:  30,
			CouponLimitPerIP: 2,
		},
	}
}

type harness struct {
	router   http.Handler
	checkout *stubCheckout
	kv       *memKV
}

func newTestRouter(cfg *config.Config) harness {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	h := harness{checkout: &stubCheckout{}, kv: newMemKV()}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	h.router = NewRouter(cfg, logg, stubPinger{}, h.kv, h.checkout, stubOrders{}, stubRecovery{}, metrics)
	return h
}

func buildToken(t *testing.T, cfg *config.Config, role enums.OperatorRole) string {
	t.Helper()
	token, err := pkgAuth.MintOperatorToken(cfg.JWT, time.Now(), pkgAuth.OperatorTokenPayload{Operator: "ops@example.com", Role: role})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestRouter(testConfig())
	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		if resp := do(h.router, httptest.NewRequest(http.MethodGet, path, nil)); resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, resp.Code)
		}
	}
}

func TestCheckoutRoutesArePublic(t *testing.T) {
	h := newTestRouter(testConfig())
	id := uuid.NewString()
	cases := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodPost, "/api/v1/checkout", `{"items":[]}`, http.StatusCreated},
		{http.MethodGet, "/api/v1/checkout/" + id, "", http.StatusOK},
		{http.MethodDelete, "/api/v1/checkout/" + id, "", http.StatusNoContent},
		{http.MethodPut, "/api/v1/checkout/" + id + "/cart", `{"action":"clear"}`, http.StatusOK},
		{http.MethodDelete, "/api/v1/checkout/" + id + "/coupon", "", http.StatusOK},
		{http.MethodPut, "/api/v1/checkout/" + id + "/shipping", `{"city":"Austin"}`, http.StatusOK},
		{http.MethodGet, "/api/v1/checkout/" + id + "/payment-config", "", http.StatusOK},
		{http.MethodPost, "/api/v1/checkout/" + id + "/payment/orders", "", http.StatusOK},
		{http.MethodPost, "/api/v1/checkout/" + id + "/payment/approve", `{"order_id":"PP-1"}`, http.StatusOK},
		{http.MethodPost, "/api/v1/checkout/" + id + "/payment/cancel", "", http.StatusOK},
		{http.MethodPost, "/api/v1/checkout/" + id + "/payment/error", `{"kind":"sdk_timeout"}`, http.StatusOK},
	}
	for _, tc := range cases {
		var body io.Reader
		if tc.body != "" {
			body = strings.NewReader(tc.body)
		}
		resp := do(h.router, httptest.NewRequest(tc.method, tc.path, body))
		if resp.Code != tc.want {
			t.Fatalf("%s %s: expected %d got %d: %s", tc.method, tc.path, tc.want, resp.Code, resp.Body.String())
		}
	}
}

func TestBeginReplaysOnIdempotencyKey(t *testing.T) {
	h := newTestRouter(testConfig())
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{"items":[]}`))
		req.Header.Set("Idempotency-Key", "begin-1")
		if resp := do(h.router, req); resp.Code != http.StatusCreated {
			t.Fatalf("expected 201 got %d", resp.Code)
		}
	}
	if h.checkout.begins != 1 {
		t.Fatalf("expected one begin, got %d", h.checkout.begins)
	}
}

func TestCouponRouteIsRateLimitedPerCheckout(t *testing.T) {
	h := newTestRouter(testConfig())
	path := "/api/v1/checkout/" + uuid.NewString() + "/coupon"
	var last int
	for i := 0; i < 3; i++ {
		resp := do(h.router, httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"code":"GUESS"}`)))
		last = resp.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on third attempt, got %d", last)
	}
}

func TestOrderEndpointRequiresAPIKey(t *testing.T) {
	h := newTestRouter(testConfig())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{}`))
	req.Header.Set("Idempotency-Key", "TXN-1")
	if resp := do(h.router, req); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+uuid.NewString(), nil)
	req.Header.Set("Authorization", "Bearer orders-key")
	if resp := do(h.router, req); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 with key got %d", resp.Code)
	}
}

func TestAdminRecoveryRoles(t *testing.T) {
	cfg := testConfig()
	h := newTestRouter(cfg)
	replay := "/api/admin/v1/recovery/" + uuid.NewString() + "/replay"

	if resp := do(h.router, httptest.NewRequest(http.MethodGet, "/api/admin/v1/recovery", nil)); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}

	list := httptest.NewRequest(http.MethodGet, "/api/admin/v1/recovery", nil)
	list.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.OperatorRoleSupport))
	if resp := do(h.router, list); resp.Code != http.StatusOK {
		t.Fatalf("expected support to list, got %d", resp.Code)
	}

	support := httptest.NewRequest(http.MethodPost, replay, nil)
	support.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.OperatorRoleSupport))
	support.Header.Set("Idempotency-Key", "replay-1")
	if resp := do(h.router, support); resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for support replay, got %d", resp.Code)
	}

	admin := httptest.NewRequest(http.MethodPost, replay, nil)
	admin.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.OperatorRoleAdmin))
	admin.Header.Set("Idempotency-Key", "replay-2")
	if resp := do(h.router, admin); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin replay, got %d", resp.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/checkout", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp := do(h.router, req)
	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("expected allowed origin header, got %q", got)
	}
}
