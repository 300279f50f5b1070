package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60}
}

func mintTestToken(t *testing.T, cfg config.JWTConfig, role enums.OperatorRole) string {
	t.Helper()
	token, err := auth.MintOperatorToken(cfg, time.Now(), auth.OperatorTokenPayload{Operator: "ops@example.com", Role: role})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestOperatorAuthRejectsMissingToken(t *testing.T) {
	handler := OperatorAuth(testJWTConfig(), nil)(okHandler())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestOperatorAuthRejectsInvalidToken(t *testing.T) {
	handler := OperatorAuth(testJWTConfig(), nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestOperatorAuthAllowsValidToken(t *testing.T) {
	cfg := testJWTConfig()
	token := mintTestToken(t, cfg, enums.OperatorRoleAdmin)

	var operator, role string
	handler := OperatorAuth(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		operator = OperatorFromContext(r.Context())
		role = RoleFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if operator != "ops@example.com" || role != enums.OperatorRoleAdmin.String() {
		t.Fatalf("unexpected context values %q %q", operator, role)
	}
}

func TestRequireRole(t *testing.T) {
	cfg := testJWTConfig()
	handler := OperatorAuth(cfg, nil)(RequireRole(nil, enums.OperatorRoleAdmin)(okHandler()))

	for _, tc := range []struct {
		role enums.OperatorRole
		want int
	}{
		{role: enums.OperatorRoleAdmin, want: http.StatusOK},
		{role: enums.OperatorRoleSupport, want: http.StatusForbidden},
	} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer "+mintTestToken(t, cfg, tc.role))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != tc.want {
			t.Fatalf("%s: expected %d got %d", tc.role, tc.want, resp.Code)
		}
	}
}

func TestAPIKey(t *testing.T) {
	for _, tc := range []struct {
		name   string
		key    string
		header string
		want   int
	}{
		{name: "match", key: "k-1", header: "Bearer k-1", want: http.StatusOK},
		{name: "mismatch", key: "k-1", header: "Bearer k-2", want: http.StatusUnauthorized},
		{name: "missing header", key: "k-1", want: http.StatusUnauthorized},
		{name: "unconfigured", key: "", header: "Bearer ", want: http.StatusUnauthorized},
	} {
		t.Run(tc.name, func(t *testing.T) {
			handler := APIKey(tc.key, nil)(okHandler())
			req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, req)
			if resp.Code != tc.want {
				t.Fatalf("expected %d got %d", tc.want, resp.Code)
			}
		})
	}
}
