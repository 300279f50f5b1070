package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type fakeStore struct {
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	return true, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func TestRuleSelection(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		path     string
		ok       bool
		ttl      time.Duration
		required bool
	}{
		{name: "begin", method: http.MethodPost, path: "/api/v1/checkout", ok: true, ttl: defaultIdempotencyTTL},
		{name: "approve", method: http.MethodPost, path: "/api/v1/checkout/abc/payment/approve", ok: true, ttl: criticalIdempotencyTTL},
		{name: "orders", method: http.MethodPost, path: "/api/v1/orders", ok: true, ttl: criticalIdempotencyTTL, required: true},
		{name: "replay", method: http.MethodPost, path: "/api/admin/v1/recovery/rec-1/replay", ok: true, ttl: defaultIdempotencyTTL, required: true},
		{name: "get checkout", method: http.MethodGet, path: "/api/v1/checkout/abc"},
		{name: "cancel", method: http.MethodPost, path: "/api/v1/checkout/abc/payment/cancel"},
		{name: "empty segment", method: http.MethodPost, path: "/api/v1/checkout//payment/approve"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rule, ok := ruleFor(tc.method, tc.path)
			if ok != tc.ok {
				t.Fatalf("expected match=%v, got %v", tc.ok, ok)
			}
			if ok && (rule.ttl != tc.ttl || rule.required != tc.required) {
				t.Fatalf("unexpected rule %+v", rule)
			}
		})
	}
}

func countingHandler(calls *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(fmt.Sprintf(`{"call":%d}`, *calls)))
	})
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, nil)(countingHandler(&calls))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{"amount":"10.00"}`))
		req.Header.Set("Idempotency-Key", "TXN-1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", rec.Code)
		}
		if rec.Body.String() != `{"call":1}` {
			t.Fatalf("expected first response replayed, got %s", rec.Body.String())
		}
	}
	if calls != 1 {
		t.Fatalf("expected one handler call, got %d", calls)
	}
}

func TestIdempotencyRejectsReusedKeyWithDifferentBody(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, nil)(countingHandler(&calls))

	for i, body := range []string{`{"amount":"10.00"}`, `{"amount":"11.00"}`} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
		req.Header.Set("Idempotency-Key", "TXN-1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if i == 1 {
			if rec.Code != http.StatusConflict {
				t.Fatalf("expected 409, got %d", rec.Code)
			}
			var payload struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if payload.Error.Code != string(pkgerrors.CodeIdempotency) {
				t.Fatalf("unexpected code %s", payload.Error.Code)
			}
		}
	}
}

func TestIdempotencyKeyRequirement(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, nil)(countingHandler(&calls))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without key on order endpoint, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{}`))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated || calls != 1 {
		t.Fatalf("expected optional key to pass through, got %d after %d calls", rec.Code, calls)
	}
	if len(store.data) != 0 {
		t.Fatalf("nothing should be stored without a key")
	}
}

func TestIdempotencySkipsServerErrors(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/abc/payment/approve", strings.NewReader(`{}`))
		req.Header.Set("Idempotency-Key", "approve-1")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("expected retry to reach the handler, got %d calls", calls)
	}
}
