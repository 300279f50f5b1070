package orders

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type stubOrders struct {
	order   internalorders.Order
	created bool
	err     error
	last    internalorders.CreateOrderRequest
}

func (s *stubOrders) Create(_ context.Context, req internalorders.CreateOrderRequest) (internalorders.Order, bool, error) {
	s.last = req
	return s.order, s.created, s.err
}

func (s *stubOrders) Get(context.Context, uuid.UUID) (internalorders.Order, error) {
	return s.order, s.err
}

const orderBody = `{"amount":"18.00","items":"[{\"id\":\"sku-1\",\"name\":\"Tee\",\"unit_price\":\"20.00\",\"quantity\":1}]","fullName":"Ada Lovelace","email":"ada@example.com","phone":"555-0100","address":"1 Loop St","city":"London","zipCode":"N1","country":"GB","paypalOrderId":"PP-1","paypalTransactionId":"TXN-1","couponCode":"SAVE10"}`

func post(handler http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func decodeWire(t *testing.T, resp *httptest.ResponseRecorder) internalorders.CreateOrderResponse {
	t.Helper()
	var out internalorders.CreateOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func TestCreateReturnsWireResponse(t *testing.T) {
	svc := &stubOrders{order: internalorders.Order{ID: "order-1"}, created: true}
	resp := post(Create(svc, nil), orderBody)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	out := decodeWire(t, resp)
	if !out.Success || out.OrderID != "order-1" || out.Error != "" {
		t.Fatalf("unexpected response %+v", out)
	}
	if svc.last.PayPalTransactionID != "TXN-1" || svc.last.Amount.String() != "18.00" {
		t.Fatalf("request not forwarded: %+v", svc.last)
	}
}

func TestCreateExistingTransactionReturns200(t *testing.T) {
	svc := &stubOrders{order: internalorders.Order{ID: "order-1"}, created: false}
	resp := post(Create(svc, nil), orderBody)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if out := decodeWire(t, resp); !out.Success || out.OrderID != "order-1" {
		t.Fatalf("unexpected response %+v", out)
	}
}

func TestCreateValidationFailureIs4xx(t *testing.T) {
	svc := &stubOrders{}
	resp := post(Create(svc, nil), `{"amount":"18.00"}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	out := decodeWire(t, resp)
	if out.Success || out.Error == "" {
		t.Fatalf("expected failure body, got %+v", out)
	}
}

func TestCreateDependencyFailureIs5xxWithoutInternals(t *testing.T) {
	svc := &stubOrders{err: pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("pq: connection refused"), "store order")}
	resp := post(Create(svc, nil), orderBody)
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
	out := decodeWire(t, resp)
	if strings.Contains(out.Error, "pq") {
		t.Fatalf("internal error leaked: %q", out.Error)
	}
}

func TestDetail(t *testing.T) {
	id := uuid.New()
	svc := &stubOrders{order: internalorders.Order{ID: id.String(), ProviderOrderID: "PP-1"}}
	router := chi.NewRouter()
	router.Get("/api/v1/orders/{orderId}", Detail(svc, nil))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+id.String(), nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data internalorders.Order `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.ProviderOrderID != "PP-1" {
		t.Fatalf("unexpected order %+v", envelope.Data)
	}

	svc.err = pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+id.String(), nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}
