package payments

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type stubProvider struct {
	createCalls  int32
	captureCalls int32
	lastCreate   CreateOrderRequest
	createErr    error
	capture      Capture
	captureErr   error
}

func (s *stubProvider) CreateOrder(_ context.Context, req CreateOrderRequest) (string, error) {
	atomic.AddInt32(&s.createCalls, 1)
	s.lastCreate = req
	if s.createErr != nil {
		return "", s.createErr
	}
	return "ORDER-1", nil
}

func (s *stubProvider) CaptureOrder(_ context.Context, id string) (Capture, error) {
	atomic.AddInt32(&s.captureCalls, 1)
	time.Sleep(time.Millisecond)
	if s.captureErr != nil {
		return Capture{}, s.captureErr
	}
	c := s.capture
	c.ProviderOrderID = id
	return c, nil
}

type countingMetrics struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (m *countingMetrics) IncCapture(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = map[string]int{}
	}
	m.outcomes[outcome]++
}

type failingLatch struct{}

func (failingLatch) Acquire(context.Context, string, string) (bool, error) {
	return false, errors.New("redis down")
}

func newSession(t *testing.T, provider *stubProvider, metrics *countingMetrics) *Session {
	t.Helper()
	var m captureMetrics
	if metrics != nil {
		m = metrics
	}
	session, err := NewSession(provider, NewMemoryLatch(), "usd", m)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return session
}

func sampleCart() cart.Snapshot {
	return cart.Snapshot{Items: []cart.LineItem{{ID: "tee", Name: "Tee", UnitPrice: decimal.NewFromInt(100), Quantity: 2}}}
}

func TestCreateOrderEmptyCartFailsBeforeProvider(t *testing.T) {
	provider := &stubProvider{}
	session := newSession(t, provider, nil)

	_, err := session.CreateOrder(context.Background(), cart.Snapshot{}, pricing.ComputeTotals(decimal.Zero, nil), "chk", "inv")
	if !pkgerrors.IsCode(err, pkgerrors.CodeEmptyCart) {
		t.Fatalf("expected empty cart error, got %v", err)
	}

	free := cart.Snapshot{Items: []cart.LineItem{{ID: "gift", UnitPrice: decimal.Zero, Quantity: 1}}}
	_, err = session.CreateOrder(context.Background(), free, pricing.ComputeTotals(free.Subtotal(), nil), "chk", "inv")
	if !pkgerrors.IsCode(err, pkgerrors.CodeEmptyCart) {
		t.Fatalf("expected zero total to be rejected, got %v", err)
	}
	if provider.createCalls != 0 {
		t.Fatalf("provider must not be contacted, got %d calls", provider.createCalls)
	}
}

func TestCreateOrderSendsTotals(t *testing.T) {
	provider := &stubProvider{}
	session := newSession(t, provider, nil)
	snapshot := sampleCart()
	totals := pricing.ComputeTotals(snapshot.Subtotal(), nil)

	id, err := session.CreateOrder(context.Background(), snapshot, totals, "chk-1", "chk-1-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "ORDER-1" {
		t.Fatalf("unexpected id %s", id)
	}
	req := provider.lastCreate
	if req.Currency != "USD" || req.Reference != "chk-1" || req.InvoiceID != "chk-1-1" {
		t.Fatalf("unexpected request %+v", req)
	}
	if !req.Total.Equal(decimal.NewFromInt(200)) || len(req.Items) != 1 {
		t.Fatalf("unexpected totals %+v", req)
	}
}

func TestCreateOrderWrapsUntypedProviderErrors(t *testing.T) {
	provider := &stubProvider{createErr: errors.New("boom")}
	session := newSession(t, provider, nil)
	snapshot := sampleCart()
	_, err := session.CreateOrder(context.Background(), snapshot, pricing.ComputeTotals(snapshot.Subtotal(), nil), "chk", "inv")
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestCaptureTwiceIsRejectedByLatch(t *testing.T) {
	provider := &stubProvider{capture: Capture{TransactionID: "TX-1", Status: enums.CaptureStatusCompleted}}
	metrics := &countingMetrics{}
	session := newSession(t, provider, metrics)

	first, err := session.Capture(context.Background(), "ORDER-1", "chk-1")
	if err != nil {
		t.Fatalf("first capture: %v", err)
	}
	if first.TransactionID != "TX-1" {
		t.Fatalf("unexpected capture %+v", first)
	}

	_, err = session.Capture(context.Background(), "ORDER-1", "chk-1")
	if !pkgerrors.IsCode(err, pkgerrors.CodeCaptureAttempted) {
		t.Fatalf("expected latch rejection, got %v", err)
	}
	if provider.captureCalls != 1 {
		t.Fatalf("expected exactly one provider capture, got %d", provider.captureCalls)
	}
	if metrics.outcomes[captureOutcomeDuplicate] != 1 || metrics.outcomes[captureOutcomeCompleted] != 1 {
		t.Fatalf("unexpected metrics %v", metrics.outcomes)
	}
}

func TestConcurrentCapturesReachProviderOnce(t *testing.T) {
	provider := &stubProvider{capture: Capture{TransactionID: "TX-1", Status: enums.CaptureStatusCompleted}}
	session := newSession(t, provider, nil)

	var wg sync.WaitGroup
	var successes int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := session.Capture(context.Background(), "ORDER-1", "chk-1"); err == nil {
				atomic.AddInt32(&successes, 1)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || provider.captureCalls != 1 {
		t.Fatalf("expected one capture, got successes=%d calls=%d", successes, provider.captureCalls)
	}
}

func TestCaptureFailureCarriesProviderPayloadAndStaysLatched(t *testing.T) {
	providerErr := pkgerrors.New(pkgerrors.CodeStateConflict, "paypal capture_order failed").
		WithDetails(map[string]any{"issues": []string{"INSTRUMENT_DECLINED"}})
	provider := &stubProvider{captureErr: providerErr}
	session := newSession(t, provider, nil)

	_, err := session.Capture(context.Background(), "ORDER-9", "chk-1")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeCaptureFailed {
		t.Fatalf("expected capture failed, got %v", err)
	}
	details := typed.Details().(map[string]any)
	if details["provider_order_id"] != "ORDER-9" {
		t.Fatalf("expected provider order id in details, got %v", details)
	}
	if _, ok := details["provider"]; !ok {
		t.Fatalf("expected provider payload in details, got %v", details)
	}

	_, err = session.Capture(context.Background(), "ORDER-9", "chk-1")
	if !pkgerrors.IsCode(err, pkgerrors.CodeCaptureAttempted) {
		t.Fatalf("failed capture must not be retried, got %v", err)
	}
	if provider.captureCalls != 1 {
		t.Fatalf("expected one provider call, got %d", provider.captureCalls)
	}
}

func TestCaptureDeclinedStatusIsFailure(t *testing.T) {
	provider := &stubProvider{capture: Capture{TransactionID: "TX-1", Status: enums.CaptureStatusFailed}}
	session := newSession(t, provider, nil)
	if _, err := session.Capture(context.Background(), "ORDER-1", "chk"); !pkgerrors.IsCode(err, pkgerrors.CodeCaptureFailed) {
		t.Fatalf("expected declined capture to fail, got %v", err)
	}
}

func TestCaptureLatchUnavailableDoesNotCapture(t *testing.T) {
	provider := &stubProvider{}
	session, err := NewSession(provider, failingLatch{}, "USD", nil)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	_, err = session.Capture(context.Background(), "ORDER-1", "chk")
	if !pkgerrors.IsCode(err, pkgerrors.CodeServiceUnavailable) {
		t.Fatalf("expected service unavailable, got %v", err)
	}
	if provider.captureCalls != 0 {
		t.Fatal("provider must not be contacted without the latch")
	}
}

func TestNewSessionRequiresDeps(t *testing.T) {
	if _, err := NewSession(nil, NewMemoryLatch(), "USD", nil); err == nil {
		t.Fatal("expected provider requirement")
	}
	if _, err := NewSession(&stubProvider{}, nil, "USD", nil); err == nil {
		t.Fatal("expected latch requirement")
	}
}
