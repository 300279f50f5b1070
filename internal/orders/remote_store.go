package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	remoteResponseReadLimit int64 = 64 * 1024
	defaultRemoteTimeout          = 10 * time.Second
)

var errEndpointRequired = errors.New("order endpoint url is required")

// RemoteStore submits orders to an external order endpoint.
type RemoteStore struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// RemoteOption configures optional remote store behavior.
type RemoteOption func(*RemoteStore)

// WithRemoteHTTPClient overrides the default HTTP client.
func WithRemoteHTTPClient(client *http.Client) RemoteOption {
	return func(s *RemoteStore) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// NewRemoteStore builds a store posting to endpoint. apiKey is optional and
// sent as a bearer token.
func NewRemoteStore(endpoint, apiKey string, opts ...RemoteOption) (*RemoteStore, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, errEndpointRequired
	}
	store := &RemoteStore{
		endpoint:   trimmed,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: defaultRemoteTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

// CreateOrder posts the order and returns the id assigned by the endpoint.
// The PayPal transaction id doubles as the idempotency key.
func (s *RemoteStore) CreateOrder(ctx context.Context, order Order) (string, error) {
	body, err := ToRequest(order)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal order request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Idempotency-Key", order.TransactionID)
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", &StoreError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, remoteResponseReadLimit))
	if err != nil {
		return "", &StoreError{StatusCode: resp.StatusCode, Err: err}
	}

	var decoded remoteResponse
	decodeErr := json.Unmarshal(raw, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := decoded.message()
		if decodeErr != nil || msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return "", &StoreError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return "", &StoreError{StatusCode: http.StatusBadGateway, Message: "malformed order endpoint response", Err: decodeErr}
	}
	if !decoded.Success {
		return "", &StoreError{StatusCode: http.StatusUnprocessableEntity, Message: decoded.message()}
	}
	if strings.TrimSpace(decoded.OrderID) == "" {
		return "", &StoreError{StatusCode: http.StatusBadGateway, Message: "order endpoint returned no order id"}
	}
	return decoded.OrderID, nil
}

type remoteResponse struct {
	Success bool            `json:"success"`
	OrderID string          `json:"orderId"`
	Error   json.RawMessage `json:"error"`
}

// message accepts both a plain error string and the {"message": ...} object
// shape.
func (r remoteResponse) message() string {
	if len(r.Error) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(r.Error, &text); err == nil {
		return text
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(r.Error, &obj); err == nil {
		return obj.Message
	}
	return ""
}
