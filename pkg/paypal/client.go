package paypal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	pp "github.com/plutov/paypal/v4"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

var (
	errClientIDRequired = errors.New("paypal client id is required")
	errSecretRequired   = errors.New("paypal secret is required")
	errLoggerRequired   = errors.New("paypal logger is required")
	errInvalidEnv       = fmt.Errorf("paypal environment must be %q or %q", config.PayPalEnvSandbox, config.PayPalEnvLive)
)

var baseURLs = map[string]string{
	config.PayPalEnvSandbox: pp.APIBaseSandBox,
	config.PayPalEnvLive:    pp.APIBaseLive,
}

// Client wraps the PayPal Orders v2 API with logging and error mapping.
type Client struct {
	api         *pp.Client
	clientID    string
	environment string
	currency    string
	brandName   string
	returnURL   string
	cancelURL   string
	logger      *logger.Logger
}

// Option customizes the client.
type Option func(*options)

type options struct {
	baseURL    string
	httpClient *http.Client
	returnURL  string
	cancelURL  string
}

// WithBaseURL overrides the API base, mostly for tests.
func WithBaseURL(baseURL string) Option {
	return func(o *options) {
		o.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithRedirectURLs sets the approval return and cancel URLs.
func WithRedirectURLs(returnURL, cancelURL string) Option {
	return func(o *options) {
		o.returnURL = strings.TrimSpace(returnURL)
		o.cancelURL = strings.TrimSpace(cancelURL)
	}
}

// NewClient validates credentials and builds the PayPal wrapper.
func NewClient(ctx context.Context, cfg config.PayPalConfig, logg *logger.Logger, opts ...Option) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	clientID := strings.TrimSpace(cfg.ClientID)
	if clientID == "" {
		return nil, errClientIDRequired
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errSecretRequired
	}
	env := cfg.Environment()
	base, ok := baseURLs[env]
	if !ok {
		return nil, errInvalidEnv
	}

	o := options{baseURL: base}
	for _, opt := range opts {
		opt(&o)
	}

	api, err := pp.NewClient(clientID, secret, o.baseURL)
	if err != nil {
		return nil, fmt.Errorf("paypal client: %w", err)
	}
	if o.httpClient != nil {
		api.SetHTTPClient(o.httpClient)
	}

	c := &Client{
		api:         api,
		clientID:    clientID,
		environment: env,
		currency:    cfg.CurrencyCode(),
		brandName:   strings.TrimSpace(cfg.BrandName),
		returnURL:   o.returnURL,
		cancelURL:   o.cancelURL,
		logger:      logg,
	}
	logg.Info(ctx, "paypal client initialized")
	return c, nil
}

// ClientID returns the public client id the widget loads with.
func (c *Client) ClientID() string {
	if c == nil {
		return ""
	}
	return c.clientID
}

// Environment reports the normalized PayPal environment.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// Currency returns the settlement currency used for every order.
func (c *Client) Currency() string {
	if c == nil {
		return ""
	}
	return c.currency
}

// CreateOrder registers a CAPTURE intent order and returns its id.
func (c *Client) CreateOrder(ctx context.Context, params CreateOrderParams) (string, error) {
	currency := c.currency
	if params.Currency != "" {
		currency = strings.ToUpper(params.Currency)
	}
	c.log(ctx, "request", "create_order", map[string]any{
		"reference_id": params.ReferenceID,
		"invoice_id":   params.InvoiceID,
		"amount":       params.Total.StringFixed(2),
		"currency":     currency,
	})

	appCtx := &pp.ApplicationContext{
		BrandName: c.brandName,
		ReturnURL: c.returnURL,
		CancelURL: c.cancelURL,
	}
	order, err := c.api.CreateOrder(ctx, pp.OrderIntentCapture, []pp.PurchaseUnitRequest{params.toPurchaseUnit(currency)}, nil, appCtx)
	if err != nil {
		c.log(ctx, "error", "create_order", map[string]any{"error": err.Error()})
		return "", c.mapPayPalError(err, "create_order")
	}
	if order == nil || order.ID == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "paypal create_order returned no id")
	}

	c.log(ctx, "response", "create_order", map[string]any{
		"order_id": order.ID,
		"status":   order.Status,
	})
	return order.ID, nil
}

// CaptureOrder finalizes an approved order. The PayPal-Request-Id header makes
// a replayed request return the original capture instead of charging again.
func (c *Client) CaptureOrder(ctx context.Context, orderID string) (CaptureResult, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return CaptureResult{}, pkgerrors.New(pkgerrors.CodeValidation, "paypal order id is required")
	}
	c.log(ctx, "request", "capture_order", map[string]any{"order_id": orderID})

	url := fmt.Sprintf("%s/v2/checkout/orders/%s/capture", c.api.APIBase, orderID)
	req, err := c.api.NewRequest(ctx, http.MethodPost, url, struct{}{})
	if err != nil {
		return CaptureResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build paypal capture request")
	}
	req.Header.Set("PayPal-Request-Id", "capture-"+orderID)
	req.Header.Set("Prefer", "return=representation")

	var resp captureResponse
	if err := c.api.SendWithAuth(req, &resp); err != nil {
		c.log(ctx, "error", "capture_order", map[string]any{"error": err.Error(), "order_id": orderID})
		return CaptureResult{}, c.mapPayPalError(err, "capture_order")
	}

	result := resp.toResult()
	c.log(ctx, "response", "capture_order", map[string]any{
		"order_id":       result.OrderID,
		"status":         result.Status,
		"capture_id":     result.CaptureID,
		"capture_status": result.CaptureStatus,
		"payer_email":    result.Payer.Email,
	})
	return result, nil
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("paypal %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("paypal %s", phase))
	}
}

func redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"token", "secret", "email", "phone"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}

func (c *Client) mapPayPalError(err error, op string) error {
	if err == nil {
		return nil
	}
	var apiErr *pp.ErrorResponse
	if errors.As(err, &apiErr) {
		status := 0
		if apiErr.Response != nil {
			status = apiErr.Response.StatusCode
		}
		return pkgerrors.Wrap(domainCodeForStatus(status), err, fmt.Sprintf("paypal %s failed", op)).
			WithDetails(errorDetails(status, apiErr))
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("paypal %s failed", op))
}

func errorDetails(status int, apiErr *pp.ErrorResponse) map[string]any {
	issues := make([]string, 0, len(apiErr.Details))
	for _, d := range apiErr.Details {
		if d.Issue != "" {
			issues = append(issues, d.Issue)
		}
	}
	return map[string]any{
		"provider_status":  status,
		"provider_name":    apiErr.Name,
		"provider_message": apiErr.Message,
		"debug_id":         apiErr.DebugID,
		"issues":           issues,
	}
}

func domainCodeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	case http.StatusBadRequest:
		return pkgerrors.CodeValidation
	case http.StatusUnprocessableEntity:
		return pkgerrors.CodeStateConflict
	default:
		if status >= 400 && status < 500 {
			return pkgerrors.CodeValidation
		}
		return pkgerrors.CodeDependency
	}
}
