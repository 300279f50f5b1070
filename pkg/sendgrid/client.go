package sendgrid

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sendgrid/rest"
	sg "github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

const (
	defaultHost  = "https://api.sendgrid.com"
	sendEndpoint = "/v3/mail/send"
)

var (
	errAPIKeyRequired = errors.New("sendgrid api key is required")
	errFromRequired   = errors.New("sendgrid from address is required")
)

// Message is a single transactional email.
type Message struct {
	ToName  string
	ToEmail string
	Subject string
	Text    string
	HTML    string
}

// Client sends transactional email through the SendGrid v3 API.
type Client struct {
	apiKey string
	host   string
	from   *mail.Email
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHost overrides the SendGrid API host.
func WithHost(host string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(host); trimmed != "" {
			c.host = strings.TrimRight(trimmed, "/")
		}
	}
}

// NewClient builds a client from config.
func NewClient(cfg config.SendgridConfig, opts ...Option) (*Client, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errAPIKeyRequired
	}
	from := strings.TrimSpace(cfg.DefaultFrom)
	if from == "" {
		return nil, errFromRequired
	}
	c := &Client{
		apiKey: key,
		host:   defaultHost,
		from:   mail.NewEmail(strings.TrimSpace(cfg.FromName), from),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Send delivers msg. Any non-2xx response is returned as a dependency error.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "sendgrid client not configured")
	}
	if strings.TrimSpace(msg.ToEmail) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "recipient email is required")
	}

	to := mail.NewEmail(msg.ToName, msg.ToEmail)
	payload := mail.NewSingleEmail(c.from, msg.Subject, to, msg.Text, msg.HTML)

	req := sg.GetRequest(c.apiKey, sendEndpoint, c.host)
	req.Method = rest.Post
	req.Body = mail.GetRequestBody(payload)

	resp, err := sg.MakeRequestWithContext(ctx, req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "send email")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("sendgrid returned %d", resp.StatusCode)).
			WithDetails(map[string]any{"status": resp.StatusCode, "body": truncate(resp.Body, 512)})
	}
	return nil
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
