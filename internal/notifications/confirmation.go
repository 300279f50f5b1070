package notifications

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/shipping"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/sendgrid"
)

// Confirmation is the content of an order confirmation email.
type Confirmation struct {
	OrderID         string
	ProviderOrderID string
	Currency        string
	Items           []cart.LineItem
	Subtotal        decimal.Decimal
	DiscountAmount  decimal.Decimal
	FinalAmount     decimal.Decimal
	CouponCode      string
	Shipping        shipping.Address
	SupportEmail    string
}

// ConfirmationSender delivers order confirmation emails.
type ConfirmationSender interface {
	SendOrderConfirmation(ctx context.Context, c Confirmation) error
}

type mailer interface {
	Send(ctx context.Context, msg sendgrid.Message) error
}

// MailSender renders confirmations and hands them to a mailer.
type MailSender struct {
	mailer mailer
}

// NewMailSender wires the SendGrid backed sender.
func NewMailSender(m mailer) (*MailSender, error) {
	if m == nil {
		return nil, fmt.Errorf("mailer required")
	}
	return &MailSender{mailer: m}, nil
}

func (s *MailSender) SendOrderConfirmation(ctx context.Context, c Confirmation) error {
	msg, err := Render(c)
	if err != nil {
		return err
	}
	return s.mailer.Send(ctx, msg)
}

// LogSender logs confirmations instead of sending them. Used when no mail
// provider is configured.
type LogSender struct {
	logg *logger.Logger
}

// NewLogSender returns a sender that only logs.
func NewLogSender(logg *logger.Logger) *LogSender {
	return &LogSender{logg: logg}
}

func (s *LogSender) SendOrderConfirmation(ctx context.Context, c Confirmation) error {
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"order_id":  c.OrderID,
			"recipient": c.Shipping.Email,
		}), "order confirmation email skipped: no mail provider")
	}
	return nil
}

type confirmationView struct {
	Confirmation
	Lines     []lineView
	Subtotal  string
	Discount  string
	Total     string
	HasCoupon bool
}

type lineView struct {
	Name     string
	Option   string
	Quantity int
	Amount   string
}

// Render builds the subject, plain text and HTML bodies.
func Render(c Confirmation) (sendgrid.Message, error) {
	view := confirmationView{
		Confirmation: c,
		Subtotal:     money(c.Subtotal, c.Currency),
		Discount:     money(c.DiscountAmount, c.Currency),
		Total:        money(c.FinalAmount, c.Currency),
		HasCoupon:    c.DiscountAmount.IsPositive(),
	}
	for _, item := range c.Items {
		line := lineView{Name: item.Name, Quantity: item.Quantity, Amount: money(item.LineTotal(), c.Currency)}
		options := []string{}
		if item.SelectedSize != "" {
			options = append(options, item.SelectedSize)
		}
		if item.SelectedVariation != nil && item.SelectedVariation.Name != "" {
			options = append(options, item.SelectedVariation.Name)
		}
		line.Option = strings.Join(options, ", ")
		view.Lines = append(view.Lines, line)
	}

	var text bytes.Buffer
	if err := textBody.Execute(&text, view); err != nil {
		return sendgrid.Message{}, fmt.Errorf("render text confirmation: %w", err)
	}
	var html bytes.Buffer
	if err := htmlBody.Execute(&html, view); err != nil {
		return sendgrid.Message{}, fmt.Errorf("render html confirmation: %w", err)
	}

	return sendgrid.Message{
		ToName:  c.Shipping.FullName,
		ToEmail: c.Shipping.Email,
		Subject: fmt.Sprintf("Your order %s is confirmed", c.OrderID),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}

func money(amount decimal.Decimal, currency string) string {
	return strings.TrimSpace(amount.StringFixed(2) + " " + currency)
}

var textBody = texttemplate.Must(texttemplate.New("text").Parse(`Hi {{.Shipping.FullName}},

Thanks for your order. Order {{.OrderID}} (PayPal {{.ProviderOrderID}}) is confirmed.

{{range .Lines}}{{.Quantity}} x {{.Name}}{{if .Option}} ({{.Option}}){{end}}  {{.Amount}}
{{end}}
Subtotal: {{.Subtotal}}
{{if .HasCoupon}}Discount{{if .CouponCode}} ({{.CouponCode}}){{end}}: -{{.Discount}}
{{end}}Total: {{.Total}}

Shipping to:
{{.Shipping.FullName}}
{{.Shipping.Address}}
{{.Shipping.City}} {{.Shipping.ZipCode}}
{{.Shipping.Country}}
{{if .SupportEmail}}
Questions? Contact {{.SupportEmail}} and mention order {{.OrderID}}.
{{end}}`))

var htmlBody = htmltemplate.Must(htmltemplate.New("html").Parse(`<p>Hi {{.Shipping.FullName}},</p>
<p>Thanks for your order. Order <strong>{{.OrderID}}</strong> (PayPal {{.ProviderOrderID}}) is confirmed.</p>
<table>
{{range .Lines}}<tr><td>{{.Quantity}} &times; {{.Name}}{{if .Option}} ({{.Option}}){{end}}</td><td>{{.Amount}}</td></tr>
{{end}}<tr><td>Subtotal</td><td>{{.Subtotal}}</td></tr>
{{if .HasCoupon}}<tr><td>Discount{{if .CouponCode}} ({{.CouponCode}}){{end}}</td><td>-{{.Discount}}</td></tr>
{{end}}<tr><td><strong>Total</strong></td><td><strong>{{.Total}}</strong></td></tr>
</table>
<p>Shipping to:<br>{{.Shipping.FullName}}<br>{{.Shipping.Address}}<br>{{.Shipping.City}} {{.Shipping.ZipCode}}<br>{{.Shipping.Country}}</p>
{{if .SupportEmail}}<p>Questions? Contact {{.SupportEmail}} and mention order {{.OrderID}}.</p>{{end}}
`))
