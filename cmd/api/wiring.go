package main

import (
	"context"
	"strings"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/internal/analytics"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/bigquery"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/pubsub"
	"github.com/angelmondragon/storefront-backend/pkg/sendgrid"
)

type closer struct {
	name string
	fn   func() error
}

// closerList releases resources in reverse order of acquisition.
type closerList struct {
	items []closer
}

func (c *closerList) add(name string, fn func() error) {
	c.items = append(c.items, closer{name: name, fn: fn})
}

func (c *closerList) Close() error {
	var err error
	for i := len(c.items) - 1; i >= 0; i-- {
		if closeErr := c.items[i].fn(); closeErr != nil {
			err = multierr.Append(err, closeErr)
		}
	}
	c.items = nil
	return err
}

// buildOrderStore selects where captured orders are submitted: the order
// endpoint of this service (local) or an external one (remote).
func buildOrderStore(cfg config.CheckoutConfig, svc orders.Service) (orders.Store, error) {
	if cfg.UsesRemoteOrderStore() {
		return orders.NewRemoteStore(cfg.OrderEndpointURL, cfg.OrderEndpointKey)
	}
	return orders.NewLocalStore(svc)
}

func buildMailer(cfg config.SendgridConfig, logg *logger.Logger) (notifications.ConfirmationSender, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		logg.Warn(context.Background(), "sendgrid api key missing, confirmation emails are logged only")
		return notifications.NewLogSender(logg), nil
	}
	client, err := sendgrid.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return notifications.NewMailSender(client)
}

func buildTracker(ctx context.Context, cfg *config.Config, logg *logger.Logger, closers *closerList) (analytics.Tracker, error) {
	if !cfg.FeatureFlags.AnalyticsEnabled {
		return analytics.NoopTracker{}, nil
	}
	client, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		return nil, err
	}
	closers.add("bigquery", client.Close)
	table := client.CheckoutEventsTable()
	if err := client.EnsureTable(ctx, table, analytics.CheckoutEventSchema(), analytics.CheckoutEventPartitionField); err != nil {
		return nil, err
	}
	return analytics.NewBigQueryTracker(client, table, analytics.RetryPolicy{})
}

func buildEventPublisher(ctx context.Context, cfg *config.Config, logg *logger.Logger, closers *closerList) (checkout.EventPublisher, error) {
	if !cfg.FeatureFlags.EventsEnabled {
		return checkout.NoopEventPublisher{}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return nil, err
	}
	closers.add("pubsub", client.Close)
	return checkout.NewPubSubEventPublisher(client.OrdersPublisher())
}
