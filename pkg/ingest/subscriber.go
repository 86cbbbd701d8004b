package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"github.com/argus-soc/argus/pkg/models"
)

// SubscriberConfig selects the alert-topic subscription. HTTP intake is the
// primary path; the subscriber is an optional second one for sources that
// already publish to Pub/Sub.
type SubscriberConfig struct {
	ProjectID    string `yaml:"project_id"`
	Subscription string `yaml:"subscription"`
}

// Enqueuer is the queue surface the subscriber feeds. The database enforces
// the (tenant_id, alert_id) intake boundary, so redelivered messages are
// harmless.
type Enqueuer interface {
	Enqueue(ctx context.Context, alert *models.Alert) error
}

// Subscriber consumes normalised alerts from the alert topic and enqueues
// them for investigation.
type Subscriber struct {
	client *pubsub.Client
	sub    *pubsub.Subscription
	queue  Enqueuer
	logger *slog.Logger
}

// NewSubscriber connects to the subscription. Pass option.WithGRPCConn for
// emulator or in-memory test servers.
func NewSubscriber(ctx context.Context, cfg SubscriberConfig, queue Enqueuer, opts ...option.ClientOption) (*Subscriber, error) {
	if cfg.ProjectID == "" || cfg.Subscription == "" {
		return nil, fmt.Errorf("alert subscriber requires a project id and subscription")
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &Subscriber{
		client: client,
		sub:    client.Subscription(cfg.Subscription),
		queue:  queue,
		logger: slog.Default().With("component", "alert-subscriber"),
	}, nil
}

// Run blocks receiving alerts until the context is cancelled. Malformed
// messages are acked and logged; poison redelivery would never converge.
// Enqueue failures are nacked for redelivery.
func (s *Subscriber) Run(ctx context.Context) error {
	err := s.sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		var alert models.Alert
		if err := json.Unmarshal(msg.Data, &alert); err != nil {
			s.logger.Warn("Dropping undecodable alert message", "error", err)
			msg.Ack()
			return
		}
		if alert.ID == "" || alert.TenantID == "" {
			s.logger.Warn("Dropping alert without id or tenant",
				"alert_id", alert.ID, "tenant_id", alert.TenantID)
			msg.Ack()
			return
		}
		if err := s.queue.Enqueue(ctx, &alert); err != nil {
			s.logger.Error("Failed to enqueue alert, nacking for redelivery",
				"tenant_id", alert.TenantID, "alert_id", alert.ID, "error", err)
			msg.Nack()
			return
		}
		msg.Ack()
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("alert subscription receive: %w", err)
	}
	return nil
}

// Close releases the Pub/Sub client.
func (s *Subscriber) Close() error {
	return s.client.Close()
}
