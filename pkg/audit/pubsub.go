package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// PubSubConfig selects the Pub/Sub backend for the audit stream.
type PubSubConfig struct {
	ProjectID string `yaml:"project_id"`
	// AuditTopic overrides the default audit topic id.
	AuditTopic string `yaml:"audit_topic"`
}

// PubSubProducer publishes audit events and side-topic records to Google
// Cloud Pub/Sub. Messages carry the tenant id as ordering key, so one
// tenant's stream is delivered in publish order while tenants stay
// independent.
type PubSubProducer struct {
	client     *pubsub.Client
	auditTopic string
	logger     *slog.Logger

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// NewPubSubProducer connects to Pub/Sub. Pass option.WithGRPCConn for
// emulator or in-memory test servers.
func NewPubSubProducer(ctx context.Context, cfg PubSubConfig, opts ...option.ClientOption) (*PubSubProducer, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("pubsub producer requires a project id")
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	auditTopic := cfg.AuditTopic
	if auditTopic == "" {
		auditTopic = TopicAuditEvents
	}
	return &PubSubProducer{
		client:     client,
		auditTopic: auditTopic,
		logger:     slog.Default().With("component", "audit-pubsub"),
		topics:     make(map[string]*pubsub.Topic),
	}, nil
}

// Publish implements Producer.
func (p *PubSubProducer) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	attrs := map[string]string{
		"event_type":     string(ev.Type),
		"event_category": string(ev.Category),
		"severity":       string(ev.Severity),
		"tenant_id":      ev.TenantID,
		"source_service": ev.Source,
	}
	return p.publish(ctx, p.auditTopic, ev.TenantID, data, attrs)
}

// PublishTopic implements TopicPublisher.
func (p *PubSubProducer) PublishTopic(ctx context.Context, topic, tenantID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", topic, err)
	}
	return p.publish(ctx, topic, tenantID, data, map[string]string{"tenant_id": tenantID})
}

func (p *PubSubProducer) publish(ctx context.Context, topicID, orderingKey string, data []byte, attrs map[string]string) error {
	topic := p.topic(topicID)
	msg := &pubsub.Message{Data: data, Attributes: attrs}
	if orderingKey != "" {
		msg.OrderingKey = orderingKey
	}
	result := topic.Publish(ctx, msg)
	if _, err := result.Get(ctx); err != nil {
		// A failed ordered publish wedges the key until resumed; resume so
		// later events for this tenant are not silently dropped.
		if orderingKey != "" {
			topic.ResumePublish(orderingKey)
		}
		return fmt.Errorf("publish to %s: %w", topicID, err)
	}
	return nil
}

// topic returns a cached publisher handle with message ordering enabled.
func (p *PubSubProducer) topic(id string) *pubsub.Topic {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.topics[id]; ok {
		return t
	}
	t := p.client.Topic(id)
	t.EnableMessageOrdering = true
	p.topics[id] = t
	return t
}

// Close implements Producer: flushes outstanding publishes and closes the
// client.
func (p *PubSubProducer) Close() error {
	p.mu.Lock()
	for _, t := range p.topics {
		t.Stop()
	}
	p.mu.Unlock()
	return p.client.Close()
}
