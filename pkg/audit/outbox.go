package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// notifyLimit keeps NOTIFY payloads under PostgreSQL's 8000-byte cap with
// headroom for the envelope.
const notifyLimit = 7900

// OutboxProducer persists every audit event and broadcasts it via NOTIFY in
// a single transaction, so the durable row and the notification commit
// atomically. Side topics are notify-only: their durable state lives in the
// domain tables that produced them.
type OutboxProducer struct {
	db *sql.DB
}

// NewOutboxProducer creates an outbox producer over the main database pool.
func NewOutboxProducer(db *sql.DB) *OutboxProducer {
	return &OutboxProducer{db: db}
}

// Publish implements Producer.
func (p *OutboxProducer) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO audit_events
		   (event_id, tenant_id, event_type, event_category, severity, investigation_id, alert_id, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9)`,
		ev.EventID, ev.TenantID, string(ev.Type), string(ev.Category), string(ev.Severity),
		ev.InvestigationID, ev.AlertID, payload, ev.Timestamp.Time())
	if err != nil {
		return fmt.Errorf("persist audit event: %w", err)
	}

	notifyPayload, err := truncateIfNeeded(payload, ev)
	if err != nil {
		return err
	}
	// pg_notify is transactional: the notification fires on COMMIT.
	if _, err := tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", TenantChannel(ev.TenantID), notifyPayload); err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit audit event: %w", err)
	}
	return nil
}

// PublishTopic implements TopicPublisher via notify-only broadcast.
func (p *OutboxProducer) PublishTopic(ctx context.Context, topic, tenantID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", topic, err)
	}
	if len(data) > notifyLimit {
		return fmt.Errorf("%s payload exceeds NOTIFY limit (%d bytes)", topic, len(data))
	}
	channel := topic
	if tenantID != "" {
		channel = topic + ":" + tenantID
	}
	if _, err := p.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", channel, string(data)); err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}
	return nil
}

// Close implements Producer. The pool is owned by the database client.
func (p *OutboxProducer) Close() error { return nil }

// truncateIfNeeded returns the payload as-is when it fits the NOTIFY limit,
// otherwise a minimal envelope with the routing fields a consumer needs to
// fetch the full row from audit_events.
func truncateIfNeeded(payload []byte, ev Event) (string, error) {
	if len(payload) <= notifyLimit {
		return string(payload), nil
	}
	envelope := map[string]any{
		"event_id":   ev.EventID,
		"tenant_id":  ev.TenantID,
		"event_type": ev.Type,
		"truncated":  true,
	}
	if ev.InvestigationID != "" {
		envelope["investigation_id"] = ev.InvestigationID
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("marshal truncation envelope: %w", err)
	}
	return string(data), nil
}
