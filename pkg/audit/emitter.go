package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/argus-soc/argus/pkg/models"
)

// ErrUnknownEventType is returned when an event's type is outside the
// closed taxonomy.
var ErrUnknownEventType = errors.New("unknown audit event type")

// Producer delivers validated audit events to the audit-events topic.
type Producer interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// TopicPublisher delivers JSON records to a named side topic, keyed by
// tenant id.
type TopicPublisher interface {
	PublishTopic(ctx context.Context, topic, tenantID string, payload any) error
}

// Emitter is the fire-and-forget front of the audit producer. Emission
// failures are logged and counted, never raised to the caller: audit outages
// must not stall investigations.
type Emitter struct {
	producer Producer
	topics   TopicPublisher
	logger   *slog.Logger
}

// NewEmitter wraps a producer. The topics publisher may be nil when side
// topics are not configured; those publishes become no-ops.
func NewEmitter(producer Producer, topics TopicPublisher) *Emitter {
	return &Emitter{
		producer: producer,
		topics:   topics,
		logger:   slog.Default().With("component", "audit-emitter"),
	}
}

// Emit validates and publishes one audit event.
func (e *Emitter) Emit(ctx context.Context, ev Event) {
	if err := ev.Validate(); err != nil {
		e.logger.Error("Dropping invalid audit event",
			"event_type", ev.Type, "tenant_id", ev.TenantID, "error", err)
		return
	}
	if err := e.producer.Publish(ctx, ev); err != nil {
		e.logger.Error("Failed to publish audit event",
			"event_type", ev.Type, "tenant_id", ev.TenantID,
			"event_id", ev.EventID, "error", err)
	}
}

// EmitDispatch publishes one action-dispatch record to the side topic.
func (e *Emitter) EmitDispatch(ctx context.Context, tenantID string, d models.ActionDispatch) {
	if e.topics == nil {
		return
	}
	if err := e.topics.PublishTopic(ctx, TopicActionDispatch, tenantID, d); err != nil {
		e.logger.Error("Failed to publish action dispatch",
			"investigation_id", d.InvestigationID, "action", d.Action, "error", err)
	}
}

// EmitPattern announces an approved pattern so downstream caches converge.
func (e *Emitter) EmitPattern(ctx context.Context, p models.FPPattern) {
	if e.topics == nil {
		return
	}
	if err := e.topics.PublishTopic(ctx, TopicApprovedPatterns, p.Scope.TenantID, p); err != nil {
		e.logger.Error("Failed to publish pattern announcement",
			"pattern_id", p.ID, "error", err)
	}
}

// NopProducer discards everything. Used in tests and when auditing is
// explicitly disabled.
type NopProducer struct{}

// Publish implements Producer.
func (NopProducer) Publish(context.Context, Event) error { return nil }

// Close implements Producer.
func (NopProducer) Close() error { return nil }

// Recorder is a test double that captures every published event.
// Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish implements Producer.
func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Close implements Producer.
func (r *Recorder) Close() error { return nil }

// Events returns a snapshot of everything captured so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// ByType returns the captured events of one type.
func (r *Recorder) ByType(t EventType) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// WaitForType polls until at least n events of type t arrived or the
// timeout passes. Only for tests with asynchronous producers.
func (r *Recorder) WaitForType(t EventType, n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(r.ByType(t)) >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return len(r.ByType(t)) >= n
}
