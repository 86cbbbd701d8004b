package audit

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// eventTimeLayout renders millisecond precision, UTC, trailing Z.
const eventTimeLayout = "2006-01-02T15:04:05.000Z"

// EventTime is a timestamp serialised as ISO-8601 with millisecond
// precision in UTC (trailing Z), the wire format of the audit topic.
type EventTime time.Time

// MarshalJSON implements json.Marshaler.
func (t EventTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Time(t).UTC().Format(eventTimeLayout) + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler. Accepts the canonical layout
// plus RFC 3339 variants for tolerance when replaying foreign streams.
func (t *EventTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := time.Parse(eventTimeLayout, s)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("invalid event timestamp %q: %w", s, err)
		}
	}
	*t = EventTime(parsed.UTC())
	return nil
}

// Time returns the underlying time.Time.
func (t EventTime) Time() time.Time {
	return time.Time(t)
}

// SourceService identifies this engine on the audit stream.
const SourceService = "argus-core"

// TenantGlobal keys events that concern the whole platform rather than one
// tenant: global patterns, non-tenant kill switches, system degradations.
const TenantGlobal = "_global"

// TenantOrGlobal substitutes the platform key for an empty tenant id.
func TenantOrGlobal(tenantID string) string {
	if tenantID == "" {
		return TenantGlobal
	}
	return tenantID
}

// Event is one audit record. Key on the topic is the tenant id.
type Event struct {
	EventID   string        `json:"event_id"`
	TenantID  string        `json:"tenant_id"`
	Timestamp EventTime     `json:"timestamp"`
	Type      EventType     `json:"event_type"`
	Category  Category      `json:"event_category"`
	Severity  EventSeverity `json:"severity"`
	ActorType ActorType     `json:"actor_type"`
	ActorID   string        `json:"actor_id"`
	Source    string        `json:"source_service"`

	InvestigationID string   `json:"investigation_id,omitempty"`
	AlertID         string   `json:"alert_id,omitempty"`
	EntityIDs       []string `json:"entity_ids,omitempty"`

	Context  map[string]any `json:"context,omitempty"`
	Decision map[string]any `json:"decision,omitempty"`
	Outcome  map[string]any `json:"outcome,omitempty"`
}

// NewEvent builds an event of the given type with id, timestamp, category,
// and default severity filled in. The default actor is the system itself.
func NewEvent(t EventType, tenantID string) Event {
	return Event{
		EventID:   uuid.New().String(),
		TenantID:  tenantID,
		Timestamp: EventTime(time.Now().UTC()),
		Type:      t,
		Category:  CategoryOf(t),
		Severity:  DefaultSeverity(t),
		ActorType: ActorSystem,
		ActorID:   SourceService,
		Source:    SourceService,
	}
}

// WithActor sets the acting principal.
func (e Event) WithActor(t ActorType, id string) Event {
	e.ActorType = t
	e.ActorID = id
	return e
}

// WithInvestigation attaches investigation and alert ids.
func (e Event) WithInvestigation(investigationID, alertID string) Event {
	e.InvestigationID = investigationID
	e.AlertID = alertID
	return e
}

// WithEntities attaches the entity ids the event concerns.
func (e Event) WithEntities(ids []string) Event {
	e.EntityIDs = ids
	return e
}

// WithContext attaches the context sub-object.
func (e Event) WithContext(ctx map[string]any) Event {
	e.Context = ctx
	return e
}

// WithDecision attaches the decision sub-object.
func (e Event) WithDecision(d map[string]any) Event {
	e.Decision = d
	return e
}

// WithOutcome attaches the outcome sub-object.
func (e Event) WithOutcome(o map[string]any) Event {
	e.Outcome = o
	return e
}

// WithSeverity overrides the default severity.
func (e Event) WithSeverity(s EventSeverity) Event {
	e.Severity = s
	return e
}

// Validate rejects events outside the closed taxonomy or missing routing
// fields. Producers call this before delivery.
func (e Event) Validate() error {
	if !KnownType(e.Type) {
		return fmt.Errorf("%w: %q", ErrUnknownEventType, e.Type)
	}
	if e.TenantID == "" {
		return fmt.Errorf("audit event %s: missing tenant id", e.Type)
	}
	if e.Category != CategoryOf(e.Type) {
		return fmt.Errorf("audit event %s: category %q does not match taxonomy", e.Type, e.Category)
	}
	if !e.Severity.IsValid() {
		return fmt.Errorf("audit event %s: invalid severity %q", e.Type, e.Severity)
	}
	if !e.ActorType.IsValid() {
		return fmt.Errorf("audit event %s: invalid actor type %q", e.Type, e.ActorType)
	}
	return nil
}
