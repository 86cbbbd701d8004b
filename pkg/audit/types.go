// Package audit produces the append-only audit-event stream plus the
// action-dispatch and approved-pattern side topics.
//
// Events are delivered fire-and-forget: producer failures are logged, never
// raised to the caller. Two producers exist — a PostgreSQL outbox that
// persists each event and broadcasts via NOTIFY in one transaction, and a
// Pub/Sub producer that orders messages per tenant.
package audit

// Category groups event types. The taxonomy is closed: unknown types are
// rejected by the producer.
type Category string

const (
	CategoryDecision Category = "decision"
	CategoryAction   Category = "action"
	CategoryApproval Category = "approval"
	CategorySecurity Category = "security"
	CategorySystem   Category = "system"
)

// IsValid checks if the category is a known value.
func (c Category) IsValid() bool {
	switch c {
	case CategoryDecision, CategoryAction, CategoryApproval, CategorySecurity, CategorySystem:
		return true
	default:
		return false
	}
}

// EventSeverity grades an audit event for downstream alerting.
type EventSeverity string

const (
	SeverityInfo     EventSeverity = "info"
	SeverityWarning  EventSeverity = "warning"
	SeverityCritical EventSeverity = "critical"
)

// IsValid checks if the event severity is a known value.
func (s EventSeverity) IsValid() bool {
	return s == SeverityInfo || s == SeverityWarning || s == SeverityCritical
}

// ActorType identifies what kind of principal caused an event.
type ActorType string

const (
	ActorSystem  ActorType = "system"
	ActorAgent   ActorType = "agent"
	ActorHuman   ActorType = "human"
	ActorService ActorType = "service"
)

// IsValid checks if the actor type is a known value.
func (a ActorType) IsValid() bool {
	switch a {
	case ActorSystem, ActorAgent, ActorHuman, ActorService:
		return true
	default:
		return false
	}
}

// EventType is one member of the closed audit taxonomy.
type EventType string

// Decision events — classification, enrichment, routing, short-circuits,
// state changes.
const (
	EventInvestigationCreated   EventType = "investigation.created"
	EventInvestigationState     EventType = "investigation.state_changed"
	EventInvestigationClosed    EventType = "investigation.closed"
	EventInvestigationFailed    EventType = "investigation.failed"
	EventInvestigationReopened  EventType = "investigation.reopened"
	EventIOCExtracted           EventType = "ioc.extracted"
	EventEnrichmentCompleted    EventType = "enrichment.completed"
	EventEnrichmentFailed       EventType = "enrichment.failed"
	EventClassificationRendered EventType = "classification.rendered"
	EventClassificationSupersed EventType = "classification.superseded"
	EventEscalationTriggered    EventType = "escalation.triggered"
	EventFPShortCircuit         EventType = "fp.short_circuit"
	EventShadowDecisionRecorded EventType = "shadow.decision_recorded"
	EventShadowReconciled       EventType = "shadow.reconciled"
)

// Action events — execution, preparation, FP pattern lifecycle.
const (
	EventActionPrepared       EventType = "action.prepared"
	EventActionExecuted       EventType = "action.executed"
	EventActionDispatchFailed EventType = "action.dispatch_failed"
	EventActionNotified       EventType = "action.notified"
	EventActionSuppressed     EventType = "action.suppressed"
	EventFPPatternCreated     EventType = "fp_pattern.created"
	EventFPPatternApproved    EventType = "fp_pattern.approved"
	EventFPPatternRevoked     EventType = "fp_pattern.revoked"
	EventFPPatternReaffirmed  EventType = "fp_pattern.reaffirmed"
	EventFPPatternExpired     EventType = "fp_pattern.expired"
	EventFPPatternPromoted    EventType = "fp_pattern.promoted"
)

// Approval events.
const (
	EventApprovalRequested EventType = "approval.requested"
	EventApprovalGranted   EventType = "approval.granted"
	EventApprovalDenied    EventType = "approval.denied"
	EventApprovalTimedOut  EventType = "approval.timed_out"
	EventApprovalEscalated EventType = "approval.escalated"
)

// Security events.
const (
	EventInjectionDetected      EventType = "injection.detected"
	EventInjectionQuarantined   EventType = "injection.quarantined"
	EventTechniqueQuarantined   EventType = "technique.quarantined"
	EventSchemaViolation        EventType = "schema.violation"
	EventSpendSoftLimit         EventType = "spend.soft_limit"
	EventSpendHardLimit         EventType = "spend.hard_limit"
	EventAccumulationThreshold  EventType = "accumulation.threshold"
	EventTelemetryUntrusted     EventType = "telemetry.untrusted"
)

// System events.
const (
	EventSystemGenesis         EventType = "system.genesis"
	EventSystemDegraded        EventType = "system.degraded"
	EventConfigChanged         EventType = "config.changed"
	EventKillSwitchActivated   EventType = "kill_switch.activated"
	EventKillSwitchDeactivated EventType = "kill_switch.deactivated"
	EventCircuitBreakerOpened  EventType = "circuit_breaker.opened"
	EventCircuitBreakerClosed  EventType = "circuit_breaker.closed"
	EventTenantWentLive        EventType = "tenant.went_live"
)

// typeCategories maps every known event type to its category. Membership in
// this map is what makes a type part of the closed taxonomy.
var typeCategories = map[EventType]Category{
	EventInvestigationCreated:   CategoryDecision,
	EventInvestigationState:     CategoryDecision,
	EventInvestigationClosed:    CategoryDecision,
	EventInvestigationFailed:    CategoryDecision,
	EventInvestigationReopened:  CategoryDecision,
	EventIOCExtracted:           CategoryDecision,
	EventEnrichmentCompleted:    CategoryDecision,
	EventEnrichmentFailed:       CategoryDecision,
	EventClassificationRendered: CategoryDecision,
	EventClassificationSupersed: CategoryDecision,
	EventEscalationTriggered:    CategoryDecision,
	EventFPShortCircuit:         CategoryDecision,
	EventShadowDecisionRecorded: CategoryDecision,
	EventShadowReconciled:       CategoryDecision,

	EventActionPrepared:       CategoryAction,
	EventActionExecuted:       CategoryAction,
	EventActionDispatchFailed: CategoryAction,
	EventActionNotified:       CategoryAction,
	EventActionSuppressed:     CategoryAction,
	EventFPPatternCreated:     CategoryAction,
	EventFPPatternApproved:    CategoryAction,
	EventFPPatternRevoked:     CategoryAction,
	EventFPPatternReaffirmed:  CategoryAction,
	EventFPPatternExpired:     CategoryAction,
	EventFPPatternPromoted:    CategoryAction,

	EventApprovalRequested: CategoryApproval,
	EventApprovalGranted:   CategoryApproval,
	EventApprovalDenied:    CategoryApproval,
	EventApprovalTimedOut:  CategoryApproval,
	EventApprovalEscalated: CategoryApproval,

	EventInjectionDetected:     CategorySecurity,
	EventInjectionQuarantined:  CategorySecurity,
	EventTechniqueQuarantined:  CategorySecurity,
	EventSchemaViolation:       CategorySecurity,
	EventSpendSoftLimit:        CategorySecurity,
	EventSpendHardLimit:        CategorySecurity,
	EventAccumulationThreshold: CategorySecurity,
	EventTelemetryUntrusted:    CategorySecurity,

	EventSystemGenesis:         CategorySystem,
	EventSystemDegraded:        CategorySystem,
	EventConfigChanged:         CategorySystem,
	EventKillSwitchActivated:   CategorySystem,
	EventKillSwitchDeactivated: CategorySystem,
	EventCircuitBreakerOpened:  CategorySystem,
	EventCircuitBreakerClosed:  CategorySystem,
	EventTenantWentLive:        CategorySystem,
}

// defaultSeverities lists the types that are not plain info.
var defaultSeverities = map[EventType]EventSeverity{
	EventInvestigationFailed:   SeverityCritical,
	EventEnrichmentFailed:      SeverityWarning,
	EventActionDispatchFailed:  SeverityWarning,
	EventApprovalTimedOut:      SeverityWarning,
	EventInjectionDetected:     SeverityWarning,
	EventInjectionQuarantined:  SeverityCritical,
	EventTechniqueQuarantined:  SeverityWarning,
	EventSchemaViolation:       SeverityWarning,
	EventSpendSoftLimit:        SeverityWarning,
	EventSpendHardLimit:        SeverityCritical,
	EventAccumulationThreshold: SeverityCritical,
	EventTelemetryUntrusted:    SeverityWarning,
	EventSystemDegraded:        SeverityWarning,
	EventKillSwitchActivated:   SeverityWarning,
	EventCircuitBreakerOpened:  SeverityWarning,
}

// KnownType reports whether t belongs to the closed taxonomy.
func KnownType(t EventType) bool {
	_, ok := typeCategories[t]
	return ok
}

// CategoryOf returns the category for a known type, or "" for unknown ones.
func CategoryOf(t EventType) Category {
	return typeCategories[t]
}

// DefaultSeverity returns the severity an event of this type carries unless
// the caller overrides it.
func DefaultSeverity(t EventType) EventSeverity {
	if s, ok := defaultSeverities[t]; ok {
		return s
	}
	return SeverityInfo
}

// Side topics published alongside the audit stream.
const (
	TopicAuditEvents      = "audit_events"
	TopicActionDispatch   = "action_dispatch"
	TopicApprovedPatterns = "fp_patterns"
)

// TenantChannel returns the NOTIFY channel for one tenant's audit events.
func TenantChannel(tenantID string) string {
	return TopicAuditEvents + ":" + tenantID
}
