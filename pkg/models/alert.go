package models

import "time"

// Severity is the closed severity enum shared by alerts and investigations.
type Severity string

const (
	SeverityCritical      Severity = "critical"
	SeverityHigh          Severity = "high"
	SeverityMedium        Severity = "medium"
	SeverityLow           Severity = "low"
	SeverityInformational Severity = "informational"
)

// IsValid checks if the severity is a known value.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInformational:
		return true
	default:
		return false
	}
}

// IsEscalatable reports whether low-confidence findings at this severity
// trigger model escalation and the human-approval gate.
func (s Severity) IsEscalatable() bool {
	return s == SeverityCritical || s == SeverityHigh
}

// Alert is a normalised detection produced by an ingest adapter.
// Immutable once created; the orchestrator consumes each alert exactly once.
type Alert struct {
	ID          string         `json:"id"`
	Source      string         `json:"source"`
	Timestamp   time.Time      `json:"timestamp"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Severity    Severity       `json:"severity"`
	Tactics     []string       `json:"tactics,omitempty"`
	Techniques  []string       `json:"techniques,omitempty"`
	RawEntities map[string]any `json:"raw_entities,omitempty"`
	Product     string         `json:"product,omitempty"`
	TenantID    string         `json:"tenant_id"`
	RawPayload  map[string]any `json:"raw_payload,omitempty"`

	// RuleFamily and AssetClass position the alert in FP-pattern scope space.
	// Ingest adapters set them when the vendor exposes the concepts; an empty
	// rule family falls back to Product.
	RuleFamily string `json:"rule_family,omitempty"`
	AssetClass string `json:"asset_class,omitempty"`
}

// EffectiveRuleFamily returns the rule family used for scope matching,
// falling back to the product name when the adapter did not set one.
func (a *Alert) EffectiveRuleFamily() string {
	if a.RuleFamily != "" {
		return a.RuleFamily
	}
	return a.Product
}
