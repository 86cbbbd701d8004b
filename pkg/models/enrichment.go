package models

import "time"

// IOCMatch is a threat-intelligence hit for one extracted IOC.
type IOCMatch struct {
	IOC        string         `json:"ioc"`
	Feed       string         `json:"feed"`
	Verdict    string         `json:"verdict"`
	Confidence float64        `json:"confidence"`
	FirstSeen  *time.Time     `json:"first_seen,omitempty"`
	LastSeen   *time.Time     `json:"last_seen,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
}

// BehaviouralObservation is one baseline-deviation finding for an entity.
type BehaviouralObservation struct {
	EntityValue string         `json:"entity_value"`
	Baseline    string         `json:"baseline"`
	Observed    string         `json:"observed"`
	Deviation   float64        `json:"deviation"`
	Detail      map[string]any `json:"detail,omitempty"`
}

// ExposureCorrelation links an alert entity to a known exposure
// (vulnerability, misconfiguration, or attack-surface record).
type ExposureCorrelation struct {
	EntityValue string  `json:"entity_value"`
	ExposureID  string  `json:"exposure_id"`
	Kind        string  `json:"kind"`
	Severity    string  `json:"severity"`
	Score       float64 `json:"score"`
}

// TrustLevel grades the telemetry behind an adversarial-ML detection.
type TrustLevel string

const (
	TrustLevelTrusted   TrustLevel = "trusted"
	TrustLevelUntrusted TrustLevel = "untrusted"
)

// IsValid checks if the trust level is a known value.
func (t TrustLevel) IsValid() bool {
	return t == TrustLevelTrusted || t == TrustLevelUntrusted
}

// AdversarialDetection is a finding from the trust-aware adversarial-ML
// detection subsystem, mapped to an ATLAS technique.
type AdversarialDetection struct {
	TechniqueID       string     `json:"technique_id"`
	TechniqueName     string     `json:"technique_name,omitempty"`
	TelemetryTrust    TrustLevel `json:"telemetry_trust_level"`
	AttestationStatus string     `json:"attestation_status"`
	Confidence        float64    `json:"confidence"`
}

// SimilarIncident is a historical investigation ranked by composite
// similarity to the current one.
type SimilarIncident struct {
	InvestigationID string    `json:"investigation_id"`
	Score           float64   `json:"score"`
	Classification  string    `json:"classification,omitempty"`
	ClosedAt        time.Time `json:"closed_at"`
}

// PlaybookMatch records a response playbook selected for an investigation.
type PlaybookMatch struct {
	PlaybookID string  `json:"playbook_id"`
	Name       string  `json:"name"`
	Score      float64 `json:"score"`
}

// EnrichmentDelta is the result of one enrichment sibling. Each agent fills
// only the fields it owns; the orchestrator merges deltas field by field.
type EnrichmentDelta struct {
	IOCMatches      []IOCMatch               `json:"ioc_matches,omitempty"`
	Behavioural     []BehaviouralObservation `json:"behavioural,omitempty"`
	Exposures       []ExposureCorrelation    `json:"exposures,omitempty"`
	Adversarial     []AdversarialDetection   `json:"adversarial,omitempty"`
	SimilarFindings []SimilarIncident        `json:"similar_findings,omitempty"`
	RiskState       RiskState                `json:"risk_state,omitempty"`
	QueriesExecuted int                      `json:"queries_executed,omitempty"`
}
