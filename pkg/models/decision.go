package models

import "time"

// Agent identifiers recorded in decision entries.
const (
	AgentIOCExtractor   = "ioc_extractor"
	AgentFPShortCircuit = "fp_short_circuit"
	AgentBehavioural    = "behavioural_enricher"
	AgentIntel          = "intel_enricher"
	AgentCorrelation    = "correlation_enricher"
	AgentReasoning      = "reasoning"
	AgentResponse       = "response"
	AgentOrchestrator   = "orchestrator"
	AgentGovernance     = "governance"
)

// TrustTag marks decision entries derived from attested or unattested
// telemetry. Empty when the distinction does not apply.
type TrustTag string

const (
	TrustTagTrusted   TrustTag = "trusted"
	TrustTagUntrusted TrustTag = "untrusted"
	TrustTagMixed     TrustTag = "mixed"
)

// DecisionEntry is one immutable entry of an investigation's decision chain.
// Appended at every state transition and every agent outcome.
type DecisionEntry struct {
	AgentID    string         `json:"agent_id"`
	Action     string         `json:"action"`
	Timestamp  time.Time      `json:"timestamp"`
	Confidence *float64       `json:"confidence,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
	Trust      TrustTag       `json:"trust,omitempty"`
}

// NewDecision builds a decision entry stamped with the current UTC time.
func NewDecision(agentID, action string) DecisionEntry {
	return DecisionEntry{
		AgentID:   agentID,
		Action:    action,
		Timestamp: time.Now().UTC(),
	}
}

// WithConfidence attaches a confidence score to the entry.
func (d DecisionEntry) WithConfidence(c float64) DecisionEntry {
	d.Confidence = &c
	return d
}

// WithDetail attaches a detail map to the entry.
func (d DecisionEntry) WithDetail(detail map[string]any) DecisionEntry {
	d.Detail = detail
	return d
}

// WithTrust attaches a trust tag to the entry.
func (d DecisionEntry) WithTrust(t TrustTag) DecisionEntry {
	d.Trust = t
	return d
}
