package models

import (
	"time"
)

// State is the lifecycle state of an investigation.
type State string

const (
	StateReceived      State = "received"
	StateParsing       State = "parsing"
	StateEnriching     State = "enriching"
	StateReasoning     State = "reasoning"
	StateAwaitingHuman State = "awaiting_human"
	StateResponding    State = "responding"
	StateClosed        State = "closed"
	StateFailed        State = "failed"
)

// IsValid checks if the state is a known value.
func (s State) IsValid() bool {
	switch s {
	case StateReceived, StateParsing, StateEnriching, StateReasoning,
		StateAwaitingHuman, StateResponding, StateClosed, StateFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the state is absorbing.
func (s State) IsTerminal() bool {
	return s == StateClosed || s == StateFailed
}

// stateGraph encodes the investigation graph topology. FAILED is reachable
// from every non-terminal state and is therefore not listed per edge.
var stateGraph = map[State][]State{
	StateReceived:      {StateParsing},
	StateParsing:       {StateEnriching, StateClosed},
	StateEnriching:     {StateReasoning},
	StateReasoning:     {StateResponding, StateAwaitingHuman},
	StateAwaitingHuman: {StateResponding, StateClosed},
	StateResponding:    {StateClosed},
	StateClosed:        {},
	StateFailed:        {},
}

// CanTransition reports whether moving from s to next follows the graph
// topology. Terminal states are absorbing; any non-terminal state may fail.
func (s State) CanTransition(next State) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StateFailed {
		return true
	}
	for _, allowed := range stateGraph[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// RiskState summarises the behavioural-baseline posture of an investigation.
type RiskState string

const (
	RiskStateNoBaseline RiskState = "no_baseline"
	RiskStateUnknown    RiskState = "unknown"
	RiskStateLow        RiskState = "low"
	RiskStateMedium     RiskState = "medium"
	RiskStateHigh       RiskState = "high"
)

// IsValid checks if the risk state is a known value.
func (r RiskState) IsValid() bool {
	switch r {
	case RiskStateNoBaseline, RiskStateUnknown, RiskStateLow, RiskStateMedium, RiskStateHigh:
		return true
	default:
		return false
	}
}

// Well-known classification values. Reasoning output may carry others; these
// are the ones the engine itself assigns.
const (
	ClassificationTruePositive  = "true_positive"
	ClassificationFalsePositive = "false_positive"
	ClassificationRejected      = "rejected"
)

// Decision-chain action labels the orchestrator writes itself.
const (
	DecisionActionAutoCloseFP   = "auto_close_fp"
	DecisionActionStateChange   = "state_change"
	DecisionActionError         = "error"
	DecisionActionDispatched    = "action_dispatched"
	DecisionActionSuppressed    = "action_suppressed"
	DecisionActionEscalated     = "escalated"
	DecisionActionShadowLogged  = "shadow_logged"
	DecisionActionApprovalAsked = "approval_requested"
	DecisionActionReopened      = "reopened"
)

// Investigation is the durable unit of work produced per alert.
// Single-writer; the decision chain is append-only by convention.
type Investigation struct {
	ID       string `json:"id"`
	AlertID  string `json:"alert_id"`
	TenantID string `json:"tenant_id"`
	State    State  `json:"state"`

	Alert    *Alert       `json:"alert,omitempty"`
	Entities EntityBundle `json:"entities"`

	IOCMatches         []IOCMatch               `json:"ioc_matches,omitempty"`
	Behavioural        []BehaviouralObservation `json:"behavioural,omitempty"`
	Exposures          []ExposureCorrelation    `json:"exposures,omitempty"`
	Adversarial        []AdversarialDetection   `json:"adversarial,omitempty"`
	SimilarIncidents   []SimilarIncident        `json:"similar_incidents,omitempty"`
	PlaybookMatches    []PlaybookMatch          `json:"playbook_matches,omitempty"`
	DecisionChain      []DecisionEntry          `json:"decision_chain"`
	Classification     string                   `json:"classification,omitempty"`
	Confidence         float64                  `json:"confidence"`
	Severity           Severity                 `json:"severity"`
	RecommendedActions []RecommendedAction      `json:"recommended_actions,omitempty"`
	RequiresApproval   bool                     `json:"requires_human_approval"`
	RiskState          RiskState                `json:"risk_state"`

	LLMCalls        int     `json:"llm_calls"`
	CostUSD         float64 `json:"cost_usd"`
	QueriesExecuted int     `json:"queries_executed"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewInvestigation creates a RECEIVED investigation for an alert.
func NewInvestigation(id string, alert *Alert) *Investigation {
	now := time.Now().UTC()
	return &Investigation{
		ID:        id,
		AlertID:   alert.ID,
		TenantID:  alert.TenantID,
		State:     StateReceived,
		Alert:     alert,
		Severity:  alert.Severity,
		RiskState: RiskStateUnknown,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds a decision entry to the chain.
func (inv *Investigation) Append(d DecisionEntry) {
	inv.DecisionChain = append(inv.DecisionChain, d)
}

// HasDecision reports whether the chain already contains an entry from
// agentID with the given action. Used for already-run guards on resume.
func (inv *Investigation) HasDecision(agentID, action string) bool {
	for _, d := range inv.DecisionChain {
		if d.AgentID == agentID && d.Action == action {
			return true
		}
	}
	return false
}

// DispatchedActionKeys returns the set of action keys the chain records as
// dispatched, for at-most-once dispatch on resume.
func (inv *Investigation) DispatchedActionKeys() map[string]bool {
	keys := make(map[string]bool)
	for _, d := range inv.DecisionChain {
		if d.Action != DecisionActionDispatched {
			continue
		}
		if k, ok := d.Detail["action_key"].(string); ok {
			keys[k] = true
		}
	}
	return keys
}

// MergeDelta folds one enrichment delta into the investigation.
// Deterministic per field: list deltas append in sibling order, the risk
// state upgrades only from unknown/no_baseline, counters accumulate.
func (inv *Investigation) MergeDelta(delta EnrichmentDelta) {
	inv.IOCMatches = append(inv.IOCMatches, delta.IOCMatches...)
	inv.Behavioural = append(inv.Behavioural, delta.Behavioural...)
	inv.Exposures = append(inv.Exposures, delta.Exposures...)
	inv.Adversarial = append(inv.Adversarial, delta.Adversarial...)
	inv.SimilarIncidents = append(inv.SimilarIncidents, delta.SimilarFindings...)
	if delta.RiskState != "" && delta.RiskState.IsValid() {
		if inv.RiskState == RiskStateUnknown || inv.RiskState == RiskStateNoBaseline || inv.RiskState == "" {
			inv.RiskState = delta.RiskState
		}
	}
	inv.QueriesExecuted += delta.QueriesExecuted
}

// AllTelemetryUntrusted reports whether every adversarial-ML detection
// carries untrusted telemetry. False when there are no detections.
func (inv *Investigation) AllTelemetryUntrusted() bool {
	if len(inv.Adversarial) == 0 {
		return false
	}
	for _, d := range inv.Adversarial {
		if d.TelemetryTrust != TrustLevelUntrusted {
			return false
		}
	}
	return true
}

// TrustSummary returns the aggregate trust tag for the adversarial-ML list.
func (inv *Investigation) TrustSummary() TrustTag {
	if len(inv.Adversarial) == 0 {
		return ""
	}
	trusted, untrusted := 0, 0
	for _, d := range inv.Adversarial {
		if d.TelemetryTrust == TrustLevelUntrusted {
			untrusted++
		} else {
			trusted++
		}
	}
	switch {
	case untrusted == 0:
		return TrustTagTrusted
	case trusted == 0:
		return TrustTagUntrusted
	default:
		return TrustTagMixed
	}
}
