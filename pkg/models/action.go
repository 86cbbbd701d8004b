package models

import "time"

// ActionTier is the automation level of a recommended response action.
type ActionTier int

const (
	// TierMonitor actions (logging, watchlists) execute unconditionally.
	TierMonitor ActionTier = 0
	// TierConditional actions (temporary blocks) execute and notify.
	TierConditional ActionTier = 1
	// TierDestructive actions (isolate, disable) require human approval.
	TierDestructive ActionTier = 2
)

// IsValid checks if the tier is a known value.
func (t ActionTier) IsValid() bool {
	return t >= TierMonitor && t <= TierDestructive
}

// RequiresApproval reports whether actions at this tier need a human gate.
func (t ActionTier) RequiresApproval() bool {
	return t >= TierDestructive
}

// RecommendedAction is one response action proposed by the reasoning agent
// or matched from a playbook.
type RecommendedAction struct {
	Action    string     `json:"action"`
	Target    string     `json:"target"`
	Tier      ActionTier `json:"tier"`
	Rationale string     `json:"rationale,omitempty"`
}

// Key identifies an action for at-most-once dispatch within one
// investigation. Two recommendations with the same action and target are the
// same side effect.
func (a RecommendedAction) Key() string {
	return a.Action + "|" + a.Target
}

// DispatchStatus is the terminal status of one dispatched action.
type DispatchStatus string

const (
	DispatchStatusExecuted   DispatchStatus = "executed"
	DispatchStatusFailed     DispatchStatus = "failed"
	DispatchStatusSuppressed DispatchStatus = "suppressed"
)

// ActionDispatch is the record published on the action-dispatch topic for
// every executed Tier-0/1 action and every approved Tier-2 action.
type ActionDispatch struct {
	InvestigationID string         `json:"investigation_id"`
	Action          string         `json:"action"`
	Target          string         `json:"target"`
	Tier            ActionTier     `json:"tier"`
	Status          DispatchStatus `json:"status"`
	Timestamp       time.Time      `json:"timestamp"`
}
