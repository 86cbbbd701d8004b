package models

import "time"

// ApprovalStatus is the lifecycle status of a human-approval request.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
	ApprovalStatusExpired  ApprovalStatus = "expired"
)

// IsValid checks if the approval status is a known value.
func (s ApprovalStatus) IsValid() bool {
	switch s {
	case ApprovalStatusPending, ApprovalStatusApproved, ApprovalStatusRejected, ApprovalStatusExpired:
		return true
	default:
		return false
	}
}

// ApprovalRequest gates destructive or low-confidence responses behind a
// human decision with a deadline.
type ApprovalRequest struct {
	ID              string              `json:"id"`
	InvestigationID string              `json:"investigation_id"`
	TenantID        string              `json:"tenant_id"`
	Actions         []RecommendedAction `json:"actions,omitempty"`
	Reason          string              `json:"reason"`
	Status          ApprovalStatus      `json:"status"`
	RequestedAt     time.Time           `json:"requested_at"`
	Deadline        time.Time           `json:"deadline"`
	ResolvedBy      string              `json:"resolved_by,omitempty"`
	ResolvedAt      *time.Time          `json:"resolved_at,omitempty"`
}

// ExpiredBy reports whether the request is still pending past its deadline.
func (r *ApprovalRequest) ExpiredBy(now time.Time) bool {
	return r.Status == ApprovalStatusPending && now.After(r.Deadline)
}

// AnalystDecision is a human verdict on an investigation, used for canary
// and tenant shadow-mode reconciliation.
type AnalystDecision struct {
	InvestigationID string    `json:"investigation_id"`
	TenantID        string    `json:"tenant_id"`
	Decision        string    `json:"decision"`
	Analyst         string    `json:"analyst"`
	DecidedAt       time.Time `json:"decided_at"`
}
