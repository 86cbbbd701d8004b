package models

import "time"

// PatternStatus is the lifecycle status of an FP pattern.
type PatternStatus string

const (
	PatternStatusPendingReview PatternStatus = "pending_review"
	PatternStatusApproved      PatternStatus = "approved"
	PatternStatusActive        PatternStatus = "active"
	PatternStatusShadow        PatternStatus = "shadow"
	PatternStatusDeprecated    PatternStatus = "deprecated"
	PatternStatusExpired       PatternStatus = "expired"
	PatternStatusRevoked       PatternStatus = "revoked"
)

// IsValid checks if the pattern status is a known value.
func (s PatternStatus) IsValid() bool {
	switch s {
	case PatternStatusPendingReview, PatternStatusApproved, PatternStatusActive,
		PatternStatusShadow, PatternStatusDeprecated, PatternStatusExpired,
		PatternStatusRevoked:
		return true
	default:
		return false
	}
}

// Matchable reports whether patterns in this status may short-circuit
// investigations. Shadow patterns never influence automation.
func (s PatternStatus) Matchable() bool {
	return s == PatternStatusApproved || s == PatternStatusActive
}

// EntityPattern matches one entity of an alert. Exactly one of ValueRegex or
// ValueCIDR is set.
type EntityPattern struct {
	Type       EntityType `json:"type"`
	ValueRegex string     `json:"value_regex,omitempty"`
	ValueCIDR  string     `json:"value_cidr,omitempty"`
}

// PatternScope bounds where a pattern may match. Empty fields are wildcards.
type PatternScope struct {
	RuleFamily string `json:"rule_family,omitempty"`
	TenantID   string `json:"tenant_id,omitempty"`
	AssetClass string `json:"asset_class,omitempty"`
}

// Covers reports whether the scope admits the given alert coordinates.
func (s PatternScope) Covers(ruleFamily, tenantID, assetClass string) bool {
	if s.RuleFamily != "" && s.RuleFamily != ruleFamily {
		return false
	}
	if s.TenantID != "" && s.TenantID != tenantID {
		return false
	}
	if s.AssetClass != "" && s.AssetClass != assetClass {
		return false
	}
	return true
}

// IsGlobal reports whether every scope dimension is a wildcard.
func (s PatternScope) IsGlobal() bool {
	return s.RuleFamily == "" && s.TenantID == "" && s.AssetClass == ""
}

// FPPattern is a governed false-positive pattern.
type FPPattern struct {
	ID             string          `json:"id"`
	AlertNameRegex string          `json:"alert_name_regex"`
	EntityPatterns []EntityPattern `json:"entity_patterns,omitempty"`
	SeverityBand   []Severity      `json:"severity_band,omitempty"`
	Confidence     float64         `json:"confidence"`
	Status         PatternStatus   `json:"status"`

	Approver1    string     `json:"approver_1,omitempty"`
	Approver2    string     `json:"approver_2,omitempty"`
	ApprovalDate *time.Time `json:"approval_date,omitempty"`
	ExpiryDate   *time.Time `json:"expiry_date,omitempty"`
	ReaffirmedAt *time.Time `json:"reaffirmed_at,omitempty"`
	ReaffirmedBy string     `json:"reaffirmed_by,omitempty"`

	Scope                PatternScope `json:"scope"`
	SourceInvestigations []string     `json:"source_investigations,omitempty"`

	// CanaryRequired parks the pattern in shadow after second approval so it
	// must earn promotion through canary counters before matching live.
	CanaryRequired bool `json:"canary_required,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Expired reports whether the pattern's expiry date has passed.
func (p *FPPattern) Expired(now time.Time) bool {
	return p.ExpiryDate != nil && p.ExpiryDate.Before(now)
}

// FullyApproved reports whether two distinct approvers are recorded.
func (p *FPPattern) FullyApproved() bool {
	return p.Approver1 != "" && p.Approver2 != "" && p.Approver1 != p.Approver2
}
