package models

import "time"

// ShadowDecision is one would-be engine decision recorded while a tenant is
// in shadow mode, later paired with the analyst's actual decision.
type ShadowDecision struct {
	TenantID        string    `json:"tenant_id"`
	RuleFamily      string    `json:"rule_family"`
	InvestigationID string    `json:"investigation_id"`
	Decision        string    `json:"decision"`
	Confidence      float64   `json:"confidence"`
	Severity        Severity  `json:"severity"`
	RecordedAt      time.Time `json:"recorded_at"`

	AnalystDecision string     `json:"analyst_decision,omitempty"`
	ReconciledAt    *time.Time `json:"reconciled_at,omitempty"`
}

// Agreed reports whether the engine and the analyst reached the same verdict.
// Only meaningful after reconciliation.
func (d *ShadowDecision) Agreed() bool {
	return d.ReconciledAt != nil && d.AnalystDecision == d.Decision
}

// ShadowMetrics is the rolling shadow-mode scorecard for one tenant.
type ShadowMetrics struct {
	TenantID          string    `json:"tenant_id"`
	WindowStart       time.Time `json:"window_start"`
	Total             int       `json:"total"`
	Reconciled        int       `json:"reconciled"`
	Agreements        int       `json:"agreements"`
	MissedCriticalTPs int       `json:"missed_critical_true_positives"`
	FPTrue            int       `json:"fp_true"`
	FPCalled          int       `json:"fp_called"`
}

// AgreementRate is agreements over reconciled decisions; 0 when nothing has
// been reconciled yet.
func (m ShadowMetrics) AgreementRate() float64 {
	if m.Reconciled == 0 {
		return 0
	}
	return float64(m.Agreements) / float64(m.Reconciled)
}

// FPPrecision is the precision of false-positive calls against analyst
// ground truth; 0 when the engine never called false_positive.
func (m ShadowMetrics) FPPrecision() float64 {
	if m.FPCalled == 0 {
		return 0
	}
	return float64(m.FPTrue) / float64(m.FPCalled)
}

// GoLiveEligible applies the tenant go-live criteria.
func (m ShadowMetrics) GoLiveEligible() bool {
	return m.AgreementRate() >= 0.95 && m.MissedCriticalTPs == 0 && m.FPPrecision() >= 0.98
}

// TenantConfig carries the per-tenant governance knobs.
type TenantConfig struct {
	TenantID           string   `json:"tenant_id"`
	ShadowMode         bool     `json:"shadow_mode"`
	ShadowRuleFamilies []string `json:"shadow_rule_families,omitempty"`
	GoLiveSignedOff    bool     `json:"go_live_signed_off"`

	// ApprovalDeadline overrides the default 4-hour approval window.
	// Zero means use the system default.
	ApprovalDeadline time.Duration `json:"approval_deadline,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewTenantConfig returns the defaults for a tenant never seen before:
// shadow mode on, no sign-off.
func NewTenantConfig(tenantID string) TenantConfig {
	return TenantConfig{
		TenantID:   tenantID,
		ShadowMode: true,
		UpdatedAt:  time.Now().UTC(),
	}
}

// ShadowCovers reports whether shadow mode applies to the given rule family.
// An empty ShadowRuleFamilies list shadows every family.
func (c TenantConfig) ShadowCovers(ruleFamily string) bool {
	if !c.ShadowMode {
		return false
	}
	if len(c.ShadowRuleFamilies) == 0 {
		return true
	}
	for _, f := range c.ShadowRuleFamilies {
		if f == ruleFamily {
			return true
		}
	}
	return false
}
