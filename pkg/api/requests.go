package api

import (
	"time"

	"github.com/argus-soc/argus/pkg/models"
)

// SubmitAlertRequest is the POST /api/v1/alerts body.
type SubmitAlertRequest struct {
	ID          string         `json:"id" binding:"required"`
	TenantID    string         `json:"tenant_id" binding:"required"`
	Source      string         `json:"source" binding:"required"`
	Timestamp   time.Time      `json:"timestamp"`
	Title       string         `json:"title" binding:"required"`
	Description string         `json:"description"`
	Severity    string         `json:"severity" binding:"required"`
	Tactics     []string       `json:"tactics"`
	Techniques  []string       `json:"techniques"`
	RawEntities map[string]any `json:"raw_entities"`
	Product     string         `json:"product"`
	RawPayload  map[string]any `json:"raw_payload"`
	RuleFamily  string         `json:"rule_family"`
	AssetClass  string         `json:"asset_class"`
}

// toAlert converts the request into the normalised alert model.
func (r *SubmitAlertRequest) toAlert() *models.Alert {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &models.Alert{
		ID:          r.ID,
		TenantID:    r.TenantID,
		Source:      r.Source,
		Timestamp:   ts,
		Title:       r.Title,
		Description: r.Description,
		Severity:    models.Severity(r.Severity),
		Tactics:     r.Tactics,
		Techniques:  r.Techniques,
		RawEntities: r.RawEntities,
		Product:     r.Product,
		RawPayload:  r.RawPayload,
		RuleFamily:  r.RuleFamily,
		AssetClass:  r.AssetClass,
	}
}

// ResolveApprovalRequest is the POST /investigations/:id/approval body.
type ResolveApprovalRequest struct {
	Approved *bool `json:"approved" binding:"required"`
}

// AnalystDecisionRequest is the POST /investigations/:id/analyst-decision body.
type AnalystDecisionRequest struct {
	Decision string `json:"decision" binding:"required"`
}

// CreatePatternRequest is the POST /api/v1/patterns body.
type CreatePatternRequest struct {
	AlertNameRegex       string                 `json:"alert_name_regex" binding:"required"`
	EntityPatterns       []models.EntityPattern `json:"entity_patterns"`
	SeverityBand         []models.Severity      `json:"severity_band"`
	Confidence           float64                `json:"confidence" binding:"required"`
	Scope                models.PatternScope    `json:"scope"`
	SourceInvestigations []string               `json:"source_investigations"`
	CanaryRequired       *bool                  `json:"canary_required"`
}

// KillSwitchRequest carries the reason for (de)activating a kill switch.
type KillSwitchRequest struct {
	Reason string `json:"reason"`
}

// EnableShadowRequest is the POST /tenants/:id/shadow body.
type EnableShadowRequest struct {
	RuleFamilies []string `json:"rule_families"`
}
