package api

import "github.com/argus-soc/argus/pkg/models"

// AlertResponse acknowledges an accepted alert.
type AlertResponse struct {
	AlertID  string `json:"alert_id"`
	TenantID string `json:"tenant_id"`
	Status   string `json:"status"`
}

// ApprovalResponse reports the resolved approval and the investigation it
// drove.
type ApprovalResponse struct {
	Approval      *models.ApprovalRequest `json:"approval"`
	Investigation *models.Investigation   `json:"investigation"`
}

// RevokeResponse reports a revoked pattern and the rollback it triggered.
type RevokeResponse struct {
	Pattern  *models.FPPattern `json:"pattern"`
	Reopened []string          `json:"reopened_investigations"`
}

// HealthCheck is one component's health entry.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]HealthCheck `json:"checks"`
}
