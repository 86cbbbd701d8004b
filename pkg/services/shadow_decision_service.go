package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/argus-soc/argus/pkg/models"
)

// ShadowDecisionService persists shadow-mode decisions and computes the
// rolling go-live scorecard server-side.
type ShadowDecisionService struct {
	db *sql.DB
}

// NewShadowDecisionService creates the service.
func NewShadowDecisionService(db *sql.DB) *ShadowDecisionService {
	if db == nil {
		panic("NewShadowDecisionService: db must not be nil")
	}
	return &ShadowDecisionService{db: db}
}

// RecordShadowDecision stores one would-be engine decision. Re-recording the
// same investigation keeps the first entry; the engine decides once.
func (s *ShadowDecisionService) RecordShadowDecision(ctx context.Context, d *models.ShadowDecision) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shadow_decisions
		  (investigation_id, tenant_id, rule_family, decision, confidence, severity, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (investigation_id) DO NOTHING`,
		d.InvestigationID, d.TenantID, d.RuleFamily, d.Decision,
		d.Confidence, string(d.Severity), d.RecordedAt)
	if err != nil {
		return fmt.Errorf("record shadow decision %s: %w", d.InvestigationID, err)
	}
	return nil
}

// ReconcileShadowDecision pairs the analyst verdict with the recorded
// decision and returns the reconciled row.
func (s *ShadowDecisionService) ReconcileShadowDecision(ctx context.Context, investigationID, analystDecision string, at time.Time) (*models.ShadowDecision, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE shadow_decisions
		SET analyst_decision = $1, reconciled_at = $2
		WHERE investigation_id = $3
		RETURNING investigation_id, tenant_id, rule_family, decision, confidence,
		          severity, recorded_at, analyst_decision, reconciled_at`,
		analystDecision, at, investigationID)

	var d models.ShadowDecision
	var severity string
	var analyst sql.NullString
	var reconciled sql.NullTime
	err := row.Scan(&d.InvestigationID, &d.TenantID, &d.RuleFamily, &d.Decision,
		&d.Confidence, &severity, &d.RecordedAt, &analyst, &reconciled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reconcile shadow decision %s: %w", investigationID, err)
	}
	d.Severity = models.Severity(severity)
	if analyst.Valid {
		d.AnalystDecision = analyst.String
	}
	if reconciled.Valid {
		t := reconciled.Time
		d.ReconciledAt = &t
	}
	return &d, nil
}

// ShadowMetrics computes the scorecard over decisions recorded since the
// window start. Missed critical true positives are engine false_positive
// calls the analyst graded true_positive on a critical alert.
func (s *ShadowDecisionService) ShadowMetrics(ctx context.Context, tenantID string, since time.Time) (*models.ShadowMetrics, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT
		  COUNT(*),
		  COUNT(*) FILTER (WHERE reconciled_at IS NOT NULL),
		  COUNT(*) FILTER (WHERE reconciled_at IS NOT NULL AND analyst_decision = decision),
		  COUNT(*) FILTER (WHERE decision = $3 AND reconciled_at IS NOT NULL),
		  COUNT(*) FILTER (WHERE decision = $3 AND analyst_decision = $3),
		  COUNT(*) FILTER (WHERE decision = $3 AND analyst_decision = $4 AND severity = $5)
		FROM shadow_decisions
		WHERE tenant_id = $1 AND recorded_at >= $2`,
		tenantID, since,
		models.ClassificationFalsePositive,
		models.ClassificationTruePositive,
		string(models.SeverityCritical))

	m := models.ShadowMetrics{TenantID: tenantID, WindowStart: since}
	if err := row.Scan(&m.Total, &m.Reconciled, &m.Agreements,
		&m.FPCalled, &m.FPTrue, &m.MissedCriticalTPs); err != nil {
		return nil, fmt.Errorf("compute shadow metrics %s: %w", tenantID, err)
	}
	return &m, nil
}
