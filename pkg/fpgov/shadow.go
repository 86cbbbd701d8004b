package fpgov

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/argus-soc/argus/pkg/audit"
	"github.com/argus-soc/argus/pkg/models"
)

// shadowWindow is the rolling window the go-live scorecard is computed over.
const shadowWindow = 14 * 24 * time.Hour

// TenantStore persists per-tenant governance configuration.
type TenantStore interface {
	GetTenantConfig(ctx context.Context, tenantID string) (*models.TenantConfig, error)
	SaveTenantConfig(ctx context.Context, cfg *models.TenantConfig) error
}

// ShadowDecisionStore persists shadow decisions and computes the rolling
// scorecard server-side.
type ShadowDecisionStore interface {
	RecordShadowDecision(ctx context.Context, d *models.ShadowDecision) error
	ReconcileShadowDecision(ctx context.Context, investigationID, analystDecision string, at time.Time) (*models.ShadowDecision, error)
	ShadowMetrics(ctx context.Context, tenantID string, since time.Time) (*models.ShadowMetrics, error)
}

// ShadowService runs tenant shadow mode: while a tenant is shadowed the
// engine records what it would have done and continues the full pipeline,
// and nothing is automated. Go-live is gated on the rolling scorecard plus
// an explicit human sign-off.
type ShadowService struct {
	tenants   TenantStore
	decisions ShadowDecisionStore
	canary    *CanaryTracker
	emitter   *audit.Emitter
	logger    *slog.Logger

	now func() time.Time
}

// NewShadowService creates the service. The canary tracker may be nil when
// canary promotion is disabled.
func NewShadowService(tenants TenantStore, decisions ShadowDecisionStore, canary *CanaryTracker, emitter *audit.Emitter) *ShadowService {
	return &ShadowService{
		tenants:   tenants,
		decisions: decisions,
		canary:    canary,
		emitter:   emitter,
		logger:    slog.Default().With("component", "shadow"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// InShadow reports whether automation is suppressed for this tenant and rule
// family. Tenants never configured default to shadow mode: a new tenant must
// earn go-live, not opt into it.
func (s *ShadowService) InShadow(ctx context.Context, tenantID, ruleFamily string) (bool, error) {
	cfg, err := s.tenants.GetTenantConfig(ctx, tenantID)
	if err != nil {
		return false, err
	}
	if cfg == nil {
		def := models.NewTenantConfig(tenantID)
		cfg = &def
	}
	return cfg.ShadowCovers(ruleFamily), nil
}

// RecordDecision stores one would-be engine decision and emits
// shadow.decision_recorded. patternID is non-empty when an FP pattern would
// have short-circuited; it routes the later reconciliation into the canary
// counters.
func (s *ShadowService) RecordDecision(ctx context.Context, d models.ShadowDecision) error {
	if d.RecordedAt.IsZero() {
		d.RecordedAt = s.now()
	}
	if err := s.decisions.RecordShadowDecision(ctx, &d); err != nil {
		return fmt.Errorf("record shadow decision: %w", err)
	}

	ev := audit.NewEvent(audit.EventShadowDecisionRecorded, d.TenantID).
		WithInvestigation(d.InvestigationID, "").
		WithDecision(map[string]any{
			"decision":    d.Decision,
			"confidence":  d.Confidence,
			"severity":    string(d.Severity),
			"rule_family": d.RuleFamily,
		})
	s.emitter.Emit(ctx, ev)
	return nil
}

// Reconcile pairs the analyst's actual verdict with the recorded shadow
// decision. When the decision was a would-be pattern short-circuit, the
// agreement also feeds that pattern's canary counters.
func (s *ShadowService) Reconcile(ctx context.Context, investigationID, analystDecision, patternID string) (*models.ShadowDecision, error) {
	d, err := s.decisions.ReconcileShadowDecision(ctx, investigationID, analystDecision, s.now())
	if err != nil {
		return nil, fmt.Errorf("reconcile shadow decision: %w", err)
	}

	ev := audit.NewEvent(audit.EventShadowReconciled, d.TenantID).
		WithInvestigation(investigationID, "").
		WithOutcome(map[string]any{
			"engine_decision":  d.Decision,
			"analyst_decision": analystDecision,
			"agreed":           d.Agreed(),
		})
	s.emitter.Emit(ctx, ev)

	if patternID != "" && s.canary != nil {
		if _, err := s.canary.RecordObservation(ctx, patternID, d.Agreed()); err != nil {
			s.logger.Error("Canary observation failed during reconcile",
				"pattern_id", patternID, "error", err)
		}
	}
	return d, nil
}

// Metrics computes the rolling 14-day scorecard for one tenant.
func (s *ShadowService) Metrics(ctx context.Context, tenantID string) (*models.ShadowMetrics, error) {
	since := s.now().Add(-shadowWindow)
	m, err := s.decisions.ShadowMetrics(ctx, tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("shadow metrics: %w", err)
	}
	return m, nil
}

// GoLive signs a tenant off shadow mode. The scorecard must clear the
// go-live criteria; disabling shadow without it is refused.
func (s *ShadowService) GoLive(ctx context.Context, tenantID, approver string) (*models.TenantConfig, error) {
	if approver == "" {
		return nil, fmt.Errorf("%w: sign-off identity required", ErrGovernance)
	}
	m, err := s.Metrics(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !m.GoLiveEligible() {
		return nil, fmt.Errorf("%w: agreement=%.3f missed_critical=%d fp_precision=%.3f",
			ErrShadowSignOff, m.AgreementRate(), m.MissedCriticalTPs, m.FPPrecision())
	}

	cfg, err := s.tenants.GetTenantConfig(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		def := models.NewTenantConfig(tenantID)
		cfg = &def
	}
	cfg.ShadowMode = false
	cfg.GoLiveSignedOff = true
	cfg.UpdatedAt = s.now()
	if err := s.tenants.SaveTenantConfig(ctx, cfg); err != nil {
		return nil, err
	}

	ev := audit.NewEvent(audit.EventTenantWentLive, tenantID).
		WithActor(audit.ActorHuman, approver).
		WithOutcome(map[string]any{
			"agreement_rate": m.AgreementRate(),
			"fp_precision":   m.FPPrecision(),
			"window_total":   m.Total,
		})
	s.emitter.Emit(ctx, ev)

	s.logger.Info("Tenant went live", "tenant_id", tenantID, "signed_off_by", approver)
	return cfg, nil
}

// EnableShadow puts a tenant back in shadow mode, optionally scoped to rule
// families. Always allowed; re-entering shadow clears the sign-off.
func (s *ShadowService) EnableShadow(ctx context.Context, tenantID string, ruleFamilies []string, actor string) (*models.TenantConfig, error) {
	cfg, err := s.tenants.GetTenantConfig(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		def := models.NewTenantConfig(tenantID)
		cfg = &def
	}
	cfg.ShadowMode = true
	cfg.ShadowRuleFamilies = ruleFamilies
	cfg.GoLiveSignedOff = false
	cfg.UpdatedAt = s.now()
	if err := s.tenants.SaveTenantConfig(ctx, cfg); err != nil {
		return nil, err
	}
	s.logger.Info("Tenant shadow mode enabled",
		"tenant_id", tenantID, "rule_families", ruleFamilies, "by", actor)
	return cfg, nil
}
