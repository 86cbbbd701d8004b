package fpgov

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/argus-soc/argus/pkg/audit"
	"github.com/argus-soc/argus/pkg/models"
)

// patternValidityWindow is how long an approval holds before the pattern
// must be re-affirmed.
const patternValidityWindow = 90 * 24 * time.Hour

// PatternStore persists FP patterns.
type PatternStore interface {
	PatternSource
	GetPattern(ctx context.Context, id string) (*models.FPPattern, error)
	SavePattern(ctx context.Context, p *models.FPPattern) error
}

// InvestigationReopener finds investigations auto-closed by one pattern and
// re-opens them. Implemented by the investigation service.
type InvestigationReopener interface {
	// ReopenByPattern resets every investigation whose decision chain holds
	// an auto_close_fp entry for the pattern back to PARSING, returning the
	// re-opened ids.
	ReopenByPattern(ctx context.Context, patternID string) ([]string, error)
}

// Governance executes the pattern lifecycle operations. Every status
// transition publishes a cache invalidation so matcher snapshots converge.
type Governance struct {
	store    PatternStore
	reopener InvestigationReopener
	emitter  *audit.Emitter
	rdb      *redis.Client
	logger   *slog.Logger

	// now is swappable in tests.
	now func() time.Time
}

// NewGovernance creates the governance front.
func NewGovernance(store PatternStore, reopener InvestigationReopener, emitter *audit.Emitter, rdb *redis.Client) *Governance {
	return &Governance{
		store:    store,
		reopener: reopener,
		emitter:  emitter,
		rdb:      rdb,
		logger:   slog.Default().With("component", "fp-governance"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Approve records one approval. The first call sets approver_1; a second
// call by a distinct approver completes the two-person rule, stamps the
// approval date, sets expiry 90 days out, and moves the pattern to
// approved — or to shadow when it must earn canary promotion first.
func (g *Governance) Approve(ctx context.Context, patternID, approver string) (*models.FPPattern, error) {
	if approver == "" {
		return nil, fmt.Errorf("%w: approver identity required", ErrGovernance)
	}
	p, err := g.store.GetPattern(ctx, patternID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPatternNotFound
	}
	if p.Status != models.PatternStatusPendingReview {
		return nil, fmt.Errorf("%w (status %s)", ErrNotApprovable, p.Status)
	}

	switch {
	case p.Approver1 == "":
		p.Approver1 = approver
	case p.Approver1 == approver:
		return nil, ErrSameApprover
	case p.Approver2 != "":
		return nil, ErrAlreadyApproved
	default:
		p.Approver2 = approver
		now := g.now()
		expiry := now.Add(patternValidityWindow)
		p.ApprovalDate = &now
		p.ExpiryDate = &expiry
		if p.CanaryRequired {
			p.Status = models.PatternStatusShadow
		} else {
			p.Status = models.PatternStatusApproved
		}
	}
	p.UpdatedAt = g.now()

	if err := g.store.SavePattern(ctx, p); err != nil {
		return nil, err
	}

	if p.FullyApproved() {
		ev := audit.NewEvent(audit.EventFPPatternApproved, audit.TenantOrGlobal(p.Scope.TenantID)).
			WithActor(audit.ActorHuman, approver).
			WithDecision(map[string]any{
				"pattern_id": p.ID,
				"approver_1": p.Approver1,
				"approver_2": p.Approver2,
				"status":     string(p.Status),
				"expiry":     p.ExpiryDate,
			})
		g.emitter.Emit(ctx, ev)
		g.emitter.EmitPattern(ctx, *p)
		Invalidate(ctx, g.rdb, g.logger)
		g.logger.Info("Pattern fully approved",
			"pattern_id", p.ID, "status", p.Status,
			"approver_1", p.Approver1, "approver_2", p.Approver2)
	} else {
		g.logger.Info("Pattern first approval recorded",
			"pattern_id", p.ID, "approver_1", p.Approver1)
	}
	return p, nil
}

// CheckExpiry returns the ids of patterns whose expiry date has passed and
// whose status is not already terminal for expiry purposes.
func (g *Governance) CheckExpiry(patterns []models.FPPattern) []string {
	now := g.now()
	var expired []string
	for i := range patterns {
		p := &patterns[i]
		switch p.Status {
		case models.PatternStatusExpired, models.PatternStatusRevoked, models.PatternStatusDeprecated:
			continue
		}
		if p.Expired(now) {
			expired = append(expired, p.ID)
		}
	}
	return expired
}

// ExpirePattern marks one pattern expired and invalidates caches. Used by
// the expiry sweep on the ids CheckExpiry returned.
func (g *Governance) ExpirePattern(ctx context.Context, patternID string) error {
	p, err := g.store.GetPattern(ctx, patternID)
	if err != nil {
		return err
	}
	if p == nil {
		return ErrPatternNotFound
	}
	p.Status = models.PatternStatusExpired
	p.UpdatedAt = g.now()
	if err := g.store.SavePattern(ctx, p); err != nil {
		return err
	}

	ev := audit.NewEvent(audit.EventFPPatternExpired, audit.TenantOrGlobal(p.Scope.TenantID)).
		WithDecision(map[string]any{"pattern_id": p.ID})
	g.emitter.Emit(ctx, ev)
	Invalidate(ctx, g.rdb, g.logger)
	return nil
}

// Reaffirm stamps a re-affirmation and pushes the expiry forward 90 days.
// Expired patterns come back to approved.
func (g *Governance) Reaffirm(ctx context.Context, patternID, approver string) (*models.FPPattern, error) {
	if approver == "" {
		return nil, fmt.Errorf("%w: approver identity required", ErrGovernance)
	}
	p, err := g.store.GetPattern(ctx, patternID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPatternNotFound
	}
	switch p.Status {
	case models.PatternStatusApproved, models.PatternStatusActive, models.PatternStatusShadow, models.PatternStatusExpired:
	default:
		return nil, fmt.Errorf("%w: cannot reaffirm pattern in status %s", ErrGovernance, p.Status)
	}

	now := g.now()
	expiry := now.Add(patternValidityWindow)
	p.ReaffirmedAt = &now
	p.ReaffirmedBy = approver
	p.ExpiryDate = &expiry
	if p.Status == models.PatternStatusExpired {
		p.Status = models.PatternStatusApproved
	}
	p.UpdatedAt = now

	if err := g.store.SavePattern(ctx, p); err != nil {
		return nil, err
	}

	ev := audit.NewEvent(audit.EventFPPatternReaffirmed, audit.TenantOrGlobal(p.Scope.TenantID)).
		WithActor(audit.ActorHuman, approver).
		WithDecision(map[string]any{"pattern_id": p.ID, "expiry": expiry})
	g.emitter.Emit(ctx, ev)
	Invalidate(ctx, g.rdb, g.logger)
	return p, nil
}

// Revoke marks the pattern revoked, then rolls back its damage: every
// investigation auto-closed by it is re-opened to PARSING, with one
// fp_pattern.revoked audit event per re-opened investigation.
func (g *Governance) Revoke(ctx context.Context, patternID, approver string) (*models.FPPattern, []string, error) {
	p, err := g.store.GetPattern(ctx, patternID)
	if err != nil {
		return nil, nil, err
	}
	if p == nil {
		return nil, nil, ErrPatternNotFound
	}

	p.Status = models.PatternStatusRevoked
	p.UpdatedAt = g.now()
	if err := g.store.SavePattern(ctx, p); err != nil {
		return nil, nil, err
	}
	Invalidate(ctx, g.rdb, g.logger)

	reopened, err := g.RollbackPattern(ctx, patternID, p.Scope.TenantID, approver)
	if err != nil {
		return p, nil, err
	}

	g.logger.Warn("Pattern revoked",
		"pattern_id", patternID, "by", approver, "reopened", len(reopened))
	return p, reopened, nil
}

// RollbackPattern re-opens the investigations a pattern mis-closed.
func (g *Governance) RollbackPattern(ctx context.Context, patternID, tenantID, actor string) ([]string, error) {
	reopened, err := g.reopener.ReopenByPattern(ctx, patternID)
	if err != nil {
		return nil, fmt.Errorf("rollback pattern %s: %w", patternID, err)
	}
	for _, invID := range reopened {
		ev := audit.NewEvent(audit.EventFPPatternRevoked, audit.TenantOrGlobal(tenantID)).
			WithActor(audit.ActorHuman, actor).
			WithInvestigation(invID, "").
			WithDecision(map[string]any{"pattern_id": patternID})
		g.emitter.Emit(ctx, ev)
	}
	return reopened, nil
}
