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

// Canary promotion criteria: a shadow pattern goes live only after enough
// observations with a low enough disagreement rate.
const (
	canaryMinObservations = 50
	canaryMaxDisagreeRate = 0.05
	canaryCounterExpiry   = 120 * 24 * time.Hour
)

func canaryKey(patternID, field string) string {
	return fmt.Sprintf("canary:%s:%s", patternID, field)
}

// CanaryStats is the promotion scorecard for one shadow pattern.
type CanaryStats struct {
	PatternID     string `json:"pattern_id"`
	Total         int64  `json:"total"`
	Agreements    int64  `json:"agreements"`
	Disagreements int64  `json:"disagreements"`
}

// DisagreementRate is disagreements over total observations.
func (s CanaryStats) DisagreementRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Disagreements) / float64(s.Total)
}

// PromotionEligible applies the canary criteria.
func (s CanaryStats) PromotionEligible() bool {
	return s.Total >= canaryMinObservations && s.DisagreementRate() <= canaryMaxDisagreeRate
}

// CanaryTracker counts canary observations in the cache and promotes shadow
// patterns to active once the criteria hold. Counters live in Redis so every
// replica observes the same tallies.
type CanaryTracker struct {
	rdb     *redis.Client
	store   PatternStore
	emitter *audit.Emitter
	logger  *slog.Logger
}

// NewCanaryTracker creates the tracker.
func NewCanaryTracker(rdb *redis.Client, store PatternStore, emitter *audit.Emitter) *CanaryTracker {
	return &CanaryTracker{
		rdb:     rdb,
		store:   store,
		emitter: emitter,
		logger:  slog.Default().With("component", "canary"),
	}
}

// RecordObservation tallies one reconciled shadow verdict for a canary
// pattern: agreed means the analyst confirmed the would-be auto-close. After
// counting, the pattern is promoted if it just became eligible.
func (t *CanaryTracker) RecordObservation(ctx context.Context, patternID string, agreed bool) (*CanaryStats, error) {
	field := "disagree"
	if agreed {
		field = "agree"
	}
	pipe := t.rdb.TxPipeline()
	pipe.Incr(ctx, canaryKey(patternID, "total"))
	pipe.Incr(ctx, canaryKey(patternID, field))
	pipe.Expire(ctx, canaryKey(patternID, "total"), canaryCounterExpiry)
	pipe.Expire(ctx, canaryKey(patternID, field), canaryCounterExpiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("record canary observation: %w", err)
	}

	stats, err := t.Stats(ctx, patternID)
	if err != nil {
		return nil, err
	}
	if stats.PromotionEligible() {
		if err := t.promote(ctx, patternID, stats); err != nil {
			t.logger.Error("Canary promotion failed", "pattern_id", patternID, "error", err)
		}
	}
	return stats, nil
}

// Stats reads the current counters for one pattern.
func (t *CanaryTracker) Stats(ctx context.Context, patternID string) (*CanaryStats, error) {
	vals, err := t.rdb.MGet(ctx,
		canaryKey(patternID, "total"),
		canaryKey(patternID, "agree"),
		canaryKey(patternID, "disagree"),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("read canary counters: %w", err)
	}
	stats := &CanaryStats{PatternID: patternID}
	stats.Total = parseCounter(vals[0])
	stats.Agreements = parseCounter(vals[1])
	stats.Disagreements = parseCounter(vals[2])
	return stats, nil
}

// promote flips an eligible shadow pattern to active. Patterns no longer in
// shadow (already promoted by another replica, or revoked meanwhile) are left
// alone.
func (t *CanaryTracker) promote(ctx context.Context, patternID string, stats *CanaryStats) error {
	p, err := t.store.GetPattern(ctx, patternID)
	if err != nil {
		return err
	}
	if p == nil {
		return ErrPatternNotFound
	}
	if p.Status != models.PatternStatusShadow {
		return nil
	}

	p.Status = models.PatternStatusActive
	p.UpdatedAt = time.Now().UTC()
	if err := t.store.SavePattern(ctx, p); err != nil {
		return err
	}

	ev := audit.NewEvent(audit.EventFPPatternPromoted, audit.TenantOrGlobal(p.Scope.TenantID)).
		WithDecision(map[string]any{
			"pattern_id":        p.ID,
			"observations":      stats.Total,
			"disagreement_rate": stats.DisagreementRate(),
		})
	t.emitter.Emit(ctx, ev)
	Invalidate(ctx, t.rdb, t.logger)

	t.logger.Info("Canary pattern promoted to active",
		"pattern_id", patternID,
		"observations", stats.Total,
		"disagreement_rate", stats.DisagreementRate())
	return nil
}

// Reset clears the counters for one pattern, used when a pattern is revoked
// or re-enters review.
func (t *CanaryTracker) Reset(ctx context.Context, patternID string) error {
	return t.rdb.Del(ctx,
		canaryKey(patternID, "total"),
		canaryKey(patternID, "agree"),
		canaryKey(patternID, "disagree"),
	).Err()
}

func parseCounter(v any) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	var n int64
	_, _ = fmt.Sscanf(s, "%d", &n)
	return n
}
