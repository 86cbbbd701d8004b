package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/argus-soc/argus/pkg/audit"
	"github.com/argus-soc/argus/pkg/models"
)

// spendKeyPrefix namespaces the per-tenant monthly counters in Redis.
const spendKeyPrefix = "spend"

// spendKeyTTL keeps monthly counters around past month end for late
// aggregation, then lets them expire.
const spendKeyTTL = 62 * 24 * time.Hour

// SpendLedger persists append-only spend records. The Redis counter is
// authoritative for enforcement; the ledger is the durable audit trail.
type SpendLedger interface {
	RecordSpend(ctx context.Context, rec models.SpendRecord) error
}

// SpendLimits carries the per-tenant monthly caps.
type SpendLimits struct {
	MonthlyHardCapUSD   float64 `yaml:"monthly_hard_cap_usd"`
	MonthlySoftAlertUSD float64 `yaml:"monthly_soft_alert_usd"`
}

// SpendTracker enforces the monthly hard cap and accounts every call.
// The counter lives in Redis (INCRBYFLOAT per tenant per month) so it is
// monotonic and shared across replicas; the soft alert fires once per
// tenant per month via SETNX.
type SpendTracker struct {
	rdb     *redis.Client
	ledger  SpendLedger
	limits  SpendLimits
	emitter *audit.Emitter
	logger  *slog.Logger
}

// NewSpendTracker creates a spend tracker. The ledger may be nil in tests.
func NewSpendTracker(rdb *redis.Client, ledger SpendLedger, limits SpendLimits, emitter *audit.Emitter) *SpendTracker {
	return &SpendTracker{
		rdb:     rdb,
		ledger:  ledger,
		limits:  limits,
		emitter: emitter,
		logger:  slog.Default().With("component", "spend-tracker"),
	}
}

func monthKey(tenantID string, now time.Time) string {
	return fmt.Sprintf("%s:%s:%s", spendKeyPrefix, tenantID, models.SpendMonth(now))
}

// MonthlyTotal returns the tenant's cumulative spend for the current month.
func (t *SpendTracker) MonthlyTotal(ctx context.Context, tenantID string) (float64, error) {
	total, err := t.rdb.Get(ctx, monthKey(tenantID, time.Now())).Float64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read spend counter: %w", err)
	}
	return total, nil
}

// CheckBudget refuses when the monthly total has reached the hard cap.
// Hit-blocking semantics: in-flight calls complete and are recorded even if
// they cross the cap; the next call is refused here.
func (t *SpendTracker) CheckBudget(ctx context.Context, tenantID string) error {
	if t.limits.MonthlyHardCapUSD <= 0 {
		return nil
	}
	total, err := t.MonthlyTotal(ctx, tenantID)
	if err != nil {
		// Budget enforcement fails closed: with the counter unreadable the
		// cap cannot be proven unspent.
		return fmt.Errorf("spend counter unavailable: %w", err)
	}
	if total >= t.limits.MonthlyHardCapUSD {
		if t.emitter != nil {
			ev := audit.NewEvent(audit.EventSpendHardLimit, tenantID).
				WithContext(map[string]any{
					"monthly_total_usd": total,
					"hard_cap_usd":      t.limits.MonthlyHardCapUSD,
				})
			t.emitter.Emit(ctx, ev)
		}
		return fmt.Errorf("%w: tenant %s at %.2f of %.2f USD",
			ErrSpendExceeded, tenantID, total, t.limits.MonthlyHardCapUSD)
	}
	return nil
}

// Record accounts one call's cost: increments the authoritative counter,
// appends the ledger record, and fires the one-shot soft alert when the
// total crosses the soft threshold.
func (t *SpendTracker) Record(ctx context.Context, tenantID, taskType, modelID string, costUSD float64) {
	now := time.Now().UTC()
	key := monthKey(tenantID, now)

	total, err := t.rdb.IncrByFloat(ctx, key, costUSD).Result()
	if err != nil {
		t.logger.Error("Failed to increment spend counter",
			"tenant_id", tenantID, "cost_usd", costUSD, "error", err)
	} else {
		// Best-effort TTL; re-set on every increment is harmless.
		t.rdb.Expire(ctx, key, spendKeyTTL)
		t.maybeSoftAlert(ctx, tenantID, total, now)
	}

	if t.ledger != nil {
		rec := models.SpendRecord{
			CostUSD:   costUSD,
			ModelID:   modelID,
			TaskType:  taskType,
			TenantID:  tenantID,
			Timestamp: now,
		}
		if err := t.ledger.RecordSpend(ctx, rec); err != nil {
			t.logger.Error("Failed to append spend ledger",
				"tenant_id", tenantID, "model_id", modelID, "error", err)
		}
	}
}

// maybeSoftAlert emits one spend.soft_limit event per tenant per month.
func (t *SpendTracker) maybeSoftAlert(ctx context.Context, tenantID string, total float64, now time.Time) {
	if t.limits.MonthlySoftAlertUSD <= 0 || total < t.limits.MonthlySoftAlertUSD {
		return
	}
	fired, err := t.rdb.SetNX(ctx, monthKey(tenantID, now)+":soft_alerted", "1", spendKeyTTL).Result()
	if err != nil {
		t.logger.Error("Failed to mark soft alert", "tenant_id", tenantID, "error", err)
		return
	}
	if !fired {
		return
	}
	t.logger.Warn("Monthly spend soft threshold crossed",
		"tenant_id", tenantID, "monthly_total_usd", total,
		"soft_alert_usd", t.limits.MonthlySoftAlertUSD)
	if t.emitter != nil {
		ev := audit.NewEvent(audit.EventSpendSoftLimit, tenantID).
			WithContext(map[string]any{
				"monthly_total_usd": total,
				"soft_alert_usd":    t.limits.MonthlySoftAlertUSD,
			})
		t.emitter.Emit(ctx, ev)
	}
}
