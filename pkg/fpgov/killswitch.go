package fpgov

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/argus-soc/argus/pkg/audit"
	"github.com/argus-soc/argus/pkg/models"
)

// killSwitchKey builds the cache key for one dimension/value pair.
func killSwitchKey(dim models.KillSwitchDimension, value string) string {
	return fmt.Sprintf("kill_switch:%s:%s", dim, value)
}

// KillSwitchStore manages the four-dimensional kill switches in the cache.
//
// Reads are fail-open: when the cache is unreachable, switches report
// inactive so an outage does not halt the FP pipeline. A circuit breaker
// tracks cache health; operators who prefer fail-closed set FailClosed and
// the store then reports "killed" whenever the breaker is open.
type KillSwitchStore struct {
	rdb     *redis.Client
	emitter *audit.Emitter
	breaker *gobreaker.CircuitBreaker

	// FailClosed inverts the outage behaviour: treat every check as killed
	// while the cache is down.
	FailClosed bool

	logger *slog.Logger
}

// NewKillSwitchStore creates the store with a breaker tuned for cache
// blips: 5 consecutive failures open it, one probe every 30 seconds.
func NewKillSwitchStore(rdb *redis.Client, emitter *audit.Emitter) *KillSwitchStore {
	logger := slog.Default().With("component", "kill-switch")
	settings := gobreaker.Settings{
		Name:    "kill-switch-cache",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			logger.Warn("Kill-switch cache breaker state change", "from", from.String(), "to", to.String())
		},
	}
	return &KillSwitchStore{
		rdb:     rdb,
		emitter: emitter,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

// Activate turns a kill switch on and emits kill_switch.activated.
func (s *KillSwitchStore) Activate(ctx context.Context, dim models.KillSwitchDimension, value, activator, reason string) error {
	if !dim.IsValid() {
		return fmt.Errorf("%w: unknown dimension %q", ErrGovernance, dim)
	}
	if value == "" {
		return fmt.Errorf("%w: kill switch value required", ErrGovernance)
	}
	ks := models.KillSwitch{
		Dimension:   dim,
		Value:       value,
		ActivatedBy: activator,
		ActivatedAt: time.Now().UTC(),
		Reason:      reason,
	}
	data, err := json.Marshal(ks)
	if err != nil {
		return fmt.Errorf("marshal kill switch: %w", err)
	}
	if err := s.rdb.Set(ctx, killSwitchKey(dim, value), data, 0).Err(); err != nil {
		return fmt.Errorf("activate kill switch: %w", err)
	}

	tenant := audit.TenantGlobal
	if dim == models.KillSwitchTenant {
		tenant = value
	}
	ev := audit.NewEvent(audit.EventKillSwitchActivated, tenant).
		WithActor(audit.ActorHuman, activator).
		WithContext(map[string]any{
			"dimension": string(dim),
			"value":     value,
			"reason":    reason,
		})
	s.emitter.Emit(ctx, ev)

	s.logger.Warn("Kill switch activated",
		"dimension", dim, "value", value, "by", activator, "reason", reason)
	return nil
}

// Deactivate turns a kill switch off and emits kill_switch.deactivated.
func (s *KillSwitchStore) Deactivate(ctx context.Context, dim models.KillSwitchDimension, value, by, reason string) error {
	if !dim.IsValid() {
		return fmt.Errorf("%w: unknown dimension %q", ErrGovernance, dim)
	}
	if err := s.rdb.Del(ctx, killSwitchKey(dim, value)).Err(); err != nil {
		return fmt.Errorf("deactivate kill switch: %w", err)
	}

	tenant := audit.TenantGlobal
	if dim == models.KillSwitchTenant {
		tenant = value
	}
	ev := audit.NewEvent(audit.EventKillSwitchDeactivated, tenant).
		WithActor(audit.ActorHuman, by).
		WithContext(map[string]any{
			"dimension": string(dim),
			"value":     value,
			"reason":    reason,
		})
	s.emitter.Emit(ctx, ev)

	s.logger.Info("Kill switch deactivated", "dimension", dim, "value", value, "by", by)
	return nil
}

// Get returns the active switch on a dimension/value, or nil.
func (s *KillSwitchStore) Get(ctx context.Context, dim models.KillSwitchDimension, value string) (*models.KillSwitch, error) {
	data, err := s.rdb.Get(ctx, killSwitchKey(dim, value)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read kill switch: %w", err)
	}
	var ks models.KillSwitch
	if err := json.Unmarshal(data, &ks); err != nil {
		return nil, fmt.Errorf("decode kill switch: %w", err)
	}
	return &ks, nil
}

// IsKilled reports whether any provided non-empty dimension has an active
// switch. Pattern, technique, and datasource may be empty when not
// applicable to the caller's check.
func (s *KillSwitchStore) IsKilled(ctx context.Context, tenantID, patternID, techniqueID, datasource string) bool {
	checks := []struct {
		dim   models.KillSwitchDimension
		value string
	}{
		{models.KillSwitchTenant, tenantID},
		{models.KillSwitchPattern, patternID},
		{models.KillSwitchTechnique, techniqueID},
		{models.KillSwitchDatasource, datasource},
	}

	keys := make([]string, 0, len(checks))
	for _, c := range checks {
		if c.value != "" {
			keys = append(keys, killSwitchKey(c.dim, c.value))
		}
	}
	if len(keys) == 0 {
		return false
	}

	result, err := s.breaker.Execute(func() (any, error) {
		n, err := s.rdb.Exists(ctx, keys...).Result()
		if err != nil {
			return nil, err
		}
		return n > 0, nil
	})
	if err != nil {
		// Cache-read failure. Fail-open by default so switches report
		// inactive; FailClosed inverts.
		s.logger.Error("Kill-switch check failed, applying fail mode",
			"fail_closed", s.FailClosed, "error", err)
		return s.FailClosed
	}
	return result.(bool)
}
