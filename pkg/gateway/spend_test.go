package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-soc/argus/pkg/audit"
	"github.com/argus-soc/argus/pkg/models"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestSpendTracker_MonotonicTotal(t *testing.T) {
	rdb := newTestRedis(t)
	tracker := NewSpendTracker(rdb, nil, SpendLimits{MonthlyHardCapUSD: 100}, audit.NewEmitter(audit.NopProducer{}, nil))
	ctx := context.Background()

	prev := 0.0
	for _, cost := range []float64{0.01, 0.5, 0.002, 1.25} {
		tracker.Record(ctx, "t1", "reasoning", "model-a", cost)
		total, err := tracker.MonthlyTotal(ctx, "t1")
		require.NoError(t, err)
		assert.Greater(t, total, prev)
		prev = total
	}
	assert.InDelta(t, 1.762, prev, 1e-9)
}

func TestSpendTracker_HardCapRefuses(t *testing.T) {
	rdb := newTestRedis(t)
	rec := &audit.Recorder{}
	tracker := NewSpendTracker(rdb, nil, SpendLimits{MonthlyHardCapUSD: 1.0}, audit.NewEmitter(rec, nil))
	ctx := context.Background()

	require.NoError(t, tracker.CheckBudget(ctx, "t1"))

	// In-flight semantics: the recording that crosses the cap succeeds,
	// the next check refuses.
	tracker.Record(ctx, "t1", "reasoning", "model-a", 1.5)
	err := tracker.CheckBudget(ctx, "t1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSpendExceeded))
	assert.Len(t, rec.ByType(audit.EventSpendHardLimit), 1)
}

func TestSpendTracker_TenantsIndependent(t *testing.T) {
	rdb := newTestRedis(t)
	tracker := NewSpendTracker(rdb, nil, SpendLimits{MonthlyHardCapUSD: 1.0}, audit.NewEmitter(audit.NopProducer{}, nil))
	ctx := context.Background()

	tracker.Record(ctx, "t1", "reasoning", "model-a", 5.0)
	require.Error(t, tracker.CheckBudget(ctx, "t1"))
	require.NoError(t, tracker.CheckBudget(ctx, "t2"))
}

func TestSpendTracker_SoftAlertFiresOnce(t *testing.T) {
	rdb := newTestRedis(t)
	rec := &audit.Recorder{}
	tracker := NewSpendTracker(rdb, nil,
		SpendLimits{MonthlyHardCapUSD: 100, MonthlySoftAlertUSD: 1.0},
		audit.NewEmitter(rec, nil))
	ctx := context.Background()

	tracker.Record(ctx, "t1", "reasoning", "model-a", 0.6)
	assert.Empty(t, rec.ByType(audit.EventSpendSoftLimit))

	tracker.Record(ctx, "t1", "reasoning", "model-a", 0.6)
	assert.Len(t, rec.ByType(audit.EventSpendSoftLimit), 1)

	// Crossing again within the month does not re-fire.
	tracker.Record(ctx, "t1", "reasoning", "model-a", 0.6)
	assert.Len(t, rec.ByType(audit.EventSpendSoftLimit), 1)
}

type captureLedger struct {
	records []string
}

func (l *captureLedger) RecordSpend(_ context.Context, rec models.SpendRecord) error {
	l.records = append(l.records, rec.TenantID+"/"+rec.TaskType+"/"+rec.ModelID)
	return nil
}

func TestSpendTracker_LedgerReceivesRecords(t *testing.T) {
	rdb := newTestRedis(t)
	ledger := &captureLedger{}
	tracker := NewSpendTracker(rdb, ledger, SpendLimits{}, audit.NewEmitter(audit.NopProducer{}, nil))

	tracker.Record(context.Background(), "t1", "extraction", "model-b", 0.004)
	require.Len(t, ledger.records, 1)
	assert.Equal(t, "t1/extraction/model-b", ledger.records[0])
}
