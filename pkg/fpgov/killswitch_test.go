package fpgov

import (
	"context"
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

func TestKillSwitch_ActivateAndCheck(t *testing.T) {
	rdb := newTestRedis(t)
	rec := &audit.Recorder{}
	store := NewKillSwitchStore(rdb, audit.NewEmitter(rec, nil))
	ctx := context.Background()

	require.NoError(t, store.Activate(ctx, models.KillSwitchTenant, "t-acme", "oncall@argus", "FP storm"))

	assert.True(t, store.IsKilled(ctx, "t-acme", "", "", ""))
	assert.False(t, store.IsKilled(ctx, "t-other", "", "", ""))

	ks, err := store.Get(ctx, models.KillSwitchTenant, "t-acme")
	require.NoError(t, err)
	require.NotNil(t, ks)
	assert.Equal(t, "oncall@argus", ks.ActivatedBy)
	assert.Equal(t, "FP storm", ks.Reason)

	events := rec.ByType(audit.EventKillSwitchActivated)
	require.Len(t, events, 1)
	assert.Equal(t, "t-acme", events[0].TenantID)
}

func TestKillSwitch_EachDimensionBlocks(t *testing.T) {
	rdb := newTestRedis(t)
	store := NewKillSwitchStore(rdb, audit.NewEmitter(audit.NopProducer{}, nil))
	ctx := context.Background()

	cases := []struct {
		name  string
		dim   models.KillSwitchDimension
		value string
		check func() bool
	}{
		{"tenant", models.KillSwitchTenant, "t1",
			func() bool { return store.IsKilled(ctx, "t1", "", "", "") }},
		{"pattern", models.KillSwitchPattern, "pat-9",
			func() bool { return store.IsKilled(ctx, "t2", "pat-9", "", "") }},
		{"technique", models.KillSwitchTechnique, "T1059",
			func() bool { return store.IsKilled(ctx, "t2", "", "T1059", "") }},
		{"datasource", models.KillSwitchDatasource, "crowdstrike",
			func() bool { return store.IsKilled(ctx, "t2", "", "", "crowdstrike") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.False(t, tc.check())
			require.NoError(t, store.Activate(ctx, tc.dim, tc.value, "sre", "test"))
			assert.True(t, tc.check())
			require.NoError(t, store.Deactivate(ctx, tc.dim, tc.value, "sre", "resolved"))
			assert.False(t, tc.check())
		})
	}
}

func TestKillSwitch_RejectsInvalidInput(t *testing.T) {
	store := NewKillSwitchStore(newTestRedis(t), audit.NewEmitter(audit.NopProducer{}, nil))
	ctx := context.Background()

	err := store.Activate(ctx, models.KillSwitchDimension("bogus"), "v", "sre", "")
	assert.ErrorIs(t, err, ErrGovernance)

	err = store.Activate(ctx, models.KillSwitchTenant, "", "sre", "")
	assert.ErrorIs(t, err, ErrGovernance)
}

func TestKillSwitch_CacheOutageFailMode(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewKillSwitchStore(rdb, audit.NewEmitter(audit.NopProducer{}, nil))
	ctx := context.Background()

	mr.Close()

	// Default is fail-open: an unreachable cache never blocks the pipeline.
	assert.False(t, store.IsKilled(ctx, "t1", "p1", "T1059", "ds"))

	store.FailClosed = true
	assert.True(t, store.IsKilled(ctx, "t1", "p1", "T1059", "ds"))
}

func TestKillSwitch_NoDimensionsNoCacheCall(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewKillSwitchStore(rdb, audit.NewEmitter(audit.NopProducer{}, nil))
	store.FailClosed = true
	mr.Close()

	// All-empty coordinates short-circuit before the cache, so even
	// fail-closed reports not killed.
	assert.False(t, store.IsKilled(context.Background(), "", "", "", ""))
}
