package fpgov

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-soc/argus/pkg/audit"
	"github.com/argus-soc/argus/pkg/models"
)

type memTenantStore struct {
	mu      sync.Mutex
	configs map[string]*models.TenantConfig
}

func newMemTenantStore() *memTenantStore {
	return &memTenantStore{configs: make(map[string]*models.TenantConfig)}
}

func (s *memTenantStore) GetTenantConfig(_ context.Context, tenantID string) (*models.TenantConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[tenantID]
	if !ok {
		return nil, nil
	}
	cp := *cfg
	return &cp, nil
}

func (s *memTenantStore) SaveTenantConfig(_ context.Context, cfg *models.TenantConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *cfg
	s.configs[cfg.TenantID] = &cp
	return nil
}

type memShadowStore struct {
	mu        sync.Mutex
	decisions map[string]*models.ShadowDecision
}

func newMemShadowStore() *memShadowStore {
	return &memShadowStore{decisions: make(map[string]*models.ShadowDecision)}
}

func (s *memShadowStore) RecordShadowDecision(_ context.Context, d *models.ShadowDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.decisions[d.InvestigationID] = &cp
	return nil
}

func (s *memShadowStore) ReconcileShadowDecision(_ context.Context, investigationID, analystDecision string, at time.Time) (*models.ShadowDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.decisions[investigationID]
	if !ok {
		return nil, fmt.Errorf("shadow decision for %s not found", investigationID)
	}
	d.AnalystDecision = analystDecision
	d.ReconciledAt = &at
	cp := *d
	return &cp, nil
}

func (s *memShadowStore) ShadowMetrics(_ context.Context, tenantID string, since time.Time) (*models.ShadowMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := &models.ShadowMetrics{TenantID: tenantID, WindowStart: since}
	for _, d := range s.decisions {
		if d.TenantID != tenantID || d.RecordedAt.Before(since) {
			continue
		}
		m.Total++
		if d.ReconciledAt == nil {
			continue
		}
		m.Reconciled++
		if d.Agreed() {
			m.Agreements++
		}
		if d.Decision == models.ClassificationFalsePositive {
			m.FPCalled++
			if d.AnalystDecision == models.ClassificationFalsePositive {
				m.FPTrue++
			}
		}
		if d.Decision == models.ClassificationFalsePositive &&
			d.AnalystDecision == models.ClassificationTruePositive &&
			d.Severity == models.SeverityCritical {
			m.MissedCriticalTPs++
		}
	}
	return m, nil
}

func newTestShadowService(t *testing.T, rec *audit.Recorder) (*ShadowService, *memTenantStore, *memShadowStore) {
	t.Helper()
	tenants := newMemTenantStore()
	decisions := newMemShadowStore()
	if rec == nil {
		rec = &audit.Recorder{}
	}
	svc := NewShadowService(tenants, decisions, nil, audit.NewEmitter(rec, nil))
	return svc, tenants, decisions
}

func TestShadow_UnknownTenantDefaultsToShadow(t *testing.T) {
	svc, _, _ := newTestShadowService(t, nil)

	in, err := svc.InShadow(context.Background(), "t-new", "edr")
	require.NoError(t, err)
	assert.True(t, in, "a tenant never configured must start shadowed")
}

func TestShadow_RuleFamilyScoping(t *testing.T) {
	svc, tenants, _ := newTestShadowService(t, nil)
	ctx := context.Background()

	require.NoError(t, tenants.SaveTenantConfig(ctx, &models.TenantConfig{
		TenantID:           "t1",
		ShadowMode:         true,
		ShadowRuleFamilies: []string{"email"},
	}))

	in, err := svc.InShadow(ctx, "t1", "email")
	require.NoError(t, err)
	assert.True(t, in)

	in, err = svc.InShadow(ctx, "t1", "edr")
	require.NoError(t, err)
	assert.False(t, in)
}

func TestShadow_RecordAndReconcile(t *testing.T) {
	rec := &audit.Recorder{}
	svc, _, _ := newTestShadowService(t, rec)
	ctx := context.Background()

	require.NoError(t, svc.RecordDecision(ctx, models.ShadowDecision{
		TenantID:        "t1",
		InvestigationID: "inv-1",
		Decision:        models.ClassificationFalsePositive,
		Confidence:      0.97,
		Severity:        models.SeverityLow,
	}))
	assert.Len(t, rec.ByType(audit.EventShadowDecisionRecorded), 1)

	d, err := svc.Reconcile(ctx, "inv-1", models.ClassificationFalsePositive, "")
	require.NoError(t, err)
	assert.True(t, d.Agreed())
	assert.Len(t, rec.ByType(audit.EventShadowReconciled), 1)
}

func TestShadow_ReconcileFeedsCanary(t *testing.T) {
	store := newMemPatternStore(shadowPattern("pat-s"))
	tracker := NewCanaryTracker(newTestRedis(t), store, audit.NewEmitter(audit.NopProducer{}, nil))
	tenants := newMemTenantStore()
	decisions := newMemShadowStore()
	svc := NewShadowService(tenants, decisions, tracker, audit.NewEmitter(audit.NopProducer{}, nil))
	ctx := context.Background()

	require.NoError(t, svc.RecordDecision(ctx, models.ShadowDecision{
		TenantID:        "t1",
		InvestigationID: "inv-2",
		Decision:        models.ClassificationFalsePositive,
	}))
	_, err := svc.Reconcile(ctx, "inv-2", models.ClassificationTruePositive, "pat-s")
	require.NoError(t, err)

	stats, err := tracker.Stats(ctx, "pat-s")
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Total)
	assert.EqualValues(t, 1, stats.Disagreements)
}

func seedReconciled(t *testing.T, svc *ShadowService, tenant string, n int, engine, analyst string, sev models.Severity) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%s-%s-%s-%d", tenant, engine, analyst, i)
		require.NoError(t, svc.RecordDecision(ctx, models.ShadowDecision{
			TenantID:        tenant,
			InvestigationID: id,
			Decision:        engine,
			Severity:        sev,
		}))
		_, err := svc.Reconcile(ctx, id, analyst, "")
		require.NoError(t, err)
	}
}

func TestShadow_GoLiveRequiresScorecard(t *testing.T) {
	rec := &audit.Recorder{}
	svc, tenants, _ := newTestShadowService(t, rec)
	ctx := context.Background()

	// 90% agreement: below the 95% bar.
	seedReconciled(t, svc, "t1", 18, models.ClassificationFalsePositive, models.ClassificationFalsePositive, models.SeverityLow)
	seedReconciled(t, svc, "t1", 2, models.ClassificationTruePositive, models.ClassificationFalsePositive, models.SeverityLow)

	_, err := svc.GoLive(ctx, "t1", "manager")
	assert.ErrorIs(t, err, ErrShadowSignOff)

	cfg, err := tenants.GetTenantConfig(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, cfg, "refused go-live must not touch tenant config")

	// Clean record clears the bar.
	seedReconciled(t, svc, "t2", 40, models.ClassificationFalsePositive, models.ClassificationFalsePositive, models.SeverityLow)
	out, err := svc.GoLive(ctx, "t2", "manager")
	require.NoError(t, err)
	assert.False(t, out.ShadowMode)
	assert.True(t, out.GoLiveSignedOff)
	assert.Len(t, rec.ByType(audit.EventTenantWentLive), 1)
}

func TestShadow_MissedCriticalBlocksGoLive(t *testing.T) {
	svc, _, _ := newTestShadowService(t, nil)
	ctx := context.Background()

	seedReconciled(t, svc, "t3", 99, models.ClassificationFalsePositive, models.ClassificationFalsePositive, models.SeverityLow)
	// One engine FP call the analyst graded a critical true positive.
	seedReconciled(t, svc, "t3", 1, models.ClassificationFalsePositive, models.ClassificationTruePositive, models.SeverityCritical)

	_, err := svc.GoLive(ctx, "t3", "manager")
	assert.ErrorIs(t, err, ErrShadowSignOff)
}

func TestShadow_ReenteringShadowClearsSignOff(t *testing.T) {
	svc, tenants, _ := newTestShadowService(t, nil)
	ctx := context.Background()

	seedReconciled(t, svc, "t4", 40, models.ClassificationFalsePositive, models.ClassificationFalsePositive, models.SeverityLow)
	_, err := svc.GoLive(ctx, "t4", "manager")
	require.NoError(t, err)

	cfg, err := svc.EnableShadow(ctx, "t4", []string{"identity"}, "manager")
	require.NoError(t, err)
	assert.True(t, cfg.ShadowMode)
	assert.False(t, cfg.GoLiveSignedOff)
	assert.Equal(t, []string{"identity"}, cfg.ShadowRuleFamilies)

	stored, err := tenants.GetTenantConfig(ctx, "t4")
	require.NoError(t, err)
	assert.True(t, stored.ShadowMode)
}
