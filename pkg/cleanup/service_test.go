package cleanup

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-soc/argus/pkg/models"
)

type stubApprovals struct {
	mu      sync.Mutex
	expired []models.ApprovalRequest
	calls   int
}

func (s *stubApprovals) ExpirePending(context.Context, time.Time) ([]models.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	out := s.expired
	s.expired = nil
	return out, nil
}

type stubPatterns struct {
	candidates []models.FPPattern
}

func (s *stubPatterns) ListExpiryCandidates(context.Context, time.Time) ([]models.FPPattern, error) {
	out := s.candidates
	s.candidates = nil
	return out, nil
}

type stubGovernance struct {
	mu      sync.Mutex
	expired []string
}

func (s *stubGovernance) ExpirePattern(_ context.Context, patternID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expired = append(s.expired, patternID)
	return nil
}

type stubResumable struct {
	ids         []string
	staleBefore time.Time
}

func (s *stubResumable) ListResumable(_ context.Context, staleBefore time.Time, _ int) ([]string, error) {
	s.staleBefore = staleBefore
	out := s.ids
	s.ids = nil
	return out, nil
}

type stubDriver struct {
	mu      sync.Mutex
	expired []string
	resumed []string
}

func (s *stubDriver) ExpireApproval(_ context.Context, id string) (*models.Investigation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expired = append(s.expired, id)
	return &models.Investigation{ID: id, State: models.StateClosed}, nil
}

func (s *stubDriver) ResumeByID(_ context.Context, id string) (*models.Investigation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumed = append(s.resumed, id)
	return &models.Investigation{ID: id}, nil
}

func TestSweepRoundDrivesAllThreeSweeps(t *testing.T) {
	approvals := &stubApprovals{expired: []models.ApprovalRequest{
		{ID: "ap-1", InvestigationID: "inv-1"},
	}}
	patterns := &stubPatterns{candidates: []models.FPPattern{
		{ID: "pat-1", Scope: models.PatternScope{TenantID: "acme"}},
	}}
	gov := &stubGovernance{}
	resumable := &stubResumable{ids: []string{"inv-2", "inv-3"}}
	driver := &stubDriver{}

	svc := NewService(Config{Interval: time.Hour}, approvals, patterns, gov, resumable, driver)
	svc.runAll(context.Background())

	assert.Equal(t, []string{"inv-1"}, driver.expired)
	assert.Equal(t, []string{"pat-1"}, gov.expired)
	assert.Equal(t, []string{"inv-2", "inv-3"}, driver.resumed)
}

func TestStartRunsImmediatelyAndStops(t *testing.T) {
	approvals := &stubApprovals{}
	svc := NewService(Config{Interval: time.Hour},
		approvals, &stubPatterns{}, &stubGovernance{}, &stubResumable{}, &stubDriver{})

	svc.Start(context.Background())
	require.Eventually(t, func() bool {
		approvals.mu.Lock()
		defer approvals.mu.Unlock()
		return approvals.calls >= 1
	}, time.Second, 5*time.Millisecond, "first round runs before the first tick")
	svc.Stop()
}

func TestNewServiceAppliesDefaults(t *testing.T) {
	svc := NewService(Config{}, &stubApprovals{}, &stubPatterns{}, &stubGovernance{}, &stubResumable{}, &stubDriver{})
	assert.Equal(t, DefaultConfig().Interval, svc.config.Interval)
	assert.Equal(t, DefaultConfig().ResumeBatch, svc.config.ResumeBatch)
	assert.Equal(t, DefaultConfig().ResumeStaleAfter, svc.config.ResumeStaleAfter)
}

func TestResumeSweepAppliesStalenessCutoff(t *testing.T) {
	resumable := &stubResumable{}
	svc := NewService(Config{Interval: time.Hour, ResumeStaleAfter: 45 * time.Minute},
		&stubApprovals{}, &stubPatterns{}, &stubGovernance{}, resumable, &stubDriver{})

	svc.runAll(context.Background())

	// The sweep asks only for investigations untouched for the full
	// staleness window, never for everything non-terminal.
	want := time.Now().UTC().Add(-45 * time.Minute)
	assert.WithinDuration(t, want, resumable.staleBefore, 5*time.Second)
}
