// Package cleanup runs the background sweeps: approval-gate deadlines,
// pattern expiry, and recovery of resumable investigations.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/argus-soc/argus/pkg/models"
)

// Config holds the sweep knobs.
type Config struct {
	// Interval between sweep rounds.
	Interval time.Duration `yaml:"interval"`
	// ResumeBatch caps how many stuck investigations one round re-drives.
	ResumeBatch int `yaml:"resume_batch"`
	// ResumeStaleAfter is how long an investigation must sit untouched
	// before the sweep treats it as stranded. Must exceed the worker
	// investigation timeout so a run still in flight is never re-driven
	// concurrently.
	ResumeStaleAfter time.Duration `yaml:"resume_stale_after"`
}

// DefaultConfig returns the production sweep settings.
func DefaultConfig() Config {
	return Config{
		Interval:         time.Minute,
		ResumeBatch:      20,
		ResumeStaleAfter: 30 * time.Minute,
	}
}

// ApprovalSweeper finds and marks approvals past their deadline.
type ApprovalSweeper interface {
	ExpirePending(ctx context.Context, now time.Time) ([]models.ApprovalRequest, error)
}

// PatternSweeper lists expiry candidates among matchable patterns.
type PatternSweeper interface {
	ListExpiryCandidates(ctx context.Context, now time.Time) ([]models.FPPattern, error)
}

// PatternExpirer retires one expired pattern.
type PatternExpirer interface {
	ExpirePattern(ctx context.Context, patternID string) error
}

// ResumableLister finds non-terminal investigations with no live claim,
// last touched before staleBefore.
type ResumableLister interface {
	ListResumable(ctx context.Context, staleBefore time.Time, limit int) ([]string, error)
}

// InvestigationDriver is the orchestrator surface the sweeps drive.
type InvestigationDriver interface {
	ExpireApproval(ctx context.Context, investigationID string) (*models.Investigation, error)
	ResumeByID(ctx context.Context, investigationID string) (*models.Investigation, error)
}

// Service periodically enforces the time-based transitions nothing else
// triggers:
//   - expires approval gates past their deadline and closes those investigations
//   - retires active/canary patterns past their 90-day reaffirmation window
//   - re-drives investigations left non-terminal by crashed workers
//
// All operations are idempotent and safe to run from multiple pods.
type Service struct {
	config         Config
	approvals      ApprovalSweeper
	patterns       PatternSweeper
	governance     PatternExpirer
	investigations ResumableLister
	driver         InvestigationDriver

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates the sweep service.
func NewService(cfg Config, approvals ApprovalSweeper, patterns PatternSweeper, governance PatternExpirer, investigations ResumableLister, driver InvestigationDriver) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.ResumeBatch <= 0 {
		cfg.ResumeBatch = DefaultConfig().ResumeBatch
	}
	if cfg.ResumeStaleAfter <= 0 {
		cfg.ResumeStaleAfter = DefaultConfig().ResumeStaleAfter
	}
	return &Service{
		config:         cfg,
		approvals:      approvals,
		patterns:       patterns,
		governance:     governance,
		investigations: investigations,
		driver:         driver,
	}
}

// Start launches the background sweep loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started", "interval", s.config.Interval)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.expireApprovals(ctx)
	s.expirePatterns(ctx)
	s.resumeInvestigations(ctx)
}

// expireApprovals times out gates past their deadline and closes the paused
// investigations.
func (s *Service) expireApprovals(ctx context.Context) {
	expired, err := s.approvals.ExpirePending(ctx, time.Now().UTC())
	if err != nil {
		slog.Error("Sweep: expire pending approvals failed", "error", err)
		return
	}
	for _, req := range expired {
		if _, err := s.driver.ExpireApproval(ctx, req.InvestigationID); err != nil {
			slog.Error("Sweep: close timed-out investigation failed",
				"investigation_id", req.InvestigationID,
				"approval_id", req.ID,
				"error", err)
			continue
		}
		slog.Info("Sweep: approval gate timed out",
			"investigation_id", req.InvestigationID,
			"approval_id", req.ID)
	}
}

// expirePatterns retires matchable patterns whose reaffirmation window has
// lapsed.
func (s *Service) expirePatterns(ctx context.Context) {
	candidates, err := s.patterns.ListExpiryCandidates(ctx, time.Now().UTC())
	if err != nil {
		slog.Error("Sweep: list expiry candidates failed", "error", err)
		return
	}
	for _, p := range candidates {
		if err := s.governance.ExpirePattern(ctx, p.ID); err != nil {
			slog.Error("Sweep: expire pattern failed", "pattern_id", p.ID, "error", err)
			continue
		}
		slog.Info("Sweep: pattern expired", "pattern_id", p.ID, "tenant_id", p.Scope.TenantID)
	}
}

// resumeInvestigations re-drives investigations stranded mid-pipeline by a
// crashed worker. The snapshot carries everything needed to continue. Only
// investigations untouched for the staleness window and without a live
// queue claim qualify, so a run a worker is executing right now is never
// duplicated.
func (s *Service) resumeInvestigations(ctx context.Context) {
	staleBefore := time.Now().UTC().Add(-s.config.ResumeStaleAfter)
	ids, err := s.investigations.ListResumable(ctx, staleBefore, s.config.ResumeBatch)
	if err != nil {
		slog.Error("Sweep: list resumable investigations failed", "error", err)
		return
	}
	for _, id := range ids {
		if _, err := s.driver.ResumeByID(ctx, id); err != nil {
			slog.Error("Sweep: resume investigation failed",
				"investigation_id", id, "error", err)
			continue
		}
		slog.Info("Sweep: investigation resumed", "investigation_id", id)
	}
}
