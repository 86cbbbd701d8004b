package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/argus-soc/argus/pkg/services"
)

// orphanState tracks orphan detection metrics (thread-safe).
type orphanState struct {
	mu               sync.Mutex
	lastOrphanScan   time.Time
	orphansRecovered int
}

// runOrphanDetection periodically scans for orphaned claims.
// All pods run this independently — operations are idempotent.
func (p *WorkerPool) runOrphanDetection(ctx context.Context) {
	ticker := time.NewTicker(p.config.OrphanDetectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			if err := p.detectAndRecoverOrphans(ctx); err != nil {
				slog.Error("Orphan detection failed", "error", err)
			}
		}
	}
}

// detectAndRecoverOrphans requeues claimed alerts with stale heartbeats.
// The investigation snapshot survives in the database; the next claimant
// resumes from it instead of starting over.
func (p *WorkerPool) detectAndRecoverOrphans(ctx context.Context) error {
	threshold := time.Now().Add(-p.config.OrphanThreshold)

	requeued, err := p.queue.RequeueStale(ctx, threshold, p.config.MaxAttempts)
	if err != nil {
		return fmt.Errorf("requeueing stale claims: %w", err)
	}

	p.orphans.mu.Lock()
	p.orphans.lastOrphanScan = time.Now()
	p.orphans.orphansRecovered += len(requeued)
	p.orphans.mu.Unlock()

	if len(requeued) == 0 {
		return nil
	}

	slog.Warn("Recovered orphaned claims", "count", len(requeued))
	for _, item := range requeued {
		slog.Warn("Orphaned alert requeued",
			"tenant_id", item.TenantID,
			"alert_id", item.AlertID,
			"attempts", item.Attempts)
	}
	return nil
}

// ReleaseStartupClaims performs a one-time release of claims owned by this
// pod before it previously crashed. Called once during startup, before the
// worker pool begins processing.
func ReleaseStartupClaims(ctx context.Context, queue *services.QueueService, podID string) error {
	released, err := queue.ReleaseClaims(ctx, podID)
	if err != nil {
		return fmt.Errorf("releasing startup claims: %w", err)
	}
	if len(released) == 0 {
		return nil
	}

	slog.Warn("Released claims from previous run",
		"pod_id", podID,
		"count", len(released))
	for _, item := range released {
		slog.Info("Startup claim released",
			"tenant_id", item.TenantID,
			"alert_id", item.AlertID)
	}
	return nil
}
