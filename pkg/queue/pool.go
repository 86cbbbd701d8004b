package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/argus-soc/argus/pkg/services"
)

// WorkerPool manages a pool of queue workers.
type WorkerPool struct {
	podID    string
	queue    *services.QueueService
	config   *Config
	executor InvestigationExecutor
	workers  []*Worker
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Claim cancel registry: tenant/alert key → cancel function
	activeClaims map[string]context.CancelFunc
	mu           sync.RWMutex
	started      bool

	// Orphan detection state
	orphans orphanState
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(podID string, queue *services.QueueService, cfg *Config, executor InvestigationExecutor) *WorkerPool {
	return &WorkerPool{
		podID:        podID,
		queue:        queue,
		config:       cfg,
		executor:     executor,
		workers:      make([]*Worker, 0, cfg.WorkerCount),
		stopCh:       make(chan struct{}),
		activeClaims: make(map[string]context.CancelFunc),
	}
}

// Start spawns worker goroutines and the orphan detection background task.
// It is safe to call multiple times; subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) error {
	if p.started {
		slog.Warn("Worker pool already started, ignoring duplicate Start call", "pod_id", p.podID)
		return nil
	}
	p.started = true

	slog.Info("Starting worker pool", "pod_id", p.podID, "worker_count", p.config.WorkerCount)

	for i := 0; i < p.config.WorkerCount; i++ {
		workerID := fmt.Sprintf("%s-worker-%d", p.podID, i)
		worker := NewWorker(workerID, p.podID, p.queue, p.config, p.executor, p)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}

	// Start orphan detection
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runOrphanDetection(ctx)
	}()

	slog.Info("Worker pool started")
	return nil
}

// Stop signals all workers to stop and waits for them to finish.
// Workers finish their current investigations before exiting (graceful
// shutdown).
func (p *WorkerPool) Stop() {
	slog.Info("Stopping worker pool gracefully")

	// Log active claims
	active := p.getActiveClaimKeys()
	if len(active) > 0 {
		slog.Info("Waiting for active investigations to complete",
			"count", len(active),
			"alerts", active)
	}

	// Signal all workers to stop (they finish current investigations)
	for _, worker := range p.workers {
		worker.Stop()
	}

	// Signal orphan detection to stop
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()

	slog.Info("Worker pool stopped gracefully")
}

// RegisterClaim stores a cancel function for manual cancellation.
func (p *WorkerPool) RegisterClaim(alertKey string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activeClaims[alertKey] = cancel
}

// UnregisterClaim removes the cancel function when processing ends.
func (p *WorkerPool) UnregisterClaim(alertKey string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.activeClaims, alertKey)
}

// CancelInvestigation triggers context cancellation for a claimed alert on
// this pod. Returns true if the claim was found and cancelled here.
func (p *WorkerPool) CancelInvestigation(tenantID, alertID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if cancel, ok := p.activeClaims[tenantID+"/"+alertID]; ok {
		cancel()
		return true
	}
	return false
}

// Health returns the current health status of the pool.
func (p *WorkerPool) Health() *PoolHealth {
	ctx := context.Background()

	queueDepth, errQ := p.queue.Depth(ctx)
	if errQ != nil {
		slog.Error("Failed to query queue depth for health check",
			"pod_id", p.podID,
			"error", errQ)
	}

	activeClaims, errA := p.queue.ActiveCount(ctx, p.podID)
	if errA != nil {
		slog.Error("Failed to query active claims for health check",
			"pod_id", p.podID,
			"error", errA)
	}

	workerStats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	for i, worker := range p.workers {
		stats := worker.Health()
		workerStats[i] = stats
		if stats.Status == string(WorkerStatusWorking) {
			activeWorkers++
		}
	}

	// DB errors affect health status - if we can't reach the DB, we're not healthy
	dbHealthy := errQ == nil && errA == nil
	isHealthy := len(p.workers) > 0 && activeClaims <= p.config.MaxConcurrentInvestigations && dbHealthy

	p.orphans.mu.Lock()
	lastOrphanScan := p.orphans.lastOrphanScan
	orphansRecovered := p.orphans.orphansRecovered
	p.orphans.mu.Unlock()

	var dbError string
	if !dbHealthy {
		if errQ != nil {
			dbError = fmt.Sprintf("queue depth query failed: %v", errQ)
		} else if errA != nil {
			dbError = fmt.Sprintf("active claims query failed: %v", errA)
		}
	}

	return &PoolHealth{
		IsHealthy:            isHealthy,
		DBReachable:          dbHealthy,
		DBError:              dbError,
		PodID:                p.podID,
		ActiveWorkers:        activeWorkers,
		TotalWorkers:         len(p.workers),
		ActiveInvestigations: activeClaims,
		MaxConcurrent:        p.config.MaxConcurrentInvestigations,
		QueueDepth:           queueDepth,
		WorkerStats:          workerStats,
		LastOrphanScan:       lastOrphanScan,
		OrphansRecovered:     orphansRecovered,
	}
}

// getActiveClaimKeys returns keys of currently processing alerts (for logging).
func (p *WorkerPool) getActiveClaimKeys() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	keys := make([]string, 0, len(p.activeClaims))
	for k := range p.activeClaims {
		keys = append(keys, k)
	}
	return keys
}
