package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/argus-soc/argus/pkg/services"
)

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// Worker is a single queue worker that polls for and processes alerts.
type Worker struct {
	id       string
	podID    string
	queue    *services.QueueService
	config   *Config
	executor InvestigationExecutor
	pool     ClaimRegistry
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Health tracking
	mu              sync.RWMutex
	status          WorkerStatus
	currentAlertID  string
	alertsProcessed int
	lastActivity    time.Time
}

// ClaimRegistry is the subset of WorkerPool used by Worker for claim
// registration.
type ClaimRegistry interface {
	RegisterClaim(alertKey string, cancel context.CancelFunc)
	UnregisterClaim(alertKey string)
}

// NewWorker creates a new queue worker.
func NewWorker(id, podID string, queue *services.QueueService, cfg *Config, executor InvestigationExecutor, pool ClaimRegistry) *Worker {
	return &Worker{
		id:           id,
		podID:        podID,
		queue:        queue,
		config:       cfg,
		executor:     executor,
		pool:         pool,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to finish.
// It is safe to call Stop multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the current worker health status.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:              w.id,
		Status:          string(w.status),
		CurrentAlertID:  w.currentAlertID,
		AlertsProcessed: w.alertsProcessed,
		LastActivity:    w.lastActivity,
	}
}

// run is the main worker loop.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id, "pod_id", w.podID)
	log.Info("Worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("Worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrQueueEmpty) || errors.Is(err, ErrAtCapacity) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("Error processing alert", "error", err)
				w.sleep(time.Second) // Brief backoff on error
			}
		}
	}
}

// sleep waits for the given duration or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess checks capacity, claims an alert, and runs the
// investigation for it.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	// 1. Check global capacity (best-effort; racy with concurrent workers but
	//    bounded by WorkerCount and mitigated by poll jitter).
	activeCount, err := w.queue.ActiveCount(ctx, "")
	if err != nil {
		return fmt.Errorf("checking active claims: %w", err)
	}
	if activeCount >= w.config.MaxConcurrentInvestigations {
		return ErrAtCapacity
	}

	// 2. Claim next alert
	item, err := w.queue.ClaimNext(ctx, w.id)
	if errors.Is(err, services.ErrNotFound) {
		return ErrQueueEmpty
	}
	if err != nil {
		return fmt.Errorf("claiming next alert: %w", err)
	}

	log := slog.With("tenant_id", item.TenantID, "alert_id", item.AlertID, "worker_id", w.id)
	log.Info("Alert claimed", "attempt", item.Attempts)

	w.setStatus(WorkerStatusWorking, item.AlertID)
	defer w.setStatus(WorkerStatusIdle, "")

	// 3. Create run context with timeout
	runCtx, cancelRun := context.WithTimeout(ctx, w.config.InvestigationTimeout)
	defer cancelRun()

	// 4. Register cancel function for API-triggered cancellation
	claimKey := item.TenantID + "/" + item.AlertID
	w.pool.RegisterClaim(claimKey, cancelRun)
	defer w.pool.UnregisterClaim(claimKey)

	// 5. Start heartbeat
	heartbeatCtx, cancelHeartbeat := context.WithCancel(runCtx)
	defer cancelHeartbeat()
	go w.runHeartbeat(heartbeatCtx, item.ID)

	// 6. Run the investigation
	result := w.executor.Execute(runCtx, item)

	// 6a. Nil-guard: synthesize a safe result if the executor returned nil
	if result == nil {
		switch {
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			result = &ExecutionResult{
				Error: fmt.Errorf("investigation timed out after %v", w.config.InvestigationTimeout),
			}
		case errors.Is(runCtx.Err(), context.Canceled):
			result = &ExecutionResult{Error: context.Canceled}
		default:
			result = &ExecutionResult{Error: fmt.Errorf("executor returned nil result")}
		}
	}

	// 7. Stop heartbeat before touching the queue row
	cancelHeartbeat()

	// 8. Dispose of the queue item (background context — run ctx may be
	// cancelled). The investigation snapshot itself was already persisted by
	// the executor; a crashed disposition only re-runs an idempotent resume.
	if err := w.disposeItem(context.Background(), item, result); err != nil {
		log.Error("Failed to update queue item", "error", err)
		return err
	}

	w.mu.Lock()
	w.alertsProcessed++
	w.mu.Unlock()

	if result.Error != nil {
		log.Warn("Investigation run ended with error",
			"investigation_id", result.InvestigationID,
			"requeue", result.Requeue,
			"error", result.Error)
	} else {
		log.Info("Investigation run complete", "investigation_id", result.InvestigationID)
	}
	return nil
}

// disposeItem completes, requeues, or parks the claimed queue item based on
// the execution result.
func (w *Worker) disposeItem(ctx context.Context, item *services.QueuedAlert, result *ExecutionResult) error {
	if result.Error == nil {
		return w.queue.Complete(ctx, item.ID)
	}
	maxAttempts := w.config.MaxAttempts
	if !result.Requeue {
		// Non-retryable failure: spend the whole budget so Fail parks it.
		maxAttempts = item.Attempts
	}
	return w.queue.Fail(ctx, item.ID, result.Error.Error(), maxAttempts)
}

// runHeartbeat periodically refreshes the claim heartbeat for orphan
// detection.
func (w *Worker) runHeartbeat(ctx context.Context, itemID int64) {
	ticker := time.NewTicker(w.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.queue.Heartbeat(ctx, itemID); err != nil {
				slog.Warn("Heartbeat update failed", "queue_item_id", itemID, "error", err)
			}
		}
	}
}

// pollInterval returns the poll duration with jitter.
func (w *Worker) pollInterval() time.Duration {
	base := w.config.PollInterval
	jitter := w.config.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	// Range: [base - jitter, base + jitter]
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

// setStatus updates the worker's health tracking state.
func (w *Worker) setStatus(status WorkerStatus, alertID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentAlertID = alertID
	w.lastActivity = time.Now()
}
