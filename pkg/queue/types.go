// Package queue provides the durable alert queue workers and orphan
// recovery infrastructure.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/argus-soc/argus/pkg/services"
)

// Sentinel errors for queue operations.
var (
	// ErrQueueEmpty indicates no queued alerts are waiting.
	ErrQueueEmpty = errors.New("queue empty")

	// ErrAtCapacity indicates the global concurrent investigation limit has
	// been reached.
	ErrAtCapacity = errors.New("at capacity")
)

// ExecutionResult is the terminal outcome of one investigation run. All
// intermediate state was already persisted by the executor; the worker only
// handles claiming, heartbeat, and queue-item disposition.
type ExecutionResult struct {
	InvestigationID string
	// Requeue asks the worker to put the alert back instead of parking it,
	// e.g. on a transient dependency outage.
	Requeue bool
	Error   error
}

// InvestigationExecutor runs the full investigation lifecycle for one
// claimed alert. The executor owns persistence of every state transition;
// re-running after a crash resumes from the last durable snapshot.
type InvestigationExecutor interface {
	Execute(ctx context.Context, item *services.QueuedAlert) *ExecutionResult
}

// PoolHealth contains health information for the entire worker pool.
type PoolHealth struct {
	IsHealthy            bool           `json:"is_healthy"`
	DBReachable          bool           `json:"db_reachable"`
	DBError              string         `json:"db_error,omitempty"`
	PodID                string         `json:"pod_id"`
	ActiveWorkers        int            `json:"active_workers"`
	TotalWorkers         int            `json:"total_workers"`
	ActiveInvestigations int            `json:"active_investigations"`
	MaxConcurrent        int            `json:"max_concurrent"`
	QueueDepth           int            `json:"queue_depth"`
	WorkerStats          []WorkerHealth `json:"worker_stats"`
	LastOrphanScan       time.Time      `json:"last_orphan_scan"`
	OrphansRecovered     int            `json:"orphans_recovered"`
}

// WorkerHealth contains health information for a single worker.
type WorkerHealth struct {
	ID              string    `json:"id"`
	Status          string    `json:"status"` // "idle" or "working"
	CurrentAlertID  string    `json:"current_alert_id,omitempty"`
	AlertsProcessed int       `json:"alerts_processed"`
	LastActivity    time.Time `json:"last_activity"`
}
