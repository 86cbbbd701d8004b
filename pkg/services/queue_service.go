package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/argus-soc/argus/pkg/models"
)

// Queue item statuses. Completed items stay in the table for audit; dead
// items exceeded their attempt budget and need operator attention.
const (
	QueueStatusQueued  = "queued"
	QueueStatusClaimed = "claimed"
	QueueStatusDone    = "done"
	QueueStatusDead    = "dead"
)

// QueuedAlert is one row of the durable intake queue.
type QueuedAlert struct {
	ID        int64
	TenantID  string
	AlertID   string
	Alert     *models.Alert
	Attempts  int
	CreatedAt time.Time
}

// QueueService is the durable alert intake queue over Postgres. Claims use
// FOR UPDATE SKIP LOCKED so replicas never double-claim.
type QueueService struct {
	db *sql.DB
}

// NewQueueService creates the service.
func NewQueueService(db *sql.DB) *QueueService {
	if db == nil {
		panic("NewQueueService: db must not be nil")
	}
	return &QueueService{db: db}
}

// Enqueue adds one alert. Re-enqueueing the same (tenant, alert) is a no-op:
// the queue is the exactly-once boundary for intake retries.
func (s *QueueService) Enqueue(ctx context.Context, alert *models.Alert) error {
	if alert.TenantID == "" {
		return NewValidationError("tenant_id", "tenant id is required")
	}
	if alert.ID == "" {
		return NewValidationError("id", "alert id is required")
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert %s: %w", alert.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alert_queue (tenant_id, alert_id, alert, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, alert_id) DO NOTHING`,
		alert.TenantID, alert.ID, payload, QueueStatusQueued, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("enqueue alert %s/%s: %w", alert.TenantID, alert.ID, err)
	}
	return nil
}

// ClaimNext atomically claims the oldest queued alert for claimedBy.
// Returns ErrNotFound when the queue is empty.
func (s *QueueService) ClaimNext(ctx context.Context, claimedBy string) (*QueuedAlert, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT id, tenant_id, alert_id, alert, attempts, created_at
		FROM alert_queue
		WHERE status = $1
		ORDER BY created_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED`, QueueStatusQueued)

	item, err := scanQueuedAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select next queued alert: %w", err)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE alert_queue
		SET status = $1, claimed_by = $2, claimed_at = $3, heartbeat_at = $3,
		    attempts = attempts + 1
		WHERE id = $4`,
		QueueStatusClaimed, claimedBy, now, item.ID); err != nil {
		return nil, fmt.Errorf("claim alert %d: %w", item.ID, err)
	}
	item.Attempts++

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return item, nil
}

// Heartbeat refreshes the claim's heartbeat timestamp.
func (s *QueueService) Heartbeat(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE alert_queue SET heartbeat_at = $1
		WHERE id = $2 AND status = $3`,
		time.Now().UTC(), id, QueueStatusClaimed)
	return err
}

// Complete marks one claimed alert done.
func (s *QueueService) Complete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE alert_queue SET status = $1 WHERE id = $2`,
		QueueStatusDone, id)
	if err != nil {
		return fmt.Errorf("complete queue item %d: %w", id, err)
	}
	return nil
}

// Fail records the failure and either requeues the alert or, when its
// attempt budget is spent, parks it dead.
func (s *QueueService) Fail(ctx context.Context, id int64, cause string, maxAttempts int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE alert_queue
		SET status = CASE WHEN attempts >= $1 THEN $2 ELSE $3 END,
		    claimed_by = NULL, claimed_at = NULL, heartbeat_at = NULL,
		    last_error = $4
		WHERE id = $5`,
		maxAttempts, QueueStatusDead, QueueStatusQueued, cause, id)
	if err != nil {
		return fmt.Errorf("fail queue item %d: %w", id, err)
	}
	return nil
}

// Depth counts alerts waiting to be claimed.
func (s *QueueService) Depth(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM alert_queue WHERE status = $1`, QueueStatusQueued).Scan(&n)
	return n, err
}

// ActiveCount counts claimed alerts, optionally scoped to one claimant
// prefix (pod id). An empty prefix counts across all replicas.
func (s *QueueService) ActiveCount(ctx context.Context, claimantPrefix string) (int, error) {
	var n int
	var err error
	if claimantPrefix == "" {
		err = s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM alert_queue WHERE status = $1`, QueueStatusClaimed).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM alert_queue
			WHERE status = $1 AND claimed_by LIKE $2 || '%'`,
			QueueStatusClaimed, claimantPrefix).Scan(&n)
	}
	return n, err
}

// RequeueStale requeues claimed alerts whose heartbeat is older than the
// threshold, parking spent ones dead. All replicas run this; the UPDATE is
// idempotent. Returns the requeued (tenant, alert) pairs for logging.
func (s *QueueService) RequeueStale(ctx context.Context, threshold time.Time, maxAttempts int) ([]QueuedAlert, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE alert_queue
		SET status = CASE WHEN attempts >= $1 THEN $2 ELSE $3 END,
		    last_error = 'orphaned: no heartbeat from ' || COALESCE(claimed_by, 'unknown'),
		    claimed_by = NULL, claimed_at = NULL, heartbeat_at = NULL
		WHERE status = $4 AND heartbeat_at IS NOT NULL AND heartbeat_at < $5
		RETURNING id, tenant_id, alert_id, alert, attempts, created_at`,
		maxAttempts, QueueStatusDead, QueueStatusQueued, QueueStatusClaimed, threshold)
	if err != nil {
		return nil, fmt.Errorf("requeue stale claims: %w", err)
	}
	defer rows.Close()
	return collectQueuedAlerts(rows)
}

// ReleaseClaims requeues everything a crashed pod still holds. Called once
// at startup before workers begin, so a restart never strands claims until
// the orphan scan catches them.
func (s *QueueService) ReleaseClaims(ctx context.Context, podID string) ([]QueuedAlert, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE alert_queue
		SET status = $1, last_error = 'released: pod ' || claimed_by || ' restarted',
		    claimed_by = NULL, claimed_at = NULL, heartbeat_at = NULL
		WHERE status = $2 AND claimed_by LIKE $3 || '%'
		RETURNING id, tenant_id, alert_id, alert, attempts, created_at`,
		QueueStatusQueued, QueueStatusClaimed, podID)
	if err != nil {
		return nil, fmt.Errorf("release claims for %s: %w", podID, err)
	}
	defer rows.Close()
	return collectQueuedAlerts(rows)
}

func collectQueuedAlerts(rows *sql.Rows) ([]QueuedAlert, error) {
	var out []QueuedAlert
	for rows.Next() {
		item, err := scanQueuedAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *item)
	}
	return out, rows.Err()
}

func scanQueuedAlert(row rowScanner) (*QueuedAlert, error) {
	var item QueuedAlert
	var payload []byte
	if err := row.Scan(&item.ID, &item.TenantID, &item.AlertID,
		&payload, &item.Attempts, &item.CreatedAt); err != nil {
		return nil, err
	}
	var alert models.Alert
	if err := json.Unmarshal(payload, &alert); err != nil {
		return nil, fmt.Errorf("decode queued alert %d: %w", item.ID, err)
	}
	item.Alert = &alert
	return &item, nil
}
