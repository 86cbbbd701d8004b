package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/argus-soc/argus/pkg/models"
)

// ApprovalService persists human-approval requests and their resolutions.
type ApprovalService struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewApprovalService creates the service.
func NewApprovalService(db *sql.DB) *ApprovalService {
	if db == nil {
		panic("NewApprovalService: db must not be nil")
	}
	return &ApprovalService{
		db:     db,
		logger: slog.Default().With("component", "approval-service"),
	}
}

// Create stores a new pending request with its deadline. The request is
// filled in place (id, status, requested-at).
func (s *ApprovalService) Create(ctx context.Context, req *models.ApprovalRequest) error {
	if req.InvestigationID == "" {
		return NewValidationError("investigation_id", "investigation id is required")
	}
	if req.Deadline.IsZero() {
		return NewValidationError("deadline", "deadline is required")
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	req.Status = models.ApprovalStatusPending
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}

	actions, err := json.Marshal(req.Actions)
	if err != nil {
		return fmt.Errorf("marshal approval actions: %w", err)
	}
	if string(actions) == "null" {
		actions = []byte("[]")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO approvals
		  (id, investigation_id, tenant_id, status, reason, actions, requested_at, deadline)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		req.ID, req.InvestigationID, req.TenantID, string(req.Status),
		req.Reason, actions, req.RequestedAt, req.Deadline)
	if err != nil {
		return fmt.Errorf("create approval request: %w", err)
	}
	return nil
}

// Get loads one request by id.
func (s *ApprovalService) Get(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	return s.queryOne(ctx, `WHERE id = $1`, id)
}

// PendingForInvestigation returns the open request for an investigation,
// ErrNotFound when none is pending.
func (s *ApprovalService) PendingForInvestigation(ctx context.Context, investigationID string) (*models.ApprovalRequest, error) {
	return s.queryOne(ctx,
		`WHERE investigation_id = $1 AND status = 'pending' ORDER BY requested_at DESC LIMIT 1`,
		investigationID)
}

// Resolve records the analyst verdict on a pending request. Resolving a
// non-pending request is a conflict, not an update.
func (s *ApprovalService) Resolve(ctx context.Context, id string, approved bool, resolvedBy string) (*models.ApprovalRequest, error) {
	status := models.ApprovalStatusRejected
	if approved {
		status = models.ApprovalStatusApproved
	}
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE approvals
		SET status = $1, resolved_by = $2, resolved_at = $3
		WHERE id = $4 AND status = 'pending'`,
		string(status), resolvedBy, now, id)
	if err != nil {
		return nil, fmt.Errorf("resolve approval %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		// Either absent or already resolved/expired.
		existing, getErr := s.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return existing, ErrConcurrentModification
	}
	return s.Get(ctx, id)
}

// ExpirePending marks every pending request past its deadline expired and
// returns them, for the deadline sweep.
func (s *ApprovalService) ExpirePending(ctx context.Context, now time.Time) ([]models.ApprovalRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE approvals
		SET status = 'expired', resolved_at = $1
		WHERE status = 'pending' AND deadline < $1
		RETURNING id, investigation_id, tenant_id, status, reason, actions,
		          requested_at, deadline, resolved_by, resolved_at`,
		now)
	if err != nil {
		return nil, fmt.Errorf("expire pending approvals: %w", err)
	}
	defer rows.Close()

	var out []models.ApprovalRequest
	for rows.Next() {
		req, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

func (s *ApprovalService) queryOne(ctx context.Context, where string, args ...any) (*models.ApprovalRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, investigation_id, tenant_id, status, reason, actions,
		       requested_at, deadline, resolved_by, resolved_at
		FROM approvals `+where, args...)
	req, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load approval: %w", err)
	}
	return req, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApproval(row rowScanner) (*models.ApprovalRequest, error) {
	var req models.ApprovalRequest
	var status string
	var actions []byte
	var resolvedBy sql.NullString
	var resolvedAt sql.NullTime
	if err := row.Scan(&req.ID, &req.InvestigationID, &req.TenantID, &status,
		&req.Reason, &actions, &req.RequestedAt, &req.Deadline,
		&resolvedBy, &resolvedAt); err != nil {
		return nil, err
	}
	req.Status = models.ApprovalStatus(status)
	if err := json.Unmarshal(actions, &req.Actions); err != nil {
		return nil, fmt.Errorf("decode approval actions: %w", err)
	}
	if resolvedBy.Valid {
		req.ResolvedBy = resolvedBy.String
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		req.ResolvedAt = &t
	}
	return &req, nil
}
