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

// PatternService persists FP patterns. The pattern document lives in one
// JSONB column; status, tenant, and expiry are projected into columns for
// the hot queries (snapshot load, expiry sweep).
type PatternService struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPatternService creates the service.
func NewPatternService(db *sql.DB) *PatternService {
	if db == nil {
		panic("NewPatternService: db must not be nil")
	}
	return &PatternService{
		db:     db,
		logger: slog.Default().With("component", "pattern-service"),
	}
}

// CreatePattern stores a new pattern in pending_review.
func (s *PatternService) CreatePattern(ctx context.Context, p *models.FPPattern) (*models.FPPattern, error) {
	if p.AlertNameRegex == "" {
		return nil, NewValidationError("alert_name_regex", "alert name regex is required")
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = models.PatternStatusPendingReview
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := s.SavePattern(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetPattern loads one pattern, nil when absent (the governance layer maps
// nil to its own not-found error).
func (s *PatternService) GetPattern(ctx context.Context, id string) (*models.FPPattern, error) {
	var definition []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT definition FROM fp_patterns WHERE id = $1`, id).Scan(&definition)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load pattern %s: %w", id, err)
	}
	return decodePattern(definition)
}

// SavePattern upserts the full pattern document and its projected columns.
func (s *PatternService) SavePattern(ctx context.Context, p *models.FPPattern) error {
	definition, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pattern %s: %w", p.ID, err)
	}
	var expiry *time.Time
	if p.ExpiryDate != nil {
		expiry = p.ExpiryDate
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO fp_patterns (id, status, tenant_id, definition, expiry_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
		  status = EXCLUDED.status,
		  tenant_id = EXCLUDED.tenant_id,
		  definition = EXCLUDED.definition,
		  expiry_date = EXCLUDED.expiry_date,
		  updated_at = EXCLUDED.updated_at`,
		p.ID, string(p.Status), p.Scope.TenantID, definition, expiry, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save pattern %s: %w", p.ID, err)
	}
	return nil
}

// ListMatchablePatterns loads the patterns the matcher snapshot holds,
// pre-filtered server-side to matchable statuses.
func (s *PatternService) ListMatchablePatterns(ctx context.Context) ([]models.FPPattern, error) {
	return s.listByStatus(ctx,
		string(models.PatternStatusApproved), string(models.PatternStatusActive))
}

// ListExpiryCandidates loads patterns whose expiry is worth sweeping.
func (s *PatternService) ListExpiryCandidates(ctx context.Context, now time.Time) ([]models.FPPattern, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT definition FROM fp_patterns
		WHERE expiry_date IS NOT NULL AND expiry_date < $1
		  AND status NOT IN ($2, $3, $4)`,
		now,
		string(models.PatternStatusExpired),
		string(models.PatternStatusRevoked),
		string(models.PatternStatusDeprecated))
	if err != nil {
		return nil, fmt.Errorf("list expiry candidates: %w", err)
	}
	return scanPatterns(rows)
}

// ListByStatus loads every pattern in the given statuses.
func (s *PatternService) ListByStatus(ctx context.Context, statuses ...models.PatternStatus) ([]models.FPPattern, error) {
	raw := make([]string, len(statuses))
	for i, st := range statuses {
		raw[i] = string(st)
	}
	return s.listByStatus(ctx, raw...)
}

func (s *PatternService) listByStatus(ctx context.Context, statuses ...string) ([]models.FPPattern, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT definition FROM fp_patterns
		WHERE status = ANY($1)
		ORDER BY created_at ASC`, statuses)
	if err != nil {
		return nil, fmt.Errorf("list patterns by status: %w", err)
	}
	return scanPatterns(rows)
}

func scanPatterns(rows *sql.Rows) ([]models.FPPattern, error) {
	defer rows.Close()
	var out []models.FPPattern
	for rows.Next() {
		var definition []byte
		if err := rows.Scan(&definition); err != nil {
			return nil, err
		}
		p, err := decodePattern(definition)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func decodePattern(definition []byte) (*models.FPPattern, error) {
	var p models.FPPattern
	if err := json.Unmarshal(definition, &p); err != nil {
		return nil, fmt.Errorf("decode pattern document: %w", err)
	}
	return &p, nil
}
