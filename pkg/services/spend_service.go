package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/argus-soc/argus/pkg/models"
)

// SpendService appends LLM spend records to the durable ledger. The cache
// counter enforces the caps; this table is the audit trail and the source
// for monthly reporting.
type SpendService struct {
	db *sql.DB
}

// NewSpendService creates the service.
func NewSpendService(db *sql.DB) *SpendService {
	if db == nil {
		panic("NewSpendService: db must not be nil")
	}
	return &SpendService{db: db}
}

// RecordSpend appends one record.
func (s *SpendService) RecordSpend(ctx context.Context, rec models.SpendRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO spend_ledger (tenant_id, task_type, model_id, cost_usd, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		rec.TenantID, rec.TaskType, rec.ModelID, rec.CostUSD, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("append spend record: %w", err)
	}
	return nil
}

// MonthlyTotal derives one tenant's ledger total for the month containing t.
// Used for reconciliation against the cache counter.
func (s *SpendService) MonthlyTotal(ctx context.Context, tenantID string, t time.Time) (float64, error) {
	start := time.Date(t.UTC().Year(), t.UTC().Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	var total float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(cost_usd), 0)
		FROM spend_ledger
		WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3`,
		tenantID, start, end).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum monthly spend %s: %w", tenantID, err)
	}
	return total, nil
}
