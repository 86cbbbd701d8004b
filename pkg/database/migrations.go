package database

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateGINIndexes creates the JSONB and full-text GIN indexes that
// golang-migrate's plain SQL files keep separate so they can be re-applied
// idempotently on every start.
func CreateGINIndexes(ctx context.Context, db *sql.DB) error {
	// Entity and technique containment queries over the investigation snapshot.
	_, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_investigations_state_blob_gin
		ON investigations USING gin(full_state_blob jsonb_path_ops)`)
	if err != nil {
		return fmt.Errorf("failed to create investigations state blob GIN index: %w", err)
	}

	// Audit payload containment, used by compliance exports.
	_, err = db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_payload_gin
		ON audit_events USING gin(payload jsonb_path_ops)`)
	if err != nil {
		return fmt.Errorf("failed to create audit payload GIN index: %w", err)
	}

	return nil
}
