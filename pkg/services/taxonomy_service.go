package services

import (
	"context"
	"database/sql"
	"fmt"
)

// TaxonomyService reads the known-technique set the gateway's taxonomy
// validator is built from. Read-mostly; loaded once at start and on
// explicit refresh.
type TaxonomyService struct {
	db *sql.DB
}

// NewTaxonomyService creates the service.
func NewTaxonomyService(db *sql.DB) *TaxonomyService {
	if db == nil {
		panic("NewTaxonomyService: db must not be nil")
	}
	return &TaxonomyService{db: db}
}

// KnownTechniqueIDs loads every technique id (ATT&CK and ATLAS).
func (s *TaxonomyService) KnownTechniqueIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT technique_id FROM taxonomy_techniques`)
	if err != nil {
		return nil, fmt.Errorf("load technique taxonomy: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SeedTechniques inserts ids not yet present. Used by deployment tooling
// and tests.
func (s *TaxonomyService) SeedTechniques(ctx context.Context, ids map[string]string) error {
	for id, name := range ids {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO taxonomy_techniques (technique_id, name)
			VALUES ($1, $2)
			ON CONFLICT (technique_id) DO NOTHING`, id, name); err != nil {
			return fmt.Errorf("seed technique %s: %w", id, err)
		}
	}
	return nil
}
