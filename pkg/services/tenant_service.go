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

// TenantService persists per-tenant governance configuration.
type TenantService struct {
	db *sql.DB
}

// NewTenantService creates the service.
func NewTenantService(db *sql.DB) *TenantService {
	if db == nil {
		panic("NewTenantService: db must not be nil")
	}
	return &TenantService{db: db}
}

// GetTenantConfig loads one tenant's config, nil when the tenant has never
// been configured (callers apply the shadow-by-default policy).
func (s *TenantService) GetTenantConfig(ctx context.Context, tenantID string) (*models.TenantConfig, error) {
	var config []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT config FROM tenants WHERE tenant_id = $1`, tenantID).Scan(&config)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load tenant config %s: %w", tenantID, err)
	}
	var cfg models.TenantConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		return nil, fmt.Errorf("decode tenant config %s: %w", tenantID, err)
	}
	return &cfg, nil
}

// SaveTenantConfig upserts one tenant's config document.
func (s *TenantService) SaveTenantConfig(ctx context.Context, cfg *models.TenantConfig) error {
	if cfg.TenantID == "" {
		return NewValidationError("tenant_id", "tenant id is required")
	}
	cfg.UpdatedAt = time.Now().UTC()
	config, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal tenant config %s: %w", cfg.TenantID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tenants (tenant_id, config, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id) DO UPDATE SET
		  config = EXCLUDED.config,
		  updated_at = EXCLUDED.updated_at`,
		cfg.TenantID, config, cfg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save tenant config %s: %w", cfg.TenantID, err)
	}
	return nil
}
