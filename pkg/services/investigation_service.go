package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/argus-soc/argus/pkg/models"
)

// InvestigationService persists investigation snapshots. Each transition is
// one atomic upsert of the full state blob plus the decision chain, keyed by
// investigation id, so a crash between transitions loses at most the stage
// in flight.
type InvestigationService struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewInvestigationService creates the service.
func NewInvestigationService(db *sql.DB) *InvestigationService {
	if db == nil {
		panic("NewInvestigationService: db must not be nil")
	}
	return &InvestigationService{
		db:     db,
		logger: slog.Default().With("component", "investigation-service"),
	}
}

// Upsert writes the full snapshot. Idempotent per investigation id.
func (s *InvestigationService) Upsert(ctx context.Context, inv *models.Investigation) error {
	blob, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("marshal investigation %s: %w", inv.ID, err)
	}
	chain, err := json.Marshal(inv.DecisionChain)
	if err != nil {
		return fmt.Errorf("marshal decision chain %s: %w", inv.ID, err)
	}
	if chain == nil || string(chain) == "null" {
		chain = []byte("[]")
	}

	inv.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO investigations
		  (id, alert_id, tenant_id, state, classification, confidence, severity,
		   requires_human_approval, full_state_blob, decision_chain, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
		  state = EXCLUDED.state,
		  classification = EXCLUDED.classification,
		  confidence = EXCLUDED.confidence,
		  severity = EXCLUDED.severity,
		  requires_human_approval = EXCLUDED.requires_human_approval,
		  full_state_blob = EXCLUDED.full_state_blob,
		  decision_chain = EXCLUDED.decision_chain,
		  updated_at = EXCLUDED.updated_at`,
		inv.ID, inv.AlertID, inv.TenantID, string(inv.State), inv.Classification,
		inv.Confidence, string(inv.Severity), inv.RequiresApproval,
		blob, chain, inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert investigation %s: %w", inv.ID, err)
	}
	return nil
}

// GetByID loads one investigation from its snapshot blob.
func (s *InvestigationService) GetByID(ctx context.Context, id string) (*models.Investigation, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT full_state_blob FROM investigations WHERE id = $1`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load investigation %s: %w", id, err)
	}
	return decodeInvestigation(blob)
}

// GetByTenantAlert resolves the idempotency key (tenant_id, alert_id).
// Returns ErrNotFound when the alert has never been seen.
func (s *InvestigationService) GetByTenantAlert(ctx context.Context, tenantID, alertID string) (*models.Investigation, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT full_state_blob FROM investigations WHERE tenant_id = $1 AND alert_id = $2`,
		tenantID, alertID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load investigation for alert %s/%s: %w", tenantID, alertID, err)
	}
	return decodeInvestigation(blob)
}

// ListResumable returns the ids of non-terminal investigations last touched
// before staleBefore and without a live queue claim, oldest first, for crash
// recovery. The staleness cutoff and the claim check keep the sweep off
// investigations a worker is driving right now; crashed workers are handled
// by heartbeat-based orphan recovery, which releases their claims.
func (s *InvestigationService) ListResumable(ctx context.Context, staleBefore time.Time, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id FROM investigations i
		WHERE i.state NOT IN ($1, $2)
		  AND i.updated_at < $3
		  AND NOT EXISTS (
		      SELECT 1 FROM alert_queue q
		      WHERE q.tenant_id = i.tenant_id
		        AND q.alert_id = i.alert_id
		        AND q.status = $4)
		ORDER BY i.updated_at ASC
		LIMIT $5`,
		string(models.StateClosed), string(models.StateFailed),
		staleBefore, QueueStatusClaimed, limit)
	if err != nil {
		return nil, fmt.Errorf("list resumable investigations: %w", err)
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

// ReopenByPattern resets every investigation auto-closed by the pattern back
// to PARSING, appending a reopened decision entry, and returns their ids.
// Implements the governance rollback contract.
func (s *InvestigationService) ReopenByPattern(ctx context.Context, patternID string) ([]string, error) {
	probe, err := json.Marshal([]map[string]any{{
		"action": models.DecisionActionAutoCloseFP,
		"detail": map[string]any{"pattern_id": patternID},
	}})
	if err != nil {
		return nil, fmt.Errorf("marshal rollback probe: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT full_state_blob FROM investigations
		WHERE state = $1 AND decision_chain @> $2::jsonb`,
		string(models.StateClosed), string(probe))
	if err != nil {
		return nil, fmt.Errorf("find investigations closed by pattern %s: %w", patternID, err)
	}
	var affected []*models.Investigation
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			rows.Close()
			return nil, err
		}
		inv, err := decodeInvestigation(blob)
		if err != nil {
			rows.Close()
			return nil, err
		}
		affected = append(affected, inv)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var reopened []string
	for _, inv := range affected {
		inv.State = models.StateParsing
		inv.Classification = ""
		inv.Append(models.NewDecision(models.AgentGovernance, models.DecisionActionReopened).
			WithDetail(map[string]any{"pattern_id": patternID}))
		if err := s.Upsert(ctx, inv); err != nil {
			return reopened, fmt.Errorf("reopen investigation %s: %w", inv.ID, err)
		}
		reopened = append(reopened, inv.ID)
	}
	s.logger.Info("Reopened investigations for revoked pattern",
		"pattern_id", patternID, "count", len(reopened))
	return reopened, nil
}

// IndexClosed writes the similarity projection for a closed investigation.
func (s *InvestigationService) IndexClosed(ctx context.Context, inv *models.Investigation, rareButImportant bool) error {
	techniques := make([]string, 0)
	for _, d := range inv.Adversarial {
		if d.TechniqueID != "" {
			techniques = append(techniques, d.TechniqueID)
		}
	}
	ruleFamily, datasource := "", ""
	if inv.Alert != nil {
		ruleFamily = inv.Alert.EffectiveRuleFamily()
		datasource = inv.Alert.Source
	}

	entities, err := jsonStrings(inv.Entities.EntityIDs())
	if err != nil {
		return err
	}
	techniquesJSON, err := jsonStrings(techniques)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO incident_index
		  (investigation_id, tenant_id, entity_values, techniques, rule_family,
		   datasource, classification, rare_but_important, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (investigation_id) DO UPDATE SET
		  classification = EXCLUDED.classification,
		  rare_but_important = EXCLUDED.rare_but_important,
		  closed_at = EXCLUDED.closed_at`,
		inv.ID, inv.TenantID, entities, techniquesJSON,
		ruleFamily, datasource, inv.Classification, rareButImportant, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("index closed investigation %s: %w", inv.ID, err)
	}
	return nil
}

// SimilarCandidates loads the tenant's recent incident projections for
// similarity ranking.
func (s *InvestigationService) SimilarCandidates(ctx context.Context, tenantID string, since time.Time, limit int) ([]IncidentProjection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT investigation_id, entity_values, techniques, rule_family,
		       datasource, classification, rare_but_important, closed_at
		FROM incident_index
		WHERE tenant_id = $1 AND (closed_at >= $2 OR rare_but_important)
		ORDER BY closed_at DESC
		LIMIT $3`,
		tenantID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("load similarity candidates: %w", err)
	}
	defer rows.Close()

	var out []IncidentProjection
	for rows.Next() {
		var p IncidentProjection
		var entities, techniques []byte
		if err := rows.Scan(&p.InvestigationID, &entities, &techniques, &p.RuleFamily,
			&p.Datasource, &p.Classification, &p.RareButImportant, &p.ClosedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(entities, &p.EntityValues); err != nil {
			return nil, fmt.Errorf("decode entity values: %w", err)
		}
		if err := json.Unmarshal(techniques, &p.Techniques); err != nil {
			return nil, fmt.Errorf("decode techniques: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// IncidentProjection is one row of the similarity index.
type IncidentProjection struct {
	InvestigationID  string
	EntityValues     []string
	Techniques       []string
	RuleFamily       string
	Datasource       string
	Classification   string
	RareButImportant bool
	ClosedAt         time.Time
}

// jsonStrings marshals a string slice for a JSONB column, never "null".
func jsonStrings(values []string) ([]byte, error) {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("marshal string list: %w", err)
	}
	return data, nil
}

func decodeInvestigation(blob []byte) (*models.Investigation, error) {
	var inv models.Investigation
	if err := json.Unmarshal(blob, &inv); err != nil {
		return nil, fmt.Errorf("decode investigation snapshot: %w", err)
	}
	return &inv, nil
}
