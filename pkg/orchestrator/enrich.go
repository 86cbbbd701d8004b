package orchestrator

import (
	"context"
	"sync"

	"github.com/argus-soc/argus/pkg/audit"
	"github.com/argus-soc/argus/pkg/models"
)

// runEnrichment fans out the sibling agents concurrently against the
// immutable snapshot and merges their deltas in sibling order. A failed
// sibling contributes an empty delta and never cancels the others.
func (o *Orchestrator) runEnrichment(ctx context.Context, inv *models.Investigation) {
	deltas := make([]models.EnrichmentDelta, len(o.enrichers))
	errs := make([]error, len(o.enrichers))

	var wg sync.WaitGroup
	for i, agent := range o.enrichers {
		wg.Add(1)
		go func(i int, agent EnrichmentAgent) {
			defer wg.Done()
			deltas[i], errs[i] = agent.Enrich(ctx, inv)
		}(i, agent)
	}
	wg.Wait()

	for i, agent := range o.enrichers {
		if errs[i] != nil {
			o.logger.Warn("Enrichment sibling failed",
				"investigation_id", inv.ID,
				"agent", agent.ID(),
				"error", errs[i])
			inv.Append(models.NewDecision(agent.ID(), models.DecisionActionError).
				WithDetail(map[string]any{"error": errs[i].Error()}))
			o.emitter.Emit(ctx, audit.NewEvent(audit.EventEnrichmentFailed, inv.TenantID).
				WithInvestigation(inv.ID, inv.AlertID).
				WithContext(map[string]any{
					"agent": agent.ID(),
					"error": errs[i].Error(),
				}))
			continue
		}
		inv.MergeDelta(deltas[i])
		inv.Append(models.NewDecision(agent.ID(), "enriched").
			WithDetail(map[string]any{
				"ioc_matches":      len(deltas[i].IOCMatches),
				"behavioural":      len(deltas[i].Behavioural),
				"exposures":        len(deltas[i].Exposures),
				"adversarial":      len(deltas[i].Adversarial),
				"similar_findings": len(deltas[i].SimilarFindings),
				"queries":          deltas[i].QueriesExecuted,
			}))
	}

	o.emitter.Emit(ctx, audit.NewEvent(audit.EventEnrichmentCompleted, inv.TenantID).
		WithInvestigation(inv.ID, inv.AlertID).
		WithContext(map[string]any{
			"ioc_matches":       len(inv.IOCMatches),
			"behavioural":       len(inv.Behavioural),
			"exposures":         len(inv.Exposures),
			"adversarial":       len(inv.Adversarial),
			"similar_incidents": len(inv.SimilarIncidents),
			"risk_state":        string(inv.RiskState),
		}))
}
