package orchestrator

import (
	"context"

	"github.com/argus-soc/argus/pkg/audit"
	"github.com/argus-soc/argus/pkg/fpgov"
	"github.com/argus-soc/argus/pkg/metrics"
	"github.com/argus-soc/argus/pkg/models"
)

// runShortCircuit evaluates the alert against the hot FP-pattern snapshot.
// A confident match auto-closes the investigation as false_positive — unless
// the tenant is in shadow mode, where the would-be decision is logged and
// the pipeline continues untouched. Returns true when the investigation was
// closed.
func (o *Orchestrator) runShortCircuit(ctx context.Context, inv *models.Investigation) (bool, error) {
	match := o.matcher.Match(ctx, fpgov.MatchInput{
		Title:      inv.Alert.Title,
		TenantID:   inv.TenantID,
		RuleFamily: inv.Alert.EffectiveRuleFamily(),
		AssetClass: inv.Alert.AssetClass,
		Datasource: inv.Alert.Source,
		Techniques: inv.Alert.Techniques,
		Entities:   &inv.Entities,
	})
	if match == nil {
		return false, nil
	}

	shadowed, err := o.shadow.InShadow(ctx, inv.TenantID, inv.Alert.EffectiveRuleFamily())
	if err != nil {
		// Unknown shadow posture means no automation: log the would-be
		// decision path and keep investigating.
		o.logger.Error("Shadow lookup failed, treating tenant as shadowed",
			"tenant_id", inv.TenantID, "error", err)
		shadowed = true
	}

	if shadowed {
		if err := o.shadow.RecordDecision(ctx, models.ShadowDecision{
			TenantID:        inv.TenantID,
			RuleFamily:      inv.Alert.EffectiveRuleFamily(),
			InvestigationID: inv.ID,
			Decision:        models.ClassificationFalsePositive,
			Confidence:      match.Confidence,
			Severity:        inv.Severity,
			RecordedAt:      o.now(),
		}); err != nil {
			o.logger.Error("Failed to record shadow decision",
				"investigation_id", inv.ID, "error", err)
		}
		inv.Append(models.NewDecision(models.AgentFPShortCircuit, models.DecisionActionShadowLogged).
			WithConfidence(match.Confidence).
			WithDetail(map[string]any{"pattern_id": match.PatternID}))
		return false, nil
	}

	inv.Classification = models.ClassificationFalsePositive
	inv.Confidence = match.Confidence
	inv.Append(models.NewDecision(models.AgentFPShortCircuit, models.DecisionActionAutoCloseFP).
		WithConfidence(match.Confidence).
		WithDetail(map[string]any{"pattern_id": match.PatternID}))
	o.emitter.Emit(ctx, audit.NewEvent(audit.EventFPShortCircuit, inv.TenantID).
		WithInvestigation(inv.ID, inv.AlertID).
		WithDecision(map[string]any{
			"pattern_id": match.PatternID,
			"confidence": match.Confidence,
		}))
	if err := o.close(ctx, inv); err != nil {
		return false, err
	}
	metrics.ObserveShortCircuit()
	return true, nil
}
