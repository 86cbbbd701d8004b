package orchestrator

import (
	"context"
	"fmt"

	"github.com/argus-soc/argus/pkg/audit"
	"github.com/argus-soc/argus/pkg/models"
)

// Playbook is one entry of the response playbook registry. All populated
// criteria must match; empty criteria are wildcards.
type Playbook struct {
	ID             string                     `yaml:"id"`
	Name           string                     `yaml:"name"`
	Classification string                     `yaml:"classification"`
	Severities     []string                   `yaml:"severities"`
	Techniques     []string                   `yaml:"techniques"`
	Actions        []models.RecommendedAction `yaml:"actions"`
}

// Matches scores the playbook against a classified investigation. The score
// is the fraction of populated criteria; zero populated criteria never
// matches.
func (p Playbook) Matches(inv *models.Investigation) (float64, bool) {
	total, matched := 0, 0

	if p.Classification != "" {
		total++
		if p.Classification == inv.Classification {
			matched++
		}
	}
	if len(p.Severities) > 0 {
		total++
		for _, s := range p.Severities {
			if models.Severity(s) == inv.Severity {
				matched++
				break
			}
		}
	}
	if len(p.Techniques) > 0 {
		total++
		alertTechniques := make(map[string]bool, len(inv.Alert.Techniques))
		for _, t := range inv.Alert.Techniques {
			alertTechniques[t] = true
		}
		for _, t := range p.Techniques {
			if alertTechniques[t] {
				matched++
				break
			}
		}
	}
	if total == 0 || matched < total {
		return 0, false
	}
	return 1.0, true
}

// openApprovalGate creates the approval record for an AWAITING_HUMAN
// investigation. Guarded by the decision chain so a resumed investigation
// never opens a second gate.
func (o *Orchestrator) openApprovalGate(ctx context.Context, inv *models.Investigation) error {
	if inv.HasDecision(models.AgentOrchestrator, models.DecisionActionApprovalAsked) {
		return nil
	}

	reason := "low-confidence verdict at escalatable severity"
	for _, a := range inv.RecommendedActions {
		if a.Tier.RequiresApproval() {
			reason = "destructive action recommended"
			break
		}
	}
	if inv.AllTelemetryUntrusted() {
		reason = "all adversarial-ML telemetry untrusted"
	}

	req := &models.ApprovalRequest{
		ID:              o.newID(),
		InvestigationID: inv.ID,
		TenantID:        inv.TenantID,
		Actions:         inv.RecommendedActions,
		Reason:          reason,
		Status:          models.ApprovalStatusPending,
		RequestedAt:     o.now(),
		Deadline:        o.now().Add(o.cfg.ApprovalWindow()),
	}
	if err := o.approvals.Create(ctx, req); err != nil {
		return fmt.Errorf("create approval request: %w", err)
	}

	inv.Append(models.NewDecision(models.AgentOrchestrator, models.DecisionActionApprovalAsked).
		WithDetail(map[string]any{
			"approval_id": req.ID,
			"reason":      reason,
			"deadline":    req.Deadline,
		}))
	if err := o.store.Upsert(ctx, inv); err != nil {
		return fmt.Errorf("persist approval gate: %w", err)
	}

	o.emitter.Emit(ctx, audit.NewEvent(audit.EventApprovalRequested, inv.TenantID).
		WithInvestigation(inv.ID, inv.AlertID).
		WithContext(map[string]any{
			"approval_id": req.ID,
			"reason":      reason,
			"deadline":    req.Deadline,
		}))
	if o.notifier != nil {
		o.notifier.NotifyApprovalRequested(ctx, req, inv)
	}
	return nil
}

// runResponse merges playbook actions with the reasoning recommendations and
// dispatches them by tier. Shadow-logged investigations suppress every
// action. Dispatch is at-most-once per (investigation, action key) via the
// decision chain, so a resumed RESPONDING stage never re-fires.
func (o *Orchestrator) runResponse(ctx context.Context, inv *models.Investigation) error {
	o.matchPlaybooks(inv)

	actions := dedupeActions(inv.RecommendedActions)
	inv.RecommendedActions = actions

	shadowed := inv.HasDecision(models.AgentOrchestrator, models.DecisionActionShadowLogged) ||
		inv.HasDecision(models.AgentFPShortCircuit, models.DecisionActionShadowLogged)
	approved := inv.HasDecision(models.AgentOrchestrator, "approval_granted")
	dispatched := inv.DispatchedActionKeys()

	for _, action := range actions {
		key := action.Key()
		if dispatched[key] {
			continue
		}
		switch {
		case shadowed:
			o.suppress(ctx, inv, action, "tenant in shadow mode")
		case action.Tier.RequiresApproval() && !approved:
			o.suppress(ctx, inv, action, "destructive action not approved")
		default:
			o.dispatch(ctx, inv, action)
		}
	}
	return nil
}

// matchPlaybooks appends actions from every matching playbook and records
// the matches on the investigation.
func (o *Orchestrator) matchPlaybooks(inv *models.Investigation) {
	for _, p := range o.cfg.Playbooks {
		score, ok := p.Matches(inv)
		if !ok {
			continue
		}
		inv.PlaybookMatches = append(inv.PlaybookMatches, models.PlaybookMatch{
			PlaybookID: p.ID,
			Name:       p.Name,
			Score:      score,
		})
		inv.RecommendedActions = append(inv.RecommendedActions, p.Actions...)
	}
}

// dedupeActions keeps the first occurrence per action key. When duplicates
// disagree on tier, the stricter tier wins.
func dedupeActions(actions []models.RecommendedAction) []models.RecommendedAction {
	index := make(map[string]int, len(actions))
	out := make([]models.RecommendedAction, 0, len(actions))
	for _, a := range actions {
		if i, ok := index[a.Key()]; ok {
			if a.Tier > out[i].Tier {
				out[i].Tier = a.Tier
			}
			continue
		}
		index[a.Key()] = len(out)
		out = append(out, a)
	}
	return out
}

// dispatch executes one action: publishes the dispatch record, appends the
// at-most-once chain entry, and notifies for execute-and-notify tiers.
func (o *Orchestrator) dispatch(ctx context.Context, inv *models.Investigation, action models.RecommendedAction) {
	o.emitter.EmitDispatch(ctx, inv.TenantID, models.ActionDispatch{
		InvestigationID: inv.ID,
		Action:          action.Action,
		Target:          action.Target,
		Tier:            action.Tier,
		Status:          models.DispatchStatusExecuted,
		Timestamp:       o.now(),
	})
	inv.Append(models.NewDecision(models.AgentResponse, models.DecisionActionDispatched).
		WithDetail(map[string]any{
			"action_key": action.Key(),
			"tier":       int(action.Tier),
		}))
	o.emitter.Emit(ctx, audit.NewEvent(audit.EventActionExecuted, inv.TenantID).
		WithInvestigation(inv.ID, inv.AlertID).
		WithOutcome(map[string]any{
			"action": action.Action,
			"target": action.Target,
			"tier":   int(action.Tier),
		}))

	if action.Tier == models.TierConditional {
		o.emitter.Emit(ctx, audit.NewEvent(audit.EventActionNotified, inv.TenantID).
			WithInvestigation(inv.ID, inv.AlertID).
			WithOutcome(map[string]any{"action": action.Action, "target": action.Target}))
		if o.notifier != nil {
			o.notifier.NotifyActionExecuted(ctx, inv, action)
		}
	}
}

// suppress records one withheld action.
func (o *Orchestrator) suppress(ctx context.Context, inv *models.Investigation, action models.RecommendedAction, reason string) {
	inv.Append(models.NewDecision(models.AgentResponse, models.DecisionActionSuppressed).
		WithDetail(map[string]any{
			"action_key": action.Key(),
			"reason":     reason,
		}))
	o.emitter.Emit(ctx, audit.NewEvent(audit.EventActionSuppressed, inv.TenantID).
		WithInvestigation(inv.ID, inv.AlertID).
		WithOutcome(map[string]any{
			"action": action.Action,
			"target": action.Target,
			"reason": reason,
		}))
}
