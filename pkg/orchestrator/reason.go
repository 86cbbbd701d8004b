package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/argus-soc/argus/pkg/audit"
	"github.com/argus-soc/argus/pkg/gateway"
	"github.com/argus-soc/argus/pkg/models"
)

// reasoningSchema validates the classifier output.
var reasoningSchema = []byte(`{
	"type": "object",
	"required": ["classification", "confidence", "severity"],
	"properties": {
		"classification": {"type": "string"},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"severity": {"type": "string"},
		"attack_techniques": {"type": "array", "items": {"type": "string"}},
		"atlas_techniques": {"type": "array", "items": {"type": "string"}},
		"recommended_actions": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["action", "target", "tier"],
				"properties": {
					"action": {"type": "string"},
					"target": {"type": "string"},
					"tier": {"type": "integer", "minimum": 0, "maximum": 2},
					"rationale": {"type": "string"}
				}
			}
		},
		"reasoning": {"type": "string"}
	}
}`)

const reasoningPrompt = `You are a SOC investigation analyst. Given the alert
and its enrichment evidence, classify the investigation. Respond with JSON
only:
{"classification": "true_positive|false_positive|benign_true_positive|suspicious",
 "confidence": 0.0-1.0, "severity": "critical|high|medium|low|informational",
 "attack_techniques": ["T...."], "atlas_techniques": ["AML.T...."],
 "recommended_actions": [{"action": "...", "target": "...", "tier": 0-2,
 "rationale": "..."}], "reasoning": "..."}`

// reasoningVerdict mirrors the Tier-1 output JSON.
type reasoningVerdict struct {
	Classification     string   `json:"classification"`
	Confidence         float64  `json:"confidence"`
	Severity           string   `json:"severity"`
	AttackTechniques   []string `json:"attack_techniques"`
	AtlasTechniques    []string `json:"atlas_techniques"`
	RecommendedActions []struct {
		Action    string `json:"action"`
		Target    string `json:"target"`
		Tier      int    `json:"tier"`
		Rationale string `json:"rationale"`
	} `json:"recommended_actions"`
	Reasoning string `json:"reasoning"`
}

// runReasoning consolidates the enrichment evidence and classifies via
// Tier-1, escalating to Tier-1+ when the verdict is low-confidence on an
// escalatable severity. The escalated verdict supersedes only when its
// confidence strictly increases. Errors here are unrecoverable for the
// investigation; the gateway has already absorbed the recoverable ones.
func (o *Orchestrator) runReasoning(ctx context.Context, inv *models.Investigation) error {
	verdict, err := o.classify(ctx, inv, gateway.Tier1)
	if err != nil {
		return fmt.Errorf("reasoning: %w", err)
	}
	o.applyVerdict(inv, verdict, models.AgentReasoning)
	o.emitter.Emit(ctx, audit.NewEvent(audit.EventClassificationRendered, inv.TenantID).
		WithInvestigation(inv.ID, inv.AlertID).
		WithDecision(map[string]any{
			"classification": verdict.Classification,
			"confidence":     verdict.Confidence,
			"tier":           string(gateway.Tier1),
		}))

	if verdict.Confidence >= escalationConfidence || !inv.Severity.IsEscalatable() {
		return nil
	}

	o.emitter.Emit(ctx, audit.NewEvent(audit.EventEscalationTriggered, inv.TenantID).
		WithInvestigation(inv.ID, inv.AlertID).
		WithContext(map[string]any{
			"confidence": verdict.Confidence,
			"severity":   string(inv.Severity),
		}))
	inv.Append(models.NewDecision(models.AgentOrchestrator, models.DecisionActionEscalated).
		WithConfidence(verdict.Confidence))

	escalated, err := o.classify(ctx, inv, gateway.Tier1Plus)
	if err != nil {
		// A breached spend cap ends the investigation no matter which
		// call hit it.
		if errors.Is(err, gateway.ErrSpendExceeded) {
			return fmt.Errorf("escalated reasoning: %w", err)
		}
		// Otherwise the Tier-1 verdict stands; escalation is best-effort.
		o.logger.Warn("Escalated reasoning call failed, keeping tier-1 verdict",
			"investigation_id", inv.ID, "error", err)
		return nil
	}
	if escalated.Confidence > verdict.Confidence {
		o.applyVerdict(inv, escalated, models.AgentReasoning)
		o.emitter.Emit(ctx, audit.NewEvent(audit.EventClassificationSupersed, inv.TenantID).
			WithInvestigation(inv.ID, inv.AlertID).
			WithDecision(map[string]any{
				"classification": escalated.Classification,
				"confidence":     escalated.Confidence,
				"superseded":     verdict.Confidence,
			}))
	}
	return nil
}

// classify performs one gateway reasoning call at the given tier.
func (o *Orchestrator) classify(ctx context.Context, inv *models.Investigation, tier gateway.Tier) (*reasoningVerdict, error) {
	resp, err := o.llm.Complete(ctx, gateway.Request{
		TaskType:    "reasoning",
		Tier:        tier,
		TenantID:    inv.TenantID,
		TaskPrompt:  reasoningPrompt,
		UserContent: gateway.WrapEvidence("alert", inv.Alert.Title+"\n"+inv.Alert.Description),
		Context:     consolidateEvidence(inv),
		Schema:      reasoningSchema,
	})
	if err != nil {
		return nil, err
	}
	inv.LLMCalls++
	inv.CostUSD += resp.Metrics.CostUSD

	var verdict reasoningVerdict
	if err := json.Unmarshal([]byte(resp.Content), &verdict); err != nil {
		return nil, fmt.Errorf("reasoning output is not valid JSON: %w", err)
	}
	if verdict.Classification == "" {
		return nil, fmt.Errorf("reasoning output missing classification")
	}
	return &verdict, nil
}

// applyVerdict folds a reasoning verdict into the investigation.
func (o *Orchestrator) applyVerdict(inv *models.Investigation, v *reasoningVerdict, agentID string) {
	inv.Classification = v.Classification
	inv.Confidence = v.Confidence
	if sev := models.Severity(v.Severity); sev.IsValid() {
		inv.Severity = sev
	}
	inv.RecommendedActions = inv.RecommendedActions[:0]
	for _, a := range v.RecommendedActions {
		tier := models.ActionTier(a.Tier)
		if !tier.IsValid() {
			tier = models.TierDestructive // unknown tiers get the strictest gate
		}
		inv.RecommendedActions = append(inv.RecommendedActions, models.RecommendedAction{
			Action:    a.Action,
			Target:    a.Target,
			Tier:      tier,
			Rationale: a.Rationale,
		})
	}
	inv.Append(models.NewDecision(agentID, "classified").
		WithConfidence(v.Confidence).
		WithTrust(inv.TrustSummary()).
		WithDetail(map[string]any{
			"classification": v.Classification,
			"severity":       v.Severity,
			"actions":        len(v.RecommendedActions),
		}))
}

// routeAfterReasoning decides where the classified investigation goes:
// straight to response, into the human gate, or — for shadow tenants —
// into a suppressed response with the would-be decision logged.
func (o *Orchestrator) routeAfterReasoning(ctx context.Context, inv *models.Investigation) (models.State, error) {
	shadowed, err := o.shadow.InShadow(ctx, inv.TenantID, inv.Alert.EffectiveRuleFamily())
	if err != nil {
		o.logger.Error("Shadow lookup failed, treating tenant as shadowed",
			"tenant_id", inv.TenantID, "error", err)
		shadowed = true
	}
	if shadowed {
		if err := o.shadow.RecordDecision(ctx, models.ShadowDecision{
			TenantID:        inv.TenantID,
			RuleFamily:      inv.Alert.EffectiveRuleFamily(),
			InvestigationID: inv.ID,
			Decision:        inv.Classification,
			Confidence:      inv.Confidence,
			Severity:        inv.Severity,
			RecordedAt:      o.now(),
		}); err != nil {
			o.logger.Error("Failed to record shadow decision",
				"investigation_id", inv.ID, "error", err)
		}
		inv.Append(models.NewDecision(models.AgentOrchestrator, models.DecisionActionShadowLogged).
			WithConfidence(inv.Confidence))
		return models.StateResponding, nil
	}

	// Untrusted telemetry forces the human gate regardless of confidence.
	if inv.AllTelemetryUntrusted() {
		inv.RequiresApproval = true
		o.emitter.Emit(ctx, audit.NewEvent(audit.EventTelemetryUntrusted, inv.TenantID).
			WithInvestigation(inv.ID, inv.AlertID).
			WithContext(map[string]any{"detections": len(inv.Adversarial)}))
		return models.StateAwaitingHuman, nil
	}

	if o.needsApproval(inv) {
		inv.RequiresApproval = true
		return models.StateAwaitingHuman, nil
	}
	return models.StateResponding, nil
}

// needsApproval implements the gate triggers: any destructive action, or a
// low-confidence verdict at an escalatable severity.
func (o *Orchestrator) needsApproval(inv *models.Investigation) bool {
	for _, a := range inv.RecommendedActions {
		if a.Tier.RequiresApproval() {
			return true
		}
	}
	return inv.Confidence < escalationConfidence && inv.Severity.IsEscalatable()
}

// consolidateEvidence renders the enrichment findings as the retrieval
// context for the reasoning call.
func consolidateEvidence(inv *models.Investigation) string {
	var b strings.Builder

	if len(inv.IOCMatches) > 0 {
		b.WriteString("Threat intelligence matches:\n")
		for _, m := range inv.IOCMatches {
			fmt.Fprintf(&b, "- %s: %s (feed %s, confidence %.2f)\n", m.IOC, m.Verdict, m.Feed, m.Confidence)
		}
	}
	if len(inv.Behavioural) > 0 {
		b.WriteString("Behavioural observations:\n")
		for _, obs := range inv.Behavioural {
			fmt.Fprintf(&b, "- %s: baseline %s, observed %s (deviation %.2f)\n",
				obs.EntityValue, obs.Baseline, obs.Observed, obs.Deviation)
		}
	}
	if len(inv.Exposures) > 0 {
		b.WriteString("Exposure correlations:\n")
		for _, e := range inv.Exposures {
			fmt.Fprintf(&b, "- %s: %s %s severity %s (%.1f)\n",
				e.EntityValue, e.Kind, e.ExposureID, e.Severity, e.Score)
		}
	}
	if len(inv.Adversarial) > 0 {
		b.WriteString("Adversarial-ML detections:\n")
		for _, d := range inv.Adversarial {
			fmt.Fprintf(&b, "- %s (%s) trust=%s attestation=%s confidence %.2f\n",
				d.TechniqueID, d.TechniqueName, d.TelemetryTrust, d.AttestationStatus, d.Confidence)
		}
	}
	if len(inv.SimilarIncidents) > 0 {
		b.WriteString("Similar historical incidents:\n")
		for _, s := range inv.SimilarIncidents {
			fmt.Fprintf(&b, "- %s: score %.2f, closed as %s\n",
				s.InvestigationID, s.Score, s.Classification)
		}
	}
	fmt.Fprintf(&b, "Risk state: %s\n", inv.RiskState)
	return b.String()
}
