package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/argus-soc/argus/pkg/models"
	"github.com/argus-soc/argus/pkg/scoring"
	"github.com/argus-soc/argus/pkg/services"
)

// IntelSource is the read-model surface the enrichment agents query. Feed
// outages surface as errors and degrade to empty deltas upstream.
type IntelSource interface {
	LookupIOC(ctx context.Context, indicator string) (*services.IOCReputation, error)
	LookupBaseline(ctx context.Context, tenantID, entityValue string) (*services.Baseline, error)
	LookupExposures(ctx context.Context, tenantID, hostValue string) ([]services.Exposure, error)
}

// IncidentSource provides closed-incident projections for similarity
// ranking.
type IncidentSource interface {
	SimilarCandidates(ctx context.Context, tenantID string, since time.Time, limit int) ([]services.IncidentProjection, error)
}

// BehaviouralAgent compares alert entities with their behavioural baselines.
type BehaviouralAgent struct {
	intel IntelSource
}

// NewBehaviouralAgent creates the agent.
func NewBehaviouralAgent(intel IntelSource) *BehaviouralAgent {
	return &BehaviouralAgent{intel: intel}
}

// ID implements EnrichmentAgent.
func (a *BehaviouralAgent) ID() string { return models.AgentBehavioural }

// Enrich looks up the baseline for every account and host entity. The delta
// risk state is the highest baseline risk seen, or no_baseline when none of
// the entities has one.
func (a *BehaviouralAgent) Enrich(ctx context.Context, inv *models.Investigation) (models.EnrichmentDelta, error) {
	var delta models.EnrichmentDelta

	subjects := append(inv.Entities.ByType(models.EntityTypeAccount),
		inv.Entities.ByType(models.EntityTypeHost)...)

	found := false
	highest := models.RiskStateNoBaseline
	for _, e := range subjects {
		baseline, err := a.intel.LookupBaseline(ctx, inv.TenantID, e.Value)
		delta.QueriesExecuted++
		if err != nil {
			return delta, fmt.Errorf("baseline lookup %s: %w", e.Value, err)
		}
		if baseline == nil {
			continue
		}
		found = true
		if riskRank(baseline.RiskState) > riskRank(highest) {
			highest = baseline.RiskState
		}
		for _, obs := range baseline.Observations {
			delta.Behavioural = append(delta.Behavioural, models.BehaviouralObservation{
				EntityValue: e.Value,
				Baseline:    string(baseline.RiskState),
				Observed:    obs,
				Deviation:   deviationFor(baseline.RiskState),
			})
		}
	}
	if found {
		delta.RiskState = highest
	} else if len(subjects) > 0 {
		delta.RiskState = models.RiskStateNoBaseline
	}
	return delta, nil
}

func riskRank(r models.RiskState) int {
	switch r {
	case models.RiskStateLow:
		return 1
	case models.RiskStateMedium:
		return 2
	case models.RiskStateHigh:
		return 3
	default:
		return 0
	}
}

func deviationFor(r models.RiskState) float64 {
	switch r {
	case models.RiskStateHigh:
		return 0.9
	case models.RiskStateMedium:
		return 0.5
	case models.RiskStateLow:
		return 0.2
	default:
		return 0.0
	}
}

// IntelAgent resolves IOC reputations and exposure correlations.
type IntelAgent struct {
	intel IntelSource
}

// NewIntelAgent creates the agent.
func NewIntelAgent(intel IntelSource) *IntelAgent {
	return &IntelAgent{intel: intel}
}

// ID implements EnrichmentAgent.
func (a *IntelAgent) ID() string { return models.AgentIntel }

// Enrich queries the threat-intel cache for every indicator-bearing entity
// and the exposure store for every host.
func (a *IntelAgent) Enrich(ctx context.Context, inv *models.Investigation) (models.EnrichmentDelta, error) {
	var delta models.EnrichmentDelta

	seen := make(map[string]bool)
	indicators := make([]string, 0)
	for _, t := range []models.EntityType{
		models.EntityTypeIP, models.EntityTypeDNS, models.EntityTypeURL,
		models.EntityTypeFileHash, models.EntityTypeMailbox,
	} {
		for _, e := range inv.Entities.ByType(t) {
			if !seen[e.Value] {
				seen[e.Value] = true
				indicators = append(indicators, e.Value)
			}
		}
	}
	for _, raw := range inv.Entities.RawIOCs {
		if !seen[raw] {
			seen[raw] = true
			indicators = append(indicators, raw)
		}
	}

	for _, indicator := range indicators {
		rep, err := a.intel.LookupIOC(ctx, indicator)
		delta.QueriesExecuted++
		if err != nil {
			return delta, fmt.Errorf("ioc lookup %s: %w", indicator, err)
		}
		if rep == nil {
			continue
		}
		last := rep.LastSeen
		delta.IOCMatches = append(delta.IOCMatches, models.IOCMatch{
			IOC:        indicator,
			Feed:       rep.Source,
			Verdict:    rep.Reputation,
			Confidence: rep.Confidence,
			LastSeen:   &last,
		})
	}

	for _, host := range inv.Entities.ByType(models.EntityTypeHost) {
		exposures, err := a.intel.LookupExposures(ctx, inv.TenantID, host.Value)
		delta.QueriesExecuted++
		if err != nil {
			return delta, fmt.Errorf("exposure lookup %s: %w", host.Value, err)
		}
		for _, exp := range exposures {
			delta.Exposures = append(delta.Exposures, models.ExposureCorrelation{
				EntityValue: host.Value,
				ExposureID:  exp.ExposureID,
				Kind:        "vulnerability",
				Severity:    exp.Severity,
				Score:       exp.CVSSScore,
			})
		}
	}
	return delta, nil
}

// CorrelationAgent extracts vendor adversarial-ML detections from the raw
// payload and ranks similar historical incidents.
type CorrelationAgent struct {
	incidents IncidentSource
	now       func() time.Time
}

// NewCorrelationAgent creates the agent.
func NewCorrelationAgent(incidents IncidentSource) *CorrelationAgent {
	return &CorrelationAgent{
		incidents: incidents,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ID implements EnrichmentAgent.
func (a *CorrelationAgent) ID() string { return models.AgentCorrelation }

// Enrich narrows the adversarial-ML detections from the raw payload and
// ranks closed incidents by composite similarity.
func (a *CorrelationAgent) Enrich(ctx context.Context, inv *models.Investigation) (models.EnrichmentDelta, error) {
	var delta models.EnrichmentDelta

	delta.Adversarial = adversarialFromPayload(inv.Alert.RawPayload)

	now := a.now()
	candidates, err := a.incidents.SimilarCandidates(ctx, inv.TenantID, now.Add(-similarityWindow), similarCandidateLimit)
	delta.QueriesExecuted++
	if err != nil {
		return delta, fmt.Errorf("similar candidates: %w", err)
	}

	current := scoring.Incident{
		ID:           inv.ID,
		EntityValues: inv.Entities.EntityIDs(),
		Techniques:   inv.Alert.Techniques,
		RuleFamily:   inv.Alert.EffectiveRuleFamily(),
		Datasource:   inv.Alert.Source,
	}
	pool := make([]scoring.Incident, 0, len(candidates))
	for _, c := range candidates {
		pool = append(pool, scoring.Incident{
			ID:               c.InvestigationID,
			EntityValues:     c.EntityValues,
			Techniques:       c.Techniques,
			RuleFamily:       c.RuleFamily,
			Datasource:       c.Datasource,
			Classification:   c.Classification,
			ClosedAt:         c.ClosedAt,
			RareButImportant: c.RareButImportant,
		})
	}

	ranked := scoring.Rank(current, pool, now, similarityMinScore)
	if len(ranked) > maxSimilarIncidentsKept {
		ranked = ranked[:maxSimilarIncidentsKept]
	}
	for _, s := range ranked {
		delta.SimilarFindings = append(delta.SimilarFindings, models.SimilarIncident{
			InvestigationID: s.Incident.ID,
			Score:           s.Score,
			Classification:  s.Incident.Classification,
			ClosedAt:        s.Incident.ClosedAt,
		})
	}
	return delta, nil
}

// adversarialFromPayload narrows the vendor's adversarial-ML detection list.
// The payload is boundary-shaped (map[string]any); anything malformed is
// skipped.
func adversarialFromPayload(payload map[string]any) []models.AdversarialDetection {
	raw, ok := payload["adversarial_detections"].([]any)
	if !ok {
		return nil
	}
	var out []models.AdversarialDetection
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		d := models.AdversarialDetection{TelemetryTrust: models.TrustLevelUntrusted}
		if v, ok := m["technique_id"].(string); ok {
			d.TechniqueID = v
		}
		if v, ok := m["technique_name"].(string); ok {
			d.TechniqueName = v
		}
		if v, ok := m["telemetry_trust_level"].(string); ok && models.TrustLevel(v).IsValid() {
			d.TelemetryTrust = models.TrustLevel(v)
		}
		if v, ok := m["attestation_status"].(string); ok {
			d.AttestationStatus = v
		}
		if v, ok := m["confidence"].(float64); ok {
			d.Confidence = v
		}
		if d.TechniqueID == "" {
			continue
		}
		out = append(out, d)
	}
	return out
}
