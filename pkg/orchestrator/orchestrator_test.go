package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-soc/argus/pkg/audit"
	"github.com/argus-soc/argus/pkg/fpgov"
	"github.com/argus-soc/argus/pkg/gateway"
	"github.com/argus-soc/argus/pkg/models"
	"github.com/argus-soc/argus/pkg/services"
)

// memStore is an in-memory InvestigationStore.
type memStore struct {
	mu      sync.Mutex
	byID    map[string]*models.Investigation
	indexed []string
}

func newMemStore() *memStore {
	return &memStore{byID: make(map[string]*models.Investigation)}
}

func (s *memStore) Upsert(_ context.Context, inv *models.Investigation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[inv.ID] = inv
	return nil
}

func (s *memStore) GetByID(_ context.Context, id string) (*models.Investigation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inv, ok := s.byID[id]; ok {
		return inv, nil
	}
	return nil, services.ErrNotFound
}

func (s *memStore) GetByTenantAlert(_ context.Context, tenantID, alertID string) (*models.Investigation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range s.byID {
		if inv.TenantID == tenantID && inv.AlertID == alertID {
			return inv, nil
		}
	}
	return nil, services.ErrNotFound
}

func (s *memStore) IndexClosed(_ context.Context, inv *models.Investigation, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexed = append(s.indexed, inv.ID)
	return nil
}

// memApprovals captures approval records.
type memApprovals struct {
	mu       sync.Mutex
	requests []*models.ApprovalRequest
}

func (a *memApprovals) Create(_ context.Context, req *models.ApprovalRequest) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests = append(a.requests, req)
	return nil
}

// stubLLM serves scripted responses keyed by task type.
type stubLLM struct {
	mu        sync.Mutex
	responses map[string]*gateway.Response
	errs      map[string]error
	calls     []gateway.Request
}

func newStubLLM() *stubLLM {
	return &stubLLM{
		responses: map[string]*gateway.Response{
			"ioc_extraction": {Content: `{"iocs": []}`, Metrics: gateway.CallMetrics{CostUSD: 0.001}},
		},
		errs: make(map[string]error),
	}
}

func (l *stubLLM) Complete(_ context.Context, req gateway.Request) (*gateway.Response, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, req)
	key := req.TaskType + ":" + string(req.Tier)
	if err, ok := l.errs[key]; ok {
		return nil, err
	}
	if err, ok := l.errs[req.TaskType]; ok {
		return nil, err
	}
	if resp, ok := l.responses[key]; ok {
		return resp, nil
	}
	if resp, ok := l.responses[req.TaskType]; ok {
		return resp, nil
	}
	return nil, fmt.Errorf("no scripted response for %s", key)
}

func (l *stubLLM) callsFor(taskType string) []gateway.Request {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []gateway.Request
	for _, c := range l.calls {
		if c.TaskType == taskType {
			out = append(out, c)
		}
	}
	return out
}

// stubMatcher returns a fixed match result.
type stubMatcher struct {
	result *fpgov.MatchResult
}

func (m *stubMatcher) Match(context.Context, fpgov.MatchInput) *fpgov.MatchResult {
	return m.result
}

// stubShadow answers shadow lookups and captures recorded decisions.
type stubShadow struct {
	mu       sync.Mutex
	shadowed bool
	err      error
	recorded []models.ShadowDecision
}

func (s *stubShadow) InShadow(context.Context, string, string) (bool, error) {
	return s.shadowed, s.err
}

func (s *stubShadow) RecordDecision(_ context.Context, d models.ShadowDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorded = append(s.recorded, d)
	return nil
}

// stubParser returns a fixed bundle.
type stubParser struct {
	bundle models.EntityBundle
}

func (p *stubParser) Parse(*models.Alert) models.EntityBundle { return p.bundle }

// stubAgent is one scripted enrichment sibling.
type stubAgent struct {
	id    string
	delta models.EnrichmentDelta
	err   error
}

func (a *stubAgent) ID() string { return a.id }

func (a *stubAgent) Enrich(context.Context, *models.Investigation) (models.EnrichmentDelta, error) {
	return a.delta, a.err
}

func testAlert() *models.Alert {
	return &models.Alert{
		ID:          "alert-1",
		Source:      "crowdstrike",
		Timestamp:   time.Now().UTC(),
		Title:       "Suspicious PowerShell execution",
		Description: "powershell.exe spawned from winword.exe on host web-01",
		Severity:    models.SeverityHigh,
		Techniques:  []string{"T1059"},
		Product:     "falcon",
		TenantID:    "acme",
	}
}

func verdictJSON(classification string, confidence float64, severity string, actions string) string {
	return fmt.Sprintf(`{"classification": %q, "confidence": %v, "severity": %q,
		"attack_techniques": ["T1059"], "recommended_actions": %s, "reasoning": "test"}`,
		classification, confidence, severity, actions)
}

type testHarness struct {
	orc       *Orchestrator
	store     *memStore
	approvals *memApprovals
	llm       *stubLLM
	matcher   *stubMatcher
	shadow    *stubShadow
	recorder  *audit.Recorder
}

func newTestHarness(t *testing.T, agents ...EnrichmentAgent) *testHarness {
	t.Helper()
	h := &testHarness{
		store:     newMemStore(),
		approvals: &memApprovals{},
		llm:       newStubLLM(),
		matcher:   &stubMatcher{},
		shadow:    &stubShadow{},
		recorder:  &audit.Recorder{},
	}
	if len(agents) == 0 {
		agents = []EnrichmentAgent{
			&stubAgent{id: models.AgentBehavioural},
			&stubAgent{id: models.AgentIntel},
			&stubAgent{id: models.AgentCorrelation},
		}
	}
	parser := &stubParser{}
	parser.bundle.Add(models.Entity{Type: models.EntityTypeHost, Value: "web-01", Confidence: 1})
	h.orc = New(Config{}, h.store, h.approvals, h.llm, h.matcher, h.shadow,
		parser, agents, nil, audit.NewEmitter(h.recorder, nil))
	return h
}

func TestRunHappyPathAutoClose(t *testing.T) {
	h := newTestHarness(t)
	h.llm.responses["reasoning"] = &gateway.Response{
		Content: verdictJSON(models.ClassificationFalsePositive, 0.95, "low",
			`[{"action": "add_watchlist", "target": "web-01", "tier": 0}]`),
		Metrics: gateway.CallMetrics{CostUSD: 0.02},
	}

	inv, err := h.orc.Run(context.Background(), testAlert())
	require.NoError(t, err)

	assert.Equal(t, models.StateClosed, inv.State)
	assert.Equal(t, models.ClassificationFalsePositive, inv.Classification)
	assert.InDelta(t, 0.95, inv.Confidence, 1e-9)
	assert.Equal(t, 2, inv.LLMCalls) // extraction + reasoning
	assert.Greater(t, inv.CostUSD, 0.0)

	// The decision chain is non-empty and timestamp-monotonic.
	require.NotEmpty(t, inv.DecisionChain)
	for i := 1; i < len(inv.DecisionChain); i++ {
		assert.False(t, inv.DecisionChain[i].Timestamp.Before(inv.DecisionChain[i-1].Timestamp),
			"decision chain timestamps must not regress at %d", i)
	}

	// Tier-0 action executed without approval.
	assert.Len(t, h.recorder.ByType(audit.EventActionExecuted), 1)
	assert.Empty(t, h.approvals.requests)
	assert.Equal(t, []string{inv.ID}, h.store.indexed)
}

func TestRunFPShortCircuit(t *testing.T) {
	h := newTestHarness(t)
	h.matcher.result = &fpgov.MatchResult{PatternID: "pat-1", Confidence: 0.95}

	inv, err := h.orc.Run(context.Background(), testAlert())
	require.NoError(t, err)

	assert.Equal(t, models.StateClosed, inv.State)
	assert.Equal(t, models.ClassificationFalsePositive, inv.Classification)
	assert.True(t, inv.HasDecision(models.AgentFPShortCircuit, models.DecisionActionAutoCloseFP))
	assert.Len(t, h.recorder.ByType(audit.EventFPShortCircuit), 1)

	// Reasoning never ran.
	assert.Empty(t, h.llm.callsFor("reasoning"))
}

func TestRunIdempotentPerTenantAlert(t *testing.T) {
	h := newTestHarness(t)
	h.llm.responses["reasoning"] = &gateway.Response{
		Content: verdictJSON("benign_true_positive", 0.9, "low", `[]`),
	}

	first, err := h.orc.Run(context.Background(), testAlert())
	require.NoError(t, err)
	callsAfterFirst := len(h.llm.calls)

	second, err := h.orc.Run(context.Background(), testAlert())
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, h.llm.calls, callsAfterFirst, "re-entry must not re-execute stages")
}

func TestRunEscalationSupersedesOnHigherConfidence(t *testing.T) {
	h := newTestHarness(t)
	h.llm.responses["reasoning:"+string(gateway.Tier1)] = &gateway.Response{
		Content: verdictJSON("suspicious", 0.4, "high", `[]`),
	}
	h.llm.responses["reasoning:"+string(gateway.Tier1Plus)] = &gateway.Response{
		Content: verdictJSON(models.ClassificationTruePositive, 0.85, "high",
			`[{"action": "add_watchlist", "target": "web-01", "tier": 0}]`),
	}

	inv, err := h.orc.Run(context.Background(), testAlert())
	require.NoError(t, err)

	assert.Equal(t, models.ClassificationTruePositive, inv.Classification)
	assert.InDelta(t, 0.85, inv.Confidence, 1e-9)
	assert.Len(t, h.recorder.ByType(audit.EventEscalationTriggered), 1)
	assert.Len(t, h.recorder.ByType(audit.EventClassificationSupersed), 1)
	assert.Equal(t, models.StateClosed, inv.State)
}

func TestRunEscalationKeepsVerdictOnLowerConfidence(t *testing.T) {
	h := newTestHarness(t)
	h.llm.responses["reasoning:"+string(gateway.Tier1)] = &gateway.Response{
		Content: verdictJSON("suspicious", 0.5, "critical", `[]`),
	}
	h.llm.responses["reasoning:"+string(gateway.Tier1Plus)] = &gateway.Response{
		Content: verdictJSON(models.ClassificationTruePositive, 0.5, "critical", `[]`),
	}

	inv, err := h.orc.Run(context.Background(), testAlert())
	require.NoError(t, err)

	// Equal confidence does not supersede; low confidence at critical
	// severity then opens the human gate.
	assert.Equal(t, "suspicious", inv.Classification)
	assert.Empty(t, h.recorder.ByType(audit.EventClassificationSupersed))
	assert.Equal(t, models.StateAwaitingHuman, inv.State)
}

func TestRunDestructiveActionOpensApprovalGate(t *testing.T) {
	h := newTestHarness(t)
	h.llm.responses["reasoning"] = &gateway.Response{
		Content: verdictJSON(models.ClassificationTruePositive, 0.92, "high",
			`[{"action": "isolate_host", "target": "web-01", "tier": 2, "rationale": "confirmed C2"}]`),
	}

	inv, err := h.orc.Run(context.Background(), testAlert())
	require.NoError(t, err)

	assert.Equal(t, models.StateAwaitingHuman, inv.State)
	assert.True(t, inv.RequiresApproval)
	require.Len(t, h.approvals.requests, 1)
	req := h.approvals.requests[0]
	assert.Equal(t, inv.ID, req.InvestigationID)
	assert.Equal(t, "destructive action recommended", req.Reason)
	assert.WithinDuration(t, time.Now().Add(4*time.Hour), req.Deadline, time.Minute)
	assert.Len(t, h.recorder.ByType(audit.EventApprovalRequested), 1)

	// Nothing dispatched while waiting.
	assert.Empty(t, h.recorder.ByType(audit.EventActionExecuted))
}

func TestResumeFromApprovalApproved(t *testing.T) {
	h := newTestHarness(t)
	h.llm.responses["reasoning"] = &gateway.Response{
		Content: verdictJSON(models.ClassificationTruePositive, 0.92, "high",
			`[{"action": "isolate_host", "target": "web-01", "tier": 2}]`),
	}

	inv, err := h.orc.Run(context.Background(), testAlert())
	require.NoError(t, err)
	require.Equal(t, models.StateAwaitingHuman, inv.State)

	resumed, err := h.orc.ResumeFromApproval(context.Background(), inv.ID, true, "analyst@acme")
	require.NoError(t, err)

	assert.Equal(t, models.StateClosed, resumed.State)
	assert.Equal(t, models.ClassificationTruePositive, resumed.Classification)
	assert.Len(t, h.recorder.ByType(audit.EventApprovalGranted), 1)
	assert.Len(t, h.recorder.ByType(audit.EventActionExecuted), 1)
	assert.True(t, resumed.DispatchedActionKeys()["isolate_host|web-01"])
}

func TestResumeFromApprovalRejected(t *testing.T) {
	h := newTestHarness(t)
	h.llm.responses["reasoning"] = &gateway.Response{
		Content: verdictJSON(models.ClassificationTruePositive, 0.92, "high",
			`[{"action": "isolate_host", "target": "web-01", "tier": 2}]`),
	}

	inv, err := h.orc.Run(context.Background(), testAlert())
	require.NoError(t, err)

	resumed, err := h.orc.ResumeFromApproval(context.Background(), inv.ID, false, "analyst@acme")
	require.NoError(t, err)

	assert.Equal(t, models.StateClosed, resumed.State)
	assert.Equal(t, models.ClassificationRejected, resumed.Classification)
	assert.Len(t, h.recorder.ByType(audit.EventApprovalDenied), 1)
	assert.Empty(t, h.recorder.ByType(audit.EventActionExecuted))
}

func TestResumeFromApprovalRefusesWrongState(t *testing.T) {
	h := newTestHarness(t)
	h.llm.responses["reasoning"] = &gateway.Response{
		Content: verdictJSON("benign_true_positive", 0.9, "low", `[]`),
	}

	inv, err := h.orc.Run(context.Background(), testAlert())
	require.NoError(t, err)
	require.Equal(t, models.StateClosed, inv.State)

	_, err = h.orc.ResumeFromApproval(context.Background(), inv.ID, true, "analyst@acme")
	assert.ErrorIs(t, err, ErrNotAwaitingApproval)
}

func TestExpireApprovalClosesWithClassificationUnchanged(t *testing.T) {
	h := newTestHarness(t)
	h.llm.responses["reasoning"] = &gateway.Response{
		Content: verdictJSON("suspicious", 0.4, "critical", `[]`),
	}
	h.llm.errs["reasoning:"+string(gateway.Tier1Plus)] = errors.New("escalation model down")

	inv, err := h.orc.Run(context.Background(), testAlert())
	require.NoError(t, err)
	require.Equal(t, models.StateAwaitingHuman, inv.State)

	expired, err := h.orc.ExpireApproval(context.Background(), inv.ID)
	require.NoError(t, err)

	assert.Equal(t, models.StateClosed, expired.State)
	assert.Equal(t, "suspicious", expired.Classification)
	assert.Len(t, h.recorder.ByType(audit.EventApprovalTimedOut), 1)
}

func TestRunUntrustedTelemetryForcesHumanGate(t *testing.T) {
	agents := []EnrichmentAgent{
		&stubAgent{id: models.AgentBehavioural},
		&stubAgent{id: models.AgentIntel},
		&stubAgent{id: models.AgentCorrelation, delta: models.EnrichmentDelta{
			Adversarial: []models.AdversarialDetection{
				{TechniqueID: "AML.T0043", TelemetryTrust: models.TrustLevelUntrusted, AttestationStatus: "failed"},
				{TechniqueID: "AML.T0051", TelemetryTrust: models.TrustLevelUntrusted, AttestationStatus: "missing"},
			},
		}},
	}
	h := newTestHarness(t, agents...)
	h.llm.responses["reasoning"] = &gateway.Response{
		Content: verdictJSON(models.ClassificationTruePositive, 0.99, "high", `[]`),
	}

	inv, err := h.orc.Run(context.Background(), testAlert())
	require.NoError(t, err)

	assert.Equal(t, models.StateAwaitingHuman, inv.State)
	assert.True(t, inv.RequiresApproval)
	assert.Len(t, h.recorder.ByType(audit.EventTelemetryUntrusted), 1)
}

func TestRunMixedTrustOnlyRecordsSummary(t *testing.T) {
	agents := []EnrichmentAgent{
		&stubAgent{id: models.AgentBehavioural},
		&stubAgent{id: models.AgentIntel},
		&stubAgent{id: models.AgentCorrelation, delta: models.EnrichmentDelta{
			Adversarial: []models.AdversarialDetection{
				{TechniqueID: "AML.T0043", TelemetryTrust: models.TrustLevelUntrusted},
				{TechniqueID: "AML.T0051", TelemetryTrust: models.TrustLevelTrusted},
			},
		}},
	}
	h := newTestHarness(t, agents...)
	h.llm.responses["reasoning"] = &gateway.Response{
		Content: verdictJSON(models.ClassificationTruePositive, 0.99, "high", `[]`),
	}

	inv, err := h.orc.Run(context.Background(), testAlert())
	require.NoError(t, err)

	assert.Equal(t, models.StateClosed, inv.State)
	assert.Equal(t, models.TrustTagMixed, inv.TrustSummary())
	assert.Empty(t, h.recorder.ByType(audit.EventTelemetryUntrusted))
}

func TestRunShadowTenantSuppressesActionsAndLogsDecision(t *testing.T) {
	h := newTestHarness(t)
	h.shadow.shadowed = true
	h.llm.responses["reasoning"] = &gateway.Response{
		Content: verdictJSON(models.ClassificationTruePositive, 0.9, "high",
			`[{"action": "block_ip", "target": "203.0.113.9", "tier": 1}]`),
	}

	inv, err := h.orc.Run(context.Background(), testAlert())
	require.NoError(t, err)

	assert.Equal(t, models.StateClosed, inv.State)
	require.Len(t, h.shadow.recorded, 1)
	assert.Equal(t, models.ClassificationTruePositive, h.shadow.recorded[0].Decision)
	assert.Empty(t, h.recorder.ByType(audit.EventActionExecuted))
	assert.Len(t, h.recorder.ByType(audit.EventActionSuppressed), 1)
}

func TestRunShadowTenantFPMatchContinuesPipeline(t *testing.T) {
	h := newTestHarness(t)
	h.shadow.shadowed = true
	h.matcher.result = &fpgov.MatchResult{PatternID: "pat-1", Confidence: 0.93}
	h.llm.responses["reasoning"] = &gateway.Response{
		Content: verdictJSON(models.ClassificationTruePositive, 0.9, "high", `[]`),
	}

	inv, err := h.orc.Run(context.Background(), testAlert())
	require.NoError(t, err)

	// The would-be auto-close is logged, not executed: the pipeline runs to
	// its own verdict.
	assert.Equal(t, models.StateClosed, inv.State)
	assert.Equal(t, models.ClassificationTruePositive, inv.Classification)
	assert.Empty(t, h.recorder.ByType(audit.EventFPShortCircuit))
	require.NotEmpty(t, h.shadow.recorded)
	assert.Equal(t, models.ClassificationFalsePositive, h.shadow.recorded[0].Decision)
	assert.InDelta(t, 0.93, h.shadow.recorded[0].Confidence, 1e-9)
}

func TestRunSiblingFailureIsFailSoft(t *testing.T) {
	agents := []EnrichmentAgent{
		&stubAgent{id: models.AgentBehavioural, err: errors.New("baseline store down")},
		&stubAgent{id: models.AgentIntel, delta: models.EnrichmentDelta{
			IOCMatches: []models.IOCMatch{{IOC: "203.0.113.9", Feed: "osint", Verdict: "malicious", Confidence: 0.9}},
		}},
		&stubAgent{id: models.AgentCorrelation},
	}
	h := newTestHarness(t, agents...)
	h.llm.responses["reasoning"] = &gateway.Response{
		Content: verdictJSON(models.ClassificationTruePositive, 0.9, "high", `[]`),
	}

	inv, err := h.orc.Run(context.Background(), testAlert())
	require.NoError(t, err)

	assert.Equal(t, models.StateClosed, inv.State)
	assert.Len(t, inv.IOCMatches, 1, "surviving sibling deltas are merged")
	assert.Len(t, h.recorder.ByType(audit.EventEnrichmentFailed), 1)
	assert.True(t, inv.HasDecision(models.AgentBehavioural, models.DecisionActionError))
}

func TestRunSpendExceededFailsInvestigation(t *testing.T) {
	h := newTestHarness(t)
	h.llm.errs["reasoning"] = fmt.Errorf("budget: %w", gateway.ErrSpendExceeded)

	inv, err := h.orc.Run(context.Background(), testAlert())
	require.ErrorIs(t, err, gateway.ErrSpendExceeded)

	assert.Equal(t, models.StateFailed, inv.State)
	assert.True(t, inv.HasDecision(models.AgentOrchestrator, models.DecisionActionError))
	assert.Len(t, h.recorder.ByType(audit.EventInvestigationFailed), 1)
}

func TestRunSpendExceededDuringEscalationFailsInvestigation(t *testing.T) {
	h := newTestHarness(t)
	h.llm.responses["reasoning:"+string(gateway.Tier1)] = &gateway.Response{
		Content: verdictJSON("suspicious", 0.4, "high", `[]`),
	}
	h.llm.errs["reasoning:"+string(gateway.Tier1Plus)] = fmt.Errorf("budget: %w", gateway.ErrSpendExceeded)

	inv, err := h.orc.Run(context.Background(), testAlert())
	require.ErrorIs(t, err, gateway.ErrSpendExceeded)

	// The cap breach ends the investigation even when it hits the
	// best-effort escalation call.
	assert.Equal(t, models.StateFailed, inv.State)
	assert.True(t, inv.HasDecision(models.AgentOrchestrator, models.DecisionActionError))
	assert.Len(t, h.recorder.ByType(audit.EventInvestigationFailed), 1)
}

func TestRunTransientProviderFailureLeavesResumableSnapshot(t *testing.T) {
	h := newTestHarness(t)
	h.llm.errs["reasoning"] = fmt.Errorf("call failed: %w", gateway.ErrProviderTransient)

	inv, err := h.orc.Run(context.Background(), testAlert())
	require.ErrorIs(t, err, gateway.ErrProviderTransient)

	// The snapshot stays where the run was interrupted so a requeued claim
	// can pick it up; nothing marks the investigation FAILED.
	assert.Equal(t, models.StateReasoning, inv.State)
	persisted, err := h.store.GetByID(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateReasoning, persisted.State)
	assert.Empty(t, h.recorder.ByType(audit.EventInvestigationFailed))

	// The provider recovers; the same alert resumes and completes.
	delete(h.llm.errs, "reasoning")
	h.llm.responses["reasoning"] = &gateway.Response{
		Content: verdictJSON(models.ClassificationFalsePositive, 0.95, "low", `[]`),
	}
	resumed, err := h.orc.Run(context.Background(), testAlert())
	require.NoError(t, err)
	assert.Equal(t, inv.ID, resumed.ID)
	assert.Equal(t, models.StateClosed, resumed.State)
}

func TestRunExtractionLLMFailureDegradesToParser(t *testing.T) {
	h := newTestHarness(t)
	h.llm.errs["ioc_extraction"] = errors.New("provider down")
	h.llm.responses["reasoning"] = &gateway.Response{
		Content: verdictJSON("benign_true_positive", 0.9, "low", `[]`),
	}

	inv, err := h.orc.Run(context.Background(), testAlert())
	require.NoError(t, err)

	assert.Equal(t, models.StateClosed, inv.State)
	assert.NotEmpty(t, inv.Entities.ParseErrors)
	assert.Equal(t, 1, len(inv.Entities.Hosts), "parser entities survive")
}

func TestRunPlaybookActionsMergedAndDeduplicated(t *testing.T) {
	h := newTestHarness(t)
	h.orc.cfg.Playbooks = []Playbook{
		{
			ID:             "pb-1",
			Name:           "credential-compromise",
			Classification: models.ClassificationTruePositive,
			Severities:     []string{"high", "critical"},
			Actions: []models.RecommendedAction{
				{Action: "add_watchlist", Target: "web-01", Tier: models.TierMonitor},
				{Action: "reset_password", Target: "web-01", Tier: models.TierConditional},
			},
		},
	}
	h.llm.responses["reasoning"] = &gateway.Response{
		Content: verdictJSON(models.ClassificationTruePositive, 0.9, "high",
			`[{"action": "add_watchlist", "target": "web-01", "tier": 0}]`),
	}

	inv, err := h.orc.Run(context.Background(), testAlert())
	require.NoError(t, err)

	require.Len(t, h.orc.cfg.Playbooks, 1)
	assert.Len(t, inv.PlaybookMatches, 1)
	assert.Len(t, inv.RecommendedActions, 2, "duplicate (action, target) collapsed")
	assert.Len(t, h.recorder.ByType(audit.EventActionExecuted), 2)
	// Tier-1 execute-and-notify emitted alongside.
	assert.Len(t, h.recorder.ByType(audit.EventActionNotified), 1)
}

func TestResumeRespondingDoesNotRedispatch(t *testing.T) {
	h := newTestHarness(t)
	h.llm.responses["reasoning"] = &gateway.Response{
		Content: verdictJSON(models.ClassificationTruePositive, 0.9, "high",
			`[{"action": "add_watchlist", "target": "web-01", "tier": 0}]`),
	}

	inv, err := h.orc.Run(context.Background(), testAlert())
	require.NoError(t, err)
	require.Equal(t, models.StateClosed, inv.State)
	require.Len(t, h.recorder.ByType(audit.EventActionExecuted), 1)

	// Simulate a crash after dispatch but before close: rewind the state and
	// re-drive. The dispatched key in the chain must block a second fire.
	inv.State = models.StateResponding
	require.NoError(t, h.store.Upsert(context.Background(), inv))

	resumed, err := h.orc.ResumeByID(context.Background(), inv.ID)
	require.NoError(t, err)

	assert.Equal(t, models.StateClosed, resumed.State)
	assert.Len(t, h.recorder.ByType(audit.EventActionExecuted), 1, "at-most-once dispatch")
}
