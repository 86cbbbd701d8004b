package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateCanTransition(t *testing.T) {
	t.Run("follows graph topology", func(t *testing.T) {
		assert.True(t, StateReceived.CanTransition(StateParsing))
		assert.True(t, StateParsing.CanTransition(StateEnriching))
		assert.True(t, StateParsing.CanTransition(StateClosed)) // FP short-circuit
		assert.True(t, StateEnriching.CanTransition(StateReasoning))
		assert.True(t, StateReasoning.CanTransition(StateResponding))
		assert.True(t, StateReasoning.CanTransition(StateAwaitingHuman))
		assert.True(t, StateAwaitingHuman.CanTransition(StateResponding))
		assert.True(t, StateAwaitingHuman.CanTransition(StateClosed))
		assert.True(t, StateResponding.CanTransition(StateClosed))
	})

	t.Run("rejects skips and reversals", func(t *testing.T) {
		assert.False(t, StateReceived.CanTransition(StateReasoning))
		assert.False(t, StateEnriching.CanTransition(StateParsing))
		assert.False(t, StateReasoning.CanTransition(StateClosed))
		assert.False(t, StateResponding.CanTransition(StateEnriching))
	})

	t.Run("any non-terminal state may fail", func(t *testing.T) {
		for _, s := range []State{StateReceived, StateParsing, StateEnriching,
			StateReasoning, StateAwaitingHuman, StateResponding} {
			assert.True(t, s.CanTransition(StateFailed), "state %s", s)
		}
	})

	t.Run("terminal states are absorbing", func(t *testing.T) {
		for _, next := range []State{StateReceived, StateParsing, StateEnriching,
			StateReasoning, StateAwaitingHuman, StateResponding, StateClosed, StateFailed} {
			assert.False(t, StateClosed.CanTransition(next), "closed -> %s", next)
			assert.False(t, StateFailed.CanTransition(next), "failed -> %s", next)
		}
	})
}

func TestNewInvestigation(t *testing.T) {
	alert := &Alert{
		ID:       "A1",
		TenantID: "t1",
		Severity: SeverityHigh,
		Title:    "Phishing email",
	}
	inv := NewInvestigation("inv-1", alert)

	assert.Equal(t, "inv-1", inv.ID)
	assert.Equal(t, "A1", inv.AlertID)
	assert.Equal(t, "t1", inv.TenantID)
	assert.Equal(t, StateReceived, inv.State)
	assert.Equal(t, SeverityHigh, inv.Severity)
	assert.Equal(t, RiskStateUnknown, inv.RiskState)
	assert.Empty(t, inv.DecisionChain)
}

func TestInvestigationMergeDelta(t *testing.T) {
	inv := NewInvestigation("inv-1", &Alert{ID: "A1", TenantID: "t1"})

	inv.MergeDelta(EnrichmentDelta{
		IOCMatches:      []IOCMatch{{IOC: "1.2.3.4", Feed: "osint", Verdict: "malicious"}},
		RiskState:       RiskStateHigh,
		QueriesExecuted: 2,
	})
	inv.MergeDelta(EnrichmentDelta{
		Behavioural:     []BehaviouralObservation{{EntityValue: "host-1", Deviation: 3.2}},
		RiskState:       RiskStateLow, // must not downgrade the merged high
		QueriesExecuted: 1,
	})

	assert.Len(t, inv.IOCMatches, 1)
	assert.Len(t, inv.Behavioural, 1)
	assert.Equal(t, RiskStateHigh, inv.RiskState)
	assert.Equal(t, 3, inv.QueriesExecuted)
}

func TestInvestigationDecisionChain(t *testing.T) {
	inv := NewInvestigation("inv-1", &Alert{ID: "A1", TenantID: "t1"})

	inv.Append(NewDecision(AgentOrchestrator, DecisionActionStateChange).
		WithDetail(map[string]any{"to": string(StateParsing)}))
	inv.Append(NewDecision(AgentResponse, DecisionActionDispatched).
		WithDetail(map[string]any{"action_key": "monitor|user@x.io"}))

	require.Len(t, inv.DecisionChain, 2)
	assert.True(t, inv.HasDecision(AgentOrchestrator, DecisionActionStateChange))
	assert.False(t, inv.HasDecision(AgentReasoning, DecisionActionStateChange))

	keys := inv.DispatchedActionKeys()
	assert.True(t, keys["monitor|user@x.io"])
	assert.Len(t, keys, 1)

	// chain timestamps are monotonic
	for i := 1; i < len(inv.DecisionChain); i++ {
		assert.False(t, inv.DecisionChain[i].Timestamp.Before(inv.DecisionChain[i-1].Timestamp))
	}
}

func TestTrustSummary(t *testing.T) {
	inv := NewInvestigation("inv-1", &Alert{ID: "A1", TenantID: "t1"})
	assert.Equal(t, TrustTag(""), inv.TrustSummary())
	assert.False(t, inv.AllTelemetryUntrusted(), "empty detection list must not force escalation")

	inv.Adversarial = []AdversarialDetection{
		{TechniqueID: "AML.T0043", TelemetryTrust: TrustLevelUntrusted},
	}
	assert.True(t, inv.AllTelemetryUntrusted())
	assert.Equal(t, TrustTagUntrusted, inv.TrustSummary())

	inv.Adversarial = append(inv.Adversarial, AdversarialDetection{
		TechniqueID: "AML.T0051", TelemetryTrust: TrustLevelTrusted,
	})
	assert.False(t, inv.AllTelemetryUntrusted(), "mixed trust must not force escalation")
	assert.Equal(t, TrustTagMixed, inv.TrustSummary())
}

func TestApprovalRequestExpiredBy(t *testing.T) {
	now := time.Now().UTC()
	req := &ApprovalRequest{Status: ApprovalStatusPending, Deadline: now.Add(4 * time.Hour)}

	assert.False(t, req.ExpiredBy(now))
	assert.True(t, req.ExpiredBy(now.Add(4*time.Hour+time.Minute)))

	req.Status = ApprovalStatusApproved
	assert.False(t, req.ExpiredBy(now.Add(24*time.Hour)), "resolved requests never expire")
}
