package e2e

import (
	"context"
	"fmt"
	"sync"

	"github.com/argus-soc/argus/pkg/gateway"
)

// ScriptedLLM replaces the gateway behind the orchestrator's LLM surface.
// Responses are keyed by task type, optionally narrowed by tier, so each
// scenario scripts exactly the calls it expects.
type ScriptedLLM struct {
	mu        sync.Mutex
	responses map[string]*gateway.Response
	errs      map[string]error
	calls     []gateway.Request
}

// NewScriptedLLM starts with an empty-extraction script so scenarios that
// do not care about IOC extraction run without setup.
func NewScriptedLLM() *ScriptedLLM {
	return &ScriptedLLM{
		responses: map[string]*gateway.Response{
			"ioc_extraction": {Content: `{"iocs": []}`, Metrics: gateway.CallMetrics{CostUSD: 0.001}},
		},
		errs: make(map[string]error),
	}
}

// Script registers the response for a task type.
func (l *ScriptedLLM) Script(taskType string, resp *gateway.Response) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.responses[taskType] = resp
}

// ScriptTier registers a response for one (task type, tier) pair, taking
// precedence over the task-type script. Used for escalation scenarios.
func (l *ScriptedLLM) ScriptTier(taskType string, tier gateway.Tier, resp *gateway.Response) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.responses[taskType+":"+string(tier)] = resp
}

// Fail makes every call for the task type return err.
func (l *ScriptedLLM) Fail(taskType string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs[taskType] = err
}

// Complete implements the orchestrator's LLM surface.
func (l *ScriptedLLM) Complete(_ context.Context, req gateway.Request) (*gateway.Response, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, req)
	if err, ok := l.errs[req.TaskType]; ok {
		return nil, err
	}
	if resp, ok := l.responses[req.TaskType+":"+string(req.Tier)]; ok {
		return resp, nil
	}
	if resp, ok := l.responses[req.TaskType]; ok {
		return resp, nil
	}
	return nil, fmt.Errorf("no scripted response for task %q tier %q", req.TaskType, req.Tier)
}

// Calls returns every request seen for the task type.
func (l *ScriptedLLM) Calls(taskType string) []gateway.Request {
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

// Verdict renders a reasoning-stage verdict document.
func Verdict(classification string, confidence float64, severity, actionsJSON string) *gateway.Response {
	content := fmt.Sprintf(`{"classification": %q, "confidence": %v, "severity": %q,
		"attack_techniques": ["T1078"], "recommended_actions": %s,
		"reasoning": "scripted verdict"}`,
		classification, confidence, severity, actionsJSON)
	return &gateway.Response{Content: content, Metrics: gateway.CallMetrics{CostUSD: 0.02}}
}
