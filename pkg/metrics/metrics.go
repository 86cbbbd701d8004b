// Package metrics registers the Prometheus collectors exposed on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "argus",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by method, route, and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	stateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "argus",
		Subsystem: "orchestrator",
		Name:      "state_transitions_total",
		Help:      "Investigation state transitions by destination state.",
	}, []string{"state"})

	fpShortCircuits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "argus",
		Subsystem: "fpgov",
		Name:      "short_circuits_total",
		Help:      "Alerts auto-closed by an approved false-positive pattern.",
	})

	llmCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "argus",
		Subsystem: "gateway",
		Name:      "llm_calls_total",
		Help:      "Gateway LLM calls by tier and task type.",
	}, []string{"tier", "task_type"})

	llmSpend = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "argus",
		Subsystem: "gateway",
		Name:      "llm_spend_usd_total",
		Help:      "Cumulative LLM spend in USD by tier.",
	}, []string{"tier"})
)

// ObserveHTTPRequest records one served HTTP request.
func ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	httpRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).
		Observe(elapsed.Seconds())
}

// ObserveStateTransition records one investigation state change.
func ObserveStateTransition(state string) {
	stateTransitions.WithLabelValues(state).Inc()
}

// ObserveShortCircuit records one FP auto-close.
func ObserveShortCircuit() {
	fpShortCircuits.Inc()
}

// ObserveLLMCall records one completed gateway call.
func ObserveLLMCall(tier, taskType string, costUSD float64) {
	llmCalls.WithLabelValues(tier, taskType).Inc()
	llmSpend.WithLabelValues(tier).Add(costUSD)
}
