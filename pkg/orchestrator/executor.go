package orchestrator

import (
	"context"
	"errors"

	"github.com/argus-soc/argus/pkg/gateway"
	"github.com/argus-soc/argus/pkg/queue"
	"github.com/argus-soc/argus/pkg/services"
)

// Executor adapts the orchestrator to the queue worker contract.
type Executor struct {
	orc *Orchestrator
}

// NewExecutor creates the adapter.
func NewExecutor(orc *Orchestrator) *Executor {
	return &Executor{orc: orc}
}

// Execute runs the investigation for one claimed alert. Interrupted and
// transient-provider runs ask for a requeue so the next claimant resumes
// from the persisted snapshot; everything else is terminal.
func (e *Executor) Execute(ctx context.Context, item *services.QueuedAlert) *queue.ExecutionResult {
	inv, err := e.orc.Run(ctx, item.Alert)

	result := &queue.ExecutionResult{Error: err}
	if inv != nil {
		result.InvestigationID = inv.ID
	}
	if err == nil {
		return result
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		errors.Is(err, gateway.ErrProviderTransient) {
		result.Requeue = true
	}
	return result
}
