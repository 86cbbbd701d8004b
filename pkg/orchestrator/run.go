package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/argus-soc/argus/pkg/audit"
	"github.com/argus-soc/argus/pkg/gateway"
	"github.com/argus-soc/argus/pkg/metrics"
	"github.com/argus-soc/argus/pkg/models"
	"github.com/argus-soc/argus/pkg/services"
)

// Orchestrator-level sentinel errors.
var (
	// ErrNotAwaitingApproval is returned when ResumeFromApproval targets an
	// investigation outside the AWAITING_HUMAN state.
	ErrNotAwaitingApproval = errors.New("investigation is not awaiting approval")
)

// Run drives one alert to a terminal or paused state. Idempotency key is
// (tenant_id, alert_id): re-entry with the same key resumes the existing
// investigation instead of double-executing.
func (o *Orchestrator) Run(ctx context.Context, alert *models.Alert) (*models.Investigation, error) {
	existing, err := o.store.GetByTenantAlert(ctx, alert.TenantID, alert.ID)
	if err != nil && !errors.Is(err, services.ErrNotFound) {
		return nil, fmt.Errorf("look up investigation for %s/%s: %w", alert.TenantID, alert.ID, err)
	}

	var inv *models.Investigation
	if existing != nil {
		if existing.State.IsTerminal() || existing.State == models.StateAwaitingHuman {
			return existing, nil
		}
		inv = existing
		o.logger.Info("Resuming investigation",
			"investigation_id", inv.ID, "state", string(inv.State))
	} else {
		inv = models.NewInvestigation(o.newID(), alert)
		if err := o.store.Upsert(ctx, inv); err != nil {
			return nil, fmt.Errorf("persist new investigation: %w", err)
		}
		o.emitter.Emit(ctx, audit.NewEvent(audit.EventInvestigationCreated, inv.TenantID).
			WithInvestigation(inv.ID, inv.AlertID).
			WithContext(map[string]any{
				"source":   alert.Source,
				"severity": string(alert.Severity),
				"title":    alert.Title,
			}))
	}

	return o.drive(ctx, inv)
}

// ResumeByID re-drives a persisted non-terminal investigation, used by crash
// recovery. Terminal and paused investigations are returned unchanged.
func (o *Orchestrator) ResumeByID(ctx context.Context, investigationID string) (*models.Investigation, error) {
	inv, err := o.store.GetByID(ctx, investigationID)
	if err != nil {
		return nil, err
	}
	if inv.State.IsTerminal() || inv.State == models.StateAwaitingHuman {
		return inv, nil
	}
	return o.drive(ctx, inv)
}

// ResumeFromApproval completes the human gate. Approved resumes the gated
// response; rejected closes with classification "rejected".
func (o *Orchestrator) ResumeFromApproval(ctx context.Context, investigationID string, approved bool, actor string) (*models.Investigation, error) {
	inv, err := o.store.GetByID(ctx, investigationID)
	if err != nil {
		return nil, err
	}
	if inv.State != models.StateAwaitingHuman {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotAwaitingApproval, investigationID, inv.State)
	}

	if !approved {
		inv.Classification = models.ClassificationRejected
		inv.Append(models.NewDecision(models.AgentOrchestrator, "approval_rejected").
			WithDetail(map[string]any{"resolved_by": actor}))
		o.emitter.Emit(ctx, audit.NewEvent(audit.EventApprovalDenied, inv.TenantID).
			WithActor(audit.ActorHuman, actor).
			WithInvestigation(inv.ID, inv.AlertID))
		if err := o.close(ctx, inv); err != nil {
			return nil, err
		}
		return inv, nil
	}

	inv.Append(models.NewDecision(models.AgentOrchestrator, "approval_granted").
		WithDetail(map[string]any{"resolved_by": actor}))
	o.emitter.Emit(ctx, audit.NewEvent(audit.EventApprovalGranted, inv.TenantID).
		WithActor(audit.ActorHuman, actor).
		WithInvestigation(inv.ID, inv.AlertID))
	if err := o.transition(ctx, inv, models.StateResponding); err != nil {
		return nil, err
	}
	return o.drive(ctx, inv)
}

// ExpireApproval closes an investigation whose approval gate timed out.
// Classification is left as the reasoning stage set it.
func (o *Orchestrator) ExpireApproval(ctx context.Context, investigationID string) (*models.Investigation, error) {
	inv, err := o.store.GetByID(ctx, investigationID)
	if err != nil {
		return nil, err
	}
	if inv.State != models.StateAwaitingHuman {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotAwaitingApproval, investigationID, inv.State)
	}
	inv.Append(models.NewDecision(models.AgentOrchestrator, "approval_expired"))
	o.emitter.Emit(ctx, audit.NewEvent(audit.EventApprovalTimedOut, inv.TenantID).
		WithInvestigation(inv.ID, inv.AlertID))
	if err := o.close(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// drive advances the investigation stage by stage until it reaches a
// terminal or paused state. Each stage persists before the next runs;
// already-run work is guarded by the state itself plus decision-chain
// checks inside the stages.
func (o *Orchestrator) drive(ctx context.Context, inv *models.Investigation) (*models.Investigation, error) {
	for {
		switch inv.State {
		case models.StateReceived:
			if err := o.runExtraction(ctx, inv); err != nil {
				return o.fail(ctx, inv, err)
			}
			if err := o.transition(ctx, inv, models.StateParsing); err != nil {
				return nil, err
			}

		case models.StateParsing:
			closed, err := o.runShortCircuit(ctx, inv)
			if err != nil {
				return o.fail(ctx, inv, err)
			}
			if closed {
				return inv, nil
			}
			if err := o.transition(ctx, inv, models.StateEnriching); err != nil {
				return nil, err
			}

		case models.StateEnriching:
			o.runEnrichment(ctx, inv)
			if err := o.transition(ctx, inv, models.StateReasoning); err != nil {
				return nil, err
			}

		case models.StateReasoning:
			if err := o.runReasoning(ctx, inv); err != nil {
				return o.fail(ctx, inv, err)
			}
			next, err := o.routeAfterReasoning(ctx, inv)
			if err != nil {
				return o.fail(ctx, inv, err)
			}
			if err := o.transition(ctx, inv, next); err != nil {
				return nil, err
			}
			if next == models.StateAwaitingHuman {
				if err := o.openApprovalGate(ctx, inv); err != nil {
					return o.fail(ctx, inv, err)
				}
				return inv, nil
			}

		case models.StateResponding:
			if err := o.runResponse(ctx, inv); err != nil {
				return o.fail(ctx, inv, err)
			}
			if err := o.close(ctx, inv); err != nil {
				return nil, err
			}
			return inv, nil

		case models.StateAwaitingHuman:
			return inv, nil

		default:
			// Terminal.
			return inv, nil
		}
	}
}

// transition advances the state, appends the transition decision entry, and
// persists the snapshot atomically.
func (o *Orchestrator) transition(ctx context.Context, inv *models.Investigation, next models.State) error {
	if !inv.State.CanTransition(next) {
		return fmt.Errorf("illegal transition %s → %s for %s", inv.State, next, inv.ID)
	}
	prev := inv.State
	inv.State = next
	inv.UpdatedAt = o.now()
	inv.Append(models.NewDecision(models.AgentOrchestrator, models.DecisionActionStateChange).
		WithDetail(map[string]any{"from": string(prev), "to": string(next)}))
	if err := o.store.Upsert(ctx, inv); err != nil {
		return fmt.Errorf("persist transition %s → %s: %w", prev, next, err)
	}
	metrics.ObserveStateTransition(string(next))
	o.emitter.Emit(ctx, audit.NewEvent(audit.EventInvestigationState, inv.TenantID).
		WithInvestigation(inv.ID, inv.AlertID).
		WithContext(map[string]any{"from": string(prev), "to": string(next)}))
	return nil
}

// close moves the investigation to CLOSED, persists, emits, and feeds the
// similarity index.
func (o *Orchestrator) close(ctx context.Context, inv *models.Investigation) error {
	if err := o.transition(ctx, inv, models.StateClosed); err != nil {
		return err
	}
	o.emitter.Emit(ctx, audit.NewEvent(audit.EventInvestigationClosed, inv.TenantID).
		WithInvestigation(inv.ID, inv.AlertID).
		WithDecision(map[string]any{
			"classification": inv.Classification,
			"confidence":     inv.Confidence,
		}))
	if err := o.store.IndexClosed(ctx, inv, false); err != nil {
		// The index is advisory; a failed insert must not reopen the
		// investigation.
		o.logger.Error("Failed to index closed investigation",
			"investigation_id", inv.ID, "error", err)
	}
	return nil
}

// fail handles a stage error. Causes the queue requeues (cancelled or
// timed-out runs, provider outage after retries) leave the snapshot at its
// current state so the next claimant resumes it; everything else is
// terminal: the error is recorded, the investigation moves to FAILED, and
// terminal state persists before returning. The original error is surfaced
// to the caller either way.
func (o *Orchestrator) fail(ctx context.Context, inv *models.Investigation, cause error) (*models.Investigation, error) {
	if isRequeueable(cause) {
		inv.UpdatedAt = o.now()
		// The run context may already be cancelled; the snapshot write
		// must still land.
		if err := o.store.Upsert(context.WithoutCancel(ctx), inv); err != nil {
			o.logger.Error("Failed to persist interrupted snapshot",
				"investigation_id", inv.ID, "error", err)
		}
		o.logger.Warn("Investigation interrupted, leaving snapshot resumable",
			"investigation_id", inv.ID, "state", string(inv.State), "error", cause)
		return inv, cause
	}

	inv.Append(models.NewDecision(models.AgentOrchestrator, models.DecisionActionError).
		WithDetail(map[string]any{"error": cause.Error()}))
	inv.State = models.StateFailed
	inv.UpdatedAt = o.now()
	if err := o.store.Upsert(ctx, inv); err != nil {
		o.logger.Error("Failed to persist FAILED state",
			"investigation_id", inv.ID, "error", err)
	}
	metrics.ObserveStateTransition(string(models.StateFailed))
	o.emitter.Emit(ctx, audit.NewEvent(audit.EventInvestigationFailed, inv.TenantID).
		WithInvestigation(inv.ID, inv.AlertID).
		WithContext(map[string]any{"error": cause.Error()}))
	return inv, cause
}

// isRequeueable mirrors the executor's requeue test: these causes mean the
// run was interrupted, not that the investigation is broken.
func isRequeueable(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, gateway.ErrProviderTransient)
}
