// Package orchestrator drives the investigation state machine: IOC
// extraction, the FP short-circuit, parallel enrichment fan-out, LLM
// reasoning with escalation, the human-approval gate, and response
// dispatch. Every transition persists the full snapshot before the next
// stage runs, so any replica can resume a non-terminal investigation.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/argus-soc/argus/pkg/audit"
	"github.com/argus-soc/argus/pkg/fpgov"
	"github.com/argus-soc/argus/pkg/gateway"
	"github.com/argus-soc/argus/pkg/models"
)

// Default knobs. ApprovalDeadline is overridable per tenant via config.
const (
	defaultApprovalDeadline = 4 * time.Hour
	escalationConfidence    = 0.6
	similarityWindow        = 90 * 24 * time.Hour
	similarityMinScore      = 0.4
	similarCandidateLimit   = 200
	maxSimilarIncidentsKept = 10
)

// Config carries the orchestrator knobs.
type Config struct {
	// ApprovalDeadline is how long a human-approval gate stays open.
	ApprovalDeadline time.Duration `yaml:"approval_deadline"`

	// Playbooks is the response playbook registry matched after reasoning.
	Playbooks []Playbook `yaml:"playbooks"`
}

// ApprovalWindow returns the configured deadline or the default.
func (c Config) ApprovalWindow() time.Duration {
	if c.ApprovalDeadline > 0 {
		return c.ApprovalDeadline
	}
	return defaultApprovalDeadline
}

// InvestigationStore persists investigation snapshots.
type InvestigationStore interface {
	Upsert(ctx context.Context, inv *models.Investigation) error
	GetByID(ctx context.Context, id string) (*models.Investigation, error)
	GetByTenantAlert(ctx context.Context, tenantID, alertID string) (*models.Investigation, error)
	IndexClosed(ctx context.Context, inv *models.Investigation, rareButImportant bool) error
}

// ApprovalStore creates approval-gate records. Resolution flows back in
// through ResumeFromApproval.
type ApprovalStore interface {
	Create(ctx context.Context, req *models.ApprovalRequest) error
}

// LLM is the gateway surface the agents consume.
type LLM interface {
	Complete(ctx context.Context, req gateway.Request) (*gateway.Response, error)
}

// FPMatcher evaluates an alert against the hot pattern snapshot.
type FPMatcher interface {
	Match(ctx context.Context, in fpgov.MatchInput) *fpgov.MatchResult
}

// ShadowGate answers whether a tenant runs in shadow mode and records the
// would-be decisions made while it does.
type ShadowGate interface {
	InShadow(ctx context.Context, tenantID, ruleFamily string) (bool, error)
	RecordDecision(ctx context.Context, d models.ShadowDecision) error
}

// EntityParser builds the typed entity bundle from the raw-entities payload.
// Parse failures surface inside the bundle's parse-error list, never as
// errors: a malformed payload still yields an investigation.
type EntityParser interface {
	Parse(alert *models.Alert) models.EntityBundle
}

// EnrichmentAgent is one sibling of the enrichment fan-out. Agents read the
// immutable snapshot and return a delta; they never mutate the investigation.
type EnrichmentAgent interface {
	ID() string
	Enrich(ctx context.Context, inv *models.Investigation) (models.EnrichmentDelta, error)
}

// Notifier delivers human-facing notifications. Nil disables delivery.
type Notifier interface {
	NotifyApprovalRequested(ctx context.Context, req *models.ApprovalRequest, inv *models.Investigation)
	NotifyActionExecuted(ctx context.Context, inv *models.Investigation, action models.RecommendedAction)
}

// Orchestrator executes the investigation graph. All collaborators are
// explicit; nothing is ambient.
type Orchestrator struct {
	cfg       Config
	store     InvestigationStore
	approvals ApprovalStore
	llm       LLM
	matcher   FPMatcher
	shadow    ShadowGate
	parser    EntityParser
	enrichers []EnrichmentAgent
	notifier  Notifier
	emitter   *audit.Emitter
	logger    *slog.Logger

	newID func() string
	now   func() time.Time
}

// New creates an orchestrator. notifier may be nil.
func New(cfg Config, store InvestigationStore, approvals ApprovalStore, llm LLM, matcher FPMatcher, shadow ShadowGate, parser EntityParser, enrichers []EnrichmentAgent, notifier Notifier, emitter *audit.Emitter) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		store:     store,
		approvals: approvals,
		llm:       llm,
		matcher:   matcher,
		shadow:    shadow,
		parser:    parser,
		enrichers: enrichers,
		notifier:  notifier,
		emitter:   emitter,
		logger:    slog.Default().With("component", "orchestrator"),
		newID:     func() string { return uuid.New().String() },
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// DefaultEnrichers builds the three production siblings over the given
// read-models.
func DefaultEnrichers(intel IntelSource, incidents IncidentSource) []EnrichmentAgent {
	return []EnrichmentAgent{
		NewBehaviouralAgent(intel),
		NewIntelAgent(intel),
		NewCorrelationAgent(incidents),
	}
}
