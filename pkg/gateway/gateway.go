// Package gateway is the single mediation layer between core code and any
// LLM provider. Every request passes budget enforcement, injection
// sanitisation, reversible PII pseudonymisation, prompt assembly with a
// cacheable safety prefix, provider-adapted delivery with retry, output
// schema and taxonomy validation with deny-by-default stripping, and spend
// accounting.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/argus-soc/argus/pkg/audit"
	"github.com/argus-soc/argus/pkg/metrics"
)

// Config enumerates the gateway knobs.
type Config struct {
	Limits SpendLimits `yaml:"limits"`

	MaxRetries       int `yaml:"max_retries"`
	BaseDelaySeconds int `yaml:"base_delay_seconds"`

	// ContextBudgetByTier overrides the default token budgets per tier.
	ContextBudgetByTier map[Tier]int `yaml:"context_budget_by_tier"`

	// AccumulationThreshold is the per-tenant daily injection-detection
	// count that fires one accumulation.threshold event per day. Zero
	// disables it.
	AccumulationThreshold int `yaml:"accumulation_threshold"`
}

// Response is the gateway's return shape.
type Response struct {
	// Content is the delivered output: validated, stripped, deanonymised.
	Content string
	ModelID string
	// TokensUsed is input plus output tokens.
	TokensUsed int
	// Valid is false when schema violations were recorded.
	Valid bool
	// RawOutput is the provider output verbatim, preserved for audit.
	RawOutput           string
	ValidationErrors    []ValidationError
	QuarantinedIDs      []string
	InjectionDetections []Detection
	Metrics             CallMetrics
}

// CallMetrics carries per-call accounting for the orchestrator's counters.
type CallMetrics struct {
	CostUSD      float64
	DurationMS   int64
	InputTokens  int
	OutputTokens int
	Disposition  Disposition
}

// Gateway executes the per-request pipeline. All collaborators are explicit;
// nothing is ambient.
type Gateway struct {
	cfg        Config
	providers  map[Tier]Provider
	sanitizer  *Sanitizer
	redactor   *Redactor
	classifier *InjectionClassifier
	summarizer *LossySummarizer
	validator  *Validator
	spend      *SpendTracker
	emitter    *audit.Emitter
	rdb        *redis.Client
	logger     *slog.Logger
}

// New creates a gateway. providers maps each tier to its adapter; the
// classifier's second-opinion model may be nil.
func New(cfg Config, providers map[Tier]Provider, secondOpinion Provider, validator *Validator, spend *SpendTracker, emitter *audit.Emitter, rdb *redis.Client) *Gateway {
	sanitizer := NewSanitizer()
	return &Gateway{
		cfg:        cfg,
		providers:  providers,
		sanitizer:  sanitizer,
		redactor:   NewRedactor(),
		classifier: NewInjectionClassifier(sanitizer, secondOpinion),
		summarizer: NewLossySummarizer(sanitizer),
		validator:  validator,
		spend:      spend,
		emitter:    emitter,
		rdb:        rdb,
		logger:     slog.Default().With("component", "gateway"),
	}
}

// contextBudget returns the token budget for a tier.
func (g *Gateway) contextBudget(tier Tier) int {
	if b, ok := g.cfg.ContextBudgetByTier[tier]; ok && b > 0 {
		return b
	}
	return defaultContextBudgets[tier]
}

// retryPolicy derives the retry policy from config.
func (g *Gateway) retryPolicy() RetryPolicy {
	policy := DefaultRetryPolicy
	if g.cfg.MaxRetries > 0 {
		policy.MaxAttempts = g.cfg.MaxRetries
	}
	if g.cfg.BaseDelaySeconds > 0 {
		policy.BaseDelay = time.Duration(g.cfg.BaseDelaySeconds) * time.Second
	}
	return policy
}

// Complete runs the full pipeline for one request.
func (g *Gateway) Complete(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	provider, ok := g.providers[req.Tier]
	if !ok {
		return nil, fmt.Errorf("no provider configured for tier %s", req.Tier)
	}

	// 1. Budget.
	if err := g.spend.CheckBudget(ctx, req.TenantID); err != nil {
		return nil, err
	}

	// 2. Injection classification and sanitisation of untrusted content.
	userContent := req.UserContent
	disposition := DispositionPass
	var detections []Detection
	if !req.SkipClassifier {
		risk := g.classifier.Classify(ctx, userContent)
		disposition = DispositionFor(risk)
	}
	switch disposition {
	case DispositionQuarantine:
		// The offending content is dropped from the prompt entirely.
		detections = append(detections, Detection{Pattern: "quarantined input", Matched: ""})
		userContent = ""
		g.emitSecurityEvent(ctx, audit.EventInjectionQuarantined, req, len(detections))
	case DispositionSummarize:
		summarized := g.summarizer.Summarize(userContent)
		sanitized, dets := g.sanitizer.Sanitize(summarized)
		userContent = sanitized
		detections = append(detections, dets...)
		g.emitSecurityEvent(ctx, audit.EventInjectionDetected, req, len(detections))
	default:
		sanitized, dets := g.sanitizer.Sanitize(userContent)
		userContent = sanitized
		detections = append(detections, dets...)
		if len(dets) > 0 {
			g.emitSecurityEvent(ctx, audit.EventInjectionDetected, req, len(dets))
		}
	}
	if len(detections) > 0 {
		g.trackAccumulation(ctx, req.TenantID, len(detections))
	}

	// 3. PII redaction. The map is request-scoped.
	rmap := NewRedactionMap()
	userContent = g.redactor.Redact(userContent, req.RedactValues, rmap)

	// 4. Prompt assembly with the cacheable safety prefix and the tier's
	// context budget.
	budget := g.contextBudget(req.Tier)
	if req.Context != "" {
		retrieval := truncateToBudget(req.Context, budget)
		retrieval = g.redactor.Redact(retrieval, req.RedactValues, rmap)
		userContent = userContent + "\n\n" + WrapEvidence("retrieval context", retrieval)
	}
	provReq := ProviderRequest{
		SystemBlocks: assemblePrompt(req.TaskPrompt),
		UserContent:  userContent,
		MaxTokens:    budget,
	}

	// 5. Provider call with retry.
	provResp, err := callWithRetry(ctx, provider, provReq, g.retryPolicy(), g.logger)
	if err != nil {
		return nil, err
	}

	// 6. Output validation.
	validationErrors := g.validator.CheckSchema(provResp.Content, req.Schema)
	quarantined := g.validator.CheckTaxonomy(provResp.Content)

	// 7. Deny-by-default stripping; raw output stays verbatim for audit.
	content := StripQuarantined(provResp.Content, quarantined)

	// 8. Quarantine events.
	for _, id := range quarantined {
		ev := audit.NewEvent(audit.EventTechniqueQuarantined, req.TenantID).
			WithContext(map[string]any{
				"technique_id": id,
				"task_type":    req.TaskType,
				"model_id":     provResp.ModelID,
			})
		g.emitter.Emit(ctx, ev)
	}
	for _, verr := range validationErrors {
		ev := audit.NewEvent(audit.EventSchemaViolation, req.TenantID).
			WithContext(map[string]any{
				"field":     verr.Field,
				"message":   verr.Message,
				"task_type": req.TaskType,
			})
		g.emitter.Emit(ctx, ev)
	}

	// 9. Deanonymisation.
	content = g.redactor.Deanonymise(content, rmap)

	// 10. Spend accounting.
	g.spend.Record(ctx, req.TenantID, req.TaskType, provResp.ModelID, provResp.CostUSD)
	metrics.ObserveLLMCall(string(req.Tier), req.TaskType, provResp.CostUSD)

	return &Response{
		Content:             content,
		ModelID:             provResp.ModelID,
		TokensUsed:          provResp.InputTokens + provResp.OutputTokens,
		Valid:               len(validationErrors) == 0,
		RawOutput:           provResp.Content,
		ValidationErrors:    validationErrors,
		QuarantinedIDs:      quarantined,
		InjectionDetections: detections,
		Metrics: CallMetrics{
			CostUSD:      provResp.CostUSD,
			DurationMS:   time.Since(start).Milliseconds(),
			InputTokens:  provResp.InputTokens,
			OutputTokens: provResp.OutputTokens,
			Disposition:  disposition,
		},
	}, nil
}

func (g *Gateway) emitSecurityEvent(ctx context.Context, t audit.EventType, req Request, count int) {
	ev := audit.NewEvent(t, req.TenantID).
		WithContext(map[string]any{
			"task_type":  req.TaskType,
			"tier":       string(req.Tier),
			"detections": count,
		})
	g.emitter.Emit(ctx, ev)
}

// trackAccumulation counts detections per tenant per day and fires one
// accumulation.threshold event per window when the configured threshold is
// crossed.
func (g *Gateway) trackAccumulation(ctx context.Context, tenantID string, n int) {
	if g.cfg.AccumulationThreshold <= 0 || g.rdb == nil {
		return
	}
	day := time.Now().UTC().Format("2006-01-02")
	key := fmt.Sprintf("injection_acc:%s:%s", tenantID, day)
	total, err := g.rdb.IncrBy(ctx, key, int64(n)).Result()
	if err != nil {
		g.logger.Error("Failed to track injection accumulation", "tenant_id", tenantID, "error", err)
		return
	}
	g.rdb.Expire(ctx, key, 48*time.Hour)
	if int(total) < g.cfg.AccumulationThreshold {
		return
	}
	fired, err := g.rdb.SetNX(ctx, key+":alerted", "1", 48*time.Hour).Result()
	if err != nil || !fired {
		return
	}
	ev := audit.NewEvent(audit.EventAccumulationThreshold, tenantID).
		WithContext(map[string]any{
			"detections_today": total,
			"threshold":        g.cfg.AccumulationThreshold,
		})
	g.emitter.Emit(ctx, ev)
}
