// Argus investigation engine — consumes normalised alerts, drives each
// through the investigation graph, and exposes the governance and approval
// HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/argus-soc/argus/pkg/api"
	"github.com/argus-soc/argus/pkg/audit"
	"github.com/argus-soc/argus/pkg/cache"
	"github.com/argus-soc/argus/pkg/cleanup"
	"github.com/argus-soc/argus/pkg/config"
	"github.com/argus-soc/argus/pkg/database"
	"github.com/argus-soc/argus/pkg/fpgov"
	"github.com/argus-soc/argus/pkg/gateway"
	"github.com/argus-soc/argus/pkg/ingest"
	"github.com/argus-soc/argus/pkg/notify"
	"github.com/argus-soc/argus/pkg/orchestrator"
	"github.com/argus-soc/argus/pkg/queue"
	"github.com/argus-soc/argus/pkg/services"
)

// patternSnapshotRefresh bounds matcher staleness when a Redis invalidation
// is missed.
const patternSnapshotRefresh = 30 * time.Second

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// resolvePodID determines the pod identifier for multi-replica coordination.
// Priority: POD_ID env > HOSTNAME env > "local"
func resolvePodID() string {
	if id := os.Getenv("POD_ID"); id != "" {
		return id
	}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		return hostname
	}
	return "local"
}

// buildProvider constructs the gateway adapter for one tier binding.
func buildProvider(cfg *config.LLMProviderConfig) (gateway.Provider, error) {
	switch cfg.Type {
	case config.ProviderAnthropic:
		return gateway.NewAnthropicProvider(gateway.AnthropicModelConfig{
			Model:           cfg.Model,
			APIKey:          cfg.APIKey(),
			InputCostPer1M:  cfg.InputCostPer1M,
			OutputCostPer1M: cfg.OutputCostPer1M,
		}), nil
	case config.ProviderOpenAI:
		return gateway.NewOpenAIProvider(gateway.OpenAIModelConfig{
			Model:           cfg.Model,
			APIKey:          cfg.APIKey(),
			BaseURL:         cfg.BaseURL,
			InputCostPer1M:  cfg.InputCostPer1M,
			OutputCostPer1M: cfg.OutputCostPer1M,
		})
	}
	return nil, fmt.Errorf("unknown provider type %q", cfg.Type)
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	podID := resolvePodID()

	slog.Info("Starting Argus",
		"http_port", httpPort,
		"pod_id", podID,
		"config_dir", *configDir)

	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. PostgreSQL (runs migrations on connect)
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	// 3. Redis — kill switches, spend counters, pattern invalidations,
	// canary counters, intel read-models
	cacheConfig, err := cache.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load cache config", "error", err)
		os.Exit(1)
	}
	rdb, err := cache.NewClient(ctx, cacheConfig)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			slog.Error("Error closing Redis client", "error", err)
		}
	}()
	slog.Info("Connected to Redis")

	// 4. Domain services over the shared pool
	db := dbClient.DB()
	queueService := services.NewQueueService(db)
	investigationService := services.NewInvestigationService(db)
	patternService := services.NewPatternService(db)
	approvalService := services.NewApprovalService(db)
	tenantService := services.NewTenantService(db)
	shadowDecisionService := services.NewShadowDecisionService(db)
	spendService := services.NewSpendService(db)
	taxonomyService := services.NewTaxonomyService(db)
	intelService := services.NewIntelService(rdb)
	slog.Info("Services initialized")

	// 5. One-time startup claim release: anything this pod id held before a
	// restart goes back to the queue
	if err := queue.ReleaseStartupClaims(ctx, queueService, podID); err != nil {
		slog.Error("Failed to release startup claims", "error", err)
		// Non-fatal — the orphan sweep recovers them later
	}

	// 6. Audit producer: Pub/Sub when a project is configured, otherwise the
	// Postgres outbox
	var emitter *audit.Emitter
	if cfg.PubSub != nil && cfg.PubSub.ProjectID != "" {
		producer, psErr := audit.NewPubSubProducer(ctx, audit.PubSubConfig{
			ProjectID:  cfg.PubSub.ProjectID,
			AuditTopic: cfg.PubSub.AuditTopic,
		})
		if psErr != nil {
			slog.Error("Failed to create Pub/Sub producer", "error", psErr)
			os.Exit(1)
		}
		defer func() {
			if err := producer.Close(); err != nil {
				slog.Error("Error closing Pub/Sub producer", "error", err)
			}
		}()
		emitter = audit.NewEmitter(producer, producer)
		slog.Info("Audit producer initialized", "backend", "pubsub",
			"project", cfg.PubSub.ProjectID)
	} else {
		producer := audit.NewOutboxProducer(db)
		emitter = audit.NewEmitter(producer, producer)
		slog.Info("Audit producer initialized", "backend", "outbox")
	}

	// 7. Gateway: per-tier providers, taxonomy validator, spend tracker
	providers := make(map[gateway.Tier]gateway.Provider)
	for _, tier := range []gateway.Tier{gateway.Tier0, gateway.Tier1, gateway.Tier1Plus} {
		providerCfg, pErr := cfg.GetProvider(string(tier))
		if pErr != nil {
			slog.Error("Missing LLM provider binding", "tier", tier, "error", pErr)
			os.Exit(1)
		}
		provider, pErr := buildProvider(providerCfg)
		if pErr != nil {
			slog.Error("Failed to build LLM provider", "tier", tier, "error", pErr)
			os.Exit(1)
		}
		providers[tier] = provider
	}
	var secondOpinion gateway.Provider
	if cfg.Providers.Has(config.TierKeySecondOpinion) {
		providerCfg, _ := cfg.GetProvider(config.TierKeySecondOpinion)
		secondOpinion, err = buildProvider(providerCfg)
		if err != nil {
			slog.Error("Failed to build second-opinion provider", "error", err)
			os.Exit(1)
		}
	}

	techniqueIDs, err := taxonomyService.KnownTechniqueIDs(ctx)
	if err != nil {
		slog.Error("Failed to load technique taxonomy", "error", err)
		os.Exit(1)
	}
	var known map[string]bool
	if len(techniqueIDs) > 0 {
		known = make(map[string]bool, len(techniqueIDs))
		for _, id := range techniqueIDs {
			known[id] = true
		}
	} else {
		slog.Warn("Technique taxonomy is empty — taxonomy validation disabled")
	}

	spendTracker := gateway.NewSpendTracker(rdb, spendService, cfg.Gateway.Limits, emitter)
	gw := gateway.New(cfg.Gateway, providers, secondOpinion,
		gateway.NewValidator(known), spendTracker, emitter, rdb)
	slog.Info("Gateway initialized",
		"tiers", len(providers),
		"taxonomy_ids", len(techniqueIDs))

	// 8. FP governance: hot snapshot, matcher, kill switches, lifecycle
	killSwitches := fpgov.NewKillSwitchStore(rdb, emitter)
	snapshot := fpgov.NewSnapshot(patternService, rdb, patternSnapshotRefresh)
	if err := snapshot.Start(ctx); err != nil {
		slog.Error("Failed to start pattern snapshot", "error", err)
		os.Exit(1)
	}
	defer snapshot.Stop()
	matcher := fpgov.NewMatcher(snapshot, killSwitches)
	canary := fpgov.NewCanaryTracker(rdb, patternService, emitter)
	governance := fpgov.NewGovernance(patternService, investigationService, emitter, rdb)
	shadowService := fpgov.NewShadowService(tenantService, shadowDecisionService, canary, emitter)
	slog.Info("FP governance initialized")

	// 9. Notifications. The interface stays nil when Slack is disabled so
	// the orchestrator's nil check holds.
	var notifier orchestrator.Notifier
	if cfg.Slack != nil && cfg.Slack.Enabled {
		notifier = notify.NewService(notify.ServiceConfig{
			Token:        os.Getenv(cfg.Slack.TokenEnv),
			Channel:      cfg.Slack.Channel,
			DashboardURL: cfg.DashboardURL,
		})
		slog.Info("Slack notifications enabled", "channel", cfg.Slack.Channel)
	}

	// 10. Orchestrator and worker pool
	enrichers := orchestrator.DefaultEnrichers(intelService, investigationService)
	orc := orchestrator.New(cfg.Orchestrator, investigationService, approvalService,
		gw, matcher, shadowService, ingest.NewParser(), enrichers, notifier, emitter)

	executor := orchestrator.NewExecutor(orc)
	workerPool := queue.NewWorkerPool(podID, queueService, cfg.Queue, executor)
	if err := workerPool.Start(ctx); err != nil {
		slog.Error("Failed to start worker pool", "error", err)
		os.Exit(1)
	}

	// 11. Background sweeps: approval deadlines, pattern expiry, stuck
	// investigations
	sweeper := cleanup.NewService(cfg.Cleanup, approvalService, patternService,
		governance, investigationService, orc)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	// 12. Alert subscriber (optional: direct HTTP intake always works)
	var subscriber *ingest.Subscriber
	if cfg.PubSub != nil && cfg.PubSub.ProjectID != "" && cfg.PubSub.AlertSubscription != "" {
		subscriber, err = ingest.NewSubscriber(ctx, ingest.SubscriberConfig{
			ProjectID:    cfg.PubSub.ProjectID,
			Subscription: cfg.PubSub.AlertSubscription,
		}, queueService)
		if err != nil {
			slog.Error("Failed to create alert subscriber", "error", err)
			os.Exit(1)
		}
		go func() {
			if err := subscriber.Run(ctx); err != nil {
				slog.Error("Alert subscriber stopped", "error", err)
			}
		}()
		slog.Info("Alert subscriber started", "subscription", cfg.PubSub.AlertSubscription)
	}

	// 13. HTTP server
	httpServer := api.NewServer(api.ServerDeps{
		Alerts:         queueService,
		Investigations: investigationService,
		Approvals:      approvalService,
		Driver:         orc,
		Patterns:       patternService,
		Governance:     governance,
		Shadow:         shadowService,
		KillSwitches:   killSwitches,
		Canary:         canary,
		DB:             db,
		Pool:           workerPool,
	})

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + httpPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Argus started successfully",
		"pod_id", podID,
		"workers", cfg.Queue.WorkerCount)

	// 14. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 15. Graceful shutdown. Workers first: in-flight investigations persist
	// a snapshot at every transition, so anything cut off is orphan-recovered.
	if subscriber != nil {
		if err := subscriber.Close(); err != nil {
			slog.Error("Error closing alert subscriber", "error", err)
		}
	}

	workerShutdownCtx, workerCancel := context.WithTimeout(ctx, cfg.Queue.GracefulShutdownTimeout)
	defer workerCancel()

	done := make(chan struct{})
	go func() {
		workerPool.Stop()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Worker pool stopped gracefully")
	case <-workerShutdownCtx.Done():
		slog.Warn("Shutdown timeout exceeded — incomplete investigations will be orphan-recovered")
	}

	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
