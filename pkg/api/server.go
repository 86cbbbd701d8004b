// Package api exposes the HTTP surface: alert intake, investigation
// approvals, FP-pattern governance, kill switches, tenant shadow-mode
// operations, and health/metrics endpoints.
package api

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/argus-soc/argus/pkg/fpgov"
	"github.com/argus-soc/argus/pkg/models"
	"github.com/argus-soc/argus/pkg/queue"
)

// AlertQueue accepts validated alerts into the durable queue.
type AlertQueue interface {
	Enqueue(ctx context.Context, alert *models.Alert) error
}

// InvestigationReader loads persisted investigations.
type InvestigationReader interface {
	GetByID(ctx context.Context, id string) (*models.Investigation, error)
}

// ApprovalResolver resolves pending human-approval requests.
type ApprovalResolver interface {
	PendingForInvestigation(ctx context.Context, investigationID string) (*models.ApprovalRequest, error)
	Resolve(ctx context.Context, id string, approved bool, resolvedBy string) (*models.ApprovalRequest, error)
}

// InvestigationDriver resumes paused investigations after a human decision.
type InvestigationDriver interface {
	ResumeFromApproval(ctx context.Context, investigationID string, approved bool, actor string) (*models.Investigation, error)
}

// PatternStore persists FP patterns.
type PatternStore interface {
	CreatePattern(ctx context.Context, p *models.FPPattern) (*models.FPPattern, error)
	GetPattern(ctx context.Context, id string) (*models.FPPattern, error)
	ListByStatus(ctx context.Context, statuses ...models.PatternStatus) ([]models.FPPattern, error)
}

// PatternGovernance runs the pattern lifecycle operations.
type PatternGovernance interface {
	Approve(ctx context.Context, patternID, approver string) (*models.FPPattern, error)
	Reaffirm(ctx context.Context, patternID, approver string) (*models.FPPattern, error)
	Revoke(ctx context.Context, patternID, approver string) (*models.FPPattern, []string, error)
}

// ShadowGovernance runs tenant shadow-mode operations and reconciliation.
type ShadowGovernance interface {
	Reconcile(ctx context.Context, investigationID, analystDecision, patternID string) (*models.ShadowDecision, error)
	Metrics(ctx context.Context, tenantID string) (*models.ShadowMetrics, error)
	GoLive(ctx context.Context, tenantID, approver string) (*models.TenantConfig, error)
	EnableShadow(ctx context.Context, tenantID string, ruleFamilies []string, actor string) (*models.TenantConfig, error)
}

// KillSwitches manages the four-dimensional kill switches.
type KillSwitches interface {
	Activate(ctx context.Context, dim models.KillSwitchDimension, value, activator, reason string) error
	Deactivate(ctx context.Context, dim models.KillSwitchDimension, value, by, reason string) error
	Get(ctx context.Context, dim models.KillSwitchDimension, value string) (*models.KillSwitch, error)
}

// CanaryReader exposes promotion scorecards for shadow patterns.
type CanaryReader interface {
	Stats(ctx context.Context, patternID string) (*fpgov.CanaryStats, error)
}

// Server is the HTTP API server.
type Server struct {
	alerts         AlertQueue
	investigations InvestigationReader
	approvals      ApprovalResolver
	driver         InvestigationDriver
	patterns       PatternStore
	governance     PatternGovernance
	shadow         ShadowGovernance
	killSwitches   KillSwitches
	canary         CanaryReader

	db   *sql.DB
	pool *queue.WorkerPool

	httpServer *http.Server
	logger     *slog.Logger
}

// ServerDeps bundles the server's collaborators. The db and pool are used by
// the health endpoints only and may be nil in tests.
type ServerDeps struct {
	Alerts         AlertQueue
	Investigations InvestigationReader
	Approvals      ApprovalResolver
	Driver         InvestigationDriver
	Patterns       PatternStore
	Governance     PatternGovernance
	Shadow         ShadowGovernance
	KillSwitches   KillSwitches
	Canary         CanaryReader
	DB             *sql.DB
	Pool           *queue.WorkerPool
}

// NewServer creates the API server.
func NewServer(deps ServerDeps) *Server {
	return &Server{
		alerts:         deps.Alerts,
		investigations: deps.Investigations,
		approvals:      deps.Approvals,
		driver:         deps.Driver,
		patterns:       deps.Patterns,
		governance:     deps.Governance,
		shadow:         deps.Shadow,
		killSwitches:   deps.KillSwitches,
		canary:         deps.Canary,
		db:             deps.DB,
		pool:           deps.Pool,
		logger:         slog.Default().With("component", "api"),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger), securityHeaders())

	r.GET("/health", s.healthHandler)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		v1.POST("/alerts", s.submitAlertHandler)

		v1.GET("/investigations/:id", s.getInvestigationHandler)
		v1.POST("/investigations/:id/approval", s.resolveApprovalHandler)
		v1.POST("/investigations/:id/analyst-decision", s.analystDecisionHandler)

		v1.POST("/patterns", s.createPatternHandler)
		v1.GET("/patterns", s.listPatternsHandler)
		v1.GET("/patterns/:id", s.getPatternHandler)
		v1.GET("/patterns/:id/canary", s.canaryStatsHandler)
		v1.POST("/patterns/:id/approve", s.approvePatternHandler)
		v1.POST("/patterns/:id/reaffirm", s.reaffirmPatternHandler)
		v1.POST("/patterns/:id/revoke", s.revokePatternHandler)

		v1.PUT("/kill-switches/:dimension/:value", s.activateKillSwitchHandler)
		v1.GET("/kill-switches/:dimension/:value", s.getKillSwitchHandler)
		v1.DELETE("/kill-switches/:dimension/:value", s.deactivateKillSwitchHandler)

		v1.GET("/tenants/:id/shadow-metrics", s.shadowMetricsHandler)
		v1.POST("/tenants/:id/go-live", s.goLiveHandler)
		v1.POST("/tenants/:id/shadow", s.enableShadowHandler)
	}

	return r
}

// Start runs the HTTP server on addr. Blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
