package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/argus-soc/argus/pkg/models"
)

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token        string `yaml:"token"`
	Channel      string `yaml:"channel"`
	DashboardURL string `yaml:"dashboard_url"`
}

// Service delivers investigation notifications to Slack.
// Nil-safe: all methods are no-ops when service is nil.
type Service struct {
	client       *Client
	dashboardURL string
	logger       *slog.Logger
}

// NewService creates a new notification service.
// Returns nil if Token or Channel is empty.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return &Service{
		client:       NewClient(cfg.Token, cfg.Channel),
		dashboardURL: cfg.DashboardURL,
		logger:       slog.Default().With("component", "notify-service"),
	}
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing with a mock API server.
func NewServiceWithClient(client *Client, dashboardURL string) *Service {
	return &Service{
		client:       client,
		dashboardURL: dashboardURL,
		logger:       slog.Default().With("component", "notify-service"),
	}
}

// NotifyApprovalRequested announces an open approval gate.
// Fail-open: errors are logged, never returned.
func (s *Service) NotifyApprovalRequested(ctx context.Context, req *models.ApprovalRequest, inv *models.Investigation) {
	if s == nil {
		return
	}
	blocks := BuildApprovalMessage(req, inv, s.dashboardURL)
	if err := s.client.PostMessage(ctx, blocks, 10*time.Second); err != nil {
		s.logger.Error("Failed to send approval notification",
			"investigation_id", inv.ID,
			"approval_id", req.ID,
			"error", err)
	}
}

// NotifyActionExecuted announces a Tier-1 execute-and-notify action.
// Fail-open: errors are logged, never returned.
func (s *Service) NotifyActionExecuted(ctx context.Context, inv *models.Investigation, action models.RecommendedAction) {
	if s == nil {
		return
	}
	blocks := BuildActionMessage(inv, action, s.dashboardURL)
	if err := s.client.PostMessage(ctx, blocks, 5*time.Second); err != nil {
		s.logger.Error("Failed to send action notification",
			"investigation_id", inv.ID,
			"action", action.Action,
			"error", err)
	}
}
