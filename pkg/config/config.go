package config

import (
	"github.com/argus-soc/argus/pkg/cleanup"
	"github.com/argus-soc/argus/pkg/gateway"
	"github.com/argus-soc/argus/pkg/orchestrator"
	"github.com/argus-soc/argus/pkg/queue"
)

// Config is the umbrella configuration object returned by Initialize() and
// used throughout the application.
type Config struct {
	configDir string // Configuration directory path (for reference)

	// DashboardURL is the analyst dashboard base URL used in notifications.
	DashboardURL string

	// Slack notification settings
	Slack *SlackConfig

	// PubSub topics and the optional alert subscription
	PubSub *PubSubConfig

	// Queue and worker pool configuration
	Queue *queue.Config

	// Cleanup holds the background sweep settings
	Cleanup cleanup.Config

	// Gateway holds the LLM mediation settings: spend limits, retry policy,
	// context budgets, accumulation threshold
	Gateway gateway.Config

	// Orchestrator holds the investigation knobs and the playbook registry
	Orchestrator orchestrator.Config

	// Providers is the per-tier LLM provider registry
	Providers *LLMProviderRegistry
}

// SlackConfig holds resolved Slack notification settings.
type SlackConfig struct {
	Enabled  bool
	TokenEnv string
	Channel  string
}

// PubSubConfig holds the resolved Pub/Sub settings. An empty project id
// disables publishing; an empty subscription disables the alert subscriber.
type PubSubConfig struct {
	ProjectID         string `yaml:"project_id"`
	AuditTopic        string `yaml:"audit_topic"`
	AlertSubscription string `yaml:"alert_subscription"`
}

// Stats contains statistics about loaded configuration
type Stats struct {
	Providers int
	Playbooks int
}

// Stats returns configuration statistics for logging/monitoring
func (c *Config) Stats() Stats {
	s := Stats{Playbooks: len(c.Orchestrator.Playbooks)}
	if c.Providers != nil {
		s.Providers = c.Providers.Len()
	}
	return s
}

// ConfigDir returns the configuration directory path
func (c *Config) ConfigDir() string {
	return c.configDir
}

// GetProvider retrieves a provider configuration by tier name.
// This is a convenience method that wraps LLMProviderRegistry.Get().
func (c *Config) GetProvider(tier string) (*LLMProviderConfig, error) {
	return c.Providers.Get(tier)
}
