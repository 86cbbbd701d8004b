package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/argus-soc/argus/pkg/cleanup"
	"github.com/argus-soc/argus/pkg/gateway"
	"github.com/argus-soc/argus/pkg/orchestrator"
	"github.com/argus-soc/argus/pkg/queue"
)

// ArgusYAMLConfig represents the complete argus.yaml file structure
type ArgusYAMLConfig struct {
	System       *SystemYAMLConfig    `yaml:"system"`
	Gateway      *gateway.Config      `yaml:"gateway"`
	Orchestrator *orchestrator.Config `yaml:"orchestrator"`
	Queue        *queue.Config        `yaml:"queue"`
}

// SystemYAMLConfig groups system-wide infrastructure settings.
type SystemYAMLConfig struct {
	DashboardURL string           `yaml:"dashboard_url"`
	Slack        *SlackYAMLConfig `yaml:"slack"`
	PubSub       *PubSubConfig    `yaml:"pubsub"`
	Cleanup      *cleanup.Config  `yaml:"cleanup"`
}

// SlackYAMLConfig holds Slack notification settings from YAML.
type SlackYAMLConfig struct {
	Enabled  *bool  `yaml:"enabled,omitempty"`
	TokenEnv string `yaml:"token_env,omitempty"`
	Channel  string `yaml:"channel,omitempty"`
}

// LLMProvidersYAMLConfig represents the complete llm-providers.yaml file
// structure: one provider binding per tier (tier0, tier1, tier1plus,
// second_opinion).
type LLMProvidersYAMLConfig struct {
	LLMProviders map[string]*LLMProviderConfig `yaml:"llm_providers"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load YAML files from configDir
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge user configuration over built-in defaults
//  5. Validate all configuration
//  6. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"providers", stats.Providers,
		"playbooks", stats.Playbooks)

	return cfg, nil
}

// load is the internal loader (not exported)
func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{
		configDir: configDir,
	}

	// 1. Load argus.yaml (system, gateway, orchestrator, queue)
	argusConfig, err := loader.loadArgusYAML()
	if err != nil {
		return nil, NewLoadError("argus.yaml", err)
	}

	// 2. Load llm-providers.yaml
	providers, err := loader.loadLLMProvidersYAML()
	if err != nil {
		return nil, NewLoadError("llm-providers.yaml", err)
	}

	// 3. Resolve queue config (merge user YAML over built-in defaults so
	// unset fields keep their defaults)
	queueConfig := queue.DefaultConfig()
	if argusConfig.Queue != nil {
		if err := mergo.Merge(queueConfig, argusConfig.Queue, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge queue config: %w", err)
		}
	}

	// 4. Resolve the remaining sections, applying defaults
	gatewayCfg := gateway.Config{}
	if argusConfig.Gateway != nil {
		gatewayCfg = *argusConfig.Gateway
	}
	orchestratorCfg := orchestrator.Config{}
	if argusConfig.Orchestrator != nil {
		orchestratorCfg = *argusConfig.Orchestrator
	}

	return &Config{
		configDir:    configDir,
		DashboardURL: resolveDashboardURL(argusConfig.System),
		Slack:        resolveSlackConfig(argusConfig.System),
		PubSub:       resolvePubSubConfig(argusConfig.System),
		Cleanup:      resolveCleanupConfig(argusConfig.System),
		Queue:        queueConfig,
		Gateway:      gatewayCfg,
		Orchestrator: orchestratorCfg,
		Providers:    NewLLMProviderRegistry(providers),
	}, nil
}

// validate performs comprehensive validation on loaded configuration
func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand environment variables using {{.VAR}} template syntax
	// Note: ExpandEnv passes through original data on parse/execution errors,
	// allowing YAML parser to handle the content (or fail with clearer error message)
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func (l *configLoader) loadArgusYAML() (*ArgusYAMLConfig, error) {
	var config ArgusYAMLConfig
	if err := l.loadYAML("argus.yaml", &config); err != nil {
		return nil, err
	}
	return &config, nil
}

func (l *configLoader) loadLLMProvidersYAML() (map[string]*LLMProviderConfig, error) {
	var config LLMProvidersYAMLConfig

	// Initialize map to avoid nil map
	config.LLMProviders = make(map[string]*LLMProviderConfig)

	if err := l.loadYAML("llm-providers.yaml", &config); err != nil {
		return nil, err
	}

	return config.LLMProviders, nil
}

// resolveSlackConfig resolves Slack configuration from system YAML, applying defaults.
func resolveSlackConfig(sys *SystemYAMLConfig) *SlackConfig {
	cfg := &SlackConfig{
		Enabled:  false,
		TokenEnv: "SLACK_BOT_TOKEN",
	}

	if sys == nil || sys.Slack == nil {
		return cfg
	}

	s := sys.Slack
	if s.Enabled != nil {
		cfg.Enabled = *s.Enabled
	}
	if s.TokenEnv != "" {
		cfg.TokenEnv = s.TokenEnv
	}
	if s.Channel != "" {
		cfg.Channel = s.Channel
	}

	return cfg
}

// resolvePubSubConfig resolves Pub/Sub settings from system YAML.
func resolvePubSubConfig(sys *SystemYAMLConfig) *PubSubConfig {
	if sys == nil || sys.PubSub == nil {
		return &PubSubConfig{}
	}
	return sys.PubSub
}

// resolveCleanupConfig resolves sweep settings from system YAML, applying defaults.
func resolveCleanupConfig(sys *SystemYAMLConfig) cleanup.Config {
	cfg := cleanup.DefaultConfig()

	if sys == nil || sys.Cleanup == nil {
		return cfg
	}

	c := sys.Cleanup
	if c.Interval > 0 {
		cfg.Interval = c.Interval
	}
	if c.ResumeBatch > 0 {
		cfg.ResumeBatch = c.ResumeBatch
	}
	if c.ResumeStaleAfter > 0 {
		cfg.ResumeStaleAfter = c.ResumeStaleAfter
	}

	return cfg
}

// resolveDashboardURL resolves the dashboard base URL from system YAML, applying defaults.
func resolveDashboardURL(sys *SystemYAMLConfig) string {
	if sys != nil && sys.DashboardURL != "" {
		return sys.DashboardURL
	}
	return "http://localhost:5173"
}
