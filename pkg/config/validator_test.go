package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-soc/argus/pkg/gateway"
	"github.com/argus-soc/argus/pkg/models"
	"github.com/argus-soc/argus/pkg/orchestrator"
	"github.com/argus-soc/argus/pkg/queue"
)

func validProviders() map[string]*LLMProviderConfig {
	return map[string]*LLMProviderConfig{
		"tier0": {
			Type:            ProviderOpenAI,
			Model:           "gpt-4o-mini",
			InputCostPer1M:  0.15,
			OutputCostPer1M: 0.6,
		},
		"tier1": {
			Type:            ProviderAnthropic,
			Model:           "claude-sonnet-4-20250514",
			InputCostPer1M:  3,
			OutputCostPer1M: 15,
		},
		"tier1plus": {
			Type:            ProviderAnthropic,
			Model:           "claude-opus-4-20250514",
			InputCostPer1M:  15,
			OutputCostPer1M: 75,
		},
	}
}

func validConfig() *Config {
	return &Config{
		Slack:     &SlackConfig{TokenEnv: "SLACK_BOT_TOKEN"},
		PubSub:    &PubSubConfig{},
		Queue:     queue.DefaultConfig(),
		Providers: NewLLMProviderRegistry(validProviders()),
	}
}

func TestValidateAllValidConfig(t *testing.T) {
	require.NoError(t, NewValidator(validConfig()).ValidateAll())
}

func TestValidateLLMProviders(t *testing.T) {
	t.Run("missing required tier", func(t *testing.T) {
		providers := validProviders()
		delete(providers, "tier1plus")
		cfg := validConfig()
		cfg.Providers = NewLLMProviderRegistry(providers)

		err := NewValidator(cfg).ValidateAll()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMissingRequiredField)
		assert.Contains(t, err.Error(), "tier1plus")
	})

	t.Run("invalid provider type", func(t *testing.T) {
		providers := validProviders()
		providers["tier0"].Type = "azure"
		cfg := validConfig()
		cfg.Providers = NewLLMProviderRegistry(providers)

		err := NewValidator(cfg).ValidateAll()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidValue)
	})

	t.Run("missing model", func(t *testing.T) {
		providers := validProviders()
		providers["tier1"].Model = ""
		cfg := validConfig()
		cfg.Providers = NewLLMProviderRegistry(providers)

		err := NewValidator(cfg).ValidateAll()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMissingRequiredField)
	})

	t.Run("negative cost", func(t *testing.T) {
		providers := validProviders()
		providers["tier1"].InputCostPer1M = -1
		cfg := validConfig()
		cfg.Providers = NewLLMProviderRegistry(providers)

		err := NewValidator(cfg).ValidateAll()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidValue)
	})
}

func TestValidateGateway(t *testing.T) {
	t.Run("negative spend cap", func(t *testing.T) {
		cfg := validConfig()
		cfg.Gateway.Limits = gateway.SpendLimits{MonthlyHardCapUSD: -10}

		err := NewValidator(cfg).ValidateAll()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidValue)
	})

	t.Run("soft alert above hard cap", func(t *testing.T) {
		cfg := validConfig()
		cfg.Gateway.Limits = gateway.SpendLimits{
			MonthlyHardCapUSD:   100,
			MonthlySoftAlertUSD: 150,
		}

		err := NewValidator(cfg).ValidateAll()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "soft alert")
	})

	t.Run("negative retries", func(t *testing.T) {
		cfg := validConfig()
		cfg.Gateway.MaxRetries = -1

		err := NewValidator(cfg).ValidateAll()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidValue)
	})
}

func TestValidatePlaybooks(t *testing.T) {
	base := func() orchestrator.Playbook {
		return orchestrator.Playbook{
			ID:             "pb-1",
			Name:           "credential-compromise",
			Classification: models.ClassificationTruePositive,
			Severities:     []string{"high"},
			Actions: []models.RecommendedAction{
				{Action: "reset_password", Target: "affected_account", Tier: models.TierConditional},
			},
		}
	}

	t.Run("valid playbook", func(t *testing.T) {
		cfg := validConfig()
		cfg.Orchestrator.Playbooks = []orchestrator.Playbook{base()}
		require.NoError(t, NewValidator(cfg).ValidateAll())
	})

	t.Run("missing id", func(t *testing.T) {
		p := base()
		p.ID = ""
		cfg := validConfig()
		cfg.Orchestrator.Playbooks = []orchestrator.Playbook{p}

		err := NewValidator(cfg).ValidateAll()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMissingRequiredField)
	})

	t.Run("duplicate id", func(t *testing.T) {
		cfg := validConfig()
		cfg.Orchestrator.Playbooks = []orchestrator.Playbook{base(), base()}

		err := NewValidator(cfg).ValidateAll()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate")
	})

	t.Run("no actions", func(t *testing.T) {
		p := base()
		p.Actions = nil
		cfg := validConfig()
		cfg.Orchestrator.Playbooks = []orchestrator.Playbook{p}

		err := NewValidator(cfg).ValidateAll()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMissingRequiredField)
	})

	t.Run("action without target", func(t *testing.T) {
		p := base()
		p.Actions[0].Target = ""
		cfg := validConfig()
		cfg.Orchestrator.Playbooks = []orchestrator.Playbook{p}

		err := NewValidator(cfg).ValidateAll()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMissingRequiredField)
	})

	t.Run("invalid action tier", func(t *testing.T) {
		p := base()
		p.Actions[0].Tier = 9
		cfg := validConfig()
		cfg.Orchestrator.Playbooks = []orchestrator.Playbook{p}

		err := NewValidator(cfg).ValidateAll()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidValue)
	})

	t.Run("invalid severity", func(t *testing.T) {
		p := base()
		p.Severities = []string{"catastrophic"}
		cfg := validConfig()
		cfg.Orchestrator.Playbooks = []orchestrator.Playbook{p}

		err := NewValidator(cfg).ValidateAll()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidValue)
	})
}

func TestValidateQueue(t *testing.T) {
	t.Run("zero workers", func(t *testing.T) {
		cfg := validConfig()
		cfg.Queue.WorkerCount = 0

		err := NewValidator(cfg).ValidateAll()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "worker_count")
	})

	t.Run("orphan threshold below heartbeat", func(t *testing.T) {
		cfg := validConfig()
		cfg.Queue.OrphanThreshold = cfg.Queue.HeartbeatInterval

		err := NewValidator(cfg).ValidateAll()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "orphan_threshold")
	})
}

func TestValidateSlack(t *testing.T) {
	t.Run("disabled skips checks", func(t *testing.T) {
		cfg := validConfig()
		cfg.Slack = &SlackConfig{Enabled: false}
		require.NoError(t, NewValidator(cfg).ValidateAll())
	})

	t.Run("enabled without channel", func(t *testing.T) {
		cfg := validConfig()
		cfg.Slack = &SlackConfig{Enabled: true, TokenEnv: "SLACK_BOT_TOKEN"}

		err := NewValidator(cfg).ValidateAll()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "channel")
	})

	t.Run("enabled without token env value", func(t *testing.T) {
		t.Setenv("TEST_SLACK_TOKEN", "")
		cfg := validConfig()
		cfg.Slack = &SlackConfig{Enabled: true, TokenEnv: "TEST_SLACK_TOKEN", Channel: "C123"}

		err := NewValidator(cfg).ValidateAll()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "TEST_SLACK_TOKEN")
	})

	t.Run("enabled fully configured", func(t *testing.T) {
		t.Setenv("TEST_SLACK_TOKEN", "xoxb-test")
		cfg := validConfig()
		cfg.Slack = &SlackConfig{Enabled: true, TokenEnv: "TEST_SLACK_TOKEN", Channel: "C123"}
		require.NoError(t, NewValidator(cfg).ValidateAll())
	})
}
