package config

import (
	"fmt"
	"os"

	"github.com/argus-soc/argus/pkg/gateway"
	"github.com/argus-soc/argus/pkg/models"
)

// requiredTiers are the provider bindings the engine cannot run without.
var requiredTiers = []string{
	string(gateway.Tier0),
	string(gateway.Tier1),
	string(gateway.Tier1Plus),
}

// ConfigValidator validates configuration comprehensively with clear error messages
type ConfigValidator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *ConfigValidator {
	return &ConfigValidator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast - stops at first error)
func (v *ConfigValidator) ValidateAll() error {
	if err := v.validateLLMProviders(); err != nil {
		return fmt.Errorf("LLM provider validation failed: %w", err)
	}

	if err := v.validateGateway(); err != nil {
		return fmt.Errorf("gateway validation failed: %w", err)
	}

	if err := v.validatePlaybooks(); err != nil {
		return fmt.Errorf("playbook validation failed: %w", err)
	}

	if err := v.validateQueue(); err != nil {
		return fmt.Errorf("queue validation failed: %w", err)
	}

	if err := v.validateSlack(); err != nil {
		return fmt.Errorf("slack validation failed: %w", err)
	}

	return nil
}

func (v *ConfigValidator) validateLLMProviders() error {
	for _, tier := range requiredTiers {
		if !v.cfg.Providers.Has(tier) {
			return NewValidationError("llm_provider", tier, "",
				fmt.Errorf("%w: required tier binding", ErrMissingRequiredField))
		}
	}

	for tier, provider := range v.cfg.Providers.GetAll() {
		if !provider.Type.IsValid() {
			return NewValidationError("llm_provider", tier, "type",
				fmt.Errorf("%w: %s", ErrInvalidValue, provider.Type))
		}
		if provider.Model == "" {
			return NewValidationError("llm_provider", tier, "model",
				fmt.Errorf("%w", ErrMissingRequiredField))
		}
		if provider.InputCostPer1M < 0 || provider.OutputCostPer1M < 0 {
			return NewValidationError("llm_provider", tier, "input_cost_per_1m",
				fmt.Errorf("%w: cost must not be negative", ErrInvalidValue))
		}
		if provider.APIKeyEnv != "" && os.Getenv(provider.APIKeyEnv) == "" {
			// Key absence is a deploy-time problem, not a config-shape one.
			fmt.Fprintf(os.Stderr, "warning: %s references unset env var %s\n", tier, provider.APIKeyEnv)
		}
	}
	return nil
}

func (v *ConfigValidator) validateGateway() error {
	limits := v.cfg.Gateway.Limits
	if limits.MonthlyHardCapUSD < 0 || limits.MonthlySoftAlertUSD < 0 {
		return NewValidationError("gateway", "limits", "monthly_hard_cap_usd",
			fmt.Errorf("%w: spend limits must not be negative", ErrInvalidValue))
	}
	if limits.MonthlyHardCapUSD > 0 && limits.MonthlySoftAlertUSD > limits.MonthlyHardCapUSD {
		return NewValidationError("gateway", "limits", "monthly_soft_alert_usd",
			fmt.Errorf("%w: soft alert must not exceed the hard cap", ErrInvalidValue))
	}
	if v.cfg.Gateway.MaxRetries < 0 {
		return NewValidationError("gateway", "retries", "max_retries",
			fmt.Errorf("%w: must not be negative", ErrInvalidValue))
	}
	return nil
}

func (v *ConfigValidator) validatePlaybooks() error {
	seen := make(map[string]bool)
	for _, p := range v.cfg.Orchestrator.Playbooks {
		if p.ID == "" {
			return NewValidationError("playbook", p.Name, "id",
				fmt.Errorf("%w", ErrMissingRequiredField))
		}
		if seen[p.ID] {
			return NewValidationError("playbook", p.ID, "id",
				fmt.Errorf("%w: duplicate playbook id", ErrInvalidValue))
		}
		seen[p.ID] = true

		if len(p.Actions) == 0 {
			return NewValidationError("playbook", p.ID, "actions",
				fmt.Errorf("%w: at least one action required", ErrMissingRequiredField))
		}
		for i, a := range p.Actions {
			if a.Action == "" || a.Target == "" {
				return NewValidationError("playbook", p.ID,
					fmt.Sprintf("actions[%d]", i),
					fmt.Errorf("%w: action and target required", ErrMissingRequiredField))
			}
			if !a.Tier.IsValid() {
				return NewValidationError("playbook", p.ID,
					fmt.Sprintf("actions[%d].tier", i),
					fmt.Errorf("%w: %d", ErrInvalidValue, int(a.Tier)))
			}
		}
		for _, s := range p.Severities {
			if !models.Severity(s).IsValid() {
				return NewValidationError("playbook", p.ID, "severities",
					fmt.Errorf("%w: %s", ErrInvalidValue, s))
			}
		}
	}
	return nil
}

func (v *ConfigValidator) validateQueue() error {
	q := v.cfg.Queue
	if q.WorkerCount < 1 {
		return NewValidationError("queue", "queue", "worker_count",
			fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if q.MaxConcurrentInvestigations < 1 {
		return NewValidationError("queue", "queue", "max_concurrent_investigations",
			fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if q.MaxAttempts < 1 {
		return NewValidationError("queue", "queue", "max_attempts",
			fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if q.PollInterval <= 0 || q.HeartbeatInterval <= 0 || q.OrphanThreshold <= 0 {
		return NewValidationError("queue", "queue", "poll_interval",
			fmt.Errorf("%w: intervals must be positive", ErrInvalidValue))
	}
	if q.OrphanThreshold <= q.HeartbeatInterval {
		return NewValidationError("queue", "queue", "orphan_threshold",
			fmt.Errorf("%w: must exceed the heartbeat interval", ErrInvalidValue))
	}
	return nil
}

func (v *ConfigValidator) validateSlack() error {
	s := v.cfg.Slack
	if s == nil || !s.Enabled {
		return nil
	}
	if s.Channel == "" {
		return NewValidationError("slack", "slack", "channel",
			fmt.Errorf("%w: required when slack is enabled", ErrMissingRequiredField))
	}
	if os.Getenv(s.TokenEnv) == "" {
		return NewValidationError("slack", "slack", "token_env",
			fmt.Errorf("%w: %s is unset", ErrInvalidValue, s.TokenEnv))
	}
	return nil
}
