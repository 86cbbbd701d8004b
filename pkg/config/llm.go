package config

import (
	"fmt"
	"os"
	"sync"
)

// LLMProviderType identifies the provider adapter family.
type LLMProviderType string

const (
	ProviderAnthropic LLMProviderType = "anthropic"
	ProviderOpenAI    LLMProviderType = "openai"
)

// IsValid checks if the provider type is a known value.
func (t LLMProviderType) IsValid() bool {
	return t == ProviderAnthropic || t == ProviderOpenAI
}

// Reserved registry keys. The tier keys match the gateway tier names; the
// second-opinion entry backs the injection classifier.
const (
	TierKeySecondOpinion = "second_opinion"
)

// LLMProviderConfig defines one provider binding for a tier.
type LLMProviderConfig struct {
	// Provider type (required)
	Type LLMProviderType `yaml:"type"`

	// Model name (required)
	Model string `yaml:"model"`

	// Environment variable name for API key
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	// Optional custom endpoint/base URL (OpenAI-compatible providers)
	BaseURL string `yaml:"base_url,omitempty"`

	// Cost accounting per million tokens, for the spend ledger
	InputCostPer1M  float64 `yaml:"input_cost_per_1m"`
	OutputCostPer1M float64 `yaml:"output_cost_per_1m"`
}

// APIKey resolves the API key from the configured environment variable.
func (c *LLMProviderConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// LLMProviderRegistry stores per-tier provider configurations in memory with
// thread-safe access.
type LLMProviderRegistry struct {
	providers map[string]*LLMProviderConfig
	mu        sync.RWMutex
}

// NewLLMProviderRegistry creates a new LLM provider registry
func NewLLMProviderRegistry(providers map[string]*LLMProviderConfig) *LLMProviderRegistry {
	// Defensive copy to prevent external mutation
	copied := make(map[string]*LLMProviderConfig, len(providers))
	for k, v := range providers {
		copied[k] = v
	}
	return &LLMProviderRegistry{
		providers: copied,
	}
}

// Get retrieves a provider configuration by tier name (thread-safe)
func (r *LLMProviderRegistry) Get(tier string) (*LLMProviderConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.providers[tier]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrLLMProviderNotFound, tier)
	}
	return provider, nil
}

// GetAll returns all provider configurations (thread-safe, returns copy)
func (r *LLMProviderRegistry) GetAll() map[string]*LLMProviderConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*LLMProviderConfig, len(r.providers))
	for k, v := range r.providers {
		result[k] = v
	}
	return result
}

// Has checks if a tier binding exists in the registry (thread-safe)
func (r *LLMProviderRegistry) Has(tier string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.providers[tier]
	return exists
}

// Len returns the number of bindings in the registry (thread-safe)
func (r *LLMProviderRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}
