package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ProviderRequest is the provider-native input: assembled system blocks plus
// the sanitised, redacted user content.
type ProviderRequest struct {
	SystemBlocks []SystemBlock
	UserContent  string
	MaxTokens    int
}

// ProviderResponse is the raw provider output before validation.
type ProviderResponse struct {
	Content      string
	ModelID      string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

// Provider adapts the internal request shape to one LLM backend. Adapters
// translate system blocks to the provider's native prompt-caching form.
type Provider interface {
	// Complete performs one non-streaming completion.
	Complete(ctx context.Context, req ProviderRequest) (*ProviderResponse, error)
	// ModelID reports the model this provider instance is bound to.
	ModelID() string
}

// RetryPolicy caps attempts and paces them with exponential backoff.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy is 3 attempts with 1s/2s/4s backoff.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}

// callWithRetry invokes the provider, retrying rate limits and server
// errors with exponential backoff. Client errors (4xx) fail immediately.
func callWithRetry(ctx context.Context, provider Provider, req ProviderRequest, policy RetryPolicy, logger *slog.Logger) (*ProviderResponse, error) {
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy
	}

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := policy.BaseDelay * time.Duration(1<<(attempt-1))
			logger.Warn("Retrying LLM call",
				"model", provider.ModelID(), "attempt", attempt+1, "delay", delay)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := provider.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var provErr *ProviderError
		if errors.As(err, &provErr) && !provErr.Retryable() {
			return nil, fmt.Errorf("%w: %v", ErrProviderPermanent, err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("%w: %d attempts failed: %v", ErrProviderTransient, policy.MaxAttempts, lastErr)
}
