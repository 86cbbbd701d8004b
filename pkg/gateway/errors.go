package gateway

import (
	"errors"
	"fmt"
)

// Sentinel errors for the gateway pipeline. Callers branch on these with
// errors.Is; everything else wraps an underlying provider or validation
// failure.
var (
	// ErrSpendExceeded means the tenant's monthly hard cap is reached.
	// Fatal to the current investigation; never retried.
	ErrSpendExceeded = errors.New("monthly spend hard cap exceeded")

	// ErrProviderPermanent marks a 4xx provider failure. Not retried;
	// callers may downgrade to an empty result where that is defined.
	ErrProviderPermanent = errors.New("permanent provider error")

	// ErrProviderTransient marks a 429/5xx provider failure after the retry
	// budget is exhausted.
	ErrProviderTransient = errors.New("transient provider error")
)

// ProviderError carries the HTTP-level status of a provider failure so the
// retry loop can distinguish transient from permanent.
type ProviderError struct {
	StatusCode int
	Message    string
	Err        error
}

// Error implements error.
func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider error (status %d): %s: %v", e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("provider error (status %d): %s", e.StatusCode, e.Message)
}

// Unwrap exposes the underlying error.
func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is worth another attempt:
// rate limits and server errors are, client errors are not.
func (e *ProviderError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
