package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationErrorFormatting(t *testing.T) {
	t.Run("with field", func(t *testing.T) {
		err := NewValidationError("playbook", "pb-1", "actions", ErrMissingRequiredField)
		assert.Equal(t, "playbook 'pb-1': field 'actions': missing required field", err.Error())
	})

	t.Run("without field", func(t *testing.T) {
		err := NewValidationError("llm_provider", "tier1", "", ErrMissingRequiredField)
		assert.Equal(t, "llm_provider 'tier1': missing required field", err.Error())
	})
}

func TestValidationErrorUnwrap(t *testing.T) {
	err := NewValidationError("queue", "queue", "worker_count", ErrInvalidValue)
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.NotErrorIs(t, err, ErrMissingRequiredField)
}

func TestLoadErrorFormatting(t *testing.T) {
	inner := errors.New("permission denied")
	err := NewLoadError("argus.yaml", inner)
	assert.Equal(t, "failed to load argus.yaml: permission denied", err.Error())
	assert.ErrorIs(t, err, inner)
}

func TestLoadErrorWrapsSentinels(t *testing.T) {
	err := NewLoadError("llm-providers.yaml", ErrConfigNotFound)
	assert.ErrorIs(t, err, ErrConfigNotFound)
}
