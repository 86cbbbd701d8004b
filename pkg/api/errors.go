package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/argus-soc/argus/pkg/fpgov"
	"github.com/argus-soc/argus/pkg/orchestrator"
	"github.com/argus-soc/argus/pkg/services"
)

// abortWithServiceError maps service- and governance-layer errors to HTTP
// error responses.
func abortWithServiceError(c *gin.Context, err error) {
	status, message := mapServiceError(err)
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

func mapServiceError(err error) (int, string) {
	var validErr *services.ValidationError
	if errors.As(err, &validErr) {
		return http.StatusBadRequest, validErr.Error()
	}
	if errors.Is(err, services.ErrNotFound) || errors.Is(err, fpgov.ErrPatternNotFound) {
		return http.StatusNotFound, "resource not found"
	}
	if errors.Is(err, services.ErrAlreadyExists) {
		return http.StatusConflict, "resource already exists"
	}
	if errors.Is(err, services.ErrConcurrentModification) {
		return http.StatusConflict, "resource was modified concurrently"
	}
	if errors.Is(err, orchestrator.ErrNotAwaitingApproval) {
		return http.StatusConflict, "investigation is not awaiting approval"
	}
	if errors.Is(err, fpgov.ErrSameApprover) ||
		errors.Is(err, fpgov.ErrAlreadyApproved) ||
		errors.Is(err, fpgov.ErrNotApprovable) ||
		errors.Is(err, fpgov.ErrShadowSignOff) {
		return http.StatusConflict, err.Error()
	}
	if errors.Is(err, fpgov.ErrGovernance) {
		return http.StatusBadRequest, err.Error()
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	return http.StatusInternalServerError, "internal server error"
}
