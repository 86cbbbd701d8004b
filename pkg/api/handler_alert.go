package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/argus-soc/argus/pkg/models"
)

// maxAlertBodyBytes bounds the accepted alert payload size.
const maxAlertBodyBytes = 256 * 1024

// submitAlertHandler handles POST /api/v1/alerts.
// Validates the alert and enqueues it; processing is asynchronous and the
// response returns immediately. Re-submitting the same (tenant_id, id) pair
// is harmless: the queue deduplicates.
func (s *Server) submitAlertHandler(c *gin.Context) {
	if c.Request.ContentLength > maxAlertBodyBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": "alert payload exceeds maximum size",
		})
		return
	}

	var req SubmitAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !models.Severity(req.Severity).IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown severity: " + req.Severity})
		return
	}

	alert := req.toAlert()
	if err := s.alerts.Enqueue(c.Request.Context(), alert); err != nil {
		abortWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, &AlertResponse{
		AlertID:  alert.ID,
		TenantID: alert.TenantID,
		Status:   "queued",
	})
}
