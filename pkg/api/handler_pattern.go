package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/argus-soc/argus/pkg/models"
)

// createPatternHandler handles POST /api/v1/patterns.
// New patterns start in pending_review and default to requiring a canary run
// before they match live; callers may opt a narrowly-scoped pattern out.
func (s *Server) createPatternHandler(c *gin.Context) {
	var req CreatePatternRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	canaryRequired := true
	if req.CanaryRequired != nil && !req.Scope.IsGlobal() {
		canaryRequired = *req.CanaryRequired
	}

	p := &models.FPPattern{
		AlertNameRegex:       req.AlertNameRegex,
		EntityPatterns:       req.EntityPatterns,
		SeverityBand:         req.SeverityBand,
		Confidence:           req.Confidence,
		Scope:                req.Scope,
		SourceInvestigations: req.SourceInvestigations,
		CanaryRequired:       canaryRequired,
	}
	created, err := s.patterns.CreatePattern(c.Request.Context(), p)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// listPatternsHandler handles GET /api/v1/patterns?status=a,b.
func (s *Server) listPatternsHandler(c *gin.Context) {
	raw := c.DefaultQuery("status", string(models.PatternStatusPendingReview))
	var statuses []models.PatternStatus
	for _, part := range strings.Split(raw, ",") {
		st := models.PatternStatus(strings.TrimSpace(part))
		if !st.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown pattern status: " + string(st)})
			return
		}
		statuses = append(statuses, st)
	}

	patterns, err := s.patterns.ListByStatus(c.Request.Context(), statuses...)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	if patterns == nil {
		patterns = []models.FPPattern{}
	}
	c.JSON(http.StatusOK, patterns)
}

// getPatternHandler handles GET /api/v1/patterns/:id.
func (s *Server) getPatternHandler(c *gin.Context) {
	p, err := s.patterns.GetPattern(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	if p == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "resource not found"})
		return
	}
	c.JSON(http.StatusOK, p)
}

// canaryStatsHandler handles GET /api/v1/patterns/:id/canary.
func (s *Server) canaryStatsHandler(c *gin.Context) {
	stats, err := s.canary.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// approvePatternHandler handles POST /api/v1/patterns/:id/approve.
// Two-person rule: the first call records approver_1, a second call by a
// distinct approver completes the approval.
func (s *Server) approvePatternHandler(c *gin.Context) {
	p, err := s.governance.Approve(c.Request.Context(), c.Param("id"), extractActor(c))
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// reaffirmPatternHandler handles POST /api/v1/patterns/:id/reaffirm.
func (s *Server) reaffirmPatternHandler(c *gin.Context) {
	p, err := s.governance.Reaffirm(c.Request.Context(), c.Param("id"), extractActor(c))
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// revokePatternHandler handles POST /api/v1/patterns/:id/revoke.
// Revocation rolls back the pattern's damage: every investigation it
// auto-closed is re-opened.
func (s *Server) revokePatternHandler(c *gin.Context) {
	p, reopened, err := s.governance.Revoke(c.Request.Context(), c.Param("id"), extractActor(c))
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	if reopened == nil {
		reopened = []string{}
	}
	c.JSON(http.StatusOK, &RevokeResponse{Pattern: p, Reopened: reopened})
}
