package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/argus-soc/argus/pkg/models"
)

// getInvestigationHandler handles GET /api/v1/investigations/:id.
func (s *Server) getInvestigationHandler(c *gin.Context) {
	inv, err := s.investigations.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

// resolveApprovalHandler handles POST /api/v1/investigations/:id/approval.
// Resolves the pending approval request and resumes the paused investigation
// with the human verdict.
func (s *Server) resolveApprovalHandler(c *gin.Context) {
	var req ResolveApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	invID := c.Param("id")
	actor := extractActor(c)

	pending, err := s.approvals.PendingForInvestigation(ctx, invID)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}

	approval, err := s.approvals.Resolve(ctx, pending.ID, *req.Approved, actor)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}

	inv, err := s.driver.ResumeFromApproval(ctx, invID, *req.Approved, actor)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, &ApprovalResponse{
		Approval:      approval,
		Investigation: inv,
	})
}

// analystDecisionHandler handles POST /api/v1/investigations/:id/analyst-decision.
// Pairs the analyst's verdict with the recorded shadow decision; a would-be
// pattern short-circuit also feeds that pattern's canary counters.
func (s *Server) analystDecisionHandler(c *gin.Context) {
	var req AnalystDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	invID := c.Param("id")

	inv, err := s.investigations.GetByID(ctx, invID)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}

	decision, err := s.shadow.Reconcile(ctx, invID, req.Decision, shadowPatternID(inv))
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

// shadowPatternID extracts the pattern id from a shadow_logged decision-chain
// entry, empty when the shadow decision did not come from a pattern match.
func shadowPatternID(inv *models.Investigation) string {
	for _, d := range inv.DecisionChain {
		if d.Action != models.DecisionActionShadowLogged {
			continue
		}
		if id, ok := d.Detail["pattern_id"].(string); ok {
			return id
		}
	}
	return ""
}
