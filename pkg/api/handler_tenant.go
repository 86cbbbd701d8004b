package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// shadowMetricsHandler handles GET /api/v1/tenants/:id/shadow-metrics.
// Returns the rolling 14-day scorecard used to gate go-live.
func (s *Server) shadowMetricsHandler(c *gin.Context) {
	m, err := s.shadow.Metrics(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// goLiveHandler handles POST /api/v1/tenants/:id/go-live.
// Refused unless the scorecard clears the go-live criteria.
func (s *Server) goLiveHandler(c *gin.Context) {
	cfg, err := s.shadow.GoLive(c.Request.Context(), c.Param("id"), extractActor(c))
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// enableShadowHandler handles POST /api/v1/tenants/:id/shadow.
// Re-entering shadow mode is always allowed and clears the go-live sign-off.
func (s *Server) enableShadowHandler(c *gin.Context) {
	var req EnableShadowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, err := s.shadow.EnableShadow(c.Request.Context(), c.Param("id"), req.RuleFamilies, extractActor(c))
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}
