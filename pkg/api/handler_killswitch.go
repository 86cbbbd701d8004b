package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/argus-soc/argus/pkg/models"
)

// activateKillSwitchHandler handles PUT /api/v1/kill-switches/:dimension/:value.
func (s *Server) activateKillSwitchHandler(c *gin.Context) {
	dim := models.KillSwitchDimension(c.Param("dimension"))
	if !dim.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown kill-switch dimension: " + string(dim)})
		return
	}

	var req KillSwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.killSwitches.Activate(c.Request.Context(), dim, c.Param("value"), extractActor(c), req.Reason); err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "activated"})
}

// getKillSwitchHandler handles GET /api/v1/kill-switches/:dimension/:value.
func (s *Server) getKillSwitchHandler(c *gin.Context) {
	dim := models.KillSwitchDimension(c.Param("dimension"))
	if !dim.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown kill-switch dimension: " + string(dim)})
		return
	}

	ks, err := s.killSwitches.Get(c.Request.Context(), dim, c.Param("value"))
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	if ks == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "kill switch not active"})
		return
	}
	c.JSON(http.StatusOK, ks)
}

// deactivateKillSwitchHandler handles DELETE /api/v1/kill-switches/:dimension/:value.
func (s *Server) deactivateKillSwitchHandler(c *gin.Context) {
	dim := models.KillSwitchDimension(c.Param("dimension"))
	if !dim.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown kill-switch dimension: " + string(dim)})
		return
	}

	reason := c.Query("reason")
	if err := s.killSwitches.Deactivate(c.Request.Context(), dim, c.Param("value"), extractActor(c), reason); err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deactivated"})
}
