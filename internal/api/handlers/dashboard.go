package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *Handler) GetDashboard(c *gin.Context) {
	d, err := h.dashboard.Get(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to build dashboard", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, d)
}

// ConsolidateDashboard consolidates caller supplied source bundles. Unknown or malformed
// bundles come back as notices, not errors.
func (h *Handler) ConsolidateDashboard(c *gin.Context) {
	var raw map[string]json.RawMessage
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, h.dashboard.Consolidate(raw))
}
