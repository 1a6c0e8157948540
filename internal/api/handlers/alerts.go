package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *Handler) ListOpenAlerts(c *gin.Context) {
	alerts, err := h.repo.ListOpenAlerts(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list open alerts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "total": len(alerts)})
}

func (h *Handler) GetTenantAlerts(c *gin.Context) {
	tenantID := c.Param("id")

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit < 1 || limit > 100 {
		limit = 50
	}

	alerts, err := h.repo.ListAlertsByTenant(c.Request.Context(), tenantID, limit)
	if err != nil {
		h.logger.Error("Failed to get alerts", zap.String("tenant_id", tenantID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}
