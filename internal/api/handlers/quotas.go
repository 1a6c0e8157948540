package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/leozw/quota-guardian/internal/db"
	"github.com/leozw/quota-guardian/internal/quota"
)

type EvaluateRequest struct {
	Tenants []quota.TenantInput `json:"tenants" binding:"required"`
}

// EvaluateQuotas evaluates a batch supplied by the caller. Invalid tenants are reported
// inline; only a malformed body fails the request.
func (h *Handler) EvaluateQuotas(c *gin.Context) {
	var req EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	results := h.evaluator.EvaluateBatch(req.Tenants)

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"results": results,
		"total":   len(results),
		"failed":  failed,
	})
}

func (h *Handler) ListQuotas(c *gin.Context) {
	snapshots, err := h.repo.ListLatestSnapshots(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list snapshots", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	quotas := make([]*quota.TenantQuota, 0, len(snapshots))
	for i := range snapshots {
		q, err := snapshots[i].Quota()
		if err != nil {
			h.logger.Warn("Skipping unreadable snapshot", zap.String("snapshot_id", snapshots[i].ID), zap.Error(err))
			continue
		}
		quotas = append(quotas, q)
	}

	c.JSON(http.StatusOK, gin.H{"quotas": quotas, "total": len(quotas)})
}

// GetTenantQuota serves the latest snapshot from the cache, then the database. With
// ?refresh=true it evaluates the tenant from the database first.
func (h *Handler) GetTenantQuota(c *gin.Context) {
	tenantID := c.Param("id")
	ctx := c.Request.Context()

	if c.Query("refresh") == "true" {
		q, err := h.refresher.Refresh(ctx, tenantID)
		if err != nil {
			h.writeRefreshError(c, tenantID, err)
			return
		}
		c.JSON(http.StatusOK, q)
		return
	}

	if q, err := h.cache.GetCachedSnapshot(ctx, tenantID); err == nil {
		c.JSON(http.StatusOK, q)
		return
	}

	snapshot, err := h.repo.GetLatestSnapshot(ctx, tenantID)
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No quota snapshot for tenant"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to get snapshot", zap.String("tenant_id", tenantID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	q, err := snapshot.Quota()
	if err != nil {
		h.logger.Error("Unreadable snapshot", zap.String("snapshot_id", snapshot.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *Handler) writeRefreshError(c *gin.Context, tenantID string, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Tenant not found"})
	case errors.Is(err, quota.ErrInvalidInput):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Failed to refresh tenant", zap.String("tenant_id", tenantID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
