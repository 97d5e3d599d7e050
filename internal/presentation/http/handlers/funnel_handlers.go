package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/PulseMetrics/pulsetrack-go/internal/application/services"
	"github.com/PulseMetrics/pulsetrack-go/internal/domain/funnels"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/observability/logging"
	"github.com/PulseMetrics/pulsetrack-go/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
)

// FunnelHandlers contains the funnel snapshot HTTP handlers
type FunnelHandlers struct {
	funnelService *services.FunnelService
	logger        *logging.ChanneledLogger
}

// NewFunnelHandlers creates funnel handlers with injected dependencies
func NewFunnelHandlers(funnelService *services.FunnelService, logger *logging.ChanneledLogger) *FunnelHandlers {
	return &FunnelHandlers{funnelService: funnelService, logger: logger}
}

// PostSnapshot handles POST /api/v1/funnels/snapshot, the ingest point for
// snapshots published by the funnel builder.
func (h *FunnelHandlers) PostSnapshot(c *gin.Context) {
	tenantCtx, ok := middleware.GetTenantContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "missing tenant context"})
		return
	}

	var def funnels.Definition
	if !bindCapped(c, &def) {
		return
	}
	def.WorkspaceID = middleware.GetWorkspaceID(c)

	deps := services.DepsFrom(tenantCtx)
	if err := h.funnelService.PublishSnapshot(deps, &def, time.Now().UTC()); err != nil {
		if errors.Is(err, funnels.ErrVersionExists) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accepted": true,
		"funnelId": def.FunnelID,
		"version":  def.Version,
	})
}

// ListFunnels handles GET /api/v1/funnels
func (h *FunnelHandlers) ListFunnels(c *gin.Context) {
	tenantCtx, ok := middleware.GetTenantContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "missing tenant context"})
		return
	}

	deps := services.DepsFrom(tenantCtx)
	defs, err := h.funnelService.ListSnapshots(deps, middleware.GetWorkspaceID(c))
	if err != nil {
		h.logger.Funnel().Error("Failed to list funnel snapshots",
			"tenantId", tenantCtx.TenantID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list funnels"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"funnels": defs, "count": len(defs)})
}
