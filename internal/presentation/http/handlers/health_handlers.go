package handlers

import (
	"net/http"
	"time"

	"github.com/PulseMetrics/pulsetrack-go/internal/application/workers"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/tenant"
	"github.com/gin-gonic/gin"
)

// HealthHandlers serves liveness and readiness information
type HealthHandlers struct {
	tenantManager *tenant.Manager
	dispatcher    *workers.Dispatcher
	startedAt     time.Time
}

// NewHealthHandlers creates health handlers with injected dependencies
func NewHealthHandlers(tenantManager *tenant.Manager, dispatcher *workers.Dispatcher) *HealthHandlers {
	return &HealthHandlers{
		tenantManager: tenantManager,
		dispatcher:    dispatcher,
		startedAt:     time.Now().UTC(),
	}
}

// GetHealth handles GET /api/v1/health
func (h *HealthHandlers) GetHealth(c *gin.Context) {
	activeCount, err := h.tenantManager.GetActiveTenantCount()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"uptimeSeconds": int64(time.Since(h.startedAt).Seconds()),
		"activeTenants": activeCount,
		"queueDepth":    h.dispatcher.QueueLen(),
	})
}
