// Package middleware provides HTTP middleware for the presentation layer.
package middleware

import (
	"net/http"
	"time"

	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/tenant"
	"github.com/gin-gonic/gin"
)

// TenantMiddleware creates middleware that resolves the full tenant context
// for a request and validates the workspace the gateway scoped it to.
func TenantMiddleware(tenantManager *tenant.Manager) gin.HandlerFunc {
	logger := tenantManager.GetLogger()

	return func(c *gin.Context) {
		start := time.Now()

		tenantCtx, err := tenantManager.GetContext(c)
		if err != nil {
			logger.Tenant().Warn("Tenant resolution failed",
				"error", err.Error(),
				"path", c.Request.URL.Path,
				"requestId", GetRequestID(c))
			c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
			c.Abort()
			return
		}

		workspaceID := c.GetHeader("X-Workspace-ID")
		if workspaceID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "X-Workspace-ID header is required"})
			c.Abort()
			return
		}
		if !tenantCtx.Config.HasWorkspace(workspaceID) {
			logger.Tenant().Warn("Workspace not in tenant",
				"tenantId", tenantCtx.TenantID,
				"workspaceId", workspaceID)
			c.JSON(http.StatusForbidden, gin.H{"error": "workspace not found in tenant"})
			c.Abort()
			return
		}

		logger.Tenant().Debug("Tenant context resolved",
			"tenantId", tenantCtx.TenantID,
			"workspaceId", workspaceID,
			"duration", time.Since(start))

		c.Set("tenant", tenantCtx)
		c.Set("workspaceId", workspaceID)

		c.Next()
	}
}

// GetTenantContext retrieves the tenant context from gin context.
func GetTenantContext(c *gin.Context) (*tenant.Context, bool) {
	tenantCtx, exists := c.Get("tenant")
	if !exists {
		return nil, false
	}

	ctx, ok := tenantCtx.(*tenant.Context)
	return ctx, ok
}

// GetWorkspaceID retrieves the workspace scope the gateway set for this request.
func GetWorkspaceID(c *gin.Context) string {
	if ws, exists := c.Get("workspaceId"); exists {
		if s, ok := ws.(string); ok {
			return s
		}
	}
	return ""
}
