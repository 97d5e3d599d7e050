// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"github.com/PulseMetrics/pulsetrack-go/internal/application/container"
	"github.com/PulseMetrics/pulsetrack-go/internal/presentation/http/handlers"
	"github.com/PulseMetrics/pulsetrack-go/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.AccessLogMiddleware(container.Logger))
	r.Use(middleware.CORSMiddleware())

	// Initialize handlers
	eventHandlers := handlers.NewEventHandlers(container.IntakeService, container.Logger)
	identityHandlers := handlers.NewIdentityHandlers(container.IdentityService, container.Logger)
	funnelHandlers := handlers.NewFunnelHandlers(container.FunnelService, container.Logger)
	contextHandlers := handlers.NewContextHandlers(container.IdentityService, container.FunnelService, container.Logger)
	healthHandlers := handlers.NewHealthHandlers(container.TenantManager, container.Dispatcher)

	// Operational endpoints, no tenant scope
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.GET("/health", healthHandlers.GetHealth)

	// Tenant-scoped pipeline endpoints
	scoped := api.Group("")
	scoped.Use(middleware.TenantMiddleware(container.TenantManager))
	{
		scoped.POST("/events", eventHandlers.PostEvent)
		scoped.POST("/events/batch", eventHandlers.PostEventBatch)
		scoped.POST("/identify", identityHandlers.PostIdentify)
		scoped.POST("/funnels/snapshot", funnelHandlers.PostSnapshot)
		scoped.GET("/funnels", funnelHandlers.ListFunnels)
		scoped.GET("/context", contextHandlers.GetContext)
	}

	return r
}
