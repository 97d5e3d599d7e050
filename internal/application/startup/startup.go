// Package startup prepares the application server
package startup

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PulseMetrics/pulsetrack-go/internal/application/container"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/tenant"
	"github.com/PulseMetrics/pulsetrack-go/internal/presentation/http/server"
	"github.com/PulseMetrics/pulsetrack-go/pkg/config"
	"github.com/gin-gonic/gin"
)

// Initialize performs the complete multi-tenant startup sequence
func Initialize() error {
	setupLogging()

	start := time.Now().UTC()

	ctx, cancelBackgroundTasks := context.WithCancel(context.Background())
	defer cancelBackgroundTasks()

	log.Println("\033[32m" + `

  ▄▄▄▄  ▄  ▄ ▄▄ ▄▄▄ ▄▄▄▄▄▄▄ ▄▄▄  ▄▄▄  ▄▄ ▄▄
  ██ ██ ██ ██ ██ ██▄ ██▄  ██ ██▄▀ ██▀█ ██ ▄█▀
  ██▀▀  ██ ██ ██  ▄██ ▄██  ██ ██ ▀ ██▀█ ██▀█▄
  ██    ▀███▀ ██ ███▀███▀  ██ ██   ██ █ ██ ██
` + "\033[97m" + `
  made by PulseMetrics
` + "\033[0m")

	// Step 1: Load tenant registry to discover all tenants
	log.Println("Loading tenant registry...")
	registry, err := tenant.LoadTenantRegistry()
	if err != nil {
		return fmt.Errorf("failed to load tenant registry: %w", err)
	}

	if len(registry.Tenants) == 0 {
		log.Println("No tenants found in registry - creating default tenant")
		if err := tenant.RegisterTenant("default"); err != nil {
			return fmt.Errorf("failed to register default tenant: %w", err)
		}
		registry, err = tenant.LoadTenantRegistry()
		if err != nil {
			return fmt.Errorf("failed to reload registry: %w", err)
		}
	}

	log.Printf("Found %d tenants in registry", len(registry.Tenants))

	// Step 2: Create dependency injection container (logger, cache, tenant manager, services)
	log.Println("Initializing dependency injection container...")
	appContainer, err := container.NewContainer()
	if err != nil {
		return fmt.Errorf("container initialization failed: %w", err)
	}

	logger := appContainer.Logger
	logger.Startup().Info("Container initialization complete - switching to channeled logging")

	// Step 3: Watch tunables file for hot reload, if configured
	if config.TunablesPath != "" {
		logger.Startup().Info("Watching tunables file", "path", config.TunablesPath)
		stopWatch, err := config.WatchTunables(config.TunablesPath)
		if err != nil {
			logger.Startup().Warn("Tunables watch failed, using static values", "error", err.Error())
		} else {
			defer stopWatch()
		}
	}

	// Step 4: Pre-activate all registered tenants
	logger.Startup().Info("Starting tenant pre-activation...")
	tenantManager := appContainer.TenantManager
	if err := tenantManager.PreActivateAllTenants(); err != nil {
		appContainer.Close()
		return fmt.Errorf("tenant pre-activation failed: %w", err)
	}

	activeCount, err := tenantManager.GetActiveTenantCount()
	if err != nil {
		appContainer.Close()
		return fmt.Errorf("failed to get active tenant count: %w", err)
	}
	logger.Startup().Info("Tenant pre-activation complete", "activeTenants", activeCount)

	// Step 5: Start background funnel run sweeper
	logger.Startup().Info("Starting funnel run sweeper...")
	go appContainer.SweeperService.Run(ctx)

	// Step 6: Start HTTP server
	logger.Startup().Info("Starting HTTP server...")
	startServerTime := time.Now()

	httpServer := server.New(config.Port, appContainer)
	logger.Startup().Info("HTTP server initialized", "port", config.Port, "duration", time.Since(startServerTime))

	// Step 7: Setup graceful shutdown
	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.System().Info("Starting HTTP server", "address", ":"+config.Port)
		if err := httpServer.Start(); err != nil {
			logger.System().Error("HTTP server failed", "error", err.Error())
		}
	}()

	totalStartupTime := time.Since(start)
	logger.Startup().Info("Application startup complete",
		"totalDuration", totalStartupTime,
		"activeTenants", activeCount,
		"port", config.Port)

	// Wait for shutdown signal
	<-gracefulShutdown
	logger.Shutdown().Info("Shutdown signal received, starting graceful shutdown...")

	shutdownStart := time.Now()

	// Cancel background tasks
	cancelBackgroundTasks()

	// Stop server first so no new events arrive while the dispatcher drains
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Shutdown().Info("Stopping HTTP server...")
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Shutdown().Error("Error during server shutdown", "error", err.Error())
	} else {
		logger.Shutdown().Info("HTTP server stopped successfully")
	}

	// Drain the dispatcher and close tenant databases and caches
	logger.Shutdown().Info("Draining dispatcher and closing container...")
	if err := appContainer.Close(); err != nil {
		logger.Shutdown().Error("Error closing container", "error", err.Error())
	} else {
		logger.Shutdown().Info("Container closed successfully")
	}

	elapsed := time.Since(start)
	logger.Shutdown().Info("Application shutdown complete",
		"totalUptime", elapsed,
		"shutdownDuration", time.Since(shutdownStart))

	return nil
}

// setupLogging configures application logging
func setupLogging() {
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}
