// Package container provides dependency injection for all singleton services
package container

import (
	"fmt"

	"github.com/PulseMetrics/pulsetrack-go/internal/application/services"
	"github.com/PulseMetrics/pulsetrack-go/internal/application/workers"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/caching/interfaces"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/caching/manager"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/caching/stores"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/observability/logging"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/tenant"
	"github.com/PulseMetrics/pulsetrack-go/pkg/config"
)

// Container holds all singleton services and infrastructure dependencies
type Container struct {
	// Pipeline services (stateless singletons)
	SessionService     *services.SessionService
	IdentityService    *services.IdentityService
	IntakeService      *services.IntakeService
	FunnelService      *services.FunnelService
	ProgressionService *services.ProgressionService
	SweeperService     *services.SweeperService

	// Background workers
	Dispatcher *workers.Dispatcher

	// Infrastructure dependencies
	TenantManager *tenant.Manager
	CacheManager  *manager.Manager
	CacheStore    interfaces.Store
	Logger        *logging.ChanneledLogger
}

// NewContainer creates and wires all singleton services
func NewContainer() (*Container, error) {
	logger, err := logging.NewChanneledLogger(loggerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	store, err := newCacheStore(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache store: %w", err)
	}
	cacheManager := manager.NewManager(store, logger)

	tenantManager, err := tenant.NewManager(cacheManager, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create tenant manager: %w", err)
	}

	resolve := func(tenantID string) (*services.Deps, error) {
		tenantCtx, err := tenantManager.GetContextFromID(tenantID)
		if err != nil {
			return nil, err
		}
		return services.DepsFrom(tenantCtx), nil
	}

	sessionService := services.NewSessionService(logger)
	progressionService := services.NewProgressionService(logger)

	dispatcher := workers.NewDispatcher(
		config.FunnelWorkers,
		config.FunnelQueueCapacity,
		progressionService.MakeJobProcessor(resolve),
		logger,
	)

	return &Container{
		SessionService:     sessionService,
		IdentityService:    services.NewIdentityService(logger),
		IntakeService:      services.NewIntakeService(sessionService, dispatcher, logger),
		FunnelService:      services.NewFunnelService(logger),
		ProgressionService: progressionService,
		SweeperService:     services.NewSweeperService(resolve, tenantManager.ActiveTenantIDs, logger),

		Dispatcher: dispatcher,

		TenantManager: tenantManager,
		CacheManager:  cacheManager,
		CacheStore:    store,
		Logger:        logger,
	}, nil
}

// Close releases all container-held resources in dependency order.
func (c *Container) Close() error {
	c.Dispatcher.Drain()

	var firstErr error
	if err := c.TenantManager.Close(); err != nil {
		firstErr = err
	}
	if err := c.CacheManager.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func newCacheStore(logger *logging.ChanneledLogger) (interfaces.Store, error) {
	switch config.CacheBackend {
	case "badger":
		return stores.NewBadgerStore(config.BadgerPath, logger)
	default:
		return stores.NewMemoryStore(config.CacheSweepInterval, logger), nil
	}
}

func loggerConfig() *logging.LoggerConfig {
	cfg := logging.DefaultLoggerConfig()
	cfg.LogDirectory = config.LogDirectory
	cfg.OutputToFile = config.LogToFile
	cfg.IncludeSource = config.VerboseLogging
	cfg.DefaultLevel = logging.ParseLevel(config.DefaultLogLevel)
	return cfg
}
