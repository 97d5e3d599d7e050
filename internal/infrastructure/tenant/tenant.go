// Package tenant manages tenant-specific configurations and context,
// isolating multi-tenancy logic from the rest of the application.
package tenant

import (
	"fmt"
	"sync"

	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/caching/manager"
	infraDatabase "github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/database"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/observability/logging"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/security"
	"github.com/gin-gonic/gin"
)

// Manager coordinates tenant detection and context creation
type Manager struct {
	detector       *Detector
	cacheManager   *manager.Manager
	tableCreator   *infraDatabase.TableCreator
	contexts       map[string]*Context
	contextMutexes sync.Map // Per-tenant mutexes for fine-grained locking
	globalMutex    sync.RWMutex
	logger         *logging.ChanneledLogger
}

// NewManager creates and initializes a new tenant manager.
func NewManager(cacheManager *manager.Manager, logger *logging.ChanneledLogger) (*Manager, error) {
	detector, err := NewDetector(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tenant detector: %w", err)
	}

	return &Manager{
		detector:     detector,
		cacheManager: cacheManager,
		tableCreator: infraDatabase.NewTableCreator(),
		contexts:     make(map[string]*Context),
		logger:       logger,
	}, nil
}

// GetContext creates or retrieves a tenant context for the request
func (m *Manager) GetContext(c *gin.Context) (*Context, error) {
	tenantID, err := m.detector.DetectTenant(c)
	if err != nil {
		return nil, fmt.Errorf("tenant detection failed: %w", err)
	}

	return m.GetContextFromID(tenantID)
}

// GetContextFromID creates or retrieves a tenant context by tenant ID.
func (m *Manager) GetContextFromID(tenantID string) (*Context, error) {
	m.globalMutex.RLock()
	if ctx, exists := m.contexts[tenantID]; exists {
		m.globalMutex.RUnlock()
		if ctx.Database != nil && ctx.Database.Conn != nil {
			return ctx, nil
		}
	} else {
		m.globalMutex.RUnlock()
	}

	tenantMutexInterface, _ := m.contextMutexes.LoadOrStore(tenantID, &sync.Mutex{})
	tenantMutex := tenantMutexInterface.(*sync.Mutex)

	tenantMutex.Lock()
	defer tenantMutex.Unlock()

	m.globalMutex.RLock()
	if ctx, exists := m.contexts[tenantID]; exists {
		m.globalMutex.RUnlock()
		if ctx.Database != nil && ctx.Database.Conn != nil {
			return ctx, nil
		}
	} else {
		m.globalMutex.RUnlock()
	}

	return m.createContext(tenantID)
}

// createContext creates a new tenant context
func (m *Manager) createContext(tenantID string) (*Context, error) {
	cfg, err := LoadTenantConfig(tenantID, m.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant config: %w", err)
	}

	db, err := NewDatabase(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	if err := m.tableCreator.CreateSchema(db.Conn); err != nil {
		return nil, fmt.Errorf("failed to ensure schema for tenant %s: %w", tenantID, err)
	}

	ring, err := cfg.AESKeyRing()
	if err != nil {
		return nil, err
	}
	codec, err := security.NewCodec(ring)
	if err != nil {
		return nil, fmt.Errorf("tenant %s: invalid AES key ring: %w", tenantID, err)
	}
	fingerprinter, err := security.NewFingerprinter(cfg.FingerprintSecret, codec.ActiveVersion())
	if err != nil {
		return nil, fmt.Errorf("tenant %s: invalid fingerprint secret: %w", tenantID, err)
	}

	status := m.detector.GetTenantStatus(tenantID)

	ctx := &Context{
		TenantID:      tenantID,
		Config:        cfg,
		Database:      db,
		Status:        status,
		CacheManager:  m.cacheManager,
		Logger:        m.logger,
		Codec:         codec,
		Fingerprinter: fingerprinter,
	}

	m.globalMutex.Lock()
	m.contexts[tenantID] = ctx
	m.globalMutex.Unlock()

	return ctx, nil
}

// PreActivateAllTenants activates all tenants in the registry during startup
func (m *Manager) PreActivateAllTenants() error {
	registry, err := LoadTenantRegistry()
	if err != nil {
		return fmt.Errorf("failed to load tenant registry for pre-activation: %w", err)
	}

	if len(registry.Tenants) == 0 {
		return nil
	}

	var failedTenants []string

	for tenantID, tenantInfo := range registry.Tenants {
		if tenantInfo.Status == "active" {
			continue
		}

		if err := m.preActivateSingleTenant(tenantID); err != nil {
			if m.logger != nil {
				m.logger.Tenant().Error("Tenant pre-activation failed", "tenantId", tenantID, "error", err.Error())
			}
			failedTenants = append(failedTenants, tenantID)
			continue
		}
	}

	if err := m.detector.RefreshRegistry(); err != nil {
		return fmt.Errorf("failed to refresh detector registry: %w", err)
	}

	if len(failedTenants) > 0 {
		return fmt.Errorf("pre-activation failed for tenants: %v", failedTenants)
	}

	return nil
}

// preActivateSingleTenant activates a single tenant during startup
func (m *Manager) preActivateSingleTenant(tenantID string) error {
	ctx, err := m.createContext(tenantID)
	if err != nil {
		return fmt.Errorf("failed to create context for tenant %s: %w", tenantID, err)
	}

	if err := ctx.Database.Conn.Ping(); err != nil {
		return fmt.Errorf("database connection test failed for tenant %s: %w", tenantID, err)
	}

	dbType := "sqlite3"
	if ctx.Database.UseTurso {
		dbType = "turso"
	}
	m.detector.UpdateTenantStatus(tenantID, "active", dbType)
	m.cacheManager.WarmTenant(tenantID)

	// Warm the snapshot list so the first event does not pay the load.
	defs, err := ctx.FunnelDefinitionRepo().ListAllLatest()
	if err != nil {
		if m.logger != nil {
			m.logger.Cache().Warn("Funnel snapshot warming failed", "tenantId", tenantID, "error", err.Error())
		}
		return nil
	}
	if len(defs) > 0 {
		m.cacheManager.SetFunnelSnapshots(tenantID, defs)
	}

	return nil
}

// ActiveTenantIDs returns the tenants currently holding a live context.
func (m *Manager) ActiveTenantIDs() []string {
	m.globalMutex.RLock()
	defer m.globalMutex.RUnlock()

	ids := make([]string, 0, len(m.contexts))
	for id := range m.contexts {
		ids = append(ids, id)
	}
	return ids
}

// GetActiveTenantCount returns the number of active tenants
func (m *Manager) GetActiveTenantCount() (int, error) {
	registry, err := LoadTenantRegistry()
	if err != nil {
		return 0, fmt.Errorf("failed to load tenant registry: %w", err)
	}

	activeCount := 0
	for _, tenantInfo := range registry.Tenants {
		if tenantInfo.Status == "active" {
			activeCount++
		}
	}

	return activeCount, nil
}

// GetCacheManager returns the cache manager for external access
func (m *Manager) GetCacheManager() *manager.Manager {
	return m.cacheManager
}

// GetDetector returns the detector for external access (needed by startup code)
func (m *Manager) GetDetector() *Detector {
	return m.detector
}

// GetLogger returns the logger for middleware access
func (m *Manager) GetLogger() *logging.ChanneledLogger {
	return m.logger
}

// Close cleans up all tenant contexts
func (m *Manager) Close() error {
	m.globalMutex.Lock()
	defer m.globalMutex.Unlock()

	for _, ctx := range m.contexts {
		if err := ctx.Close(); err != nil {
			continue
		}
	}

	m.contexts = make(map[string]*Context)
	return nil
}
