// Package manager exposes typed cache operations over a pluggable store.
// The cache is an accelerator only: every read path falls back to the
// repositories on a miss, so a cold or purged cache is always safe.
package manager

import (
	"encoding/json"
	"time"

	"github.com/PulseMetrics/pulsetrack-go/internal/domain/funnels"
	"github.com/PulseMetrics/pulsetrack-go/internal/domain/user"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/caching/interfaces"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/observability/logging"
	"github.com/PulseMetrics/pulsetrack-go/pkg/config"
)

// Manager wraps a Store with typed accessors for the hot intake paths:
// open sessions, current identity links, funnel snapshots, and the recent
// dedup window.
type Manager struct {
	store  interfaces.Store
	logger *logging.ChanneledLogger
}

// NewManager creates a cache manager over the given store.
func NewManager(store interfaces.Store, logger *logging.ChanneledLogger) *Manager {
	return &Manager{store: store, logger: logger}
}

// Store exposes the underlying store for lifecycle management.
func (m *Manager) Store() interfaces.Store { return m.store }

// PurgeTenant drops all cached state for one tenant.
func (m *Manager) PurgeTenant(tenantID string) error {
	return m.store.PurgeTenant(tenantID)
}

// Close closes the underlying store.
func (m *Manager) Close() error { return m.store.Close() }

// =============================================================================
// Session operations
// =============================================================================

// GetOpenSession returns the cached open session for a visitor, if any.
func (m *Manager) GetOpenSession(tenantID, anonymousID string) (*user.Session, bool) {
	data, found := m.store.Get(tenantID, "session:"+anonymousID)
	if !found {
		return nil, false
	}
	var session user.Session
	if err := json.Unmarshal(data, &session); err != nil {
		m.store.Delete(tenantID, "session:"+anonymousID)
		return nil, false
	}
	return &session, true
}

// SetOpenSession caches the open session for a visitor. The TTL outlives the
// idle window so the staleness check stays with the caller, not the cache.
func (m *Manager) SetOpenSession(tenantID string, session *user.Session) {
	data, err := json.Marshal(session)
	if err != nil {
		return
	}
	if err := m.store.Set(tenantID, "session:"+session.AnonymousID, data, config.SessionCacheTTL); err != nil && m.logger != nil {
		m.logger.Cache().Warn("Failed to cache session", "error", err.Error(), "tenantId", tenantID)
	}
}

// DropOpenSession evicts a visitor's cached session, e.g. after End.
func (m *Manager) DropOpenSession(tenantID, anonymousID string) {
	m.store.Delete(tenantID, "session:"+anonymousID)
}

// =============================================================================
// Identity link operations
// =============================================================================

// GetCurrentLink returns the cached current identity link for a visitor.
func (m *Manager) GetCurrentLink(tenantID, workspaceID, anonymousID string) (*user.IdentityLink, bool) {
	data, found := m.store.Get(tenantID, "link:"+workspaceID+":"+anonymousID)
	if !found {
		return nil, false
	}
	var link user.IdentityLink
	if err := json.Unmarshal(data, &link); err != nil {
		return nil, false
	}
	return &link, true
}

// SetCurrentLink caches the current identity link for a visitor.
func (m *Manager) SetCurrentLink(tenantID string, link *user.IdentityLink) {
	data, err := json.Marshal(link)
	if err != nil {
		return
	}
	if err := m.store.Set(tenantID, "link:"+link.WorkspaceID+":"+link.AnonymousID, data, config.IdentityCacheTTL); err != nil && m.logger != nil {
		m.logger.Cache().Warn("Failed to cache identity link", "error", err.Error(), "tenantId", tenantID)
	}
}

// =============================================================================
// Funnel snapshot operations
// =============================================================================

// GetFunnelSnapshots returns the cached latest snapshots for a tenant.
func (m *Manager) GetFunnelSnapshots(tenantID string) ([]*funnels.Definition, bool) {
	data, found := m.store.Get(tenantID, "funnels:latest")
	if !found {
		return nil, false
	}
	var defs []*funnels.Definition
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, false
	}
	return defs, true
}

// SetFunnelSnapshots caches the latest snapshots for a tenant.
func (m *Manager) SetFunnelSnapshots(tenantID string, defs []*funnels.Definition) {
	data, err := json.Marshal(defs)
	if err != nil {
		return
	}
	if err := m.store.Set(tenantID, "funnels:latest", data, config.SnapshotCacheTTL); err != nil && m.logger != nil {
		m.logger.Cache().Warn("Failed to cache funnel snapshots", "error", err.Error(), "tenantId", tenantID)
	}
}

// InvalidateFunnelSnapshots evicts the snapshot list after a publish.
func (m *Manager) InvalidateFunnelSnapshots(tenantID string) {
	m.store.Delete(tenantID, "funnels:latest")
}

// =============================================================================
// Dedup short-memory
// =============================================================================

// SeenExternalID reports whether an external event id was recently ingested,
// and if so, the event id it was stored under. This is a fast pre-check only;
// the database unique index is the authority.
func (m *Manager) SeenExternalID(tenantID, externalID string) (string, bool) {
	data, found := m.store.Get(tenantID, "dedup:"+externalID)
	if !found {
		return "", false
	}
	return string(data), true
}

// MarkExternalID records which event id an external id was stored under, for
// the dedup window.
func (m *Manager) MarkExternalID(tenantID, externalID, eventID string) {
	m.store.Set(tenantID, "dedup:"+externalID, []byte(eventID), config.DedupCacheTTL)
}

// =============================================================================
// Lifecycle
// =============================================================================

// WarmTenant pre-marks a tenant's cache namespace. Cheap; exists so startup
// can log a per-tenant warm line the way operators expect.
func (m *Manager) WarmTenant(tenantID string) {
	start := time.Now()
	m.store.Set(tenantID, "warm", []byte(time.Now().UTC().Format(time.RFC3339)), 0)
	if m.logger != nil {
		m.logger.Cache().Info("Tenant cache warmed", "tenantId", tenantID, "duration", time.Since(start))
	}
}
