// Package tenant provides tenant context management for multi-tenant support.
package tenant

import (
	domainEvents "github.com/PulseMetrics/pulsetrack-go/internal/domain/events"
	domainFunnels "github.com/PulseMetrics/pulsetrack-go/internal/domain/funnels"
	domainUser "github.com/PulseMetrics/pulsetrack-go/internal/domain/user"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/caching/manager"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/observability/logging"
	persistenceAnalytics "github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/persistence/analytics"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/persistence/database"
	persistenceFunnels "github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/persistence/funnels"
	persistenceUser "github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/persistence/user"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/security"
)

// Context holds tenant-specific request context
type Context struct {
	TenantID      string
	Config        *Config
	Database      *Database
	Status        string
	CacheManager  *manager.Manager
	Logger        *logging.ChanneledLogger
	Codec         *security.Codec
	Fingerprinter *security.Fingerprinter
}

// Close cleans up the tenant context
func (ctx *Context) Close() error {
	if ctx.Database != nil {
		return ctx.Database.Close()
	}
	return nil
}

// GetTenantID returns the tenant ID for this context
func (ctx *Context) GetTenantID() string {
	return ctx.TenantID
}

// GetConfig returns the tenant configuration
func (ctx *Context) GetConfig() *Config {
	return ctx.Config
}

// GetCacheManager returns the cache manager
func (ctx *Context) GetCacheManager() *manager.Manager {
	return ctx.CacheManager
}

// IsActive returns true if the tenant is active
func (ctx *Context) IsActive() bool {
	return ctx.Status == "active"
}

// GetDatabaseInfo returns database connection information for logging
func (ctx *Context) GetDatabaseInfo() string {
	if ctx.Database != nil {
		return ctx.Database.GetConnectionInfo()
	}
	return "no database connection"
}

// =============================================================================
// Repository Factory Methods
// =============================================================================

func (ctx *Context) db() *database.DB {
	return &database.DB{DB: ctx.Database.Conn}
}

// EventRepo returns an event repository instance.
func (ctx *Context) EventRepo() domainEvents.EventRepository {
	return persistenceAnalytics.NewSQLEventRepository(ctx.db(), ctx.Logger)
}

// VisitorRepo returns a visitor repository instance.
func (ctx *Context) VisitorRepo() domainUser.VisitorRepository {
	return persistenceUser.NewSQLVisitorRepository(ctx.db(), ctx.Logger)
}

// SessionRepo returns a session repository instance.
func (ctx *Context) SessionRepo() domainUser.SessionRepository {
	return persistenceUser.NewSQLSessionRepository(ctx.db(), ctx.Logger)
}

// LeadRepo returns a lead repository instance.
func (ctx *Context) LeadRepo() domainUser.LeadRepository {
	return persistenceUser.NewSQLLeadRepository(ctx.db(), ctx.Logger)
}

// IdentityLinkRepo returns an identity link repository instance.
func (ctx *Context) IdentityLinkRepo() domainUser.IdentityLinkRepository {
	return persistenceUser.NewSQLIdentityLinkRepository(ctx.db(), ctx.Logger)
}

// FunnelDefinitionRepo returns a funnel snapshot repository instance.
func (ctx *Context) FunnelDefinitionRepo() domainFunnels.DefinitionRepository {
	return persistenceFunnels.NewSQLDefinitionRepository(ctx.db(), ctx.Logger)
}

// FunnelStateRepo returns a funnel run repository instance.
func (ctx *Context) FunnelStateRepo() domainFunnels.StateRepository {
	return persistenceFunnels.NewSQLStateRepository(ctx.db(), ctx.Logger)
}
