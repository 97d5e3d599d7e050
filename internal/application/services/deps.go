// Package services provides application-level orchestration services
package services

import (
	"github.com/PulseMetrics/pulsetrack-go/internal/domain/events"
	"github.com/PulseMetrics/pulsetrack-go/internal/domain/funnels"
	"github.com/PulseMetrics/pulsetrack-go/internal/domain/user"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/caching/manager"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/security"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/tenant"
)

// Deps bundles one tenant's repositories, caches, and crypto primitives for
// a single request. Services receive it per call rather than holding tenant
// state, so one service instance serves every tenant.
type Deps struct {
	TenantID      string
	Events        events.EventRepository
	Visitors      user.VisitorRepository
	Sessions      user.SessionRepository
	Leads         user.LeadRepository
	Links         user.IdentityLinkRepository
	FunnelDefs    funnels.DefinitionRepository
	FunnelStates  funnels.StateRepository
	Cache         *manager.Manager
	Codec         *security.Codec
	Fingerprinter *security.Fingerprinter
	JWTSecret     string
}

// DepsFrom assembles the dependency bundle for one tenant context.
func DepsFrom(tenantCtx *tenant.Context) *Deps {
	return &Deps{
		TenantID:      tenantCtx.TenantID,
		Events:        tenantCtx.EventRepo(),
		Visitors:      tenantCtx.VisitorRepo(),
		Sessions:      tenantCtx.SessionRepo(),
		Leads:         tenantCtx.LeadRepo(),
		Links:         tenantCtx.IdentityLinkRepo(),
		FunnelDefs:    tenantCtx.FunnelDefinitionRepo(),
		FunnelStates:  tenantCtx.FunnelStateRepo(),
		Cache:         tenantCtx.CacheManager,
		Codec:         tenantCtx.Codec,
		Fingerprinter: tenantCtx.Fingerprinter,
		JWTSecret:     tenantCtx.Config.JWTSecret,
	}
}
