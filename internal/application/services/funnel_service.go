package services

import (
	"time"

	"github.com/PulseMetrics/pulsetrack-go/internal/domain/funnels"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/observability/logging"
)

// FunnelService handles snapshot publishing and run queries. Snapshots
// arrive from the funnel builder already versioned; this engine validates
// shape, stores them immutably, and serves progression state.
type FunnelService struct {
	logger *logging.ChanneledLogger
}

// NewFunnelService creates a new funnel service
func NewFunnelService(logger *logging.ChanneledLogger) *FunnelService {
	return &FunnelService{logger: logger}
}

// PublishSnapshot validates and stores a published funnel definition, then
// drops the cached snapshot list so the next event sees the new version.
// Runs under older versions are untouched; they finish under the rules they
// started with.
func (s *FunnelService) PublishSnapshot(deps *Deps, def *funnels.Definition, now time.Time) error {
	if err := funnels.ValidateSnapshot(def); err != nil {
		return err
	}
	if def.PublishedAt.IsZero() {
		def.PublishedAt = now
	}

	existing, err := deps.FunnelDefs.Get(def.WorkspaceID, def.FunnelID, def.Version)
	if err != nil {
		return err
	}
	if existing != nil {
		return funnels.ErrVersionExists
	}

	if err := deps.FunnelDefs.Store(def); err != nil {
		return err
	}
	deps.Cache.InvalidateFunnelSnapshots(deps.TenantID)

	if s.logger != nil {
		s.logger.Funnel().Info("Funnel snapshot published",
			"tenantId", deps.TenantID,
			"funnelId", def.FunnelID,
			"version", def.Version,
			"steps", len(def.Steps))
	}
	return nil
}

// ListSnapshots returns the latest published version of every funnel in a
// workspace.
func (s *FunnelService) ListSnapshots(deps *Deps, workspaceID string) ([]*funnels.Definition, error) {
	return deps.FunnelDefs.ListLatest(workspaceID)
}

// VisitorRuns returns every funnel run a visitor has, newest activity first.
func (s *FunnelService) VisitorRuns(deps *Deps, workspaceID, anonymousID string) ([]*funnels.UserState, error) {
	return deps.FunnelStates.ListByAnonymousID(workspaceID, anonymousID)
}
