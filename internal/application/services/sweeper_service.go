package services

import (
	"context"
	"math/rand"
	"time"

	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/observability/logging"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/observability/metrics"
	"github.com/PulseMetrics/pulsetrack-go/pkg/config"
)

// SweeperService periodically exits funnel runs that stalled past the
// completion window. Lazy expiry on the event path is the authority for
// per-funnel windows; the sweeper is the backstop that catches visitors who
// simply never came back, using the default window as its cutoff.
type SweeperService struct {
	resolve func(tenantID string) (*Deps, error)
	tenants func() []string
	logger  *logging.ChanneledLogger
}

// NewSweeperService creates a new sweeper service
func NewSweeperService(resolve func(tenantID string) (*Deps, error), tenants func() []string, logger *logging.ChanneledLogger) *SweeperService {
	return &SweeperService{
		resolve: resolve,
		tenants: tenants,
		logger:  logger,
	}
}

// Run sweeps on the configured interval until ctx is cancelled. The
// interval is jittered so replicas sharing a tenant database do not sweep
// in lockstep.
func (s *SweeperService) Run(ctx context.Context) {
	timer := time.NewTimer(jittered(config.CurrentTunables().SweepInterval))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.SweepAll()
			// Re-arm from tunables so a hot-reloaded interval takes
			// effect next cycle.
			timer.Reset(jittered(config.CurrentTunables().SweepInterval))
		}
	}
}

func jittered(interval time.Duration) time.Duration {
	if interval <= 0 {
		interval = time.Minute
	}
	return interval + time.Duration(rand.Int63n(int64(interval)/10+1))
}

// SweepAll runs one sweep across every active tenant.
func (s *SweeperService) SweepAll() {
	for _, tenantID := range s.tenants() {
		if swept, err := s.SweepTenant(tenantID); err != nil {
			if s.logger != nil {
				s.logger.Funnel().Error("Sweep failed", "tenantId", tenantID, "error", err.Error())
			}
		} else if swept > 0 && s.logger != nil {
			s.logger.Funnel().Info("Stalled funnel runs expired", "tenantId", tenantID, "count", swept)
		}
	}
}

// SweepTenant expires stalled runs for one tenant and returns the count.
func (s *SweeperService) SweepTenant(tenantID string) (int64, error) {
	deps, err := s.resolve(tenantID)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	cutoff := now.Add(-config.CurrentTunables().DefaultFunnelWindow)

	swept, err := deps.FunnelStates.ExpireStale(cutoff, now)
	if err != nil {
		return 0, err
	}
	if swept > 0 {
		metrics.RunsExpiredBySweep.Add(float64(swept))
	}
	return swept, nil
}
