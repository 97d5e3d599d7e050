package services

import (
	"context"
	"time"

	"github.com/PulseMetrics/pulsetrack-go/internal/application/workers"
	"github.com/PulseMetrics/pulsetrack-go/internal/domain/events"
	"github.com/PulseMetrics/pulsetrack-go/internal/domain/funnels"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/observability/logging"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/observability/metrics"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/security"
	"github.com/PulseMetrics/pulsetrack-go/pkg/config"
)

// ProgressionService evaluates persisted events against every published
// funnel and applies the resulting transitions. It runs on the background
// dispatcher, one visitor at a time per partition.
type ProgressionService struct {
	logger *logging.ChanneledLogger
}

// NewProgressionService creates a new progression service
func NewProgressionService(logger *logging.ChanneledLogger) *ProgressionService {
	return &ProgressionService{logger: logger}
}

// Process evaluates one event against the latest snapshot of every funnel
// in its workspace. A failure against one funnel does not stop evaluation
// against the others; the first error is returned after all funnels ran.
func (s *ProgressionService) Process(ctx context.Context, deps *Deps, event *events.Event) error {
	start := time.Now()
	defer func() {
		metrics.FunnelProcessingDuration.Observe(float64(time.Since(start).Milliseconds()))
	}()

	defs, err := s.latestSnapshots(deps)
	if err != nil {
		return err
	}

	var firstErr error
	for _, def := range defs {
		if def.WorkspaceID != event.WorkspaceID {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := s.processFunnel(deps, def, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// MakeJobProcessor adapts Process to the dispatcher's job signature.
// resolve maps a tenant id to its dependency bundle at processing time, so
// jobs survive tenant context refreshes.
func (s *ProgressionService) MakeJobProcessor(resolve func(tenantID string) (*Deps, error)) workers.ProcessFunc {
	return func(ctx context.Context, job workers.Job) error {
		deps, err := resolve(job.TenantID)
		if err != nil {
			return err
		}
		return s.Process(ctx, deps, job.Event)
	}
}

func (s *ProgressionService) latestSnapshots(deps *Deps) ([]*funnels.Definition, error) {
	if defs, found := deps.Cache.GetFunnelSnapshots(deps.TenantID); found {
		return defs, nil
	}
	defs, err := deps.FunnelDefs.ListAllLatest()
	if err != nil {
		return nil, err
	}
	deps.Cache.SetFunnelSnapshots(deps.TenantID, defs)
	return defs, nil
}

// processFunnel runs the decide/apply cycle for one funnel. Losing the
// conditional update means a concurrent writer already applied an equal or
// later transition; the decision is re-derived once from the fresh row and
// then abandoned.
func (s *ProgressionService) processFunnel(deps *Deps, def *funnels.Definition, event *events.Event) error {
	now := time.Now().UTC()
	window := config.CurrentTunables().DefaultFunnelWindow

	for attempt := 0; attempt < 2; attempt++ {
		state, err := deps.FunnelStates.Get(def.WorkspaceID, def.FunnelID, event.AnonymousID, def.Version)
		if err != nil {
			return err
		}

		transition := funnels.Decide(def, state, event, now, window)
		if transition.Action == funnels.ActionNone {
			return nil
		}

		won, err := s.apply(deps, def, state, event, transition)
		if err != nil {
			return err
		}
		if won {
			metrics.FunnelTransitions.WithLabelValues(deps.TenantID, string(transition.Action)).Inc()
			if s.logger != nil {
				s.logger.Funnel().Debug("Funnel transition applied",
					"tenantId", deps.TenantID,
					"funnelId", def.FunnelID,
					"action", string(transition.Action),
					"step", transition.ToStepIndex,
					"anonymousId", logging.SanitizeID(event.AnonymousID))
			}
			// An expiry consumes the event for this funnel: the lapsed
			// run is closed and nothing restarts on the same event.
			return nil
		}

		metrics.FunnelCASLost.WithLabelValues(deps.TenantID).Inc()
	}
	return nil
}

func (s *ProgressionService) apply(deps *Deps, def *funnels.Definition, state *funnels.UserState, event *events.Event, t funnels.Transition) (bool, error) {
	switch t.Action {
	case funnels.ActionStart:
		run := &funnels.UserState{
			ID:               security.GenerateULID(),
			FunnelID:         def.FunnelID,
			WorkspaceID:      def.WorkspaceID,
			AnonymousID:      event.AnonymousID,
			FunnelVersion:    def.Version,
			CurrentStepIndex: 0,
			Status:           funnels.StatusActive,
			EnteredAt:        t.At,
			LastActivityAt:   t.At,
			CreatedAt:        time.Now().UTC(),
		}
		return deps.FunnelStates.Create(run)
	case funnels.ActionAdvance:
		return deps.FunnelStates.Advance(state.ID, t.FromStepIndex, t.ToStepIndex, t.At)
	case funnels.ActionComplete:
		seconds := funnels.ConversionSeconds(state.EnteredAt, t.At)
		return deps.FunnelStates.Complete(state.ID, t.FromStepIndex, t.ToStepIndex, t.At, seconds)
	case funnels.ActionExpire:
		return deps.FunnelStates.Expire(state.ID, t.FromStepIndex, t.At)
	}
	return false, nil
}
