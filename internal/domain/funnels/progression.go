package funnels

import (
	"time"

	"github.com/PulseMetrics/pulsetrack-go/internal/domain/events"
)

// Decide evaluates one event against a funnel definition and the visitor's
// current run and returns the transition to apply. It is pure: callers load
// state, decide, then apply the transition through the conditional-update
// repository, so a racing writer simply loses the compare-and-swap and the
// decision becomes a no-op.
//
// Rules encoded here:
//   - no run exists: only a match on step 0 starts one
//   - an active run whose window lapsed is expired first; the triggering
//     event never also starts or advances anything
//   - an active run advances only to the immediate next step; skip-ahead
//     matches and repeat step-0 matches do not move it
//   - advancing into the final step completes the run
//   - terminal runs are never touched
func Decide(def *Definition, state *UserState, event *events.Event, now time.Time, fallbackWindow time.Duration) Transition {
	at := event.OccurredAt
	if at.IsZero() {
		at = now
	}

	if state == nil {
		first := def.Steps[0]
		if Matches(event, first.MatchRules) {
			return Transition{Action: ActionStart, FromStepIndex: 0, ToStepIndex: 0, At: at}
		}
		return Transition{Action: ActionNone}
	}

	if state.Status != StatusActive {
		return Transition{Action: ActionNone}
	}

	if now.Sub(state.LastActivityAt) > def.Window(fallbackWindow) {
		return Transition{
			Action:        ActionExpire,
			FromStepIndex: state.CurrentStepIndex,
			ToStepIndex:   state.CurrentStepIndex,
			At:            now,
		}
	}

	next := state.CurrentStepIndex + 1
	if next > def.LastStepIndex() {
		return Transition{Action: ActionNone}
	}
	if !Matches(event, def.Steps[next].MatchRules) {
		return Transition{Action: ActionNone}
	}

	action := ActionAdvance
	if next == def.LastStepIndex() {
		action = ActionComplete
	}
	return Transition{
		Action:        action,
		FromStepIndex: state.CurrentStepIndex,
		ToStepIndex:   next,
		At:            at,
	}
}

// ConversionSeconds computes the whole-second conversion duration stamped on
// completed runs.
func ConversionSeconds(enteredAt, completedAt time.Time) int64 {
	return int64(completedAt.Sub(enteredAt).Seconds())
}
