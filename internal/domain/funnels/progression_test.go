package funnels

import (
	"testing"
	"time"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func twoStepDef() *Definition {
	return &Definition{
		FunnelID:    "fn_1",
		WorkspaceID: "ws_1",
		Version:     1,
		Steps: []Step{
			{Index: 0, Type: StepStart, MatchRules: []MatchRule{
				{Kind: RulePage, URLOperator: URLExact, URLValue: "/landing"},
			}},
			{Index: 1, Type: StepConversion, MatchRules: []MatchRule{
				{Kind: RuleEvent, EventName: "signup_completed"},
			}},
		},
		WindowSeconds: int64((7 * 24 * time.Hour).Seconds()),
	}
}

func fourStepDef() *Definition {
	return &Definition{
		FunnelID:    "fn_2",
		WorkspaceID: "ws_1",
		Version:     3,
		Steps: []Step{
			{Index: 0, Type: StepStart, MatchRules: []MatchRule{{Kind: RulePage, URLOperator: URLExact, URLValue: "/landing"}}},
			{Index: 1, Type: StepPage, MatchRules: []MatchRule{{Kind: RulePage, URLOperator: URLExact, URLValue: "/pricing"}}},
			{Index: 2, Type: StepEvent, MatchRules: []MatchRule{{Kind: RuleEvent, EventName: "trial_started"}}},
			{Index: 3, Type: StepConversion, MatchRules: []MatchRule{{Kind: RuleEvent, EventName: "checkout_completed"}}},
		},
	}
}

func activeState(step int, lastActivity time.Time) *UserState {
	return &UserState{
		ID:               "run_1",
		FunnelID:         "fn_2",
		WorkspaceID:      "ws_1",
		AnonymousID:      "a_1",
		FunnelVersion:    3,
		CurrentStepIndex: step,
		Status:           StatusActive,
		EnteredAt:        lastActivity.Add(-time.Hour),
		LastActivityAt:   lastActivity,
	}
}

func TestDecideStartsOnFirstStepMatch(t *testing.T) {
	ev := pageEvent("/landing")
	ev.OccurredAt = baseTime

	tr := Decide(twoStepDef(), nil, ev, baseTime, time.Hour)
	if tr.Action != ActionStart {
		t.Fatalf("action = %s, want %s", tr.Action, ActionStart)
	}
	if tr.ToStepIndex != 0 {
		t.Fatalf("to step = %d, want 0", tr.ToStepIndex)
	}
	if !tr.At.Equal(baseTime) {
		t.Fatalf("at = %s, want %s", tr.At, baseTime)
	}
}

func TestDecideNonStartMatchCreatesNoRun(t *testing.T) {
	// A conversion event arriving before the start event must leave the
	// run implicit until a start-matching event shows up.
	ev := namedEvent("signup_completed", nil)
	ev.OccurredAt = baseTime

	tr := Decide(twoStepDef(), nil, ev, baseTime, time.Hour)
	if tr.Action != ActionNone {
		t.Fatalf("action = %s, want %s", tr.Action, ActionNone)
	}
}

func TestDecideAdvancesOnlyToImmediateNextStep(t *testing.T) {
	def := fourStepDef()

	// Matching step 1 from step 0 advances.
	ev := pageEvent("/pricing")
	ev.OccurredAt = baseTime
	tr := Decide(def, activeState(0, baseTime.Add(-time.Minute)), ev, baseTime, time.Hour)
	if tr.Action != ActionAdvance || tr.ToStepIndex != 1 || tr.FromStepIndex != 0 {
		t.Fatalf("got %+v, want advance 0→1", tr)
	}

	// Matching step 2 from step 0 (skip-ahead) is a no-op.
	skip := namedEvent("trial_started", nil)
	skip.OccurredAt = baseTime
	tr = Decide(def, activeState(0, baseTime.Add(-time.Minute)), skip, baseTime, time.Hour)
	if tr.Action != ActionNone {
		t.Fatalf("skip-ahead produced %s, want none", tr.Action)
	}

	// Re-matching step 0 while active is a no-op, not a reset.
	again := pageEvent("/landing")
	again.OccurredAt = baseTime
	tr = Decide(def, activeState(1, baseTime.Add(-time.Minute)), again, baseTime, time.Hour)
	if tr.Action != ActionNone {
		t.Fatalf("repeat step-0 match produced %s, want none", tr.Action)
	}
}

func TestDecideCompletesOnFinalStep(t *testing.T) {
	def := twoStepDef()
	state := activeState(0, baseTime.Add(-time.Minute))
	state.FunnelID = def.FunnelID
	state.FunnelVersion = def.Version

	ev := namedEvent("signup_completed", nil)
	ev.OccurredAt = baseTime

	tr := Decide(def, state, ev, baseTime, time.Hour)
	if tr.Action != ActionComplete {
		t.Fatalf("action = %s, want %s", tr.Action, ActionComplete)
	}
	if tr.ToStepIndex != def.LastStepIndex() {
		t.Fatalf("to step = %d, want %d", tr.ToStepIndex, def.LastStepIndex())
	}
}

func TestDecideExpiresStaleRun(t *testing.T) {
	def := fourStepDef() // no window on snapshot, fallback applies
	state := activeState(2, baseTime.Add(-48*time.Hour))

	ev := namedEvent("checkout_completed", nil)
	ev.OccurredAt = baseTime

	tr := Decide(def, state, ev, baseTime, 24*time.Hour)
	if tr.Action != ActionExpire {
		t.Fatalf("action = %s, want %s", tr.Action, ActionExpire)
	}
	if tr.FromStepIndex != 2 || tr.ToStepIndex != 2 {
		t.Fatalf("expire steps = %d→%d, want 2→2", tr.FromStepIndex, tr.ToStepIndex)
	}
	if !tr.At.Equal(baseTime) {
		t.Fatalf("expire stamped %s, want evaluation time %s", tr.At, baseTime)
	}
}

func TestDecideNeverTouchesTerminalRuns(t *testing.T) {
	def := twoStepDef()
	for _, status := range []Status{StatusCompleted, StatusExited} {
		state := activeState(1, baseTime)
		state.Status = status

		ev := pageEvent("/landing")
		ev.OccurredAt = baseTime
		if tr := Decide(def, state, ev, baseTime, time.Hour); tr.Action != ActionNone {
			t.Fatalf("status %s: action = %s, want none", status, tr.Action)
		}
	}
}

func TestDecideUsesServerTimeWhenEventTimeMissing(t *testing.T) {
	ev := pageEvent("/landing")

	tr := Decide(twoStepDef(), nil, ev, baseTime, time.Hour)
	if !tr.At.Equal(baseTime) {
		t.Fatalf("at = %s, want server time %s", tr.At, baseTime)
	}
}

func TestConversionSeconds(t *testing.T) {
	entered := baseTime
	completed := baseTime.Add(90*time.Second + 400*time.Millisecond)
	if got := ConversionSeconds(entered, completed); got != 90 {
		t.Fatalf("ConversionSeconds = %d, want 90", got)
	}
}

func TestValidateSnapshot(t *testing.T) {
	if err := ValidateSnapshot(twoStepDef()); err != nil {
		t.Fatalf("valid snapshot rejected: %v", err)
	}

	bad := twoStepDef()
	bad.Steps[1].Index = 5
	if err := ValidateSnapshot(bad); err == nil {
		t.Fatal("misnumbered steps accepted")
	}

	bad = twoStepDef()
	bad.Steps[0].MatchRules = nil
	if err := ValidateSnapshot(bad); err == nil {
		t.Fatal("ruleless step accepted")
	}

	bad = twoStepDef()
	bad.Version = 0
	if err := ValidateSnapshot(bad); err == nil {
		t.Fatal("zero version accepted")
	}

	bad = twoStepDef()
	bad.Steps = bad.Steps[:1]
	if err := ValidateSnapshot(bad); err == nil {
		t.Fatal("single-step funnel accepted")
	}
}
