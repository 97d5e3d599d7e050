package services

import (
	"testing"
	"time"
)

func TestSessionResolveCreatesFirstSession(t *testing.T) {
	deps, _, _, _, _, _, _ := newTestDeps()
	svc := NewSessionService(nil)

	now := time.Now().UTC()
	session, err := svc.Resolve(deps, "a_visitor", "ws_1", now)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if session.ID == "" {
		t.Fatal("expected a minted session id")
	}
	if !session.StartedAt.Equal(now) || !session.LastActivityAt.Equal(now) {
		t.Error("new session timestamps not set to event time")
	}
}

func TestSessionResolveReusesWithinIdleWindow(t *testing.T) {
	deps, _, _, _, _, _, _ := newTestDeps()
	svc := NewSessionService(nil)

	start := time.Now().UTC()
	first, err := svc.Resolve(deps, "a_visitor", "ws_1", start)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	later := start.Add(10 * time.Minute)
	second, err := svc.Resolve(deps, "a_visitor", "ws_1", later)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("session rotated inside the idle window: %s then %s", first.ID, second.ID)
	}
	if !second.LastActivityAt.Equal(later) {
		t.Error("reused session did not move last activity forward")
	}
}

func TestSessionResolveRotatesAfterIdleWindow(t *testing.T) {
	deps, _, sessionsRepo, _, _, _, _ := newTestDeps()
	svc := NewSessionService(nil)

	start := time.Now().UTC()
	first, err := svc.Resolve(deps, "a_visitor", "ws_1", start)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	later := start.Add(31 * time.Minute)
	second, err := svc.Resolve(deps, "a_visitor", "ws_1", later)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if second.ID == first.ID {
		t.Fatal("expected a new session after the idle window lapsed")
	}

	old, _ := sessionsRepo.FindByID(first.ID)
	if old.EndedAt == nil {
		t.Error("stale session was not ended")
	} else if !old.EndedAt.Equal(start) {
		t.Errorf("stale session ended at %v, want its last activity %v", old.EndedAt, start)
	}
}

func TestSessionResolveIsolatesVisitors(t *testing.T) {
	deps, _, _, _, _, _, _ := newTestDeps()
	svc := NewSessionService(nil)

	now := time.Now().UTC()
	one, _ := svc.Resolve(deps, "a_one", "ws_1", now)
	two, _ := svc.Resolve(deps, "a_two", "ws_1", now)

	if one.ID == two.ID {
		t.Error("distinct visitors shared a session")
	}
}
