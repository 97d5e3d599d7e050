package services

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/PulseMetrics/pulsetrack-go/internal/application/workers"
	"github.com/PulseMetrics/pulsetrack-go/internal/domain/events"
)

func newTestIntake(t *testing.T) (*IntakeService, *workers.Dispatcher, *[]workers.Job, *sync.Mutex) {
	t.Helper()
	var mu sync.Mutex
	jobs := &[]workers.Job{}
	dispatcher := workers.NewDispatcher(2, 64, func(ctx context.Context, job workers.Job) error {
		mu.Lock()
		*jobs = append(*jobs, job)
		mu.Unlock()
		return nil
	}, nil)
	return NewIntakeService(NewSessionService(nil), dispatcher, nil), dispatcher, jobs, &mu
}

func TestIngestOneHappyPath(t *testing.T) {
	deps, eventsRepo, _, _, _, _, _ := newTestDeps()
	svc, dispatcher, jobs, mu := newTestIntake(t)

	headers := http.Header{}
	headers.Set("User-Agent", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Safari/604.1")
	headers.Set("CF-IPCountry", "DE")

	now := time.Now().UTC()
	result := svc.IngestOne(deps, "ws_1", &EventInput{
		EventID:     "evt_1",
		Name:        "signup_completed",
		AnonymousID: "a_visitor",
		Page:        &events.PageContext{URL: "https://example.com/welcome"},
	}, headers, now)

	if !result.Accepted || result.Duplicate {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.EventID == "" {
		t.Fatal("accepted event carries no id")
	}

	stored, _ := eventsRepo.FindByID(result.EventID)
	if stored == nil {
		t.Fatal("event not persisted")
	}
	if stored.SessionID == "" {
		t.Error("event not sessionized")
	}
	if !stored.OccurredAt.Equal(now) {
		t.Error("missing client timestamp should default to server time")
	}
	if stored.Device == nil || stored.Device.Type != "mobile" {
		t.Errorf("device enrichment missing: %+v", stored.Device)
	}
	if stored.Geo == nil || stored.Geo.Country != "DE" {
		t.Errorf("geo enrichment missing: %+v", stored.Geo)
	}

	dispatcher.Drain()
	mu.Lock()
	defer mu.Unlock()
	if len(*jobs) != 1 {
		t.Errorf("dispatched %d funnel jobs, want 1", len(*jobs))
	}
}

func TestIngestOneValidation(t *testing.T) {
	deps, _, _, _, _, _, _ := newTestDeps()
	svc, dispatcher, _, _ := newTestIntake(t)
	defer dispatcher.Drain()
	now := time.Now().UTC()

	cases := []struct {
		name     string
		input    *EventInput
		wantCode string
	}{
		{"uppercase name", &EventInput{Name: "SignupCompleted", AnonymousID: "a_v"}, events.CodeInvalidEventName},
		{"leading digit", &EventInput{Name: "1signup", AnonymousID: "a_v"}, events.CodeInvalidEventName},
		{"missing anonymous id", &EventInput{Name: "signup"}, events.CodeInvalidAnonymousID},
		{"unprefixed anonymous id", &EventInput{Name: "signup", AnonymousID: "visitor"}, events.CodeInvalidAnonymousID},
		{"stale timestamp", &EventInput{Name: "signup", AnonymousID: "a_v", OccurredAt: now.Add(-time.Hour)}, events.CodeInvalidTimestamp},
		{"future timestamp", &EventInput{Name: "signup", AnonymousID: "a_v", OccurredAt: now.Add(time.Hour)}, events.CodeInvalidTimestamp},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := svc.IngestOne(deps, "ws_1", tc.input, http.Header{}, now)
			if result.Accepted {
				t.Fatal("expected rejection")
			}
			if result.Error == nil || result.Error.Code != tc.wantCode {
				t.Errorf("got error %+v, want code %s", result.Error, tc.wantCode)
			}
		})
	}
}

func TestIngestOneDeduplicates(t *testing.T) {
	deps, eventsRepo, _, _, _, _, _ := newTestDeps()
	svc, dispatcher, jobs, mu := newTestIntake(t)
	now := time.Now().UTC()

	input := &EventInput{EventID: "evt_dup", Name: "page_view", AnonymousID: "a_v"}
	first := svc.IngestOne(deps, "ws_1", input, http.Header{}, now)
	second := svc.IngestOne(deps, "ws_1", input, http.Header{}, now)

	if !first.Accepted || first.Duplicate {
		t.Fatalf("first ingest: %+v", first)
	}
	if !second.Accepted || !second.Duplicate {
		t.Fatalf("second ingest should be an idempotent duplicate: %+v", second)
	}
	if second.EventID != first.EventID {
		t.Errorf("duplicate acknowledged with id %q, want the original %q", second.EventID, first.EventID)
	}

	// A cold dedup cache falls through to the unique index; the ack must
	// still carry the originally stored id.
	deps.Cache.PurgeTenant(deps.TenantID)
	third := svc.IngestOne(deps, "ws_1", input, http.Header{}, now)
	if !third.Accepted || !third.Duplicate {
		t.Fatalf("third ingest should be an idempotent duplicate: %+v", third)
	}
	if third.EventID != first.EventID {
		t.Errorf("index-path duplicate acknowledged with id %q, want the original %q", third.EventID, first.EventID)
	}

	eventsRepo.mu.Lock()
	stored := len(eventsRepo.ordered)
	eventsRepo.mu.Unlock()
	if stored != 1 {
		t.Errorf("stored %d events, want 1", stored)
	}

	dispatcher.Drain()
	mu.Lock()
	defer mu.Unlock()
	if len(*jobs) != 1 {
		t.Errorf("duplicates must not reach the funnel dispatcher: %d jobs", len(*jobs))
	}
}

func TestIngestOneAttachesCurrentLead(t *testing.T) {
	deps, eventsRepo, _, _, _, _, _ := newTestDeps()
	svc, dispatcher, _, _ := newTestIntake(t)
	defer dispatcher.Drain()
	now := time.Now().UTC()

	identity := NewIdentityService(nil)
	identified, err := identity.Identify(deps, &IdentifyRequest{WorkspaceID: "ws_1", AnonymousID: "a_v", Email: "jane@example.com"}, now)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}

	result := svc.IngestOne(deps, "ws_1", &EventInput{Name: "purchase", AnonymousID: "a_v"}, http.Header{}, now)
	stored, _ := eventsRepo.FindByID(result.EventID)
	if stored.LeadID == nil || *stored.LeadID != identified.Profile.LeadID {
		t.Errorf("event lead attribution missing: %v", stored.LeadID)
	}
}

func TestIngestBatchSizeCeiling(t *testing.T) {
	deps, _, _, _, _, _, _ := newTestDeps()
	svc, dispatcher, _, _ := newTestIntake(t)
	defer dispatcher.Drain()

	inputs := make([]*EventInput, 51)
	for i := range inputs {
		inputs[i] = &EventInput{Name: "page_view", AnonymousID: "a_v"}
	}

	_, verr := svc.IngestBatch(deps, "ws_1", inputs, http.Header{}, time.Now().UTC())
	if verr == nil || verr.Code != events.CodeBatchTooLarge {
		t.Errorf("got %+v, want %s", verr, events.CodeBatchTooLarge)
	}
}

func TestIngestBatchPartialFailure(t *testing.T) {
	deps, _, _, _, _, _, _ := newTestDeps()
	svc, dispatcher, _, _ := newTestIntake(t)
	defer dispatcher.Drain()
	now := time.Now().UTC()

	inputs := []*EventInput{
		{Name: "page_view", AnonymousID: "a_one"},
		{Name: "BadName", AnonymousID: "a_one"},
		{Name: "page_view", AnonymousID: "a_two"},
	}

	results, verr := svc.IngestBatch(deps, "ws_1", inputs, http.Header{}, now)
	if verr != nil {
		t.Fatalf("IngestBatch: %v", verr)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want positional results for every input", len(results))
	}
	if !results[0].Accepted || results[1].Accepted || !results[2].Accepted {
		t.Errorf("unexpected accept pattern: %v %v %v", results[0].Accepted, results[1].Accepted, results[2].Accepted)
	}
	if results[1].Error == nil || results[1].Error.Code != events.CodeInvalidEventName {
		t.Errorf("item 1 error: %+v", results[1].Error)
	}
}

func TestIngestBatchPerVisitorSessionStability(t *testing.T) {
	deps, eventsRepo, _, _, _, _, _ := newTestDeps()
	svc, dispatcher, _, _ := newTestIntake(t)
	defer dispatcher.Drain()
	now := time.Now().UTC()

	inputs := make([]*EventInput, 0, 12)
	for i := 0; i < 4; i++ {
		for _, v := range []string{"a_one", "a_two", "a_three"} {
			inputs = append(inputs, &EventInput{Name: fmt.Sprintf("step_%d", i), AnonymousID: v})
		}
	}

	results, verr := svc.IngestBatch(deps, "ws_1", inputs, http.Header{}, now)
	if verr != nil {
		t.Fatalf("IngestBatch: %v", verr)
	}

	sessions := map[string]map[string]bool{}
	for _, r := range results {
		if !r.Accepted {
			t.Fatalf("unexpected rejection: %+v", r)
		}
		e, _ := eventsRepo.FindByID(r.EventID)
		if sessions[e.AnonymousID] == nil {
			sessions[e.AnonymousID] = map[string]bool{}
		}
		sessions[e.AnonymousID][e.SessionID] = true
	}
	for v, ids := range sessions {
		if len(ids) != 1 {
			t.Errorf("visitor %s spread across %d sessions within one batch", v, len(ids))
		}
	}
}
