package services

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PulseMetrics/pulsetrack-go/internal/domain/events"
	"github.com/PulseMetrics/pulsetrack-go/internal/domain/funnels"
	"github.com/PulseMetrics/pulsetrack-go/internal/domain/user"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/caching/manager"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/caching/stores"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/security"
)

// In-memory repository fakes mirroring the SQL implementations' semantics,
// including the conditional-update guards on funnel runs.

type fakeEventRepo struct {
	mu       sync.Mutex
	byID     map[string]*events.Event
	external map[string]*events.Event
	ordered  []*events.Event
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{byID: map[string]*events.Event{}, external: map[string]*events.Event{}}
}

func (r *fakeEventRepo) Store(e *events.Event) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.ExternalID != "" && r.external[e.ExternalID] != nil {
		return true, nil
	}
	if e.ExternalID != "" {
		r.external[e.ExternalID] = e
	}
	r.byID[e.ID] = e
	r.ordered = append(r.ordered, e)
	return false, nil
}

func (r *fakeEventRepo) FindByID(id string) (*events.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[id], nil
}

func (r *fakeEventRepo) FindByExternalID(externalID string) (*events.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.external[externalID], nil
}

func (r *fakeEventRepo) ListByAnonymousID(anonymousID string, since time.Time, limit int) ([]*events.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*events.Event
	for _, e := range r.ordered {
		if e.AnonymousID == anonymousID && !e.OccurredAt.Before(since) {
			out = append(out, e)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type fakeVisitorRepo struct {
	mu       sync.Mutex
	visitors map[string]*user.Visitor
}

func newFakeVisitorRepo() *fakeVisitorRepo {
	return &fakeVisitorRepo{visitors: map[string]*user.Visitor{}}
}

func (r *fakeVisitorRepo) FindByID(anonymousID string) (*user.Visitor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.visitors[anonymousID], nil
}

func (r *fakeVisitorRepo) Upsert(v *user.Visitor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.visitors[v.AnonymousID]; ok {
		if v.LastSeenAt.After(existing.LastSeenAt) {
			existing.LastSeenAt = v.LastSeenAt
		}
		if v.LastUTM != nil {
			existing.LastUTM = v.LastUTM
		}
		if v.LastDevice != nil {
			existing.LastDevice = v.LastDevice
		}
		if v.LastGeo != nil {
			existing.LastGeo = v.LastGeo
		}
		return nil
	}
	copied := *v
	r.visitors[v.AnonymousID] = &copied
	return nil
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*user.Session
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: map[string]*user.Session{}}
}

func (r *fakeSessionRepo) FindByID(id string) (*user.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id], nil
}

func (r *fakeSessionRepo) GetLatestOpenByAnonymousID(anonymousID string) (*user.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *user.Session
	for _, s := range r.sessions {
		if s.AnonymousID != anonymousID || s.EndedAt != nil {
			continue
		}
		if latest == nil || s.StartedAt.After(latest.StartedAt) {
			latest = s
		}
	}
	return latest, nil
}

func (r *fakeSessionRepo) Create(s *user.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *s
	r.sessions[s.ID] = &copied
	return nil
}

func (r *fakeSessionRepo) Touch(id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok && at.After(s.LastActivityAt) {
		s.LastActivityAt = at
	}
	return nil
}

func (r *fakeSessionRepo) End(id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok && s.EndedAt == nil {
		ended := at
		s.EndedAt = &ended
	}
	return nil
}

type fakeLeadRepo struct {
	mu    sync.Mutex
	leads map[string]*user.Lead
}

func newFakeLeadRepo() *fakeLeadRepo {
	return &fakeLeadRepo{leads: map[string]*user.Lead{}}
}

func (r *fakeLeadRepo) FindByID(id string) (*user.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leads[id], nil
}

func (r *fakeLeadRepo) FindByEmailFingerprint(workspaceID, fp string) (*user.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.leads {
		if l.WorkspaceID == workspaceID && l.EmailFingerprint == fp && fp != "" {
			return l, nil
		}
	}
	return nil, nil
}

func (r *fakeLeadRepo) FindByPhoneFingerprint(workspaceID, fp string) (*user.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.leads {
		if l.WorkspaceID == workspaceID && l.PhoneFingerprint == fp && fp != "" {
			return l, nil
		}
	}
	return nil, nil
}

func (r *fakeLeadRepo) Store(l *user.Lead) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *l
	r.leads[l.ID] = &copied
	return nil
}

func (r *fakeLeadRepo) Update(l *user.Lead) error {
	return r.Store(l)
}

type fakeLinkRepo struct {
	mu    sync.Mutex
	links map[string]*user.IdentityLink
}

func newFakeLinkRepo() *fakeLinkRepo {
	return &fakeLinkRepo{links: map[string]*user.IdentityLink{}}
}

func linkKey(workspaceID, anonymousID, leadID string) string {
	return workspaceID + "|" + anonymousID + "|" + leadID
}

func (r *fakeLinkRepo) Find(workspaceID, anonymousID, leadID string) (*user.IdentityLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.links[linkKey(workspaceID, anonymousID, leadID)], nil
}

func (r *fakeLinkRepo) FindCurrentByAnonymousID(workspaceID, anonymousID string) (*user.IdentityLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var current *user.IdentityLink
	for _, l := range r.links {
		if l.WorkspaceID != workspaceID || l.AnonymousID != anonymousID {
			continue
		}
		if current == nil || l.LastLinkedAt.After(current.LastLinkedAt) {
			current = l
		}
	}
	return current, nil
}

func (r *fakeLinkRepo) FindByAnonymousID(workspaceID, anonymousID string) ([]*user.IdentityLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*user.IdentityLink
	for _, l := range r.links {
		if l.WorkspaceID == workspaceID && l.AnonymousID == anonymousID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *fakeLinkRepo) Upsert(l *user.IdentityLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := linkKey(l.WorkspaceID, l.AnonymousID, l.LeadID)
	if existing, ok := r.links[key]; ok {
		existing.LastLinkedAt = l.LastLinkedAt
		return nil
	}
	copied := *l
	r.links[key] = &copied
	return nil
}

type fakeDefRepo struct {
	mu   sync.Mutex
	defs []*funnels.Definition
}

func newFakeDefRepo() *fakeDefRepo { return &fakeDefRepo{} }

func (r *fakeDefRepo) GetLatest(workspaceID, funnelID string) (*funnels.Definition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *funnels.Definition
	for _, d := range r.defs {
		if d.WorkspaceID == workspaceID && d.FunnelID == funnelID {
			if latest == nil || d.Version > latest.Version {
				latest = d
			}
		}
	}
	return latest, nil
}

func (r *fakeDefRepo) Get(workspaceID, funnelID string, version int) (*funnels.Definition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.defs {
		if d.WorkspaceID == workspaceID && d.FunnelID == funnelID && d.Version == version {
			return d, nil
		}
	}
	return nil, nil
}

func (r *fakeDefRepo) ListLatest(workspaceID string) ([]*funnels.Definition, error) {
	all, _ := r.ListAllLatest()
	var out []*funnels.Definition
	for _, d := range all {
		if d.WorkspaceID == workspaceID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *fakeDefRepo) ListAllLatest() ([]*funnels.Definition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	latest := map[string]*funnels.Definition{}
	for _, d := range r.defs {
		key := d.WorkspaceID + "|" + d.FunnelID
		if cur, ok := latest[key]; !ok || d.Version > cur.Version {
			latest[key] = d
		}
	}
	var out []*funnels.Definition
	for _, d := range latest {
		out = append(out, d)
	}
	return out, nil
}

func (r *fakeDefRepo) Store(d *funnels.Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs = append(r.defs, d)
	return nil
}

type fakeStateRepo struct {
	mu     sync.Mutex
	states map[string]*funnels.UserState
}

func newFakeStateRepo() *fakeStateRepo {
	return &fakeStateRepo{states: map[string]*funnels.UserState{}}
}

func stateKey(funnelID, anonymousID string, version int) string {
	return funnelID + "|" + anonymousID + "|" + strconv.Itoa(version)
}

func (r *fakeStateRepo) Get(workspaceID, funnelID, anonymousID string, version int) (*funnels.UserState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.states[stateKey(funnelID, anonymousID, version)]
	if s == nil || s.WorkspaceID != workspaceID {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (r *fakeStateRepo) ListByAnonymousID(workspaceID, anonymousID string) ([]*funnels.UserState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*funnels.UserState
	for _, s := range r.states {
		if s.WorkspaceID == workspaceID && s.AnonymousID == anonymousID {
			copied := *s
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeStateRepo) Create(s *funnels.UserState) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := stateKey(s.FunnelID, s.AnonymousID, s.FunnelVersion)
	if _, exists := r.states[key]; exists {
		return false, nil
	}
	copied := *s
	r.states[key] = &copied
	return true, nil
}

func (r *fakeStateRepo) findByID(id string) *funnels.UserState {
	for _, s := range r.states {
		if s.ID == id {
			return s
		}
	}
	return nil
}

func (r *fakeStateRepo) Advance(id string, fromStep, toStep int, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.findByID(id)
	if s == nil || s.Status != funnels.StatusActive || s.CurrentStepIndex != fromStep {
		return false, nil
	}
	s.CurrentStepIndex = toStep
	s.LastActivityAt = at
	return true, nil
}

func (r *fakeStateRepo) Complete(id string, fromStep, toStep int, at time.Time, conversionSeconds int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.findByID(id)
	if s == nil || s.Status != funnels.StatusActive || s.CurrentStepIndex != fromStep {
		return false, nil
	}
	s.CurrentStepIndex = toStep
	s.Status = funnels.StatusCompleted
	s.CompletedAt = &at
	s.LastActivityAt = at
	s.ConversionTimeSeconds = &conversionSeconds
	return true, nil
}

func (r *fakeStateRepo) Expire(id string, fromStep int, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.findByID(id)
	if s == nil || s.Status != funnels.StatusActive || s.CurrentStepIndex != fromStep {
		return false, nil
	}
	s.Status = funnels.StatusExited
	s.ExitedAt = &at
	exitStep := s.CurrentStepIndex
	s.ExitStepIndex = &exitStep
	return true, nil
}

func (r *fakeStateRepo) ExpireStale(cutoff, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var swept int64
	for _, s := range r.states {
		if s.Status == funnels.StatusActive && s.LastActivityAt.Before(cutoff) {
			s.Status = funnels.StatusExited
			s.ExitedAt = &at
			exitStep := s.CurrentStepIndex
			s.ExitStepIndex = &exitStep
			swept++
		}
	}
	return swept, nil
}

// newTestDeps assembles a Deps bundle over the fakes with a real memory
// cache and real crypto primitives.
func newTestDeps() (*Deps, *fakeEventRepo, *fakeSessionRepo, *fakeLeadRepo, *fakeLinkRepo, *fakeStateRepo, *fakeDefRepo) {
	eventsRepo := newFakeEventRepo()
	sessionsRepo := newFakeSessionRepo()
	leadsRepo := newFakeLeadRepo()
	linksRepo := newFakeLinkRepo()
	statesRepo := newFakeStateRepo()
	defsRepo := newFakeDefRepo()

	codec, err := security.NewCodec(map[int]string{1: strings.Repeat("ab", 32)})
	if err != nil {
		panic(err)
	}
	fp, err := security.NewFingerprinter("test-fingerprint-secret", codec.ActiveVersion())
	if err != nil {
		panic(err)
	}

	deps := &Deps{
		TenantID:      "default",
		Events:        eventsRepo,
		Visitors:      newFakeVisitorRepo(),
		Sessions:      sessionsRepo,
		Leads:         leadsRepo,
		Links:         linksRepo,
		FunnelDefs:    defsRepo,
		FunnelStates:  statesRepo,
		Cache:         manager.NewManager(stores.NewMemoryStore(0, nil), nil),
		Codec:         codec,
		Fingerprinter: fp,
		JWTSecret:     "test-jwt-secret",
	}
	return deps, eventsRepo, sessionsRepo, leadsRepo, linksRepo, statesRepo, defsRepo
}
