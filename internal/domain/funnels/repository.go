package funnels

import "time"

// DefinitionRepository stores published funnel snapshots. Snapshots are
// written once by the external publisher integration and read-only after.
type DefinitionRepository interface {
	GetLatest(workspaceID, funnelID string) (*Definition, error)
	Get(workspaceID, funnelID string, version int) (*Definition, error)
	ListLatest(workspaceID string) ([]*Definition, error)
	ListAllLatest() ([]*Definition, error)
	Store(def *Definition) error
}

// StateRepository persists funnel runs. Advance, Complete, and Expire are
// conditional updates guarded on (status=active, current_step_index=expected)
// and report whether this writer won; a false return is benign and means a
// concurrent event already applied an equal-or-later transition.
type StateRepository interface {
	Get(workspaceID, funnelID, anonymousID string, version int) (*UserState, error)
	ListByAnonymousID(workspaceID, anonymousID string) ([]*UserState, error)
	// Create inserts a new active run; it reports false without error when a
	// run for the same (funnel, visitor, version) already exists.
	Create(state *UserState) (bool, error)
	Advance(id string, fromStep, toStep int, at time.Time) (bool, error)
	Complete(id string, fromStep, toStep int, at time.Time, conversionSeconds int64) (bool, error)
	Expire(id string, fromStep int, at time.Time) (bool, error)
	// ExpireStale exits every active run whose last activity predates the
	// cutoff, returning the number of runs exited. Used by the sweeper.
	ExpireStale(cutoff, at time.Time) (int64, error)
}
