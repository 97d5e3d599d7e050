package events

import "time"

// EventRepository persists immutable events. Store is idempotent on the
// client-supplied external id: a second insert with the same external id
// reports duplicate=true and writes nothing.
type EventRepository interface {
	Store(event *Event) (duplicate bool, err error)
	FindByID(id string) (*Event, error)
	FindByExternalID(externalID string) (*Event, error)
	ListByAnonymousID(anonymousID string, since time.Time, limit int) ([]*Event, error)
}
