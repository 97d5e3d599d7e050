// Package user defines the visitor, session, lead, and identity-link
// entities and the interfaces for persisting them. The repositories abstract
// the data persistence details, ensuring the core application is clean and
// decoupled from the database.
package user

import (
	"time"

	"github.com/PulseMetrics/pulsetrack-go/internal/domain/events"
)

// Visitor is the mutable rolling summary of an anonymous actor, keyed by
// the client-generated anonymous id.
type Visitor struct {
	AnonymousID string             `json:"anonymousId"`
	WorkspaceID string             `json:"workspaceId"`
	FirstSeenAt time.Time          `json:"firstSeenAt"`
	LastSeenAt  time.Time          `json:"lastSeenAt"`
	LastUTM     *events.UTMParams  `json:"lastUtm,omitempty"`
	LastDevice  *events.DeviceInfo `json:"lastDevice,omitempty"`
	LastGeo     *events.GeoInfo    `json:"lastGeo,omitempty"`
}

// Session is a time-bounded grouping of events for one visitor. Sessions
// close by idle timeout; a new id is minted after the window lapses. Two
// concurrent creators may briefly both hold an open session for the same
// visitor; readers converge on the one with the later StartedAt.
type Session struct {
	ID             string     `json:"id"`
	AnonymousID    string     `json:"anonymousId"`
	WorkspaceID    string     `json:"workspaceId"`
	StartedAt      time.Time  `json:"startedAt"`
	LastActivityAt time.Time  `json:"lastActivityAt"`
	EndedAt        *time.Time `json:"endedAt,omitempty"`
}

// Lead is an identified actor. PII is stored only as ciphertext; the
// fingerprint columns hold keyed one-way hashes for equality search. Each
// field carries the key version that produced it, so a field added after a
// rotation decrypts under its own key while older fields keep theirs.
type Lead struct {
	ID               string    `json:"id"`
	WorkspaceID      string    `json:"workspaceId"`
	EmailCiphertext  string    `json:"-"`
	EmailFingerprint string    `json:"-"`
	EmailKeyVersion  int       `json:"emailKeyVersion,omitempty"`
	PhoneCiphertext  string    `json:"-"`
	PhoneFingerprint string    `json:"-"`
	PhoneKeyVersion  int       `json:"phoneKeyVersion,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// IdentityLink associates a visitor with a lead over time. Links are
// additive; the most-recently-updated link is the current attribution.
type IdentityLink struct {
	AnonymousID   string    `json:"anonymousId"`
	LeadID        string    `json:"leadId"`
	WorkspaceID   string    `json:"workspaceId"`
	FirstLinkedAt time.Time `json:"firstLinkedAt"`
	LastLinkedAt  time.Time `json:"lastLinkedAt"`
}

// Profile is the view of an identified visitor returned to clients. It is
// derived, never persisted.
type Profile struct {
	AnonymousID string `json:"anonymousId"`
	LeadID      string `json:"leadId"`
	HasEmail    bool   `json:"hasEmail"`
	HasPhone    bool   `json:"hasPhone"`
}

// VisitorRepository persists Visitor summaries with upsert semantics.
type VisitorRepository interface {
	FindByID(anonymousID string) (*Visitor, error)
	Upsert(visitor *Visitor) error
}

// SessionRepository persists Sessions.
type SessionRepository interface {
	FindByID(id string) (*Session, error)
	GetLatestOpenByAnonymousID(anonymousID string) (*Session, error)
	Create(session *Session) error
	Touch(id string, at time.Time) error
	End(id string, at time.Time) error
}

// LeadRepository persists Leads. Lookups are by encrypted fingerprint only;
// plaintext PII never reaches this layer.
type LeadRepository interface {
	FindByID(id string) (*Lead, error)
	FindByEmailFingerprint(workspaceID, fingerprint string) (*Lead, error)
	FindByPhoneFingerprint(workspaceID, fingerprint string) (*Lead, error)
	Store(lead *Lead) error
	Update(lead *Lead) error
}

// IdentityLinkRepository persists visitor↔lead links.
type IdentityLinkRepository interface {
	Find(workspaceID, anonymousID, leadID string) (*IdentityLink, error)
	FindCurrentByAnonymousID(workspaceID, anonymousID string) (*IdentityLink, error)
	FindByAnonymousID(workspaceID, anonymousID string) ([]*IdentityLink, error)
	Upsert(link *IdentityLink) error
}
