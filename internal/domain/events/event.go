// Package events provides the behavioral event entity and its boundary
// validation rules.
package events

import "time"

// AnonymousIDPrefix namespaces client-generated visitor identifiers.
const AnonymousIDPrefix = "a_"

// PropSchemaVersion tags the shape of the free-form property bags persisted
// with each event.
const PropSchemaVersion = 1

// Properties is a loosely-typed bag of scalar or nested JSON values. Its
// shape is validated once at the intake boundary, never downstream.
type Properties map[string]any

// PageContext captures the page the event was emitted from.
type PageContext struct {
	URL      string `json:"url,omitempty"`
	Path     string `json:"path,omitempty"`
	Title    string `json:"title,omitempty"`
	Referrer string `json:"referrer,omitempty"`
}

// UTMParams captures campaign attribution parameters.
type UTMParams struct {
	Source   string `json:"source,omitempty"`
	Medium   string `json:"medium,omitempty"`
	Campaign string `json:"campaign,omitempty"`
	Term     string `json:"term,omitempty"`
	Content  string `json:"content,omitempty"`
}

// DeviceInfo is derived from request headers by the enrichment resolver.
type DeviceInfo struct {
	Type    string `json:"type,omitempty"`
	OS      string `json:"os,omitempty"`
	Browser string `json:"browser,omitempty"`
	Locale  string `json:"locale,omitempty"`
}

// GeoInfo is derived from request headers by the enrichment resolver.
type GeoInfo struct {
	Country string `json:"country,omitempty"`
	Region  string `json:"region,omitempty"`
	City    string `json:"city,omitempty"`
}

// Event is an immutable behavioral fact. Rows are created once, never
// mutated and never deleted by this engine.
type Event struct {
	ID            string       `json:"id"`
	ExternalID    string       `json:"eventId,omitempty"`
	WorkspaceID   string       `json:"workspaceId"`
	Name          string       `json:"name"`
	AnonymousID   string       `json:"anonymousId"`
	LeadID        *string      `json:"leadId,omitempty"`
	SessionID     string       `json:"sessionId,omitempty"`
	OccurredAt    time.Time    `json:"occurredAt"`
	ReceivedAt    time.Time    `json:"receivedAt"`
	Page          *PageContext `json:"page,omitempty"`
	UTM           *UTMParams   `json:"utm,omitempty"`
	Device        *DeviceInfo  `json:"device,omitempty"`
	Geo           *GeoInfo     `json:"geo,omitempty"`
	Props         Properties   `json:"props,omitempty"`
	SchemaVersion int          `json:"schemaVersion"`
}

// URL returns the page URL the event was emitted from, or "".
func (e *Event) URL() string {
	if e.Page == nil {
		return ""
	}
	return e.Page.URL
}
