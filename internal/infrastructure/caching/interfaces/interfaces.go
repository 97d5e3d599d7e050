// Package interfaces defines the cache store contract. Backends are
// interchangeable: the in-memory store for single-node deployments, the
// badger store when cached state must survive restarts.
package interfaces

import "time"

// Store is a tenant-partitioned key/value cache with per-entry TTL.
// Implementations must be safe for concurrent use.
type Store interface {
	Get(tenantID, key string) ([]byte, bool)
	Set(tenantID, key string, value []byte, ttl time.Duration) error
	Delete(tenantID, key string) error
	// PurgeTenant drops every entry belonging to one tenant.
	PurgeTenant(tenantID string) error
	Close() error
}
