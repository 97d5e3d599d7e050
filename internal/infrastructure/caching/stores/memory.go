// Package stores provides concrete cache store implementations
package stores

import (
	"strings"
	"sync"
	"time"

	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/observability/logging"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore is the in-process cache backend. Entries are partitioned by
// tenant and swept on an interval so idle tenants do not pin memory.
type MemoryStore struct {
	entries map[string]memoryEntry
	mu      sync.RWMutex
	logger  *logging.ChanneledLogger
	done    chan struct{}
	once    sync.Once
}

// NewMemoryStore creates a memory store and starts its sweep loop.
func NewMemoryStore(sweepInterval time.Duration, logger *logging.ChanneledLogger) *MemoryStore {
	if logger != nil {
		logger.Cache().Info("Initializing memory cache store", "sweepInterval", sweepInterval)
	}
	ms := &MemoryStore{
		entries: make(map[string]memoryEntry),
		logger:  logger,
		done:    make(chan struct{}),
	}
	if sweepInterval > 0 {
		go ms.sweepLoop(sweepInterval)
	}
	return ms
}

// Get retrieves a value. Expired entries count as misses and are removed
// lazily.
func (ms *MemoryStore) Get(tenantID, key string) ([]byte, bool) {
	full := tenantID + "/" + key

	ms.mu.RLock()
	entry, found := ms.entries[full]
	ms.mu.RUnlock()

	if !found {
		return nil, false
	}
	if entry.expired(time.Now().UTC()) {
		ms.mu.Lock()
		delete(ms.entries, full)
		ms.mu.Unlock()
		return nil, false
	}
	return entry.value, true
}

// Set stores a value. A zero ttl means the entry never expires.
func (ms *MemoryStore) Set(tenantID, key string, value []byte, ttl time.Duration) error {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().UTC().Add(ttl)
	}

	ms.mu.Lock()
	ms.entries[tenantID+"/"+key] = memoryEntry{value: value, expiresAt: expiresAt}
	ms.mu.Unlock()
	return nil
}

// Delete removes a single entry.
func (ms *MemoryStore) Delete(tenantID, key string) error {
	ms.mu.Lock()
	delete(ms.entries, tenantID+"/"+key)
	ms.mu.Unlock()
	return nil
}

// PurgeTenant drops every entry belonging to one tenant.
func (ms *MemoryStore) PurgeTenant(tenantID string) error {
	prefix := tenantID + "/"

	ms.mu.Lock()
	for k := range ms.entries {
		if strings.HasPrefix(k, prefix) {
			delete(ms.entries, k)
		}
	}
	ms.mu.Unlock()

	if ms.logger != nil {
		ms.logger.Cache().Info("Tenant cache purged", "tenantId", tenantID)
	}
	return nil
}

// Close stops the sweep loop.
func (ms *MemoryStore) Close() error {
	ms.once.Do(func() { close(ms.done) })
	return nil
}

func (ms *MemoryStore) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ms.done:
			return
		case <-ticker.C:
			ms.sweep()
		}
	}
}

func (ms *MemoryStore) sweep() {
	now := time.Now().UTC()
	start := time.Now()
	removed := 0

	ms.mu.Lock()
	for k, entry := range ms.entries {
		if entry.expired(now) {
			delete(ms.entries, k)
			removed++
		}
	}
	remaining := len(ms.entries)
	ms.mu.Unlock()

	if ms.logger != nil && removed > 0 {
		ms.logger.Cache().Debug("Cache sweep complete", "removed", removed, "remaining", remaining, "duration", time.Since(start))
	}
}
