package progress

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type statusKey struct {
	tenant uuid.UUID
	run    uuid.UUID
}

type MemoryStore struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[statusKey]Status
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, entries: make(map[statusKey]Status)}
}

func (m *MemoryStore) Save(_ context.Context, s Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = m.now().UTC()
	}
	m.entries[statusKey{tenant: s.TenantID, run: s.RunID}] = s
	m.evictLocked()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, tenantID, runID uuid.UUID) (Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.entries[statusKey{tenant: tenantID, run: runID}]
	if !ok || m.expired(s) {
		return Status{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) expired(s Status) bool {
	return m.ttl > 0 && m.now().Sub(s.UpdatedAt) > m.ttl
}

func (m *MemoryStore) evictLocked() {
	for k, s := range m.entries {
		if m.expired(s) {
			delete(m.entries, k)
		}
	}
}
