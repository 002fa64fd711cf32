package baseline

import (
	"context"
	"errors"
	"sync"

	"commsentry/internal/schema"
)

// ErrWriteFailed is returned by MemoryStore for entities listed in
// FailEntities.
var ErrWriteFailed = errors.New("baseline: write failed")

// MemoryStore is an in-memory Store used in tests and single-process runs
// without Redis.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]*Baseline // tenant -> entity key -> baseline

	// FailEntities lists entity ids whose writes should fail, for
	// exercising partial-success recompute paths in tests.
	FailEntities map[string]bool
}

// NewMemoryStore creates an empty in-memory baseline store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:         make(map[string]map[string]*Baseline),
		FailEntities: make(map[string]bool),
	}
}

// Get returns the baseline for an entity, or ErrNotFound.
func (m *MemoryStore) Get(ctx context.Context, tenantID string, entityType schema.EntityType, entityID string) (*Baseline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tenant, ok := m.data[tenantID]
	if !ok {
		return nil, ErrNotFound
	}
	b, ok := tenant[Key(entityType, entityID)]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *b
	return &copied, nil
}

// Put upserts the baseline for an entity.
func (m *MemoryStore) Put(ctx context.Context, tenantID string, b *Baseline) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailEntities[b.EntityID] {
		return ErrWriteFailed
	}

	if m.data[tenantID] == nil {
		m.data[tenantID] = make(map[string]*Baseline)
	}
	copied := *b
	m.data[tenantID][Key(b.EntityType, b.EntityID)] = &copied
	return nil
}

// All returns every baseline for a tenant.
func (m *MemoryStore) All(ctx context.Context, tenantID string) (map[string]*Baseline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]*Baseline, len(m.data[tenantID]))
	for key, b := range m.data[tenantID] {
		copied := *b
		result[key] = &copied
	}
	return result, nil
}
