package storage

import (
	"context"
	"sync"
	"time"

	"github.com/ilnaes/linepad/internal/document"
)

// MemoryStore implements Store in process memory.
// Uses sync.RWMutex for thread-safe concurrent access
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]Record),
	}
}

// Save stores a copy so later changes by the caller are not seen
func (m *MemoryStore) Save(_ context.Context, id, title string, snap document.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[id] = Record{
		Meta:     Meta{ID: id, Title: title, SavedAt: time.Now()},
		Snapshot: stripHolders(snap),
	}
	return nil
}

// Load returns a copy of the stored record
func (m *MemoryStore) Load(_ context.Context, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.data[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	rec.Snapshot = stripHolders(rec.Snapshot)
	return rec, nil
}

func (m *MemoryStore) List(_ context.Context) ([]Meta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := make([]Meta, 0, len(m.data))
	for _, rec := range m.data {
		res = append(res, rec.Meta)
	}
	sortMetas(res)
	return res, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
