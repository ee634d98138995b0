package quota

import (
	"context"
	"sync"
)

type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (m *MemoryStore) Reserve(_ context.Context, key, day string, limit int) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.records[key]
	if rec.Date != day {
		rec = Record{Date: day}
	}
	if rec.Count >= limit {
		return rec, false, nil
	}
	rec.Count++
	m.records[key] = rec
	return rec, true, nil
}

func (m *MemoryStore) Release(_ context.Context, key, day string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	if ok && rec.Date == day && rec.Count > 0 {
		rec.Count--
		m.records[key] = rec
	}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.records[key], nil
}

func (m *MemoryStore) Close() error {
	return nil
}
