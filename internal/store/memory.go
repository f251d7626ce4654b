package store

import (
	"context"
	"sync"

	"github.com/morrigan/connection-provider/internal/record"
)

// Memory is an in-process Store backed by plain maps. It is the default
// store for tests and satisfies the same contract as the Redis-backed
// implementation used in production.
type Memory struct {
	mu      sync.RWMutex
	records map[string]*record.Record
	byClient map[string]string // clientID -> record id
	tokens  map[string]*TokenRecord
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		records:  make(map[string]*record.Record),
		byClient: make(map[string]string),
		tokens:   make(map[string]*TokenRecord),
	}
}

func cloneRecord(r *record.Record) *record.Record {
	cp := *r
	return &cp
}

func (m *Memory) FindByID(_ context.Context, id string) (*record.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(r), nil
}

func (m *Memory) FindByClientID(_ context.Context, clientID string) (*record.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byClient[clientID]
	if !ok {
		return nil, ErrNotFound
	}
	r, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(r), nil
}

func (m *Memory) FindOne(_ context.Context, f Filter) (*record.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.records {
		if matches(r, f) {
			return cloneRecord(r), nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) FindAll(_ context.Context) ([]*record.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*record.Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, cloneRecord(r))
	}
	return out, nil
}

func (m *Memory) Upsert(_ context.Context, r *record.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[r.ID] = cloneRecord(r)
	m.byClient[r.ClientID] = r.ID
	return nil
}

func (m *Memory) DeleteByID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[id]; ok {
		if m.byClient[r.ClientID] == id {
			delete(m.byClient, r.ClientID)
		}
		delete(m.records, id)
	}
	return nil
}

func (m *Memory) FindToken(_ context.Context, id string) (*TokenRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tokens[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *Memory) UpsertToken(_ context.Context, t *TokenRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tokens[t.ID] = &cp
	return nil
}

func (m *Memory) DeleteToken(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, id)
	return nil
}

func matches(r *record.Record, f Filter) bool {
	if f.ClientID != "" && r.ClientID != f.ClientID {
		return false
	}
	if f.ServerID != "" && r.ServerID != f.ServerID {
		return false
	}
	if f.Open != nil && r.Open != *f.Open {
		return false
	}
	return true
}
