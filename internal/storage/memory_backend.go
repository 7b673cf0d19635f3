package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-memory template store, used for tests and when no
// database path is configured.
type MemoryStore struct {
	mu        sync.RWMutex
	templates map[string]Template
	index     memoryIndex
}

// NewMemoryStore creates a new in-memory template store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		templates: make(map[string]Template),
		index:     make(memoryIndex),
	}
}

// Initialize is a no-op for the memory store.
func (m *MemoryStore) Initialize(_ string, _ bool) error {
	return nil
}

// Close clears all data.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.templates = make(map[string]Template)
	m.index = make(memoryIndex)
	return nil
}

// BulkLoad replaces the entire store with templates.
func (m *MemoryStore) BulkLoad(ctx context.Context, templates []Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.templates = make(map[string]Template, len(templates))
	m.index = make(memoryIndex)
	return m.put(ctx, templates)
}

// Put inserts or replaces templates by ID.
func (m *MemoryStore) Put(ctx context.Context, templates ...Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(ctx, templates)
}

func (m *MemoryStore) put(ctx context.Context, templates []Template) error {
	for _, t := range templates {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, ok := m.templates[t.ID]; ok {
			m.index.remove(t.ID)
		}
		t.Tags = append([]string(nil), t.Tags...)
		m.templates[t.ID] = t
		m.index.add(t)
	}
	return nil
}

// RemoveBySource deletes every template loaded from source.
func (m *MemoryStore) RemoveBySource(_ context.Context, source string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, t := range m.templates {
		if t.Source == source {
			delete(m.templates, id)
			m.index.remove(id)
			removed++
		}
	}
	return removed, nil
}

// Get returns a template by ID.
func (m *MemoryStore) Get(_ context.Context, id string) (Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.templates[id]
	if !ok {
		return Template{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	return t, nil
}

// List returns every template ordered by ID.
func (m *MemoryStore) List(_ context.Context) ([]Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.list(), nil
}

func (m *MemoryStore) list() []Template {
	out := make([]Template, 0, len(m.templates))
	for _, t := range m.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Search returns templates matching q ranked by fused relevance.
func (m *MemoryStore) Search(ctx context.Context, q Query) ([]Template, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	var hits []SearchResult
	if q.Search != "" {
		hits = m.index.search(q.Search)
	}

	out, total := rank(filter(m.list(), q), hits, q)
	return out, total, nil
}

// Count returns the number of stored templates.
func (m *MemoryStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.templates)
}

var _ TemplateStore = (*MemoryStore)(nil)
