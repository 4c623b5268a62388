package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory keeps everything in maps. Used by tests and STORE_DRIVER=memory.
type Memory struct {
	mu       sync.RWMutex
	users    map[string]User
	emails   map[string]string
	diagrams map[string]Diagram
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		users:    make(map[string]User),
		emails:   make(map[string]string),
		diagrams: make(map[string]Diagram),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) CreateUser(_ context.Context, u User) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.emails[u.Email]; ok {
		return nil, ErrConflict
	}
	if _, ok := m.users[u.ID]; ok {
		return nil, ErrConflict
	}
	u.CreatedAt = m.now()
	m.users[u.ID] = u
	m.emails[u.Email] = u.ID
	return &u, nil
}

func (m *Memory) UserByEmail(_ context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.emails[email]
	if !ok {
		return nil, ErrNotFound
	}
	u := m.users[id]
	return &u, nil
}

func (m *Memory) UserByID(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *Memory) CreateDiagram(_ context.Context, d Diagram) (*Diagram, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.diagrams[d.ID]; ok {
		return nil, ErrConflict
	}
	now := m.now()
	d.Version = 1
	d.CreatedAt, d.UpdatedAt = now, now
	d.Content = append([]byte(nil), d.Content...)
	m.diagrams[d.ID] = d
	return copyDiagram(d), nil
}

func (m *Memory) GetDiagram(_ context.Context, id string) (*Diagram, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.diagrams[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDiagram(d), nil
}

func (m *Memory) ListDiagrams(_ context.Context, ownerID string) ([]Diagram, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Diagram
	for _, d := range m.diagrams {
		if d.OwnerID == ownerID {
			d.Content = nil
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) UpdateDiagram(_ context.Context, id, name string, content []byte, expectVersion int) (*Diagram, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.diagrams[id]
	if !ok {
		return nil, ErrNotFound
	}
	if expectVersion != 0 && expectVersion != d.Version {
		return nil, ErrStale
	}
	d.Name = name
	d.Content = append([]byte(nil), content...)
	d.Version++
	d.UpdatedAt = m.now()
	m.diagrams[id] = d
	return copyDiagram(d), nil
}

func (m *Memory) DeleteDiagram(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.diagrams[id]; !ok {
		return ErrNotFound
	}
	delete(m.diagrams, id)
	return nil
}

func (m *Memory) Close() error { return nil }

func copyDiagram(d Diagram) *Diagram {
	d.Content = append([]byte(nil), d.Content...)
	return &d
}

var _ Store = (*Memory)(nil)
