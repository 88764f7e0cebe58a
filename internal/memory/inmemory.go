package memory

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore is a map-backed Store for tests and single-process
// development runs. Semantics mirror RedisStore.
type InMemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]StudentProfile
	events   map[string][]Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		profiles: make(map[string]StudentProfile),
		events:   make(map[string][]Event),
	}
}

func (m *InMemoryStore) Profile(ctx context.Context, studentID string) (StudentProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[studentID]
	if !ok {
		return StudentProfile{}, ErrProfileNotFound
	}
	return p, nil
}

func (m *InMemoryStore) SaveProfile(ctx context.Context, profile StudentProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[profile.StudentID] = profile
	return nil
}

func (m *InMemoryStore) AppendEvent(ctx context.Context, event Event) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event.StudentID] = append(m.events[event.StudentID], event)
	return nil
}

func (m *InMemoryStore) RecentEvents(ctx context.Context, studentID string, limit int) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.events[studentID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]Event, len(all))
	copy(out, all)
	return out, nil
}

func (m *InMemoryStore) ConceptEvents(ctx context.Context, studentID, concept, kind string) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Event
	for _, e := range m.events[studentID] {
		if e.Kind == kind && e.Concept == concept {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *InMemoryStore) Close() error { return nil }
