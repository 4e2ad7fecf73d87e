package store

import (
	"context"
	"sort"
	"sync"

	"shotreview/pkg/domain"
)

// MemoryStore is an in-process RecordStore.
type MemoryStore struct {
	mu    sync.RWMutex
	shots map[string]map[int64]domain.Screenshot
	tags  map[int64]domain.Tag
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		shots: make(map[string]map[int64]domain.Screenshot),
		tags:  make(map[int64]domain.Tag),
	}
}

func (m *MemoryStore) SaveScreenshot(_ context.Context, s domain.Screenshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.shots[s.JobID]
	if !ok {
		job = make(map[int64]domain.Screenshot)
		m.shots[s.JobID] = job
	}
	job[s.ID] = s.Clone()
	return nil
}

func (m *MemoryStore) DeleteScreenshot(_ context.Context, jobID string, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.shots[jobID], id)
	return nil
}

func (m *MemoryStore) DeleteJob(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.shots, jobID)
	return nil
}

func (m *MemoryStore) ListScreenshots(_ context.Context, jobID string) ([]domain.Screenshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Screenshot, 0, len(m.shots[jobID]))
	for _, s := range m.shots[jobID] {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) SaveTag(_ context.Context, t domain.Tag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tags[t.ID] = t
	return nil
}

func (m *MemoryStore) DeleteTag(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tags, id)
	return nil
}

func (m *MemoryStore) ListTags(_ context.Context) ([]domain.Tag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Tag, 0, len(m.tags))
	for _, t := range m.tags {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
