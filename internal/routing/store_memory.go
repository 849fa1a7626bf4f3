package routing

import (
	"context"
	"sort"
	"sync"

	"haven/pkg/domain"
	"haven/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	results map[domain.ResultID]Result
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{results: make(map[domain.ResultID]Result)}
}

func (s *InMemoryStore) Create(_ context.Context, result Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[result.ID]; ok {
		return sentinel.ErrConflict
	}
	s.results[result.ID] = result
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id domain.ResultID) (*Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := r
	return &copied, nil
}

func (s *InMemoryStore) Update(_ context.Context, result Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[result.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.results[result.ID] = result
	return nil
}

func (s *InMemoryStore) ListBySignal(_ context.Context, signalID domain.SignalID) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Result
	for _, r := range s.results {
		if r.SignalID == signalID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Snapshot captures the current contents and returns the function that
// restores them. The in-memory seal unit of work uses it to roll back.
func (s *InMemoryStore) Snapshot() func() {
	s.mu.RLock()
	saved := make(map[domain.ResultID]Result, len(s.results))
	for id, r := range s.results {
		saved[id] = r
	}
	s.mu.RUnlock()
	return func() {
		s.mu.Lock()
		s.results = saved
		s.mu.Unlock()
	}
}

func (s *InMemoryStore) DeleteBySignal(_ context.Context, signalID domain.SignalID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.results {
		if r.SignalID == signalID {
			delete(s.results, id)
		}
	}
	return nil
}
