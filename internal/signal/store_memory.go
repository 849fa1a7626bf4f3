package signal

import (
	"context"
	"sync"

	"haven/pkg/domain"
	"haven/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	signals map[domain.SignalID]SafetySignal
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{signals: make(map[domain.SignalID]SafetySignal)}
}

func (s *InMemoryStore) Create(_ context.Context, sig SafetySignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.signals[sig.ID]; ok {
		return sentinel.ErrConflict
	}
	s.signals[sig.ID] = sig
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id domain.SignalID) (*SafetySignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sig, ok := s.signals[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := sig
	return &copied, nil
}

func (s *InMemoryStore) ListByFamily(_ context.Context, familyID domain.FamilyID) ([]SafetySignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []SafetySignal
	for _, sig := range s.signals {
		if sig.FamilyID == familyID {
			out = append(out, sig)
		}
	}
	return out, nil
}

// Snapshot captures the current contents and returns the function that
// restores them. The in-memory seal unit of work uses it to roll back.
func (s *InMemoryStore) Snapshot() func() {
	s.mu.RLock()
	saved := make(map[domain.SignalID]SafetySignal, len(s.signals))
	for id, sig := range s.signals {
		saved[id] = sig
	}
	s.mu.RUnlock()
	return func() {
		s.mu.Lock()
		s.signals = saved
		s.mu.Unlock()
	}
}

func (s *InMemoryStore) Delete(_ context.Context, id domain.SignalID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.signals[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.signals, id)
	return nil
}
