package blackout

import (
	"context"
	"sync"
	"time"

	"haven/pkg/domain"
	"haven/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	records map[domain.SignalID]Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[domain.SignalID]Record)}
}

func (s *InMemoryStore) Create(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.SignalID]; ok {
		return sentinel.ErrConflict
	}
	s.records[record.SignalID] = record
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, signalID domain.SignalID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[signalID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := r
	return &copied, nil
}

func (s *InMemoryStore) Update(_ context.Context, record Record, expectedExpiry time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.records[record.SignalID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !current.ExpiresAt.Equal(expectedExpiry) {
		return sentinel.ErrConflict
	}
	s.records[record.SignalID] = record
	return nil
}
