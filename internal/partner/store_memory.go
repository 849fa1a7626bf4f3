package partner

import (
	"context"
	"sync"

	"haven/pkg/domain"
	"haven/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu       sync.RWMutex
	partners map[domain.PartnerID]CrisisPartner
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{partners: make(map[domain.PartnerID]CrisisPartner)}
}

func (s *InMemoryStore) Save(_ context.Context, p CrisisPartner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partners[p.ID] = p
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id domain.PartnerID) (*CrisisPartner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.partners[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := p
	return &copied, nil
}

func (s *InMemoryStore) List(_ context.Context) ([]CrisisPartner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CrisisPartner, 0, len(s.partners))
	for _, p := range s.partners {
		out = append(out, p)
	}
	return out, nil
}

func (s *InMemoryStore) ListActive(_ context.Context) ([]CrisisPartner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []CrisisPartner
	for _, p := range s.partners {
		if p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}
