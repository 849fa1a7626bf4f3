package isolation

import (
	"context"
	"sync"

	"haven/pkg/domain"
	"haven/pkg/platform/sentinel"
)

type InMemorySealedStore struct {
	mu     sync.RWMutex
	sealed map[domain.SignalID]IsolatedSignal
}

func NewInMemorySealedStore() *InMemorySealedStore {
	return &InMemorySealedStore{sealed: make(map[domain.SignalID]IsolatedSignal)}
}

func (s *InMemorySealedStore) Create(_ context.Context, sealed IsolatedSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sealed[sealed.ID]; ok {
		return sentinel.ErrConflict
	}
	s.sealed[sealed.ID] = sealed
	return nil
}

func (s *InMemorySealedStore) Get(_ context.Context, id domain.SignalID) (*IsolatedSignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sealed[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := rec
	return &copied, nil
}

func (s *InMemorySealedStore) Exists(_ context.Context, id domain.SignalID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sealed[id]
	return ok, nil
}

func (s *InMemorySealedStore) Snapshot() func() {
	s.mu.RLock()
	saved := make(map[domain.SignalID]IsolatedSignal, len(s.sealed))
	for id, rec := range s.sealed {
		saved[id] = rec
	}
	s.mu.RUnlock()
	return func() {
		s.mu.Lock()
		s.sealed = saved
		s.mu.Unlock()
	}
}

// MemoryUnitOfWork gives single-process deployments the same all-or-nothing
// seal NewSQLUnitOfWork provides: every participant is snapshotted before fn
// runs and restored, in reverse order, when fn fails. One mutex serializes
// seals, so no reader observes the intermediate state either.
func MemoryUnitOfWork(participants ...Snapshotter) UnitOfWork {
	var mu sync.Mutex
	return func(ctx context.Context, fn func(ctx context.Context) error) error {
		mu.Lock()
		defer mu.Unlock()
		restores := make([]func(), len(participants))
		for i, p := range participants {
			restores[i] = p.Snapshot()
		}
		if err := fn(ctx); err != nil {
			for i := len(restores) - 1; i >= 0; i-- {
				restores[i]()
			}
			return err
		}
		return nil
	}
}

// InMemoryFamilyStore is an in-process family-visible store used in
// single-process deployments and tests. Each collection is a map of
// document id to the signal/family pair it references.
type InMemoryFamilyStore struct {
	mu   sync.RWMutex
	docs map[Collection]map[string]familyDoc
}

type familyDoc struct {
	signalID domain.SignalID
	familyID domain.FamilyID
}

func NewInMemoryFamilyStore() *InMemoryFamilyStore {
	docs := make(map[Collection]map[string]familyDoc, len(FamilyCollections))
	for _, c := range FamilyCollections {
		docs[c] = make(map[string]familyDoc)
	}
	return &InMemoryFamilyStore{docs: docs}
}

// Put inserts a family-visible document referencing a signal. Collaborator
// code (notification fan-out, activity logging) writes through this.
func (s *InMemoryFamilyStore) Put(collection Collection, id string, signalID domain.SignalID, familyID domain.FamilyID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[collection]; !ok {
		s.docs[collection] = make(map[string]familyDoc)
	}
	s.docs[collection][id] = familyDoc{signalID: signalID, familyID: familyID}
}

func (s *InMemoryFamilyStore) FindBySignal(_ context.Context, collection Collection, signalID domain.SignalID, familyID domain.FamilyID) ([]Ref, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var refs []Ref
	for id, doc := range s.docs[collection] {
		if doc.signalID == signalID && doc.familyID == familyID {
			refs = append(refs, Ref{Collection: collection, ID: id})
		}
	}
	return refs, nil
}

func (s *InMemoryFamilyStore) DeleteMany(_ context.Context, refs []Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ref := range refs {
		delete(s.docs[ref.Collection], ref.ID)
	}
	return nil
}

func (s *InMemoryFamilyStore) Snapshot() func() {
	s.mu.RLock()
	saved := make(map[Collection]map[string]familyDoc, len(s.docs))
	for c, docs := range s.docs {
		copied := make(map[string]familyDoc, len(docs))
		for id, doc := range docs {
			copied[id] = doc
		}
		saved[c] = copied
	}
	s.mu.RUnlock()
	return func() {
		s.mu.Lock()
		s.docs = saved
		s.mu.Unlock()
	}
}

// InMemoryLegalGate is a static legal-request gate for single-process
// deployments and tests.
type InMemoryLegalGate struct {
	mu       sync.RWMutex
	requests map[domain.LegalRequestID]LegalRequest
}

func NewInMemoryLegalGate() *InMemoryLegalGate {
	return &InMemoryLegalGate{requests: make(map[domain.LegalRequestID]LegalRequest)}
}

func (g *InMemoryLegalGate) Put(req LegalRequest) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests[req.ID] = req
}

func (g *InMemoryLegalGate) Get(_ context.Context, id domain.LegalRequestID) (*LegalRequest, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	req, ok := g.requests[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := req
	return &copied, nil
}
