package reference

import (
	"context"
	"sync"
)

// InMemoryStore implements all three reference providers in process memory.
// Used in tests and when Redis is not configured.
type InMemoryStore struct {
	mu           sync.RWMutex
	corpora      map[string][]string
	identities   []IdentityVector
	fingerprints map[string]*Fingerprint
}

// NewInMemoryStore returns an empty in-process reference store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		corpora:      make(map[string][]string),
		fingerprints: make(map[string]*Fingerprint),
	}
}

func (s *InMemoryStore) Samples(_ context.Context, modelID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	samples := make([]string, len(s.corpora[modelID]))
	copy(samples, s.corpora[modelID])
	return samples, nil
}

func (s *InMemoryStore) AddSample(_ context.Context, modelID, sample string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.corpora[modelID] = append(s.corpora[modelID], sample)
	return nil
}

func (s *InMemoryStore) Vectors(_ context.Context) ([]IdentityVector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vectors := make([]IdentityVector, len(s.identities))
	copy(vectors, s.identities)
	return vectors, nil
}

func (s *InMemoryStore) AddIdentity(_ context.Context, iv IdentityVector) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.identities = append(s.identities, iv)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, modelID string) (*Fingerprint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fp, ok := s.fingerprints[modelID]
	if !ok {
		return nil, nil
	}
	copied := *fp
	return &copied, nil
}

func (s *InMemoryStore) Put(_ context.Context, fp *Fingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *fp
	s.fingerprints[fp.ModelID] = &copied
	return nil
}
