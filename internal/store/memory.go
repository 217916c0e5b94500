package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/mlnas/MirrorScan/internal/models"
)

// InMemoryStore keeps scans in process memory. Used in tests and when
// Postgres is not configured; the engine degrades gracefully instead of
// refusing to start.
type InMemoryStore struct {
	mu      sync.RWMutex
	scans   map[string]*models.ScanRecord
	actions map[string][]*models.ContainmentAction
}

// NewInMemoryStore returns an empty in-process scan store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		scans:   make(map[string]*models.ScanRecord),
		actions: make(map[string][]*models.ContainmentAction),
	}
}

func (s *InMemoryStore) CreateScan(_ context.Context, rec *models.ScanRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.scans[rec.ID]; exists {
		return fmt.Errorf("scan %s already exists", rec.ID)
	}
	s.scans[rec.ID] = deepCopy(rec)
	return nil
}

func (s *InMemoryStore) UpdateScan(_ context.Context, rec *models.ScanRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.scans[rec.ID]; !exists {
		return fmt.Errorf("%w: %s", models.ErrNotFound, rec.ID)
	}
	s.scans[rec.ID] = deepCopy(rec)
	return nil
}

func (s *InMemoryStore) GetScan(_ context.Context, scanID string) (*models.ScanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.scans[scanID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, scanID)
	}
	return deepCopy(rec), nil
}

func (s *InMemoryStore) ListScans(_ context.Context, limit int) ([]*models.ScanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*models.ScanRecord, 0, len(s.scans))
	for _, rec := range s.scans {
		records = append(records, deepCopy(rec))
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *InMemoryStore) AppendContainmentAction(_ context.Context, action *models.ContainmentAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *action
	s.actions[action.ScanID] = append(s.actions[action.ScanID], &copied)
	return nil
}

func (s *InMemoryStore) ContainmentActions(_ context.Context, scanID string) ([]*models.ContainmentAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	actions := make([]*models.ContainmentAction, 0, len(s.actions[scanID]))
	for _, a := range s.actions[scanID] {
		copied := *a
		actions = append(actions, &copied)
	}
	return actions, nil
}

// deepCopy round-trips through JSON so stored records cannot alias live
// state machine memory.
func deepCopy(rec *models.ScanRecord) *models.ScanRecord {
	data, err := json.Marshal(rec)
	if err != nil {
		// ScanRecord contains only marshalable fields.
		panic(fmt.Sprintf("scan record not marshalable: %v", err))
	}
	var out models.ScanRecord
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("scan record not unmarshalable: %v", err))
	}
	return &out
}
