package bootstrap

import (
	"context"
	"sync"

	"github.com/kilianp07/mqttbridge/core/model"
)

// MemoryStore keeps records in memory. Records are lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	byID     map[string]model.BootstrapRecord
	byDevice map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: map[string]model.BootstrapRecord{}, byDevice: map[string]string{}}
}

func (s *MemoryStore) Put(_ context.Context, rec model.BootstrapRecord) error {
	s.mu.Lock()
	s.byID[rec.ID] = rec
	if cur, ok := s.byID[s.byDevice[rec.DeviceID]]; !ok || !rec.CreatedAt.Before(cur.CreatedAt) {
		s.byDevice[rec.DeviceID] = rec.ID
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, bootstrapID string) (model.BootstrapRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[bootstrapID]
	if !ok {
		return model.BootstrapRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) Latest(_ context.Context, deviceID string) (model.BootstrapRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[s.byDevice[deviceID]]
	if !ok {
		return model.BootstrapRecord{}, ErrNotFound
	}
	return rec, nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
