package memory

import (
	"context"
	"sync"

	"arena-token-ledger/internal/domain"
	"arena-token-ledger/internal/storage"
)

// RepairCheckpointStore is an in-memory implementation of storage.RepairCheckpointStore.
type RepairCheckpointStore struct {
	mu   sync.RWMutex
	data map[string]domain.RepairCheckpoint
}

// NewRepairCheckpointStore creates a new in-memory checkpoint store.
func NewRepairCheckpointStore() *RepairCheckpointStore {
	return &RepairCheckpointStore{
		data: make(map[string]domain.RepairCheckpoint),
	}
}

// Get returns the checkpoint of a job.
func (s *RepairCheckpointStore) Get(_ context.Context, jobID string) (*domain.RepairCheckpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.data[jobID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &cp, nil
}

// Save upserts the checkpoint of a job.
func (s *RepairCheckpointStore) Save(_ context.Context, cp *domain.RepairCheckpoint) error {
	if cp == nil || cp.JobID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[cp.JobID] = *cp
	return nil
}

var _ storage.RepairCheckpointStore = (*RepairCheckpointStore)(nil)
