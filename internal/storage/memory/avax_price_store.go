package memory

import (
	"context"
	"sync"

	"arena-token-ledger/internal/domain"
	"arena-token-ledger/internal/storage"
)

// AvaxPriceStore is an in-memory implementation of storage.AvaxPriceStore.
type AvaxPriceStore struct {
	mu     sync.RWMutex
	points []domain.AvaxPrice
}

// NewAvaxPriceStore creates a new in-memory price series.
func NewAvaxPriceStore() *AvaxPriceStore {
	return &AvaxPriceStore{}
}

// Insert appends a price point.
func (s *AvaxPriceStore) Insert(_ context.Context, p *domain.AvaxPrice) error {
	if p == nil || p.FetchedAt <= 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.points = append(s.points, *p)
	return nil
}

// Latest returns the point with the greatest fetched_at.
func (s *AvaxPriceStore) Latest(_ context.Context) (*domain.AvaxPrice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.points) == 0 {
		return nil, storage.ErrNotFound
	}
	latest := s.points[0]
	for _, p := range s.points[1:] {
		if p.FetchedAt >= latest.FetchedAt {
			latest = p
		}
	}
	return &latest, nil
}

var _ storage.AvaxPriceStore = (*AvaxPriceStore)(nil)
