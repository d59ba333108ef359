package memory

import (
	"context"
	"sync"

	"arena-token-ledger/internal/domain"
	"arena-token-ledger/internal/storage"
)

// CurveAnchorStore is an in-memory implementation of storage.CurveAnchorStore.
type CurveAnchorStore struct {
	mu   sync.RWMutex
	data map[int64]*domain.CurveAnchor
}

// NewCurveAnchorStore creates a new in-memory anchor store.
func NewCurveAnchorStore() *CurveAnchorStore {
	return &CurveAnchorStore{
		data: make(map[int64]*domain.CurveAnchor),
	}
}

// Get returns the anchor of a token.
func (s *CurveAnchorStore) Get(_ context.Context, tokenID int64) (*domain.CurveAnchor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.data[tokenID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *a
	return &copy, nil
}

// Insert pins an anchor. Returns ErrDuplicateKey if the token already has one.
func (s *CurveAnchorStore) Insert(_ context.Context, a *domain.CurveAnchor) error {
	if a == nil || a.AnchorTxHash == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[a.TokenID]; exists {
		return storage.ErrDuplicateKey
	}
	copy := *a
	s.data[a.TokenID] = &copy
	return nil
}

var _ storage.CurveAnchorStore = (*CurveAnchorStore)(nil)
