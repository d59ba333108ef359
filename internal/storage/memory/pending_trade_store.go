package memory

import (
	"context"
	"math/big"
	"sort"
	"sync"

	"arena-token-ledger/internal/domain"
	"arena-token-ledger/internal/storage"
)

// PendingTradeStore is an in-memory implementation of storage.PendingTradeStore.
type PendingTradeStore struct {
	mu     sync.RWMutex
	data   map[int64]*domain.PendingTrade // keyed by queue id
	nextID int64
}

// NewPendingTradeStore creates a new in-memory temp queue.
func NewPendingTradeStore() *PendingTradeStore {
	return &PendingTradeStore{
		data: make(map[int64]*domain.PendingTrade),
	}
}

func clonePending(p *domain.PendingTrade) *domain.PendingTrade {
	c := *p
	if p.Amount != nil {
		c.Amount = new(big.Int).Set(p.Amount)
	}
	if p.Referrer != nil {
		ref := *p.Referrer
		c.Referrer = &ref
	}
	return &c
}

// Insert enqueues a pending trade and returns its queue id.
func (s *PendingTradeStore) Insert(_ context.Context, p *domain.PendingTrade) (int64, error) {
	if p == nil || p.TxHash == "" {
		return 0, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	c := clonePending(p)
	c.ID = s.nextID
	s.data[c.ID] = c
	return c.ID, nil
}

// ListOrdered returns all pending trades ordered by timestamp ASC, id ASC.
func (s *PendingTradeStore) ListOrdered(_ context.Context) ([]*domain.PendingTrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.PendingTrade, 0, len(s.data))
	for _, p := range s.data {
		result = append(result, clonePending(p))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp != result[j].Timestamp {
			return result[i].Timestamp < result[j].Timestamp
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// Delete removes a pending trade.
func (s *PendingTradeStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, id)
	return nil
}

var _ storage.PendingTradeStore = (*PendingTradeStore)(nil)
