package memory

import (
	"context"
	"math/big"
	"sort"
	"sync"

	"arena-token-ledger/internal/domain"
	"arena-token-ledger/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu     sync.RWMutex
	data   map[string]*domain.Trade // keyed by tx_hash
	nextID int64
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		data: make(map[string]*domain.Trade),
	}
}

// cloneTrade copies a trade including its amount.
func cloneTrade(t *domain.Trade) *domain.Trade {
	c := *t
	if t.Amount != nil {
		c.Amount = new(big.Int).Set(t.Amount)
	}
	if t.Referrer != nil {
		ref := *t.Referrer
		c.Referrer = &ref
	}
	return &c
}

// Insert adds a new trade. Returns ErrDuplicateKey if tx_hash exists.
func (s *TradeStore) Insert(_ context.Context, t *domain.Trade) error {
	if t == nil || t.TxHash == "" || t.Amount == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.TxHash]; exists {
		return storage.ErrDuplicateKey
	}

	s.nextID++
	c := cloneTrade(t)
	c.ID = s.nextID
	s.data[t.TxHash] = c
	return nil
}

// GetAnchor returns the earliest successful initial buy of a token.
func (s *TradeStore) GetAnchor(_ context.Context, tokenID int64) (*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var anchor *domain.Trade
	for _, t := range s.data {
		if t.TokenID != tokenID || t.Status != domain.StatusSuccess || t.Action != domain.ActionInitialBuy {
			continue
		}
		if anchor == nil || t.Timestamp < anchor.Timestamp ||
			(t.Timestamp == anchor.Timestamp && t.AbsoluteTxPosition < anchor.AbsoluteTxPosition) {
			anchor = t
		}
	}
	if anchor == nil {
		return nil, storage.ErrNotFound
	}
	return cloneTrade(anchor), nil
}

// SumByAction sums amounts of successful trades for a token by action.
func (s *TradeStore) SumByAction(_ context.Context, tokenID int64) (storage.Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := storage.NewTotals()
	for _, t := range s.data {
		if t.TokenID != tokenID || t.Status != domain.StatusSuccess {
			continue
		}
		switch t.Action {
		case domain.ActionInitialBuy:
			totals.InitialBuy.Add(totals.InitialBuy, t.Amount)
		case domain.ActionBuy:
			totals.Buy.Add(totals.Buy, t.Amount)
		case domain.ActionSell:
			totals.Sell.Add(totals.Sell, t.Amount)
		}
	}
	return totals, nil
}

// GetByToken retrieves successful trades of a token, ordered by absolute_tx_position ASC.
func (s *TradeStore) GetByToken(_ context.Context, tokenID int64) ([]*domain.Trade, error) {
	return s.filter(func(t *domain.Trade) bool {
		return t.TokenID == tokenID && t.Status == domain.StatusSuccess
	}), nil
}

// GetByTokenTimeRange retrieves successful trades within [start, end] (inclusive).
func (s *TradeStore) GetByTokenTimeRange(_ context.Context, tokenID int64, start, end int64) ([]*domain.Trade, error) {
	return s.filter(func(t *domain.Trade) bool {
		return t.TokenID == tokenID && t.Status == domain.StatusSuccess &&
			t.Timestamp >= start && t.Timestamp <= end
	}), nil
}

func (s *TradeStore) filter(keep func(*domain.Trade) bool) []*domain.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Trade
	for _, t := range s.data {
		if keep(t) {
			result = append(result, cloneTrade(t))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].AbsoluteTxPosition != result[j].AbsoluteTxPosition {
			return result[i].AbsoluteTxPosition < result[j].AbsoluteTxPosition
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// ListHistory retrieves trades of any status, ordered by timestamp DESC.
func (s *TradeStore) ListHistory(_ context.Context, tokenID int64, limit, offset int) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Trade
	for _, t := range s.data {
		if t.TokenID == tokenID {
			result = append(result, cloneTrade(t))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp != result[j].Timestamp {
			return result[i].Timestamp > result[j].Timestamp
		}
		return result[i].AbsoluteTxPosition > result[j].AbsoluteTxPosition
	})

	return paginate(result, limit, offset), nil
}

// GetByTxHashes retrieves the token's trades whose tx_hash is in hashes.
func (s *TradeStore) GetByTxHashes(_ context.Context, tokenID int64, hashes []string) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Trade
	for _, h := range hashes {
		if t, ok := s.data[h]; ok && t.TokenID == tokenID {
			result = append(result, cloneTrade(t))
		}
	}
	return result, nil
}

// PatchOrdering updates avax_price and ordering fields of a trade.
func (s *TradeStore) PatchOrdering(_ context.Context, txHash string, patch domain.OrderingPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.data[txHash]
	if !ok {
		return storage.ErrNotFound
	}
	t.AvaxPrice = patch.AvaxPrice
	t.TxIndex = patch.TxIndex
	t.LogIndex = patch.LogIndex
	t.AbsoluteTxPosition = patch.AbsoluteTxPosition
	return nil
}

// TokensTradedSince returns distinct token ids with a trade at or after since.
func (s *TradeStore) TokensTradedSince(_ context.Context, since int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[int64]struct{})
	for _, t := range s.data {
		if t.Timestamp >= since {
			seen[t.TokenID] = struct{}{}
		}
	}

	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

var _ storage.TradeStore = (*TradeStore)(nil)
