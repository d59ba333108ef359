package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"arena-token-ledger/internal/domain"
	"arena-token-ledger/internal/storage"
)

// CandleStore is an in-memory implementation of storage.CandleStore.
type CandleStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Candle // keyed by token|timeframe|bucket
}

// NewCandleStore creates a new in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{
		data: make(map[string]*domain.Candle),
	}
}

func candleKey(tokenID, timeframe, bucket int64) string {
	return fmt.Sprintf("%d|%d|%d", tokenID, timeframe, bucket)
}

// Upsert writes candles, replacing existing buckets.
func (s *CandleStore) Upsert(_ context.Context, candles []*domain.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range candles {
		if c == nil || c.Timeframe <= 0 {
			return storage.ErrInvalidInput
		}
	}
	for _, c := range candles {
		copy := *c
		s.data[candleKey(c.TokenID, c.Timeframe, c.BucketStart)] = &copy
	}
	return nil
}

// GetRange retrieves candles within [start, end] (inclusive), ordered by bucket ASC.
func (s *CandleStore) GetRange(_ context.Context, tokenID, timeframe, start, end int64) ([]*domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Candle
	for _, c := range s.data {
		if c.TokenID == tokenID && c.Timeframe == timeframe && c.BucketStart >= start && c.BucketStart <= end {
			copy := *c
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].BucketStart < result[j].BucketStart
	})
	return result, nil
}

var _ storage.CandleStore = (*CandleStore)(nil)
