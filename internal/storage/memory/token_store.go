package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"arena-token-ledger/internal/domain"
	"arena-token-ledger/internal/storage"
)

// TokenStore is an in-memory implementation of storage.TokenStore.
type TokenStore struct {
	mu   sync.RWMutex
	data map[int64]*domain.Token // keyed by internal_id
}

// NewTokenStore creates a new in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		data: make(map[int64]*domain.Token),
	}
}

func cloneToken(t *domain.Token) *domain.Token {
	c := *t
	if t.ContractAddress != nil {
		v := *t.ContractAddress
		c.ContractAddress = &v
	}
	if t.PairAddress != nil {
		v := *t.PairAddress
		c.PairAddress = &v
	}
	return &c
}

// Insert adds a new token. Returns ErrDuplicateKey if internal_id exists.
func (s *TokenStore) Insert(_ context.Context, t *domain.Token) error {
	if t == nil || t.InternalID <= 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.InternalID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[t.InternalID] = cloneToken(t)
	return nil
}

// GetByInternalID retrieves a token. Returns ErrNotFound if not exists.
func (s *TokenStore) GetByInternalID(_ context.Context, internalID int64) (*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.data[internalID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneToken(t), nil
}

// GetByContract retrieves a token by contract address.
func (s *TokenStore) GetByContract(_ context.Context, contract string) (*domain.Token, error) {
	return s.findOne(func(t *domain.Token) bool {
		return t.ContractAddress != nil && strings.EqualFold(*t.ContractAddress, contract)
	})
}

// GetByPair retrieves a token by pair address.
func (s *TokenStore) GetByPair(_ context.Context, pair string) (*domain.Token, error) {
	return s.findOne(func(t *domain.Token) bool {
		return t.PairAddress != nil && strings.EqualFold(*t.PairAddress, pair)
	})
}

func (s *TokenStore) findOne(match func(*domain.Token) bool) (*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.data {
		if match(t) {
			return cloneToken(t), nil
		}
	}
	return nil, storage.ErrNotFound
}

// List returns tokens ordered by internal_id DESC.
func (s *TokenStore) List(_ context.Context, filter domain.TokenFilter) ([]*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	var result []*domain.Token
	for _, t := range s.data {
		if search != "" && !tokenMatches(t, search) {
			continue
		}
		result = append(result, cloneToken(t))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].InternalID > result[j].InternalID
	})
	return paginate(result, filter.Limit, filter.Offset), nil
}

func tokenMatches(t *domain.Token, search string) bool {
	fields := []string{t.Name, t.Symbol}
	if t.ContractAddress != nil {
		fields = append(fields, *t.ContractAddress)
	}
	if t.PairAddress != nil {
		fields = append(fields, *t.PairAddress)
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), search) {
			return true
		}
	}
	return false
}

// ListRepairCandidates returns curve tokens with afterID < internal_id <= toID.
func (s *TokenStore) ListRepairCandidates(_ context.Context, afterID, toID int64, limit int) ([]*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Token
	for _, t := range s.data {
		if t.LPDeployed || t.ContractAddress == nil {
			continue
		}
		if t.InternalID <= afterID || (toID > 0 && t.InternalID > toID) {
			continue
		}
		result = append(result, cloneToken(t))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].InternalID < result[j].InternalID
	})
	return paginate(result, limit, 0), nil
}

// MarkLPDeployed flips lp_deployed to true and sets the pair address.
func (s *TokenStore) MarkLPDeployed(_ context.Context, internalID int64, pair string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.data[internalID]
	if !ok {
		return storage.ErrNotFound
	}
	if t.LPDeployed {
		return nil
	}
	p := strings.ToLower(pair)
	t.LPDeployed = true
	t.PairAddress = &p
	return nil
}

// CountByCreator counts tokens created by an address.
func (s *TokenStore) CountByCreator(_ context.Context, creator string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, t := range s.data {
		if strings.EqualFold(t.CreatorAddress, creator) {
			n++
		}
	}
	return n, nil
}

var _ storage.TokenStore = (*TokenStore)(nil)
