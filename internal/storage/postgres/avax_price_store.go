package postgres

import (
	"context"

	"arena-token-ledger/internal/domain"
	"arena-token-ledger/internal/storage"
)

// AvaxPriceStore implements storage.AvaxPriceStore using PostgreSQL.
type AvaxPriceStore struct {
	pool *Pool
}

// NewAvaxPriceStore creates a new AvaxPriceStore.
func NewAvaxPriceStore(pool *Pool) *AvaxPriceStore {
	return &AvaxPriceStore{pool: pool}
}

var _ storage.AvaxPriceStore = (*AvaxPriceStore)(nil)

// Insert appends a price point.
func (s *AvaxPriceStore) Insert(ctx context.Context, p *domain.AvaxPrice) error {
	if p == nil || p.FetchedAt <= 0 || !p.Price.IsPositive() {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO avax_prices (price, source, fetched_at) VALUES ($1::numeric, $2, $3)`,
		p.Price.String(), p.Source, p.FetchedAt,
	)
	if err != nil {
		return wrapErr("insert avax price", err)
	}
	return nil
}

// Latest returns the most recently fetched point.
func (s *AvaxPriceStore) Latest(ctx context.Context) (*domain.AvaxPrice, error) {
	query := `
		SELECT price::text, source, fetched_at
		FROM avax_prices
		ORDER BY fetched_at DESC, id DESC
		LIMIT 1
	`

	var (
		p     domain.AvaxPrice
		price string
	)
	err := s.pool.QueryRow(ctx, query).Scan(&price, &p.Source, &p.FetchedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, wrapErr("get latest avax price", err)
	}
	if p.Price, err = parseDecimal("price", price); err != nil {
		return nil, err
	}
	return &p, nil
}
