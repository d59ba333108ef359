package postgres

import (
	"context"

	"arena-token-ledger/internal/domain"
	"arena-token-ledger/internal/storage"
)

// CurveAnchorStore implements storage.CurveAnchorStore using PostgreSQL.
// Rows are insert-only: a pinned coefficient is never updated.
type CurveAnchorStore struct {
	pool *Pool
}

// NewCurveAnchorStore creates a new CurveAnchorStore.
func NewCurveAnchorStore(pool *Pool) *CurveAnchorStore {
	return &CurveAnchorStore{pool: pool}
}

var _ storage.CurveAnchorStore = (*CurveAnchorStore)(nil)

// Get returns the anchor of a token.
func (s *CurveAnchorStore) Get(ctx context.Context, tokenID int64) (*domain.CurveAnchor, error) {
	query := `
		SELECT token_id, anchor_tx_hash, anchor_timestamp, k::text, created_at
		FROM curve_anchors
		WHERE token_id = $1
	`

	var (
		a domain.CurveAnchor
		k string
	)
	err := s.pool.QueryRow(ctx, query, tokenID).Scan(&a.TokenID, &a.AnchorTxHash, &a.AnchorTimestamp, &k, &a.CreatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, wrapErr("get curve anchor", err)
	}
	if a.K, err = parseDecimal("k", k); err != nil {
		return nil, err
	}
	return &a, nil
}

// Insert pins an anchor. Returns ErrDuplicateKey if the token already has one.
func (s *CurveAnchorStore) Insert(ctx context.Context, a *domain.CurveAnchor) error {
	if a == nil || a.AnchorTxHash == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO curve_anchors (token_id, anchor_tx_hash, anchor_timestamp, k, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5)
	`

	_, err := s.pool.Exec(ctx, query, a.TokenID, a.AnchorTxHash, a.AnchorTimestamp, a.K.String(), a.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return wrapErr("insert curve anchor", err)
	}
	return nil
}
