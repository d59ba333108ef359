package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"arena-token-ledger/internal/domain"
	"arena-token-ledger/internal/storage"
)

// PendingTradeStore implements storage.PendingTradeStore using PostgreSQL.
type PendingTradeStore struct {
	pool *Pool
}

// NewPendingTradeStore creates a new PendingTradeStore.
func NewPendingTradeStore(pool *Pool) *PendingTradeStore {
	return &PendingTradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PendingTradeStore = (*PendingTradeStore)(nil)

// Insert enqueues a pending trade and returns its queue id.
func (s *PendingTradeStore) Insert(ctx context.Context, p *domain.PendingTrade) (int64, error) {
	if p == nil || p.TxHash == "" {
		return 0, storage.ErrInvalidInput
	}

	query := `
		INSERT INTO pending_trades (
			token_id, tx_hash, tx_id, action, amount, transferred_avax, avax_price,
			from_address, referrer, status, block_number, tx_index, log_index, absolute_tx_position, timestamp
		) VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id
	`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		p.TokenID,
		p.TxHash,
		p.TxID,
		string(p.Action),
		bigIntText(p.Amount),
		p.TransferredAvax.String(),
		p.AvaxPrice.String(),
		p.FromAddress,
		p.Referrer,
		p.Status,
		p.BlockNumber,
		p.TxIndex,
		p.LogIndex,
		p.AbsoluteTxPosition,
		p.Timestamp,
	).Scan(&id)
	if err != nil {
		return 0, wrapErr("insert pending trade", err)
	}
	return id, nil
}

// ListOrdered returns all pending trades ordered by timestamp ASC, id ASC.
func (s *PendingTradeStore) ListOrdered(ctx context.Context) ([]*domain.PendingTrade, error) {
	query := `
		SELECT id, token_id, tx_hash, tx_id, action, amount::text, transferred_avax::text, avax_price::text,
			from_address, referrer, status, block_number, tx_index, log_index, absolute_tx_position, timestamp
		FROM pending_trades
		ORDER BY timestamp ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, wrapErr("list pending trades", err)
	}
	defer rows.Close()

	return scanPendingTrades(rows)
}

// Delete removes a pending trade. Deleting a missing id is not an error.
func (s *PendingTradeStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM pending_trades WHERE id = $1`, id); err != nil {
		return wrapErr("delete pending trade", err)
	}
	return nil
}

func scanPendingTrades(rows pgx.Rows) ([]*domain.PendingTrade, error) {
	var pending []*domain.PendingTrade

	for rows.Next() {
		var (
			p                              domain.PendingTrade
			action                         string
			amount, transferred, avaxPrice string
		)

		err := rows.Scan(
			&p.ID, &p.TokenID, &p.TxHash, &p.TxID, &action,
			&amount, &transferred, &avaxPrice,
			&p.FromAddress, &p.Referrer, &p.Status,
			&p.BlockNumber, &p.TxIndex, &p.LogIndex, &p.AbsoluteTxPosition, &p.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan pending trade row: %w", err)
		}

		p.Action = domain.Action(action)
		if p.Amount, err = parseBigInt("amount", amount); err != nil {
			return nil, err
		}
		if err := parseDecimals(
			decimalField{"transferred_avax", transferred, &p.TransferredAvax},
			decimalField{"avax_price", avaxPrice, &p.AvaxPrice},
		); err != nil {
			return nil, err
		}

		pending = append(pending, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate pending trade rows", err)
	}

	return pending, nil
}
