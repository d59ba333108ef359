package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"arena-token-ledger/internal/domain"
	"arena-token-ledger/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

const tradeColumns = `
	id, token_id, tx_hash, tx_id, action, amount::text, transferred_avax::text, avax_price::text,
	from_address, referrer, status, block_number, tx_index, log_index, absolute_tx_position, timestamp,
	price_eth::text, price_usd::text, price_after_eth::text, price_after_usd::text
`

// Insert adds a new trade. Returns ErrDuplicateKey if tx_hash exists.
func (s *TradeStore) Insert(ctx context.Context, t *domain.Trade) error {
	if t == nil || t.TxHash == "" || t.Amount == nil {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trades (
			token_id, tx_hash, tx_id, action, amount, transferred_avax, avax_price,
			from_address, referrer, status, block_number, tx_index, log_index, absolute_tx_position, timestamp,
			price_eth, price_usd, price_after_eth, price_after_usd
		) VALUES (
			$1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric,
			$8, $9, $10, $11, $12, $13, $14, $15,
			$16::numeric, $17::numeric, $18::numeric, $19::numeric
		)
		RETURNING id
	`

	err := s.pool.QueryRow(ctx, query,
		t.TokenID,
		t.TxHash,
		t.TxID,
		string(t.Action),
		bigIntText(t.Amount),
		t.TransferredAvax.String(),
		t.AvaxPrice.String(),
		t.FromAddress,
		t.Referrer,
		t.Status,
		t.BlockNumber,
		t.TxIndex,
		t.LogIndex,
		t.AbsoluteTxPosition,
		t.Timestamp,
		t.PriceEth.String(),
		t.PriceUsd.String(),
		t.PriceAfterEth.String(),
		t.PriceAfterUsd.String(),
	).Scan(&t.ID)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return wrapErr("insert trade", err)
	}
	return nil
}

// GetAnchor returns the earliest successful initial buy of a token.
func (s *TradeStore) GetAnchor(ctx context.Context, tokenID int64) (*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + `
		FROM trades
		WHERE token_id = $1 AND status = $2 AND action = $3
		ORDER BY timestamp ASC, absolute_tx_position ASC
		LIMIT 1
	`

	rows, err := s.pool.Query(ctx, query, tokenID, domain.StatusSuccess, string(domain.ActionInitialBuy))
	if err != nil {
		return nil, wrapErr("get anchor", err)
	}
	defer rows.Close()

	trades, err := scanTrades(rows)
	if err != nil {
		return nil, err
	}
	if len(trades) == 0 {
		return nil, storage.ErrNotFound
	}
	return trades[0], nil
}

// SumByAction sums amounts of successful trades for a token by action.
func (s *TradeStore) SumByAction(ctx context.Context, tokenID int64) (storage.Totals, error) {
	query := `
		SELECT action, COALESCE(SUM(amount), 0)::text
		FROM trades
		WHERE token_id = $1 AND status = $2
		GROUP BY action
	`

	rows, err := s.pool.Query(ctx, query, tokenID, domain.StatusSuccess)
	if err != nil {
		return storage.Totals{}, wrapErr("sum trades by action", err)
	}
	defer rows.Close()

	totals := storage.NewTotals()
	for rows.Next() {
		var action, sum string
		if err := rows.Scan(&action, &sum); err != nil {
			return storage.Totals{}, fmt.Errorf("scan trade sum row: %w", err)
		}
		v, err := parseBigInt("amount sum", sum)
		if err != nil {
			return storage.Totals{}, err
		}
		switch domain.Action(action) {
		case domain.ActionInitialBuy:
			totals.InitialBuy.Set(v)
		case domain.ActionBuy:
			totals.Buy.Set(v)
		case domain.ActionSell:
			totals.Sell.Set(v)
		}
	}
	if err := rows.Err(); err != nil {
		return storage.Totals{}, wrapErr("iterate trade sum rows", err)
	}
	return totals, nil
}

// GetByToken retrieves successful trades of a token, ordered by absolute_tx_position ASC.
func (s *TradeStore) GetByToken(ctx context.Context, tokenID int64) ([]*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + `
		FROM trades
		WHERE token_id = $1 AND status = $2
		ORDER BY absolute_tx_position ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, tokenID, domain.StatusSuccess)
	if err != nil {
		return nil, wrapErr("get trades by token", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// GetByTokenTimeRange retrieves successful trades within [start, end] (inclusive).
func (s *TradeStore) GetByTokenTimeRange(ctx context.Context, tokenID int64, start, end int64) ([]*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + `
		FROM trades
		WHERE token_id = $1 AND status = $2 AND timestamp >= $3 AND timestamp <= $4
		ORDER BY absolute_tx_position ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, tokenID, domain.StatusSuccess, start, end)
	if err != nil {
		return nil, wrapErr("get trades by time range", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// ListHistory retrieves trades of any status, ordered by timestamp DESC.
func (s *TradeStore) ListHistory(ctx context.Context, tokenID int64, limit, offset int) ([]*domain.Trade, error) {
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + tradeColumns + `
		FROM trades
		WHERE token_id = $1
		ORDER BY timestamp DESC, absolute_tx_position DESC
		LIMIT $2 OFFSET $3
	`

	// LIMIT NULL means no limit.
	var lim *int
	if limit > 0 {
		lim = &limit
	}

	rows, err := s.pool.Query(ctx, query, tokenID, lim, offset)
	if err != nil {
		return nil, wrapErr("list trade history", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// GetByTxHashes retrieves the token's trades whose tx_hash is in hashes.
func (s *TradeStore) GetByTxHashes(ctx context.Context, tokenID int64, hashes []string) ([]*domain.Trade, error) {
	if len(hashes) == 0 {
		return nil, nil
	}
	query := `SELECT ` + tradeColumns + `
		FROM trades
		WHERE token_id = $1 AND tx_hash = ANY($2)
	`

	rows, err := s.pool.Query(ctx, query, tokenID, hashes)
	if err != nil {
		return nil, wrapErr("get trades by tx hashes", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// PatchOrdering updates avax_price and ordering fields of a trade.
func (s *TradeStore) PatchOrdering(ctx context.Context, txHash string, patch domain.OrderingPatch) error {
	query := `
		UPDATE trades
		SET avax_price = $2::numeric, tx_index = $3, log_index = $4, absolute_tx_position = $5
		WHERE tx_hash = $1
	`

	tag, err := s.pool.Exec(ctx, query,
		txHash, patch.AvaxPrice.String(), patch.TxIndex, patch.LogIndex, patch.AbsoluteTxPosition,
	)
	if err != nil {
		return wrapErr("patch trade ordering", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// TokensTradedSince returns distinct token ids with a trade at or after since.
func (s *TradeStore) TokensTradedSince(ctx context.Context, since int64) ([]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT token_id FROM trades WHERE timestamp >= $1 ORDER BY token_id`, since)
	if err != nil {
		return nil, wrapErr("list traded tokens", err)
	}
	defer rows.Close()

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, wrapErr("collect traded tokens", err)
	}
	return ids, nil
}

// scanTrades scans multiple rows into a slice of Trade.
func scanTrades(rows pgx.Rows) ([]*domain.Trade, error) {
	var trades []*domain.Trade

	for rows.Next() {
		var (
			t                                             domain.Trade
			action                                        string
			amount, transferred, avaxPrice                string
			priceEth, priceUsd, priceAfter, priceAfterUsd string
		)

		err := rows.Scan(
			&t.ID, &t.TokenID, &t.TxHash, &t.TxID, &action,
			&amount, &transferred, &avaxPrice,
			&t.FromAddress, &t.Referrer, &t.Status,
			&t.BlockNumber, &t.TxIndex, &t.LogIndex, &t.AbsoluteTxPosition, &t.Timestamp,
			&priceEth, &priceUsd, &priceAfter, &priceAfterUsd,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}

		t.Action = domain.Action(action)
		if t.Amount, err = parseBigInt("amount", amount); err != nil {
			return nil, err
		}
		if err := parseDecimals(
			decimalField{"transferred_avax", transferred, &t.TransferredAvax},
			decimalField{"avax_price", avaxPrice, &t.AvaxPrice},
			decimalField{"price_eth", priceEth, &t.PriceEth},
			decimalField{"price_usd", priceUsd, &t.PriceUsd},
			decimalField{"price_after_eth", priceAfter, &t.PriceAfterEth},
			decimalField{"price_after_usd", priceAfterUsd, &t.PriceAfterUsd},
		); err != nil {
			return nil, err
		}

		trades = append(trades, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate trade rows", err)
	}

	return trades, nil
}
