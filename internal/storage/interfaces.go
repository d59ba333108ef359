package storage

import (
	"context"
	"math/big"

	"arena-token-ledger/internal/domain"
)

// Totals holds base-unit sums of a token's successful trades by action.
type Totals struct {
	InitialBuy *big.Int
	Buy        *big.Int
	Sell       *big.Int
}

// NewTotals returns zeroed totals.
func NewTotals() Totals {
	return Totals{InitialBuy: new(big.Int), Buy: new(big.Int), Sell: new(big.Int)}
}

// TradeStore provides access to the trade ledger.
type TradeStore interface {
	// Insert adds a new trade. Returns ErrDuplicateKey if tx_hash exists.
	Insert(ctx context.Context, t *domain.Trade) error

	// GetAnchor returns the earliest successful "initial buy" of a token,
	// ordered by timestamp then absolute_tx_position. Returns ErrNotFound if none.
	GetAnchor(ctx context.Context, tokenID int64) (*domain.Trade, error)

	// SumByAction sums amounts of successful trades for a token by action.
	SumByAction(ctx context.Context, tokenID int64) (Totals, error)

	// GetByToken retrieves successful trades of a token, ordered by absolute_tx_position ASC.
	GetByToken(ctx context.Context, tokenID int64) ([]*domain.Trade, error)

	// GetByTokenTimeRange retrieves successful trades within [start, end] (inclusive, ms),
	// ordered by absolute_tx_position ASC.
	GetByTokenTimeRange(ctx context.Context, tokenID int64, start, end int64) ([]*domain.Trade, error)

	// ListHistory retrieves trades of any status, ordered by timestamp DESC.
	ListHistory(ctx context.Context, tokenID int64, limit, offset int) ([]*domain.Trade, error)

	// GetByTxHashes retrieves the token's trades whose tx_hash is in hashes.
	GetByTxHashes(ctx context.Context, tokenID int64, hashes []string) ([]*domain.Trade, error)

	// PatchOrdering updates avax_price and ordering fields of a trade.
	// Price fields are never touched. Returns ErrNotFound if tx_hash does not exist.
	PatchOrdering(ctx context.Context, txHash string, patch domain.OrderingPatch) error

	// TokensTradedSince returns distinct token ids with a trade at or after since (ms).
	TokensTradedSince(ctx context.Context, since int64) ([]int64, error)
}

// PendingTradeStore provides access to the temp ingestion queue.
type PendingTradeStore interface {
	// Insert enqueues a pending trade and returns its queue id.
	Insert(ctx context.Context, p *domain.PendingTrade) (int64, error)

	// ListOrdered returns all pending trades ordered by timestamp ASC, id ASC.
	ListOrdered(ctx context.Context) ([]*domain.PendingTrade, error)

	// Delete removes a pending trade. Deleting a missing id is not an error.
	Delete(ctx context.Context, id int64) error
}

// TokenStore provides access to token storage.
type TokenStore interface {
	// Insert adds a new token. Returns ErrDuplicateKey if internal_id exists.
	Insert(ctx context.Context, t *domain.Token) error

	// GetByInternalID retrieves a token. Returns ErrNotFound if not exists.
	GetByInternalID(ctx context.Context, internalID int64) (*domain.Token, error)

	// GetByContract retrieves a token by contract address (case-insensitive).
	GetByContract(ctx context.Context, contract string) (*domain.Token, error)

	// GetByPair retrieves a token by pair address (case-insensitive).
	GetByPair(ctx context.Context, pair string) (*domain.Token, error)

	// List returns tokens ordered by internal_id DESC.
	List(ctx context.Context, filter domain.TokenFilter) ([]*domain.Token, error)

	// ListRepairCandidates returns curve tokens (lp_deployed = false, contract set)
	// with afterID < internal_id <= toID, ordered by internal_id ASC.
	// toID <= 0 means no upper bound.
	ListRepairCandidates(ctx context.Context, afterID, toID int64, limit int) ([]*domain.Token, error)

	// MarkLPDeployed flips lp_deployed to true and sets the pair address.
	// A token that is already deployed is left unchanged.
	MarkLPDeployed(ctx context.Context, internalID int64, pair string) error

	// CountByCreator counts tokens created by an address.
	CountByCreator(ctx context.Context, creator string) (int, error)
}

// AvaxPriceStore provides access to the AVAX/USD price series.
type AvaxPriceStore interface {
	// Insert appends a price point.
	Insert(ctx context.Context, p *domain.AvaxPrice) error

	// Latest returns the most recently fetched point. Returns ErrNotFound if empty.
	Latest(ctx context.Context) (*domain.AvaxPrice, error)
}

// CurveAnchorStore persists the curve coefficient of each token.
type CurveAnchorStore interface {
	// Get returns the anchor of a token. Returns ErrNotFound if not pinned yet.
	Get(ctx context.Context, tokenID int64) (*domain.CurveAnchor, error)

	// Insert pins an anchor. Returns ErrDuplicateKey if the token already has one.
	Insert(ctx context.Context, a *domain.CurveAnchor) error
}

// RepairCheckpointStore persists repair job progress.
type RepairCheckpointStore interface {
	// Get returns the checkpoint of a job. Returns ErrNotFound if none saved.
	Get(ctx context.Context, jobID string) (*domain.RepairCheckpoint, error)

	// Save upserts the checkpoint of a job.
	Save(ctx context.Context, cp *domain.RepairCheckpoint) error
}

// CandleStore provides access to OHLC candles.
type CandleStore interface {
	// Upsert writes candles, replacing existing buckets with the same key.
	Upsert(ctx context.Context, candles []*domain.Candle) error

	// GetRange retrieves candles within [start, end] (inclusive, ms), ordered by bucket ASC.
	GetRange(ctx context.Context, tokenID, timeframe, start, end int64) ([]*domain.Candle, error)
}
