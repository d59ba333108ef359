package curve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"arena-token-ledger/internal/domain"
	"arena-token-ledger/internal/observability"
	"arena-token-ledger/internal/storage"
)

// EngineOptions configures an Engine.
type EngineOptions struct {
	Trades  storage.TradeStore
	Anchors storage.CurveAnchorStore
	Logger  *zap.Logger
	Now     func() time.Time
}

// Engine prices trades against the ledger.
// The first anchor used for a token is pinned in the anchor store, so k never
// changes afterward.
type Engine struct {
	trades  storage.TradeStore
	anchors storage.CurveAnchorStore
	logger  *zap.Logger
	now     func() time.Time
}

// NewEngine creates a ledger-backed pricing engine.
func NewEngine(opts EngineOptions) *Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		trades:  opts.Trades,
		anchors: opts.Anchors,
		logger:  opts.Logger,
		now:     opts.Now,
	}
}

// Price derives the price fields of a trade for a token.
// Returns ErrUnavailable when anchor is nil.
func (e *Engine) Price(ctx context.Context, tokenID int64, in Input, anchor *domain.Trade) (Prices, error) {
	if anchor == nil {
		return Prices{}, ErrUnavailable
	}

	k, err := e.Coefficient(ctx, tokenID, anchor)
	if err != nil {
		return Prices{}, err
	}

	totals, err := e.trades.SumByAction(ctx, tokenID)
	if err != nil {
		return Prices{}, fmt.Errorf("sum trades for token %d: %w", tokenID, err)
	}

	return Derive(in, k, totals)
}

// Coefficient returns the pinned k of a token, pinning it from anchor on first use.
// An anchor earlier than the pinned one is reported as a data-quality alert and
// the pinned k is kept.
func (e *Engine) Coefficient(ctx context.Context, tokenID int64, anchor *domain.Trade) (decimal.Decimal, error) {
	pinned, err := e.anchors.Get(ctx, tokenID)
	switch {
	case err == nil:
		e.checkConflict(pinned, anchor)
		return pinned.K, nil
	case !errors.Is(err, storage.ErrNotFound):
		return decimal.Zero, fmt.Errorf("get curve anchor for token %d: %w", tokenID, err)
	}

	k, err := Coefficient(anchor)
	if err != nil {
		return decimal.Zero, err
	}

	err = e.anchors.Insert(ctx, &domain.CurveAnchor{
		TokenID:         tokenID,
		AnchorTxHash:    anchor.TxHash,
		AnchorTimestamp: anchor.Timestamp,
		K:               k,
		CreatedAt:       e.now().UnixMilli(),
	})
	if errors.Is(err, storage.ErrDuplicateKey) {
		// Pinned concurrently; use the stored value.
		pinned, err = e.anchors.Get(ctx, tokenID)
		if err != nil {
			return decimal.Zero, fmt.Errorf("reload curve anchor for token %d: %w", tokenID, err)
		}
		e.checkConflict(pinned, anchor)
		return pinned.K, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("pin curve anchor for token %d: %w", tokenID, err)
	}

	return k, nil
}

func (e *Engine) checkConflict(pinned *domain.CurveAnchor, anchor *domain.Trade) {
	if pinned.AnchorTxHash == anchor.TxHash || anchor.Timestamp >= pinned.AnchorTimestamp {
		return
	}
	observability.RecordAnchorConflict()
	e.logger.Warn("earlier anchor found after curve was pinned",
		zap.Int64("token_id", pinned.TokenID),
		zap.String("pinned_tx_hash", pinned.AnchorTxHash),
		zap.String("found_tx_hash", anchor.TxHash),
		zap.Int64("pinned_timestamp", pinned.AnchorTimestamp),
		zap.Int64("found_timestamp", anchor.Timestamp),
	)
}
