// Package repair converges the trade ledger with the external trade index.
package repair

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"arena-token-ledger/internal/curve"
	"arena-token-ledger/internal/domain"
	"arena-token-ledger/internal/lock"
	"arena-token-ledger/internal/observability"
	"arena-token-ledger/internal/storage"
)

// LockKey is the job lock name.
const LockKey = "repair"

// Default run values.
const (
	DefaultBatchSize  = 50
	DefaultTokenDelay = 300 * time.Millisecond
	DefaultBatchDelay = 2 * time.Second
	DefaultJobID      = "default"
	DefaultLockTTL    = 30 * time.Minute
)

// ErrAlreadyRunning is returned when another run holds the job lock.
var ErrAlreadyRunning = errors.New("repair: run already in progress")

// Job repairs tokens whose ledger diverged from the trade index.
type Job struct {
	tokens      storage.TokenStore
	trades      storage.TradeStore
	checkpoints storage.RepairCheckpointStore
	engine      *curve.Engine
	index       TradeIndex
	locker      lock.Locker
	lockTTL     time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// JobOptions configures a Job.
type JobOptions struct {
	Tokens      storage.TokenStore
	Trades      storage.TradeStore
	Checkpoints storage.RepairCheckpointStore
	Engine      *curve.Engine
	Index       TradeIndex
	Locker      lock.Locker   // Default: process-local locker
	LockTTL     time.Duration // Default: DefaultLockTTL
	Logger      *zap.Logger
	Now         func() time.Time
}

// NewJob creates a repair job.
func NewJob(opts JobOptions) *Job {
	if opts.Locker == nil {
		opts.Locker = lock.NewMemoryLocker()
	}
	if opts.LockTTL == 0 {
		opts.LockTTL = DefaultLockTTL
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Job{
		tokens:      opts.Tokens,
		trades:      opts.Trades,
		checkpoints: opts.Checkpoints,
		engine:      opts.Engine,
		index:       opts.Index,
		locker:      opts.Locker,
		lockTTL:     opts.LockTTL,
		logger:      opts.Logger,
		now:         opts.Now,
	}
}

// TokenResult contains per-token repair statistics.
type TokenResult struct {
	TokenID  int64
	Fetched  int
	Inserted int
	Patched  int
	Existing int // present under another token or inserted concurrently
	Skipped  int // zero amount or unpriceable
}

// RepairToken inserts the token's missing trades and patches drifted ordering
// fields of existing ones. Running it twice on the same index data writes nothing
// the second time.
func (j *Job) RepairToken(ctx context.Context, token *domain.Token) (*TokenResult, error) {
	res := &TokenResult{TokenID: token.InternalID}
	if token.ContractAddress == nil {
		return res, nil
	}

	rows, err := j.index.TokenTrades(ctx, *token.ContractAddress)
	if err != nil {
		return res, fmt.Errorf("fetch index trades: %w", err)
	}
	res.Fetched = len(rows)
	if len(rows) == 0 {
		return res, nil
	}

	hashes := make([]string, len(rows))
	for i, r := range rows {
		hashes[i] = r.TransactionHash
	}
	stored, err := j.trades.GetByTxHashes(ctx, token.InternalID, hashes)
	if err != nil {
		return res, fmt.Errorf("get stored trades: %w", err)
	}
	byHash := make(map[string]*domain.Trade, len(stored))
	for _, t := range stored {
		byHash[t.TxHash] = t
	}

	var missing []int
	for i, row := range rows {
		existing, ok := byHash[row.TransactionHash]
		if !ok {
			missing = append(missing, i)
			continue
		}
		patched, err := j.patch(ctx, existing, row)
		if err != nil {
			return res, err
		}
		if patched {
			res.Patched++
		}
	}

	if len(missing) > 0 {
		if err := j.insertMissing(ctx, token.InternalID, rows, missing, res); err != nil {
			return res, err
		}
	}

	observability.RecordRepairRows("inserted", res.Inserted)
	observability.RecordRepairRows("patched", res.Patched)
	observability.RecordRepairRows("skipped", res.Skipped)
	return res, nil
}

// insertMissing prices and inserts the rows at the given indexes, oldest first.
func (j *Job) insertMissing(ctx context.Context, tokenID int64, rows []IndexTrade, missing []int, res *TokenResult) error {
	ledger, err := j.trades.GetByToken(ctx, tokenID)
	if err != nil {
		return fmt.Errorf("get ledger trades: %w", err)
	}

	anchor, err := j.trades.GetAnchor(ctx, tokenID)
	if errors.Is(err, storage.ErrNotFound) {
		anchor = nil
	} else if err != nil {
		return fmt.Errorf("get anchor: %w", err)
	}

	for _, i := range missing {
		row := rows[i]
		if err := ctx.Err(); err != nil {
			return err
		}

		trade, err := mapIndexTrade(tokenID, row, i == 0 && anchor == nil)
		if err != nil {
			j.logger.Warn("skip index trade",
				zap.Int64("token_id", tokenID),
				zap.String("tx_hash", row.TransactionHash),
				zap.Error(err),
			)
			res.Skipped++
			continue
		}

		if err := j.price(ctx, trade, anchor, ledger); err != nil {
			if errors.Is(err, curve.ErrUnavailable) || errors.Is(err, curve.ErrZeroAmount) {
				res.Skipped++
				continue
			}
			if errors.Is(err, curve.ErrNegativeSupply) {
				j.logger.Warn("index trade would make supply negative, not inserted",
					zap.Int64("token_id", trade.TokenID),
					zap.String("tx_hash", trade.TxHash),
					zap.Error(err),
				)
				res.Skipped++
				continue
			}
			return fmt.Errorf("price %s: %w", trade.TxHash, err)
		}

		if err := j.trades.Insert(ctx, trade); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				res.Existing++
				continue
			}
			return fmt.Errorf("insert %s: %w", trade.TxHash, err)
		}
		res.Inserted++

		ledger = insertByPosition(ledger, trade)
		if anchor == nil && trade.Action == domain.ActionInitialBuy {
			anchor = trade
		}
	}
	return nil
}

// patch corrects the ordering fields of a stored trade. It reports whether a write happened.
func (j *Job) patch(ctx context.Context, existing *domain.Trade, row IndexTrade) (bool, error) {
	p := domain.OrderingPatch{
		AvaxPrice:          row.AvaxPrice,
		TxIndex:            row.TransactionIdx,
		LogIndex:           row.LogIdx,
		AbsoluteTxPosition: row.AbsoluteOrder,
	}
	if existing.AvaxPrice.Equal(p.AvaxPrice) &&
		existing.TxIndex == p.TxIndex &&
		existing.LogIndex == p.LogIndex &&
		existing.AbsoluteTxPosition == p.AbsoluteTxPosition {
		return false, nil
	}

	if err := j.trades.PatchOrdering(ctx, existing.TxHash, p); err != nil {
		return false, fmt.Errorf("patch %s: %w", existing.TxHash, err)
	}
	return true, nil
}

// price derives the trade's prices against the ledger as it stood at the
// trade's position. An initial buy without an anchor gets the genesis price.
func (j *Job) price(ctx context.Context, t *domain.Trade, anchor *domain.Trade, ledger []*domain.Trade) error {
	in := curve.Input{
		Action:          t.Action,
		Amount:          t.Amount,
		TransferredAvax: t.TransferredAvax,
		AvaxPrice:       t.AvaxPrice,
	}

	var prices curve.Prices
	var err error
	if anchor == nil {
		if t.Action != domain.ActionInitialBuy {
			return curve.ErrUnavailable
		}
		prices, err = curve.GenesisPrices(in)
	} else {
		var k decimal.Decimal
		k, err = j.engine.Coefficient(ctx, t.TokenID, anchor)
		if err != nil {
			return err
		}
		prices, err = curve.Derive(in, k, totalsBefore(ledger, t.AbsoluteTxPosition))
	}
	if err != nil {
		return err
	}

	t.PriceEth = prices.PriceEth
	t.PriceUsd = prices.PriceUsd
	t.PriceAfterEth = prices.PriceAfterEth
	t.PriceAfterUsd = prices.PriceAfterUsd
	return nil
}

// mapIndexTrade converts an index row to a ledger trade without prices.
func mapIndexTrade(tokenID int64, row IndexTrade, genesis bool) (*domain.Trade, error) {
	if row.TransactionHash == "" {
		return nil, errors.New("missing transaction hash")
	}

	action := domain.ActionBuy
	if row.TokenEth.IsNegative() {
		action = domain.ActionSell
	} else if genesis {
		action = domain.ActionInitialBuy
	}

	amount, err := curve.ToBaseUnits(row.TokenEth.Abs().Truncate(curve.Decimals))
	if err != nil {
		return nil, err
	}
	if amount.Sign() == 0 {
		return nil, curve.ErrZeroAmount
	}

	return &domain.Trade{
		TokenID:            tokenID,
		TxHash:             row.TransactionHash,
		TxID:               domain.TxID(row.BlockNumber, row.TransactionIdx, row.LogIdx),
		Action:             action,
		Amount:             amount,
		TransferredAvax:    row.UserEth.Abs(),
		AvaxPrice:          row.AvaxPrice,
		FromAddress:        strings.ToLower(row.UserAddress),
		Status:             domain.StatusSuccess,
		BlockNumber:        row.BlockNumber,
		TxIndex:            row.TransactionIdx,
		LogIndex:           row.LogIdx,
		AbsoluteTxPosition: row.AbsoluteOrder,
		Timestamp:          row.CreateTime * 1000,
	}, nil
}

// totalsBefore sums successful ledger trades positioned before pos.
func totalsBefore(ledger []*domain.Trade, pos int64) storage.Totals {
	totals := storage.NewTotals()
	for _, t := range ledger {
		if t.AbsoluteTxPosition >= pos {
			break
		}
		if t.Status != domain.StatusSuccess || t.Amount == nil {
			continue
		}
		var dst *big.Int
		switch t.Action {
		case domain.ActionInitialBuy:
			dst = totals.InitialBuy
		case domain.ActionBuy:
			dst = totals.Buy
		case domain.ActionSell:
			dst = totals.Sell
		default:
			continue
		}
		dst.Add(dst, t.Amount)
	}
	return totals
}

func insertByPosition(ledger []*domain.Trade, t *domain.Trade) []*domain.Trade {
	i := sort.Search(len(ledger), func(i int) bool {
		return ledger[i].AbsoluteTxPosition > t.AbsoluteTxPosition
	})
	ledger = append(ledger, nil)
	copy(ledger[i+1:], ledger[i:])
	ledger[i] = t
	return ledger
}
