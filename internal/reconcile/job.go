// Package reconcile promotes trades from the temp queue into the ledger once
// their token's anchor exists.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"arena-token-ledger/internal/curve"
	"arena-token-ledger/internal/domain"
	"arena-token-ledger/internal/lock"
	"arena-token-ledger/internal/observability"
	"arena-token-ledger/internal/storage"
)

// LockKey is the job lock name.
const LockKey = "reconcile"

// ErrAlreadyRunning is returned when another run holds the job lock.
var ErrAlreadyRunning = errors.New("reconcile: run already in progress")

// Publisher receives each promoted trade.
type Publisher interface {
	Publish(t *domain.Trade)
}

// Job drains the temp queue into the trade ledger.
type Job struct {
	pending   storage.PendingTradeStore
	trades    storage.TradeStore
	engine    *curve.Engine
	locker    lock.Locker
	publisher Publisher
	lockTTL   time.Duration
	logger    *zap.Logger
}

// Options contains configuration for creating a Job.
type Options struct {
	Pending   storage.PendingTradeStore
	Trades    storage.TradeStore
	Engine    *curve.Engine
	Locker    lock.Locker // Default: process-local locker
	Publisher Publisher   // optional
	LockTTL   time.Duration
	Logger    *zap.Logger
}

// NewJob creates a reconciliation job.
func NewJob(opts Options) *Job {
	lockTTL := opts.LockTTL
	if lockTTL == 0 {
		lockTTL = time.Minute
	}

	locker := opts.Locker
	if locker == nil {
		locker = lock.NewMemoryLocker()
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Job{
		pending:   opts.Pending,
		trades:    opts.Trades,
		engine:    opts.Engine,
		locker:    locker,
		publisher: opts.Publisher,
		lockTTL:   lockTTL,
		logger:    logger,
	}
}

// Result contains statistics from one run.
type Result struct {
	Scanned    int
	Promoted   int
	Duplicates int // already in the ledger, temp row removed
	Skipped    int // no anchor yet
	Failed     int
	Duration   time.Duration
}

// rowOutcome is the terminal state of one pending row within a run.
type rowOutcome string

const (
	outcomePromoted  rowOutcome = "promoted"
	outcomeDuplicate rowOutcome = "duplicate"
	outcomeNoAnchor  rowOutcome = "no_anchor"
	outcomeFailed    rowOutcome = "failed"
)

// RunOnce processes the whole temp queue oldest first.
// It returns ErrAlreadyRunning if another run holds the lock, and aborts with
// an error wrapping storage.ErrUnavailable when the database is unreachable.
func (j *Job) RunOnce(ctx context.Context) (*Result, error) {
	release, err := j.locker.TryLock(ctx, LockKey, j.lockTTL)
	if errors.Is(err, lock.ErrLocked) {
		return nil, ErrAlreadyRunning
	}
	if err != nil {
		return nil, fmt.Errorf("acquire reconcile lock: %w", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			j.logger.Warn("release reconcile lock", zap.Error(err))
		}
	}()

	start := time.Now()
	result := &Result{}

	rows, err := j.pending.ListOrdered(ctx)
	if err != nil {
		observability.RecordReconcileRun("error", time.Since(start).Seconds(), 0, start.Unix())
		return result, fmt.Errorf("list pending trades: %w", err)
	}
	result.Scanned = len(rows)

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		outcome, err := j.promote(ctx, row)
		observability.RecordReconcileRow(string(outcome))

		switch outcome {
		case outcomePromoted:
			result.Promoted++
		case outcomeDuplicate:
			result.Duplicates++
		case outcomeNoAnchor:
			result.Skipped++
		case outcomeFailed:
			result.Failed++
			if errors.Is(err, storage.ErrUnavailable) {
				result.Duration = time.Since(start)
				observability.RecordReconcileRun("aborted", result.Duration.Seconds(), len(rows), time.Now().Unix())
				return result, fmt.Errorf("reconcile aborted at pending row %d: %w", row.ID, err)
			}
			level := zap.ErrorLevel
			if errors.Is(err, curve.ErrZeroAmount) || errors.Is(err, curve.ErrNegativeSupply) {
				level = zap.WarnLevel
			}
			j.logger.Log(level, "pending trade not promoted",
				zap.Int64("pending_id", row.ID),
				zap.Int64("token_id", row.TokenID),
				zap.String("tx_hash", row.TxHash),
				zap.Error(err),
			)
		}
	}

	result.Duration = time.Since(start)
	observability.RecordReconcileRun("ok", result.Duration.Seconds(), len(rows), time.Now().Unix())

	if result.Promoted > 0 || result.Failed > 0 {
		j.logger.Info("reconcile run complete",
			zap.Int("scanned", result.Scanned),
			zap.Int("promoted", result.Promoted),
			zap.Int("duplicates", result.Duplicates),
			zap.Int("skipped", result.Skipped),
			zap.Int("failed", result.Failed),
			zap.Duration("duration", result.Duration),
		)
	}
	return result, nil
}

// promote moves one row through PENDING_ANCHOR → PRICED → COMMITTED → deleted.
func (j *Job) promote(ctx context.Context, row *domain.PendingTrade) (rowOutcome, error) {
	anchor, err := j.trades.GetAnchor(ctx, row.TokenID)
	if errors.Is(err, storage.ErrNotFound) {
		return outcomeNoAnchor, nil
	}
	if err != nil {
		return outcomeFailed, fmt.Errorf("get anchor: %w", err)
	}

	prices, err := j.engine.Price(ctx, row.TokenID, curve.Input{
		Action:          row.Action,
		Amount:          row.Amount,
		TransferredAvax: row.TransferredAvax,
		AvaxPrice:       row.AvaxPrice,
	}, anchor)
	if errors.Is(err, curve.ErrUnavailable) {
		return outcomeNoAnchor, nil
	}
	if err != nil {
		return outcomeFailed, fmt.Errorf("derive prices: %w", err)
	}

	trade := row.Promote(prices.PriceEth, prices.PriceUsd, prices.PriceAfterEth, prices.PriceAfterUsd)

	outcome := outcomePromoted
	if err := j.trades.Insert(ctx, trade); err != nil {
		if !errors.Is(err, storage.ErrDuplicateKey) {
			return outcomeFailed, fmt.Errorf("insert trade: %w", err)
		}
		outcome = outcomeDuplicate
	}

	if err := j.pending.Delete(ctx, row.ID); err != nil {
		return outcomeFailed, fmt.Errorf("delete pending trade: %w", err)
	}

	if outcome == outcomePromoted && j.publisher != nil {
		j.publisher.Publish(trade)
	}
	return outcome, nil
}

// Run calls RunOnce every interval until ctx is done.
func (j *Job) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := j.RunOnce(ctx); err != nil && !errors.Is(err, ErrAlreadyRunning) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				j.logger.Error("reconcile run failed", zap.Error(err))
			}
		}
	}
}
