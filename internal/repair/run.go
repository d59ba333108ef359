package repair

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"arena-token-ledger/internal/domain"
	"arena-token-ledger/internal/lock"
	"arena-token-ledger/internal/observability"
	"arena-token-ledger/internal/storage"
)

// Options bounds one repair run.
type Options struct {
	FromID     int64 // first internal_id, inclusive
	ToID       int64 // last internal_id, inclusive; <= 0 means no upper bound
	BatchSize  int
	TokenDelay time.Duration
	BatchDelay time.Duration
	JobID      string

	// ResetOnComplete clears the checkpoint once the whole range is done so the
	// next run starts over. Used by the scheduled run.
	ResetOnComplete bool
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.TokenDelay < 0 {
		o.TokenDelay = 0
	}
	if o.BatchDelay < 0 {
		o.BatchDelay = 0
	}
	if o.JobID == "" {
		o.JobID = DefaultJobID
	}
	return o
}

// DefaultOptions returns the default pacing for a full-range run.
func DefaultOptions() Options {
	return Options{
		BatchSize:  DefaultBatchSize,
		TokenDelay: DefaultTokenDelay,
		BatchDelay: DefaultBatchDelay,
		JobID:      DefaultJobID,
	}
}

// Result contains statistics from one run.
type Result struct {
	Tokens      int
	Failed      int
	Inserted    int
	Patched     int
	LastTokenID int64
	Duration    time.Duration
}

// Run repairs every candidate token in the range, resuming after the job's
// checkpoint. It stops between tokens when ctx is cancelled and returns ctx.Err().
func (j *Job) Run(ctx context.Context, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	release, err := j.locker.TryLock(ctx, LockKey, j.lockTTL)
	if errors.Is(err, lock.ErrLocked) {
		return nil, ErrAlreadyRunning
	}
	if err != nil {
		return nil, fmt.Errorf("acquire repair lock: %w", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			j.logger.Warn("release repair lock", zap.Error(err))
		}
	}()

	start := time.Now()
	result := &Result{}

	afterID := opts.FromID - 1
	if afterID < 0 {
		afterID = 0
	}
	cp, err := j.checkpoints.Get(ctx, opts.JobID)
	switch {
	case err == nil:
		if cp.LastTokenID > afterID {
			afterID = cp.LastTokenID
		}
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("get checkpoint %s: %w", opts.JobID, err)
	}
	result.LastTokenID = afterID

	j.logger.Info("repair run started",
		zap.String("job_id", opts.JobID),
		zap.Int64("after_id", afterID),
		zap.Int64("to_id", opts.ToID),
	)

	for {
		batch, err := j.tokens.ListRepairCandidates(ctx, afterID, opts.ToID, opts.BatchSize)
		if err != nil {
			return result, fmt.Errorf("list repair candidates after %d: %w", afterID, err)
		}
		if len(batch) == 0 {
			break
		}

		for _, tok := range batch {
			if err := ctx.Err(); err != nil {
				return result, err
			}

			if err := j.repairOne(ctx, tok, result); err != nil {
				return result, err
			}

			afterID = tok.InternalID
			result.LastTokenID = afterID
			if err := j.checkpoints.Save(ctx, &domain.RepairCheckpoint{
				JobID:       opts.JobID,
				LastTokenID: afterID,
				UpdatedAt:   j.now().UnixMilli(),
			}); err != nil {
				return result, fmt.Errorf("save checkpoint %s: %w", opts.JobID, err)
			}

			if err := sleep(ctx, opts.TokenDelay); err != nil {
				return result, err
			}
		}

		if len(batch) < opts.BatchSize {
			break
		}
		if err := sleep(ctx, opts.BatchDelay); err != nil {
			return result, err
		}
	}

	if opts.ResetOnComplete {
		if err := j.checkpoints.Save(ctx, &domain.RepairCheckpoint{
			JobID:     opts.JobID,
			UpdatedAt: j.now().UnixMilli(),
		}); err != nil {
			return result, fmt.Errorf("reset checkpoint %s: %w", opts.JobID, err)
		}
	}

	result.Duration = time.Since(start)
	observability.RecordRepairCompleted(time.Now().Unix())

	j.logger.Info("repair run complete",
		zap.String("job_id", opts.JobID),
		zap.Int("tokens", result.Tokens),
		zap.Int("failed", result.Failed),
		zap.Int("inserted", result.Inserted),
		zap.Int("patched", result.Patched),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

// repairOne repairs a token and folds its outcome into result. Only
// cancellation and store unavailability are returned; other failures are logged.
func (j *Job) repairOne(ctx context.Context, tok *domain.Token, result *Result) error {
	res, err := j.RepairToken(ctx, tok)
	result.Tokens++
	if res != nil {
		result.Inserted += res.Inserted
		result.Patched += res.Patched
	}

	if err == nil {
		observability.RecordRepairToken("ok")
		if res.Inserted > 0 || res.Patched > 0 {
			j.logger.Info("token repaired",
				zap.Int64("token_id", tok.InternalID),
				zap.Int("fetched", res.Fetched),
				zap.Int("inserted", res.Inserted),
				zap.Int("patched", res.Patched),
				zap.Int("skipped", res.Skipped),
			)
		}
		return nil
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	observability.RecordRepairToken("error")
	if errors.Is(err, storage.ErrUnavailable) {
		return fmt.Errorf("repair token %d: %w", tok.InternalID, err)
	}

	result.Failed++
	j.logger.Error("token repair failed",
		zap.Int64("token_id", tok.InternalID),
		zap.Error(err),
	)
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
