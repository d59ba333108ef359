// Package main runs one repair pass over a token id range, re-deriving
// missing trades from the external trade index.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"arena-token-ledger/internal/app"
	"arena-token-ledger/internal/config"
	applog "arena-token-ledger/internal/logger"
	"arena-token-ledger/internal/repair"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to YAML config file")
	fromID := flag.Int64("from", 0, "First token internal_id to repair (inclusive)")
	toID := flag.Int64("to", 0, "Last token internal_id to repair (inclusive, 0 = no limit)")
	jobID := flag.String("job-id", "", "Checkpoint id; runs with the same id resume where the last one stopped")
	batch := flag.Int("batch", 0, "Tokens per batch (0 = config value)")
	tokenDelay := flag.Duration("token-delay", -1, "Pause between tokens (-1 = config value)")
	batchDelay := flag.Duration("batch-delay", -1, "Pause between batches (-1 = config value)")
	tokenFlag := flag.Int64("token", 0, "Repair a single token and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := applog.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, cleanup, err := app.OpenStores(ctx, cfg, false, logger)
	if err != nil {
		logger.Fatal("open stores failed", zap.Error(err))
	}
	defer cleanup()

	job := app.NewRepairJob(cfg, stores, app.NewEngine(stores, logger), logger)

	if *tokenFlag > 0 {
		tok, err := stores.Tokens.GetByInternalID(ctx, *tokenFlag)
		if err != nil {
			logger.Fatal("load token failed", zap.Int64("token_id", *tokenFlag), zap.Error(err))
		}
		res, err := job.RepairToken(ctx, tok)
		if err != nil {
			logger.Fatal("repair token failed", zap.Int64("token_id", *tokenFlag), zap.Error(err))
		}
		logger.Info("token repaired",
			zap.Int64("token_id", res.TokenID),
			zap.Int("fetched", res.Fetched),
			zap.Int("inserted", res.Inserted),
			zap.Int("patched", res.Patched),
			zap.Int("skipped", res.Skipped),
		)
		return
	}

	opts := app.RepairOptions(cfg.Repair)
	opts.FromID = *fromID
	opts.ToID = *toID
	if *jobID != "" {
		opts.JobID = *jobID
	}
	if *batch > 0 {
		opts.BatchSize = *batch
	}
	if *tokenDelay >= 0 {
		opts.TokenDelay = *tokenDelay
	}
	if *batchDelay >= 0 {
		opts.BatchDelay = *batchDelay
	}

	res, err := job.Run(ctx, opts)
	switch {
	case errors.Is(err, repair.ErrAlreadyRunning):
		logger.Warn("another repair run holds the lock")
		os.Exit(2)
	case errors.Is(err, context.Canceled):
		logger.Info("repair interrupted, progress saved", zap.String("job_id", opts.JobID))
	case err != nil:
		logger.Fatal("repair failed", zap.Error(err))
	}
	if res != nil {
		logger.Info("repair finished",
			zap.String("job_id", opts.JobID),
			zap.Int("tokens", res.Tokens),
			zap.Int("failed", res.Failed),
			zap.Int("inserted", res.Inserted),
			zap.Int("patched", res.Patched),
			zap.Int64("last_token_id", res.LastTokenID),
			zap.Duration("duration", res.Duration),
		)
	}
}
