// Package main runs the ledger service: the read API, the trade stream and
// the scheduled jobs (reconcile, AVAX price polling, candle refresh, repair).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"arena-token-ledger/internal/aggregation"
	"arena-token-ledger/internal/api"
	"arena-token-ledger/internal/app"
	"arena-token-ledger/internal/config"
	applog "arena-token-ledger/internal/logger"
	"arena-token-ledger/internal/pricefeed"
	"arena-token-ledger/internal/reconcile"
	"arena-token-ledger/internal/repair"
	"arena-token-ledger/internal/scheduler"
	"arena-token-ledger/internal/stream"
)

func main() {
	configPath := flag.String("config", envOr("ATL_CONFIG", "config/config.yaml"), "Path to YAML config file")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if !*useMemory {
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
			os.Exit(1)
		}
	}

	logger, err := applog.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *useMemory, logger); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, useMemory bool, logger *zap.Logger) error {
	stores, cleanup, err := app.OpenStores(ctx, cfg, useMemory, logger)
	if err != nil {
		return fmt.Errorf("open stores: %w", err)
	}
	defer cleanup()

	engine := app.NewEngine(stores, logger)

	hub := stream.NewHub(logger.Named("stream"))
	go hub.Run(ctx)

	reconcileJob := reconcile.NewJob(reconcile.Options{
		Pending:   stores.Pending,
		Trades:    stores.Trades,
		Engine:    engine,
		Locker:    stores.Locker,
		Publisher: hub,
		LockTTL:   cfg.Reconcile.LockTTL,
		Logger:    logger.Named("reconcile"),
	})
	poller := app.NewPricePoller(cfg.PriceFeed, stores, logger)
	repairJob := app.NewRepairJob(cfg, stores, engine, logger)
	market := app.NewMarketFeed(cfg.Dex, stores)

	svcOpts := aggregation.ServiceOptions{
		Tokens:  stores.Tokens,
		Trades:  stores.Trades,
		Prices:  stores.Prices,
		Candles: stores.Candles,
		Market:  market,
		Logger:  logger.Named("aggregation"),
	}
	balances, err := app.NewBalanceReader(cfg.Oracle)
	if err != nil {
		return fmt.Errorf("create balance reader: %w", err)
	}
	if balances != nil {
		defer balances.Release()
		svcOpts.Balances = balances
	}
	service := aggregation.NewService(svcOpts)

	if _, err := poller.PollOnce(ctx); err != nil {
		logger.Warn("initial avax price poll failed", zap.Error(err))
	}

	var runner *scheduler.Runner
	if cfg.Cron.Enabled {
		runner = scheduler.New(logger.Named("cron"), ctx)
		if err := scheduleJobs(runner, cfg, reconcileJob, repairJob, poller, service, logger); err != nil {
			return err
		}
		runner.Start()
		defer runner.Stop()
	} else {
		startReconcileLoop(ctx, cfg.Reconcile.Interval, reconcileJob, logger)
	}

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           newRouter(cfg, stores, service, market, hub, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", zap.Error(err))
	}
	return nil
}

// startReconcileLoop runs promotion on a plain ticker when cron is disabled.
// It returns a channel closed once the loop exits, or nil if interval is zero.
func startReconcileLoop(ctx context.Context, interval time.Duration, job *reconcile.Job, logger *zap.Logger) <-chan struct{} {
	if interval <= 0 {
		logger.Warn("cron disabled and reconcile.interval is zero, pending trades will not be promoted")
		return nil
	}
	logger.Info("cron disabled, reconcile runs on its own loop", zap.Duration("interval", interval))

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := job.Run(ctx, interval); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("reconcile loop stopped", zap.Error(err))
		}
	}()
	return done
}

func scheduleJobs(
	runner *scheduler.Runner,
	cfg config.Config,
	reconcileJob *reconcile.Job,
	repairJob *repair.Job,
	poller *pricefeed.Poller,
	service *aggregation.Service,
	logger *zap.Logger,
) error {
	jobs := []struct {
		name string
		spec string
		fn   func(context.Context)
	}{
		{"reconcile", cfg.Cron.Reconcile, func(ctx context.Context) {
			if _, err := reconcileJob.RunOnce(ctx); err != nil && !errors.Is(err, reconcile.ErrAlreadyRunning) {
				logger.Warn("cron reconcile failed", zap.Error(err))
			}
		}},
		{"price_feed", cfg.Cron.PriceFeed, func(ctx context.Context) {
			if _, err := poller.PollOnce(ctx); err != nil {
				logger.Warn("cron avax price poll failed", zap.Error(err))
			}
		}},
		{"candles", cfg.Cron.Candles, func(ctx context.Context) {
			since := time.Now().Add(-cfg.Candles.Lookback).UnixMilli()
			if _, err := service.RefreshCandles(ctx, since); err != nil {
				logger.Warn("cron candle refresh failed", zap.Error(err))
			}
		}},
		{"repair", cfg.Cron.Repair, func(ctx context.Context) {
			opts := app.RepairOptions(cfg.Repair)
			opts.ResetOnComplete = true
			if _, err := repairJob.Run(ctx, opts); err != nil && !errors.Is(err, repair.ErrAlreadyRunning) {
				logger.Warn("cron repair failed", zap.Error(err))
			}
		}},
	}

	for _, job := range jobs {
		if strings.TrimSpace(job.spec) == "" {
			logger.Info("cron job disabled", zap.String("job", job.name))
			continue
		}
		if _, err := runner.Add(job.spec, job.fn); err != nil {
			return fmt.Errorf("schedule %s (%q): %w", job.name, job.spec, err)
		}
	}
	return nil
}

func newRouter(
	cfg config.Config,
	stores *app.Stores,
	service *aggregation.Service,
	market api.PairSource,
	hub *stream.Hub,
	logger *zap.Logger,
) *gin.Engine {
	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(api.MetricsMiddleware())
	engine.Use(api.LoggingMiddleware(logger.Named("http")))

	health := &api.HealthHandler{DB: alwaysReady{}}
	if stores.DB != nil {
		health.DB = stores.DB
	}
	health.Register(engine)

	tokens := &api.TokenHandler{
		Service:         service,
		Tokens:          stores.Tokens,
		Pairs:           market,
		Cache:           stores.Cache,
		Logger:          logger.Named("api"),
		ListCacheTTL:    cfg.API.TokenListCacheTTL,
		DefaultPageSize: cfg.API.DefaultPageSize,
		MaxPageSize:     cfg.API.MaxPageSize,
	}
	tokens.Register(engine)

	stream.NewHandler(hub, logger.Named("stream")).Register(engine)
	return engine
}

// alwaysReady backs /readyz for in-memory stores.
type alwaysReady struct{}

func (alwaysReady) Ping(context.Context) error { return nil }

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
