// Package app assembles stores, clients and jobs from configuration for the
// server and repair binaries.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"arena-token-ledger/internal/cache"
	"arena-token-ledger/internal/config"
	"arena-token-ledger/internal/lock"
	"arena-token-ledger/internal/storage"
	chstore "arena-token-ledger/internal/storage/clickhouse"
	"arena-token-ledger/internal/storage/memory"
	"arena-token-ledger/internal/storage/migrations"
	pgstore "arena-token-ledger/internal/storage/postgres"
)

// Stores holds every store the binaries use.
type Stores struct {
	Tokens      storage.TokenStore
	Trades      storage.TradeStore
	Pending     storage.PendingTradeStore
	Prices      storage.AvaxPriceStore
	Anchors     storage.CurveAnchorStore
	Checkpoints storage.RepairCheckpointStore
	Candles     storage.CandleStore

	Locker lock.Locker
	Cache  cache.Store

	// DB is nil for in-memory stores.
	DB *pgstore.Pool
}

// OpenStores connects the configured backends. With useMemory every store is
// process-local. ClickHouse and Redis are optional: without a DSN or address
// candles, locks and cache fall back to memory.
func OpenStores(ctx context.Context, cfg config.Config, useMemory bool, logger *zap.Logger) (*Stores, func(), error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if useMemory {
		logger.Info("using in-memory stores")
		return &Stores{
			Tokens:      memory.NewTokenStore(),
			Trades:      memory.NewTradeStore(),
			Pending:     memory.NewPendingTradeStore(),
			Prices:      memory.NewAvaxPriceStore(),
			Anchors:     memory.NewCurveAnchorStore(),
			Checkpoints: memory.NewRepairCheckpointStore(),
			Candles:     memory.NewCandleStore(),
			Locker:      lock.NewMemoryLocker(),
			Cache:       cache.NewMemoryStore(),
		}, func() {}, nil
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	closers = append(closers, pool.Close)

	if cfg.Postgres.RunMigrations {
		if err := migrations.RunPostgresMigrations(ctx, pool, logger); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
	}

	s := &Stores{
		Tokens:      pgstore.NewTokenStore(pool),
		Trades:      pgstore.NewTradeStore(pool),
		Pending:     pgstore.NewPendingTradeStore(pool),
		Prices:      pgstore.NewAvaxPriceStore(pool),
		Anchors:     pgstore.NewCurveAnchorStore(pool),
		Checkpoints: pgstore.NewRepairCheckpointStore(pool),
		DB:          pool,
	}

	if dsn := cfg.ClickHouse.DSN; dsn != "" {
		var conn *chstore.Conn
		if cfg.ClickHouse.RunMigrations {
			conn, err = migrations.RunClickhouseMigrations(ctx, dsn, logger)
		} else {
			conn, err = chstore.NewConn(ctx, dsn)
		}
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		closers = append(closers, func() { _ = conn.Close() })
		s.Candles = chstore.NewCandleStore(conn)
	} else {
		logger.Info("clickhouse not configured, candles kept in memory")
		s.Candles = memory.NewCandleStore()
	}

	if addr := cfg.Redis.Addr; addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			cleanup()
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		closers = append(closers, func() { _ = client.Close() })
		s.Locker = lock.NewRedisLocker(client, cfg.Redis.KeyPrefix+"lock:")
		s.Cache = cache.NewRedisStore(client)
	} else {
		logger.Warn("redis not configured, job locks are process-local")
		s.Locker = lock.NewMemoryLocker()
		s.Cache = cache.NewMemoryStore()
	}

	return s, cleanup, nil
}
