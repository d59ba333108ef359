package app

import (
	"go.uber.org/zap"

	"arena-token-ledger/internal/config"
	"arena-token-ledger/internal/curve"
	"arena-token-ledger/internal/dexscreener"
	"arena-token-ledger/internal/evm"
	"arena-token-ledger/internal/httpx"
	"arena-token-ledger/internal/pricefeed"
	"arena-token-ledger/internal/repair"
)

// HTTPOptions converts client settings into httpx options. Zero values keep
// the httpx defaults.
func HTTPOptions(c config.HTTPClientConfig) []httpx.Option {
	var opts []httpx.Option
	if c.Timeout > 0 {
		opts = append(opts, httpx.WithTimeout(c.Timeout))
	}
	if c.MaxRetries > 0 {
		opts = append(opts, httpx.WithMaxRetries(c.MaxRetries))
	}
	if c.RetryDelay > 0 {
		opts = append(opts, httpx.WithRetryDelay(c.RetryDelay))
	}
	if c.MaxDelay > 0 {
		opts = append(opts, httpx.WithMaxDelay(c.MaxDelay))
	}
	return opts
}

// NewEngine builds the price derivation engine over the stores.
func NewEngine(s *Stores, logger *zap.Logger) *curve.Engine {
	return curve.NewEngine(curve.EngineOptions{
		Trades:  s.Trades,
		Anchors: s.Anchors,
		Logger:  logger.Named("curve"),
	})
}

// NewBalanceReader builds the holder balance reader, or returns nil when no
// RPC endpoint is configured.
func NewBalanceReader(cfg config.OracleConfig) (*evm.BalanceReader, error) {
	if cfg.RPCURL == "" {
		return nil, nil
	}
	client := evm.NewHTTPClient(cfg.RPCURL, HTTPOptions(cfg.HTTP)...)
	return evm.NewBalanceReader(client, cfg.MaxConcurrency, cfg.MaxQueued)
}

// NewMarketFeed builds the DexScreener client with the shared cache.
func NewMarketFeed(cfg config.DexConfig, s *Stores) *dexscreener.Client {
	return dexscreener.NewClient(dexscreener.Options{
		BaseURL: cfg.BaseURL,
		Chain:   cfg.Chain,
		Cache:   s.Cache,
		TTL:     cfg.CacheTTL,
		HTTP:    HTTPOptions(cfg.HTTP),
	})
}

// NewPricePoller builds the AVAX/USD poller.
func NewPricePoller(cfg config.PriceFeedConfig, s *Stores, logger *zap.Logger) *pricefeed.Poller {
	return pricefeed.NewPoller(pricefeed.PollerOptions{
		Sources: []pricefeed.Source{
			pricefeed.NewCoinGeckoSource(cfg.CoinGeckoURL, cfg.APIKey, HTTPOptions(cfg.HTTP)...),
		},
		Store:  s.Prices,
		Logger: logger.Named("pricefeed"),
	})
}

// NewRepairJob builds the repair job over the external trade index.
func NewRepairJob(cfg config.Config, s *Stores, engine *curve.Engine, logger *zap.Logger) *repair.Job {
	return repair.NewJob(repair.JobOptions{
		Tokens:      s.Tokens,
		Trades:      s.Trades,
		Checkpoints: s.Checkpoints,
		Engine:      engine,
		Index:       repair.NewIndexClient(cfg.Index.BaseURL, cfg.Index.PageSize, HTTPOptions(cfg.Index.HTTP)...),
		Locker:      s.Locker,
		LockTTL:     cfg.Repair.LockTTL,
		Logger:      logger.Named("repair"),
	})
}

// RepairOptions maps repair settings onto run options.
func RepairOptions(cfg config.RepairConfig) repair.Options {
	opts := repair.DefaultOptions()
	if cfg.JobID != "" {
		opts.JobID = cfg.JobID
	}
	if cfg.BatchSize > 0 {
		opts.BatchSize = cfg.BatchSize
	}
	if cfg.TokenDelay > 0 {
		opts.TokenDelay = cfg.TokenDelay
	}
	if cfg.BatchDelay > 0 {
		opts.BatchDelay = cfg.BatchDelay
	}
	return opts
}
