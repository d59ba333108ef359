// Package config loads service configuration from a YAML file, .env and ATL_* variables.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	ClickHouse ClickHouseConfig `mapstructure:"clickhouse"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Oracle     OracleConfig     `mapstructure:"oracle"`
	PriceFeed  PriceFeedConfig  `mapstructure:"price_feed"`
	Dex        DexConfig        `mapstructure:"dexscreener"`
	Index      IndexConfig      `mapstructure:"trade_index"`
	Cron       CronConfig       `mapstructure:"cron"`
	Reconcile  ReconcileConfig  `mapstructure:"reconcile"`
	Repair     RepairConfig     `mapstructure:"repair"`
	Candles    CandlesConfig    `mapstructure:"candles"`
	API        APIConfig        `mapstructure:"api"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type PostgresConfig struct {
	DSN           string `mapstructure:"dsn"`
	RunMigrations bool   `mapstructure:"run_migrations"`
}

// ClickHouseConfig is optional; an empty DSN keeps candles in memory.
type ClickHouseConfig struct {
	DSN           string `mapstructure:"dsn"`
	RunMigrations bool   `mapstructure:"run_migrations"`
}

// RedisConfig is optional; an empty Addr uses process-local locks and cache.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// HTTPClientConfig tunes retries of an external HTTP integration.
type HTTPClientConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	MaxDelay   time.Duration `mapstructure:"max_delay"`
}

type OracleConfig struct {
	RPCURL         string           `mapstructure:"rpc_url"`
	MaxConcurrency int              `mapstructure:"max_concurrency"`
	MaxQueued      int              `mapstructure:"max_queued"`
	HTTP           HTTPClientConfig `mapstructure:"http"`
}

type PriceFeedConfig struct {
	CoinGeckoURL string           `mapstructure:"coingecko_url"`
	APIKey       string           `mapstructure:"api_key"`
	HTTP         HTTPClientConfig `mapstructure:"http"`
}

type DexConfig struct {
	BaseURL  string           `mapstructure:"base_url"`
	Chain    string           `mapstructure:"chain"`
	CacheTTL time.Duration    `mapstructure:"cache_ttl"`
	HTTP     HTTPClientConfig `mapstructure:"http"`
}

type IndexConfig struct {
	BaseURL  string           `mapstructure:"base_url"`
	PageSize int              `mapstructure:"page_size"`
	HTTP     HTTPClientConfig `mapstructure:"http"`
}

type CronConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Reconcile string `mapstructure:"reconcile"`
	PriceFeed string `mapstructure:"price_feed"`
	Candles   string `mapstructure:"candles"`
	Repair    string `mapstructure:"repair"`
}

// ReconcileConfig tunes promotion. Interval drives the standalone loop used
// when cron is disabled; zero turns promotion off in that mode.
type ReconcileConfig struct {
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
	Interval time.Duration `mapstructure:"interval"`
}

type RepairConfig struct {
	JobID      string        `mapstructure:"job_id"`
	BatchSize  int           `mapstructure:"batch_size"`
	TokenDelay time.Duration `mapstructure:"token_delay"`
	BatchDelay time.Duration `mapstructure:"batch_delay"`
	LockTTL    time.Duration `mapstructure:"lock_ttl"`
}

type CandlesConfig struct {
	Lookback time.Duration `mapstructure:"lookback"`
}

type APIConfig struct {
	TokenListCacheTTL time.Duration `mapstructure:"token_list_cache_ttl"`
	DefaultPageSize   int           `mapstructure:"default_page_size"`
	MaxPageSize       int           `mapstructure:"max_page_size"`
}

// Load reads configuration. A .env file in the working directory is loaded
// first when present. path may be empty or point to a missing file, in which
// case defaults and environment variables apply.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("ATL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return Config{}, err
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ErrPostgresDSN is returned by Validate when no database is configured.
var ErrPostgresDSN = errors.New("postgres.dsn is required (ATL_POSTGRES_DSN)")

// Validate checks the settings needed to run against real backends.
func (c Config) Validate() error {
	if c.Postgres.DSN == "" {
		return ErrPostgresDSN
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", false)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", true)

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.run_migrations", true)
	v.SetDefault("clickhouse.dsn", "")
	v.SetDefault("clickhouse.run_migrations", true)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "atl:")

	for _, key := range []string{"oracle", "price_feed", "dexscreener", "trade_index"} {
		v.SetDefault(key+".http.timeout", "10s")
		v.SetDefault(key+".http.max_retries", 3)
		v.SetDefault(key+".http.retry_delay", "500ms")
		v.SetDefault(key+".http.max_delay", "5s")
	}
	v.SetDefault("oracle.rpc_url", "https://api.avax.network/ext/bc/C/rpc")
	v.SetDefault("oracle.max_concurrency", 8)
	v.SetDefault("oracle.max_queued", 1000)
	v.SetDefault("price_feed.coingecko_url", "https://api.coingecko.com")
	v.SetDefault("price_feed.api_key", "")
	v.SetDefault("dexscreener.base_url", "https://api.dexscreener.com")
	v.SetDefault("dexscreener.chain", "avalanche")
	v.SetDefault("dexscreener.cache_ttl", "30s")
	v.SetDefault("trade_index.base_url", "https://api.arenapro.io")
	v.SetDefault("trade_index.page_size", 1000)

	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.reconcile", "*/10 * * * * *")
	v.SetDefault("cron.price_feed", "0 * * * * *")
	v.SetDefault("cron.candles", "30 * * * * *")
	v.SetDefault("cron.repair", "0 0 */6 * * *")

	v.SetDefault("reconcile.lock_ttl", "5m")
	v.SetDefault("reconcile.interval", "1s")
	v.SetDefault("repair.job_id", "scheduled")
	v.SetDefault("repair.batch_size", 50)
	v.SetDefault("repair.token_delay", "300ms")
	v.SetDefault("repair.batch_delay", "2s")
	v.SetDefault("repair.lock_ttl", "6h")
	v.SetDefault("candles.lookback", "10m")

	v.SetDefault("api.token_list_cache_ttl", "120s")
	v.SetDefault("api.default_page_size", 50)
	v.SetDefault("api.max_page_size", 500)
}
