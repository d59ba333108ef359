package domain

import "github.com/shopspring/decimal"

// Candle is an OHLC bucket of a token's curve price.
// Corresponds to token_candles table in ClickHouse.
type Candle struct {
	TokenID     int64
	Timeframe   int64 // bucket width in seconds
	BucketStart int64 // Unix timestamp in milliseconds
	Open        decimal.Decimal
	High        decimal.Decimal
	Low         decimal.Decimal
	Close       decimal.Decimal
	VolumeEth   decimal.Decimal
	VolumeUsd   decimal.Decimal
	Trades      int64
}

// Supported candle timeframes in seconds.
var CandleTimeframes = map[string]int64{
	"1m":  60,
	"5m":  300,
	"15m": 900,
	"1h":  3600,
	"4h":  14400,
	"1d":  86400,
}
