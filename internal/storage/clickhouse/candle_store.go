package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"arena-token-ledger/internal/domain"
	"arena-token-ledger/internal/storage"
)

// CandleStore implements storage.CandleStore using ClickHouse.
// token_candles is a ReplacingMergeTree keyed by (token_id, timeframe, bucket_start);
// reads use FINAL so a rebuilt bucket hides its older versions.
type CandleStore struct {
	conn *Conn
	now  func() time.Time
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(conn *Conn) *CandleStore {
	return &CandleStore{conn: conn, now: time.Now}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

// Upsert writes candles in one batch. Prices are stored as decimal strings.
func (s *CandleStore) Upsert(ctx context.Context, candles []*domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	for _, c := range candles {
		if c == nil || c.Timeframe <= 0 || c.TokenID < 0 || c.BucketStart < 0 {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO token_candles (
			token_id, timeframe, bucket_start, open, high, low, close,
			volume_eth, volume_usd, trades, version
		)
	`)
	if err != nil {
		return wrapErr("prepare candle batch", err)
	}

	version := uint64(s.now().UnixNano())
	for _, c := range candles {
		err = batch.Append(
			uint64(c.TokenID), uint32(c.Timeframe), uint64(c.BucketStart),
			c.Open.String(), c.High.String(), c.Low.String(), c.Close.String(),
			c.VolumeEth.String(), c.VolumeUsd.String(), uint32(c.Trades), version,
		)
		if err != nil {
			return fmt.Errorf("append candle: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return wrapErr("send candle batch", err)
	}
	return nil
}

// GetRange retrieves candles within [start, end] (inclusive), ordered by bucket ASC.
func (s *CandleStore) GetRange(ctx context.Context, tokenID, timeframe, start, end int64) ([]*domain.Candle, error) {
	if start < 0 {
		start = 0
	}
	if end < start {
		return nil, nil
	}

	query := `
		SELECT token_id, timeframe, bucket_start, open, high, low, close, volume_eth, volume_usd, trades
		FROM token_candles FINAL
		WHERE token_id = ? AND timeframe = ? AND bucket_start >= ? AND bucket_start <= ?
		ORDER BY bucket_start ASC
	`

	rows, err := s.conn.Query(ctx, query, uint64(tokenID), uint32(timeframe), uint64(start), uint64(end))
	if err != nil {
		return nil, wrapErr("query candles", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

// chRows is the subset of driver.Rows used for scanning.
type chRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanCandles(rows chRows) ([]*domain.Candle, error) {
	var candles []*domain.Candle

	for rows.Next() {
		var (
			tokenID, bucket             uint64
			timeframe, trades           uint32
			open, high, low, closePrice string
			volumeEth, volumeUsd        string
		)
		err := rows.Scan(
			&tokenID, &timeframe, &bucket,
			&open, &high, &low, &closePrice,
			&volumeEth, &volumeUsd, &trades,
		)
		if err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}

		c := &domain.Candle{
			TokenID:     int64(tokenID),
			Timeframe:   int64(timeframe),
			BucketStart: int64(bucket),
			Trades:      int64(trades),
		}
		for _, f := range []struct {
			src string
			dst *decimal.Decimal
		}{
			{open, &c.Open}, {high, &c.High}, {low, &c.Low}, {closePrice, &c.Close},
			{volumeEth, &c.VolumeEth}, {volumeUsd, &c.VolumeUsd},
		} {
			d, err := decimal.NewFromString(f.src)
			if err != nil {
				return nil, fmt.Errorf("parse candle value %q: %w", f.src, err)
			}
			*f.dst = d
		}
		candles = append(candles, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candle rows: %w", err)
	}

	return candles, nil
}
