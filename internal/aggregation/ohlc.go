package aggregation

import (
	"sort"

	"arena-token-ledger/internal/domain"
)

// BuildCandles buckets successful trades into candles of timeframe seconds.
// OHLC tracks price_after_eth in absolute_tx_position order. Candles are
// returned by bucket start ascending; empty buckets are omitted.
func BuildCandles(tokenID int64, trades []*domain.Trade, timeframe int64) []*domain.Candle {
	if timeframe <= 0 {
		return nil
	}

	ordered := make([]*domain.Trade, 0, len(trades))
	for _, t := range trades {
		if t.Status == domain.StatusSuccess {
			ordered = append(ordered, t)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].AbsoluteTxPosition < ordered[j].AbsoluteTxPosition
	})

	bucketMs := timeframe * 1000
	byBucket := make(map[int64]*domain.Candle)
	var starts []int64

	for _, t := range ordered {
		start := floorDiv(t.Timestamp, bucketMs) * bucketMs
		price := t.PriceAfterEth

		c, ok := byBucket[start]
		if !ok {
			c = &domain.Candle{
				TokenID:     tokenID,
				Timeframe:   timeframe,
				BucketStart: start,
				Open:        price,
				High:        price,
				Low:         price,
			}
			byBucket[start] = c
			starts = append(starts, start)
		}
		if price.GreaterThan(c.High) {
			c.High = price
		}
		if price.LessThan(c.Low) {
			c.Low = price
		}
		c.Close = price
		c.VolumeEth = c.VolumeEth.Add(t.TransferredAvax)
		c.VolumeUsd = c.VolumeUsd.Add(t.TransferredAvax.Mul(t.AvaxPrice))
		c.Trades++
	}

	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })
	candles := make([]*domain.Candle, 0, len(starts))
	for _, s := range starts {
		candles = append(candles, byBucket[s])
	}
	return candles
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
