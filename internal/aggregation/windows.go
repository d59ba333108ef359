// Package aggregation computes token statistics from ledger trades.
package aggregation

import (
	"strings"
	"time"

	set "github.com/duke-git/lancet/v2/datastructure/set"
	"github.com/shopspring/decimal"

	"arena-token-ledger/internal/domain"
)

// Window is a named lookback period.
type Window struct {
	Key      string
	Duration time.Duration
}

// Windows are the reported lookback periods, shortest first.
var Windows = []Window{
	{Key: "m5", Duration: 5 * time.Minute},
	{Key: "h1", Duration: time.Hour},
	{Key: "h6", Duration: 6 * time.Hour},
	{Key: "h24", Duration: 24 * time.Hour},
}

// WindowStats holds trade activity within one window.
type WindowStats struct {
	Buys          int             `json:"buys"`
	Sells         int             `json:"sells"`
	Buyers        int             `json:"buyers"`
	Sellers       int             `json:"sellers"`
	Makers        int             `json:"makers"`
	BuyVolumeEth  decimal.Decimal `json:"buy_volume_eth"`
	SellVolumeEth decimal.Decimal `json:"sell_volume_eth"`
	BuyVolumeUsd  decimal.Decimal `json:"buy_volume_usd"`
	SellVolumeUsd decimal.Decimal `json:"sell_volume_usd"`
}

type windowAcc struct {
	stats   WindowStats
	buyers  set.Set[string]
	sellers set.Set[string]
}

// ComputeWindows returns stats per window key for successful trades with
// now - timestamp <= window. now is unix milliseconds.
func ComputeWindows(trades []*domain.Trade, now int64) map[string]WindowStats {
	accs := make([]*windowAcc, len(Windows))
	for i := range Windows {
		accs[i] = &windowAcc{buyers: set.New[string](), sellers: set.New[string]()}
	}

	for _, t := range trades {
		if t.Status != domain.StatusSuccess {
			continue
		}
		age := now - t.Timestamp
		if age < 0 {
			continue
		}
		addr := strings.ToLower(t.FromAddress)
		volUsd := t.TransferredAvax.Mul(t.AvaxPrice)

		for i, w := range Windows {
			if age > w.Duration.Milliseconds() {
				continue
			}
			acc := accs[i]
			if t.Action.IsBuy() {
				acc.stats.Buys++
				acc.stats.BuyVolumeEth = acc.stats.BuyVolumeEth.Add(t.TransferredAvax)
				acc.stats.BuyVolumeUsd = acc.stats.BuyVolumeUsd.Add(volUsd)
				if addr != "" {
					acc.buyers.Add(addr)
				}
			} else {
				acc.stats.Sells++
				acc.stats.SellVolumeEth = acc.stats.SellVolumeEth.Add(t.TransferredAvax)
				acc.stats.SellVolumeUsd = acc.stats.SellVolumeUsd.Add(volUsd)
				if addr != "" {
					acc.sellers.Add(addr)
				}
			}
		}
	}

	result := make(map[string]WindowStats, len(Windows))
	for i, w := range Windows {
		acc := accs[i]
		acc.stats.Buyers = acc.buyers.Size()
		acc.stats.Sellers = acc.sellers.Size()
		acc.stats.Makers = acc.buyers.Union(acc.sellers).Size()
		result[w.Key] = acc.stats
	}
	return result
}
