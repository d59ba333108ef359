package aggregation

import (
	"github.com/shopspring/decimal"

	"arena-token-ledger/internal/curve"
	"arena-token-ledger/internal/dexscreener"
	"arena-token-ledger/internal/domain"
	"arena-token-ledger/internal/storage"
)

// TokenSummary is the reported state of a token.
type TokenSummary struct {
	Token          *domain.Token          `json:"token"`
	LatestPriceEth decimal.Decimal        `json:"latest_price_eth"`
	LatestPriceUsd decimal.Decimal        `json:"latest_price_usd"`
	TotalVolumeEth decimal.Decimal        `json:"total_volume_eth"`
	TotalVolumeUsd decimal.Decimal        `json:"total_volume_usd"`
	TxCount        int                    `json:"tx_count"`
	HolderCount    int                    `json:"holder_count"`
	Supply         decimal.Decimal        `json:"supply"`
	MarketCapUsd   decimal.Decimal        `json:"market_cap_usd"`
	LastTradeAt    int64                  `json:"last_trade_at,omitempty"`
	Windows        map[string]WindowStats `json:"windows"`
	Market         *dexscreener.Pair      `json:"market,omitempty"` // lp_deployed tokens only
	Degraded       bool                   `json:"degraded"`
}

// TotalsOf sums successful trade amounts by action.
func TotalsOf(trades []*domain.Trade) storage.Totals {
	totals := storage.NewTotals()
	for _, t := range trades {
		if t.Status != domain.StatusSuccess || t.Amount == nil {
			continue
		}
		switch t.Action {
		case domain.ActionInitialBuy:
			totals.InitialBuy.Add(totals.InitialBuy, t.Amount)
		case domain.ActionBuy:
			totals.Buy.Add(totals.Buy, t.Amount)
		case domain.ActionSell:
			totals.Sell.Add(totals.Sell, t.Amount)
		}
	}
	return totals
}

// Summarize builds a token summary from its trades. latestAvax is the current
// AVAX/USD rate and now is unix milliseconds.
func Summarize(token *domain.Token, trades []*domain.Trade, latestAvax decimal.Decimal, now int64) *TokenSummary {
	s := &TokenSummary{
		Token:   token,
		Windows: ComputeWindows(trades, now),
	}

	var latest *domain.Trade
	for _, t := range trades {
		if t.Status != domain.StatusSuccess {
			continue
		}
		s.TxCount++
		s.TotalVolumeEth = s.TotalVolumeEth.Add(t.TransferredAvax)
		s.TotalVolumeUsd = s.TotalVolumeUsd.Add(t.TransferredAvax.Mul(t.AvaxPrice))
		if latest == nil || t.AbsoluteTxPosition > latest.AbsoluteTxPosition {
			latest = t
		}
	}
	s.HolderCount = HolderCount(trades)

	if latest != nil {
		s.LatestPriceEth = latest.PriceAfterEth
		s.LatestPriceUsd = latest.PriceAfterEth.Mul(latestAvax)
		s.LastTradeAt = latest.Timestamp
	}

	totals := TotalsOf(trades)
	supply, ok := curve.ReportedSupply(totals)
	s.Supply = supply
	s.Degraded = !ok
	if !ok {
		// Prices committed against a negative supply are not reported.
		s.LatestPriceEth = decimal.Zero
		s.LatestPriceUsd = decimal.Zero
	}
	s.MarketCapUsd = curve.MarketCap(totals, s.LatestPriceUsd)
	return s
}
