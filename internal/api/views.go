package api

import (
	"github.com/shopspring/decimal"

	"arena-token-ledger/internal/curve"
	"arena-token-ledger/internal/domain"
)

type tradeView struct {
	TxHash             string          `json:"tx_hash"`
	TxID               string          `json:"tx_id"`
	TokenID            int64           `json:"token_id"`
	Action             domain.Action   `json:"action"`
	Amount             string          `json:"amount"`
	AmountTokens       decimal.Decimal `json:"amount_tokens"`
	TransferredAvax    decimal.Decimal `json:"transferred_avax"`
	AvaxPrice          decimal.Decimal `json:"avax_price"`
	FromAddress        string          `json:"from_address"`
	Referrer           *string         `json:"referrer,omitempty"`
	Status             string          `json:"status"`
	BlockNumber        int64           `json:"block_number"`
	AbsoluteTxPosition int64           `json:"absolute_tx_position"`
	Timestamp          int64           `json:"timestamp"`
	PriceEth           decimal.Decimal `json:"price_eth"`
	PriceUsd           decimal.Decimal `json:"price_usd"`
	PriceAfterEth      decimal.Decimal `json:"price_after_eth"`
	PriceAfterUsd      decimal.Decimal `json:"price_after_usd"`
}

func newTradeView(t *domain.Trade) tradeView {
	v := tradeView{
		TxHash:             t.TxHash,
		TxID:               t.TxID,
		TokenID:            t.TokenID,
		Action:             t.Action,
		TransferredAvax:    t.TransferredAvax,
		AvaxPrice:          t.AvaxPrice,
		FromAddress:        t.FromAddress,
		Referrer:           t.Referrer,
		Status:             t.Status,
		BlockNumber:        t.BlockNumber,
		AbsoluteTxPosition: t.AbsoluteTxPosition,
		Timestamp:          t.Timestamp,
		PriceEth:           t.PriceEth,
		PriceUsd:           t.PriceUsd,
		PriceAfterEth:      t.PriceAfterEth,
		PriceAfterUsd:      t.PriceAfterUsd,
	}
	if t.Amount != nil {
		v.Amount = t.Amount.String()
		v.AmountTokens = curve.SupplyDecimal(t.Amount)
	}
	return v
}

type candleView struct {
	Time      int64           `json:"time"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	VolumeEth decimal.Decimal `json:"volume_eth"`
	VolumeUsd decimal.Decimal `json:"volume_usd"`
	Trades    int64           `json:"trades"`
}

func newCandleView(c *domain.Candle) candleView {
	return candleView{
		Time:      c.BucketStart,
		Open:      c.Open,
		High:      c.High,
		Low:       c.Low,
		Close:     c.Close,
		VolumeEth: c.VolumeEth,
		VolumeUsd: c.VolumeUsd,
		Trades:    c.Trades,
	}
}
