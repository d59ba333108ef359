package domain

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Trade represents one committed bonding-curve trade.
// Corresponds to trades table in PostgreSQL. Price fields are computed once
// at insert time and never recomputed.
type Trade struct {
	ID                 int64    // BIGSERIAL primary key
	TokenID            int64    // FK to tokens.internal_id
	TxHash             string   // natural key, unique
	TxID               string   // "<block>_<txidx>_<logidx>"
	Action             Action   // "initial buy" | "buy" | "sell"
	Amount             *big.Int // token base units moved, unsigned
	TransferredAvax    decimal.Decimal
	AvaxPrice          decimal.Decimal // AVAX/USD at trade time
	FromAddress        string          // lowercase hex
	Referrer           *string
	Status             string
	BlockNumber        int64
	TxIndex            int64
	LogIndex           int64
	AbsoluteTxPosition int64 // global ordering key
	Timestamp          int64 // Unix timestamp in milliseconds

	PriceEth      decimal.Decimal
	PriceUsd      decimal.Decimal
	PriceAfterEth decimal.Decimal
	PriceAfterUsd decimal.Decimal
}

// PendingTrade is a trade waiting in the temp queue for its token's anchor.
// Corresponds to pending_trades table in PostgreSQL.
type PendingTrade struct {
	ID                 int64
	TokenID            int64
	TxHash             string
	TxID               string
	Action             Action
	Amount             *big.Int
	TransferredAvax    decimal.Decimal
	AvaxPrice          decimal.Decimal
	FromAddress        string
	Referrer           *string
	Status             string
	BlockNumber        int64
	TxIndex            int64
	LogIndex           int64
	AbsoluteTxPosition int64
	Timestamp          int64
}

// Action is the trade direction.
type Action string

// Trade action constants
const (
	ActionInitialBuy Action = "initial buy"
	ActionBuy        Action = "buy"
	ActionSell       Action = "sell"
)

// IsBuy reports whether the action adds supply.
func (a Action) IsBuy() bool {
	return a == ActionBuy || a == ActionInitialBuy
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	return a == ActionInitialBuy || a == ActionBuy || a == ActionSell
}

// Trade status constants
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// TxID builds the external trade id from its chain coordinates.
func TxID(blockNumber, txIndex, logIndex int64) string {
	return fmt.Sprintf("%d_%d_%d", blockNumber, txIndex, logIndex)
}

// Promote builds the ledger trade for a pending row with the computed prices.
func (p *PendingTrade) Promote(priceEth, priceUsd, priceAfterEth, priceAfterUsd decimal.Decimal) *Trade {
	t := &Trade{
		TokenID:            p.TokenID,
		TxHash:             p.TxHash,
		TxID:               p.TxID,
		Action:             p.Action,
		TransferredAvax:    p.TransferredAvax,
		AvaxPrice:          p.AvaxPrice,
		FromAddress:        p.FromAddress,
		Status:             p.Status,
		BlockNumber:        p.BlockNumber,
		TxIndex:            p.TxIndex,
		LogIndex:           p.LogIndex,
		AbsoluteTxPosition: p.AbsoluteTxPosition,
		Timestamp:          p.Timestamp,
		PriceEth:           priceEth,
		PriceUsd:           priceUsd,
		PriceAfterEth:      priceAfterEth,
		PriceAfterUsd:      priceAfterUsd,
	}
	if p.Amount != nil {
		t.Amount = new(big.Int).Set(p.Amount)
	}
	if p.Referrer != nil {
		ref := *p.Referrer
		t.Referrer = &ref
	}
	return t
}

// OrderingPatch carries the fields the repair job may correct on a stored trade.
type OrderingPatch struct {
	AvaxPrice          decimal.Decimal
	TxIndex            int64
	LogIndex           int64
	AbsoluteTxPosition int64
}
