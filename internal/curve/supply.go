package curve

import (
	"math/big"

	"github.com/shopspring/decimal"

	"arena-token-ledger/internal/storage"
)

// NetSupply returns initial + Σbuy − Σsell in base units. The result may be negative
// for tokens whose sells exceed recorded buys.
func NetSupply(totals storage.Totals) *big.Int {
	net := new(big.Int)
	if totals.InitialBuy != nil {
		net.Add(net, totals.InitialBuy)
	}
	if totals.Buy != nil {
		net.Add(net, totals.Buy)
	}
	if totals.Sell != nil {
		net.Sub(net, totals.Sell)
	}
	return net
}

// ReportedSupply returns the supply in whole units for display, clamped at zero.
// ok is false when the ledger implies a negative supply.
func ReportedSupply(totals storage.Totals) (supply decimal.Decimal, ok bool) {
	net := NetSupply(totals)
	if net.Sign() < 0 {
		return decimal.Zero, false
	}
	return SupplyDecimal(net), true
}

// MarketCap returns supply × latest USD price.
// A token with non-positive net supply reports zero, never a negative value.
func MarketCap(totals storage.Totals, latestPriceUsd decimal.Decimal) decimal.Decimal {
	net := NetSupply(totals)
	if net.Sign() <= 0 {
		return decimal.Zero
	}
	return SupplyDecimal(net).Mul(latestPriceUsd)
}
