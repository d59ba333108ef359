// Package curve derives bonding-curve prices and supply from the trade ledger.
//
// The curve is price = k * supply², with k fixed by the token's first successful
// "initial buy":
//
//	k = anchor.price_after_eth / (anchor.amount / 1e18)²
//
// Base-unit amounts are math/big integers and every fractional value is a
// shopspring/decimal; no float64 is used.
package curve

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"arena-token-ledger/internal/domain"
	"arena-token-ledger/internal/storage"
)

// Decimals is the fixed-point scale of token base units.
const Decimals = 18

// divisionPrecision is the number of fractional digits kept by divisions.
const divisionPrecision = 48

var (
	// ErrUnavailable is returned when a token has no anchor yet.
	// Callers must not write partial records.
	ErrUnavailable = errors.New("curve: price unavailable without anchor")

	// ErrZeroAmount is returned for trades that move no tokens.
	ErrZeroAmount = errors.New("curve: zero trade amount")

	// ErrInvalidAnchor is returned when the anchor is not a successful initial buy.
	ErrInvalidAnchor = errors.New("curve: anchor is not a successful initial buy")

	// ErrNegativeSupply is returned when a trade would take derived supply
	// below zero. The ledger is missing buys or holds a bad row.
	ErrNegativeSupply = errors.New("curve: derived supply would be negative")

	// ErrPrecision is returned when a decimal has more than 18 fractional digits.
	ErrPrecision = errors.New("curve: value exceeds base-unit precision")
)

// Input is the trade being priced.
type Input struct {
	Action          domain.Action
	Amount          *big.Int        // base units, unsigned
	TransferredAvax decimal.Decimal // native currency paid or received
	AvaxPrice       decimal.Decimal // AVAX/USD captured with the trade
}

// Prices are the derived fields of a trade.
type Prices struct {
	PriceEth      decimal.Decimal
	PriceUsd      decimal.Decimal
	PriceAfterEth decimal.Decimal
	PriceAfterUsd decimal.Decimal
	SupplyAfter   decimal.Decimal // whole units, after this trade
}

// SupplyDecimal converts base units to whole units. The conversion is exact.
func SupplyDecimal(amount *big.Int) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -Decimals)
}

// ToBaseUnits converts whole units back to base units.
// Returns ErrPrecision if d carries more than 18 fractional digits.
func ToBaseUnits(d decimal.Decimal) (*big.Int, error) {
	shifted := d.Shift(Decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("%w: %s", ErrPrecision, d)
	}
	return shifted.BigInt(), nil
}

// Coefficient computes k from an anchor trade.
func Coefficient(anchor *domain.Trade) (decimal.Decimal, error) {
	if anchor == nil {
		return decimal.Zero, ErrUnavailable
	}
	if anchor.Action != domain.ActionInitialBuy || anchor.Status != domain.StatusSuccess {
		return decimal.Zero, ErrInvalidAnchor
	}
	if anchor.Amount == nil || anchor.Amount.Sign() == 0 {
		return decimal.Zero, ErrZeroAmount
	}

	supply := SupplyDecimal(anchor.Amount)
	return anchor.PriceAfterEth.DivRound(supply.Mul(supply), divisionPrecision), nil
}

// PriceAt returns the curve price at a supply in whole units.
func PriceAt(k, supply decimal.Decimal) decimal.Decimal {
	return k.Mul(supply).Mul(supply)
}

// Derive prices a trade against k and the totals of already committed trades.
// The totals must exclude the trade itself.
func Derive(in Input, k decimal.Decimal, totals storage.Totals) (Prices, error) {
	if !in.Action.Valid() {
		return Prices{}, fmt.Errorf("curve: unknown action %q", in.Action)
	}
	if in.Amount == nil || in.Amount.Sign() == 0 {
		return Prices{}, ErrZeroAmount
	}

	amount := SupplyDecimal(in.Amount)
	priceEth := in.TransferredAvax.DivRound(amount, divisionPrecision)

	bought := new(big.Int)
	if totals.InitialBuy != nil {
		bought.Add(bought, totals.InitialBuy)
	}
	if totals.Buy != nil {
		bought.Add(bought, totals.Buy)
	}
	net := bought
	if totals.Sell != nil {
		net.Sub(net, totals.Sell)
	}

	supplyAfter := SupplyDecimal(net)
	if in.Action.IsBuy() {
		supplyAfter = supplyAfter.Add(amount)
	} else {
		supplyAfter = supplyAfter.Sub(amount)
	}
	if supplyAfter.IsNegative() {
		return Prices{}, fmt.Errorf("%w: %s after %s", ErrNegativeSupply, supplyAfter, in.Action)
	}

	priceAfterEth := PriceAt(k, supplyAfter)

	return Prices{
		PriceEth:      priceEth,
		PriceUsd:      priceEth.Mul(in.AvaxPrice),
		PriceAfterEth: priceAfterEth,
		PriceAfterUsd: priceAfterEth.Mul(in.AvaxPrice),
		SupplyAfter:   supplyAfter,
	}, nil
}

// GenesisPrices prices an initial buy that has no anchor to derive from.
// The realized execution price becomes the recorded post-trade price.
func GenesisPrices(in Input) (Prices, error) {
	if in.Amount == nil || in.Amount.Sign() == 0 {
		return Prices{}, ErrZeroAmount
	}

	amount := SupplyDecimal(in.Amount)
	priceEth := in.TransferredAvax.DivRound(amount, divisionPrecision)
	priceUsd := priceEth.Mul(in.AvaxPrice)

	return Prices{
		PriceEth:      priceEth,
		PriceUsd:      priceUsd,
		PriceAfterEth: priceEth,
		PriceAfterUsd: priceUsd,
		SupplyAfter:   amount,
	}, nil
}
