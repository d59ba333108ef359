// Package evm reads ERC-20 state over Ethereum JSON-RPC.
package evm

import (
	"context"
	"errors"
	"math/big"
)

// Oracle reads token balances from chain.
type Oracle interface {
	// BalanceOf returns the holder's balance in base units.
	BalanceOf(ctx context.Context, token, holder string) (*big.Int, error)

	// Decimals returns the token's decimals.
	Decimals(ctx context.Context, token string) (uint8, error)

	// TotalSupply returns the token's total supply in base units.
	TotalSupply(ctx context.Context, token string) (*big.Int, error)
}

// BalanceResult is the outcome of one holder lookup in a fan-out.
type BalanceResult struct {
	Holder  string
	Balance *big.Int // nil when Err is set
	Err     error
}

var (
	// ErrInvalidAddress is returned for a malformed hex address.
	ErrInvalidAddress = errors.New("evm: invalid address")

	// ErrEmptyResult is returned when eth_call returns no data, e.g. no contract at the address.
	ErrEmptyResult = errors.New("evm: empty call result")
)
