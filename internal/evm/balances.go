package evm

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// BalanceReader fans balance lookups out over a bounded worker pool.
type BalanceReader struct {
	oracle Oracle
	pool   *ants.Pool
}

// NewBalanceReader creates a reader running at most size lookups at once.
// Submissions wait while the pool is busy; more than maxQueued waiting
// submissions fail with ants.ErrPoolOverload.
func NewBalanceReader(oracle Oracle, size, maxQueued int) (*BalanceReader, error) {
	pool, err := ants.NewPool(size, ants.WithMaxBlockingTasks(maxQueued))
	if err != nil {
		return nil, fmt.Errorf("create balance pool: %w", err)
	}
	return &BalanceReader{oracle: oracle, pool: pool}, nil
}

// BalancesOf looks up every holder. Results keep the order of holders;
// failed lookups carry Err instead of a balance.
func (r *BalanceReader) BalancesOf(ctx context.Context, token string, holders []string) []BalanceResult {
	results := make([]BalanceResult, len(holders))
	var wg sync.WaitGroup

	for i, holder := range holders {
		results[i].Holder = holder
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}

		wg.Add(1)
		err := r.pool.Submit(func() {
			defer wg.Done()
			bal, err := r.oracle.BalanceOf(ctx, token, holder)
			results[i].Balance = bal
			results[i].Err = err
		})
		if err != nil {
			wg.Done()
			results[i].Err = fmt.Errorf("submit balance lookup: %w", err)
		}
	}

	wg.Wait()
	return results
}

// TotalSupply delegates to the underlying oracle.
func (r *BalanceReader) TotalSupply(ctx context.Context, token string) (*big.Int, error) {
	return r.oracle.TotalSupply(ctx, token)
}

// Release stops the worker pool.
func (r *BalanceReader) Release() {
	r.pool.Release()
}
