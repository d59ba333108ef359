package postgres

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arena-token-ledger/internal/domain"
	"arena-token-ledger/internal/storage"
)

func e18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func testTrade(tokenID, pos int64, action domain.Action, amount *big.Int) *domain.Trade {
	return &domain.Trade{
		TokenID:            tokenID,
		TxHash:             fmt.Sprintf("0xhash-%d-%d", tokenID, pos),
		TxID:               domain.TxID(100+pos, 0, 1),
		Action:             action,
		Amount:             amount,
		TransferredAvax:    decimal.RequireFromString("0.0363"),
		AvaxPrice:          decimal.RequireFromString("35.5"),
		FromAddress:        "0xbuyer",
		Status:             domain.StatusSuccess,
		BlockNumber:        100 + pos,
		LogIndex:           1,
		AbsoluteTxPosition: pos,
		Timestamp:          1_700_000_000_000 + pos*1000,
		PriceEth:           decimal.RequireFromString("0.0000363"),
		PriceUsd:           decimal.RequireFromString("0.00128865"),
		PriceAfterEth:      decimal.RequireFromString("0.000039675"),
		PriceAfterUsd:      decimal.RequireFromString("0.0014084625"),
	}
}

func TestTradeStore_InsertAndGetByToken(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	tr := testTrade(1, 10, domain.ActionInitialBuy, e18(1000))
	tr.Referrer = ptr("0xref")
	require.NoError(t, store.Insert(ctx, tr))
	assert.NotZero(t, tr.ID)

	got, err := store.GetByToken(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, tr.TxHash, got[0].TxHash)
	assert.Equal(t, domain.ActionInitialBuy, got[0].Action)
	assert.Equal(t, 0, e18(1000).Cmp(got[0].Amount))
	assert.True(t, tr.PriceEth.Equal(got[0].PriceEth))
	assert.True(t, tr.PriceAfterUsd.Equal(got[0].PriceAfterUsd))
	assert.True(t, tr.AvaxPrice.Equal(got[0].AvaxPrice))
	require.NotNil(t, got[0].Referrer)
	assert.Equal(t, "0xref", *got[0].Referrer)
}

func TestTradeStore_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	tr := testTrade(1, 10, domain.ActionBuy, e18(5))
	require.NoError(t, store.Insert(ctx, tr))

	err := store.Insert(ctx, testTrade(1, 10, domain.ActionBuy, e18(5)))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestTradeStore_GetAnchor(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	_, err := store.GetAnchor(ctx, 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	later := testTrade(1, 20, domain.ActionInitialBuy, e18(10))
	earlier := testTrade(1, 5, domain.ActionInitialBuy, e18(20))
	failed := testTrade(1, 1, domain.ActionInitialBuy, e18(30))
	failed.Status = domain.StatusFailed
	for _, tr := range []*domain.Trade{later, earlier, failed} {
		require.NoError(t, store.Insert(ctx, tr))
	}

	anchor, err := store.GetAnchor(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, earlier.TxHash, anchor.TxHash)
}

func TestTradeStore_SumByAction(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	failed := testTrade(1, 4, domain.ActionBuy, e18(999))
	failed.Status = domain.StatusFailed
	for _, tr := range []*domain.Trade{
		testTrade(1, 1, domain.ActionInitialBuy, e18(1000)),
		testTrade(1, 2, domain.ActionBuy, e18(50)),
		testTrade(1, 3, domain.ActionSell, e18(20)),
		failed,
		testTrade(2, 5, domain.ActionBuy, e18(7)),
	} {
		require.NoError(t, store.Insert(ctx, tr))
	}

	totals, err := store.SumByAction(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, e18(1000).Cmp(totals.InitialBuy))
	assert.Equal(t, 0, e18(50).Cmp(totals.Buy))
	assert.Equal(t, 0, e18(20).Cmp(totals.Sell))

	empty, err := store.SumByAction(ctx, 42)
	require.NoError(t, err)
	assert.Zero(t, empty.Buy.Sign())
}

func TestTradeStore_ListHistoryAndRange(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	for pos := int64(1); pos <= 5; pos++ {
		require.NoError(t, store.Insert(ctx, testTrade(1, pos, domain.ActionBuy, e18(pos))))
	}

	history, err := store.ListHistory(ctx, 1, 2, 1)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, int64(4), history[0].AbsoluteTxPosition)
	assert.Equal(t, int64(3), history[1].AbsoluteTxPosition)

	all, err := store.ListHistory(ctx, 1, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	ranged, err := store.GetByTokenTimeRange(ctx, 1, 1_700_000_002_000, 1_700_000_004_000)
	require.NoError(t, err)
	require.Len(t, ranged, 3)
	assert.Equal(t, int64(2), ranged[0].AbsoluteTxPosition)

	ids, err := store.TokensTradedSince(ctx, 1_700_000_005_000)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)
}

func TestTradeStore_PatchOrdering(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	tr := testTrade(1, 10, domain.ActionBuy, e18(5))
	require.NoError(t, store.Insert(ctx, tr))

	patch := domain.OrderingPatch{
		AvaxPrice:          decimal.RequireFromString("40.25"),
		TxIndex:            3,
		LogIndex:           7,
		AbsoluteTxPosition: 99,
	}
	require.NoError(t, store.PatchOrdering(ctx, tr.TxHash, patch))

	got, err := store.GetByTxHashes(ctx, 1, []string{tr.TxHash, "0xmissing"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, patch.AvaxPrice.Equal(got[0].AvaxPrice))
	assert.Equal(t, int64(99), got[0].AbsoluteTxPosition)
	assert.True(t, tr.PriceEth.Equal(got[0].PriceEth), "price fields must not change")

	err = store.PatchOrdering(ctx, "0xmissing", patch)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
