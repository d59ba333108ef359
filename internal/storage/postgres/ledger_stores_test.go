package postgres

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arena-token-ledger/internal/domain"
	"arena-token-ledger/internal/storage"
)

func TestPendingTradeStore_Queue(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPendingTradeStore(pool)

	late := &domain.PendingTrade{
		TokenID: 1, TxHash: "0xlate", TxID: "1_0_0", Action: domain.ActionBuy, Amount: e18(3),
		TransferredAvax: decimal.RequireFromString("0.1"), AvaxPrice: decimal.RequireFromString("30"),
		FromAddress: "0xa", Status: domain.StatusSuccess, Timestamp: 2000,
	}
	early := *late
	early.TxHash = "0xearly"
	early.Timestamp = 1000

	lateID, err := store.Insert(ctx, late)
	require.NoError(t, err)
	_, err = store.Insert(ctx, &early)
	require.NoError(t, err)

	rows, err := store.ListOrdered(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "0xearly", rows[0].TxHash)
	assert.Equal(t, 0, e18(3).Cmp(rows[1].Amount))
	assert.True(t, decimal.RequireFromString("0.1").Equal(rows[1].TransferredAvax))

	require.NoError(t, store.Delete(ctx, lateID))
	require.NoError(t, store.Delete(ctx, lateID))

	rows, err = store.ListOrdered(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestAvaxPriceStore_Latest(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewAvaxPriceStore(pool)

	_, err := store.Latest(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.Insert(ctx, &domain.AvaxPrice{Price: decimal.RequireFromString("35.12"), Source: "coingecko", FetchedAt: 2000}))
	require.NoError(t, store.Insert(ctx, &domain.AvaxPrice{Price: decimal.RequireFromString("34.00"), Source: "coingecko", FetchedAt: 1000}))
	assert.ErrorIs(t, store.Insert(ctx, &domain.AvaxPrice{Price: decimal.Zero, FetchedAt: 3000}), storage.ErrInvalidInput)

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("35.12").Equal(latest.Price))
	assert.Equal(t, int64(2000), latest.FetchedAt)
}

func TestCurveAnchorStore_Pinned(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCurveAnchorStore(pool)

	_, err := store.Get(ctx, 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	k := decimal.RequireFromString("0.000000036300000000000000000001")
	anchor := &domain.CurveAnchor{TokenID: 1, AnchorTxHash: "0xa", AnchorTimestamp: 1000, K: k, CreatedAt: 5000}
	require.NoError(t, store.Insert(ctx, anchor))

	other := *anchor
	other.AnchorTxHash = "0xb"
	assert.ErrorIs(t, store.Insert(ctx, &other), storage.ErrDuplicateKey)

	got, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "0xa", got.AnchorTxHash)
	assert.True(t, k.Equal(got.K))
}

func TestRepairCheckpointStore_Upsert(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRepairCheckpointStore(pool)

	_, err := store.Get(ctx, "default")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.Save(ctx, &domain.RepairCheckpoint{JobID: "default", LastTokenID: 10, UpdatedAt: 1}))
	require.NoError(t, store.Save(ctx, &domain.RepairCheckpoint{JobID: "default", LastTokenID: 25, UpdatedAt: 2}))

	cp, err := store.Get(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, int64(25), cp.LastTokenID)
	assert.Equal(t, int64(2), cp.UpdatedAt)
}
