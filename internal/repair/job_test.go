package repair

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arena-token-ledger/internal/curve"
	"arena-token-ledger/internal/domain"
	"arena-token-ledger/internal/lock"
	"arena-token-ledger/internal/storage"
	"arena-token-ledger/internal/storage/memory"
)

type fakeIndex struct {
	mu     sync.Mutex
	trades map[string][]IndexTrade
	errs   map[string]error
	calls  []string
	onCall func(contract string)
}

func (f *fakeIndex) TokenTrades(_ context.Context, contract string) ([]IndexTrade, error) {
	f.mu.Lock()
	f.calls = append(f.calls, contract)
	hook := f.onCall
	f.mu.Unlock()
	if hook != nil {
		hook(contract)
	}
	if err := f.errs[contract]; err != nil {
		return nil, err
	}
	return append([]IndexTrade(nil), f.trades[contract]...), nil
}

type fixture struct {
	tokens      *memory.TokenStore
	trades      *memory.TradeStore
	checkpoints *memory.RepairCheckpointStore
	locker      *lock.MemoryLocker
	index       *fakeIndex
	job         *Job
}

func newFixture() *fixture {
	f := &fixture{
		tokens:      memory.NewTokenStore(),
		trades:      memory.NewTradeStore(),
		checkpoints: memory.NewRepairCheckpointStore(),
		locker:      lock.NewMemoryLocker(),
		index:       &fakeIndex{trades: map[string][]IndexTrade{}, errs: map[string]error{}},
	}
	f.job = NewJob(JobOptions{
		Tokens:      f.tokens,
		Trades:      f.trades,
		Checkpoints: f.checkpoints,
		Engine:      curve.NewEngine(curve.EngineOptions{Trades: f.trades, Anchors: memory.NewCurveAnchorStore()}),
		Index:       f.index,
		Locker:      f.locker,
	})
	return f
}

func contractFor(id int64) string {
	return fmt.Sprintf("0x%040d", id)
}

func (f *fixture) addToken(t *testing.T, id int64) *domain.Token {
	t.Helper()
	c := contractFor(id)
	tok := &domain.Token{InternalID: id, Name: fmt.Sprintf("T%d", id), ContractAddress: &c}
	require.NoError(t, f.tokens.Insert(context.Background(), tok))
	return tok
}

func indexRow(hash string, tokenEth, userEth string, order int64) IndexTrade {
	return IndexTrade{
		TransactionHash: hash,
		UserEth:         decimal.RequireFromString(userEth),
		TokenEth:        decimal.RequireFromString(tokenEth),
		AvaxPrice:       decimal.NewFromInt(20),
		BlockNumber:     100 + order,
		CreateTime:      1_700_000_000 + order,
		UserAddress:     "0xABC",
		TransactionIdx:  order,
		LogIdx:          1,
		AbsoluteOrder:   order,
	}
}

func genesisRows() []IndexTrade {
	return []IndexTrade{
		indexRow("0xgen", "1000", "-0.03", 1),
		indexRow("0xbuy", "500", "-0.02", 2),
		indexRow("0xsell", "-100", "0.004", 3),
	}
}

func TestRepairToken_InsertsWithGenesisPrice(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	tok := f.addToken(t, 1)
	f.index.trades[contractFor(1)] = genesisRows()

	res, err := f.job.RepairToken(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Fetched)
	assert.Equal(t, 3, res.Inserted)

	anchor, err := f.trades.GetAnchor(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "0xgen", anchor.TxHash)
	assert.True(t, anchor.PriceEth.Equal(decimal.RequireFromString("0.00003")), "genesis price_eth %s", anchor.PriceEth)
	assert.True(t, anchor.PriceAfterEth.Equal(anchor.PriceEth), "genesis price_after_eth %s", anchor.PriceAfterEth)
	assert.Equal(t, "0xabc", anchor.FromAddress)
	assert.Equal(t, "101_1_1", anchor.TxID)
	assert.Equal(t, int64(1_700_000_001_000), anchor.Timestamp)

	got, err := f.trades.GetByTxHashes(ctx, 1, []string{"0xbuy", "0xsell"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	byHash := map[string]*domain.Trade{got[0].TxHash: got[0], got[1].TxHash: got[1]}

	buy := byHash["0xbuy"]
	assert.Equal(t, domain.ActionBuy, buy.Action)
	assert.True(t, buy.PriceEth.Equal(decimal.RequireFromString("0.00004")), "buy price_eth %s", buy.PriceEth)
	assert.True(t, buy.PriceAfterEth.Equal(decimal.RequireFromString("0.0000675")), "buy price_after_eth %s", buy.PriceAfterEth)
	assert.True(t, buy.TransferredAvax.Equal(decimal.RequireFromString("0.02")))

	sell := byHash["0xsell"]
	assert.Equal(t, domain.ActionSell, sell.Action)
	assert.Equal(t, "100000000000000000000", sell.Amount.String())
	// supply 1500 - 100 = 1400
	assert.True(t, sell.PriceAfterEth.Equal(decimal.RequireFromString("0.0000588")), "sell price_after_eth %s", sell.PriceAfterEth)
}

func TestRepairToken_RerunIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	tok := f.addToken(t, 1)
	f.index.trades[contractFor(1)] = genesisRows()

	_, err := f.job.RepairToken(ctx, tok)
	require.NoError(t, err)

	res, err := f.job.RepairToken(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, 0, res.Patched)
	assert.Equal(t, 0, res.Existing)

	all, err := f.trades.GetByToken(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRepairToken_PatchesOrderingOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	tok := f.addToken(t, 1)
	rows := genesisRows()
	f.index.trades[contractFor(1)] = rows

	_, err := f.job.RepairToken(ctx, tok)
	require.NoError(t, err)

	before, err := f.trades.GetByTxHashes(ctx, 1, []string{"0xbuy"})
	require.NoError(t, err)
	require.Len(t, before, 1)

	rows[1].AbsoluteOrder = 20
	rows[1].LogIdx = 7
	rows[1].AvaxPrice = decimal.NewFromInt(21)
	f.index.trades[contractFor(1)] = rows

	res, err := f.job.RepairToken(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Patched)
	assert.Equal(t, 0, res.Inserted)

	after, err := f.trades.GetByTxHashes(ctx, 1, []string{"0xbuy"})
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, int64(20), after[0].AbsoluteTxPosition)
	assert.Equal(t, int64(7), after[0].LogIndex)
	assert.True(t, after[0].AvaxPrice.Equal(decimal.NewFromInt(21)))
	assert.True(t, after[0].PriceAfterEth.Equal(before[0].PriceAfterEth))
	assert.True(t, after[0].PriceUsd.Equal(before[0].PriceUsd))
}

func TestRepairToken_SkipsZeroAmountAndOrphanSells(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	tok := f.addToken(t, 1)
	f.index.trades[contractFor(1)] = []IndexTrade{
		indexRow("0xsell", "-5", "0.001", 1),
		indexRow("0xzero", "0", "0", 2),
	}

	res, err := f.job.RepairToken(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 0, res.Inserted)

	_, err = f.trades.GetAnchor(ctx, 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRepairToken_SkipsSellBeyondSupply(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	tok := f.addToken(t, 1)
	f.index.trades[contractFor(1)] = []IndexTrade{
		indexRow("0xgen", "1000", "-0.03", 1),
		indexRow("0xoversell", "-3000", "0.05", 2),
		indexRow("0xbuy", "500", "-0.02", 3),
	}

	res, err := f.job.RepairToken(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 1, res.Skipped)

	got, err := f.trades.GetByTxHashes(ctx, 1, []string{"0xoversell"})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = f.trades.GetByTxHashes(ctx, 1, []string{"0xbuy"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	// supply 1000 + 500 = 1500, unaffected by the rejected sell
	assert.True(t, got[0].PriceAfterEth.Equal(decimal.RequireFromString("0.0000675")), "buy price_after_eth %s", got[0].PriceAfterEth)
}

func TestRun_ResumesFromCheckpoint(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	for id := int64(1); id <= 3; id++ {
		f.addToken(t, id)
		rows := genesisRows()[:1]
		rows[0].TransactionHash = fmt.Sprintf("0xgen%d", id)
		f.index.trades[contractFor(id)] = rows
	}
	require.NoError(t, f.checkpoints.Save(ctx, &domain.RepairCheckpoint{JobID: "test", LastTokenID: 1}))

	res, err := f.job.Run(ctx, Options{FromID: 1, JobID: "test"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Tokens)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, int64(3), res.LastTokenID)
	assert.Equal(t, []string{contractFor(2), contractFor(3)}, f.index.calls)

	cp, err := f.checkpoints.Get(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, int64(3), cp.LastTokenID)
}

func TestRun_ContinuesAfterTokenFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	for id := int64(1); id <= 3; id++ {
		f.addToken(t, id)
		rows := genesisRows()[:1]
		rows[0].TransactionHash = fmt.Sprintf("0xgen%d", id)
		f.index.trades[contractFor(id)] = rows
	}
	f.index.errs[contractFor(2)] = errors.New("index down")

	res, err := f.job.Run(ctx, Options{FromID: 1, ToID: 3, BatchSize: 2, JobID: "test"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Tokens)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 2, res.Inserted)
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture()
	for id := int64(1); id <= 3; id++ {
		f.addToken(t, id)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.index.onCall = func(contract string) {
		if contract == contractFor(1) {
			cancel()
		}
	}

	_, err := f.job.Run(ctx, Options{FromID: 1, JobID: "test", TokenDelay: time.Millisecond})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{contractFor(1)}, f.index.calls)

	cp, err := f.checkpoints.Get(context.Background(), "test")
	if err == nil {
		assert.LessOrEqual(t, cp.LastTokenID, int64(1))
	} else {
		assert.ErrorIs(t, err, storage.ErrNotFound)
	}
}

func TestRun_LockHeld(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	release, err := f.locker.TryLock(ctx, LockKey, time.Minute)
	require.NoError(t, err)
	defer release(ctx)

	_, err = f.job.Run(ctx, Options{JobID: "test"})
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestRun_ResetOnComplete(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.addToken(t, 1)

	_, err := f.job.Run(ctx, Options{JobID: "cron", ResetOnComplete: true})
	require.NoError(t, err)

	cp, err := f.checkpoints.Get(ctx, "cron")
	require.NoError(t, err)
	assert.Equal(t, int64(0), cp.LastTokenID)
}
