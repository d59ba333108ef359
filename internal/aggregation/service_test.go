package aggregation

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arena-token-ledger/internal/dexscreener"
	"arena-token-ledger/internal/domain"
	"arena-token-ledger/internal/evm"
	"arena-token-ledger/internal/storage"
	"arena-token-ledger/internal/storage/memory"
)

type stubOracle struct {
	balances map[string]*big.Int
	supply   *big.Int
}

func (o *stubOracle) BalancesOf(_ context.Context, _ string, holders []string) []evm.BalanceResult {
	out := make([]evm.BalanceResult, len(holders))
	for i, h := range holders {
		out[i].Holder = h
		if b, ok := o.balances[h]; ok {
			out[i].Balance = b
		} else {
			out[i].Err = errors.New("rpc down")
		}
	}
	return out
}

func (o *stubOracle) TotalSupply(context.Context, string) (*big.Int, error) {
	if o.supply == nil {
		return nil, errors.New("rpc down")
	}
	return o.supply, nil
}

type stubMarket struct {
	pair *dexscreener.Pair
	err  error
}

func (m *stubMarket) Pair(context.Context, string) (*dexscreener.Pair, error) {
	return m.pair, m.err
}

type serviceFixture struct {
	tokens  *memory.TokenStore
	trades  *memory.TradeStore
	prices  *memory.AvaxPriceStore
	candles *memory.CandleStore
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	ctx := context.Background()
	f := &serviceFixture{
		tokens:  memory.NewTokenStore(),
		trades:  memory.NewTradeStore(),
		prices:  memory.NewAvaxPriceStore(),
		candles: memory.NewCandleStore(),
	}

	contract := "0x1111111111111111111111111111111111111111"
	require.NoError(t, f.tokens.Insert(ctx, &domain.Token{InternalID: 1, Name: "Kitty", Symbol: "KIT", ContractAddress: &contract}))
	require.NoError(t, f.prices.Insert(ctx, &domain.AvaxPrice{Price: decimal.NewFromInt(25), Source: "test", FetchedAt: 1}))

	anchor := priced("0xa1", 1_000, 1, "0.00003", "0.03")
	anchor.Action = domain.ActionInitialBuy
	anchor.Amount = e18(1000)
	anchor.FromAddress = "0xaaa"

	buy := priced("0xb1", 61_000, 2, "0.0000675", "0.02")
	buy.Amount = e18(500)
	buy.FromAddress = "0xbbb"

	sell := priced("0xc1", 62_000, 3, "0.00005", "0.01")
	sell.Action = domain.ActionSell
	sell.Amount = e18(100)
	sell.FromAddress = "0xccc"

	for _, tr := range []*domain.Trade{anchor, buy, sell} {
		require.NoError(t, f.trades.Insert(ctx, tr))
	}
	return f
}

func (f *serviceFixture) service(opts ServiceOptions) *Service {
	opts.Tokens = f.tokens
	opts.Trades = f.trades
	opts.Prices = f.prices
	opts.Now = func() time.Time { return time.UnixMilli(120_000) }
	return NewService(opts)
}

func TestService_TokenSummary(t *testing.T) {
	f := newServiceFixture(t)
	svc := f.service(ServiceOptions{})

	sum, err := svc.TokenSummary(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, sum.LatestPriceEth.Equal(decimal.RequireFromString("0.00005")))
	assert.True(t, sum.Supply.Equal(decimal.NewFromInt(1400)))
	assert.Equal(t, 3, sum.TxCount)
	assert.Equal(t, 3, sum.HolderCount)
	assert.Nil(t, sum.Market)
	assert.False(t, sum.Degraded)

	_, err = svc.TokenSummary(context.Background(), 99)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestService_TokenSummary_MarketData(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	require.NoError(t, f.tokens.MarkLPDeployed(ctx, 1, "0xpair"))

	price := decimal.RequireFromString("0.001")
	svc := f.service(ServiceOptions{Market: &stubMarket{pair: &dexscreener.Pair{PairAddress: "0xpair", PriceUsd: &price}}})
	sum, err := svc.TokenSummary(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, sum.Market)
	assert.Equal(t, "0xpair", sum.Market.PairAddress)

	svc = f.service(ServiceOptions{Market: &stubMarket{err: errors.New("feed down")}})
	sum, err = svc.TokenSummary(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, sum.Market)
	assert.True(t, sum.Degraded)
}

func TestService_RecentTokens(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	require.NoError(t, f.tokens.Insert(ctx, &domain.Token{InternalID: 2, Name: "Doge", Symbol: "DOGE"}))
	svc := f.service(ServiceOptions{})

	list, err := svc.RecentTokens(ctx, "", 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(2), list[0].Token.InternalID)
	assert.Equal(t, 0, list[0].TxCount)
	assert.Equal(t, 3, list[1].TxCount)

	list, err = svc.RecentTokens(ctx, "kit", 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Kitty", list[0].Token.Name)
}

func TestService_Holders(t *testing.T) {
	f := newServiceFixture(t)
	oracle := &stubOracle{
		balances: map[string]*big.Int{
			"0xaaa": e18(900),
			"0xccc": big.NewInt(0),
		},
		supply: e18(1000),
	}
	svc := f.service(ServiceOptions{Balances: oracle})

	page, err := svc.Holders(context.Background(), 1, 10, 0)
	require.NoError(t, err)
	assert.True(t, page.Degraded)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Holders, 2)

	top := page.Holders[0]
	assert.Equal(t, "0xaaa", top.Address)
	require.NotNil(t, top.Balance)
	assert.True(t, top.Balance.Equal(decimal.NewFromInt(900)))
	require.NotNil(t, top.Percent)
	assert.True(t, top.Percent.Equal(decimal.NewFromInt(90)))

	assert.Equal(t, "0xbbb", page.Holders[1].Address)
	assert.Nil(t, page.Holders[1].Balance)
}

func TestService_Holders_WithoutOracle(t *testing.T) {
	f := newServiceFixture(t)
	svc := f.service(ServiceOptions{})

	page, err := svc.Holders(context.Background(), 1, 2, 1)
	require.NoError(t, err)
	assert.True(t, page.Degraded)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Holders, 2)
	assert.Equal(t, "0xbbb", page.Holders[0].Address)
}

func TestService_TradeHistory(t *testing.T) {
	f := newServiceFixture(t)
	svc := f.service(ServiceOptions{})

	trades, err := svc.TradeHistory(context.Background(), 1, 2, 0)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "0xc1", trades[0].TxHash)
	assert.Equal(t, "0xb1", trades[1].TxHash)
}

func TestService_CandlesFallbackAndRefresh(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	svc := f.service(ServiceOptions{Candles: f.candles})

	_, err := svc.Candles(ctx, 1, "7m", 0, 120_000)
	assert.ErrorIs(t, err, ErrInvalidTimeframe)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	// Store is empty: computed from the ledger.
	computed, err := svc.Candles(ctx, 1, "1m", 0, 120_000)
	require.NoError(t, err)
	require.Len(t, computed, 2)
	assert.Equal(t, int64(2), computed[1].Trades)

	n, err := svc.RefreshCandles(ctx, 0)
	require.NoError(t, err)
	assert.Greater(t, n, 0)

	stored, err := f.candles.GetRange(ctx, 1, 60, 0, 120_000)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.True(t, stored[1].Close.Equal(decimal.RequireFromString("0.00005")))

	fromStore, err := svc.Candles(ctx, 1, "1m", 0, 120_000)
	require.NoError(t, err)
	assert.Len(t, fromStore, 2)
}
