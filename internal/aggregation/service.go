package aggregation

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"arena-token-ledger/internal/curve"
	"arena-token-ledger/internal/dexscreener"
	"arena-token-ledger/internal/domain"
	"arena-token-ledger/internal/evm"
	"arena-token-ledger/internal/observability"
	"arena-token-ledger/internal/storage"
)

// ErrInvalidTimeframe is returned for an unsupported candle timeframe.
var ErrInvalidTimeframe = fmt.Errorf("%w: unsupported timeframe", storage.ErrInvalidInput)

// BalanceOracle reads holder balances from chain.
type BalanceOracle interface {
	BalancesOf(ctx context.Context, token string, holders []string) []evm.BalanceResult
	TotalSupply(ctx context.Context, token string) (*big.Int, error)
}

// MarketFeed reads external pool data of migrated tokens.
type MarketFeed interface {
	Pair(ctx context.Context, pairAddress string) (*dexscreener.Pair, error)
}

// Holder is one token holder.
type Holder struct {
	Address string           `json:"address"`
	Balance *decimal.Decimal `json:"balance"`           // whole units, nil when the lookup failed
	Percent *decimal.Decimal `json:"percent_of_supply"` // nil when unknown
}

// HolderPage is a page of holders ordered by balance descending.
type HolderPage struct {
	Holders  []Holder `json:"holders"`
	Total    int      `json:"total"`
	Degraded bool     `json:"degraded"`
}

// Service composes store reads into reports.
type Service struct {
	tokens   storage.TokenStore
	trades   storage.TradeStore
	prices   storage.AvaxPriceStore
	candles  storage.CandleStore
	balances BalanceOracle
	market   MarketFeed
	logger   *zap.Logger
	now      func() time.Time
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	Tokens   storage.TokenStore
	Trades   storage.TradeStore
	Prices   storage.AvaxPriceStore
	Candles  storage.CandleStore // optional, candles are computed from the ledger without it
	Balances BalanceOracle       // optional
	Market   MarketFeed          // optional
	Logger   *zap.Logger
	Now      func() time.Time
}

// NewService creates an aggregation service.
func NewService(opts ServiceOptions) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		tokens:   opts.Tokens,
		trades:   opts.Trades,
		prices:   opts.Prices,
		candles:  opts.Candles,
		balances: opts.Balances,
		market:   opts.Market,
		logger:   opts.Logger,
		now:      opts.Now,
	}
}

// latestAvax returns the current AVAX/USD rate; ok is false when none is known.
func (s *Service) latestAvax(ctx context.Context) (decimal.Decimal, bool) {
	p, err := s.prices.Latest(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("latest avax price", zap.Error(err))
		}
		return decimal.Zero, false
	}
	return p.Price, true
}

// RecentTokens lists tokens newest first with their summaries.
// A token whose trades cannot be read is returned with Degraded set.
func (s *Service) RecentTokens(ctx context.Context, search string, limit, offset int) ([]*TokenSummary, error) {
	tokens, err := s.tokens.List(ctx, domain.TokenFilter{Search: search, Limit: limit, Offset: offset})
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}

	avax, avaxOK := s.latestAvax(ctx)
	now := s.now().UnixMilli()

	out := make([]*TokenSummary, 0, len(tokens))
	for _, tok := range tokens {
		trades, err := s.trades.GetByToken(ctx, tok.InternalID)
		if err != nil {
			s.logger.Warn("load trades for token summary",
				zap.Int64("token_id", tok.InternalID),
				zap.Error(err),
			)
			out = append(out, &TokenSummary{Token: tok, Windows: ComputeWindows(nil, now), Degraded: true})
			continue
		}
		sum := Summarize(tok, trades, avax, now)
		sum.Degraded = sum.Degraded || !avaxOK
		out = append(out, sum)
	}
	return out, nil
}

// TokenSummary returns the summary of one token. Tokens with a deployed
// pool get external market data attached; a feed failure leaves it nil.
func (s *Service) TokenSummary(ctx context.Context, internalID int64) (*TokenSummary, error) {
	tok, err := s.tokens.GetByInternalID(ctx, internalID)
	if err != nil {
		return nil, fmt.Errorf("get token %d: %w", internalID, err)
	}

	trades, err := s.trades.GetByToken(ctx, internalID)
	if err != nil {
		return nil, fmt.Errorf("get trades of token %d: %w", internalID, err)
	}

	avax, avaxOK := s.latestAvax(ctx)
	sum := Summarize(tok, trades, avax, s.now().UnixMilli())
	sum.Degraded = sum.Degraded || !avaxOK

	if tok.LPDeployed && tok.PairAddress != nil && s.market != nil {
		pair, err := s.market.Pair(ctx, *tok.PairAddress)
		if err != nil {
			s.logger.Warn("market data unavailable",
				zap.Int64("token_id", internalID),
				zap.String("pair", *tok.PairAddress),
				zap.Error(err),
			)
			sum.Degraded = true
		} else {
			sum.Market = pair
		}
	}
	return sum, nil
}

// TradeHistory returns a token's trades of any status, newest first.
func (s *Service) TradeHistory(ctx context.Context, internalID int64, limit, offset int) ([]*domain.Trade, error) {
	if _, err := s.tokens.GetByInternalID(ctx, internalID); err != nil {
		return nil, fmt.Errorf("get token %d: %w", internalID, err)
	}
	trades, err := s.trades.ListHistory(ctx, internalID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list trade history of token %d: %w", internalID, err)
	}
	return trades, nil
}

// Holders returns the token's holders with on-chain balances.
// Addresses come from the ledger; holders with a zero balance are dropped.
// A failed lookup keeps the holder with a nil balance and marks the page degraded.
func (s *Service) Holders(ctx context.Context, internalID int64, limit, offset int) (*HolderPage, error) {
	tok, err := s.tokens.GetByInternalID(ctx, internalID)
	if err != nil {
		return nil, fmt.Errorf("get token %d: %w", internalID, err)
	}

	trades, err := s.trades.GetByToken(ctx, internalID)
	if err != nil {
		return nil, fmt.Errorf("get trades of token %d: %w", internalID, err)
	}
	addrs := HolderAddresses(trades)

	page := &HolderPage{}
	if s.balances == nil || tok.ContractAddress == nil {
		page.Degraded = true
		holders := make([]Holder, 0, len(addrs))
		for _, a := range addrs {
			holders = append(holders, Holder{Address: a})
		}
		page.Total = len(holders)
		page.Holders = paginate(holders, limit, offset)
		return page, nil
	}

	contract := *tok.ContractAddress
	supply := s.holderSupply(ctx, contract, trades)

	type ranked struct {
		holder Holder
		raw    *big.Int
	}
	var rows []ranked
	for _, r := range s.balances.BalancesOf(ctx, contract, addrs) {
		if r.Err != nil {
			page.Degraded = true
			s.logger.Debug("holder balance lookup failed",
				zap.Int64("token_id", internalID),
				zap.String("holder", r.Holder),
				zap.Error(r.Err),
			)
			rows = append(rows, ranked{holder: Holder{Address: r.Holder}})
			continue
		}
		if r.Balance.Sign() == 0 {
			continue
		}
		bal := curve.SupplyDecimal(r.Balance)
		h := Holder{Address: r.Holder, Balance: &bal}
		if supply.IsPositive() {
			pct := bal.Mul(decimal.NewFromInt(100)).DivRound(supply, 8)
			h.Percent = &pct
		}
		rows = append(rows, ranked{holder: h, raw: r.Balance})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].raw, rows[j].raw
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Cmp(b) > 0
	})

	holders := make([]Holder, len(rows))
	for i, r := range rows {
		holders[i] = r.holder
	}
	page.Total = len(holders)
	page.Holders = paginate(holders, limit, offset)
	return page, nil
}

// holderSupply returns the on-chain total supply, falling back to the ledger.
func (s *Service) holderSupply(ctx context.Context, contract string, trades []*domain.Trade) decimal.Decimal {
	total, err := s.balances.TotalSupply(ctx, contract)
	if err == nil && total.Sign() > 0 {
		return curve.SupplyDecimal(total)
	}
	supply, _ := curve.ReportedSupply(TotalsOf(trades))
	return supply
}

// Candles returns candles of a token within [from, to] (ms). Stored candles are
// preferred; when none exist they are computed from the ledger.
func (s *Service) Candles(ctx context.Context, internalID int64, timeframe string, from, to int64) ([]*domain.Candle, error) {
	tf, ok := domain.CandleTimeframes[timeframe]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrInvalidTimeframe, timeframe)
	}
	if _, err := s.tokens.GetByInternalID(ctx, internalID); err != nil {
		return nil, fmt.Errorf("get token %d: %w", internalID, err)
	}

	if s.candles != nil {
		stored, err := s.candles.GetRange(ctx, internalID, tf, from, to)
		if err == nil && len(stored) > 0 {
			return stored, nil
		}
		if err != nil {
			s.logger.Warn("candle store read failed, computing from ledger",
				zap.Int64("token_id", internalID),
				zap.Error(err),
			)
		}
	}

	trades, err := s.trades.GetByTokenTimeRange(ctx, internalID, from, to)
	if err != nil {
		return nil, fmt.Errorf("get trades of token %d: %w", internalID, err)
	}
	return BuildCandles(internalID, trades, tf), nil
}

// RefreshCandles recomputes every timeframe's candles touched since the given
// time (ms) for tokens traded since then, and writes them to the candle store.
// It returns the number of candles written.
func (s *Service) RefreshCandles(ctx context.Context, since int64) (int, error) {
	if s.candles == nil {
		return 0, nil
	}

	tokenIDs, err := s.trades.TokensTradedSince(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("tokens traded since %d: %w", since, err)
	}

	var widest int64
	for _, tf := range domain.CandleTimeframes {
		if tf > widest {
			widest = tf
		}
	}
	loadFrom := floorDiv(since, widest*1000) * widest * 1000
	end := s.now().UnixMilli()

	written := 0
	for _, id := range tokenIDs {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		trades, err := s.trades.GetByTokenTimeRange(ctx, id, loadFrom, end)
		if err != nil {
			return written, fmt.Errorf("get trades of token %d: %w", id, err)
		}

		var batch []*domain.Candle
		for _, tf := range domain.CandleTimeframes {
			start := floorDiv(since, tf*1000) * tf * 1000
			window := make([]*domain.Trade, 0, len(trades))
			for _, t := range trades {
				if t.Timestamp >= start {
					window = append(window, t)
				}
			}
			batch = append(batch, BuildCandles(id, window, tf)...)
		}
		if len(batch) == 0 {
			continue
		}

		if err := s.candles.Upsert(ctx, batch); err != nil {
			return written, fmt.Errorf("upsert candles of token %d: %w", id, err)
		}
		written += len(batch)
	}

	observability.RecordCandlesWritten(written)
	return written, nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
