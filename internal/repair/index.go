package repair

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"arena-token-ledger/internal/httpx"
)

const (
	DefaultIndexURL      = "https://api.arenapro.io"
	DefaultIndexPageSize = 1000
)

// IndexTrade is one row of the external trade index.
type IndexTrade struct {
	TransactionHash string          `json:"transaction_hash"`
	UserEth         decimal.Decimal `json:"user_eth"`  // native amount, signed
	TokenEth        decimal.Decimal `json:"token_eth"` // whole token units, negative for sells
	AvaxPrice       decimal.Decimal `json:"avax_price"`
	BlockNumber     int64           `json:"block_number"`
	CreateTime      int64           `json:"create_time"` // Unix seconds
	UserAddress     string          `json:"user_address"`
	TransactionIdx  int64           `json:"transaction_idx"`
	LogIdx          int64           `json:"log_idx"`
	AbsoluteOrder   int64           `json:"absolute_order"`
	TokenID         int64           `json:"token_id"`
}

// TradeIndex lists a token's trades from an external source.
type TradeIndex interface {
	// TokenTrades returns all trades of a contract ordered by absolute_order ASC.
	TokenTrades(ctx context.Context, contract string) ([]IndexTrade, error)
}

// IndexClient reads the token_trades_view endpoint.
type IndexClient struct {
	baseURL  string
	pageSize int
	http     *httpx.Client
}

// NewIndexClient creates an index client. pageSize <= 0 uses DefaultIndexPageSize.
func NewIndexClient(baseURL string, pageSize int, opts ...httpx.Option) *IndexClient {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = DefaultIndexURL
	}
	if pageSize <= 0 {
		pageSize = DefaultIndexPageSize
	}
	return &IndexClient{
		baseURL:  base,
		pageSize: pageSize,
		http:     httpx.New("trade_index", opts...),
	}
}

// TokenTrades pages through the index until a short page is returned.
func (c *IndexClient) TokenTrades(ctx context.Context, contract string) ([]IndexTrade, error) {
	contract = strings.ToLower(strings.TrimSpace(contract))
	var all []IndexTrade

	for offset := 0; ; offset += c.pageSize {
		q := url.Values{}
		q.Set("token_contract_address", "eq."+contract)
		q.Set("order", "absolute_order.asc")
		q.Set("limit", strconv.Itoa(c.pageSize))
		q.Set("offset", strconv.Itoa(offset))
		u := c.baseURL + "/token_trades_view?" + q.Encode()

		body, err := c.http.Do(ctx, "token_trades_view", func(ctx context.Context) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Accept", "application/json")
			return req, nil
		})
		if err != nil {
			return nil, fmt.Errorf("fetch trades of %s at offset %d: %w", contract, offset, err)
		}

		var page []IndexTrade
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("decode trades of %s: %w", contract, err)
		}
		all = append(all, page...)

		if len(page) < c.pageSize {
			break
		}
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].AbsoluteOrder < all[j].AbsoluteOrder })
	return all, nil
}

var _ TradeIndex = (*IndexClient)(nil)
