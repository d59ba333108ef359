// Package dexscreener reads market data of migrated tokens from the DexScreener API.
package dexscreener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"arena-token-ledger/internal/cache"
	"arena-token-ledger/internal/httpx"
)

const (
	DefaultBaseURL = "https://api.dexscreener.com"
	DefaultChain   = "avalanche"
	DefaultTTL     = 30 * time.Second
)

// ErrPairNotFound is returned when the API knows no pair at the address.
var ErrPairNotFound = errors.New("dexscreener: pair not found")

// Pair is the subset of pair data the API layer reports.
type Pair struct {
	ChainID     string           `json:"chainId"`
	DexID       string           `json:"dexId"`
	PairAddress string           `json:"pairAddress"`
	PriceNative *decimal.Decimal `json:"priceNative,omitempty"`
	PriceUsd    *decimal.Decimal `json:"priceUsd,omitempty"`
	FDV         *decimal.Decimal `json:"fdv,omitempty"`
	MarketCap   *decimal.Decimal `json:"marketCap,omitempty"`
	Liquidity   *struct {
		Usd *decimal.Decimal `json:"usd,omitempty"`
	} `json:"liquidity,omitempty"`
	Volume *struct {
		H24 *decimal.Decimal `json:"h24,omitempty"`
		H6  *decimal.Decimal `json:"h6,omitempty"`
		H1  *decimal.Decimal `json:"h1,omitempty"`
		M5  *decimal.Decimal `json:"m5,omitempty"`
	} `json:"volume,omitempty"`
	PriceChange *struct {
		H24 *decimal.Decimal `json:"h24,omitempty"`
		H6  *decimal.Decimal `json:"h6,omitempty"`
		H1  *decimal.Decimal `json:"h1,omitempty"`
		M5  *decimal.Decimal `json:"m5,omitempty"`
	} `json:"priceChange,omitempty"`
}

type pairsResponse struct {
	Pairs []Pair `json:"pairs"`
	Pair  *Pair  `json:"pair"`
}

// Client fetches pair data, caching raw responses.
type Client struct {
	baseURL string
	chain   string
	http    *httpx.Client
	cache   cache.Store
	ttl     time.Duration
}

// Options configures a Client.
type Options struct {
	BaseURL string        // Default: DefaultBaseURL
	Chain   string        // Default: DefaultChain
	Cache   cache.Store   // optional
	TTL     time.Duration // Default: DefaultTTL
	HTTP    []httpx.Option
}

// NewClient creates a DexScreener client.
func NewClient(opts Options) *Client {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	chain := opts.Chain
	if chain == "" {
		chain = DefaultChain
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Client{
		baseURL: base,
		chain:   chain,
		http:    httpx.New("dexscreener", opts.HTTP...),
		cache:   opts.Cache,
		ttl:     ttl,
	}
}

// Pair returns market data of a pair.
func (c *Client) Pair(ctx context.Context, pairAddress string) (*Pair, error) {
	raw, err := c.PairRaw(ctx, pairAddress)
	if err != nil {
		return nil, err
	}

	var resp pairsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode pair response: %w", err)
	}
	if resp.Pair != nil {
		return resp.Pair, nil
	}
	if len(resp.Pairs) == 0 {
		return nil, ErrPairNotFound
	}
	return &resp.Pairs[0], nil
}

// PairRaw returns the API response body for a pair.
func (c *Client) PairRaw(ctx context.Context, pairAddress string) (json.RawMessage, error) {
	pair := strings.ToLower(strings.TrimSpace(pairAddress))
	if pair == "" {
		return nil, errors.New("dexscreener: pair address required")
	}

	key := "dexscreener:pairs:" + c.chain + ":" + pair
	if c.cache != nil {
		if b, found, err := c.cache.Get(ctx, key); err == nil && found && json.Valid(b) {
			return json.RawMessage(b), nil
		}
	}

	u := fmt.Sprintf("%s/latest/dex/pairs/%s/%s", c.baseURL, url.PathEscape(c.chain), url.PathEscape(pair))
	b, err := c.http.Do(ctx, "pairs", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("dexscreener pairs: %w", err)
	}
	if !json.Valid(b) {
		return nil, errors.New("dexscreener: invalid json response")
	}

	if c.cache != nil {
		_ = c.cache.Set(ctx, key, b, c.ttl)
	}
	return json.RawMessage(b), nil
}
