// Package pricefeed keeps the AVAX/USD series current.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"arena-token-ledger/internal/httpx"
)

// Source fetches the current AVAX/USD quote.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (decimal.Decimal, error)
}

const (
	DefaultCoinGeckoURL = "https://api.coingecko.com"
	coinGeckoAvaxID     = "avalanche-2"
)

// CoinGeckoSource reads the simple price endpoint.
type CoinGeckoSource struct {
	baseURL string
	apiKey  string
	http    *httpx.Client
}

// NewCoinGeckoSource creates a source. apiKey is optional.
func NewCoinGeckoSource(baseURL, apiKey string, opts ...httpx.Option) *CoinGeckoSource {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = DefaultCoinGeckoURL
	}
	return &CoinGeckoSource{baseURL: base, apiKey: apiKey, http: httpx.New("coingecko", opts...)}
}

// Name implements Source.
func (s *CoinGeckoSource) Name() string { return "coingecko" }

// Fetch implements Source.
func (s *CoinGeckoSource) Fetch(ctx context.Context) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("ids", coinGeckoAvaxID)
	q.Set("vs_currencies", "usd")
	u := s.baseURL + "/api/v3/simple/price?" + q.Encode()

	body, err := s.http.Do(ctx, "simple_price", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if s.apiKey != "" {
			req.Header.Set("x-cg-demo-api-key", s.apiKey)
		}
		return req, nil
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("coingecko simple price: %w", err)
	}

	var resp map[string]map[string]decimal.Decimal
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("decode coingecko response: %w", err)
	}
	price, ok := resp[coinGeckoAvaxID]["usd"]
	if !ok {
		return decimal.Zero, fmt.Errorf("coingecko response has no %s/usd quote", coinGeckoAvaxID)
	}
	return price, nil
}
