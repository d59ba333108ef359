package dexscreener

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"arena-token-ledger/internal/cache"
	"arena-token-ledger/internal/httpx"
)

const pairBody = `{"schemaVersion":"1.0.0","pairs":[{"chainId":"avalanche","dexId":"traderjoe",
"pairAddress":"0xpair","priceNative":"0.00004","priceUsd":"0.0008",
"liquidity":{"usd":12345.67},"volume":{"h24":999.5,"h1":10},"fdv":80000,"marketCap":80000}]}`

func TestClient_Pair(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/latest/dex/pairs/avalanche/0xpair" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(pairBody))
	}))
	defer server.Close()

	c := NewClient(Options{BaseURL: server.URL, Cache: cache.NewMemoryStore()})
	ctx := context.Background()

	p, err := c.Pair(ctx, "0xPAIR")
	if err != nil {
		t.Fatalf("Pair: %v", err)
	}
	if p.PriceUsd == nil || !p.PriceUsd.Equal(decimal.RequireFromString("0.0008")) {
		t.Errorf("expected priceUsd 0.0008, got %v", p.PriceUsd)
	}
	if p.Liquidity == nil || p.Liquidity.Usd == nil || !p.Liquidity.Usd.Equal(decimal.RequireFromString("12345.67")) {
		t.Errorf("unexpected liquidity %+v", p.Liquidity)
	}
	if p.Volume == nil || p.Volume.H24 == nil || !p.Volume.H24.Equal(decimal.RequireFromString("999.5")) {
		t.Errorf("unexpected volume %+v", p.Volume)
	}

	// Second call is served from cache.
	if _, err := c.Pair(ctx, "0xpair"); err != nil {
		t.Fatalf("Pair (cached): %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 upstream call, got %d", calls.Load())
	}
}

func TestClient_PairNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"schemaVersion":"1.0.0","pairs":null}`))
	}))
	defer server.Close()

	c := NewClient(Options{BaseURL: server.URL})
	_, err := c.Pair(context.Background(), "0xnone")
	if !errors.Is(err, ErrPairNotFound) {
		t.Errorf("expected ErrPairNotFound, got %v", err)
	}
}

func TestClient_UpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient(Options{
		BaseURL: server.URL,
		HTTP:    []httpx.Option{httpx.WithMaxRetries(1), httpx.WithRetryDelay(time.Millisecond)},
	})
	if _, err := c.Pair(context.Background(), "0xpair"); err == nil {
		t.Fatal("expected error from failing upstream")
	}
}
