package repair

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arena-token-ledger/internal/httpx"
)

func TestIndexClient_Paginates(t *testing.T) {
	const total = 5
	var offsets []int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/token_trades_view", r.URL.Path)
		assert.Equal(t, "eq.0xabc", q.Get("token_contract_address"))
		assert.Equal(t, "absolute_order.asc", q.Get("order"))

		limit, _ := strconv.Atoi(q.Get("limit"))
		offset, _ := strconv.Atoi(q.Get("offset"))
		offsets = append(offsets, offset)

		var page []map[string]any
		for i := offset; i < total && i < offset+limit; i++ {
			page = append(page, map[string]any{
				"transaction_hash": fmt.Sprintf("0x%d", i),
				"user_eth":         -0.01,
				"token_eth":        "12.5",
				"avax_price":       21.37,
				"block_number":     100 + i,
				"create_time":      1_700_000_000 + i,
				"user_address":     "0xUser",
				"transaction_idx":  i,
				"log_idx":          0,
				"absolute_order":   1000 + i,
			})
		}
		if page == nil {
			page = []map[string]any{}
		}
		json.NewEncoder(w).Encode(page)
	}))
	defer server.Close()

	c := NewIndexClient(server.URL, 2)
	trades, err := c.TokenTrades(context.Background(), "0xABC")
	require.NoError(t, err)
	require.Len(t, trades, total)
	assert.Equal(t, []int{0, 2, 4}, offsets)

	first := trades[0]
	assert.Equal(t, "0x0", first.TransactionHash)
	assert.True(t, first.TokenEth.Equal(decimal.RequireFromString("12.5")))
	assert.True(t, first.UserEth.Equal(decimal.RequireFromString("-0.01")))
	assert.True(t, first.AvaxPrice.Equal(decimal.RequireFromString("21.37")))
	assert.Equal(t, int64(1000), first.AbsoluteOrder)
}

func TestIndexClient_RetriesRateLimit(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	c := NewIndexClient(server.URL, 10, httpx.WithRetryDelay(time.Millisecond))
	trades, err := c.TokenTrades(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Empty(t, trades)
	assert.Equal(t, 2, calls)
}
