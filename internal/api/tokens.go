package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"arena-token-ledger/internal/aggregation"
	"arena-token-ledger/internal/cache"
	"arena-token-ledger/internal/dexscreener"
	"arena-token-ledger/internal/storage"
)

// PairSource returns raw external pool data.
type PairSource interface {
	PairRaw(ctx context.Context, pairAddress string) (json.RawMessage, error)
}

type TokenHandler struct {
	Service *aggregation.Service
	Tokens  storage.TokenStore
	Pairs   PairSource  // optional
	Cache   cache.Store // optional
	Logger  *zap.Logger

	ListCacheTTL    time.Duration
	DefaultPageSize int
	MaxPageSize     int
}

func (h *TokenHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1")
	group.GET("/tokens", h.listTokens)
	group.GET("/tokens/:id", h.getToken)
	group.GET("/tokens/:id/trades", h.listTrades)
	group.GET("/tokens/:id/holders", h.listHolders)
	group.GET("/tokens/:id/ohlc", h.getOHLC)
	group.GET("/pairs/:pair", h.getPair)
}

func (h *TokenHandler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func (h *TokenHandler) page(c *gin.Context) (limit, offset int) {
	def := h.DefaultPageSize
	if def <= 0 {
		def = 50
	}
	limit = intQuery(c, "limit", def)
	if limit <= 0 {
		limit = def
	}
	if h.MaxPageSize > 0 && limit > h.MaxPageSize {
		limit = h.MaxPageSize
	}
	offset = intQuery(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (h *TokenHandler) fail(c *gin.Context, op string, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		h.logger().Warn(op+" failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		_ = c.Error(err)
		Error(c, status, http.StatusText(status), nil)
		return
	}
	Error(c, status, err.Error(), nil)
}

func tokenID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		Error(c, http.StatusBadRequest, "invalid token id", nil)
		return 0, false
	}
	return id, true
}

func (h *TokenHandler) listTokens(c *gin.Context) {
	search := strings.TrimSpace(c.Query("search"))
	limit, offset := h.page(c)
	meta := map[string]any{"limit": limit, "offset": offset}

	key := fmt.Sprintf("api:tokens:%s:%d:%d", strings.ToLower(search), limit, offset)
	if h.Cache != nil && h.ListCacheTTL > 0 {
		var cached []*aggregation.TokenSummary
		if found, err := cache.GetJSON(c.Request.Context(), h.Cache, key, &cached); err == nil && found {
			meta["cached"] = true
			Ok(c, cached, meta)
			return
		}
	}

	tokens, err := h.Service.RecentTokens(c.Request.Context(), search, limit, offset)
	if err != nil {
		h.fail(c, "list tokens", err)
		return
	}
	if tokens == nil {
		tokens = []*aggregation.TokenSummary{}
	}

	if h.Cache != nil && h.ListCacheTTL > 0 {
		if err := cache.SetJSON(c.Request.Context(), h.Cache, key, tokens, h.ListCacheTTL); err != nil {
			h.logger().Debug("token list cache write failed", zap.Error(err))
		}
	}
	Ok(c, tokens, meta)
}

func (h *TokenHandler) getToken(c *gin.Context) {
	id, ok := tokenID(c)
	if !ok {
		return
	}
	summary, err := h.Service.TokenSummary(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "token summary", err)
		return
	}
	Ok(c, summary, nil)
}

func (h *TokenHandler) listTrades(c *gin.Context) {
	id, ok := tokenID(c)
	if !ok {
		return
	}
	limit, offset := h.page(c)
	trades, err := h.Service.TradeHistory(c.Request.Context(), id, limit, offset)
	if err != nil {
		h.fail(c, "trade history", err)
		return
	}

	views := make([]tradeView, 0, len(trades))
	for _, t := range trades {
		views = append(views, newTradeView(t))
	}
	Ok(c, views, map[string]any{"limit": limit, "offset": offset})
}

func (h *TokenHandler) listHolders(c *gin.Context) {
	id, ok := tokenID(c)
	if !ok {
		return
	}
	limit, offset := h.page(c)
	page, err := h.Service.Holders(c.Request.Context(), id, limit, offset)
	if err != nil {
		h.fail(c, "holders", err)
		return
	}
	if page.Holders == nil {
		page.Holders = []aggregation.Holder{}
	}
	Ok(c, page, map[string]any{"limit": limit, "offset": offset, "total": page.Total})
}

func (h *TokenHandler) getOHLC(c *gin.Context) {
	id, ok := tokenID(c)
	if !ok {
		return
	}
	timeframe := c.DefaultQuery("timeframe", "5m")
	to := int64Query(c, "to", time.Now().UnixMilli())
	from := int64Query(c, "from", to-24*time.Hour.Milliseconds())
	if from > to {
		Error(c, http.StatusBadRequest, "from must not be after to", nil)
		return
	}

	candles, err := h.Service.Candles(c.Request.Context(), id, timeframe, from, to)
	if err != nil {
		h.fail(c, "candles", err)
		return
	}

	views := make([]candleView, 0, len(candles))
	for _, cd := range candles {
		views = append(views, newCandleView(cd))
	}
	Ok(c, views, map[string]any{"timeframe": timeframe, "from": from, "to": to})
}

// getPair passes external pool data through for migrated tokens only.
func (h *TokenHandler) getPair(c *gin.Context) {
	if h.Pairs == nil {
		Error(c, http.StatusServiceUnavailable, "market feed not configured", nil)
		return
	}
	pair := strings.ToLower(strings.TrimSpace(c.Param("pair")))

	tok, err := h.Tokens.GetByPair(c.Request.Context(), pair)
	if err != nil {
		h.fail(c, "get token by pair", err)
		return
	}
	if !tok.LPDeployed {
		Error(c, http.StatusNotFound, "token has not migrated", nil)
		return
	}

	raw, err := h.Pairs.PairRaw(c.Request.Context(), pair)
	if err != nil {
		if errors.Is(err, dexscreener.ErrPairNotFound) {
			Error(c, http.StatusNotFound, err.Error(), nil)
			return
		}
		h.logger().Warn("pair lookup failed", zap.String("pair", pair), zap.Error(err))
		Error(c, http.StatusBadGateway, "market feed unavailable", nil)
		return
	}
	Ok(c, raw, map[string]any{"token_id": tok.InternalID})
}
