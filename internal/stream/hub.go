// Package stream broadcasts promoted trades to websocket subscribers.
package stream

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"arena-token-ledger/internal/domain"
	"arena-token-ledger/internal/observability"
)

// TradeMessage is the wire form of a promoted trade.
type TradeMessage struct {
	Type               string          `json:"type"`
	TokenID            int64           `json:"token_id"`
	TxHash             string          `json:"tx_hash"`
	Action             string          `json:"action"`
	Amount             string          `json:"amount"`
	TransferredAvax    decimal.Decimal `json:"transferred_avax"`
	AvaxPrice          decimal.Decimal `json:"avax_price"`
	FromAddress        string          `json:"from_address"`
	AbsoluteTxPosition int64           `json:"absolute_tx_position"`
	Timestamp          int64           `json:"timestamp"`
	PriceEth           decimal.Decimal `json:"price_eth"`
	PriceUsd           decimal.Decimal `json:"price_usd"`
	PriceAfterEth      decimal.Decimal `json:"price_after_eth"`
	PriceAfterUsd      decimal.Decimal `json:"price_after_usd"`
}

func newTradeMessage(t *domain.Trade) TradeMessage {
	amount := "0"
	if t.Amount != nil {
		amount = t.Amount.String()
	}
	return TradeMessage{
		Type:               "trade",
		TokenID:            t.TokenID,
		TxHash:             t.TxHash,
		Action:             string(t.Action),
		Amount:             amount,
		TransferredAvax:    t.TransferredAvax,
		AvaxPrice:          t.AvaxPrice,
		FromAddress:        t.FromAddress,
		AbsoluteTxPosition: t.AbsoluteTxPosition,
		Timestamp:          t.Timestamp,
		PriceEth:           t.PriceEth,
		PriceUsd:           t.PriceUsd,
		PriceAfterEth:      t.PriceAfterEth,
		PriceAfterUsd:      t.PriceAfterUsd,
	}
}

type envelope struct {
	tokenID int64
	payload []byte
}

// client is one websocket subscriber. tokenID 0 receives every token.
type client struct {
	id      string
	tokenID int64
	send    chan []byte
}

// Hub fans trades out to connected clients. All client bookkeeping happens
// on the Run goroutine.
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan envelope
	clients    map[*client]struct{}
	done       chan struct{}
	count      atomic.Int64
	logger     *zap.Logger
}

// NewHub creates a hub. Call Run to start it.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan envelope, 256),
		clients:    make(map[*client]struct{}),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run processes registrations and broadcasts until ctx is done, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.remove(c)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.updateCount()
			h.logger.Debug("stream client registered", zap.String("client_id", c.id), zap.Int("clients", len(h.clients)))

		case c := <-h.unregister:
			h.remove(c)

		case msg := <-h.broadcast:
			for c := range h.clients {
				if c.tokenID != 0 && c.tokenID != msg.tokenID {
					continue
				}
				select {
				case c.send <- msg.payload:
				default:
					h.logger.Warn("stream client too slow, disconnecting", zap.String("client_id", c.id))
					h.remove(c)
				}
			}
			observability.RecordStreamBroadcast()
		}
	}
}

func (h *Hub) remove(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.updateCount()
}

func (h *Hub) updateCount() {
	h.count.Store(int64(len(h.clients)))
	observability.UpdateStreamClients(len(h.clients))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// Publish queues a trade for broadcast. It never blocks; when the queue is
// full the trade is dropped from the stream.
func (h *Hub) Publish(t *domain.Trade) {
	payload, err := json.Marshal(newTradeMessage(t))
	if err != nil {
		h.logger.Error("encode stream trade", zap.String("tx_hash", t.TxHash), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- envelope{tokenID: t.TokenID, payload: payload}:
	default:
		h.logger.Warn("stream queue full, dropping trade", zap.String("tx_hash", t.TxHash))
	}
}

func newClient(tokenID int64) *client {
	return &client{
		id:      uuid.NewString(),
		tokenID: tokenID,
		send:    make(chan []byte, 64),
	}
}
