package curve

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"arena-token-ledger/internal/domain"
	"arena-token-ledger/internal/storage/memory"
)

func TestEngine_PriceAgainstLedger(t *testing.T) {
	ctx := context.Background()
	trades := memory.NewTradeStore()
	anchors := memory.NewCurveAnchorStore()
	engine := NewEngine(EngineOptions{Trades: trades, Anchors: anchors})

	anchor := genesisAnchor()
	anchor.Timestamp = 1000
	if err := trades.Insert(ctx, anchor); err != nil {
		t.Fatalf("Insert anchor failed: %v", err)
	}

	prices, err := engine.Price(ctx, 1, Input{
		Action:          domain.ActionBuy,
		Amount:          units(500),
		TransferredAvax: dec("0.02"),
		AvaxPrice:       dec("20"),
	}, anchor)
	if err != nil {
		t.Fatalf("Price failed: %v", err)
	}
	if !prices.PriceAfterEth.Equal(dec("0.0000675")) {
		t.Errorf("price_after_eth: got %s", prices.PriceAfterEth)
	}

	pinned, err := anchors.Get(ctx, 1)
	if err != nil {
		t.Fatalf("anchor not pinned: %v", err)
	}
	if pinned.AnchorTxHash != "0xanchor" || !pinned.K.Equal(dec("3e-11")) {
		t.Errorf("unexpected pinned anchor: %+v", pinned)
	}
}

func TestEngine_NoAnchorIsUnavailable(t *testing.T) {
	engine := NewEngine(EngineOptions{Trades: memory.NewTradeStore(), Anchors: memory.NewCurveAnchorStore()})

	_, err := engine.Price(context.Background(), 1, Input{Action: domain.ActionBuy, Amount: big.NewInt(1)}, nil)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
}

func TestEngine_EarlierAnchorKeepsPinnedK(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine(EngineOptions{Trades: memory.NewTradeStore(), Anchors: memory.NewCurveAnchorStore()})

	first := genesisAnchor()
	first.Timestamp = 2000
	k1, err := engine.Coefficient(ctx, 1, first)
	if err != nil {
		t.Fatalf("Coefficient failed: %v", err)
	}

	earlier := genesisAnchor()
	earlier.TxHash = "0xearlier"
	earlier.Timestamp = 1000
	earlier.PriceAfterEth = dec("0.00009")
	k2, err := engine.Coefficient(ctx, 1, earlier)
	if err != nil {
		t.Fatalf("Coefficient failed: %v", err)
	}

	if !k1.Equal(k2) {
		t.Errorf("k changed after pinning: %s -> %s", k1, k2)
	}
}
