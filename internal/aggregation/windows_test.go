package aggregation

import (
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"arena-token-ledger/internal/domain"
)

func trade(hash, from string, action domain.Action, ts int64, avax string) *domain.Trade {
	return &domain.Trade{
		TokenID:            1,
		TxHash:             hash,
		FromAddress:        from,
		Action:             action,
		Amount:             big.NewInt(1),
		TransferredAvax:    decimal.RequireFromString(avax),
		AvaxPrice:          decimal.NewFromInt(20),
		Status:             domain.StatusSuccess,
		Timestamp:          ts,
		AbsoluteTxPosition: ts,
	}
}

func TestComputeWindows_TimeframeBucketing(t *testing.T) {
	now := int64(1_700_000_000_000)
	twoMin := (2 * time.Minute).Milliseconds()
	twoHr := (2 * time.Hour).Milliseconds()

	trades := []*domain.Trade{
		trade("0x1", "0xA", domain.ActionBuy, now-twoMin, "1"),
		trade("0x2", "0xa", domain.ActionSell, now-twoMin, "0.5"),
		trade("0x3", "0xB", domain.ActionBuy, now-twoHr, "2"),
	}

	w := ComputeWindows(trades, now)

	m5 := w["m5"]
	if m5.Buyers != 1 || m5.Sellers != 1 || m5.Makers != 1 {
		t.Errorf("m5: expected buyers=1 sellers=1 makers=1, got %+v", m5)
	}
	if m5.Buys != 1 || m5.Sells != 1 {
		t.Errorf("m5: expected 1 buy and 1 sell, got %d/%d", m5.Buys, m5.Sells)
	}

	h1 := w["h1"]
	if h1.Buyers != m5.Buyers || h1.Sellers != m5.Sellers || h1.Makers != m5.Makers || h1.Buys != m5.Buys {
		t.Errorf("h1 should match m5: got %+v vs %+v", h1, m5)
	}

	h6 := w["h6"]
	if h6.Buyers != 2 || h6.Makers != 2 || h6.Sellers != 1 {
		t.Errorf("h6: expected buyers=2 makers=2 sellers=1, got %+v", h6)
	}
	if !h6.BuyVolumeEth.Equal(decimal.NewFromInt(3)) {
		t.Errorf("h6: expected buy volume 3, got %s", h6.BuyVolumeEth)
	}
	if !h6.BuyVolumeUsd.Equal(decimal.NewFromInt(60)) {
		t.Errorf("h6: expected buy volume usd 60, got %s", h6.BuyVolumeUsd)
	}
	if !h6.SellVolumeUsd.Equal(decimal.NewFromInt(10)) {
		t.Errorf("h6: expected sell volume usd 10, got %s", h6.SellVolumeUsd)
	}
}

func TestComputeWindows_BoundaryAndStatus(t *testing.T) {
	now := int64(10_000_000)
	five := (5 * time.Minute).Milliseconds()

	failed := trade("0x2", "0xc", domain.ActionBuy, now, "1")
	failed.Status = domain.StatusFailed

	trades := []*domain.Trade{
		trade("0x1", "0xa", domain.ActionInitialBuy, now-five, "1"), // exactly on the edge
		failed,
		trade("0x3", "0xb", domain.ActionBuy, now-five-1, "1"),
	}

	m5 := ComputeWindows(trades, now)["m5"]
	if m5.Buys != 1 || m5.Buyers != 1 {
		t.Errorf("m5: expected only the edge trade, got %+v", m5)
	}
}

func TestComputeWindows_IgnoresEmptyAddress(t *testing.T) {
	now := int64(10_000_000)

	trades := []*domain.Trade{
		trade("0x1", "", domain.ActionBuy, now, "1"),
		trade("0x2", "", domain.ActionSell, now, "1"),
		trade("0x3", "0xA", domain.ActionBuy, now, "1"),
	}

	m5 := ComputeWindows(trades, now)["m5"]
	if m5.Buys != 2 || m5.Sells != 1 {
		t.Errorf("m5: trades without a sender still count as trades, got %+v", m5)
	}
	if m5.Buyers != 1 || m5.Sellers != 0 || m5.Makers != 1 {
		t.Errorf("m5: expected one maker, got %+v", m5)
	}
	if got := HolderCount(trades); got != m5.Makers {
		t.Errorf("holder count %d disagrees with makers %d", got, m5.Makers)
	}
}

func TestHolderCount(t *testing.T) {
	failed := trade("0x4", "0xd", domain.ActionBuy, 4, "1")
	failed.Status = domain.StatusFailed

	trades := []*domain.Trade{
		trade("0x1", "0xA", domain.ActionInitialBuy, 1, "1"),
		trade("0x2", "0xa", domain.ActionSell, 2, "1"),
		trade("0x3", "0xb", domain.ActionBuy, 3, "1"),
		failed,
	}

	if got := HolderCount(trades); got != 2 {
		t.Errorf("expected 2 holders, got %d", got)
	}
	addrs := HolderAddresses(trades)
	if len(addrs) != 2 || addrs[0] != "0xa" || addrs[1] != "0xb" {
		t.Errorf("unexpected holder order %v", addrs)
	}
}
