package chain

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vietddude/snapshotter/internal/core/config"
	"github.com/vietddude/snapshotter/internal/core/domain"
	"github.com/vietddude/snapshotter/internal/infra/contract/contracttest"
)

const (
	stateAddr  = "0x1111111111111111111111111111111111111111"
	marketAddr = "0x2222222222222222222222222222222222222222"
)

func newTestContext(t *testing.T, name string, pairing domain.Pairing) (*Context, *contracttest.Chain) {
	t.Helper()
	fake := contracttest.New(t)
	ctx, err := NewContext(name, pairing, fake, config.AnchorChainConfig{
		ProtocolState: config.ProtocolStateConfig{Address: stateAddr, DeadlineBuffer: 4},
		DataMarket:    marketAddr,
	})
	if err != nil {
		t.Fatalf("NewContext failed: %v", err)
	}
	return ctx, fake
}

func TestNewContext_InvalidAddress(t *testing.T) {
	fake := contracttest.New(t)
	_, err := NewContext("anchor", domain.PairingNew, fake, config.AnchorChainConfig{
		ProtocolState: config.ProtocolStateConfig{Address: "not-an-address"},
		DataMarket:    marketAddr,
	})
	if err == nil {
		t.Fatal("expected error for invalid protocol state address")
	}
}

func TestContext_Anchor(t *testing.T) {
	c, fake := newTestContext(t, "anchor", domain.PairingNew)
	header := &types.Header{Number: big.NewInt(77), Time: 1}
	fake.Headers = map[uint64]*types.Header{77: header}
	fake.SetHead(77)

	anchor, err := c.Anchor(context.Background())
	if err != nil {
		t.Fatalf("Anchor failed: %v", err)
	}
	if anchor.Number != 77 || anchor.Hash != header.Hash() {
		t.Errorf("unexpected anchor %+v", anchor)
	}
	if c.DeadlineBuffer != 4 {
		t.Errorf("expected deadline buffer 4, got %d", c.DeadlineBuffer)
	}
}

func TestContext_ChainIDCached(t *testing.T) {
	c, fake := newTestContext(t, "anchor", domain.PairingNew)
	fake.ChainNo = 11169

	for i := 0; i < 3; i++ {
		id, err := c.ChainID(context.Background())
		if err != nil {
			t.Fatalf("ChainID failed: %v", err)
		}
		if id.Int64() != 11169 {
			t.Errorf("expected chain id 11169, got %s", id)
		}
	}
	if n := fake.CallCount("ChainID"); n != 1 {
		t.Errorf("expected one ChainID call, got %d", n)
	}
}

func TestSwitchover_ForEpoch(t *testing.T) {
	oldCtx, _ := newTestContext(t, "old", domain.PairingOld)
	newCtx, _ := newTestContext(t, "new", domain.PairingNew)
	s := &Switchover{Old: oldCtx, New: newCtx, Epoch: 1000}

	tests := []struct {
		epoch uint64
		want  *Context
	}{
		{0, oldCtx},
		{999, oldCtx},
		{1000, newCtx},
		{1001, newCtx},
	}
	for _, tt := range tests {
		if got := s.ForEpoch(tt.epoch); got != tt.want {
			t.Errorf("ForEpoch(%d) = %s, want %s", tt.epoch, got.Name, tt.want.Name)
		}
	}
	if s.Crossed(999) || !s.Crossed(1000) || !s.Crossed(1001) {
		t.Error("expected epochs from 1000 on to have crossed the boundary")
	}
}

func TestContext_DataMarket(t *testing.T) {
	c, _ := newTestContext(t, "anchor", domain.PairingNew)
	if c.DataMarket() != "0x2222222222222222222222222222222222222222" {
		t.Errorf("unexpected data market %s", c.DataMarket())
	}
	if c.ProtocolStateAddress().Hex() != "0x1111111111111111111111111111111111111111" {
		t.Errorf("unexpected state address %s", c.ProtocolStateAddress().Hex())
	}
}
