package processors

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vietddude/snapshotter/internal/core/config"
	"github.com/vietddude/snapshotter/internal/core/domain"
	"github.com/vietddude/snapshotter/internal/indexing/registry"
	"github.com/vietddude/snapshotter/internal/infra/chain/evm"
	"github.com/vietddude/snapshotter/internal/infra/contract/contracttest"
)

const (
	pairAddr   = "0x4444444444444444444444444444444444444444"
	token0Addr = "0x5555555555555555555555555555555555555555"
	token1Addr = "0x6666666666666666666666666666666666666666"
)

// =============================================================================
// Fake source chain
// =============================================================================

func newSourceChain(t *testing.T) (*contracttest.Chain, registry.Deps) {
	t.Helper()
	fake := contracttest.New(t)
	fake.RegisterABI(PairABI())
	fake.RegisterABI(ERC20ABI())

	fake.AnswerAt(pairAddr, "token0", common.HexToAddress(token0Addr))
	fake.AnswerAt(pairAddr, "token1", common.HexToAddress(token1Addr))
	fake.AnswerAt(token0Addr, "decimals", uint8(18))
	fake.AnswerAt(token1Addr, "decimals", uint8(6))
	fake.AnswerFunc(pairAddr, "getReserves", func(_ []interface{}, block *big.Int) ([]interface{}, error) {
		// reserve0 = block ether, reserve1 = 2*block units of a 6 decimal token
		r0 := new(big.Int).Mul(block, big.NewInt(1e18))
		r1 := new(big.Int).Mul(block, big.NewInt(2e6))
		return []interface{}{r0, r1, uint32(0)}, nil
	})

	return fake, registry.Deps{
		Source:   evm.NewEVMAdapter(fake),
		Pairs:    []string{pairAddr},
		Instance: config.InstanceConfig{InstanceID: "0x0000000000000000000000000000000000000003", SlotID: 4},
	}
}

func swapLog(block uint64, a0In, a1In, a0Out, a1Out *big.Int) types.Log {
	ev := PairABI().Events["Swap"]
	data, _ := ev.Inputs.NonIndexed().Pack(a0In, a1In, a0Out, a1Out)
	return types.Log{
		Address:     common.HexToAddress(pairAddr),
		Topics:      []common.Hash{ev.ID, {}, {}},
		Data:        data,
		BlockNumber: block,
	}
}

func mintLog(block uint64) types.Log {
	ev := PairABI().Events["Mint"]
	data, _ := ev.Inputs.NonIndexed().Pack(big.NewInt(1), big.NewInt(1))
	return types.Log{
		Address:     common.HexToAddress(pairAddr),
		Topics:      []common.Hash{ev.ID, {}},
		Data:        data,
		BlockNumber: block,
	}
}

// =============================================================================
// Pair selection
// =============================================================================

func TestPairIndex(t *testing.T) {
	epoch := domain.Epoch{EpochID: 10, Day: 2}
	if got := PairIndex(epoch, "0x0000000000000000000000000000000000000003", 4, 5); got != 4 {
		t.Errorf("expected (10+3+4+2)%%5 = 4, got %d", got)
	}
	if got := PairIndex(epoch, "0x3", 4, 1); got != 0 {
		t.Errorf("expected single pair index 0, got %d", got)
	}
	if got := PairIndex(epoch, "0x3", 4, 0); got != 0 {
		t.Errorf("expected 0 for empty pair list, got %d", got)
	}
}

func TestInstanceHash_Low63Bits(t *testing.T) {
	h := instanceHash("0xFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFF")
	if h != 1<<63-1 {
		t.Errorf("expected low 63 bits set, got %d", h)
	}
	if instanceHash("not-hex") != 0 {
		t.Error("expected 0 for non-hex instance id")
	}
}

// =============================================================================
// Block details
// =============================================================================

func TestBlockDetailsPreloader(t *testing.T) {
	_, deps := newSourceChain(t)
	p, err := NewBlockDetailsPreloader(deps)
	if err != nil {
		t.Fatalf("NewBlockDetailsPreloader failed: %v", err)
	}

	out, err := p.Compute(context.Background(), domain.Epoch{EpochID: 1, Begin: 100, End: 104})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	res, ok := out.(domain.PreloaderResult)
	if !ok {
		t.Fatalf("expected PreloaderResult, got %T", out)
	}
	if res.Keyword != BlockDetailsTask {
		t.Errorf("expected keyword %s, got %s", BlockDetailsTask, res.Keyword)
	}
	blocks := res.Result.(map[uint64]domain.BlockDetails)
	if len(blocks) != 5 || blocks[104].Timestamp != 208 {
		t.Errorf("unexpected blocks %+v", blocks)
	}
}

func TestBlockDetailsPreloader_Error(t *testing.T) {
	fake, deps := newSourceChain(t)
	fake.Err = errors.New("node down")
	p, _ := NewBlockDetailsPreloader(deps)

	if _, err := p.Compute(context.Background(), domain.Epoch{Begin: 1, End: 2}); err == nil {
		t.Error("expected error from failing source chain")
	}
}

// =============================================================================
// Pair total reserves
// =============================================================================

func TestPairTotalReserves(t *testing.T) {
	fake, deps := newSourceChain(t)
	proc, err := NewPairTotalReserves(deps)
	if err != nil {
		t.Fatalf("NewPairTotalReserves failed: %v", err)
	}

	preloaded := map[string]any{
		BlockDetailsTask: map[uint64]domain.BlockDetails{12: {Number: 12, Timestamp: 1700000012}},
	}
	out, err := proc.Compute(context.Background(), domain.Epoch{EpochID: 7, Begin: 10, End: 12}, preloaded)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if len(out) != 1 || out[0].DataSource != pairAddr {
		t.Fatalf("expected one output for the pair, got %+v", out)
	}

	snap := out[0].Snapshot.(PairTotalReservesSnapshot)
	if snap.Timestamp != 1700000012 {
		t.Errorf("expected timestamp from block details, got %d", snap.Timestamp)
	}
	if snap.ChainHeightRange != (domain.ChainHeightRange{Begin: 10, End: 12}) {
		t.Errorf("unexpected range %+v", snap.ChainHeightRange)
	}
	if got := snap.Token0Reserves["block11"]; got != 11 {
		t.Errorf("expected token0 reserve 11, got %v", got)
	}
	if got := snap.Token1Reserves["block11"]; got != 22 {
		t.Errorf("expected token1 reserve 22, got %v", got)
	}
	if got := snap.Token0Prices["block10"]; got != 2 {
		t.Errorf("expected token0 price 2, got %v", got)
	}
	if got := snap.Token1Prices["block10"]; got != 0.5 {
		t.Errorf("expected token1 price 0.5, got %v", got)
	}
	if len(snap.Token0Reserves) != 3 {
		t.Errorf("expected 3 blocks, got %d", len(snap.Token0Reserves))
	}

	// Token metadata is cached across epochs.
	before := fake.CallCount("CallContract")
	if _, err := proc.Compute(context.Background(), domain.Epoch{EpochID: 8, Begin: 13, End: 13}, preloaded); err != nil {
		t.Fatalf("second Compute failed: %v", err)
	}
	// one getReserves call, no metadata reads
	if got := fake.CallCount("CallContract") - before; got != 1 {
		t.Errorf("expected 1 call on second epoch, got %d", got)
	}
}

func TestNewPairTotalReserves_NoPairs(t *testing.T) {
	_, deps := newSourceChain(t)
	deps.Pairs = nil
	if _, err := NewPairTotalReserves(deps); !errors.Is(err, ErrNoPairs) {
		t.Errorf("expected ErrNoPairs, got %v", err)
	}
}

// =============================================================================
// Trade volume
// =============================================================================

func TestTradeVolume(t *testing.T) {
	fake, deps := newSourceChain(t)
	fake.AddLogs(
		swapLog(10, big.NewInt(1e18), big.NewInt(0), big.NewInt(0), big.NewInt(3e6)),
		swapLog(11, big.NewInt(0), big.NewInt(1e6), big.NewInt(5e17), big.NewInt(0)),
		mintLog(11),
		swapLog(20, big.NewInt(9e18), big.NewInt(0), big.NewInt(0), big.NewInt(9e6)), // outside epoch
	)

	proc, err := NewTradeVolume(deps)
	if err != nil {
		t.Fatalf("NewTradeVolume failed: %v", err)
	}
	out, err := proc.Compute(context.Background(), domain.Epoch{EpochID: 7, Begin: 10, End: 12}, nil)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	snap := out[0].Snapshot.(TradeVolumeSnapshot)
	if snap.Token0TradeVolume != 1.5 {
		t.Errorf("expected token0 volume 1.5, got %v", snap.Token0TradeVolume)
	}
	if snap.Token1TradeVolume != 4 {
		t.Errorf("expected token1 volume 4, got %v", snap.Token1TradeVolume)
	}
	if snap.TotalTrades != 2 || snap.Events["Mint"] != 1 || snap.Events["Burn"] != 0 {
		t.Errorf("unexpected event counts %+v", snap.Events)
	}
	// rpctest headers default to Time = 2*N
	if snap.Timestamp != 24 {
		t.Errorf("expected timestamp of block 12, got %d", snap.Timestamp)
	}
}

// =============================================================================
// Registration
// =============================================================================

func TestRegister(t *testing.T) {
	_, deps := newSourceChain(t)
	r := registry.New()
	if err := Register(r); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	set, err := r.Build(
		[]config.ProjectConfig{
			{ProjectType: PairTotalReservesTask, PreloadTasks: []string{BlockDetailsTask}},
			{ProjectType: TradeVolumeTask, PreloadTasks: []string{BlockDetailsTask}},
		},
		[]config.PreloaderConfig{{TaskType: BlockDetailsTask}},
		deps,
	)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(set.Projects) != 2 || len(set.Preloaders) != 1 {
		t.Errorf("unexpected set %+v", set)
	}
	if err := Register(r); !errors.Is(err, registry.ErrDuplicatePreloader) {
		t.Errorf("expected duplicate registration error, got %v", err)
	}
}
