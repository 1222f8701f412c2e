package processors

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/snapshotter/internal/core/domain"
	"github.com/vietddude/snapshotter/internal/indexing/registry"
	"github.com/vietddude/snapshotter/internal/infra/chain/evm"
)

const PairTotalReservesTask = "pair_total_reserves"

// PairTotalReservesSnapshot holds per-block reserves and prices keyed "block{N}".
type PairTotalReservesSnapshot struct {
	domain.SnapshotBase
	Token0Reserves map[string]float64 `json:"token0Reserves"`
	Token1Reserves map[string]float64 `json:"token1Reserves"`
	Token0Prices   map[string]float64 `json:"token0Prices"`
	Token1Prices   map[string]float64 `json:"token1Prices"`
}

// PairTotalReserves reads getReserves() of one selected pair at every block of the epoch.
type PairTotalReserves struct {
	source     *evm.EVMAdapter
	reader     *pairReader
	pairs      []string
	instanceID string
	slotID     uint64
	log        *slog.Logger
}

func NewPairTotalReserves(deps registry.Deps) (registry.Processor, error) {
	if deps.Source == nil {
		return nil, fmt.Errorf("%s: source chain adapter is required", PairTotalReservesTask)
	}
	if len(deps.Pairs) == 0 {
		return nil, fmt.Errorf("%s: %w", PairTotalReservesTask, ErrNoPairs)
	}
	return &PairTotalReserves{
		source:     deps.Source,
		reader:     newPairReader(deps.Source.Caller()),
		pairs:      deps.Pairs,
		instanceID: deps.Instance.InstanceID,
		slotID:     deps.Instance.SlotID,
		log:        componentLogger(deps, PairTotalReservesTask),
	}, nil
}

func (p *PairTotalReserves) Compute(
	ctx context.Context,
	epoch domain.Epoch,
	preloaded map[string]any,
) ([]domain.ProcessorOutput, error) {
	if epoch.End < epoch.Begin {
		return nil, fmt.Errorf("invalid epoch range [%d, %d]", epoch.Begin, epoch.End)
	}
	pair := p.pairs[PairIndex(epoch, p.instanceID, p.slotID, len(p.pairs))]
	addr := common.HexToAddress(pair)

	meta, err := p.reader.Meta(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to read pair metadata for %s: %w", pair, err)
	}

	n := epoch.End - epoch.Begin + 1
	type reserves struct{ r0, r1 float64 }
	rows := make([]reserves, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(5)
	for b := epoch.Begin; b <= epoch.End; b++ {
		b := b
		g.Go(func() error {
			r0, r1, err := p.reader.Reserves(gctx, addr, b)
			if err != nil {
				return fmt.Errorf("block %d: %w", b, err)
			}
			rows[b-epoch.Begin] = reserves{normalize(r0, meta.decimals0), normalize(r1, meta.decimals1)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to read reserves for %s: %w", pair, err)
	}

	snap := PairTotalReservesSnapshot{
		SnapshotBase: domain.SnapshotBase{
			Contract:         pair,
			ChainHeightRange: domain.ChainHeightRange{Begin: epoch.Begin, End: epoch.End},
		},
		Token0Reserves: make(map[string]float64, n),
		Token1Reserves: make(map[string]float64, n),
		Token0Prices:   make(map[string]float64, n),
		Token1Prices:   make(map[string]float64, n),
	}
	for i, row := range rows {
		key := fmt.Sprintf("block%d", epoch.Begin+uint64(i))
		snap.Token0Reserves[key] = row.r0
		snap.Token1Reserves[key] = row.r1
		snap.Token0Prices[key] = ratio(row.r1, row.r0)
		snap.Token1Prices[key] = ratio(row.r0, row.r1)
	}

	ts, err := maxTimestamp(ctx, p.source, epoch, preloaded)
	if err != nil {
		p.log.Error("Could not fetch timestamp for max block height", "pair", pair, "epoch", epoch.EpochID, "error", err)
		return nil, err
	}
	snap.Timestamp = ts

	p.log.Debug("Computed pair reserves", "pair", pair, "epoch", epoch.EpochID, "blocks", n)
	return []domain.ProcessorOutput{{DataSource: pair, Snapshot: snap}}, nil
}

func (p *PairTotalReserves) Cleanup(context.Context) error { return nil }

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// maxTimestamp returns the timestamp of the epoch's last block, preferring preloaded details.
func maxTimestamp(ctx context.Context, source *evm.EVMAdapter, epoch domain.Epoch, preloaded map[string]any) (uint64, error) {
	if blocks := blockDetailsFrom(preloaded); blocks != nil {
		if b, ok := blocks[epoch.End]; ok {
			return b.Timestamp, nil
		}
	}
	b, err := source.GetBlock(ctx, epoch.End)
	if err != nil {
		return 0, err
	}
	return b.Timestamp, nil
}
