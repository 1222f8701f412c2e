package processors

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vietddude/snapshotter/internal/core/domain"
	"github.com/vietddude/snapshotter/internal/indexing/registry"
	"github.com/vietddude/snapshotter/internal/infra/chain/evm"
)

const TradeVolumeTask = "trade_volume"

var tradeEvents = []string{"Swap", "Mint", "Burn"}

// TradeVolumeSnapshot aggregates pair activity over an epoch.
type TradeVolumeSnapshot struct {
	domain.SnapshotBase
	Token0TradeVolume float64        `json:"token0TradeVolume"`
	Token1TradeVolume float64        `json:"token1TradeVolume"`
	TotalTrades       int            `json:"totalTrades"`
	Events            map[string]int `json:"events"`
}

// TradeVolume sums Swap amounts of one selected pair and counts liquidity events.
type TradeVolume struct {
	source     *evm.EVMAdapter
	reader     *pairReader
	pairs      []string
	instanceID string
	slotID     uint64
	log        *slog.Logger
}

func NewTradeVolume(deps registry.Deps) (registry.Processor, error) {
	if deps.Source == nil {
		return nil, fmt.Errorf("%s: source chain adapter is required", TradeVolumeTask)
	}
	if len(deps.Pairs) == 0 {
		return nil, fmt.Errorf("%s: %w", TradeVolumeTask, ErrNoPairs)
	}
	return &TradeVolume{
		source:     deps.Source,
		reader:     newPairReader(deps.Source.Caller()),
		pairs:      deps.Pairs,
		instanceID: deps.Instance.InstanceID,
		slotID:     deps.Instance.SlotID,
		log:        componentLogger(deps, TradeVolumeTask),
	}, nil
}

func (p *TradeVolume) Compute(
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

	topics := make([]common.Hash, 0, len(tradeEvents))
	for _, name := range tradeEvents {
		topics = append(topics, pairABI.Events[name].ID)
	}
	logs, err := p.source.GetLogs(ctx, addr, topics, epoch.Begin, epoch.End)
	if err != nil {
		return nil, err
	}

	vol0, vol1 := new(big.Int), new(big.Int)
	events := map[string]int{"Swap": 0, "Mint": 0, "Burn": 0}
	for _, l := range logs {
		name, fields, err := decodePairLog(l)
		if err != nil {
			p.log.Warn("Skipping undecodable pair log", "pair", pair, "tx", l.TxHash.Hex(), "error", err)
			continue
		}
		events[name]++
		if name != "Swap" {
			continue
		}
		vol0.Add(vol0, bigField(fields, "amount0In"))
		vol0.Add(vol0, bigField(fields, "amount0Out"))
		vol1.Add(vol1, bigField(fields, "amount1In"))
		vol1.Add(vol1, bigField(fields, "amount1Out"))
	}

	ts, err := maxTimestamp(ctx, p.source, epoch, preloaded)
	if err != nil {
		return nil, err
	}

	snap := TradeVolumeSnapshot{
		SnapshotBase: domain.SnapshotBase{
			Contract:         pair,
			ChainHeightRange: domain.ChainHeightRange{Begin: epoch.Begin, End: epoch.End},
			Timestamp:        ts,
		},
		Token0TradeVolume: normalize(vol0, meta.decimals0),
		Token1TradeVolume: normalize(vol1, meta.decimals1),
		TotalTrades:       events["Swap"],
		Events:            events,
	}
	p.log.Debug("Computed trade volume", "pair", pair, "epoch", epoch.EpochID, "swaps", snap.TotalTrades)
	return []domain.ProcessorOutput{{DataSource: pair, Snapshot: snap}}, nil
}

func (p *TradeVolume) Cleanup(context.Context) error { return nil }

func decodePairLog(l types.Log) (string, map[string]interface{}, error) {
	if len(l.Topics) == 0 {
		return "", nil, fmt.Errorf("log without topics")
	}
	ev, err := pairABI.EventByID(l.Topics[0])
	if err != nil {
		return "", nil, err
	}
	fields := make(map[string]interface{})
	if err := ev.Inputs.UnpackIntoMap(fields, l.Data); err != nil {
		return "", nil, err
	}
	return ev.Name, fields, nil
}

func bigField(fields map[string]interface{}, name string) *big.Int {
	if v, ok := fields[name].(*big.Int); ok {
		return v
	}
	return new(big.Int)
}
