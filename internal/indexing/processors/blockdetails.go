package processors

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/snapshotter/internal/core/domain"
	"github.com/vietddude/snapshotter/internal/indexing/registry"
	"github.com/vietddude/snapshotter/internal/infra/chain/evm"
)

// BlockDetailsTask is the keyword of the block details preloader.
const BlockDetailsTask = "block_details"

// BlockDetailsPreloader fetches timestamp, hash and transaction count for every block of an epoch.
type BlockDetailsPreloader struct {
	source *evm.EVMAdapter
	log    *slog.Logger
}

func NewBlockDetailsPreloader(deps registry.Deps) (registry.Preloader, error) {
	if deps.Source == nil {
		return nil, fmt.Errorf("%s: source chain adapter is required", BlockDetailsTask)
	}
	return &BlockDetailsPreloader{
		source: deps.Source,
		log:    componentLogger(deps, BlockDetailsTask),
	}, nil
}

func (p *BlockDetailsPreloader) Compute(ctx context.Context, epoch domain.Epoch) (any, error) {
	blocks, err := p.source.GetBlockRange(ctx, epoch.Begin, epoch.End)
	if err != nil {
		p.log.Error("Error in block details preloader", "epoch", epoch.EpochID, "error", err)
		return nil, err
	}
	return domain.PreloaderResult{Keyword: BlockDetailsTask, Result: blocks}, nil
}

func (p *BlockDetailsPreloader) Cleanup(context.Context) error { return nil }
