package evm

import (
	"context"
	"fmt"
	"math/big"

	logger "log/slog"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/snapshotter/internal/core/domain"
	"github.com/vietddude/snapshotter/internal/infra/contract"
)

// defaultConcurrency bounds parallel block fetches for one range.
const defaultConcurrency = 5

// Client is what the adapter needs from the source chain RPC.
type Client interface {
	contract.Backend
	BlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
}

// EVMAdapter reads source chain data for preloaders and processors.
type EVMAdapter struct {
	client      Client
	concurrency int
	log         logger.Logger
}

func NewEVMAdapter(client Client) *EVMAdapter {
	return &EVMAdapter{
		client:      client,
		concurrency: defaultConcurrency,
		log:         *logger.Default().With("component", "evm"),
	}
}

// Caller exposes the client for contract bindings on the source chain.
func (a *EVMAdapter) Caller() contract.Backend {
	return a.client
}

func (a *EVMAdapter) GetLatestBlock(ctx context.Context) (uint64, error) {
	n, err := a.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber failed: %w", err)
	}
	return n, nil
}

func (a *EVMAdapter) GetBlock(ctx context.Context, blockNumber uint64) (domain.BlockDetails, error) {
	block, err := a.client.BlockByNumber(ctx, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		return domain.BlockDetails{}, fmt.Errorf("eth_getBlockByNumber %d failed: %w", blockNumber, err)
	}
	return parseBlock(block), nil
}

func parseBlock(block *types.Block) domain.BlockDetails {
	return domain.BlockDetails{
		Number:    block.NumberU64(),
		Hash:      block.Hash().Hex(),
		Timestamp: block.Time(),
		TxCount:   len(block.Transactions()),
	}
}

// GetBlockRange fetches every block in [from, to] in parallel.
// Any failure fails the whole range.
func (a *EVMAdapter) GetBlockRange(ctx context.Context, from, to uint64) (map[uint64]domain.BlockDetails, error) {
	if to < from {
		return nil, fmt.Errorf("invalid block range [%d, %d]", from, to)
	}

	blocks := make([]domain.BlockDetails, to-from+1)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency) // Limit concurrency to prevent RPC overload

	for n := from; n <= to; n++ {
		n := n
		g.Go(func() error {
			b, err := a.GetBlock(ctx, n)
			if err != nil {
				return err
			}
			blocks[n-from] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[uint64]domain.BlockDetails, len(blocks))
	for _, b := range blocks {
		out[b.Number] = b
	}
	a.log.Debug("fetched block range", "from", from, "to", to, "blocks", len(out))
	return out, nil
}

// GetLogs returns logs emitted by address in [from, to] whose topic0 is one of topics.
func (a *EVMAdapter) GetLogs(
	ctx context.Context,
	address common.Address,
	topics []common.Hash,
	from, to uint64,
) ([]types.Log, error) {
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{address},
	}
	if len(topics) > 0 {
		q.Topics = [][]common.Hash{topics}
	}
	logs, err := a.client.FilterLogs(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("eth_getLogs [%d, %d] failed: %w", from, to, err)
	}
	return logs, nil
}
