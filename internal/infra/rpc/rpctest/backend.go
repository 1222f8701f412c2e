// Package rpctest provides an in-memory provider.Backend for tests.
package rpctest

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Backend is a scriptable fake chain. Zero values answer every call with empty results.
type Backend struct {
	mu sync.Mutex

	Head    uint64
	ChainNo int64
	Headers map[uint64]*types.Header
	Blocks  map[uint64]*types.Block
	Logs    []types.Log

	// CallFn answers eth_call. It receives the call message and the block number requested.
	CallFn func(call ethereum.CallMsg, block *big.Int) ([]byte, error)

	// Err, when set, is returned by every method.
	Err error

	Calls       map[string]int
	FilterCalls []ethereum.FilterQuery
}

func (b *Backend) record(method string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Calls == nil {
		b.Calls = make(map[string]int)
	}
	b.Calls[method]++
	return b.Err
}

// CallCount returns how many times a method was invoked.
func (b *Backend) CallCount(method string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Calls[method]
}

// AddLogs appends logs returned by FilterLogs.
func (b *Backend) AddLogs(logs ...types.Log) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Logs = append(b.Logs, logs...)
}

// SetHead moves the chain head.
func (b *Backend) SetHead(n uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Head = n
}

func (b *Backend) BlockNumber(ctx context.Context) (uint64, error) {
	if err := b.record("BlockNumber"); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Head, nil
}

func (b *Backend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	if err := b.record("HeaderByNumber"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.Head
	if number != nil {
		n = number.Uint64()
	}
	if h, ok := b.Headers[n]; ok {
		return h, nil
	}
	return &types.Header{Number: new(big.Int).SetUint64(n), Time: n * 2}, nil
}

func (b *Backend) BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error) {
	if err := b.record("BlockByNumber"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.Head
	if number != nil {
		n = number.Uint64()
	}
	if blk, ok := b.Blocks[n]; ok {
		return blk, nil
	}
	return types.NewBlockWithHeader(&types.Header{Number: new(big.Int).SetUint64(n), Time: n * 2}), nil
}

func (b *Backend) ChainID(ctx context.Context) (*big.Int, error) {
	if err := b.record("ChainID"); err != nil {
		return nil, err
	}
	return big.NewInt(b.ChainNo), nil
}

func (b *Backend) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	if err := b.record("CodeAt"); err != nil {
		return nil, err
	}
	return []byte{0x1}, nil
}

func (b *Backend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := b.record("CallContract"); err != nil {
		return nil, err
	}
	if b.CallFn == nil {
		return nil, nil
	}
	return b.CallFn(call, blockNumber)
}

func (b *Backend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if err := b.record("FilterLogs"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.FilterCalls = append(b.FilterCalls, q)

	var out []types.Log
	for _, l := range b.Logs {
		if q.FromBlock != nil && l.BlockNumber < q.FromBlock.Uint64() {
			continue
		}
		if q.ToBlock != nil && l.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (b *Backend) SubscribeFilterLogs(
	ctx context.Context,
	q ethereum.FilterQuery,
	ch chan<- types.Log,
) (ethereum.Subscription, error) {
	return nil, ethereum.NotFound
}

func (b *Backend) Close() {}
