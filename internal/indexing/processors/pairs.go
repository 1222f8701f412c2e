package processors

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/snapshotter/internal/core/domain"
	"github.com/vietddude/snapshotter/internal/infra/contract"
)

var (
	//go:embed abi/UniswapV2Pair.json
	pairABIJSON []byte
	//go:embed abi/ERC20.json
	erc20ABIJSON []byte

	pairABI  = mustParseABI(pairABIJSON)
	erc20ABI = mustParseABI(erc20ABIJSON)
)

// ErrNoPairs is returned when a pair processor is configured without pairs.
var ErrNoPairs = errors.New("no monitored pairs configured")

// hashMask keeps the low 63 bits of the instance address.
var hashMask = new(big.Int).SetUint64(1<<63 - 1)

func mustParseABI(data []byte) abi.ABI {
	parsed, err := abi.JSON(bytes.NewReader(data))
	if err != nil {
		panic(fmt.Sprintf("invalid embedded abi: %v", err))
	}
	return parsed
}

// PairABI returns the parsed pair ABI.
func PairABI() abi.ABI { return pairABI }

// ERC20ABI returns the parsed token ABI.
func ERC20ABI() abi.ABI { return erc20ABI }

// instanceHash derives a stable integer from a hex instance id.
func instanceHash(instanceID string) uint64 {
	v, ok := new(big.Int).SetString(strings.TrimPrefix(strings.ToLower(instanceID), "0x"), 16)
	if !ok {
		return 0
	}
	return v.And(v, hashMask).Uint64()
}

// PairIndex picks which pair this node snapshots for an epoch:
// (epochId + hash(instanceId) + slotId + day) mod len(pairs).
func PairIndex(epoch domain.Epoch, instanceID string, slotID uint64, pairs int) int {
	if pairs <= 0 {
		return 0
	}
	n := uint64(pairs)
	sum := epoch.EpochID%n + instanceHash(instanceID)%n + slotID%n + epoch.Day%n
	return int(sum % n)
}

type pairMeta struct {
	token0, token1       common.Address
	decimals0, decimals1 uint8
}

// pairReader reads Uniswap V2 style pair state on the source chain.
type pairReader struct {
	backend contract.Backend

	mu   sync.Mutex
	meta map[common.Address]pairMeta
}

func newPairReader(backend contract.Backend) *pairReader {
	return &pairReader{backend: backend, meta: make(map[common.Address]pairMeta)}
}

func (r *pairReader) bind(addr common.Address, parsed abi.ABI) *bind.BoundContract {
	return bind.NewBoundContract(addr, parsed, r.backend, nil, r.backend)
}

func (r *pairReader) call(
	ctx context.Context,
	c *bind.BoundContract,
	block *big.Int,
	method string,
) ([]interface{}, error) {
	var out []interface{}
	if err := c.Call(&bind.CallOpts{Context: ctx, BlockNumber: block}, &out, method); err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}
	return out, nil
}

// Meta returns token addresses and decimals for pair, cached after the first read.
func (r *pairReader) Meta(ctx context.Context, pair common.Address) (pairMeta, error) {
	r.mu.Lock()
	m, ok := r.meta[pair]
	r.mu.Unlock()
	if ok {
		return m, nil
	}

	pc := r.bind(pair, pairABI)
	out, err := r.call(ctx, pc, nil, "token0")
	if err != nil {
		return pairMeta{}, err
	}
	m.token0 = *abi.ConvertType(out[0], new(common.Address)).(*common.Address)
	if out, err = r.call(ctx, pc, nil, "token1"); err != nil {
		return pairMeta{}, err
	}
	m.token1 = *abi.ConvertType(out[0], new(common.Address)).(*common.Address)

	if m.decimals0, err = r.decimals(ctx, m.token0); err != nil {
		return pairMeta{}, err
	}
	if m.decimals1, err = r.decimals(ctx, m.token1); err != nil {
		return pairMeta{}, err
	}

	r.mu.Lock()
	r.meta[pair] = m
	r.mu.Unlock()
	return m, nil
}

func (r *pairReader) decimals(ctx context.Context, token common.Address) (uint8, error) {
	out, err := r.call(ctx, r.bind(token, erc20ABI), nil, "decimals")
	if err != nil {
		return 0, err
	}
	return *abi.ConvertType(out[0], new(uint8)).(*uint8), nil
}

// Reserves returns the raw pair reserves at block.
func (r *pairReader) Reserves(ctx context.Context, pair common.Address, block uint64) (*big.Int, *big.Int, error) {
	out, err := r.call(ctx, r.bind(pair, pairABI), new(big.Int).SetUint64(block), "getReserves")
	if err != nil {
		return nil, nil, err
	}
	r0 := abi.ConvertType(out[0], new(big.Int)).(*big.Int)
	r1 := abi.ConvertType(out[1], new(big.Int)).(*big.Int)
	return r0, r1, nil
}

// normalize scales a raw token amount by its decimals.
func normalize(v *big.Int, decimals uint8) float64 {
	if v == nil {
		return 0
	}
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), scale).Float64()
	return f
}

// blockDetailsFrom extracts the block_details preloader output.
func blockDetailsFrom(preloaded map[string]any) map[uint64]domain.BlockDetails {
	if v, ok := preloaded[BlockDetailsTask].(map[uint64]domain.BlockDetails); ok {
		return v
	}
	return nil
}
