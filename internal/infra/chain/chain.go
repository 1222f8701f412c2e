// Package chain pairs an anchor chain RPC client with its protocol state binding
// and selects the pairing that owns a given epoch.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vietddude/snapshotter/internal/core/config"
	"github.com/vietddude/snapshotter/internal/core/domain"
	"github.com/vietddude/snapshotter/internal/infra/contract"
)

// Backend is what a chain context needs from an RPC client.
type Backend interface {
	contract.Backend
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// Anchor is the anchor block a submission is pinned to.
type Anchor struct {
	Number uint64
	Hash   common.Hash
}

// Context is one protocol deployment: an anchor chain and its state contract.
type Context struct {
	Name           string
	Pairing        domain.Pairing
	RPC            Backend
	ProtocolState  *contract.ProtocolState
	DeadlineBuffer uint64

	mu      sync.Mutex
	chainID *big.Int
}

// NewContext binds the protocol state contract described by cfg on backend.
func NewContext(name string, pairing domain.Pairing, backend Backend, cfg config.AnchorChainConfig) (*Context, error) {
	ps, err := contract.NewProtocolState(cfg.ProtocolState.Address, cfg.DataMarket, cfg.ProtocolState.ABI, backend)
	if err != nil {
		return nil, fmt.Errorf("chain %s: %w", name, err)
	}
	return &Context{
		Name:           name,
		Pairing:        pairing,
		RPC:            backend,
		ProtocolState:  ps,
		DeadlineBuffer: cfg.ProtocolState.DeadlineBuffer,
	}, nil
}

// DataMarket returns the data market address as checksummed hex.
func (c *Context) DataMarket() string {
	return c.ProtocolState.DataMarket().Hex()
}

// ProtocolStateAddress returns the state contract address.
func (c *Context) ProtocolStateAddress() common.Address {
	return c.ProtocolState.Address()
}

// LatestBlock returns the anchor chain head.
func (c *Context) LatestBlock(ctx context.Context) (uint64, error) {
	n, err := c.RPC.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("chain %s: failed to get block number: %w", c.Name, err)
	}
	return n, nil
}

// Anchor returns the number and hash of the current head block.
func (c *Context) Anchor(ctx context.Context) (Anchor, error) {
	header, err := c.RPC.HeaderByNumber(ctx, nil)
	if err != nil {
		return Anchor{}, fmt.Errorf("chain %s: failed to get head header: %w", c.Name, err)
	}
	return Anchor{Number: header.Number.Uint64(), Hash: header.Hash()}, nil
}

// ChainID returns the anchor chain id. It is fetched once and cached.
func (c *Context) ChainID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.chainID != nil {
		return new(big.Int).Set(c.chainID), nil
	}
	id, err := c.RPC.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain %s: failed to get chain id: %w", c.Name, err)
	}
	c.chainID = id
	return new(big.Int).Set(id), nil
}

// Switchover routes epochs to the old or new pairing.
// Epochs at or past Epoch belong to New.
type Switchover struct {
	Old   *Context
	New   *Context
	Epoch uint64
}

// ForEpoch returns the pairing that owns epochID.
func (s *Switchover) ForEpoch(epochID uint64) *Context {
	if epochID >= s.Epoch {
		return s.New
	}
	return s.Old
}

// Crossed reports whether epochID has reached the new pairing.
func (s *Switchover) Crossed(epochID uint64) bool {
	return epochID >= s.Epoch
}
