// Package contract binds the protocol state contract on the anchor chain.
package contract

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

//go:embed abi/ProtocolState.json
var protocolStateABI []byte

// blockTimeScale is the fixed-point scale of SOURCE_CHAIN_BLOCK_TIME.
const blockTimeScale = 1e4

var ErrInvalidAddress = errors.New("invalid contract address")

// Backend is what a bound contract needs from an RPC client.
type Backend interface {
	bind.ContractCaller
	bind.ContractFilterer
}

// CurrentEpoch is the decoded result of currentEpoch(dataMarket).
type CurrentEpoch struct {
	Begin   uint64
	End     uint64
	EpochID uint64
}

// ProtocolState is a read-only binding of one protocol state deployment.
type ProtocolState struct {
	address    common.Address
	dataMarket common.Address
	abi        abi.ABI
	bound      *bind.BoundContract
}

// LoadABI parses the ABI at path, or the embedded ABI when path is empty.
func LoadABI(path string) (abi.ABI, error) {
	data := protocolStateABI
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return abi.ABI{}, fmt.Errorf("failed to read abi file: %w", err)
		}
	}
	parsed, err := abi.JSON(bytes.NewReader(data))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse abi: %w", err)
	}
	return parsed, nil
}

// NewProtocolState binds the contract at address for one data market.
func NewProtocolState(address, dataMarket, abiPath string, backend Backend) (*ProtocolState, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	if !common.IsHexAddress(dataMarket) {
		return nil, fmt.Errorf("%w: data market %q", ErrInvalidAddress, dataMarket)
	}
	parsed, err := LoadABI(abiPath)
	if err != nil {
		return nil, err
	}

	addr := common.HexToAddress(address)
	return &ProtocolState{
		address:    addr,
		dataMarket: common.HexToAddress(dataMarket),
		abi:        parsed,
		bound:      bind.NewBoundContract(addr, parsed, backend, nil, backend),
	}, nil
}

// Address returns the contract address.
func (p *ProtocolState) Address() common.Address {
	return p.address
}

// DataMarket returns the data market this binding filters on.
func (p *ProtocolState) DataMarket() common.Address {
	return p.dataMarket
}

func (p *ProtocolState) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	var out []interface{}
	if err := p.bound.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}
	return out, nil
}

func (p *ProtocolState) callUint(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	out, err := p.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

// CurrentEpoch returns the data market's latest released epoch.
func (p *ProtocolState) CurrentEpoch(ctx context.Context) (CurrentEpoch, error) {
	out, err := p.call(ctx, "currentEpoch", p.dataMarket)
	if err != nil {
		return CurrentEpoch{}, err
	}
	begin := abi.ConvertType(out[0], new(big.Int)).(*big.Int)
	end := abi.ConvertType(out[1], new(big.Int)).(*big.Int)
	id := abi.ConvertType(out[2], new(big.Int)).(*big.Int)
	return CurrentEpoch{Begin: begin.Uint64(), End: end.Uint64(), EpochID: id.Uint64()}, nil
}

// EpochSize returns the number of source chain blocks per epoch.
func (p *ProtocolState) EpochSize(ctx context.Context) (uint64, error) {
	out, err := p.call(ctx, "EPOCH_SIZE", p.dataMarket)
	if err != nil {
		return 0, err
	}
	return uint64(*abi.ConvertType(out[0], new(uint8)).(*uint8)), nil
}

// SourceChainBlockTime returns the source chain block time in seconds.
func (p *ProtocolState) SourceChainBlockTime(ctx context.Context) (float64, error) {
	v, err := p.callUint(ctx, "SOURCE_CHAIN_BLOCK_TIME", p.dataMarket)
	if err != nil {
		return 0, err
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f / blockTimeScale, nil
}

func (p *ProtocolState) SourceChainID(ctx context.Context) (uint64, error) {
	v, err := p.callUint(ctx, "SOURCE_CHAIN_ID", p.dataMarket)
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}

// SnapshotSubmissionWindow returns the submission window in anchor chain blocks.
func (p *ProtocolState) SnapshotSubmissionWindow(ctx context.Context) (uint64, error) {
	v, err := p.callUint(ctx, "snapshotSubmissionWindow", p.dataMarket)
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}

func (p *ProtocolState) DayCounter(ctx context.Context) (uint64, error) {
	v, err := p.callUint(ctx, "dayCounter", p.dataMarket)
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}

// CheckSlotTaskStatusForDay reports whether the slot already met its quota for day.
func (p *ProtocolState) CheckSlotTaskStatusForDay(ctx context.Context, slotID, day uint64) (bool, error) {
	out, err := p.call(ctx, "checkSlotTaskStatusForDay",
		p.dataMarket, new(big.Int).SetUint64(slotID), new(big.Int).SetUint64(day))
	if err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// AllSnapshotters reports whether addr is a registered snapshotter.
func (p *ProtocolState) AllSnapshotters(ctx context.Context, addr common.Address) (bool, error) {
	out, err := p.call(ctx, "allSnapshotters", addr)
	if err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// SlotSnapshotterMapping returns the address assigned to a slot.
func (p *ProtocolState) SlotSnapshotterMapping(ctx context.Context, slotID uint64) (common.Address, error) {
	out, err := p.call(ctx, "slotSnapshotterMapping", new(big.Int).SetUint64(slotID))
	if err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}
