// Package contracttest provides a fake anchor chain that answers protocol
// state calls and serves encoded protocol events.
package contracttest

import (
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vietddude/snapshotter/internal/infra/contract"
	"github.com/vietddude/snapshotter/internal/infra/rpc/rpctest"
)

// ErrReverted is returned for calls without a registered answer.
var ErrReverted = errors.New("execution reverted")

// AnswerFunc computes the outputs of one contract call.
type AnswerFunc func(args []interface{}, block *big.Int) ([]interface{}, error)

// Chain is an rpctest.Backend that dispatches eth_call through registered ABIs.
type Chain struct {
	*rpctest.Backend

	mu      sync.Mutex
	abis    []abi.ABI
	answers map[string]AnswerFunc // "method" or "address/method"
	state   abi.ABI
}

// New returns a chain that knows the protocol state ABI.
func New(t testing.TB) *Chain {
	t.Helper()
	parsed, err := contract.LoadABI("")
	if err != nil {
		t.Fatalf("LoadABI failed: %v", err)
	}
	c := &Chain{
		Backend: &rpctest.Backend{},
		abis:    []abi.ABI{parsed},
		answers: make(map[string]AnswerFunc),
		state:   parsed,
	}
	c.Backend.CallFn = c.dispatch
	return c
}

// RegisterABI adds another contract ABI for call dispatch.
func (c *Chain) RegisterABI(parsed abi.ABI) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abis = append(c.abis, parsed)
}

// Answer sets fixed outputs for method on any address.
func (c *Chain) Answer(method string, values ...interface{}) {
	c.AnswerFunc("", method, func([]interface{}, *big.Int) ([]interface{}, error) {
		return values, nil
	})
}

// AnswerAt sets fixed outputs for method on one address.
func (c *Chain) AnswerAt(address, method string, values ...interface{}) {
	c.AnswerFunc(address, method, func([]interface{}, *big.Int) ([]interface{}, error) {
		return values, nil
	})
}

// Fail makes method return err on any address.
func (c *Chain) Fail(method string, err error) {
	c.AnswerFunc("", method, func([]interface{}, *big.Int) ([]interface{}, error) {
		return nil, err
	})
}

// AnswerFunc registers fn for method, scoped to address when it is not empty.
func (c *Chain) AnswerFunc(address, method string, fn AnswerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.answers[answerKey(address, method)] = fn
}

// AnswerDefaults registers a healthy protocol state for day 5 with the slot quota not yet met.
func (c *Chain) AnswerDefaults() {
	c.Answer("currentEpoch", u(100), u(109), u(42))
	c.Answer("EPOCH_SIZE", uint8(10))
	c.Answer("SOURCE_CHAIN_BLOCK_TIME", u(120000))
	c.Answer("SOURCE_CHAIN_ID", u(1))
	c.Answer("snapshotSubmissionWindow", u(20))
	c.Answer("dayCounter", u(5))
	c.Answer("checkSlotTaskStatusForDay", false)
}

// Bind returns a protocol state binding served by this chain.
func (c *Chain) Bind(t testing.TB, address, dataMarket string) *contract.ProtocolState {
	t.Helper()
	ps, err := contract.NewProtocolState(address, dataMarket, "", c)
	if err != nil {
		t.Fatalf("NewProtocolState failed: %v", err)
	}
	return ps
}

func (c *Chain) dispatch(call ethereum.CallMsg, block *big.Int) ([]byte, error) {
	if len(call.Data) < 4 {
		return nil, ErrReverted
	}

	c.mu.Lock()
	var (
		method *abi.Method
		fn     AnswerFunc
	)
	for i := range c.abis {
		m, err := c.abis[i].MethodById(call.Data[:4])
		if err != nil {
			continue
		}
		method = m
		break
	}
	if method != nil {
		to := ""
		if call.To != nil {
			to = call.To.Hex()
		}
		fn = c.answers[answerKey(to, method.Name)]
		if fn == nil {
			fn = c.answers[answerKey("", method.Name)]
		}
	}
	c.mu.Unlock()

	if method == nil || fn == nil {
		return nil, ErrReverted
	}

	args, err := method.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, err
	}
	values, err := fn(args, block)
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(values...)
}

func answerKey(address, method string) string {
	if address == "" {
		return method
	}
	return strings.ToLower(common.HexToAddress(address).Hex()) + "/" + method
}

// =============================================================================
// Event logs
// =============================================================================

// EpochReleasedLog encodes an EpochReleased event emitted by stateAddr at block.
func (c *Chain) EpochReleasedLog(stateAddr, market string, epochID, begin, end, ts, block uint64) types.Log {
	ev := c.state.Events["EpochReleased"]
	data, _ := ev.Inputs.NonIndexed().Pack(u(begin), u(end), u(ts))
	return types.Log{
		Address:     common.HexToAddress(stateAddr),
		Topics:      []common.Hash{ev.ID, addressTopic(market), common.BigToHash(u(epochID))},
		Data:        data,
		BlockNumber: block,
	}
}

// DayStartedLog encodes a DayStartedEvent.
func (c *Chain) DayStartedLog(stateAddr, market string, day, ts, block uint64) types.Log {
	ev := c.state.Events["DayStartedEvent"]
	data, _ := ev.Inputs.NonIndexed().Pack(u(day), u(ts))
	return types.Log{
		Address:     common.HexToAddress(stateAddr),
		Topics:      []common.Hash{ev.ID, addressTopic(market)},
		Data:        data,
		BlockNumber: block,
	}
}

// DailyTaskCompletedLog encodes a DailyTaskCompletedEvent.
func (c *Chain) DailyTaskCompletedLog(stateAddr, market, snapshotter string, slot, day, ts, block uint64) types.Log {
	ev := c.state.Events["DailyTaskCompletedEvent"]
	data, _ := ev.Inputs.NonIndexed().Pack(common.HexToAddress(snapshotter), u(slot), u(day), u(ts))
	return types.Log{
		Address:     common.HexToAddress(stateAddr),
		Topics:      []common.Hash{ev.ID, addressTopic(market)},
		Data:        data,
		BlockNumber: block,
	}
}

func addressTopic(addr string) common.Hash {
	return common.BytesToHash(common.HexToAddress(addr).Bytes())
}

func u(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}
