package rpc

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vietddude/snapshotter/internal/core/config"
	"github.com/vietddude/snapshotter/internal/indexing/metrics"
	"github.com/vietddude/snapshotter/internal/infra/rpc/provider"
	"github.com/vietddude/snapshotter/internal/infra/rpc/routing"
)

var (
	_ bind.ContractCaller   = (*Client)(nil)
	_ bind.ContractFilterer = (*Client)(nil)
)

// Client is the high-level interface for making RPC calls on one chain.
// This is what application layers should use.
type Client struct {
	chain   string
	router  routing.Router
	retry   routing.RetryConfig
	timeout time.Duration
}

// NewClient creates a new RPC client.
func NewClient(chain string, router routing.Router, retry routing.RetryConfig, timeout time.Duration) *Client {
	return &Client{
		chain:   chain,
		router:  router,
		retry:   retry,
		timeout: timeout,
	}
}

// Dial connects every configured node of a chain and returns a client over them.
func Dial(ctx context.Context, chain string, cfg config.RPCConfig) (*Client, error) {
	if len(cfg.Nodes) == 0 {
		return nil, fmt.Errorf("no rpc nodes configured for %s", chain)
	}

	router := routing.NewRouter()
	for _, node := range cfg.Nodes {
		p, err := provider.DialEthProvider(ctx, node.Name, node.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to init provider for %s: %w", chain, err)
		}
		router.AddProvider(chain, p)
	}

	retry := routing.DefaultRetryConfig
	retry.MaxAttempts = cfg.MaxAttempts
	return NewClient(chain, router, retry, cfg.RequestTimeout), nil
}

// Chain returns the logical chain name.
func (c *Client) Chain() string {
	return c.chain
}

// call wraps a failover call with a timeout and metrics.
func call[T any](
	ctx context.Context,
	c *Client,
	method string,
	fn func(ctx context.Context, b provider.Backend) (T, error),
) (T, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := routing.CallWithFailover(ctx, c.router, c.chain, c.retry, fn)
	metrics.RPCCallsTotal.WithLabelValues(c.chain, method).Inc()
	metrics.RPCLatency.WithLabelValues(c.chain, method).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RPCErrorsTotal.WithLabelValues(c.chain, method, routing.ClassifyError(err).String()).Inc()
		return result, fmt.Errorf("%s %s: %w", c.chain, method, err)
	}
	return result, nil
}

// BlockNumber returns the current chain head.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return call(ctx, c, "eth_blockNumber", func(ctx context.Context, b provider.Backend) (uint64, error) {
		return b.BlockNumber(ctx)
	})
}

// HeaderByNumber returns a block header, the latest when number is nil.
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return call(ctx, c, "eth_getHeaderByNumber", func(ctx context.Context, b provider.Backend) (*types.Header, error) {
		return b.HeaderByNumber(ctx, number)
	})
}

// BlockByNumber returns a full block, the latest when number is nil.
func (c *Client) BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error) {
	return call(ctx, c, "eth_getBlockByNumber", func(ctx context.Context, b provider.Backend) (*types.Block, error) {
		return b.BlockByNumber(ctx, number)
	})
}

// ChainID returns the EIP-155 chain id.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return call(ctx, c, "eth_chainId", func(ctx context.Context, b provider.Backend) (*big.Int, error) {
		return b.ChainID(ctx)
	})
}

func (c *Client) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return call(ctx, c, "eth_getCode", func(ctx context.Context, b provider.Backend) ([]byte, error) {
		return b.CodeAt(ctx, account, blockNumber)
	})
}

func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return call(ctx, c, "eth_call", func(ctx context.Context, b provider.Backend) ([]byte, error) {
		return b.CallContract(ctx, msg, blockNumber)
	})
}

func (c *Client) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return call(ctx, c, "eth_getLogs", func(ctx context.Context, b provider.Backend) ([]types.Log, error) {
		return b.FilterLogs(ctx, q)
	})
}

// SubscribeFilterLogs uses the first provider without retries, subscriptions are long lived.
func (c *Client) SubscribeFilterLogs(
	ctx context.Context,
	q ethereum.FilterQuery,
	ch chan<- types.Log,
) (ethereum.Subscription, error) {
	providers := c.router.GetProviders(c.chain)
	if len(providers) == 0 {
		return nil, fmt.Errorf("%w for chain %s", routing.ErrNoProviders, c.chain)
	}
	return providers[0].Backend().SubscribeFilterLogs(ctx, q, ch)
}

// Health returns the health of every provider keyed by name.
func (c *Client) Health() map[string]provider.HealthStatus {
	out := make(map[string]provider.HealthStatus)
	for _, p := range c.router.GetProviders(c.chain) {
		out[p.GetName()] = p.GetHealth()
	}
	return out
}

// Close closes every provider connection.
func (c *Client) Close() {
	for _, p := range c.router.GetProviders(c.chain) {
		_ = p.Close()
	}
}
