package provider

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"
)

// EthProvider is one Ethereum JSON-RPC endpoint.
type EthProvider struct {
	*BaseProvider
	backend Backend
}

// DialEthProvider connects to an endpoint over HTTP or WebSocket.
func DialEthProvider(ctx context.Context, name, url string) (*EthProvider, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", name, err)
	}
	return NewEthProvider(name, client), nil
}

// NewEthProvider wraps an existing backend.
func NewEthProvider(name string, backend Backend) *EthProvider {
	return &EthProvider{
		BaseProvider: NewBaseProvider(name),
		backend:      backend,
	}
}

// Backend returns the underlying client.
func (p *EthProvider) Backend() Backend {
	return p.backend
}

func (p *EthProvider) Close() error {
	p.backend.Close()
	return nil
}
