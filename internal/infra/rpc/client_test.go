package rpc

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/vietddude/snapshotter/internal/infra/rpc/provider"
	"github.com/vietddude/snapshotter/internal/infra/rpc/routing"
	"github.com/vietddude/snapshotter/internal/infra/rpc/rpctest"
)

func newTestClient(backends ...*rpctest.Backend) *Client {
	router := routing.NewRouter()
	for i, b := range backends {
		router.AddProvider("source", provider.NewEthProvider(string(rune('a'+i)), b))
	}
	retry := routing.RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
	return NewClient("source", router, retry, time.Second)
}

func TestClient_Failover(t *testing.T) {
	c := newTestClient(
		&rpctest.Backend{Err: errors.New("502 bad gateway")},
		&rpctest.Backend{Head: 100, ChainNo: 1},
	)
	ctx := context.Background()

	head, err := c.BlockNumber(ctx)
	if err != nil {
		t.Fatalf("BlockNumber failed: %v", err)
	}
	if head != 100 {
		t.Errorf("Expected head 100, got %d", head)
	}

	id, err := c.ChainID(ctx)
	if err != nil || id.Cmp(big.NewInt(1)) != 0 {
		t.Errorf("Expected chain id 1, got %v (%v)", id, err)
	}

	health := c.Health()
	if len(health) != 2 {
		t.Fatalf("Expected health for 2 providers, got %d", len(health))
	}
	if health["a"].LastFailureAt.IsZero() {
		t.Error("Expected failing provider to record a failure")
	}
}

func TestClient_AllFail(t *testing.T) {
	c := newTestClient(&rpctest.Backend{Err: errors.New("connection refused")})
	if _, err := c.HeaderByNumber(context.Background(), nil); err == nil {
		t.Fatal("Expected error when every provider fails")
	}
}
