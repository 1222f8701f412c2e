package routing

import (
	"errors"
	"testing"
	"time"

	"github.com/vietddude/snapshotter/internal/infra/rpc/provider"
	"github.com/vietddude/snapshotter/internal/infra/rpc/rpctest"
)

func TestRouter_CircuitBreaker(t *testing.T) {
	now := time.Unix(1000, 0)
	r := NewRouter()
	r.now = func() time.Time { return now }

	r.AddProvider("source", provider.NewEthProvider("a", &rpctest.Backend{}))
	r.AddProvider("source", provider.NewEthProvider("b", &rpctest.Backend{}))

	if got := r.GetProviders("source"); got[0].GetName() != "a" {
		t.Fatalf("Expected configured order, got %s first", got[0].GetName())
	}

	for i := 0; i < defaultCircuitThreshold; i++ {
		r.RecordFailure("source", "a", errors.New("timeout"))
	}
	if !r.IsCircuitOpen("source", "a") {
		t.Fatal("Expected circuit to open")
	}
	if got := r.GetProviders("source"); got[0].GetName() != "b" || got[1].GetName() != "a" {
		t.Errorf("Expected open circuit provider last, got %s,%s", got[0].GetName(), got[1].GetName())
	}

	now = now.Add(defaultCircuitCooldown + time.Second)
	if r.IsCircuitOpen("source", "a") {
		t.Error("Expected circuit to close after cooldown")
	}

	r.RecordFailure("source", "a", errors.New("timeout"))
	r.RecordSuccess("source", "a", time.Millisecond)
	if r.providerHealth[healthKey("source", "a")].consecutiveFails != 0 {
		t.Error("Expected success to reset consecutive failures")
	}
}

func TestRouter_ChainsIsolated(t *testing.T) {
	r := NewRouter()
	r.AddProvider("source", provider.NewEthProvider("node-0", &rpctest.Backend{}))
	r.AddProvider("anchor", provider.NewEthProvider("node-0", &rpctest.Backend{}))

	for i := 0; i < defaultCircuitThreshold; i++ {
		r.RecordFailure("source", "node-0", errors.New("timeout"))
	}
	if r.IsCircuitOpen("anchor", "node-0") {
		t.Error("Expected same-named providers on different chains to be tracked separately")
	}
}
