// Package routing handles provider selection, circuit breaking and failover.
//
// This package contains:
//   - Router: interface for provider selection and health tracking
//   - DefaultRouter: implementation with circuit breaker
//   - Retry: retry with exponential backoff and failover across providers
package routing

import (
	"sort"
	"sync"
	"time"

	"github.com/vietddude/snapshotter/internal/infra/rpc/provider"
)

const (
	defaultCircuitThreshold = 3
	defaultCircuitCooldown  = 30 * time.Second
)

// Router handles provider selection and health tracking.
type Router interface {
	// AddProvider registers a provider for a specific chain
	AddProvider(chain string, p *provider.EthProvider)

	// GetProviders returns the chain's providers in the order they should be tried
	GetProviders(chain string) []*provider.EthProvider

	// RecordSuccess tracks successful calls
	RecordSuccess(chain, providerName string, latency time.Duration)

	// RecordFailure tracks failed calls
	RecordFailure(chain, providerName string, err error)
}

type providerMetrics struct {
	successCount     int
	failureCount     int
	totalLatency     time.Duration
	lastSuccessAt    time.Time
	lastFailureAt    time.Time
	consecutiveFails int
	circuitOpenUntil time.Time
}

// DefaultRouter implements provider selection with a circuit breaker.
// Configured order is kept among providers that are equally healthy.
type DefaultRouter struct {
	mu             sync.RWMutex
	chainProviders map[string][]*provider.EthProvider
	providerHealth map[string]*providerMetrics

	circuitThreshold int
	circuitCooldown  time.Duration
	now              func() time.Time
}

// NewRouter creates a new router.
func NewRouter() *DefaultRouter {
	return &DefaultRouter{
		chainProviders:   make(map[string][]*provider.EthProvider),
		providerHealth:   make(map[string]*providerMetrics),
		circuitThreshold: defaultCircuitThreshold,
		circuitCooldown:  defaultCircuitCooldown,
		now:              time.Now,
	}
}

func healthKey(chain, name string) string {
	return chain + "/" + name
}

// AddProvider registers a provider for a chain.
func (r *DefaultRouter) AddProvider(chain string, p *provider.EthProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.chainProviders[chain] = append(r.chainProviders[chain], p)
	r.providerHealth[healthKey(chain, p.GetName())] = &providerMetrics{
		lastSuccessAt: r.now(),
	}
}

// GetProviders returns closed-circuit available providers first, then the rest.
// A chain never ends up with nothing to try while it has providers.
func (r *DefaultRouter) GetProviders(chain string) []*provider.EthProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := r.chainProviders[chain]
	result := make([]*provider.EthProvider, len(providers))
	copy(result, providers)

	now := r.now()
	rank := func(p *provider.EthProvider) int {
		m := r.providerHealth[healthKey(chain, p.GetName())]
		switch {
		case m != nil && now.Before(m.circuitOpenUntil):
			return 2
		case !p.IsAvailable():
			return 1
		default:
			return 0
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return rank(result[i]) < rank(result[j])
	})
	return result
}

// IsCircuitOpen reports whether a provider is currently skipped.
func (r *DefaultRouter) IsCircuitOpen(chain, providerName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.providerHealth[healthKey(chain, providerName)]
	return ok && r.now().Before(m.circuitOpenUntil)
}

// RecordSuccess records a successful call.
func (r *DefaultRouter) RecordSuccess(chain, providerName string, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	metrics, ok := r.providerHealth[healthKey(chain, providerName)]
	if !ok {
		return
	}

	metrics.successCount++
	metrics.totalLatency += latency
	metrics.lastSuccessAt = r.now()
	metrics.consecutiveFails = 0
	metrics.circuitOpenUntil = time.Time{}
}

// RecordFailure records a failed call.
func (r *DefaultRouter) RecordFailure(chain, providerName string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	metrics, ok := r.providerHealth[healthKey(chain, providerName)]
	if !ok {
		return
	}

	metrics.failureCount++
	metrics.lastFailureAt = r.now()
	metrics.consecutiveFails++

	if metrics.consecutiveFails >= r.circuitThreshold {
		metrics.circuitOpenUntil = r.now().Add(r.circuitCooldown)
	}
}
