package provider

import (
	"sync"
	"time"
)

// BaseProvider implements common provider functionality.
// It handles health tracking and basic status checks.
type BaseProvider struct {
	Name string

	mu           sync.RWMutex
	health       HealthStatus
	totalLatency time.Duration
	successCount int
	failureCount int
	requestCount int

	Monitor *ProviderMonitor
}

// NewBaseProvider creates a new BaseProvider.
func NewBaseProvider(name string) *BaseProvider {
	return &BaseProvider{
		Name: name,
		health: HealthStatus{
			Available:     true,
			LastSuccessAt: time.Now(),
		},
		Monitor: NewProviderMonitor(),
	}
}

// GetName returns the provider's name.
func (p *BaseProvider) GetName() string {
	return p.Name
}

// GetHealth returns the provider's health status.
func (p *BaseProvider) GetHealth() HealthStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h := p.health
	stats := p.Monitor.GetStats()
	h.MonitorStats = &stats
	return h
}

// IsAvailable checks if the provider is available.
func (p *BaseProvider) IsAvailable() bool {
	p.mu.RLock()
	available := p.health.Available
	p.mu.RUnlock()
	if !available {
		return false
	}
	status := p.Monitor.CheckProviderStatus()
	return status == StatusHealthy || status == StatusDegraded
}

func (p *BaseProvider) RecordSuccess(latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.successCount++
	p.requestCount++
	p.totalLatency += latency
	p.health.LastSuccessAt = time.Now()
	p.health.Available = true

	p.health.ErrorRate = float64(p.failureCount) / float64(p.requestCount)
	p.health.Latency = p.totalLatency / time.Duration(p.successCount)

	p.Monitor.RecordRequest(latency)
}

func (p *BaseProvider) RecordFailure(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failureCount++
	p.requestCount++
	p.health.LastFailureAt = time.Now()
	p.health.ErrorRate = float64(p.failureCount) / float64(p.requestCount)

	// Only judge the error rate once there is a meaningful sample
	if p.requestCount >= 10 && p.health.ErrorRate > 0.5 {
		p.health.Available = false
	}

	if err != nil {
		p.Monitor.RecordError(err)
	}
}
