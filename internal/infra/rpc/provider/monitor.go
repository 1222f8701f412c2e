package provider

import (
	"strings"
	"sync"
	"time"
)

// ProviderStatus represents the health state of a provider.
type ProviderStatus int

const (
	StatusHealthy   ProviderStatus = iota // Provider is working normally
	StatusDegraded                        // Provider is slow but working
	StatusThrottled                       // Provider is rate limiting
)

func (s ProviderStatus) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusThrottled:
		return "throttled"
	default:
		return "unknown"
	}
}

// MonitorStats holds monitoring statistics for a provider.
type MonitorStats struct {
	Status         ProviderStatus `json:"status"`
	AverageLatency time.Duration  `json:"average_latency"`
	ThrottleCount  int            `json:"throttle_count"`
	RequestCount   int            `json:"request_count"`
}

// ProviderMonitor tracks provider latency and rate limiting.
type ProviderMonitor struct {
	mu sync.RWMutex

	recentLatencies  []time.Duration
	maxLatencyWindow int
	requestCount     int

	throttleCount    int
	throttlePatterns []string
	lastThrottleTime time.Time
	throttleCooldown time.Duration

	slowResponseThreshold time.Duration
}

// NewProviderMonitor creates a new monitor with default settings.
func NewProviderMonitor() *ProviderMonitor {
	return &ProviderMonitor{
		recentLatencies:  make([]time.Duration, 0, 100),
		maxLatencyWindow: 100,
		throttlePatterns: []string{
			"429",
			"rate limit",
			"too many requests",
			"daily request count exceeded",
			"quota exceeded",
		},
		throttleCooldown:      time.Minute,
		slowResponseThreshold: 3 * time.Second,
	}
}

// RecordRequest records a successful request with its latency.
func (pm *ProviderMonitor) RecordRequest(latency time.Duration) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.requestCount++
	pm.recentLatencies = append(pm.recentLatencies, latency)
	if len(pm.recentLatencies) > pm.maxLatencyWindow {
		pm.recentLatencies = pm.recentLatencies[1:]
	}
}

// RecordError inspects a failed call for throttling responses.
func (pm *ProviderMonitor) RecordError(err error) {
	if !pm.DetectThrottlePattern(err.Error()) {
		return
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.throttleCount++
	pm.lastThrottleTime = time.Now()
}

// DetectThrottlePattern checks if a message contains throttle patterns.
func (pm *ProviderMonitor) DetectThrottlePattern(message string) bool {
	lowerMsg := strings.ToLower(message)
	for _, pattern := range pm.throttlePatterns {
		if strings.Contains(lowerMsg, pattern) {
			return true
		}
	}
	return false
}

// CheckProviderStatus returns the current status of the provider.
func (pm *ProviderMonitor) CheckProviderStatus() ProviderStatus {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.statusLocked()
}

func (pm *ProviderMonitor) statusLocked() ProviderStatus {
	if pm.throttleCount > 0 && time.Since(pm.lastThrottleTime) < pm.throttleCooldown {
		return StatusThrottled
	}
	if len(pm.recentLatencies) > 10 && pm.averageLocked() > pm.slowResponseThreshold {
		return StatusDegraded
	}
	return StatusHealthy
}

func (pm *ProviderMonitor) averageLocked() time.Duration {
	if len(pm.recentLatencies) == 0 {
		return 0
	}
	var total time.Duration
	for _, lat := range pm.recentLatencies {
		total += lat
	}
	return total / time.Duration(len(pm.recentLatencies))
}

// GetStats returns current monitoring statistics.
func (pm *ProviderMonitor) GetStats() MonitorStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return MonitorStats{
		Status:         pm.statusLocked(),
		AverageLatency: pm.averageLocked(),
		ThrottleCount:  pm.throttleCount,
		RequestCount:   pm.requestCount,
	}
}
