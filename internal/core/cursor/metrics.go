package cursor

import (
	"time"
)

// windowRecord holds timing data for a processed window.
type windowRecord struct {
	To          uint64
	Blocks      uint64
	ProcessedAt time.Time
}

// Metrics holds tracker performance data.
type Metrics struct {
	BlocksPerSecond float64
	Windows         int
	ClampCount      int
	ResetCount      int
	LastResetAt     *time.Time
	StateHistory    []Transition
}

// MetricsCollector tracks window throughput over time.
type MetricsCollector struct {
	windowSize  int            // number of windows to track
	windows     []windowRecord // ring buffer of window records
	transitions []Transition   // recent state changes
	total       int
	clamps      int
	resets      int
	lastResetAt *time.Time
}

// NewMetricsCollector creates a new metrics collector with the given window size.
func NewMetricsCollector(windowSize int) *MetricsCollector {
	if windowSize <= 0 {
		windowSize = 100
	}
	return &MetricsCollector{
		windowSize:  windowSize,
		windows:     make([]windowRecord, 0, windowSize),
		transitions: make([]Transition, 0, 10),
	}
}

// RecordWindow records a processed window.
func (mc *MetricsCollector) RecordWindow(w Window, processedAt time.Time) {
	record := windowRecord{
		To:          w.To,
		Blocks:      w.Size(),
		ProcessedAt: processedAt,
	}

	if len(mc.windows) >= mc.windowSize {
		// Shift elements left, drop oldest
		copy(mc.windows, mc.windows[1:])
		mc.windows[len(mc.windows)-1] = record
	} else {
		mc.windows = append(mc.windows, record)
	}
	mc.total++
	if w.Clamped {
		mc.clamps++
	}
}

// RecordTransition records a state transition.
func (mc *MetricsCollector) RecordTransition(t Transition) {
	// Keep only last 10 transitions
	if len(mc.transitions) >= 10 {
		copy(mc.transitions, mc.transitions[1:])
		mc.transitions[len(mc.transitions)-1] = t
	} else {
		mc.transitions = append(mc.transitions, t)
	}
}

// RecordReset records a pointer reset.
func (mc *MetricsCollector) RecordReset(at time.Time) {
	mc.resets++
	mc.lastResetAt = &at
}

// GetMetrics calculates current metrics.
func (mc *MetricsCollector) GetMetrics() Metrics {
	m := Metrics{
		Windows:      mc.total,
		ClampCount:   mc.clamps,
		ResetCount:   mc.resets,
		LastResetAt:  mc.lastResetAt,
		StateHistory: append([]Transition(nil), mc.transitions...),
	}

	if len(mc.windows) < 2 {
		return m
	}

	first := mc.windows[0]
	last := mc.windows[len(mc.windows)-1]
	elapsed := last.ProcessedAt.Sub(first.ProcessedAt)
	if elapsed <= 0 {
		return m
	}

	var blocks uint64
	for _, w := range mc.windows[1:] {
		blocks += w.Blocks
	}
	m.BlocksPerSecond = float64(blocks) / elapsed.Seconds()
	return m
}
