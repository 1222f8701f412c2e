// Package cursor tracks the detector's position in the anchor chain.
//
// # Purpose
//
// The tracker remembers the last anchor block whose events have been
// handed to the distributor, and derives the next block window to scan:
//   - The first poll starts one block behind the head
//   - A pointer at or past the head yields no window
//   - A pointer too far behind is clamped so only the most recent blocks are scanned
//
// # Key Features
//
// State Machine - Only allows valid transitions:
//
//	UNINITIALIZED → INITIALIZING → POLLING ⇄ CATCHING_UP (valid)
//	POLLING → UNINITIALIZED (invalid)
//
// Reset - Clears the pointer so the next poll re-derives it from a new head.
// This is what happens when the detector switches anchor chains.
//
// Atomic Updates - The pointer only advances AFTER a window's events are fetched.
//
// # Quick Start
//
//	tracker := cursor.NewTracker(cursor.DefaultMaxWindow)
//
//	w, ok := tracker.Window(head)
//	if !ok {
//	    // up to date, sleep
//	}
//	events := fetch(w.From, w.To)
//	tracker.Advance(w.To)
//
// # Package Structure
//
//   - state.go   - State machine definitions and valid transitions
//   - cursor.go  - Tracker implementation with clamping and reset
//   - metrics.go - Throughput metrics (blocks/sec, state history)
package cursor

import (
	"sync"
	"time"

	"github.com/vietddude/snapshotter/internal/core/domain"
)

// DefaultMaxWindow is the largest number of blocks scanned in one poll.
const DefaultMaxWindow uint64 = 10

// Cursor represents the detector position.
type Cursor = domain.Cursor

// State constants re-exported for convenience.
const (
	StateUninitialized = domain.CursorStateUninitialized
	StateInitializing  = domain.CursorStateInitializing
	StatePolling       = domain.CursorStatePolling
	StateCatchingUp    = domain.CursorStateCatchingUp
	StateShuttingDown  = domain.CursorStateShuttingDown
)

// Window is an inclusive block range to scan.
type Window struct {
	From    uint64
	To      uint64
	Clamped bool
}

// Size returns the number of blocks in the window.
func (w Window) Size() uint64 {
	if w.To < w.From {
		return 0
	}
	return w.To - w.From + 1
}

// Tracker holds the last processed block pointer. Safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	cursor    Cursor
	maxWindow uint64
	metrics   *MetricsCollector
	onChange  func(Transition)
	now       func() time.Time
}

// NewTracker creates a tracker in the uninitialized state.
func NewTracker(maxWindow uint64) *Tracker {
	if maxWindow == 0 {
		maxWindow = DefaultMaxWindow
	}
	return &Tracker{
		cursor:    Cursor{State: StateUninitialized},
		maxWindow: maxWindow,
		metrics:   NewMetricsCollector(100),
		now:       time.Now,
	}
}

// Get returns a copy of the current cursor.
func (t *Tracker) Get() Cursor {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.cursor
	if c.LastProcessed != nil {
		v := *c.LastProcessed
		c.LastProcessed = &v
	}
	return c
}

// LastProcessed returns the pointer value and whether it is set.
func (t *Tracker) LastProcessed() (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cursor.LastProcessed == nil {
		return 0, false
	}
	return *t.cursor.LastProcessed, true
}

// Window derives the next range to scan for the given head.
// It returns false when the pointer is already at or past the head.
// An unset pointer is placed one block behind head, and a pointer more
// than maxWindow-1 blocks behind is moved to head-maxWindow.
func (t *Tracker) Window(head uint64) (Window, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cursor.LastProcessed == nil {
		var start uint64
		if head > 0 {
			start = head - 1
		}
		t.setLocked(start)
		t.moveLocked(StateInitializing, "pointer derived from head")
	}

	last := *t.cursor.LastProcessed
	if last >= head {
		return Window{}, false
	}

	clamped := false
	if head-last >= t.maxWindow {
		last = head - t.maxWindow
		t.setLocked(last)
		clamped = true
		t.moveLocked(StateCatchingUp, "pointer too far behind head")
	}

	return Window{From: last + 1, To: head, Clamped: clamped}, true
}

// Advance records that every block up to and including to has been scanned.
func (t *Tracker) Advance(to uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var from uint64
	if t.cursor.LastProcessed != nil {
		from = *t.cursor.LastProcessed + 1
	}
	clamped := t.cursor.State == StateCatchingUp
	t.setLocked(to)
	t.metrics.RecordWindow(Window{From: from, To: to, Clamped: clamped}, t.cursor.UpdatedAt)
	t.moveLocked(StatePolling, "window processed")
}

// Reset clears the pointer so the next Window call re-derives it.
func (t *Tracker) Reset(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cursor.LastProcessed = nil
	t.cursor.UpdatedAt = t.now()
	t.metrics.RecordReset(t.cursor.UpdatedAt)
	t.moveLocked(StateInitializing, reason)
}

// SetState transitions the tracker to a new state.
func (t *Tracker) SetState(to State, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cursor.State == to {
		return nil
	}
	if !CanTransition(t.cursor.State, to) {
		return ErrInvalidTransition
	}
	t.transitionLocked(to, reason)
	return nil
}

// Lag returns how many blocks the pointer is behind head.
func (t *Tracker) Lag(head uint64) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cursor.LastProcessed == nil || *t.cursor.LastProcessed >= head {
		return 0
	}
	return head - *t.cursor.LastProcessed
}

// GetMetrics returns throughput metrics.
func (t *Tracker) GetMetrics() Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.metrics.GetMetrics()
}

// SetStateChangeCallback registers callback for state changes.
func (t *Tracker) SetStateChangeCallback(fn func(Transition)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = fn
}

func (t *Tracker) setLocked(v uint64) {
	t.cursor.LastProcessed = &v
	t.cursor.UpdatedAt = t.now()
}

// moveLocked applies a transition only when the state machine allows it.
func (t *Tracker) moveLocked(to State, reason string) {
	if t.cursor.State == to || !CanTransition(t.cursor.State, to) {
		return
	}
	t.transitionLocked(to, reason)
}

func (t *Tracker) transitionLocked(to State, reason string) {
	tr := Transition{From: t.cursor.State, To: to, Reason: reason, Timestamp: t.now()}
	t.cursor.State = to
	t.metrics.RecordTransition(tr)
	if t.onChange != nil {
		t.onChange(tr)
	}
}
