package worker

import (
	"sync"

	"github.com/vietddude/snapshotter/internal/core/domain"
)

// StatusTracker owns the process-lifetime submission counters.
type StatusTracker struct {
	mu     sync.Mutex
	status domain.SnapshotterStatus
}

func NewStatusTracker(projects []string) *StatusTracker {
	return &StatusTracker{status: domain.SnapshotterStatus{Projects: append([]string(nil), projects...)}}
}

// Success records a delivered submission and clears the consecutive miss streak.
func (t *StatusTracker) Success() domain.SnapshotterStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.TotalSuccessfulSubmissions++
	t.status.ConsecutiveMissedSubmissions = 0
	return t.copyLocked()
}

// Missed records one missed submission.
func (t *StatusTracker) Missed() domain.SnapshotterStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.TotalMissedSubmissions++
	t.status.ConsecutiveMissedSubmissions++
	return t.copyLocked()
}

// Get returns a copy of the counters.
func (t *StatusTracker) Get() domain.SnapshotterStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.copyLocked()
}

func (t *StatusTracker) copyLocked() domain.SnapshotterStatus {
	s := t.status
	s.Projects = append([]string(nil), t.status.Projects...)
	return s
}
