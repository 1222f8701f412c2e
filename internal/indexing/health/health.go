// Package health provides node health monitoring and status reporting.
package health

import (
	"time"

	"github.com/vietddude/snapshotter/internal/core/domain"
)

// SystemStatus represents the overall health state of the node or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// DetectorHealth describes how far the event detector trails the anchor chain.
type DetectorHealth struct {
	Chain            string       `json:"chain"`
	Status           SystemStatus `json:"status"`
	Head             uint64       `json:"head"`
	LastProcessed    *uint64      `json:"last_processed,omitempty"`
	BlockLag         uint64       `json:"block_lag"`
	LatestEpoch      uint64       `json:"latest_epoch"`
	WatchdogFailures int          `json:"watchdog_failures"`
	Error            string       `json:"error,omitempty"`
}

// SubmissionHealth describes recent submission activity.
type SubmissionHealth struct {
	Status         SystemStatus             `json:"status"`
	LastSubmission *time.Time               `json:"last_submission,omitempty"`
	Counters       domain.SnapshotterStatus `json:"counters"`
}

// HealthReport contains the full node health report.
type HealthReport struct {
	SystemStatus SystemStatus     `json:"system_status"`
	Detector     DetectorHealth   `json:"detector"`
	Submissions  SubmissionHealth `json:"submissions"`
}

func worst(a, b SystemStatus) SystemStatus {
	rank := map[SystemStatus]int{StatusHealthy: 0, StatusDegraded: 1, StatusCritical: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
