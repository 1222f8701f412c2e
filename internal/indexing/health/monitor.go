package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/snapshotter/internal/core/domain"
	"github.com/vietddude/snapshotter/internal/indexing/detector"
	"github.com/vietddude/snapshotter/internal/infra/chain"
)

const (
	checkInterval    = 10 * time.Second
	staleDegraded    = 5 * time.Minute
	staleCritical    = 15 * time.Minute
	lagDegraded      = 10
	lagCritical      = 100
	failuresCritical = 2
)

// DetectorSource exposes the detector state.
type DetectorSource interface {
	Status() detector.Status
}

// SubmissionSource exposes the submission counters.
type SubmissionSource interface {
	Status() domain.SnapshotterStatus
}

// MarkerReader returns the time of the last successful submission.
type MarkerReader interface {
	Read() (time.Time, error)
}

// Monitor aggregates health status from the detector and worker.
type Monitor struct {
	chains   *chain.Switchover
	detector DetectorSource
	worker   SubmissionSource
	marker   MarkerReader
	now      func() time.Time

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport *HealthReport
}

// NewMonitor creates a new health monitor. marker may be nil.
func NewMonitor(chains *chain.Switchover, det DetectorSource, worker SubmissionSource, marker MarkerReader) *Monitor {
	return &Monitor{
		chains:   chains,
		detector: det,
		worker:   worker,
		marker:   marker,
		now:      time.Now,
	}
}

// CheckHealth builds a report, reusing the previous one for checkInterval.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.lastReport != nil && now.Sub(m.lastCheck) < checkInterval {
		return *m.lastReport
	}

	report := HealthReport{
		Detector:    m.checkDetector(ctx),
		Submissions: m.checkSubmissions(now),
	}
	report.SystemStatus = worst(report.Detector.Status, report.Submissions.Status)

	m.lastCheck = now
	m.lastReport = &report
	return report
}

func (m *Monitor) checkDetector(ctx context.Context) DetectorHealth {
	st := m.detector.Status()
	cc := m.chains.ForEpoch(st.LatestEpoch)

	h := DetectorHealth{
		Chain:            cc.Name,
		Status:           StatusHealthy,
		LastProcessed:    st.Cursor.LastProcessed,
		LatestEpoch:      st.LatestEpoch,
		WatchdogFailures: st.WatchdogFailures,
	}

	head, err := cc.LatestBlock(ctx)
	if err != nil {
		h.Status = StatusDegraded
		h.Error = err.Error()
	} else {
		h.Head = head
		if st.Cursor.LastProcessed != nil && *st.Cursor.LastProcessed < head {
			h.BlockLag = head - *st.Cursor.LastProcessed
		}
	}

	switch {
	case h.BlockLag > lagCritical || h.WatchdogFailures >= failuresCritical:
		h.Status = StatusCritical
	case h.BlockLag > lagDegraded || h.WatchdogFailures > 0:
		h.Status = worst(h.Status, StatusDegraded)
	}
	return h
}

func (m *Monitor) checkSubmissions(now time.Time) SubmissionHealth {
	h := SubmissionHealth{Status: StatusHealthy}
	if m.worker != nil {
		h.Counters = m.worker.Status()
	}
	if m.marker == nil {
		return h
	}

	last, err := m.marker.Read()
	if err != nil {
		h.Status = StatusDegraded
		return h
	}
	h.LastSubmission = &last

	switch age := now.Sub(last); {
	case age > staleCritical:
		h.Status = StatusCritical
	case age > staleDegraded:
		h.Status = StatusDegraded
	}
	return h
}
