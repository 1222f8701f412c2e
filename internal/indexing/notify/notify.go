// Package notify delivers snapshotter issue reports to Telegram, a generic
// webhook and the reporting service.
//
// Sends are fire-and-forget: each report is posted from its own goroutine
// and failures are only logged. Rate limiting is the caller's concern, see Cooldown.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vietddude/snapshotter/internal/core/config"
	"github.com/vietddude/snapshotter/internal/core/domain"
	"github.com/vietddude/snapshotter/internal/indexing/metrics"
)

const defaultTimeout = 10 * time.Second

// Sink is one notification destination.
type Sink interface {
	Name() string
	SnapshotIssue(ctx context.Context, issue domain.SnapshotterIssue, status domain.SnapshotterStatus) error
	EpochProcessingIssue(ctx context.Context, issue domain.SnapshotterIssue) error
}

// Reporter builds issues and fans them out to every configured sink.
type Reporter struct {
	instanceID string
	serviceURL string
	sinks      []Sink
	http       *http.Client
	log        *slog.Logger
	now        func() time.Time

	wg sync.WaitGroup
}

// NewReporter configures sinks from cfg. Sinks with missing settings are skipped.
func NewReporter(cfg config.ReportingConfig, instance config.InstanceConfig) *Reporter {
	client := &http.Client{Timeout: defaultTimeout}
	r := &Reporter{
		instanceID: instance.InstanceID,
		serviceURL: strings.TrimRight(cfg.ServiceURL, "/"),
		http:       client,
		log:        slog.Default().With("component", "notify"),
		now:        time.Now,
	}
	if cfg.TelegramURL != "" && cfg.TelegramChatID != "" {
		r.sinks = append(r.sinks, NewTelegramSink(cfg.TelegramURL, cfg.TelegramChatID, instance.SlotID, client))
	}
	if cfg.WebhookURL != "" {
		r.sinks = append(r.sinks, NewWebhookSink(cfg.WebhookURL, cfg.WebhookService, cfg.TelegramChatID, instance.SlotID, client))
	}
	return r
}

// Enabled reports whether any sink is configured.
func (r *Reporter) Enabled() bool {
	return len(r.sinks) > 0
}

// Issue builds a report whose extra carries the error text.
func (r *Reporter) Issue(kind domain.IssueType, projectID, epochID string, err error) domain.SnapshotterIssue {
	return r.IssueWithDetails(kind, projectID, epochID, fmt.Sprintf("Error : %v", err))
}

// IssueWithDetails builds a report with free-form details.
func (r *Reporter) IssueWithDetails(kind domain.IssueType, projectID, epochID, details string) domain.SnapshotterIssue {
	extra, _ := json.Marshal(map[string]string{"issueDetails": details})
	return domain.SnapshotterIssue{
		InstanceID:      r.instanceID,
		IssueType:       kind,
		ProjectID:       projectID,
		EpochID:         epochID,
		TimeOfReporting: strconv.FormatInt(r.now().Unix(), 10),
		Extra:           string(extra),
	}
}

// SnapshotIssue reports a per-project problem together with the status counters.
func (r *Reporter) SnapshotIssue(issue domain.SnapshotterIssue, status domain.SnapshotterStatus) {
	r.fanOut(issue.IssueType, func(ctx context.Context, s Sink) error {
		return s.SnapshotIssue(ctx, issue, status)
	})
}

// EpochProcessingIssue reports a node-level problem.
func (r *Reporter) EpochProcessingIssue(issue domain.SnapshotterIssue) {
	r.fanOut(issue.IssueType, func(ctx context.Context, s Sink) error {
		return s.EpochProcessingIssue(ctx, issue)
	})
}

func (r *Reporter) fanOut(kind domain.IssueType, send func(context.Context, Sink) error) {
	for _, sink := range r.sinks {
		sink := sink
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			if err := send(ctx, sink); err != nil {
				r.log.Error("Failed to send notification", "sink", sink.Name(), "issue", kind, "error", err)
				return
			}
			metrics.NotificationsSent.WithLabelValues(string(kind), sink.Name()).Inc()
			r.log.Debug("Notification sent", "sink", sink.Name(), "issue", kind)
		}()
	}
}

// Ping posts a liveness ping to the reporting service. It is a no-op without a service URL.
func (r *Reporter) Ping(ctx context.Context, ping domain.SnapshotterPing) error {
	if r.serviceURL == "" {
		return nil
	}
	return postJSON(ctx, r.http, r.serviceURL+"/ping", ping)
}

// Wait blocks until in-flight notifications finish.
func (r *Reporter) Wait() {
	r.wg.Wait()
}

func postJSON(ctx context.Context, client *http.Client, url string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned %d", url, resp.StatusCode)
	}
	return nil
}
