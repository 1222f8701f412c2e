// Package worker runs one project type's processor for an epoch and commits
// every snapshot it produces: serialize, store, sign, submit, account.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/snapshotter/internal/core/config"
	"github.com/vietddude/snapshotter/internal/core/domain"
	"github.com/vietddude/snapshotter/internal/indexing/metrics"
	"github.com/vietddude/snapshotter/internal/indexing/notify"
	"github.com/vietddude/snapshotter/internal/indexing/registry"
	"github.com/vietddude/snapshotter/internal/infra/chain"
	"github.com/vietddude/snapshotter/internal/infra/collector"
	"github.com/vietddude/snapshotter/internal/infra/ipfs"
	"github.com/vietddude/snapshotter/internal/infra/storage"
)

// Submitter delivers a signed submission to the collector.
type Submitter interface {
	Send(ctx context.Context, sub *domain.SnapshotSubmission) error
}

// Archiver keeps an extra copy of the serialized snapshot.
type Archiver interface {
	Upload(ctx context.Context, data []byte) error
}

// StatusMirror publishes counters for external readers.
type StatusMirror interface {
	SaveStatus(ctx context.Context, instanceID string, status domain.SnapshotterStatus) error
	SetLastSubmission(ctx context.Context, instanceID string, at time.Time) error
}

// Reporter sends missed snapshot reports.
type Reporter interface {
	Issue(kind domain.IssueType, projectID, epochID string, err error) domain.SnapshotterIssue
	SnapshotIssue(issue domain.SnapshotterIssue, status domain.SnapshotterStatus)
}

// ErrProcessorPanic wraps a panic recovered from a processor.
var ErrProcessorPanic = errors.New("processor panicked")

// Config holds worker dependencies. Archiver, Ledger, Mirror and Reporter are optional.
// Cooldown throttles commit failure reports, SkipCooldown throttles skip reports.
type Config struct {
	Instance     config.InstanceConfig
	Chains       *chain.Switchover
	Signer       *Signer
	Store        ipfs.Store
	Submitter    Submitter
	Archiver     Archiver
	Ledger       storage.SubmissionRepository
	Mirror       StatusMirror
	Marker       *Marker
	Reporter     Reporter
	Cooldown     *notify.Cooldown
	SkipCooldown *notify.Cooldown
	Projects     []string
	Logger       *slog.Logger
}

// Worker is shared by every project type of the process.
type Worker struct {
	instance  config.InstanceConfig
	chains    *chain.Switchover
	signer    *Signer
	store     ipfs.Store
	submitter Submitter
	archiver  Archiver
	ledger    storage.SubmissionRepository
	mirror    StatusMirror
	marker    *Marker
	reporter  Reporter
	cooldown  *notify.Cooldown
	skipCool  *notify.Cooldown
	status    *StatusTracker
	log       *slog.Logger
	now       func() time.Time

	windowMu sync.Mutex
	window   *uint64

	uploads sync.WaitGroup
}

func New(cfg Config) (*Worker, error) {
	if cfg.Chains == nil || cfg.Signer == nil || cfg.Submitter == nil {
		return nil, errors.New("worker: chains, signer and submitter are required")
	}
	store := cfg.Store
	if store == nil {
		store = ipfs.LocalStore{}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		instance:  cfg.Instance,
		chains:    cfg.Chains,
		signer:    cfg.Signer,
		store:     store,
		submitter: cfg.Submitter,
		archiver:  cfg.Archiver,
		ledger:    cfg.Ledger,
		mirror:    cfg.Mirror,
		marker:    cfg.Marker,
		reporter:  cfg.Reporter,
		cooldown:  cfg.Cooldown,
		skipCool:  cfg.SkipCooldown,
		status:    NewStatusTracker(cfg.Projects),
		log:       log.With("component", "worker"),
		now:       time.Now,
	}, nil
}

// Status returns a copy of the submission counters.
func (w *Worker) Status() domain.SnapshotterStatus {
	return w.status.Get()
}

// SubmissionWindow returns the protocol submission window, read once from the
// contract governing epochID and cached.
func (w *Worker) SubmissionWindow(ctx context.Context, epochID uint64) (uint64, error) {
	w.windowMu.Lock()
	defer w.windowMu.Unlock()
	if w.window != nil {
		return *w.window, nil
	}
	v, err := w.chains.ForEpoch(epochID).ProtocolState.SnapshotSubmissionWindow(ctx)
	if err != nil {
		return 0, err
	}
	w.window = &v
	return v, nil
}

// Process computes and commits the snapshots of one project type for epoch.
// Every failure is accounted and reported here. The joined failures are
// returned for callers that need a verdict, such as the self-test.
func (w *Worker) Process(ctx context.Context, project registry.Project, epoch domain.Epoch, preloaded map[string]any) (err error) {
	log := w.log.With("project", project.Type, "epoch", epoch.EpochID)
	fallbackID := fmt.Sprintf("%s:%s", project.Type, w.instance.Namespace)

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		err = fmt.Errorf("%w: %v", ErrProcessorPanic, r)
		log.Error("Processor panicked", "panic", r)
		w.miss(ctx, w.cooldown, project.Type, fallbackID, epoch, "processor_panic", err)
	}()

	if _, err := w.SubmissionWindow(ctx, epoch.EpochID); err != nil {
		log.Warn("Could not read submission window", "error", err)
	}

	start := w.now()
	outputs, err := project.Processor.Compute(ctx, epoch, preloaded)
	metrics.ProcessorLatency.WithLabelValues(project.Type).Observe(w.now().Sub(start).Seconds())
	if err != nil {
		log.Error("Processor failed", "error", err)
		w.miss(ctx, w.cooldown, project.Type, fallbackID, epoch, "processor_error", err)
		return err
	}
	if len(outputs) == 0 {
		log.Debug("No snapshots to commit")
		return nil
	}

	var errs []error
	for _, out := range outputs {
		projectID, err := ProjectID(project.Type, out.DataSource, w.instance.Namespace)
		if err != nil {
			log.Error("Bad data source from processor", "data_source", out.DataSource, "error", err)
			w.miss(ctx, w.cooldown, project.Type, fallbackID, epoch, "malformed_data_source", err)
			errs = append(errs, err)
			continue
		}
		if err := w.commit(ctx, project.Type, projectID, epoch, out.Snapshot); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", projectID, err))
		}
	}
	return errors.Join(errs...)
}

// Skip accounts a project type that could not run for epoch. The report uses
// the project type as project id since no snapshot identity exists yet.
func (w *Worker) Skip(ctx context.Context, projectType string, epoch domain.Epoch, err error) {
	w.miss(ctx, w.skipCool, projectType, projectType, epoch, "preloader_failed", err)
}

// Wait blocks until background archive uploads finish. Uploads stop when the
// context of the commit that started them is cancelled.
func (w *Worker) Wait() {
	w.uploads.Wait()
}

func (w *Worker) commit(ctx context.Context, projectType, projectID string, epoch domain.Epoch, snapshot any) error {
	log := w.log.With("project_id", projectID, "epoch", epoch.EpochID)
	rec := &domain.SubmissionRecord{
		ID:        uuid.NewString(),
		EpochID:   epoch.EpochID,
		ProjectID: projectID,
		CreatedAt: w.now().Unix(),
	}

	data, err := Canonical(snapshot)
	var cid string
	if err == nil {
		cid, err = w.store.Put(ctx, data)
	}
	if err != nil {
		log.Error("Failed to store snapshot", "error", err)
		rec.Outcome, rec.Error = domain.OutcomeStorageFailed, err.Error()
		w.record(ctx, rec)
		metrics.SubmissionsTotal.WithLabelValues(projectType, string(rec.Outcome)).Inc()
		w.miss(ctx, w.cooldown, projectType, projectID, epoch, "storage", err)
		w.archive(ctx, data)
		return err
	}
	rec.SnapshotCID = cid

	err = w.submit(ctx, projectID, epoch, cid)
	switch {
	case err == nil:
		log.Info("Snapshot submitted", "cid", cid)
	case errors.Is(err, collector.ErrStreamTerminated):
		log.Debug("Collector closed stream after send", "cid", cid)
		err = nil
	}

	if err != nil {
		log.Error("Failed to submit snapshot", "cid", cid, "error", err)
		rec.Outcome, rec.Error = domain.OutcomeSubmitFailed, err.Error()
		w.record(ctx, rec)
		metrics.SubmissionsTotal.WithLabelValues(projectType, string(rec.Outcome)).Inc()
		w.miss(ctx, w.cooldown, projectType, projectID, epoch, "submit", err)
	} else {
		rec.Outcome = domain.OutcomeSubmitted
		w.record(ctx, rec)
		metrics.SubmissionsTotal.WithLabelValues(projectType, string(rec.Outcome)).Inc()
		w.succeed(ctx)
	}
	w.archive(ctx, data)
	return err
}

func (w *Worker) submit(ctx context.Context, projectID string, epoch domain.Epoch, cid string) error {
	cc := w.chains.ForEpoch(epoch.EpochID)

	anchor, err := cc.Anchor(ctx)
	if err != nil {
		return err
	}
	chainID, err := cc.ChainID(ctx)
	if err != nil {
		return err
	}

	req := domain.SnapshotRequest{
		SlotID:      w.instance.SlotID,
		Deadline:    anchor.Number + cc.DeadlineBuffer,
		SnapshotCID: cid,
		EpochID:     epoch.EpochID,
		ProjectID:   projectID,
	}
	sig, err := w.signer.Sign(req, chainID, cc.ProtocolStateAddress())
	if err != nil {
		return err
	}

	return w.submitter.Send(ctx, &domain.SnapshotSubmission{
		Request:    req,
		Signature:  sig,
		Header:     anchor.Hash.Hex(),
		DataMarket: cc.DataMarket(),
		Simulation: epoch.IsSimulation(),
	})
}

func (w *Worker) succeed(ctx context.Context) {
	now := w.now()
	status := w.status.Success()
	if w.marker != nil {
		if err := w.marker.Write(now); err != nil {
			w.log.Error("Failed to write submission marker", "path", w.marker.Path(), "error", err)
		}
	}
	if w.mirror != nil {
		if err := w.mirror.SetLastSubmission(ctx, w.instance.InstanceID, now); err != nil {
			w.log.Warn("Failed to mirror last submission", "error", err)
		}
	}
	w.publish(ctx, status)
}

func (w *Worker) miss(ctx context.Context, cooldown *notify.Cooldown, projectType, projectID string, epoch domain.Epoch, reason string, err error) {
	status := w.status.Missed()
	metrics.MissedSnapshots.WithLabelValues(projectType, reason).Inc()
	w.publish(ctx, status)

	if w.reporter == nil {
		return
	}
	if cooldown != nil && !cooldown.Allow() {
		w.log.Debug("Notification suppressed by cooldown", "project_id", projectID, "epoch", epoch.EpochID)
		return
	}
	issue := w.reporter.Issue(domain.IssueMissedSnapshot, projectID, strconv.FormatUint(epoch.EpochID, 10), err)
	w.reporter.SnapshotIssue(issue, status)
}

func (w *Worker) publish(ctx context.Context, status domain.SnapshotterStatus) {
	if w.mirror == nil {
		return
	}
	if err := w.mirror.SaveStatus(ctx, w.instance.InstanceID, status); err != nil {
		w.log.Warn("Failed to mirror status", "error", err)
	}
}

func (w *Worker) record(ctx context.Context, rec *domain.SubmissionRecord) {
	if w.ledger == nil {
		return
	}
	if err := w.ledger.Save(ctx, rec); err != nil {
		w.log.Warn("Failed to record submission", "id", rec.ID, "error", err)
	}
}

func (w *Worker) archive(ctx context.Context, data []byte) {
	if w.archiver == nil || data == nil {
		return
	}
	w.uploads.Add(1)
	go func() {
		defer w.uploads.Done()
		if err := w.archiver.Upload(ctx, data); err != nil {
			w.log.Error("Web3 storage upload failed", "error", err)
		}
	}()
}
