// Package detector polls the governing anchor chain for protocol events and
// feeds them to the distributor. It also owns the startup self-test and the
// submission health watchdog.
package detector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/vietddude/snapshotter/internal/core/config"
	"github.com/vietddude/snapshotter/internal/core/cursor"
	"github.com/vietddude/snapshotter/internal/core/domain"
	"github.com/vietddude/snapshotter/internal/indexing/metrics"
	"github.com/vietddude/snapshotter/internal/indexing/notify"
	"github.com/vietddude/snapshotter/internal/indexing/worker"
	"github.com/vietddude/snapshotter/internal/infra/chain"
)

var (
	// ErrSelfTest is returned when the synthetic startup epoch cannot be processed.
	ErrSelfTest = errors.New("self-test failed")

	// ErrUnhealthy is returned after repeated failed submission health checks.
	ErrUnhealthy = errors.New("no recent successful submissions")
)

const (
	watchdogInterval    = 120 * time.Second
	submissionStaleness = 300 * time.Second
	maxWatchdogFailures = 3
	pingInterval        = 30 * time.Second
	selfTestSpan        = 9
)

// Dispatcher consumes detected events.
type Dispatcher interface {
	Handle(ctx context.Context, ev domain.Event)
	SelfTest(ctx context.Context, ev domain.EpochReleasedEvent) error
}

// SourceChain reports the source chain head used for the self-test range.
type SourceChain interface {
	GetLatestBlock(ctx context.Context) (uint64, error)
}

// Reporter sends node-level issues and liveness pings.
type Reporter interface {
	Enabled() bool
	Issue(kind domain.IssueType, projectID, epochID string, err error) domain.SnapshotterIssue
	IssueWithDetails(kind domain.IssueType, projectID, epochID, details string) domain.SnapshotterIssue
	EpochProcessingIssue(issue domain.SnapshotterIssue)
	Ping(ctx context.Context, ping domain.SnapshotterPing) error
}

// EpochMirror publishes the latest epoch for external readers.
type EpochMirror interface {
	SetLatestEpoch(ctx context.Context, instanceID string, epochID uint64) error
}

// Config holds detector dependencies. Reporter and Mirror are optional.
type Config struct {
	Instance   config.InstanceConfig
	Chains     *chain.Switchover
	Source     SourceChain
	Dispatcher Dispatcher
	Reporter   Reporter
	Mirror     EpochMirror
	Marker     *worker.Marker

	PollInterval         time.Duration
	NotificationCooldown time.Duration
	FailureReportEvery   time.Duration
	// InitSettle and SwitchoverSettle pause after the startup and switchover self-tests.
	InitSettle       time.Duration
	SwitchoverSettle time.Duration

	Logger *slog.Logger
}

// Status is the detector state exported for health checks.
type Status struct {
	LatestEpoch        uint64         `json:"latestEpoch"`
	Cursor             domain.Cursor  `json:"cursor"`
	Metrics            cursor.Metrics `json:"metrics"`
	WatchdogFailures   int            `json:"watchdogFailures"`
	LastWatchdogCheck  time.Time      `json:"lastWatchdogCheck"`
	SwitchoverComplete bool           `json:"switchoverComplete"`
}

type Detector struct {
	instance   config.InstanceConfig
	chains     *chain.Switchover
	source     SourceChain
	dispatcher Dispatcher
	reporter   Reporter
	mirror     EpochMirror
	marker     *worker.Marker
	cursor     *cursor.Tracker
	log        *slog.Logger

	pollInterval     time.Duration
	initSettle       time.Duration
	switchoverSettle time.Duration
	watchdogCooldown *notify.Cooldown
	rpcCooldown      *notify.Cooldown

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu           sync.RWMutex
	latestEpoch  uint64
	switchedOver bool
	failures     int
	lastCheck    time.Time
	lastPing     time.Time

	handlers sync.WaitGroup
}

func New(cfg Config) *Detector {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Detector{
		instance:         cfg.Instance,
		chains:           cfg.Chains,
		source:           cfg.Source,
		dispatcher:       cfg.Dispatcher,
		reporter:         cfg.Reporter,
		mirror:           cfg.Mirror,
		marker:           cfg.Marker,
		cursor:           cursor.NewTracker(cursor.DefaultMaxWindow),
		log:              log.With("component", "detector"),
		pollInterval:     cfg.PollInterval,
		initSettle:       cfg.InitSettle,
		switchoverSettle: cfg.SwitchoverSettle,
		watchdogCooldown: notify.NewCooldown(cfg.NotificationCooldown),
		rpcCooldown:      notify.NewCooldown(cfg.FailureReportEvery),
		now:              time.Now,
		sleep:            sleepCtx,
		// a single deployment has nothing to switch over to
		switchedOver: cfg.Chains.Old == cfg.Chains.New,
	}
}

// Run initializes the detector and polls until ctx is done or a fatal
// condition (ErrSelfTest, ErrUnhealthy) occurs.
func (d *Detector) Run(ctx context.Context) error {
	if err := d.Init(ctx); err != nil {
		return err
	}
	d.log.Info("Detector started", "latest_epoch", d.LatestEpoch(), "poll_interval", d.pollInterval)

	for {
		if err := d.Poll(ctx); err != nil {
			return err
		}
		if err := d.sleep(ctx, d.pollInterval); err != nil {
			d.log.Info("Detector stopped")
			return nil
		}
	}
}

// Init seeds the watchdog marker and latest epoch, then runs the self-test.
func (d *Detector) Init(ctx context.Context) error {
	now := d.now()
	if d.marker != nil {
		if err := d.marker.Write(now); err != nil {
			d.log.Error("Failed to seed submission marker", "path", d.marker.Path(), "error", err)
		}
	}
	d.mu.Lock()
	d.lastCheck = now
	d.mu.Unlock()

	current, err := d.chains.Old.ProtocolState.CurrentEpoch(ctx)
	if err != nil {
		return fmt.Errorf("failed to read current epoch: %w", err)
	}
	d.setLatestEpoch(ctx, min(current.EpochID, d.chains.Epoch))

	if err := d.selfTest(ctx); err != nil {
		return err
	}
	return d.sleep(ctx, d.initSettle)
}

// LatestEpoch returns the highest epoch id seen for this data market.
func (d *Detector) LatestEpoch() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.latestEpoch
}

// Status returns a snapshot of the detector state.
func (d *Detector) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Status{
		LatestEpoch:        d.latestEpoch,
		Cursor:             d.cursor.Get(),
		Metrics:            d.cursor.GetMetrics(),
		WatchdogFailures:   d.failures,
		LastWatchdogCheck:  d.lastCheck,
		SwitchoverComplete: d.switchedOver,
	}
}

// Wait blocks until dispatched event handlers return.
func (d *Detector) Wait() {
	d.handlers.Wait()
}

// Poll runs one detection cycle. Only fatal conditions are returned;
// RPC failures are logged, reported and retried on the next cycle.
func (d *Detector) Poll(ctx context.Context) error {
	if d.watchdogDue() {
		if err := d.checkLastSubmission(); err != nil {
			return err
		}
	}

	d.ping(ctx)

	head, cc, err := d.currentBlock(ctx)
	if err != nil {
		if errors.Is(err, ErrSelfTest) || ctx.Err() != nil {
			return err
		}
		d.log.Error("Unable to fetch current block", "error", err)
		d.reportRPCError(err)
		return nil
	}

	window, ok := d.cursor.Window(head)
	if !ok {
		d.log.Debug("Last processed block is up to date", "head", head)
		return nil
	}
	if window.Clamped {
		d.log.Warn("Detector fell behind, skipping to recent blocks", "from", window.From, "to", window.To)
	}

	events, err := d.events(ctx, cc, window.From, window.To)
	if err != nil {
		d.log.Error("Unable to fetch events", "from", window.From, "to", window.To, "error", err)
		d.reportRPCError(err)
		return nil
	}

	for _, ev := range events {
		d.log.Info("Processing event", "kind", ev.Kind())
		d.handlers.Add(1)
		go func(ev domain.Event) {
			defer d.handlers.Done()
			d.dispatcher.Handle(ctx, ev)
		}(ev)
	}

	d.cursor.Advance(window.To)
	metrics.DetectorLastBlock.Set(float64(window.To))
	d.log.Debug("Processed blocks", "to", window.To, "events", len(events))
	return nil
}

// currentBlock returns the head of the governing chain. The first cycle at
// or past the switchover epoch resets the pointer and reruns the self-test.
func (d *Detector) currentBlock(ctx context.Context) (uint64, *chain.Context, error) {
	latest := d.LatestEpoch()

	d.mu.RLock()
	switching := d.chains.Crossed(latest) && !d.switchedOver
	d.mu.RUnlock()

	if switching {
		d.log.Info("Switching to new anchor chain, rerunning self-test", "epoch", latest)
		d.cursor.Reset("switchover")
		if err := d.selfTest(ctx); err != nil {
			return 0, nil, err
		}
		if err := d.sleep(ctx, d.switchoverSettle); err != nil {
			return 0, nil, err
		}
		d.mu.Lock()
		d.switchedOver = true
		d.mu.Unlock()
	}

	cc := d.chains.ForEpoch(latest)
	head, err := cc.LatestBlock(ctx)
	return head, cc, err
}

// events fetches and filters protocol events in [from, to] on cc.
func (d *Detector) events(ctx context.Context, cc *chain.Context, from, to uint64) ([]domain.Event, error) {
	logs, err := cc.RPC.FilterLogs(ctx, cc.ProtocolState.FilterQuery(from, to))
	if err != nil {
		return nil, err
	}

	market := cc.DataMarket()
	var out []domain.Event
	for _, l := range logs {
		ev, err := cc.ProtocolState.DecodeLog(l)
		if err != nil {
			d.log.Warn("Skipping undecodable log", "tx", l.TxHash.Hex(), "error", err)
			continue
		}

		switch e := ev.(type) {
		case domain.EpochReleasedEvent:
			if !strings.EqualFold(e.DataMarket, market) {
				d.log.Debug("Skipping epoch for another data market", "market", e.DataMarket)
				continue
			}
			metrics.EpochsDetected.Inc()
			if e.EpochID > d.LatestEpoch() {
				d.setLatestEpoch(ctx, e.EpochID)
			}
		case domain.DayStartedEvent:
			if !strings.EqualFold(e.DataMarket, market) {
				continue
			}
		case domain.DailyTaskCompletedEvent:
			if !strings.EqualFold(e.SnapshotterAddress, d.instance.InstanceID) || e.SlotID != d.instance.SlotID {
				d.log.Debug("Skipping daily task completion for another snapshotter", "slot", e.SlotID)
				continue
			}
		}
		out = append(out, ev)
	}
	return out, nil
}

func (d *Detector) setLatestEpoch(ctx context.Context, epochID uint64) {
	d.mu.Lock()
	d.latestEpoch = epochID
	d.mu.Unlock()
	metrics.LatestEpoch.Set(float64(epochID))

	if d.mirror != nil {
		if err := d.mirror.SetLatestEpoch(ctx, d.instance.InstanceID, epochID); err != nil {
			d.log.Warn("Failed to mirror latest epoch", "error", err)
		}
	}
}

// selfTest pushes a synthetic epoch 0 over the last ten source chain blocks
// through the full pipeline.
func (d *Detector) selfTest(ctx context.Context) error {
	d.log.Info("Running startup self-test")
	err := d.runSelfTest(ctx)
	if err == nil {
		d.log.Info("Self-test passed")
		return nil
	}
	d.log.Error("Self-test failed, check configuration", "error", err)
	if d.reporter != nil {
		d.reporter.EpochProcessingIssue(d.reporter.Issue(domain.IssueUnhealthyEpochProcessing, "", "", err))
	}
	return fmt.Errorf("%w: %v", ErrSelfTest, err)
}

func (d *Detector) runSelfTest(ctx context.Context) error {
	head, err := d.source.GetLatestBlock(ctx)
	if err != nil {
		return fmt.Errorf("failed to read source chain head: %w", err)
	}
	var begin uint64
	if head > selfTestSpan {
		begin = head - selfTestSpan
	}
	return d.dispatcher.SelfTest(ctx, domain.EpochReleasedEvent{
		EpochID:   0,
		Begin:     begin,
		End:       head,
		Timestamp: uint64(d.now().Unix()),
	})
}

// checkLastSubmission fails when the marker is missing, unreadable or older
// than five minutes. It returns ErrUnhealthy on the third consecutive failure.
func (d *Detector) checkLastSubmission() error {
	now := d.now()
	latest := d.LatestEpoch()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastCheck = now

	if d.chains.Old != d.chains.New && latest == d.chains.Epoch {
		d.log.Info("Skipping submission check until the new chain releases an epoch")
		return nil
	}

	last, err := d.marker.Read()
	switch {
	case err != nil:
		d.log.Error("Failed to read submission marker", "error", err)
		d.failures++
		d.notifyUnhealthy("No successful submission recorded: " + err.Error())
	case now.Sub(last) > submissionStaleness:
		stamp := last.Local().Format("2006-01-02 15:04:05")
		d.log.Error("No successful submission in the last 5 minutes", "last_submission", stamp)
		d.failures++
		d.notifyUnhealthy("No successful submission in the last 5 minutes. Last submission: " + stamp)
	default:
		d.log.Debug("Last submission is recent", "last_submission", last)
		d.failures = 0
	}

	metrics.WatchdogFailures.Set(float64(d.failures))
	if d.failures >= maxWatchdogFailures {
		return fmt.Errorf("%w: %d consecutive failed checks", ErrUnhealthy, d.failures)
	}
	return nil
}

// notifyUnhealthy is called with d.mu held.
func (d *Detector) notifyUnhealthy(details string) {
	if d.reporter == nil || !d.reporter.Enabled() || !d.watchdogCooldown.Allow() {
		return
	}
	d.reporter.EpochProcessingIssue(d.reporter.IssueWithDetails(domain.IssueUnhealthyEpochProcessing, "", "", details))
}

func (d *Detector) watchdogDue() bool {
	if d.marker == nil {
		return false
	}
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lastCheck.IsZero() {
		d.lastCheck = now
		return false
	}
	return now.Sub(d.lastCheck) > watchdogInterval
}

func (d *Detector) reportRPCError(err error) {
	if d.reporter == nil || !d.rpcCooldown.Allow() {
		return
	}
	d.reporter.EpochProcessingIssue(d.reporter.Issue(domain.IssueUnhealthyEpochProcessing, "", "", err))
}

func (d *Detector) ping(ctx context.Context) {
	if d.reporter == nil {
		return
	}
	now := d.now()
	d.mu.Lock()
	if !d.lastPing.IsZero() && now.Sub(d.lastPing) < pingInterval {
		d.mu.Unlock()
		return
	}
	d.lastPing = now
	d.mu.Unlock()

	err := d.reporter.Ping(ctx, domain.SnapshotterPing{
		InstanceID:        d.instance.InstanceID,
		SlotID:            d.instance.SlotID,
		DataMarketAddress: d.chains.ForEpoch(d.LatestEpoch()).DataMarket(),
		Namespace:         d.instance.Namespace,
		NodeVersion:       d.instance.NodeVersion,
	})
	if err != nil {
		d.log.Error("Error while pinging reporting service", "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
