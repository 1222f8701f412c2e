package detector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/snapshotter/internal/core/config"
	"github.com/vietddude/snapshotter/internal/core/domain"
	"github.com/vietddude/snapshotter/internal/indexing/worker"
	"github.com/vietddude/snapshotter/internal/infra/chain"
	"github.com/vietddude/snapshotter/internal/infra/contract/contracttest"
)

const (
	stateAddr   = "0x1111111111111111111111111111111111111111"
	oldMarket   = "0x2222222222222222222222222222222222222222"
	newMarket   = "0x3333333333333333333333333333333333333333"
	otherMarket = "0x4444444444444444444444444444444444444444"
	instanceID  = "0x00000000000000000000000000000000000000aa"
	slotID      = 4
	switchover  = 1000
)

// =============================================================================
// Mocks
// =============================================================================

type fakeSource struct {
	head uint64
	err  error
}

func (f *fakeSource) GetLatestBlock(context.Context) (uint64, error) {
	return f.head, f.err
}

type fakeDispatcher struct {
	mu        sync.Mutex
	events    []domain.Event
	selfTests []domain.EpochReleasedEvent
	err       error
}

func (f *fakeDispatcher) Handle(_ context.Context, ev domain.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeDispatcher) SelfTest(_ context.Context, ev domain.EpochReleasedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selfTests = append(f.selfTests, ev)
	return f.err
}

func (f *fakeDispatcher) handled() []domain.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Event(nil), f.events...)
}

func (f *fakeDispatcher) selfTestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.selfTests)
}

type fakeReporter struct {
	mu      sync.Mutex
	issues  []domain.SnapshotterIssue
	pings   []domain.SnapshotterPing
	pingErr error
}

func (f *fakeReporter) Enabled() bool { return true }

func (f *fakeReporter) Issue(kind domain.IssueType, projectID, epochID string, err error) domain.SnapshotterIssue {
	return domain.SnapshotterIssue{IssueType: kind, ProjectID: projectID, EpochID: epochID, Extra: err.Error()}
}

func (f *fakeReporter) IssueWithDetails(kind domain.IssueType, projectID, epochID, details string) domain.SnapshotterIssue {
	return domain.SnapshotterIssue{IssueType: kind, ProjectID: projectID, EpochID: epochID, Extra: details}
}

func (f *fakeReporter) EpochProcessingIssue(issue domain.SnapshotterIssue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issues = append(f.issues, issue)
}

func (f *fakeReporter) Ping(_ context.Context, ping domain.SnapshotterPing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings = append(f.pings, ping)
	return f.pingErr
}

func (f *fakeReporter) reported() []domain.SnapshotterIssue {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.SnapshotterIssue(nil), f.issues...)
}

func (f *fakeReporter) pinged() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pings)
}

type fakeMirror struct {
	mu     sync.Mutex
	epochs []uint64
}

func (f *fakeMirror) SetLatestEpoch(_ context.Context, _ string, epochID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.epochs = append(f.epochs, epochID)
	return nil
}

// =============================================================================
// Fixture
// =============================================================================

type fixture struct {
	detector   *Detector
	oldChain   *contracttest.Chain
	newChain   *contracttest.Chain
	source     *fakeSource
	dispatcher *fakeDispatcher
	reporter   *fakeReporter
	mirror     *fakeMirror
	marker     *worker.Marker

	mu    sync.Mutex
	clock time.Time
}

func (f *fixture) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clock
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clock = f.clock.Add(d)
}

func newChainContext(t *testing.T, name string, pairing domain.Pairing, market string) (*chain.Context, *contracttest.Chain) {
	t.Helper()
	fake := contracttest.New(t)
	fake.AnswerDefaults()
	cc, err := chain.NewContext(name, pairing, fake, config.AnchorChainConfig{
		ProtocolState: config.ProtocolStateConfig{Address: stateAddr},
		DataMarket:    market,
	})
	if err != nil {
		t.Fatalf("NewContext failed: %v", err)
	}
	return cc, fake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	oldCtx, oldChain := newChainContext(t, "old", domain.PairingOld, oldMarket)
	newCtx, newChain := newChainContext(t, "new", domain.PairingNew, newMarket)
	oldChain.SetHead(500)
	newChain.SetHead(800)

	f := &fixture{
		oldChain:   oldChain,
		newChain:   newChain,
		source:     &fakeSource{head: 100},
		dispatcher: &fakeDispatcher{},
		reporter:   &fakeReporter{},
		mirror:     &fakeMirror{},
		marker:     worker.NewMarker(filepath.Join(t.TempDir(), "last_successful_submission.txt")),
		clock:      time.Unix(1_700_000_000, 0),
	}
	f.detector = New(Config{
		Instance:             config.InstanceConfig{InstanceID: instanceID, SlotID: slotID, Namespace: "UNISWAPV2"},
		Chains:               &chain.Switchover{Old: oldCtx, New: newCtx, Epoch: switchover},
		Source:               f.source,
		Dispatcher:           f.dispatcher,
		Reporter:             f.reporter,
		Mirror:               f.mirror,
		Marker:               f.marker,
		PollInterval:         time.Second,
		NotificationCooldown: time.Hour,
		FailureReportEvery:   time.Hour,
	})
	f.detector.now = f.now
	f.detector.lastCheck = f.clock
	f.detector.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return f
}

func (f *fixture) poll(t *testing.T) {
	t.Helper()
	if err := f.detector.Poll(context.Background()); err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	f.detector.Wait()
}

// =============================================================================
// Block windows
// =============================================================================

func TestPoll_FirstCycleScansHead(t *testing.T) {
	f := newFixture(t)
	f.poll(t)

	calls := f.oldChain.FilterCalls
	if len(calls) != 1 {
		t.Fatalf("expected 1 FilterLogs call, got %d", len(calls))
	}
	if calls[0].FromBlock.Uint64() != 500 || calls[0].ToBlock.Uint64() != 500 {
		t.Errorf("expected window [500, 500], got [%d, %d]", calls[0].FromBlock, calls[0].ToBlock)
	}
	if got, _ := f.detector.cursor.LastProcessed(); got != 500 {
		t.Errorf("expected pointer 500, got %d", got)
	}
}

func TestPoll_IdempotentAtHead(t *testing.T) {
	f := newFixture(t)
	f.poll(t)
	f.poll(t)
	f.poll(t)

	if n := f.oldChain.CallCount("FilterLogs"); n != 1 {
		t.Errorf("expected no log fetch once caught up, got %d calls", n)
	}
}

func TestPoll_ClampsWindow(t *testing.T) {
	f := newFixture(t)
	f.oldChain.SetHead(100)
	f.poll(t)

	f.oldChain.SetHead(600)
	f.poll(t)

	calls := f.oldChain.FilterCalls
	if len(calls) != 2 {
		t.Fatalf("expected 2 FilterLogs calls, got %d", len(calls))
	}
	if calls[1].FromBlock.Uint64() != 591 || calls[1].ToBlock.Uint64() != 600 {
		t.Errorf("expected window [591, 600], got [%d, %d]", calls[1].FromBlock, calls[1].ToBlock)
	}
}

func TestPoll_ContiguousWindows(t *testing.T) {
	f := newFixture(t)
	f.poll(t)

	f.oldChain.SetHead(503)
	f.poll(t)

	q := f.oldChain.FilterCalls[1]
	if q.FromBlock.Uint64() != 501 || q.ToBlock.Uint64() != 503 {
		t.Errorf("expected window [501, 503], got [%d, %d]", q.FromBlock, q.ToBlock)
	}
}

// =============================================================================
// Event filtering
// =============================================================================

func TestPoll_FiltersEvents(t *testing.T) {
	f := newFixture(t)
	c := f.oldChain
	c.AddLogs(
		c.EpochReleasedLog(stateAddr, oldMarket, 50, 1000, 1009, 77, 500),
		c.EpochReleasedLog(stateAddr, otherMarket, 51, 1010, 1019, 78, 500),
		c.DayStartedLog(stateAddr, oldMarket, 6, 79, 500),
		c.DayStartedLog(stateAddr, otherMarket, 7, 79, 500),
		c.DailyTaskCompletedLog(stateAddr, oldMarket, instanceID, slotID, 6, 80, 500),
		c.DailyTaskCompletedLog(stateAddr, oldMarket, instanceID, slotID+1, 6, 80, 500),
		c.DailyTaskCompletedLog(stateAddr, oldMarket, "0x00000000000000000000000000000000000000bb", slotID, 6, 80, 500),
	)
	f.poll(t)

	events := f.dispatcher.handled()
	if len(events) != 3 {
		t.Fatalf("expected 3 dispatched events, got %d: %+v", len(events), events)
	}

	kinds := map[domain.EventKind]int{}
	for _, ev := range events {
		kinds[ev.Kind()]++
		if e, ok := ev.(domain.EpochReleasedEvent); ok && e.EpochID != 50 {
			t.Errorf("expected epoch 50, got %d", e.EpochID)
		}
	}
	for _, k := range []domain.EventKind{domain.EventKindEpochReleased, domain.EventKindDayStarted, domain.EventKindDailyTaskCompleted} {
		if kinds[k] != 1 {
			t.Errorf("expected 1 %s event, got %d", k, kinds[k])
		}
	}

	if got := f.detector.LatestEpoch(); got != 50 {
		t.Errorf("expected latest epoch 50, got %d", got)
	}
	if len(f.mirror.epochs) != 1 || f.mirror.epochs[0] != 50 {
		t.Errorf("expected mirrored epoch 50, got %v", f.mirror.epochs)
	}
}

func TestPoll_LatestEpochNeverDecreases(t *testing.T) {
	f := newFixture(t)
	c := f.oldChain
	c.AddLogs(
		c.EpochReleasedLog(stateAddr, oldMarket, 60, 0, 9, 1, 500),
		c.EpochReleasedLog(stateAddr, oldMarket, 59, 0, 9, 1, 500),
	)
	f.poll(t)

	if got := f.detector.LatestEpoch(); got != 60 {
		t.Errorf("expected latest epoch 60, got %d", got)
	}
	if n := len(f.dispatcher.handled()); n != 2 {
		t.Errorf("expected both epochs dispatched, got %d", n)
	}
}

func TestPoll_SkipsUndecodableLogs(t *testing.T) {
	f := newFixture(t)
	c := f.oldChain
	bad := c.EpochReleasedLog(stateAddr, oldMarket, 61, 0, 9, 1, 500)
	bad.Data = []byte{0x1}
	c.AddLogs(bad, c.DayStartedLog(stateAddr, oldMarket, 6, 79, 500))
	f.poll(t)

	if n := len(f.dispatcher.handled()); n != 1 {
		t.Errorf("expected 1 dispatched event, got %d", n)
	}
}

// =============================================================================
// Switchover
// =============================================================================

func TestPoll_SwitchesChainAtBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.detector.setLatestEpoch(ctx, switchover-1)
	f.poll(t)
	if n := f.oldChain.CallCount("FilterLogs"); n != 1 {
		t.Fatalf("expected old chain scanned before the switchover, got %d", n)
	}

	f.detector.setLatestEpoch(ctx, switchover)
	f.poll(t)
	if n := f.dispatcher.selfTestCount(); n != 1 {
		t.Fatalf("expected 1 self-test at the switchover, got %d", n)
	}
	calls := f.newChain.FilterCalls
	if len(calls) != 1 {
		t.Fatalf("expected new chain scanned, got %d calls", len(calls))
	}
	if calls[0].FromBlock.Uint64() != 800 {
		t.Errorf("expected pointer re-derived from new head, got from=%d", calls[0].FromBlock)
	}
	if !f.detector.Status().SwitchoverComplete {
		t.Error("expected switchover recorded")
	}

	f.newChain.SetHead(801)
	f.poll(t)
	f.detector.setLatestEpoch(ctx, switchover+1)
	f.newChain.SetHead(802)
	f.poll(t)

	if n := f.dispatcher.selfTestCount(); n != 1 {
		t.Errorf("expected self-test to run once, got %d", n)
	}
	if n := f.oldChain.CallCount("FilterLogs"); n != 1 {
		t.Errorf("expected old chain abandoned, got %d calls", n)
	}
	if n := f.newChain.CallCount("FilterLogs"); n != 3 {
		t.Errorf("expected 3 new chain scans, got %d", n)
	}
}

func TestPoll_SwitchesWhenBoundaryEpochSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.oldChain.SetHead(5000)

	f.detector.setLatestEpoch(ctx, switchover-1)
	f.poll(t)

	f.detector.setLatestEpoch(ctx, switchover+1)
	f.poll(t)
	f.newChain.SetHead(810)
	f.poll(t)

	if n := f.dispatcher.selfTestCount(); n != 1 {
		t.Fatalf("expected 1 self-test after crossing the switchover, got %d", n)
	}
	if !f.detector.Status().SwitchoverComplete {
		t.Error("expected switchover recorded")
	}
	calls := f.newChain.FilterCalls
	if len(calls) != 2 {
		t.Fatalf("expected 2 new chain scans, got %d", len(calls))
	}
	if calls[1].FromBlock.Uint64() != 801 || calls[1].ToBlock.Uint64() != 810 {
		t.Errorf("expected window [801, 810], got [%d, %d]", calls[1].FromBlock, calls[1].ToBlock)
	}
	if got, _ := f.detector.cursor.LastProcessed(); got != 810 {
		t.Errorf("expected pointer 810, got %d", got)
	}
}

func TestPoll_SwitchoverSelfTestFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.err = errors.New("preloader down")
	f.detector.setLatestEpoch(context.Background(), switchover)

	err := f.detector.Poll(context.Background())
	if !errors.Is(err, ErrSelfTest) {
		t.Fatalf("expected ErrSelfTest, got %v", err)
	}
}

func TestNew_SingleDeploymentNeverSwitches(t *testing.T) {
	f := newFixture(t)
	sw := f.detector.chains
	d := New(Config{
		Chains:     &chain.Switchover{Old: sw.Old, New: sw.Old, Epoch: 0},
		Source:     f.source,
		Dispatcher: f.dispatcher,
	})
	d.sleep = f.detector.sleep
	d.setLatestEpoch(context.Background(), 0)

	if err := d.Poll(context.Background()); err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if n := f.dispatcher.selfTestCount(); n != 0 {
		t.Errorf("expected no switchover self-test, got %d", n)
	}
}

// =============================================================================
// RPC failures
// =============================================================================

func TestPoll_RPCErrorReportedWithCooldown(t *testing.T) {
	f := newFixture(t)
	f.oldChain.Err = errors.New("connection refused")

	for i := 0; i < 3; i++ {
		f.poll(t)
	}

	issues := f.reporter.reported()
	if len(issues) != 1 {
		t.Fatalf("expected 1 rate-limited report, got %d", len(issues))
	}
	if issues[0].IssueType != domain.IssueUnhealthyEpochProcessing {
		t.Errorf("expected %s, got %s", domain.IssueUnhealthyEpochProcessing, issues[0].IssueType)
	}
	if _, ok := f.detector.cursor.LastProcessed(); ok {
		t.Error("expected pointer untouched after a failed cycle")
	}
}

// =============================================================================
// Ping
// =============================================================================

func TestPoll_PingInterval(t *testing.T) {
	f := newFixture(t)
	f.poll(t)
	f.poll(t)
	if n := f.reporter.pinged(); n != 1 {
		t.Fatalf("expected 1 ping, got %d", n)
	}

	f.advance(31 * time.Second)
	f.poll(t)
	if n := f.reporter.pinged(); n != 2 {
		t.Fatalf("expected 2 pings, got %d", n)
	}

	ping := f.reporter.pings[0]
	if ping.InstanceID != instanceID || ping.SlotID != slotID || ping.Namespace != "UNISWAPV2" {
		t.Errorf("unexpected ping %+v", ping)
	}
	if !strings.EqualFold(ping.DataMarketAddress, oldMarket) {
		t.Errorf("expected old data market, got %s", ping.DataMarketAddress)
	}
}

func TestPoll_PingErrorIgnored(t *testing.T) {
	f := newFixture(t)
	f.reporter.pingErr = errors.New("http 502")
	f.poll(t)

	if n := f.oldChain.CallCount("FilterLogs"); n != 1 {
		t.Errorf("expected the cycle to continue after a ping error, got %d scans", n)
	}
}

// =============================================================================
// Watchdog
// =============================================================================

func TestWatchdog_FailsAfterThreeStaleChecks(t *testing.T) {
	f := newFixture(t)
	if err := f.marker.Write(f.now()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	f.advance(watchdogInterval + time.Second)
	f.poll(t)
	if got := f.detector.Status().WatchdogFailures; got != 0 {
		t.Fatalf("expected recent marker to pass, got %d failures", got)
	}

	f.advance(4 * time.Minute)
	f.poll(t)
	f.advance(watchdogInterval + time.Second)
	f.poll(t)
	if got := f.detector.Status().WatchdogFailures; got != 2 {
		t.Fatalf("expected 2 failures, got %d", got)
	}

	issues := f.reporter.reported()
	if len(issues) != 1 {
		t.Fatalf("expected 1 notification within the cooldown, got %d", len(issues))
	}
	if !strings.HasPrefix(issues[0].Extra, "No successful submission in the last 5 minutes. Last submission: ") {
		t.Errorf("unexpected details %q", issues[0].Extra)
	}

	f.advance(watchdogInterval + time.Second)
	err := f.detector.Poll(context.Background())
	if !errors.Is(err, ErrUnhealthy) {
		t.Fatalf("expected ErrUnhealthy, got %v", err)
	}
}

func TestWatchdog_FreshMarkerResetsFailures(t *testing.T) {
	f := newFixture(t)
	if err := f.marker.Write(f.now()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	f.advance(6 * time.Minute)
	f.poll(t)
	if got := f.detector.Status().WatchdogFailures; got != 1 {
		t.Fatalf("expected 1 failure, got %d", got)
	}

	if err := f.marker.Write(f.now()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	f.advance(watchdogInterval + time.Second)
	f.poll(t)
	if got := f.detector.Status().WatchdogFailures; got != 0 {
		t.Errorf("expected failures reset, got %d", got)
	}
}

func TestWatchdog_MissingMarkerCounts(t *testing.T) {
	f := newFixture(t)
	f.advance(watchdogInterval + time.Second)
	f.poll(t)

	if got := f.detector.Status().WatchdogFailures; got != 1 {
		t.Errorf("expected missing marker to count as a failure, got %d", got)
	}
	issues := f.reporter.reported()
	if len(issues) != 1 || !strings.HasPrefix(issues[0].Extra, "No successful submission recorded: ") {
		t.Errorf("expected one notification for a missing marker, got %+v", issues)
	}

	f.advance(watchdogInterval + time.Second)
	f.poll(t)
	if n := len(f.reporter.reported()); n != 1 {
		t.Errorf("expected repeat notification suppressed by cooldown, got %d", n)
	}
}

func TestWatchdog_UnreadableMarkerNotifies(t *testing.T) {
	f := newFixture(t)
	if err := os.WriteFile(f.marker.Path(), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	f.advance(watchdogInterval + time.Second)
	f.poll(t)

	if got := f.detector.Status().WatchdogFailures; got != 1 {
		t.Errorf("expected unreadable marker to count as a failure, got %d", got)
	}
	if n := len(f.reporter.reported()); n != 1 {
		t.Errorf("expected one notification, got %d", n)
	}
}

func TestWatchdog_SuppressedAtSwitchover(t *testing.T) {
	f := newFixture(t)
	if err := f.marker.Write(f.now()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	f.detector.setLatestEpoch(context.Background(), switchover)

	for i := 0; i < 4; i++ {
		f.advance(10 * time.Minute)
		f.poll(t)
	}
	if got := f.detector.Status().WatchdogFailures; got != 0 {
		t.Errorf("expected watchdog suppressed, got %d failures", got)
	}
}

func TestWatchdog_NotDueWithinInterval(t *testing.T) {
	f := newFixture(t)
	f.advance(watchdogInterval - time.Second)
	f.poll(t)

	if got := f.detector.Status().WatchdogFailures; got != 0 {
		t.Errorf("expected no check before the interval, got %d failures", got)
	}
}

// =============================================================================
// Init and Run
// =============================================================================

func TestInit(t *testing.T) {
	f := newFixture(t)
	if err := f.detector.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	if got := f.detector.LatestEpoch(); got != 42 {
		t.Errorf("expected latest epoch 42, got %d", got)
	}
	last, err := f.marker.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !last.Equal(f.now()) {
		t.Errorf("expected marker seeded at %v, got %v", f.now(), last)
	}

	tests := f.dispatcher.selfTests
	if len(tests) != 1 {
		t.Fatalf("expected 1 self-test, got %d", len(tests))
	}
	ev := tests[0]
	if ev.EpochID != 0 || ev.Begin != 91 || ev.End != 100 {
		t.Errorf("unexpected self-test epoch %+v", ev)
	}
}

func TestInit_LatestCappedAtSwitchover(t *testing.T) {
	f := newFixture(t)
	f.detector.chains.Epoch = 30

	if err := f.detector.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if got := f.detector.LatestEpoch(); got != 30 {
		t.Errorf("expected latest epoch 30, got %d", got)
	}
}

func TestInit_SelfTestFailure(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.err = errors.New("pair missing")

	err := f.detector.Init(context.Background())
	if !errors.Is(err, ErrSelfTest) {
		t.Fatalf("expected ErrSelfTest, got %v", err)
	}
	if n := len(f.reporter.reported()); n != 1 {
		t.Errorf("expected 1 notification, got %d", n)
	}
}

func TestInit_SourceHeadBelowSpan(t *testing.T) {
	f := newFixture(t)
	f.source.head = 5

	if err := f.detector.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if ev := f.dispatcher.selfTests[0]; ev.Begin != 0 || ev.End != 5 {
		t.Errorf("expected range [0, 5], got [%d, %d]", ev.Begin, ev.End)
	}
}

func TestInit_CurrentEpochError(t *testing.T) {
	f := newFixture(t)
	f.oldChain.Fail("currentEpoch", errors.New("reverted"))

	if err := f.detector.Init(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if n := f.dispatcher.selfTestCount(); n != 0 {
		t.Errorf("expected no self-test, got %d", n)
	}
}

func TestRun_ExitsWhenUnhealthy(t *testing.T) {
	f := newFixture(t)
	f.detector.sleep = func(ctx context.Context, _ time.Duration) error {
		f.advance(watchdogInterval + time.Second)
		return ctx.Err()
	}

	err := f.detector.Run(context.Background())
	if !errors.Is(err, ErrUnhealthy) {
		t.Fatalf("expected ErrUnhealthy, got %v", err)
	}
	f.detector.Wait()
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	polls := 0
	f.detector.sleep = func(ctx context.Context, d time.Duration) error {
		if d == f.detector.pollInterval {
			polls++
			if polls == 2 {
				cancel()
			}
		}
		return ctx.Err()
	}

	if err := f.detector.Run(ctx); err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}
	if polls != 2 {
		t.Errorf("expected 2 cycles, got %d", polls)
	}
}
