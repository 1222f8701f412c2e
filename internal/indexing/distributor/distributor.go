// Package distributor turns released epochs into project work. It runs every
// required preloader, gates project types on their preload tasks and hands
// the eligible ones to the worker without waiting on them.
package distributor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/snapshotter/internal/core/domain"
	"github.com/vietddude/snapshotter/internal/indexing/metrics"
	"github.com/vietddude/snapshotter/internal/indexing/registry"
	"github.com/vietddude/snapshotter/internal/infra/contract"
)

var (
	// ErrUnexpectedPreloaderResult is recorded when a preloader returns
	// something other than a domain.PreloaderResult.
	ErrUnexpectedPreloaderResult = errors.New("unexpected preloader result")
	ErrPreloaderPanic            = errors.New("preloader panicked")
)

const defaultPreloadTimeout = 60 * time.Second

// Worker executes project work for an epoch. Process reports failures itself;
// the returned error is only read by SelfTest.
type Worker interface {
	Process(ctx context.Context, project registry.Project, epoch domain.Epoch, preloaded map[string]any) error
	Skip(ctx context.Context, projectType string, epoch domain.Epoch, err error)
}

// Config holds distributor dependencies.
type Config struct {
	Tasks  *registry.Set
	Worker Worker
	SlotID uint64
	// Timeout returns the per-task preload timeout, defaults to 60s.
	Timeout func(task string) time.Duration
	Logger  *slog.Logger
}

// State is the protocol view loaded at init and updated by day events.
type State struct {
	Day                  uint64  `json:"day"`
	Active               bool    `json:"active"`
	EpochSize            uint64  `json:"epochSize"`
	SourceChainBlockTime float64 `json:"sourceChainBlockTime"`
	SourceChainID        uint64  `json:"sourceChainId"`
	SubmissionWindow     uint64  `json:"submissionWindow"`
}

type Distributor struct {
	tasks   *registry.Set
	worker  Worker
	slotID  uint64
	timeout func(string) time.Duration
	log     *slog.Logger

	mu    sync.RWMutex
	state State

	dispatched sync.WaitGroup
}

func New(cfg Config) *Distributor {
	timeout := cfg.Timeout
	if timeout == nil {
		timeout = func(string) time.Duration { return defaultPreloadTimeout }
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Distributor{
		tasks:   cfg.Tasks,
		worker:  cfg.Worker,
		slotID:  cfg.SlotID,
		timeout: timeout,
		log:     log.With("component", "distributor"),
		state:   State{Active: true},
	}
}

// Init loads protocol metadata from ps. Read failures are logged and leave
// the previous value; a failed task status read marks the node inactive.
func (d *Distributor) Init(ctx context.Context, ps *contract.ProtocolState) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if v, err := ps.SourceChainBlockTime(ctx); err != nil {
		d.log.Error("Failed to read source chain block time", "error", err)
	} else {
		d.state.SourceChainBlockTime = v
	}
	if v, err := ps.EpochSize(ctx); err != nil {
		d.log.Error("Failed to read epoch size", "error", err)
	} else {
		d.state.EpochSize = v
	}
	if v, err := ps.SourceChainID(ctx); err != nil {
		d.log.Error("Failed to read source chain id", "error", err)
	} else {
		d.state.SourceChainID = v
	}
	if v, err := ps.SnapshotSubmissionWindow(ctx); err != nil {
		d.log.Error("Failed to read submission window", "error", err)
	} else {
		d.state.SubmissionWindow = v
	}

	day, err := ps.DayCounter(ctx)
	if err == nil {
		d.state.Day = day
		var done bool
		done, err = ps.CheckSlotTaskStatusForDay(ctx, d.slotID, day)
		d.state.Active = !done
	}
	if err != nil {
		d.log.Error("Failed to read slot task status", "day", d.state.Day, "error", err)
		d.state.Active = false
	}
	d.log.Info("Distributor initialized",
		"day", d.state.Day,
		"active", d.state.Active,
		"epoch_size", d.state.EpochSize,
		"source_block_time", d.state.SourceChainBlockTime,
	)
}

// State returns a copy of the protocol view.
func (d *Distributor) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// Handle routes one protocol event.
func (d *Distributor) Handle(ctx context.Context, ev domain.Event) {
	switch e := ev.(type) {
	case domain.EpochReleasedEvent:
		d.ProcessEpoch(ctx, e)
	case domain.DayStartedEvent:
		d.mu.Lock()
		d.state.Active = true
		d.state.Day++
		day := d.state.Day
		d.mu.Unlock()
		d.log.Info("Day started, snapshotter active", "day", day, "event_day", e.DayID)
	case domain.DailyTaskCompletedEvent:
		d.mu.Lock()
		d.state.Active = false
		d.mu.Unlock()
		d.log.Info("Daily task completed, snapshotter inactive", "day", e.DayID)
	default:
		d.log.Error("Unknown event received", "type", fmt.Sprintf("%T", ev))
	}
}

// ProcessEpoch preloads, gates and dispatches every project type for ev.
// It returns once work is dispatched.
func (d *Distributor) ProcessEpoch(ctx context.Context, ev domain.EpochReleasedEvent) {
	d.processEpoch(ctx, ev, nil)
}

// SelfTest pushes a synthetic epoch through the pipeline and waits for the
// dispatched work. Any failed preloader or project commit fails the test.
func (d *Distributor) SelfTest(ctx context.Context, ev domain.EpochReleasedEvent) error {
	var (
		mu       sync.Mutex
		projects = make(map[string]error)
	)
	failed := d.processEpoch(ctx, ev, func(projectType string, err error) {
		mu.Lock()
		defer mu.Unlock()
		projects[projectType] = err
	})
	d.Wait()

	mu.Lock()
	defer mu.Unlock()
	errs := make([]error, 0, len(failed)+len(projects))
	for _, task := range sortedKeys(failed) {
		errs = append(errs, fmt.Errorf("preloader %s: %w", task, failed[task]))
	}
	for _, projectType := range sortedKeys(projects) {
		errs = append(errs, fmt.Errorf("project %s: %w", projectType, projects[projectType]))
	}
	return errors.Join(errs...)
}

// processEpoch dispatches ev and returns the failed preload tasks. onErr, when
// set, receives every project type whose work returned an error.
func (d *Distributor) processEpoch(ctx context.Context, ev domain.EpochReleasedEvent, onErr func(projectType string, err error)) map[string]error {
	epoch := domain.Epoch{
		EpochID: ev.EpochID,
		Begin:   ev.Begin,
		End:     ev.End,
		Day:     d.State().Day,
	}
	log := d.log.With("epoch", epoch.EpochID)

	results, failed := d.preload(ctx, epoch)
	if len(failed) > 0 {
		log.Warn("Some preloader tasks failed", "tasks", sortedKeys(failed))
	}

	for _, project := range d.tasks.Projects {
		var missing []string
		preloaded := make(map[string]any, len(project.PreloadTasks))
		for _, task := range project.PreloadTasks {
			if _, bad := failed[task]; bad {
				missing = append(missing, task)
				continue
			}
			if v, ok := results[task]; ok {
				preloaded[task] = v
			}
		}

		if len(missing) > 0 {
			sort.Strings(missing)
			log.Warn("Skipping project type due to failed preloaders", "project", project.Type, "tasks", missing)
			d.worker.Skip(ctx, project.Type, epoch,
				fmt.Errorf("failed preloaders for %s: %s", project.Type, strings.Join(missing, ", ")))
			continue
		}

		d.dispatched.Add(1)
		go func(project registry.Project) {
			defer d.dispatched.Done()
			err := d.worker.Process(ctx, project, epoch, preloaded)
			if err != nil && onErr != nil {
				onErr(project.Type, err)
			}
		}(project)
	}
	return failed
}

// Wait blocks until dispatched project work returns.
func (d *Distributor) Wait() {
	d.dispatched.Wait()
}

// preload runs every required task concurrently. A failing task never cancels its siblings.
func (d *Distributor) preload(ctx context.Context, epoch domain.Epoch) (map[string]any, map[string]error) {
	var (
		mu      sync.Mutex
		results = make(map[string]any, len(d.tasks.RequiredTasks))
		failed  = make(map[string]error)
		g       errgroup.Group
	)

	for _, task := range d.tasks.RequiredTasks {
		preloader, ok := d.tasks.Preloaders[task]
		if !ok {
			mu.Lock()
			failed[task] = fmt.Errorf("preloader %s not built", task)
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			tctx, cancel := context.WithTimeout(ctx, d.timeout(task))
			defer cancel()

			d.log.Debug("Starting preloader", "task", task, "epoch", epoch.EpochID)
			out, err := computeSafe(tctx, preloader, epoch)
			var value any
			if err == nil {
				res, ok := out.(domain.PreloaderResult)
				if !ok {
					err = fmt.Errorf("%w from %s: %T", ErrUnexpectedPreloaderResult, task, out)
				}
				value = res.Result
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				d.log.Error("Preloader failed", "task", task, "epoch", epoch.EpochID, "error", err)
				metrics.PreloaderFailures.WithLabelValues(task).Inc()
				failed[task] = err
				return nil
			}
			results[task] = value
			return nil
		})
	}
	_ = g.Wait()
	return results, failed
}

// computeSafe turns a preloader panic into an error so siblings keep running.
func computeSafe(ctx context.Context, p registry.Preloader, epoch domain.Epoch) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPreloaderPanic, r)
		}
	}()
	return p.Compute(ctx, epoch)
}

func sortedKeys(m map[string]error) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
