// Package control wires every component of a snapshotter node and manages its lifecycle.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vietddude/snapshotter/internal/core/config"
	"github.com/vietddude/snapshotter/internal/core/domain"
	coreworker "github.com/vietddude/snapshotter/internal/core/worker"
	"github.com/vietddude/snapshotter/internal/indexing/detector"
	"github.com/vietddude/snapshotter/internal/indexing/distributor"
	"github.com/vietddude/snapshotter/internal/indexing/health"
	"github.com/vietddude/snapshotter/internal/indexing/notify"
	"github.com/vietddude/snapshotter/internal/indexing/processors"
	"github.com/vietddude/snapshotter/internal/indexing/registry"
	"github.com/vietddude/snapshotter/internal/indexing/worker"
	"github.com/vietddude/snapshotter/internal/infra/chain"
	"github.com/vietddude/snapshotter/internal/infra/chain/evm"
	"github.com/vietddude/snapshotter/internal/infra/collector"
	"github.com/vietddude/snapshotter/internal/infra/ipfs"
	redisclient "github.com/vietddude/snapshotter/internal/infra/redis"
	"github.com/vietddude/snapshotter/internal/infra/rpc"
	"github.com/vietddude/snapshotter/internal/infra/storage"
	"github.com/vietddude/snapshotter/internal/infra/storage/memory"
	"github.com/vietddude/snapshotter/internal/infra/storage/postgres"
	"github.com/vietddude/snapshotter/internal/infra/web3storage"
)

const (
	initSettle       = 60 * time.Second
	switchoverSettle = 10 * time.Second
	// shutdownGrace bounds how long Run waits for cancelled work to return.
	shutdownGrace = 5 * time.Second
)

// Snapshotter is the main application struct that owns the node components.
type Snapshotter struct {
	cfg          *config.AppConfig
	chains       *chain.Switchover
	clients      []*rpc.Client
	tasks        *registry.Set
	worker       *worker.Worker
	distributor  *distributor.Distributor
	detector     *detector.Detector
	reporter     *notify.Reporter
	collector    *collector.Client
	ledger       storage.SubmissionRepository
	pruner       *coreworker.Pruner
	healthServer *health.Server
	db           *postgres.DB
	redisClient  *redisclient.Client
	log          *slog.Logger
}

// New creates a Snapshotter with all dependencies initialized.
func New(ctx context.Context, cfg *config.AppConfig) (*Snapshotter, error) {
	s := &Snapshotter{cfg: cfg, log: slog.Default()}
	if err := s.build(ctx); err != nil {
		s.closeClients()
		return nil, err
	}
	return s, nil
}

func (s *Snapshotter) build(ctx context.Context) error {
	cfg := s.cfg

	// 1. Storage
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(); err != nil {
			_ = db.Close()
			return err
		}
		s.db = db
		s.ledger = postgres.NewSubmissionRepo(db)
		s.log.Info("Using PostgreSQL submission ledger")
	} else {
		s.ledger = memory.NewSubmissionRepo(memory.NewMemoryStorage())
		s.log.Info("Using in-memory submission ledger")
	}
	s.pruner = coreworker.NewPruner(cfg.LedgerRetention, s.ledger)

	if cfg.Redis.URL != "" {
		rc, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			s.log.Warn("Failed to connect to Redis, status mirror disabled", "error", err)
		} else {
			s.redisClient = rc
		}
	}

	// 2. Chains
	source, err := s.dial(ctx, "source", cfg.SourceChain)
	if err != nil {
		return err
	}
	chains, err := s.buildChains(ctx)
	if err != nil {
		return err
	}
	s.chains = chains

	// 3. Outbound I/O
	s.reporter = notify.NewReporter(cfg.Reporting, cfg.Instance)
	s.collector, err = collector.Dial(cfg.Collector.Address, cfg.Collector.DialTimeout, cfg.Collector.SendTimeout)
	if err != nil {
		return err
	}

	var store ipfs.Store = ipfs.LocalStore{}
	if cfg.IPFS.URL != "" {
		store = ipfs.NewClient(cfg.IPFS.URL, cfg.IPFS.Timeout)
	}

	// 4. Task table
	reg := registry.New()
	if err := processors.Register(reg); err != nil {
		return err
	}
	tasks, err := reg.Build(cfg.Projects, cfg.Preloaders, registry.Deps{
		Source:   evm.NewEVMAdapter(source),
		Pairs:    cfg.Pairs,
		Instance: cfg.Instance,
		Logger:   s.log,
	})
	if err != nil {
		return fmt.Errorf("failed to build task table: %w", err)
	}
	s.tasks = tasks

	// 5. Pipeline
	signer, err := worker.NewSigner(cfg.Instance.SignerPrivateKey)
	if err != nil {
		return err
	}
	marker := worker.NewMarker(cfg.MarkerPath)

	wcfg := worker.Config{
		Instance:     cfg.Instance,
		Chains:       chains,
		Signer:       signer,
		Store:        store,
		Submitter:    s.collector,
		Ledger:       s.ledger,
		Marker:       marker,
		Reporter:     s.reporter,
		Cooldown:     notify.NewCooldown(cfg.Reporting.NotificationCooldown),
		SkipCooldown: notify.NewCooldown(cfg.Reporting.NotificationCooldown),
		Projects:     tasks.ProjectTypes(),
		Logger:       s.log,
	}
	if cfg.Web3Storage.UploadSnapshots && cfg.Web3Storage.URL != "" {
		wcfg.Archiver = web3storage.NewUploader(cfg.Web3Storage.URL, cfg.Web3Storage.UploadURLSuffix, cfg.Web3Storage.APIToken, cfg.Web3Storage.Timeout)
	}
	if s.redisClient != nil {
		wcfg.Mirror = s.redisClient
	}
	s.worker, err = worker.New(wcfg)
	if err != nil {
		return err
	}

	s.distributor = distributor.New(distributor.Config{
		Tasks:   tasks,
		Worker:  s.worker,
		SlotID:  cfg.Instance.SlotID,
		Timeout: cfg.PreloaderTimeout,
		Logger:  s.log,
	})

	dcfg := detector.Config{
		Instance:             cfg.Instance,
		Chains:               chains,
		Source:               evm.NewEVMAdapter(source),
		Dispatcher:           s.distributor,
		Reporter:             s.reporter,
		Marker:               marker,
		PollInterval:         cfg.AnchorChain.RPC.PollingInterval,
		NotificationCooldown: cfg.Reporting.NotificationCooldown,
		FailureReportEvery:   cfg.Reporting.FailureReportEvery,
		InitSettle:           initSettle,
		SwitchoverSettle:     switchoverSettle,
		Logger:               s.log,
	}
	if s.redisClient != nil {
		dcfg.Mirror = s.redisClient
	}
	s.detector = detector.New(dcfg)

	// 6. Health
	mon := health.NewMonitor(chains, s.detector, s.worker, marker)
	s.healthServer = health.NewServer(mon, cfg.Server.Port)
	return nil
}

// buildChains dials the anchor chains. Without a switchover epoch both
// pairings share one context.
func (s *Snapshotter) buildChains(ctx context.Context) (*chain.Switchover, error) {
	cfg := s.cfg

	newRPC, err := s.dial(ctx, "anchor", cfg.AnchorChain.RPC)
	if err != nil {
		return nil, err
	}
	newCtx, err := chain.NewContext("anchor", domain.PairingNew, newRPC, cfg.AnchorChain)
	if err != nil {
		return nil, err
	}
	if cfg.SwitchoverEpoch == 0 {
		return &chain.Switchover{Old: newCtx, New: newCtx}, nil
	}

	oldRPC, err := s.dial(ctx, "old_anchor", cfg.OldAnchorChain.RPC)
	if err != nil {
		return nil, err
	}
	oldCtx, err := chain.NewContext("old_anchor", domain.PairingOld, oldRPC, cfg.OldAnchorChain)
	if err != nil {
		return nil, err
	}
	s.log.Info("Anchor chain switchover configured", "epoch", cfg.SwitchoverEpoch)
	return &chain.Switchover{Old: oldCtx, New: newCtx, Epoch: cfg.SwitchoverEpoch}, nil
}

func (s *Snapshotter) dial(ctx context.Context, name string, cfg config.RPCConfig) (*rpc.Client, error) {
	c, err := rpc.Dial(ctx, name, cfg)
	if err != nil {
		return nil, err
	}
	s.clients = append(s.clients, c)
	return c, nil
}

// Run starts the node and blocks until ctx is cancelled or the detector
// reports a fatal condition. In-flight work is cancelled on return, not drained.
func (s *Snapshotter) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	go func() {
		if err := s.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Health server failed", "error", err)
		}
	}()

	if s.db != nil {
		s.db.StartMetricsCollector(ctx)
	}
	go s.pruner.Start(ctx)

	s.distributor.Init(ctx, s.chains.ForEpoch(s.detector.LatestEpoch()).ProtocolState)
	s.log.Info("Snapshotter started",
		"instance", s.cfg.Instance.InstanceID,
		"slot", s.cfg.Instance.SlotID,
		"projects", s.tasks.ProjectTypes(),
	)

	err := s.detector.Run(ctx)

	cancel()
	if !awaitStop(shutdownGrace, s.detector.Wait, s.distributor.Wait, s.worker.Wait, s.reporter.Wait) {
		s.log.Warn("In-flight work did not stop in time, exiting anyway", "grace", shutdownGrace)
	}
	return err
}

// awaitStop runs waits in order and reports whether they all returned within grace.
func awaitStop(grace time.Duration, waits ...func()) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, wait := range waits {
			wait()
		}
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// Close releases every component.
func (s *Snapshotter) Close(ctx context.Context) error {
	s.log.Info("Stopping Snapshotter...")

	var errs []error
	if s.tasks != nil {
		if err := s.tasks.Cleanup(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.collector != nil {
		if err := s.collector.Close(); err != nil {
			errs = append(errs, fmt.Errorf("collector: %w", err))
		}
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("db: %w", err))
		}
	}
	s.closeClients()

	if s.healthServer != nil {
		if err := s.healthServer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("health server: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (s *Snapshotter) closeClients() {
	for _, c := range s.clients {
		c.Close()
	}
	s.clients = nil
}
