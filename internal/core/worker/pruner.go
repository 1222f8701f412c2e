package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/snapshotter/internal/infra/storage"
)

// Pruner deletes old submission ledger rows based on retention policy.
type Pruner struct {
	retention time.Duration
	repo      storage.SubmissionRepository
	now       func() time.Time
}

// NewPruner creates a new Pruner worker.
func NewPruner(retention time.Duration, repo storage.SubmissionRepository) *Pruner {
	return &Pruner{
		retention: retention,
		repo:      repo,
		now:       time.Now,
	}
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// Check every 10% of the retention period, clamped to [1m, 1h]
	interval := min(p.retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial prune
	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	threshold := p.now().Add(-p.retention).Unix()

	n, err := p.repo.PruneBefore(ctx, threshold)
	if err != nil {
		slog.Error("[Pruner] failed to prune submissions", "error", err)
		return
	}
	if n > 0 {
		slog.Debug("[Pruner] pruned submissions", "count", n)
	}
}
