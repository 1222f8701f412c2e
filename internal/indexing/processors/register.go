// Package processors holds the built-in preloaders and Uniswap V2 style
// pair processors.
package processors

import (
	"log/slog"

	"github.com/vietddude/snapshotter/internal/indexing/registry"
)

// Register adds every built-in task to r.
func Register(r *registry.Registry) error {
	if err := r.RegisterPreloader(BlockDetailsTask, NewBlockDetailsPreloader); err != nil {
		return err
	}
	if err := r.RegisterProcessor(PairTotalReservesTask, NewPairTotalReserves); err != nil {
		return err
	}
	return r.RegisterProcessor(TradeVolumeTask, NewTradeVolume)
}

func componentLogger(deps registry.Deps, name string) *slog.Logger {
	l := deps.Logger
	if l == nil {
		l = slog.Default()
	}
	return l.With("component", name)
}
