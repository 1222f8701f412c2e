package registry

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/vietddude/snapshotter/internal/core/config"
	"github.com/vietddude/snapshotter/internal/core/domain"
)

// =============================================================================
// Mocks
// =============================================================================

type stubProcessor struct {
	cleanupErr error
}

func (p *stubProcessor) Compute(context.Context, domain.Epoch, map[string]any) ([]domain.ProcessorOutput, error) {
	return nil, nil
}

func (p *stubProcessor) Cleanup(context.Context) error { return p.cleanupErr }

type stubPreloader struct{}

func (stubPreloader) Compute(context.Context, domain.Epoch) (any, error) { return nil, nil }
func (stubPreloader) Cleanup(context.Context) error                      { return nil }

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New()
	for _, name := range []string{"pair_total_reserves", "trade_volume"} {
		if err := r.RegisterProcessor(name, func(Deps) (Processor, error) { return &stubProcessor{}, nil }); err != nil {
			t.Fatalf("RegisterProcessor failed: %v", err)
		}
	}
	for _, name := range []string{"block_details", "eth_price"} {
		if err := r.RegisterPreloader(name, func(Deps) (Preloader, error) { return stubPreloader{}, nil }); err != nil {
			t.Fatalf("RegisterPreloader failed: %v", err)
		}
	}
	return r
}

// =============================================================================
// Tests
// =============================================================================

func TestRegister_Duplicates(t *testing.T) {
	r := newTestRegistry(t)

	err := r.RegisterProcessor("trade_volume", func(Deps) (Processor, error) { return &stubProcessor{}, nil })
	if !errors.Is(err, ErrDuplicateProjectType) {
		t.Errorf("expected ErrDuplicateProjectType, got %v", err)
	}
	err = r.RegisterPreloader("block_details", func(Deps) (Preloader, error) { return stubPreloader{}, nil })
	if !errors.Is(err, ErrDuplicatePreloader) {
		t.Errorf("expected ErrDuplicatePreloader, got %v", err)
	}
}

func TestBuild(t *testing.T) {
	r := newTestRegistry(t)

	set, err := r.Build(
		[]config.ProjectConfig{
			{ProjectType: "trade_volume", PreloadTasks: []string{"eth_price", "block_details"}},
			{ProjectType: "pair_total_reserves", PreloadTasks: []string{"block_details"}},
			{ProjectType: "reserves_alias", Processor: "pair_total_reserves"},
		},
		[]config.PreloaderConfig{{TaskType: "block_details"}, {TaskType: "eth_price"}},
		Deps{},
	)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if want := []string{"block_details", "eth_price"}; !reflect.DeepEqual(set.RequiredTasks, want) {
		t.Errorf("expected required tasks %v, got %v", want, set.RequiredTasks)
	}
	if want := []string{"trade_volume", "pair_total_reserves", "reserves_alias"}; !reflect.DeepEqual(set.ProjectTypes(), want) {
		t.Errorf("expected project order %v, got %v", want, set.ProjectTypes())
	}
	if p, ok := set.Project("reserves_alias"); !ok || p.Processor == nil {
		t.Error("expected aliased project bound to a processor")
	}
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name       string
		projects   []config.ProjectConfig
		preloaders []config.PreloaderConfig
		want       error
	}{
		{
			name:     "duplicate project type",
			projects: []config.ProjectConfig{{ProjectType: "trade_volume"}, {ProjectType: "trade_volume"}},
			want:     ErrDuplicateProjectType,
		},
		{
			name:       "duplicate preloader",
			preloaders: []config.PreloaderConfig{{TaskType: "block_details"}, {TaskType: "block_details"}},
			want:       ErrDuplicatePreloader,
		},
		{
			name:     "unknown processor",
			projects: []config.ProjectConfig{{ProjectType: "aave_supply"}},
			want:     ErrUnknownTask,
		},
		{
			name:       "unknown preloader",
			preloaders: []config.PreloaderConfig{{TaskType: "tx_receipts"}},
			want:       ErrUnknownTask,
		},
		{
			name:     "preload task not configured",
			projects: []config.ProjectConfig{{ProjectType: "trade_volume", PreloadTasks: []string{"eth_price"}}},
			want:     ErrUnknownTask,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestRegistry(t).Build(tt.projects, tt.preloaders, Deps{})
			if !errors.Is(err, tt.want) {
				t.Errorf("Build() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSetCleanup_JoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	set := &Set{
		Projects: []Project{
			{Type: "a", Processor: &stubProcessor{cleanupErr: boom}},
			{Type: "b", Processor: &stubProcessor{}},
		},
		Preloaders: map[string]Preloader{"block_details": stubPreloader{}},
	}

	if err := set.Cleanup(context.Background()); !errors.Is(err, boom) {
		t.Errorf("expected cleanup error to wrap boom, got %v", err)
	}
}
