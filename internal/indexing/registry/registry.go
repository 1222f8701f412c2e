// Package registry maps configured task types to processor and preloader
// implementations. Factories are registered explicitly at startup and the
// configured project table is validated eagerly when the set is built.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/vietddude/snapshotter/internal/core/config"
	"github.com/vietddude/snapshotter/internal/core/domain"
	"github.com/vietddude/snapshotter/internal/infra/chain/evm"
)

var (
	ErrDuplicateProjectType = errors.New("duplicate project type")
	ErrDuplicatePreloader   = errors.New("duplicate preloader")
	ErrUnknownTask          = errors.New("unknown task type")
)

// Processor computes the snapshots of one project type for one epoch.
// Each output's DataSource is either empty, a single source, or primary_source.
type Processor interface {
	Compute(ctx context.Context, epoch domain.Epoch, preloaded map[string]any) ([]domain.ProcessorOutput, error)
	Cleanup(ctx context.Context) error
}

// Preloader prefetches data shared by several processors.
// Compute must return a domain.PreloaderResult; anything else is a contract violation.
type Preloader interface {
	Compute(ctx context.Context, epoch domain.Epoch) (any, error)
	Cleanup(ctx context.Context) error
}

// Deps are the collaborators handed to every factory.
type Deps struct {
	Source   *evm.EVMAdapter
	Pairs    []string
	Instance config.InstanceConfig
	Logger   *slog.Logger
}

type (
	ProcessorFactory func(Deps) (Processor, error)
	PreloaderFactory func(Deps) (Preloader, error)
)

// Registry holds factories by name.
type Registry struct {
	mu         sync.RWMutex
	processors map[string]ProcessorFactory
	preloaders map[string]PreloaderFactory
}

func New() *Registry {
	return &Registry{
		processors: make(map[string]ProcessorFactory),
		preloaders: make(map[string]PreloaderFactory),
	}
}

// RegisterProcessor adds a processor factory under name.
func (r *Registry) RegisterProcessor(name string, f ProcessorFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.processors[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateProjectType, name)
	}
	r.processors[name] = f
	return nil
}

// RegisterPreloader adds a preloader factory under name.
func (r *Registry) RegisterPreloader(name string, f PreloaderFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.preloaders[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePreloader, name)
	}
	r.preloaders[name] = f
	return nil
}

// Project is one configured project type bound to its processor.
type Project struct {
	Type         string
	PreloadTasks []string
	Processor    Processor
}

// Set is the built, validated task table for one process.
type Set struct {
	Projects   []Project
	Preloaders map[string]Preloader
	// RequiredTasks is the sorted union of every project's preload tasks.
	RequiredTasks []string
}

// Build instantiates every configured project and preloader.
func (r *Registry) Build(projects []config.ProjectConfig, preloaders []config.PreloaderConfig, deps Deps) (*Set, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	set := &Set{Preloaders: make(map[string]Preloader, len(preloaders))}
	for _, pc := range preloaders {
		if _, ok := set.Preloaders[pc.TaskType]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePreloader, pc.TaskType)
		}
		factory, ok := r.preloaders[pc.TaskType]
		if !ok {
			return nil, fmt.Errorf("%w: preloader %s", ErrUnknownTask, pc.TaskType)
		}
		p, err := factory(deps)
		if err != nil {
			return nil, fmt.Errorf("failed to build preloader %s: %w", pc.TaskType, err)
		}
		set.Preloaders[pc.TaskType] = p
	}

	seen := make(map[string]struct{}, len(projects))
	required := make(map[string]struct{})
	for _, pc := range projects {
		if _, ok := seen[pc.ProjectType]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateProjectType, pc.ProjectType)
		}
		seen[pc.ProjectType] = struct{}{}

		name := pc.Processor
		if name == "" {
			name = pc.ProjectType
		}
		factory, ok := r.processors[name]
		if !ok {
			return nil, fmt.Errorf("%w: processor %s", ErrUnknownTask, name)
		}
		for _, task := range pc.PreloadTasks {
			if _, ok := set.Preloaders[task]; !ok {
				return nil, fmt.Errorf("%w: preload task %s (project %s)", ErrUnknownTask, task, pc.ProjectType)
			}
			required[task] = struct{}{}
		}
		proc, err := factory(deps)
		if err != nil {
			return nil, fmt.Errorf("failed to build processor %s: %w", name, err)
		}
		set.Projects = append(set.Projects, Project{
			Type:         pc.ProjectType,
			PreloadTasks: append([]string(nil), pc.PreloadTasks...),
			Processor:    proc,
		})
	}

	for task := range required {
		set.RequiredTasks = append(set.RequiredTasks, task)
	}
	sort.Strings(set.RequiredTasks)
	return set, nil
}

// Project returns the project with the given type.
func (s *Set) Project(projectType string) (Project, bool) {
	for _, p := range s.Projects {
		if p.Type == projectType {
			return p, true
		}
	}
	return Project{}, false
}

// ProjectTypes lists configured project types in configuration order.
func (s *Set) ProjectTypes() []string {
	out := make([]string, 0, len(s.Projects))
	for _, p := range s.Projects {
		out = append(out, p.Type)
	}
	return out
}

// Cleanup releases every processor and preloader.
func (s *Set) Cleanup(ctx context.Context) error {
	var errs []error
	for _, p := range s.Projects {
		if err := p.Processor.Cleanup(ctx); err != nil {
			errs = append(errs, fmt.Errorf("processor %s: %w", p.Type, err))
		}
	}
	for name, p := range s.Preloaders {
		if err := p.Cleanup(ctx); err != nil {
			errs = append(errs, fmt.Errorf("preloader %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
