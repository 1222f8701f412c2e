package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

var (
	// ErrDuplicateProjectType is returned when two projects share a project_type.
	ErrDuplicateProjectType = errors.New("duplicate project type")

	// ErrDuplicatePreloader is returned when two preloaders share a task_type.
	ErrDuplicatePreloader = errors.New("duplicate preloader task type")

	// ErrUnknownPreloadTask is returned when a project depends on a preloader that is not configured.
	ErrUnknownPreloadTask = errors.New("unknown preload task")
)

const defaultMarkerPath = "last_successful_submission.txt"

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML content, applies defaults and validates it.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.MarkerPath == "" {
		c.MarkerPath = defaultMarkerPath
	}
	if c.Instance.Namespace == "" {
		c.Instance.Namespace = "UNISWAPV2"
	}

	rpcDefaults(&c.SourceChain)
	rpcDefaults(&c.AnchorChain.RPC)
	rpcDefaults(&c.OldAnchorChain.RPC)

	// A deployment without a separate old chain runs on the new one from epoch 0.
	if len(c.OldAnchorChain.RPC.Nodes) == 0 {
		c.OldAnchorChain = c.AnchorChain
	}

	if c.Collector.Address == "" {
		c.Collector.Address = "snapshotter-lite-local-collector:50051"
	}
	if c.Collector.DialTimeout == 0 {
		c.Collector.DialTimeout = 10 * time.Second
	}
	if c.Collector.SendTimeout == 0 {
		c.Collector.SendTimeout = 30 * time.Second
	}
	if c.IPFS.Timeout == 0 {
		c.IPFS.Timeout = 30 * time.Second
	}
	if c.Web3Storage.Timeout == 0 {
		c.Web3Storage.Timeout = 30 * time.Second
	}
	if c.Reporting.NotificationCooldown == 0 {
		c.Reporting.NotificationCooldown = 300 * time.Second
	}
	if c.Reporting.FailureReportEvery == 0 {
		c.Reporting.FailureReportEvery = 600 * time.Second
	}
	if c.Reporting.WebhookService == "" {
		c.Reporting.WebhookService = "telegram"
	}

	for i := range c.Projects {
		if c.Projects[i].Processor == "" {
			c.Projects[i].Processor = c.Projects[i].ProjectType
		}
	}
	for i := range c.Preloaders {
		if c.Preloaders[i].Timeout == 0 {
			c.Preloaders[i].Timeout = 60 * time.Second
		}
	}
}

func rpcDefaults(r *RPCConfig) {
	if r.PollingInterval == 0 {
		r.PollingInterval = 5 * time.Second
	}
	if r.RequestTimeout == 0 {
		r.RequestTimeout = 15 * time.Second
	}
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 3
	}
	for i := range r.Nodes {
		if r.Nodes[i].Name == "" {
			r.Nodes[i].Name = fmt.Sprintf("node-%d", i)
		}
	}
}

// Validate checks the project and preloader tables.
func (c *AppConfig) Validate() error {
	preloaders := make(map[string]struct{}, len(c.Preloaders))
	for _, p := range c.Preloaders {
		if _, ok := preloaders[p.TaskType]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicatePreloader, p.TaskType)
		}
		preloaders[p.TaskType] = struct{}{}
	}

	projects := make(map[string]struct{}, len(c.Projects))
	for _, p := range c.Projects {
		if _, ok := projects[p.ProjectType]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateProjectType, p.ProjectType)
		}
		projects[p.ProjectType] = struct{}{}

		for _, task := range p.PreloadTasks {
			if _, ok := preloaders[task]; !ok {
				return fmt.Errorf("%w: %s (project %s)", ErrUnknownPreloadTask, task, p.ProjectType)
			}
		}
	}
	return nil
}

// PreloaderTimeout returns the configured timeout for a preload task.
func (c *AppConfig) PreloaderTimeout(task string) time.Duration {
	for _, p := range c.Preloaders {
		if p.TaskType == task {
			return p.Timeout
		}
	}
	return 60 * time.Second
}
