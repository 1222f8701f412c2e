package config

import (
	"time"

	redisclient "github.com/vietddude/snapshotter/internal/infra/redis"
	"github.com/vietddude/snapshotter/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server          ServerConfig       `yaml:"server"`
	Logging         LoggingConfig      `yaml:"logging"`
	Instance        InstanceConfig     `yaml:"instance"`
	SourceChain     RPCConfig          `yaml:"source_chain"`
	AnchorChain     AnchorChainConfig  `yaml:"anchor_chain"`
	OldAnchorChain  AnchorChainConfig  `yaml:"old_anchor_chain"`
	SwitchoverEpoch uint64             `yaml:"switchover_epoch"`
	Collector       CollectorConfig    `yaml:"collector"`
	IPFS            IPFSConfig         `yaml:"ipfs"`
	Web3Storage     Web3StorageConfig  `yaml:"web3storage"`
	Reporting       ReportingConfig    `yaml:"reporting"`
	Redis           redisclient.Config `yaml:"redis"`
	Database        postgres.Config    `yaml:"database"`
	LedgerRetention time.Duration      `yaml:"ledger_retention"`
	Projects        []ProjectConfig    `yaml:"projects"`
	Preloaders      []PreloaderConfig  `yaml:"preloaders"`
	Pairs           []string           `yaml:"pairs"`
	MarkerPath      string             `yaml:"marker_path"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level        string `yaml:"level"` // debug, info, warn, error
	TraceEnabled bool   `yaml:"trace_enabled"`
}

// InstanceConfig identifies this snapshotter node.
type InstanceConfig struct {
	InstanceID       string `yaml:"instance_id"`
	SlotID           uint64 `yaml:"slot_id"`
	Namespace        string `yaml:"namespace"`
	NodeVersion      string `yaml:"node_version"`
	SignerPrivateKey string `yaml:"signer_private_key"`
}

// RPCConfig holds the endpoints and polling behaviour of one chain.
type RPCConfig struct {
	Nodes           []NodeConfig  `yaml:"nodes"`
	PollingInterval time.Duration `yaml:"polling_interval"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	MaxAttempts     int           `yaml:"max_attempts"`
}

// NodeConfig is one RPC endpoint.
type NodeConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// AnchorChainConfig describes one protocol deployment: its chain and the state contract on it.
type AnchorChainConfig struct {
	RPC           RPCConfig           `yaml:"rpc"`
	ProtocolState ProtocolStateConfig `yaml:"protocol_state"`
	DataMarket    string              `yaml:"data_market"`
}

// ProtocolStateConfig locates the protocol state contract.
type ProtocolStateConfig struct {
	Address        string `yaml:"address"`
	ABI            string `yaml:"abi"` // optional path, embedded ABI is used when empty
	DeadlineBuffer uint64 `yaml:"deadline_buffer"`
}

// CollectorConfig holds the local collector gRPC endpoint.
type CollectorConfig struct {
	Address     string        `yaml:"address"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	SendTimeout time.Duration `yaml:"send_timeout"`
}

// IPFSConfig enables remote content-addressed storage when URL is set.
type IPFSConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Web3StorageConfig controls the optional archival upload.
type Web3StorageConfig struct {
	URL             string        `yaml:"url"`
	UploadURLSuffix string        `yaml:"upload_url_suffix"`
	APIToken        string        `yaml:"api_token"`
	UploadSnapshots bool          `yaml:"upload_snapshots"`
	Timeout         time.Duration `yaml:"timeout"`
}

// ReportingConfig holds notification sinks.
type ReportingConfig struct {
	ServiceURL           string        `yaml:"service_url"`
	TelegramURL          string        `yaml:"telegram_url"`
	TelegramChatID       string        `yaml:"telegram_chat_id"`
	NotificationCooldown time.Duration `yaml:"notification_cooldown"`
	FailureReportEvery   time.Duration `yaml:"failure_report_frequency"`
	WebhookURL           string        `yaml:"webhook_url"`
	WebhookService       string        `yaml:"webhook_service"`
}

// ProjectConfig is one configured project type.
type ProjectConfig struct {
	ProjectType  string   `yaml:"project_type"`
	Processor    string   `yaml:"processor"` // registry key, defaults to ProjectType
	PreloadTasks []string `yaml:"preload_tasks"`
}

// PreloaderConfig is one configured preloader.
type PreloaderConfig struct {
	TaskType string        `yaml:"task_type"`
	Timeout  time.Duration `yaml:"timeout"`
}
