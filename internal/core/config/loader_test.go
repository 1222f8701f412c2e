package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_EnvSubstitution(t *testing.T) {
	// Setup env var
	os.Setenv("TEST_SIGNER_KEY", "0xabc123")
	defer os.Unsetenv("TEST_SIGNER_KEY")

	configContent := `
instance:
  signer_private_key: ${TEST_SIGNER_KEY}
  slot_id: 7
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(configContent), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.SignerPrivateKey != "0xabc123" {
		t.Errorf("Expected key 0xabc123, got %s", cfg.Instance.SignerPrivateKey)
	}
	if cfg.Instance.SlotID != 7 {
		t.Errorf("Expected slot 7, got %d", cfg.Instance.SlotID)
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`
anchor_chain:
  rpc:
    nodes:
      - url: http://anchor:8545
  data_market: "0xdm"
projects:
  - project_type: pair_total_reserves
    preload_tasks: [block_details]
preloaders:
  - task_type: block_details
`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.MarkerPath != defaultMarkerPath {
		t.Errorf("Expected marker path %s, got %s", defaultMarkerPath, cfg.MarkerPath)
	}
	if cfg.Reporting.NotificationCooldown != 300*time.Second {
		t.Errorf("Expected cooldown 300s, got %v", cfg.Reporting.NotificationCooldown)
	}
	if cfg.Projects[0].Processor != "pair_total_reserves" {
		t.Errorf("Expected processor to default to project type, got %s", cfg.Projects[0].Processor)
	}
	if cfg.AnchorChain.RPC.Nodes[0].Name != "node-0" {
		t.Errorf("Expected generated node name, got %s", cfg.AnchorChain.RPC.Nodes[0].Name)
	}
	if cfg.OldAnchorChain.DataMarket != "0xdm" {
		t.Errorf("Expected old chain to fall back to anchor chain, got %q", cfg.OldAnchorChain.DataMarket)
	}
	if got := cfg.PreloaderTimeout("block_details"); got != 60*time.Second {
		t.Errorf("Expected preloader timeout 60s, got %v", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{
			name: "duplicate project type",
			yaml: `
projects:
  - project_type: trade_volume
  - project_type: trade_volume
`,
			want: ErrDuplicateProjectType,
		},
		{
			name: "duplicate preloader",
			yaml: `
preloaders:
  - task_type: block_details
  - task_type: block_details
`,
			want: ErrDuplicatePreloader,
		},
		{
			name: "unknown preload task",
			yaml: `
projects:
  - project_type: trade_volume
    preload_tasks: [eth_price]
`,
			want: ErrUnknownPreloadTask,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if !errors.Is(err, tt.want) {
				t.Errorf("Parse() error = %v, want %v", err, tt.want)
			}
		})
	}
}
