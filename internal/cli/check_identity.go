package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/vietddude/snapshotter/internal/indexing/worker"
	"github.com/vietddude/snapshotter/internal/infra/contract"
	"github.com/vietddude/snapshotter/internal/infra/rpc"
)

var (
	ErrNotRegistered = errors.New("signer is not a registered snapshotter")
	ErrSlotMismatch  = errors.New("slot is assigned to another snapshotter")
)

var checkIdentityCmd = &cobra.Command{
	Use:   "check-identity",
	Short: "Verify the signer key is registered for the configured slot",
	Run:   runCheckIdentity,
}

func init() {
	rootCmd.AddCommand(checkIdentityCmd)
}

func runCheckIdentity(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	signer, err := worker.NewSigner(cfg.Instance.SignerPrivateKey)
	if err != nil {
		slog.Error("Invalid signer key", "error", err)
		os.Exit(1)
	}

	client, err := rpc.Dial(ctx, "anchor", cfg.AnchorChain.RPC)
	if err != nil {
		slog.Error("Failed to connect to anchor chain", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	ps, err := contract.NewProtocolState(cfg.AnchorChain.ProtocolState.Address, cfg.AnchorChain.DataMarket, cfg.AnchorChain.ProtocolState.ABI, client)
	if err != nil {
		slog.Error("Failed to bind protocol state", "error", err)
		os.Exit(1)
	}

	if err := checkIdentity(ctx, ps, signer.Address(), cfg.Instance.SlotID); err != nil {
		slog.Error("Identity check failed", "signer", signer.Address().Hex(), "slot", cfg.Instance.SlotID, "error", err)
		os.Exit(1)
	}
	fmt.Printf("Signer %s is registered for slot %d\n", signer.Address().Hex(), cfg.Instance.SlotID)
}

func checkIdentity(ctx context.Context, ps *contract.ProtocolState, signer common.Address, slotID uint64) error {
	registered, err := ps.AllSnapshotters(ctx, signer)
	if err != nil {
		return fmt.Errorf("failed to query snapshotter registry: %w", err)
	}
	if !registered {
		return ErrNotRegistered
	}

	owner, err := ps.SlotSnapshotterMapping(ctx, slotID)
	if err != nil {
		return fmt.Errorf("failed to query slot owner: %w", err)
	}
	if owner != signer {
		return fmt.Errorf("%w: %s", ErrSlotMismatch, owner.Hex())
	}
	return nil
}
