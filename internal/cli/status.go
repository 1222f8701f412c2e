package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/snapshotter/internal/core/domain"
	redisclient "github.com/vietddude/snapshotter/internal/infra/redis"
	"github.com/vietddude/snapshotter/internal/infra/storage/postgres"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show submission counters and the most recent ledger rows",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "number of ledger rows to show")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx := context.Background()

	if cfg.Redis.URL != "" {
		rc, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("Failed to connect to Redis", "error", err)
		} else {
			printMirror(ctx, rc, cfg.Instance.InstanceID)
			_ = rc.Close()
		}
	}

	if cfg.Database.URL == "" {
		slog.Info("No database configured, ledger unavailable")
		return
	}
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	repo := postgres.NewSubmissionRepo(db)
	counts, err := repo.CountByOutcome(ctx)
	if err != nil {
		slog.Error("Failed to count submissions", "error", err)
		os.Exit(1)
	}
	rows, err := repo.Recent(ctx, statusLimit)
	if err != nil {
		slog.Error("Failed to query submissions", "error", err)
		os.Exit(1)
	}

	printLedger(os.Stdout, counts, rows)
}

func printMirror(ctx context.Context, rc *redisclient.Client, instanceID string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "SUCCESSFUL\tMISSED\tCONSECUTIVE MISSED\tLATEST EPOCH\tLAST SUBMISSION")
	status, err := rc.GetStatus(ctx, instanceID)
	if err != nil || status == nil {
		status = &domain.SnapshotterStatus{}
	}
	epoch, _ := rc.GetLatestEpoch(ctx, instanceID)
	last := "-"
	if at, err := rc.GetLastSubmission(ctx, instanceID); err == nil && !at.IsZero() {
		last = at.Local().Format(time.DateTime)
	}
	_, _ = fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%s\n",
		status.TotalSuccessfulSubmissions,
		status.TotalMissedSubmissions,
		status.ConsecutiveMissedSubmissions,
		epoch,
		last,
	)
}
