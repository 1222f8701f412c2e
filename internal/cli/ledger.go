package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/vietddude/snapshotter/internal/core/domain"
)

var outcomes = []domain.SubmissionOutcome{
	domain.OutcomeSubmitted,
	domain.OutcomeSubmitFailed,
	domain.OutcomeStorageFailed,
}

func printLedger(out io.Writer, counts map[domain.SubmissionOutcome]int, rows []*domain.SubmissionRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "OUTCOME\tCOUNT")
	for _, o := range outcomes {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", o, counts[o])
	}
	_ = w.Flush()
	_, _ = fmt.Fprintln(out)

	w = tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "EPOCH\tPROJECT\tCID\tOUTCOME\tCREATED")
	for _, r := range rows {
		cid := r.SnapshotCID
		if cid == "" {
			cid = "-"
		}
		created := time.Unix(r.CreatedAt, 0).UTC().Format(time.DateTime)
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", r.EpochID, r.ProjectID, cid, r.Outcome, created)
	}
	_ = w.Flush()
}
