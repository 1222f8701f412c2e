package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/vietddude/snapshotter/internal/core/domain"
	"github.com/vietddude/snapshotter/internal/infra/storage"
)

func TestSubmissionRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewSubmissionRepo(NewMemoryStorage())

	records := []*domain.SubmissionRecord{
		{ID: "a", EpochID: 1, Outcome: domain.OutcomeSubmitted, CreatedAt: 100},
		{ID: "b", EpochID: 2, Outcome: domain.OutcomeSubmitFailed, CreatedAt: 200},
		{ID: "c", EpochID: 3, Outcome: domain.OutcomeSubmitted, CreatedAt: 300},
	}
	for _, rec := range records {
		if err := repo.Save(ctx, rec); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	recent, err := repo.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != "c" || recent[1].ID != "b" {
		t.Errorf("Expected [c b], got %v", recent)
	}

	counts, _ := repo.CountByOutcome(ctx)
	if counts[domain.OutcomeSubmitted] != 2 || counts[domain.OutcomeSubmitFailed] != 1 {
		t.Errorf("Unexpected counts: %v", counts)
	}

	n, _ := repo.PruneBefore(ctx, 250)
	if n != 2 {
		t.Errorf("Expected 2 pruned, got %d", n)
	}
	if _, err := repo.Get(ctx, "a"); !errors.Is(err, storage.ErrSubmissionNotFound) {
		t.Errorf("Expected ErrSubmissionNotFound, got %v", err)
	}
	if rec, err := repo.Get(ctx, "c"); err != nil || rec.EpochID != 3 {
		t.Errorf("Expected record c to survive, got %v %v", rec, err)
	}
}
