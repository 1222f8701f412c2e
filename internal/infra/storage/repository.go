package storage

import (
	"context"
	"errors"

	"github.com/vietddude/snapshotter/internal/core/domain"
)

var (
	// ErrSubmissionNotFound is returned when a ledger row doesn't exist
	ErrSubmissionNotFound = errors.New("submission not found")
)

// SubmissionRepository records the outcome of every commit attempt
type SubmissionRepository interface {
	// Save appends one record
	Save(ctx context.Context, rec *domain.SubmissionRecord) error

	// Get retrieves a record by id
	Get(ctx context.Context, id string) (*domain.SubmissionRecord, error)

	// Recent returns the latest records, newest first
	Recent(ctx context.Context, limit int) ([]*domain.SubmissionRecord, error)

	// CountByOutcome aggregates the ledger by outcome
	CountByOutcome(ctx context.Context) (map[domain.SubmissionOutcome]int, error)

	// PruneBefore deletes records created before the unix timestamp and returns how many were removed
	PruneBefore(ctx context.Context, before int64) (int64, error)
}
