package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vietddude/snapshotter/internal/core/domain"
	"github.com/vietddude/snapshotter/internal/infra/storage"
)

type SubmissionRepo struct {
	db *DB
}

var _ storage.SubmissionRepository = (*SubmissionRepo)(nil)

func NewSubmissionRepo(db *DB) *SubmissionRepo {
	return &SubmissionRepo{db: db}
}

func (r *SubmissionRepo) Save(ctx context.Context, rec *domain.SubmissionRecord) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO submissions (id, epoch_id, project_id, snapshot_cid, outcome, error, created_at)
		VALUES (:id, :epoch_id, :project_id, :snapshot_cid, :outcome, :error, :created_at)
		ON CONFLICT (id) DO UPDATE SET
			snapshot_cid = EXCLUDED.snapshot_cid,
			outcome = EXCLUDED.outcome,
			error = EXCLUDED.error`, rec)
	if err != nil {
		return fmt.Errorf("failed to save submission: %w", err)
	}
	return nil
}

func (r *SubmissionRepo) Get(ctx context.Context, id string) (*domain.SubmissionRecord, error) {
	var rec domain.SubmissionRecord
	err := r.db.GetContext(ctx, &rec, `SELECT * FROM submissions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrSubmissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return &rec, nil
}

func (r *SubmissionRepo) Recent(ctx context.Context, limit int) ([]*domain.SubmissionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var recs []*domain.SubmissionRecord
	err := r.db.SelectContext(ctx, &recs,
		`SELECT * FROM submissions ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	return recs, nil
}

func (r *SubmissionRepo) CountByOutcome(ctx context.Context) (map[domain.SubmissionOutcome]int, error) {
	var rows []struct {
		Outcome domain.SubmissionOutcome `db:"outcome"`
		Count   int                      `db:"count"`
	}
	err := r.db.SelectContext(ctx, &rows,
		`SELECT outcome, COUNT(*) AS count FROM submissions GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("failed to count submissions: %w", err)
	}
	counts := make(map[domain.SubmissionOutcome]int, len(rows))
	for _, row := range rows {
		counts[row.Outcome] = row.Count
	}
	return counts, nil
}

func (r *SubmissionRepo) PruneBefore(ctx context.Context, before int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM submissions WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune submissions: %w", err)
	}
	return res.RowsAffected()
}
