package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vietddude/snapshotter/internal/core/domain"
	"github.com/vietddude/snapshotter/internal/infra/storage"
)

type MemoryStorage struct {
	submissions map[string]*domain.SubmissionRecord
	mu          sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		submissions: make(map[string]*domain.SubmissionRecord),
	}
}

// -----------------------------------------------------------------------------
// Submission Repository
// -----------------------------------------------------------------------------

type SubmissionRepo struct {
	store *MemoryStorage
}

var _ storage.SubmissionRepository = (*SubmissionRepo)(nil)

func NewSubmissionRepo(store *MemoryStorage) *SubmissionRepo {
	return &SubmissionRepo{store: store}
}

func (r *SubmissionRepo) Save(ctx context.Context, rec *domain.SubmissionRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c := *rec
	r.store.submissions[rec.ID] = &c
	return nil
}

func (r *SubmissionRepo) Get(ctx context.Context, id string) (*domain.SubmissionRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	rec, ok := r.store.submissions[id]
	if !ok {
		return nil, storage.ErrSubmissionNotFound
	}
	c := *rec
	return &c, nil
}

func (r *SubmissionRepo) Recent(ctx context.Context, limit int) ([]*domain.SubmissionRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]*domain.SubmissionRecord, 0, len(r.store.submissions))
	for _, rec := range r.store.submissions {
		c := *rec
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt == out[j].CreatedAt {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt > out[j].CreatedAt
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *SubmissionRepo) CountByOutcome(ctx context.Context) (map[domain.SubmissionOutcome]int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	counts := make(map[domain.SubmissionOutcome]int)
	for _, rec := range r.store.submissions {
		counts[rec.Outcome]++
	}
	return counts, nil
}

func (r *SubmissionRepo) PruneBefore(ctx context.Context, before int64) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var n int64
	for id, rec := range r.store.submissions {
		if rec.CreatedAt < before {
			delete(r.store.submissions, id)
			n++
		}
	}
	return n, nil
}
