package cases

import (
	"context"
	"sort"
	"sync"

	"inspection-platform/internal/history"
	"inspection-platform/internal/workflow"
)

// MemoryRepo keeps cases in memory and appends to an in-memory ledger under
// the same lock, so a case write and its history record are one step.
type MemoryRepo struct {
	mu     sync.Mutex
	cases  map[string]Case
	seq    map[int]int64
	ledger *history.MemoryRepo
}

func NewMemoryRepo(ledger *history.MemoryRepo) *MemoryRepo {
	if ledger == nil {
		ledger = history.NewMemoryRepo()
	}
	return &MemoryRepo{cases: map[string]Case{}, seq: map[int]int64{}, ledger: ledger}
}

// Ledger exposes the history repository the case writes append to.
func (r *MemoryRepo) Ledger() *history.MemoryRepo { return r.ledger }

func (r *MemoryRepo) Create(ctx context.Context, c Case, rec history.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cases[c.ID]; ok {
		return ErrAlreadyExists
	}
	rec, err := history.Prepare(rec, c.CreatedAt)
	if err != nil {
		return err
	}
	_, err = r.ledger.Commit(rec, func(history.Record) error {
		r.cases[c.ID] = c.Clone()
		return nil
	})
	return err
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cases[id]
	if !ok {
		return Case{}, ErrNotFound
	}
	return c.Clone(), nil
}

func (r *MemoryRepo) CompareAndSwap(ctx context.Context, expectedVersion int64, next Case, rec history.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.cases[next.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != expectedVersion {
		return ErrVersionConflict
	}
	if kind, ok := workflow.NoticeKindFor(rec.Action); ok && cur.Legal.Notice(kind) != nil {
		return ErrDuplicateNotice
	}
	rec, err := history.Prepare(rec, next.UpdatedAt)
	if err != nil {
		return err
	}
	_, err = r.ledger.Commit(rec, func(history.Record) error {
		r.cases[next.ID] = next.Clone()
		return nil
	})
	return err
}

func (r *MemoryRepo) List(ctx context.Context, f Filter) ([]Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Case
	for _, c := range r.cases {
		if f.match(c) {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *MemoryRepo) NextSequence(ctx context.Context, year int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq[year]++
	return r.seq[year], nil
}
