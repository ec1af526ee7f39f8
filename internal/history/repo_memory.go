package history

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory append-only ledger for tests and local runs.
// Records enter only through Commit.
type MemoryRepo struct {
	mu      sync.Mutex
	records map[string][]Record
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{records: map[string][]Record{}} }

// appendLocked requires r.mu.
func (r *MemoryRepo) appendLocked(rec Record) Record {
	existing := r.records[rec.CaseID]
	if rec.Seq == 0 {
		rec.Seq = int64(len(existing) + 1)
	}
	r.records[rec.CaseID] = append(existing, rec)
	return rec
}

func (r *MemoryRepo) ListFor(ctx context.Context, caseID string) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	src := r.records[caseID]
	out := make([]Record, len(src))
	copy(out, src)
	return out, nil
}

// Commit appends rec after fn succeeds, holding the ledger lock across both so
// a case store can make its own write and the ledger append one step.
func (r *MemoryRepo) Commit(rec Record, fn func(Record) error) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.Seq == 0 {
		rec.Seq = int64(len(r.records[rec.CaseID]) + 1)
	}
	if err := fn(rec); err != nil {
		return Record{}, err
	}
	return r.appendLocked(rec), nil
}
