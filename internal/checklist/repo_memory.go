package checklist

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps the latest blob per case. For tests and local runs.
type MemoryStore struct {
	mu    sync.Mutex
	blobs map[string]Blob
	clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: map[string]Blob{}, clock: time.Now}
}

func (s *MemoryStore) Get(ctx context.Context, caseID string) (Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[caseID]
	if !ok {
		return Blob{}, ErrNotFound
	}
	b.Data = append([]byte(nil), b.Data...)
	return b, nil
}

func (s *MemoryStore) Put(ctx context.Context, b Blob, expectedVersion int64) (Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blobs[b.CaseID].Version != expectedVersion {
		return Blob{}, ErrVersionConflict
	}
	out, err := prepare(b, expectedVersion, s.clock())
	if err != nil {
		return Blob{}, err
	}
	out.Data = append([]byte(nil), out.Data...)
	s.blobs[out.CaseID] = out
	return out, nil
}
