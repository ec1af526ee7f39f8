package history

import (
	"context"
	"errors"
	"time"

	"inspection-platform/internal/workflow"

	"github.com/google/uuid"
)

// Repository is the read side of the ledger. ListFor returns records
// ascending by seq.
//
// Records are only written by the case store, in the same commit as the case
// row they describe (MemoryRepo.Commit, InsertTx under the row lock).
type Repository interface {
	ListFor(ctx context.Context, caseID string) ([]Record, error)
}

// Service fronts the ledger for readers.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

var (
	ErrInvalidRecord    = errors.New("history: invalid record")
	ErrRepositoryNotSet = errors.New("history: repository not configured")
)

// Prepare validates r and fills ID and CreatedAt. Repositories that append
// inside a case commit call it before inserting.
func Prepare(r Record, now time.Time) (Record, error) {
	if r.CaseID == "" || r.NewStatus == "" || r.Action == "" || r.ActorID == "" {
		return Record{}, ErrInvalidRecord
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now.UTC()
	}
	return r, nil
}

func (s *Service) ListFor(ctx context.Context, caseID string) ([]Record, error) {
	if s.repo == nil {
		return nil, ErrRepositoryNotSet
	}
	return s.repo.ListFor(ctx, caseID)
}

// Verify loads the ledger for caseID and checks it replays to current.
func (s *Service) Verify(ctx context.Context, caseID string, current workflow.Status) (Report, error) {
	recs, err := s.ListFor(ctx, caseID)
	if err != nil {
		return Report{}, err
	}
	return Verify(recs, current), nil
}
