package cases

import (
	"context"
	"errors"

	"inspection-platform/internal/history"
)

// Repository persists cases. Every write carries the history record that
// describes it and commits both or neither.
type Repository interface {
	Create(ctx context.Context, c Case, rec history.Record) error
	Get(ctx context.Context, id string) (Case, error)
	// CompareAndSwap stores next only if the stored version still equals
	// expectedVersion. It returns ErrVersionConflict otherwise.
	CompareAndSwap(ctx context.Context, expectedVersion int64, next Case, rec history.Record) error
	List(ctx context.Context, f Filter) ([]Case, error)
	// NextSequence returns the next case number for year, starting at 1.
	NextSequence(ctx context.Context, year int) (int64, error)
}

var (
	ErrNotFound        = errors.New("cases: not found")
	ErrAlreadyExists   = errors.New("cases: already exists")
	ErrVersionConflict = errors.New("cases: version conflict")
	ErrDuplicateNotice = errors.New("cases: legal notice already recorded")
)
