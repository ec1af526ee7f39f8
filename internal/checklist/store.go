package checklist

import (
	"context"
	"encoding/json"
	"time"
)

// Store persists checklist blobs keyed by case id.
//
// Put is optimistic: expectedVersion must equal the stored version (0 when
// nothing is stored yet) or ErrVersionConflict is returned. The stored blob
// gets Version expectedVersion+1.
type Store interface {
	Get(ctx context.Context, caseID string) (Blob, error)
	Put(ctx context.Context, b Blob, expectedVersion int64) (Blob, error)
}

// prepare validates b and stamps the fields every store sets on write.
func prepare(b Blob, expectedVersion int64, now time.Time) (Blob, error) {
	if b.CaseID == "" || len(b.Data) == 0 || !json.Valid(b.Data) {
		return Blob{}, ErrInvalidBlob
	}
	if expectedVersion < 0 {
		return Blob{}, ErrInvalidBlob
	}
	if b.SchemaVersion == 0 {
		b.SchemaVersion = CurrentSchemaVersion
	}
	b.Version = expectedVersion + 1
	b.UpdatedAt = now.UTC()
	return b, nil
}
