package checklist

import (
	"encoding/json"
	"errors"
	"time"
)

// Blob is the inspection checklist for one case. The payload is opaque to the
// workflow except for the top-level "compliant" boolean.
type Blob struct {
	CaseID        string          `json:"case_id"`
	Version       int64           `json:"version"`
	SchemaVersion int             `json:"schema_version"`
	Data          json.RawMessage `json:"data"`
	UpdatedBy     string          `json:"updated_by,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

var (
	ErrNotFound        = errors.New("checklist: not found")
	ErrVersionConflict = errors.New("checklist: version conflict")
	ErrInvalidBlob     = errors.New("checklist: invalid blob")
)

// CurrentSchemaVersion is stamped on blobs saved without an explicit version.
const CurrentSchemaVersion = 1
