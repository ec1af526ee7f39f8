package history

import (
	"time"

	"inspection-platform/internal/workflow"
)

// Record is one immutable entry of a case's transition ledger.
//
// Invariants:
// - Records are never updated or deleted.
// - Seq is assigned per case inside the commit that changed the case, so ledger
//   order equals commit order.
// - PreviousStatus of record n equals NewStatus of record n-1. The creation
//   record has an empty PreviousStatus.
//
// Storage (Postgres):
// - Table case_history, INSERT-only; UNIQUE(case_id, seq).
type Record struct {
	ID     string `json:"id" db:"id"`
	CaseID string `json:"case_id" db:"case_id"`
	Seq    int64  `json:"seq" db:"seq"`

	PreviousStatus workflow.Status `json:"previous_status" db:"previous_status"`
	NewStatus      workflow.Status `json:"new_status" db:"new_status"`
	Action         workflow.Action `json:"action" db:"action"`

	// ChangedBy identifies the actor at the time of the change.
	ActorID   string `json:"changed_by" db:"actor_id"`
	ActorRole string `json:"changed_by_role" db:"actor_role"`

	Remarks string `json:"remarks,omitempty" db:"remarks"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
