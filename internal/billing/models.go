package billing

import (
	"errors"
	"time"
)

// Record is the penalty hand-off sent to the billing system after a legal
// notice is committed. ID is deterministic per case and notice kind so the
// consumer can deduplicate at-least-once deliveries.
type Record struct {
	ID             string    `json:"id"`
	CaseID         string    `json:"case_id"`
	CaseCode       string    `json:"case_code"`
	Law            string    `json:"law"`
	NoticeKind     string    `json:"notice_kind"`
	AmountMinor    int64     `json:"amount_minor"`
	Currency       string    `json:"currency"`
	RecipientName  string    `json:"recipient_name"`
	RecipientEmail string    `json:"recipient_email"`
	IssuedAt       time.Time `json:"issued_at"`
	Deadline       time.Time `json:"deadline"`
}

// RecordID derives the idempotency key for a case notice.
func RecordID(caseID, kind string) string { return caseID + ":" + kind }

// OutboxEntry is a record whose hand-off failed and awaits re-drive.
type OutboxEntry struct {
	Record        Record     `json:"record"`
	Attempts      int        `json:"attempts"`
	LastError     string     `json:"last_error,omitempty"`
	NextAttemptAt time.Time  `json:"next_attempt_at"`
	CreatedAt     time.Time  `json:"created_at"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
}

var (
	ErrInvalidRecord = errors.New("billing: invalid record")
	ErrNotFound      = errors.New("billing: not found")
)

func validate(r Record) error {
	if r.ID == "" || r.CaseID == "" || r.NoticeKind == "" || r.AmountMinor <= 0 || r.Currency == "" {
		return ErrInvalidRecord
	}
	return nil
}
