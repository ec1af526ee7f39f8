package cases

import (
	"encoding/json"
	"time"

	"inspection-platform/internal/law"
	"inspection-platform/internal/workflow"
)

// Case is one inspection moving through the workflow.
//
// Invariants:
// - Law, Code and Establishments are fixed at creation.
// - Status changes only through a workflow transition, each recorded in the
//   case history in the same commit.
// - Decision is written once, at the first stage completion.
// - Version increases by one on every committed change.
type Case struct {
	ID             string            `json:"id"`
	Code           string            `json:"code"`
	Law            law.Code          `json:"law"`
	Status         workflow.Status   `json:"status"`
	Establishments []string          `json:"establishments"`
	CreatedBy      string            `json:"created_by"`
	AssignedTo     string            `json:"assigned_to,omitempty"`
	Decision       workflow.Decision `json:"compliance_decision"`
	Legal          Legal             `json:"legal"`
	Version        int64             `json:"version"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Legal holds the notices issued on the non-compliant branch.
type Legal struct {
	NOV *Notice `json:"nov,omitempty"`
	NOO *Notice `json:"noo,omitempty"`
}

// Notice is an issued NOV or NOO together with the email content that was sent.
type Notice struct {
	Kind           workflow.NoticeKind `json:"kind"`
	RecipientName  string              `json:"recipient_name"`
	RecipientEmail string              `json:"recipient_email"`
	Violations     json.RawMessage     `json:"violations,omitempty"`
	PenaltyMinor   int64               `json:"penalty_minor"`
	Currency       string              `json:"currency"`
	Deadline       time.Time           `json:"deadline"`
	SentAt         time.Time           `json:"sent_at"`
	SentBy         string              `json:"sent_by"`
	EmailSubject   string              `json:"email_subject"`
	EmailBody      string              `json:"email_body"`
	DispatchID     string              `json:"dispatch_id"`
}

// Notice returns the issued notice of kind, or nil.
func (l Legal) Notice(kind workflow.NoticeKind) *Notice {
	switch kind {
	case workflow.NoticeNOV:
		return l.NOV
	case workflow.NoticeNOO:
		return l.NOO
	}
	return nil
}

func (l *Legal) set(n *Notice) {
	switch n.Kind {
	case workflow.NoticeNOV:
		l.NOV = n
	case workflow.NoticeNOO:
		l.NOO = n
	}
}

// Snapshot projects the fields the workflow guards read.
func (c Case) Snapshot() workflow.Snapshot {
	return workflow.Snapshot{
		Status:     c.Status,
		Law:        c.Law,
		AssignedTo: c.AssignedTo,
		Decision:   c.Decision,
		HasNOV:     c.Legal.NOV != nil,
		HasNOO:     c.Legal.NOO != nil,
	}
}

// Clone returns a deep copy so stored cases never alias caller memory.
func (c Case) Clone() Case {
	out := c
	out.Establishments = append([]string(nil), c.Establishments...)
	if c.Legal.NOV != nil {
		n := *c.Legal.NOV
		n.Violations = append(json.RawMessage(nil), n.Violations...)
		out.Legal.NOV = &n
	}
	if c.Legal.NOO != nil {
		n := *c.Legal.NOO
		n.Violations = append(json.RawMessage(nil), n.Violations...)
		out.Legal.NOO = &n
	}
	return out
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Statuses   []workflow.Status
	Law        law.Code
	AssignedTo string
	// Unassigned restricts to cases nobody holds. Ignored when AssignedTo is set.
	Unassigned bool
	Limit      int
	Offset     int
}

func (f Filter) match(c Case) bool {
	if f.Law != "" && c.Law != f.Law {
		return false
	}
	if f.AssignedTo != "" {
		if c.AssignedTo != f.AssignedTo {
			return false
		}
	} else if f.Unassigned && c.AssignedTo != "" {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if c.Status == s {
			return true
		}
	}
	return false
}
