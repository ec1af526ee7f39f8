package workflow

import (
	"time"

	"inspection-platform/internal/rbac"
)

// NoticeKind identifies a legal escalation document.
type NoticeKind string

const (
	NoticeNOV NoticeKind = "NOV" // Notice of Violation
	NoticeNOO NoticeKind = "NOO" // Notice of Order
)

// NoticeKindFor maps a send action to the notice it issues.
func NoticeKindFor(a Action) (NoticeKind, bool) {
	switch a {
	case ActionSendNOV:
		return NoticeNOV, true
	case ActionSendNOO:
		return NoticeNOO, true
	}
	return "", false
}

// DeadlinePolicy holds the default compliance windows granted by each notice.
// They are policy defaults and may be overridden per notice.
type DeadlinePolicy struct {
	NOV time.Duration
	NOO time.Duration
}

const day = 24 * time.Hour

func DefaultDeadlinePolicy() DeadlinePolicy {
	return DeadlinePolicy{NOV: 30 * day, NOO: 60 * day}
}

// Deadline returns override when set, otherwise issuedAt plus the default
// window for kind. An override that is not after issuedAt is rejected.
func (p DeadlinePolicy) Deadline(kind NoticeKind, issuedAt time.Time, override time.Time) (time.Time, error) {
	if !override.IsZero() {
		if !override.After(issuedAt) {
			return time.Time{}, newError(KindInvalidArgument, "", "deadline must be after issuance")
		}
		return override.UTC(), nil
	}
	window := p.NOV
	if kind == NoticeNOO {
		window = p.NOO
	}
	if window <= 0 {
		d := DefaultDeadlinePolicy()
		window = d.NOV
		if kind == NoticeNOO {
			window = d.NOO
		}
	}
	return issuedAt.Add(window).UTC(), nil
}

// sendNotice guards LEGAL_REVIEW -> NOV_SENT and NOV_SENT -> NOO_SENT.
// The duplicate check runs before reachability so that a retried send
// reports DuplicateLegalNotice rather than a generic transition failure.
func (m *Machine) sendNotice(s Snapshot, r Request, out *Outcome) error {
	kind, _ := NoticeKindFor(r.Action)
	if r.Actor.Role != rbac.RoleLegalUnit {
		return newError(KindUnauthorized, r.Action, "only the legal unit may issue a %s", kind)
	}
	if s.AssignedTo != r.Actor.ID {
		if s.AssignedTo == "" {
			return newError(KindUnauthorized, r.Action, "case must be claimed by the legal unit before issuing a %s", kind)
		}
		return newError(KindUnauthorized, r.Action, "case is assigned to another actor")
	}
	if (kind == NoticeNOV && s.HasNOV) || (kind == NoticeNOO && s.HasNOO) {
		return newError(KindDuplicateLegalNotice, r.Action, "%s already issued for this case", kind)
	}
	if BranchOfCase(s.Status, s.Decision) != BranchNonCompliant {
		return newError(KindInvalidTransition, r.Action, "legal notices apply only to non-compliant cases")
	}
	want, next := StatusLegalReview, StatusNOVSent
	if kind == NoticeNOO {
		want, next = StatusNOVSent, StatusNOOSent
	}
	if s.Status != want {
		return newError(KindInvalidTransition, r.Action, "%s may only be issued from %s, case is %s", kind, want, s.Status)
	}
	out.Next = next
	return nil
}
