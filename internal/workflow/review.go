package workflow

import (
	"inspection-platform/internal/law"
	"inspection-platform/internal/rbac"
)

// Checkpoint is one step of the post-monitoring review chain.
type Checkpoint string

const (
	CheckpointUnit     Checkpoint = "unit"
	CheckpointSection  Checkpoint = "section"
	CheckpointDivision Checkpoint = "division"
)

var checkpointOrder = []Checkpoint{CheckpointUnit, CheckpointSection, CheckpointDivision}

var checkpointStatus = map[Checkpoint]Status{
	CheckpointUnit:     StatusUnitReviewed,
	CheckpointSection:  StatusSectionReviewed,
	CheckpointDivision: StatusDivisionReviewed,
}

// CheckpointFor returns the checkpoint reviewed by role.
func CheckpointFor(role string) (Checkpoint, bool) {
	switch role {
	case rbac.RoleUnitHead:
		return CheckpointUnit, true
	case rbac.RoleSectionChief:
		return CheckpointSection, true
	case rbac.RoleDivisionChief:
		return CheckpointDivision, true
	}
	return "", false
}

// ReviewedStatus is the status a passed checkpoint leaves the case in.
func ReviewedStatus(cp Checkpoint) Status { return checkpointStatus[cp] }

func checkpointIndex(cp Checkpoint) int {
	for i, c := range checkpointOrder {
		if c == cp {
			return i
		}
	}
	return -1
}

// NextCheckpoint returns the checkpoint that must be reviewed next for a case
// in s under pipeline p. inReview is false when s is outside the review chain;
// done is true once the division checkpoint has passed.
func NextCheckpoint(s Status, p law.Pipeline) (next Checkpoint, inReview, done bool) {
	switch s {
	case StatusMonitoringCompletedCompliant, StatusMonitoringCompletedNonCompliant:
		if p.Has(law.StageUnit) {
			return CheckpointUnit, true, false
		}
		return CheckpointSection, true, false
	case StatusUnitReviewed:
		return CheckpointSection, true, false
	case StatusSectionReviewed:
		return CheckpointDivision, true, false
	case StatusDivisionReviewed:
		return "", true, true
	}
	return "", false, false
}

func (m *Machine) review(s Snapshot, r Request, p law.Pipeline, out *Outcome) error {
	cp, ok := CheckpointFor(r.Actor.Role)
	if !ok {
		return newError(KindUnauthorized, r.Action, "role %s does not own a review checkpoint", r.Actor.Role)
	}
	next, inReview, done := NextCheckpoint(s.Status, p)
	if !inReview {
		return newError(KindInvalidTransition, r.Action, "case in %s is not in the review chain", s.Status)
	}
	if cp == CheckpointUnit && !p.Has(law.StageUnit) {
		return newError(KindInvalidTransition, r.Action, "law %s has no unit review", s.Law)
	}
	if done || checkpointIndex(cp) < checkpointIndex(next) {
		return newError(KindInvalidTransition, r.Action, "%s review already recorded", cp)
	}
	if cp != next {
		return newError(KindInvalidTransition, r.Action, "awaiting %s review before %s review", next, cp)
	}
	if !s.Decision.Decided() {
		return newError(KindInvalidTransition, r.Action, "cannot review a case without a compliance decision")
	}
	out.Next = ReviewedStatus(cp)
	out.AssignedTo = ""
	return nil
}
