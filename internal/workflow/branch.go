package workflow

import "strings"

// Branch is the track a case follows once a compliance decision exists.
type Branch string

const (
	BranchNeutral      Branch = "NEUTRAL"
	BranchCompliant    Branch = "COMPLIANT"
	BranchNonCompliant Branch = "NON_COMPLIANT"
)

// BranchOf derives the branch from the status alone. Review statuses carry no
// branch suffix and resolve to BranchNeutral; use BranchOfCase for them.
func BranchOf(s Status) Branch {
	switch s {
	case StatusLegalReview, StatusNOVSent, StatusNOOSent:
		return BranchNonCompliant
	}
	v := string(s)
	// NON_COMPLIANT also ends in _COMPLIANT, so test it first.
	if strings.HasSuffix(v, "_NON_COMPLIANT") {
		return BranchNonCompliant
	}
	if strings.HasSuffix(v, "_COMPLIANT") {
		return BranchCompliant
	}
	return BranchNeutral
}

// BranchOfCase resolves the branch using the recorded decision when the status
// itself is branch-neutral (the review chain).
func BranchOfCase(s Status, d Decision) Branch {
	if b := BranchOf(s); b != BranchNeutral {
		return b
	}
	switch d {
	case DecisionCompliant:
		return BranchCompliant
	case DecisionNonCompliant:
		return BranchNonCompliant
	}
	return BranchNeutral
}
