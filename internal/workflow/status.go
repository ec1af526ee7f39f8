package workflow

import (
	"strings"

	"inspection-platform/internal/law"
)

// Status is the single authoritative position of a case in the workflow.
// Keep values stable; they are persisted and recorded in history.
type Status string

const (
	StatusCreated Status = "CREATED"

	StatusSectionAssigned              Status = "SECTION_ASSIGNED"
	StatusSectionInProgress            Status = "SECTION_IN_PROGRESS"
	StatusSectionCompletedCompliant    Status = "SECTION_COMPLETED_COMPLIANT"
	StatusSectionCompletedNonCompliant Status = "SECTION_COMPLETED_NON_COMPLIANT"

	StatusUnitAssigned              Status = "UNIT_ASSIGNED"
	StatusUnitInProgress            Status = "UNIT_IN_PROGRESS"
	StatusUnitCompletedCompliant    Status = "UNIT_COMPLETED_COMPLIANT"
	StatusUnitCompletedNonCompliant Status = "UNIT_COMPLETED_NON_COMPLIANT"

	StatusMonitoringAssigned              Status = "MONITORING_ASSIGNED"
	StatusMonitoringInProgress            Status = "MONITORING_IN_PROGRESS"
	StatusMonitoringCompletedCompliant    Status = "MONITORING_COMPLETED_COMPLIANT"
	StatusMonitoringCompletedNonCompliant Status = "MONITORING_COMPLETED_NON_COMPLIANT"

	StatusUnitReviewed     Status = "UNIT_REVIEWED"
	StatusSectionReviewed  Status = "SECTION_REVIEWED"
	StatusDivisionReviewed Status = "DIVISION_REVIEWED"

	StatusLegalReview Status = "LEGAL_REVIEW"
	StatusNOVSent     Status = "NOV_SENT"
	StatusNOOSent     Status = "NOO_SENT"

	StatusClosedCompliant    Status = "CLOSED_COMPLIANT"
	StatusClosedNonCompliant Status = "CLOSED_NON_COMPLIANT"
)

// AllStatuses lists every status in workflow order.
var AllStatuses = []Status{
	StatusCreated,
	StatusSectionAssigned, StatusSectionInProgress, StatusSectionCompletedCompliant, StatusSectionCompletedNonCompliant,
	StatusUnitAssigned, StatusUnitInProgress, StatusUnitCompletedCompliant, StatusUnitCompletedNonCompliant,
	StatusMonitoringAssigned, StatusMonitoringInProgress, StatusMonitoringCompletedCompliant, StatusMonitoringCompletedNonCompliant,
	StatusUnitReviewed, StatusSectionReviewed, StatusDivisionReviewed,
	StatusLegalReview, StatusNOVSent, StatusNOOSent,
	StatusClosedCompliant, StatusClosedNonCompliant,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are permitted.
func (s Status) Terminal() bool {
	return s == StatusClosedCompliant || s == StatusClosedNonCompliant
}

// Phase is the progress of a case within one stage.
type Phase string

const (
	PhaseAssigned   Phase = "assigned"
	PhaseInProgress Phase = "in_progress"
	PhaseCompleted  Phase = "completed"
)

var stagePrefix = map[law.Stage]string{
	law.StageSection:    "SECTION",
	law.StageUnit:       "UNIT",
	law.StageMonitoring: "MONITORING",
}

// AssignedStatus returns the hand-off status for stage.
func AssignedStatus(stage law.Stage) Status {
	return Status(stagePrefix[stage] + "_ASSIGNED")
}

// InProgressStatus returns the working status for stage.
func InProgressStatus(stage law.Stage) Status {
	return Status(stagePrefix[stage] + "_IN_PROGRESS")
}

// CompletedStatus returns the completion status for stage on the branch
// selected by d. d must not be DecisionPending.
func CompletedStatus(stage law.Stage, d Decision) Status {
	if d == DecisionCompliant {
		return Status(stagePrefix[stage] + "_COMPLETED_COMPLIANT")
	}
	return Status(stagePrefix[stage] + "_COMPLETED_NON_COMPLIANT")
}

// StageOf splits a per-stage status into its stage and phase.
// ok is false for CREATED, review, legal and closed statuses.
func StageOf(s Status) (stage law.Stage, phase Phase, ok bool) {
	for st, prefix := range stagePrefix {
		rest, found := strings.CutPrefix(string(s), prefix+"_")
		if !found {
			continue
		}
		switch {
		case rest == "ASSIGNED":
			return st, PhaseAssigned, true
		case rest == "IN_PROGRESS":
			return st, PhaseInProgress, true
		case rest == "COMPLETED_COMPLIANT" || rest == "COMPLETED_NON_COMPLIANT":
			return st, PhaseCompleted, true
		}
	}
	return "", "", false
}

// Decision is the compliance outcome captured at completion.
type Decision string

const (
	DecisionPending      Decision = "PENDING"
	DecisionCompliant    Decision = "COMPLIANT"
	DecisionNonCompliant Decision = "NON_COMPLIANT"
)

// Decided reports whether d is a final outcome.
func (d Decision) Decided() bool {
	return d == DecisionCompliant || d == DecisionNonCompliant
}

// ParseDecision accepts COMPLIANT / NON_COMPLIANT in any case, with dashes or spaces.
func ParseDecision(s string) (Decision, bool) {
	v := strings.ToUpper(strings.TrimSpace(s))
	v = strings.NewReplacer("-", "_", " ", "_").Replace(v)
	switch Decision(v) {
	case DecisionCompliant:
		return DecisionCompliant, true
	case DecisionNonCompliant:
		return DecisionNonCompliant, true
	}
	return "", false
}
