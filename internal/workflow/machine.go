package workflow

import (
	"errors"
	"strings"

	"inspection-platform/internal/law"
	"inspection-platform/internal/rbac"
)

// Action names an operation on a case. Values are recorded in history.
type Action string

const (
	ActionCreate         Action = "create"
	ActionAssign         Action = "assign"
	ActionStart          Action = "start"
	ActionComplete       Action = "complete"
	ActionForward        Action = "forward"
	ActionReview         Action = "review"
	ActionForwardToLegal Action = "forward_to_legal"
	ActionSendNOV        Action = "send_nov"
	ActionSendNOO        Action = "send_noo"
	ActionClose          Action = "close"
)

// Actor is the caller of an operation. The workflow only consumes ID and Role;
// District and Section are carried for collaborators that scope listings.
type Actor struct {
	ID       string `json:"id"`
	Role     string `json:"role"`
	District string `json:"district,omitempty"`
	Section  string `json:"section,omitempty"`
}

// Snapshot is the subset of case state the guards read.
type Snapshot struct {
	Status     Status
	Law        law.Code
	AssignedTo string
	Decision   Decision
	HasNOV     bool
	HasNOO     bool
}

// Request is one operation as evaluated by the machine.
type Request struct {
	Action   Action
	Actor    Actor
	Target   law.Stage // forward only
	Decision Decision  // complete only
	Remarks  string

	// DeferDecision lets a complete request without a decision pass the
	// guards. The outcome is marked Deferred and must be evaluated again
	// once the decision is known.
	DeferDecision bool
}

// Outcome is the state a successful request commits.
type Outcome struct {
	Previous   Status
	Next       Status
	AssignedTo string
	Decision   Decision
	Deferred   bool
}

// StageOwner returns the role that claims, works and forwards a stage.
func StageOwner(stage law.Stage) string {
	switch stage {
	case law.StageSection:
		return rbac.RoleSectionChief
	case law.StageUnit:
		return rbac.RoleUnitHead
	case law.StageMonitoring:
		return rbac.RoleMonitoringPersonnel
	}
	return ""
}

// Machine evaluates requests against the transition rules. It holds no case
// state and is safe for concurrent use.
type Machine struct {
	laws *law.Resolver
}

func NewMachine(laws *law.Resolver) *Machine {
	if laws == nil {
		laws = law.NewResolver()
	}
	return &Machine{laws: laws}
}

// Laws exposes the resolver the machine consults.
func (m *Machine) Laws() *law.Resolver { return m.laws }

// Evaluate runs the guards for r against s in the fixed order
// terminal -> role -> ownership -> reachability and returns the outcome to
// commit. It never mutates anything.
func (m *Machine) Evaluate(s Snapshot, r Request) (Outcome, error) {
	if s.Status.Terminal() {
		return Outcome{}, newError(KindAlreadyTerminal, r.Action, "case is closed (%s)", s.Status)
	}
	if strings.TrimSpace(r.Actor.ID) == "" || r.Actor.Role == "" {
		return Outcome{}, newError(KindUnauthorized, r.Action, "actor id and role are required")
	}
	pipeline, err := m.laws.StagesFor(s.Law)
	if err != nil {
		return Outcome{}, Wrap(KindConfiguration, r.Action, err)
	}

	out := Outcome{Previous: s.Status, Next: s.Status, AssignedTo: s.AssignedTo, Decision: s.Decision}
	switch r.Action {
	case ActionAssign:
		err = m.assign(s, r, pipeline, &out)
	case ActionStart:
		err = m.start(s, r, &out)
	case ActionComplete:
		err = m.complete(s, r, &out)
	case ActionForward:
		err = m.forward(s, r, pipeline, &out)
	case ActionReview:
		err = m.review(s, r, pipeline, &out)
	case ActionForwardToLegal:
		err = m.forwardToLegal(s, r, &out)
	case ActionSendNOV, ActionSendNOO:
		err = m.sendNotice(s, r, &out)
	case ActionClose:
		err = m.close(s, r, &out)
	default:
		err = newError(KindInvalidArgument, r.Action, "unknown action")
	}
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}

// EvaluateCreate checks that actor may originate a case under code.
func (m *Machine) EvaluateCreate(actor Actor, code law.Code) error {
	if strings.TrimSpace(actor.ID) == "" || !rbac.CanOriginateCases(actor.Role) {
		return newError(KindUnauthorized, ActionCreate, "only the division chief may create cases")
	}
	if _, err := m.laws.StagesFor(code); err != nil {
		return Wrap(KindConfiguration, ActionCreate, err)
	}
	return nil
}

func (m *Machine) assign(s Snapshot, r Request, p law.Pipeline, out *Outcome) error {
	var owner string
	switch stage, phase, ok := StageOf(s.Status); {
	case s.Status == StatusCreated:
		// Claiming a fresh case is the division-to-section hand-off.
		owner = StageOwner(p.First())
		out.Next = AssignedStatus(p.First())
	case ok && phase == PhaseAssigned:
		if !p.Has(stage) {
			return newError(KindInvalidTransition, r.Action, "law %s has no %s stage", s.Law, stage)
		}
		owner = StageOwner(stage)
	case s.Status == StatusLegalReview:
		owner = rbac.RoleLegalUnit
	default:
		return newError(KindInvalidTransition, r.Action, "a case in %s cannot be claimed", s.Status)
	}
	if r.Actor.Role != owner {
		return newError(KindUnauthorized, r.Action, "only %s may claim a case in %s", owner, s.Status)
	}
	if s.AssignedTo != "" {
		if s.AssignedTo == r.Actor.ID {
			return newError(KindAlreadyAssigned, r.Action, "case is already assigned to you")
		}
		return newError(KindAlreadyAssigned, r.Action, "case is already assigned to another %s", owner)
	}
	out.AssignedTo = r.Actor.ID
	return nil
}

// requireStageOwner applies the role and ownership guards for per-stage work.
func requireStageOwner(s Snapshot, r Request) (law.Stage, Phase, error) {
	stage, phase, ok := StageOf(s.Status)
	if !ok {
		return "", "", newError(KindInvalidTransition, r.Action, "no stage work is open in %s", s.Status)
	}
	if owner := StageOwner(stage); r.Actor.Role != owner {
		return "", "", newError(KindUnauthorized, r.Action, "only %s may act on the %s stage", owner, stage)
	}
	if s.AssignedTo == "" {
		return "", "", newError(KindUnauthorized, r.Action, "case must be claimed before it can be worked")
	}
	if s.AssignedTo != r.Actor.ID {
		return "", "", newError(KindUnauthorized, r.Action, "case is assigned to another actor")
	}
	return stage, phase, nil
}

func (m *Machine) start(s Snapshot, r Request, out *Outcome) error {
	stage, phase, err := requireStageOwner(s, r)
	if err != nil {
		return err
	}
	if phase != PhaseAssigned {
		return newError(KindInvalidTransition, r.Action, "%s stage already started", stage)
	}
	out.Next = InProgressStatus(stage)
	return nil
}

func (m *Machine) complete(s Snapshot, r Request, out *Outcome) error {
	stage, phase, err := requireStageOwner(s, r)
	if err != nil {
		return err
	}
	switch phase {
	case PhaseCompleted:
		return newError(KindAlreadyCompleted, r.Action, "%s stage is already completed", stage)
	case PhaseAssigned:
		return newError(KindInvalidTransition, r.Action, "%s stage must be started before completion", stage)
	}
	if r.Decision == "" && r.DeferDecision {
		out.Deferred = true
		return nil
	}
	if !r.Decision.Decided() {
		return newError(KindInvalidArgument, r.Action, "compliance decision must be COMPLIANT or NON_COMPLIANT")
	}
	if s.Decision.Decided() && s.Decision != r.Decision {
		return newError(KindAlreadyCompleted, r.Action, "compliance decision is already recorded as %s", s.Decision)
	}
	out.Decision = r.Decision
	out.Next = CompletedStatus(stage, r.Decision)
	return nil
}

func (m *Machine) forward(s Snapshot, r Request, p law.Pipeline, out *Outcome) error {
	stage, phase, err := requireStageOwner(s, r)
	if err != nil {
		return err
	}
	if phase != PhaseCompleted {
		return newError(KindInvalidTransition, r.Action, "%s stage must be completed before forwarding", stage)
	}
	next, ok := p.Next(stage)
	if !ok {
		return newError(KindInvalidTransition, r.Action, "%s completion proceeds to review, not forwarding", stage)
	}
	if _, err := law.ParseStage(string(r.Target)); err != nil {
		return newError(KindInvalidArgument, r.Action, "unknown target stage %q", r.Target)
	}
	if r.Target != next {
		if r.Target == law.StageUnit && !p.Has(law.StageUnit) {
			return newError(KindInvalidTransition, r.Action, "law %s has no unit stage; forward to %s", s.Law, next)
		}
		return newError(KindInvalidTransition, r.Action, "%s stage forwards to %s, not %q", stage, next, r.Target)
	}
	out.Next = AssignedStatus(next)
	out.AssignedTo = ""
	return nil
}

func (m *Machine) forwardToLegal(s Snapshot, r Request, out *Outcome) error {
	if r.Actor.Role != rbac.RoleDivisionChief {
		return newError(KindUnauthorized, r.Action, "only the division chief may refer a case to legal")
	}
	if BranchOfCase(s.Status, s.Decision) != BranchNonCompliant {
		return newError(KindInvalidTransition, r.Action, "only non-compliant cases may be referred to legal")
	}
	if s.Status != StatusDivisionReviewed {
		return newError(KindInvalidTransition, r.Action, "case must be division-reviewed before legal referral, is %s", s.Status)
	}
	out.Next = StatusLegalReview
	out.AssignedTo = ""
	return nil
}

func (m *Machine) close(s Snapshot, r Request, out *Outcome) error {
	switch s.Status {
	case StatusDivisionReviewed:
		if r.Actor.Role != rbac.RoleDivisionChief {
			return newError(KindUnauthorized, r.Action, "only the division chief may close a reviewed case")
		}
		if s.Decision != DecisionCompliant {
			return newError(KindInvalidTransition, r.Action, "non-compliant cases close through the legal sequence")
		}
		out.Next = StatusClosedCompliant
		out.AssignedTo = ""
		return nil
	case StatusNOOSent:
		if r.Actor.Role != rbac.RoleLegalUnit {
			return newError(KindUnauthorized, r.Action, "only the legal unit may close a case after the notice of order")
		}
		if s.AssignedTo != r.Actor.ID {
			return newError(KindUnauthorized, r.Action, "case is assigned to another actor")
		}
		if strings.TrimSpace(r.Remarks) == "" {
			return newError(KindInvalidArgument, r.Action, "closing a non-compliant case requires remarks")
		}
		out.Next = StatusClosedNonCompliant
		return nil
	}
	if r.Actor.Role != rbac.RoleDivisionChief && r.Actor.Role != rbac.RoleLegalUnit {
		return newError(KindUnauthorized, r.Action, "role %s may not close cases", r.Actor.Role)
	}
	return newError(KindInvalidTransition, r.Action, "a case in %s cannot be closed", s.Status)
}

// Available lists the actions actor could successfully request on s right now.
// Forward and complete are probed with their only valid payloads.
func (m *Machine) Available(s Snapshot, actor Actor) []Action {
	pipeline, err := m.laws.StagesFor(s.Law)
	if err != nil {
		return nil
	}
	probes := []Request{
		{Action: ActionAssign},
		{Action: ActionStart},
		{Action: ActionComplete, Decision: probeDecision(s.Decision)},
		{Action: ActionReview},
		{Action: ActionForwardToLegal},
		{Action: ActionSendNOV},
		{Action: ActionSendNOO},
		{Action: ActionClose, Remarks: "probe"},
	}
	if stage, _, ok := StageOf(s.Status); ok {
		if next, ok := pipeline.Next(stage); ok {
			probes = append(probes, Request{Action: ActionForward, Target: next})
		}
	}
	var out []Action
	for _, p := range probes {
		p.Actor = actor
		if _, err := m.Evaluate(s, p); err == nil {
			out = append(out, p.Action)
		}
	}
	return out
}

func probeDecision(d Decision) Decision {
	if d.Decided() {
		return d
	}
	return DecisionCompliant
}

// IsGuardFailure reports whether err is a caller-actionable guard failure.
func IsGuardFailure(err error) bool {
	var we *Error
	if !errors.As(err, &we) {
		return false
	}
	switch we.Kind {
	case KindUnauthorized, KindInvalidTransition, KindAlreadyAssigned, KindAlreadyCompleted,
		KindAlreadyTerminal, KindDuplicateLegalNotice, KindInvalidArgument:
		return true
	}
	return false
}
