package cases

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"inspection-platform/internal/billing"
	"inspection-platform/internal/checklist"
	"inspection-platform/internal/history"
	"inspection-platform/internal/law"
	"inspection-platform/internal/notify"
	"inspection-platform/internal/workflow"
	"inspection-platform/pkg/logger"
	"inspection-platform/pkg/utils"

	"github.com/google/uuid"
)

// BillingSubmitter receives penalty records once a legal notice is committed.
type BillingSubmitter interface {
	Submit(ctx context.Context, r billing.Record) error
}

// Deps are the collaborators of Service. Nil fields get local defaults.
type Deps struct {
	Ledger     *history.Service
	Checklists checklist.Store
	Notifier   notify.Dispatcher
	Billing    BillingSubmitter
	Locker     utils.Locker
	Deadlines  workflow.DeadlinePolicy
	Currency   string
}

// Service runs workflow operations against stored cases.
//
// Each operation reads the case, evaluates the guards, and commits the new
// state with its history record through Repository.CompareAndSwap. A lost
// race re-reads and re-evaluates, so the loser sees the winner's state.
type Service struct {
	repo       Repository
	machine    *workflow.Machine
	ledger     *history.Service
	checklists checklist.Store
	notifier   notify.Dispatcher
	billing    BillingSubmitter
	locker     utils.Locker
	deadlines  workflow.DeadlinePolicy
	currency   string

	clock       func() time.Time
	maxAttempts int
	lockTTL     time.Duration
}

func NewService(repo Repository, machine *workflow.Machine, deps Deps) *Service {
	if machine == nil {
		machine = workflow.NewMachine(nil)
	}
	if deps.Checklists == nil {
		deps.Checklists = checklist.NewMemoryStore()
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.NewLogDispatcher()
	}
	if deps.Locker == nil {
		deps.Locker = utils.NewMemoryLocker()
	}
	if deps.Deadlines.NOV <= 0 || deps.Deadlines.NOO <= 0 {
		def := workflow.DefaultDeadlinePolicy()
		if deps.Deadlines.NOV <= 0 {
			deps.Deadlines.NOV = def.NOV
		}
		if deps.Deadlines.NOO <= 0 {
			deps.Deadlines.NOO = def.NOO
		}
	}
	if deps.Currency == "" {
		deps.Currency = "PHP"
	}
	return &Service{
		repo:        repo,
		machine:     machine,
		ledger:      deps.Ledger,
		checklists:  deps.Checklists,
		notifier:    deps.Notifier,
		billing:     deps.Billing,
		locker:      deps.Locker,
		deadlines:   deps.Deadlines,
		currency:    deps.Currency,
		clock:       time.Now,
		maxAttempts: 8,
		lockTTL:     2 * time.Minute,
	}
}

// Machine exposes the rule set the service evaluates.
func (s *Service) Machine() *workflow.Machine { return s.machine }

type CreateRequest struct {
	Law            string          `json:"law"`
	Establishments []string        `json:"establishments"`
	Checklist      json.RawMessage `json:"checklist,omitempty"`
}

// Create opens a case in CREATED. Only the division chief may originate cases.
func (s *Service) Create(ctx context.Context, actor workflow.Actor, req CreateRequest) (Case, error) {
	code, err := law.ParseCode(req.Law)
	if err != nil {
		return Case{}, workflow.Wrap(workflow.KindConfiguration, workflow.ActionCreate, err)
	}
	if err := s.machine.EvaluateCreate(actor, code); err != nil {
		return Case{}, err
	}
	est := normalizeEstablishments(req.Establishments)
	if len(est) == 0 {
		return Case{}, invalidArg(workflow.ActionCreate, "at least one establishment is required")
	}
	if len(req.Checklist) > 0 && !json.Valid(req.Checklist) {
		return Case{}, invalidArg(workflow.ActionCreate, "checklist must be valid JSON")
	}

	now := s.clock().UTC()
	seq, err := s.repo.NextSequence(ctx, now.Year())
	if err != nil {
		return Case{}, storeErr(workflow.ActionCreate, err)
	}
	c := Case{
		ID:             uuid.NewString(),
		Code:           FormatCode(now.Year(), seq),
		Law:            code,
		Status:         workflow.StatusCreated,
		Establishments: est,
		CreatedBy:      actor.ID,
		Decision:       workflow.DecisionPending,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	// The checklist is keyed by case id; write it first so a failure leaves no case.
	if len(req.Checklist) > 0 {
		if _, err := s.checklists.Put(ctx, checklist.Blob{CaseID: c.ID, Data: req.Checklist, UpdatedBy: actor.ID}, 0); err != nil {
			return Case{}, checklistErr(workflow.ActionCreate, err)
		}
	}

	rec := history.Record{
		CaseID:    c.ID,
		NewStatus: workflow.StatusCreated,
		Action:    workflow.ActionCreate,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		CreatedAt: now,
	}
	if err := s.repo.Create(ctx, c, rec); err != nil {
		return Case{}, storeErr(workflow.ActionCreate, err)
	}
	logger.From(ctx).Info("case created",
		"case_id", c.ID,
		"code", c.Code,
		"law", string(c.Law),
		"actor_id", actor.ID,
	)
	return c, nil
}

func normalizeEstablishments(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range in {
		e = strings.TrimSpace(e)
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}

// Assign claims the case for actor (assignToMe).
func (s *Service) Assign(ctx context.Context, id string, actor workflow.Actor, remarks string) (Case, error) {
	return s.transition(ctx, id, workflow.Request{Action: workflow.ActionAssign, Actor: actor, Remarks: remarks}, nil, nil)
}

func (s *Service) Start(ctx context.Context, id string, actor workflow.Actor, remarks string) (Case, error) {
	return s.transition(ctx, id, workflow.Request{Action: workflow.ActionStart, Actor: actor, Remarks: remarks}, nil, nil)
}

type CompleteRequest struct {
	// Decision is COMPLIANT or NON_COMPLIANT. When empty it is read from the
	// checklist's "compliant" field.
	Decision string `json:"decision,omitempty"`
	Remarks  string `json:"remarks,omitempty"`
}

func (s *Service) Complete(ctx context.Context, id string, actor workflow.Actor, req CompleteRequest) (Case, error) {
	wreq := workflow.Request{
		Action:        workflow.ActionComplete,
		Actor:         actor,
		Remarks:       req.Remarks,
		DeferDecision: true,
	}
	if raw := strings.TrimSpace(req.Decision); raw != "" {
		d, ok := workflow.ParseDecision(raw)
		if !ok {
			// Kept as given so the machine rejects it after the guards.
			d = workflow.Decision(strings.ToUpper(raw))
		}
		wreq.Decision = d
	}
	return s.transition(ctx, id, wreq, s.resolveDecision, nil)
}

// resolveDecision fills a deferred completion decision from the checklist.
func (s *Service) resolveDecision(ctx context.Context, cur Case, r workflow.Request) (workflow.Request, error) {
	d, err := s.decisionFromChecklist(ctx, cur.ID)
	if err != nil {
		return r, err
	}
	r.Decision = d
	r.DeferDecision = false
	return r, nil
}

func (s *Service) decisionFromChecklist(ctx context.Context, id string) (workflow.Decision, error) {
	blob, err := s.checklists.Get(ctx, id)
	if errors.Is(err, checklist.ErrNotFound) {
		return "", invalidArg(workflow.ActionComplete, "no decision given and no checklist saved")
	}
	if err != nil {
		return "", checklistErr(workflow.ActionComplete, err)
	}
	compliant, ok, err := checklist.ExtractCompliance(blob)
	if err != nil {
		return "", invalidArg(workflow.ActionComplete, "checklist is malformed")
	}
	if !ok {
		return "", invalidArg(workflow.ActionComplete, "no decision given and checklist has no compliant field")
	}
	if compliant {
		return workflow.DecisionCompliant, nil
	}
	return workflow.DecisionNonCompliant, nil
}

// Forward hands the case to the next stage of its law pipeline.
func (s *Service) Forward(ctx context.Context, id string, actor workflow.Actor, target, remarks string) (Case, error) {
	stage := law.Stage(strings.ToLower(strings.TrimSpace(target)))
	return s.transition(ctx, id, workflow.Request{Action: workflow.ActionForward, Actor: actor, Target: stage, Remarks: remarks}, nil, nil)
}

// Review passes the review checkpoint owned by actor's role.
func (s *Service) Review(ctx context.Context, id string, actor workflow.Actor, remarks string) (Case, error) {
	return s.transition(ctx, id, workflow.Request{Action: workflow.ActionReview, Actor: actor, Remarks: remarks}, nil, nil)
}

func (s *Service) ForwardToLegal(ctx context.Context, id string, actor workflow.Actor, remarks string) (Case, error) {
	return s.transition(ctx, id, workflow.Request{Action: workflow.ActionForwardToLegal, Actor: actor, Remarks: remarks}, nil, nil)
}

func (s *Service) Close(ctx context.Context, id string, actor workflow.Actor, remarks string) (Case, error) {
	return s.transition(ctx, id, workflow.Request{Action: workflow.ActionClose, Actor: actor, Remarks: remarks}, nil, nil)
}

func (s *Service) Get(ctx context.Context, id string) (Case, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return Case{}, storeErr("", err)
	}
	return c, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]Case, error) {
	out, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, storeErr("", err)
	}
	return out, nil
}

// History returns the case ledger ascending by seq.
func (s *Service) History(ctx context.Context, id string) ([]history.Record, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if s.ledger == nil {
		return nil, workflow.Wrap(workflow.KindDependencyUnavailable, "", history.ErrRepositoryNotSet)
	}
	recs, err := s.ledger.ListFor(ctx, id)
	if err != nil {
		return nil, storeErr("", err)
	}
	return recs, nil
}

// Verify replays the ledger and compares it with the stored status.
func (s *Service) Verify(ctx context.Context, id string) (history.Report, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return history.Report{}, err
	}
	recs, err := s.History(ctx, id)
	if err != nil {
		return history.Report{}, err
	}
	return history.Verify(recs, c.Status), nil
}

// Available lists the actions actor may take on the case right now.
func (s *Service) Available(ctx context.Context, id string, actor workflow.Actor) ([]workflow.Action, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.machine.Available(c.Snapshot(), actor), nil
}

// SaveChecklist stores a new checklist version. Only the actor holding the
// case may write it, and never after closure.
func (s *Service) SaveChecklist(ctx context.Context, id string, actor workflow.Actor, data json.RawMessage, expectedVersion int64) (checklist.Blob, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return checklist.Blob{}, err
	}
	if c.Status.Terminal() {
		return checklist.Blob{}, &workflow.Error{Kind: workflow.KindAlreadyTerminal, Msg: "case is closed"}
	}
	if actor.ID == "" || c.AssignedTo != actor.ID {
		return checklist.Blob{}, &workflow.Error{Kind: workflow.KindUnauthorized, Msg: "only the assigned actor may edit the checklist"}
	}
	if len(data) == 0 || !json.Valid(data) {
		return checklist.Blob{}, invalidArg("", "checklist must be valid JSON")
	}
	b, err := s.checklists.Put(ctx, checklist.Blob{CaseID: id, Data: data, UpdatedBy: actor.ID}, expectedVersion)
	if err != nil {
		return checklist.Blob{}, checklistErr("", err)
	}
	return b, nil
}

func (s *Service) GetChecklist(ctx context.Context, id string) (checklist.Blob, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return checklist.Blob{}, err
	}
	b, err := s.checklists.Get(ctx, id)
	if err != nil {
		return checklist.Blob{}, checklistErr("", err)
	}
	return b, nil
}

// resolveFunc completes a request whose outcome came back Deferred. It runs
// only after the guards passed.
type resolveFunc func(ctx context.Context, cur Case, r workflow.Request) (workflow.Request, error)

// mutateFunc adjusts the next case before commit. It runs after the guards
// passed and may run again when the commit loses a race.
type mutateFunc func(ctx context.Context, cur Case, next *Case) error

func (s *Service) transition(ctx context.Context, id string, base workflow.Request, resolve resolveFunc, mutate mutateFunc) (Case, error) {
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		req := base
		cur, err := s.repo.Get(ctx, id)
		if err != nil {
			return Case{}, storeErr(req.Action, err)
		}
		out, err := s.machine.Evaluate(cur.Snapshot(), req)
		if err != nil {
			return Case{}, err
		}
		if out.Deferred {
			if resolve == nil {
				return Case{}, invalidArg(req.Action, "compliance decision is required")
			}
			if req, err = resolve(ctx, cur, req); err != nil {
				return Case{}, err
			}
			req.DeferDecision = false
			if out, err = s.machine.Evaluate(cur.Snapshot(), req); err != nil {
				return Case{}, err
			}
		}

		now := s.clock().UTC()
		next := cur.Clone()
		next.Status = out.Next
		next.AssignedTo = out.AssignedTo
		next.Decision = out.Decision
		next.Version = cur.Version + 1
		next.UpdatedAt = now
		if mutate != nil {
			if err := mutate(ctx, cur, &next); err != nil {
				return Case{}, err
			}
		}

		rec := history.Record{
			CaseID:         id,
			PreviousStatus: out.Previous,
			NewStatus:      out.Next,
			Action:         req.Action,
			ActorID:        req.Actor.ID,
			ActorRole:      req.Actor.Role,
			Remarks:        strings.TrimSpace(req.Remarks),
			CreatedAt:      now,
		}
		err = s.repo.CompareAndSwap(ctx, cur.Version, next, rec)
		switch {
		case errors.Is(err, ErrVersionConflict):
			continue
		case errors.Is(err, ErrDuplicateNotice):
			return Case{}, &workflow.Error{Kind: workflow.KindDuplicateLegalNotice, Action: req.Action, Msg: "notice already issued for this case"}
		case err != nil:
			return Case{}, storeErr(req.Action, err)
		}

		logger.From(ctx).Info("case transition",
			"case_id", id,
			"action", string(req.Action),
			"from", string(out.Previous),
			"to", string(out.Next),
			"actor_id", req.Actor.ID,
			"actor_role", req.Actor.Role,
		)
		return next, nil
	}
	return Case{}, &workflow.Error{Kind: workflow.KindDependencyUnavailable, Action: base.Action, Msg: "case is under heavy contention, retry"}
}

func invalidArg(action workflow.Action, msg string) error {
	return &workflow.Error{Kind: workflow.KindInvalidArgument, Action: action, Msg: msg}
}

func storeErr(action workflow.Action, err error) error {
	if errors.Is(err, ErrNotFound) {
		return &workflow.Error{Kind: workflow.KindNotFound, Action: action, Msg: "case not found"}
	}
	if errors.Is(err, ErrAlreadyExists) {
		return &workflow.Error{Kind: workflow.KindInvalidArgument, Action: action, Msg: "case already exists"}
	}
	var we *workflow.Error
	if errors.As(err, &we) {
		return err
	}
	return workflow.Wrap(workflow.KindDependencyUnavailable, action, err)
}

func checklistErr(action workflow.Action, err error) error {
	switch {
	case errors.Is(err, checklist.ErrNotFound):
		return &workflow.Error{Kind: workflow.KindNotFound, Action: action, Msg: "checklist not found"}
	case errors.Is(err, checklist.ErrInvalidBlob):
		return invalidArg(action, "checklist is invalid")
	case errors.Is(err, checklist.ErrVersionConflict):
		return &workflow.Error{Kind: workflow.KindInvalidTransition, Action: action, Msg: "checklist was changed by another save, reload and retry"}
	}
	return workflow.Wrap(workflow.KindDependencyUnavailable, action, err)
}
