package cases

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"inspection-platform/internal/billing"
	"inspection-platform/internal/checklist"
	"inspection-platform/internal/history"
	"inspection-platform/internal/law"
	"inspection-platform/internal/notify"
	"inspection-platform/internal/rbac"
	"inspection-platform/internal/workflow"
)

var (
	divisionChief = workflow.Actor{ID: "dc-1", Role: rbac.RoleDivisionChief}
	sectionChief  = workflow.Actor{ID: "sc-1", Role: rbac.RoleSectionChief}
	unitHead      = workflow.Actor{ID: "uh-1", Role: rbac.RoleUnitHead}
	monitor       = workflow.Actor{ID: "mp-1", Role: rbac.RoleMonitoringPersonnel}
	legalOfficer  = workflow.Actor{ID: "lu-1", Role: rbac.RoleLegalUnit}
)

type fakeNotifier struct {
	mu   sync.Mutex
	fail bool
	sent []notify.Message
}

func (n *fakeNotifier) Send(ctx context.Context, m notify.Message) (notify.Receipt, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return notify.Receipt{}, errors.New("smtp relay down")
	}
	n.sent = append(n.sent, m)
	return notify.Receipt{DispatchID: "msg-" + m.Kind, SentAt: time.Now().UTC()}, nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type fakeBilling struct {
	mu      sync.Mutex
	records []billing.Record
}

func (b *fakeBilling) Submit(ctx context.Context, r billing.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, r)
	return nil
}

type harness struct {
	svc        *Service
	repo       *MemoryRepo
	notifier   *fakeNotifier
	billing    *fakeBilling
	checklists *checklist.MemoryStore
}

func newHarness() *harness {
	repo := NewMemoryRepo(nil)
	h := &harness{
		repo:       repo,
		notifier:   &fakeNotifier{},
		billing:    &fakeBilling{},
		checklists: checklist.NewMemoryStore(),
	}
	h.svc = NewService(repo, workflow.NewMachine(nil), Deps{
		Ledger:     history.NewService(repo.Ledger()),
		Checklists: h.checklists,
		Notifier:   h.notifier,
		Billing:    h.billing,
	})
	return h
}

// must fails the test on error: must(t)(svc.Start(...)).
func must(t *testing.T) func(Case, error) Case {
	t.Helper()
	return func(c Case, err error) Case {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		return c
	}
}

func expectKind(t *testing.T, err error, kind workflow.Kind) {
	t.Helper()
	if workflow.KindOf(err) != kind {
		t.Fatalf("expected %s, got %v", kind, err)
	}
}

func (h *harness) create(t *testing.T, code law.Code) Case {
	t.Helper()
	return must(t)(h.svc.Create(context.Background(), divisionChief, CreateRequest{
		Law:            string(code),
		Establishments: []string{"est-1"},
	}))
}

// toDivisionReviewed walks a case through every stage with decision d.
func (h *harness) toDivisionReviewed(t *testing.T, code law.Code, d workflow.Decision) Case {
	t.Helper()
	ctx := context.Background()
	c := h.create(t, code)
	id := c.ID

	stages := []workflow.Actor{sectionChief}
	pipeline, _ := law.NewResolver().StagesFor(code)
	if pipeline.Has(law.StageUnit) {
		stages = append(stages, unitHead)
	}
	stages = append(stages, monitor)
	targets := map[string]string{}
	for i := 0; i+1 < len(stages); i++ {
		next := string(law.StageMonitoring)
		if stages[i+1].Role == rbac.RoleUnitHead {
			next = string(law.StageUnit)
		}
		targets[stages[i].Role] = next
	}

	for _, a := range stages {
		must(t)(h.svc.Assign(ctx, id, a, ""))
		must(t)(h.svc.Start(ctx, id, a, ""))
		must(t)(h.svc.Complete(ctx, id, a, CompleteRequest{Decision: string(d)}))
		if tgt := targets[a.Role]; tgt != "" {
			must(t)(h.svc.Forward(ctx, id, a, tgt, ""))
		}
	}
	if pipeline.Has(law.StageUnit) {
		must(t)(h.svc.Review(ctx, id, unitHead, "unit ok"))
	}
	must(t)(h.svc.Review(ctx, id, sectionChief, "section ok"))
	return must(t)(h.svc.Review(ctx, id, divisionChief, "division ok"))
}

func TestService_CreateRequiresDivisionChiefAndKnownLaw(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	_, err := h.svc.Create(ctx, sectionChief, CreateRequest{Law: "PD-1586", Establishments: []string{"e"}})
	expectKind(t, err, workflow.KindUnauthorized)

	_, err = h.svc.Create(ctx, divisionChief, CreateRequest{Law: "RA-0000", Establishments: []string{"e"}})
	expectKind(t, err, workflow.KindConfiguration)

	_, err = h.svc.Create(ctx, divisionChief, CreateRequest{Law: "PD-1586", Establishments: []string{" ", ""}})
	expectKind(t, err, workflow.KindInvalidArgument)

	c := must(t)(h.svc.Create(ctx, divisionChief, CreateRequest{Law: "pd 1586", Establishments: []string{"e1", "e1", "e2"}}))
	if c.Status != workflow.StatusCreated || c.Decision != workflow.DecisionPending || c.Law != law.PD1586 {
		t.Fatalf("unexpected created case: %+v", c)
	}
	if len(c.Establishments) != 2 {
		t.Fatalf("expected establishments deduplicated, got %v", c.Establishments)
	}
	if !ValidCode(c.Code) {
		t.Fatalf("unexpected case code %q", c.Code)
	}

	recs, err := h.svc.History(ctx, c.ID)
	if err != nil || len(recs) != 1 || recs[0].NewStatus != workflow.StatusCreated || recs[0].PreviousStatus != "" {
		t.Fatalf("expected creation record, got %+v %v", recs, err)
	}
}

func TestService_CaseCodesAreSequentialPerYear(t *testing.T) {
	h := newHarness()
	h.svc.clock = func() time.Time { return time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC) }
	a := h.create(t, law.RA9003)
	b := h.create(t, law.RA9003)
	if a.Code != "INSP-2026-000001" || b.Code != "INSP-2026-000002" {
		t.Fatalf("unexpected codes %s, %s", a.Code, b.Code)
	}
}

func TestService_UnitBearingScenario(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	c := h.create(t, law.PD1586)

	c = must(t)(h.svc.Assign(ctx, c.ID, sectionChief, ""))
	if c.Status != workflow.StatusSectionAssigned || c.AssignedTo != sectionChief.ID {
		t.Fatalf("expected SECTION_ASSIGNED held by section chief, got %s/%s", c.Status, c.AssignedTo)
	}
	c = must(t)(h.svc.Start(ctx, c.ID, sectionChief, ""))
	c = must(t)(h.svc.Complete(ctx, c.ID, sectionChief, CompleteRequest{Decision: "NON_COMPLIANT"}))
	c = must(t)(h.svc.Forward(ctx, c.ID, sectionChief, "unit", "needs EIA review"))
	if c.Status != workflow.StatusUnitAssigned || c.AssignedTo != "" {
		t.Fatalf("expected unassigned UNIT_ASSIGNED, got %s/%q", c.Status, c.AssignedTo)
	}

	recs, _ := h.svc.History(ctx, c.ID)
	want := []workflow.Status{
		workflow.StatusCreated,
		workflow.StatusSectionAssigned,
		workflow.StatusSectionInProgress,
		workflow.StatusSectionCompletedNonCompliant,
		workflow.StatusUnitAssigned,
	}
	if len(recs) != len(want) {
		t.Fatalf("expected %d history records, got %d", len(want), len(recs))
	}
	for i, w := range want {
		if recs[i].NewStatus != w {
			t.Fatalf("record %d: expected %s, got %s", i, w, recs[i].NewStatus)
		}
	}
	if recs[4].Remarks != "needs EIA review" || recs[4].ActorID != sectionChief.ID {
		t.Fatalf("expected remarks and actor on forward record, got %+v", recs[4])
	}
}

func TestService_NoUnitLawRejectsUnitForward(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	c := h.create(t, law.RA9003)
	must(t)(h.svc.Assign(ctx, c.ID, sectionChief, ""))
	must(t)(h.svc.Start(ctx, c.ID, sectionChief, ""))
	must(t)(h.svc.Complete(ctx, c.ID, sectionChief, CompleteRequest{Decision: "NON_COMPLIANT"}))

	_, err := h.svc.Forward(ctx, c.ID, sectionChief, "unit", "")
	expectKind(t, err, workflow.KindInvalidTransition)

	_, err = h.svc.Forward(ctx, c.ID, sectionChief, "legal", "")
	expectKind(t, err, workflow.KindInvalidArgument)

	got, _ := h.svc.Get(ctx, c.ID)
	if got.Status != workflow.StatusSectionCompletedNonCompliant {
		t.Fatalf("expected failed forward to leave case unchanged, got %s", got.Status)
	}
}

func TestService_CompleteTwiceFails(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	c := h.create(t, law.RA6969)
	must(t)(h.svc.Assign(ctx, c.ID, sectionChief, ""))
	must(t)(h.svc.Start(ctx, c.ID, sectionChief, ""))
	must(t)(h.svc.Complete(ctx, c.ID, sectionChief, CompleteRequest{Decision: "COMPLIANT"}))

	_, err := h.svc.Complete(ctx, c.ID, sectionChief, CompleteRequest{Decision: "NON_COMPLIANT"})
	expectKind(t, err, workflow.KindAlreadyCompleted)

	got, _ := h.svc.Get(ctx, c.ID)
	if got.Decision != workflow.DecisionCompliant {
		t.Fatalf("decision must not change, got %s", got.Decision)
	}
}

func TestService_SecondCompleteWithoutDecisionIsAlreadyCompleted(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	c := h.create(t, law.RA9003)
	must(t)(h.svc.Assign(ctx, c.ID, sectionChief, ""))
	must(t)(h.svc.Start(ctx, c.ID, sectionChief, ""))
	must(t)(h.svc.Complete(ctx, c.ID, sectionChief, CompleteRequest{Decision: "COMPLIANT"}))
	before, _ := h.svc.History(ctx, c.ID)

	// No checklist is saved, so reading one would fail with InvalidArgument.
	_, err := h.svc.Complete(ctx, c.ID, sectionChief, CompleteRequest{})
	expectKind(t, err, workflow.KindAlreadyCompleted)
	_, err = h.svc.Complete(ctx, c.ID, sectionChief, CompleteRequest{Decision: "maybe"})
	expectKind(t, err, workflow.KindAlreadyCompleted)

	after, _ := h.svc.History(ctx, c.ID)
	if len(after) != len(before) {
		t.Fatalf("expected history unchanged, got %d -> %d records", len(before), len(after))
	}
}

func TestService_GuardsRunBeforePayloadChecks(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	c := h.toDivisionReviewed(t, law.RA9003, workflow.DecisionCompliant)
	c = must(t)(h.svc.Close(ctx, c.ID, divisionChief, "all clear"))

	_, err := h.svc.Complete(ctx, c.ID, sectionChief, CompleteRequest{})
	expectKind(t, err, workflow.KindAlreadyTerminal)
	_, err = h.svc.Complete(ctx, c.ID, sectionChief, CompleteRequest{Decision: "maybe"})
	expectKind(t, err, workflow.KindAlreadyTerminal)
	_, err = h.svc.Forward(ctx, c.ID, sectionChief, "bogus", "")
	expectKind(t, err, workflow.KindAlreadyTerminal)

	_, err = h.svc.Complete(ctx, "missing", sectionChief, CompleteRequest{})
	expectKind(t, err, workflow.KindNotFound)
	_, err = h.svc.Forward(ctx, "missing", sectionChief, "bogus", "")
	expectKind(t, err, workflow.KindNotFound)
}

func TestService_InvalidDecisionRejectedAfterGuards(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	c := h.create(t, law.RA9003)
	must(t)(h.svc.Assign(ctx, c.ID, sectionChief, ""))
	must(t)(h.svc.Start(ctx, c.ID, sectionChief, ""))

	_, err := h.svc.Complete(ctx, c.ID, monitor, CompleteRequest{Decision: "maybe"})
	expectKind(t, err, workflow.KindUnauthorized)
	_, err = h.svc.Complete(ctx, c.ID, sectionChief, CompleteRequest{Decision: "maybe"})
	expectKind(t, err, workflow.KindInvalidArgument)
	_, err = h.svc.Complete(ctx, c.ID, sectionChief, CompleteRequest{Decision: "pending"})
	expectKind(t, err, workflow.KindInvalidArgument)
}

func TestService_CompleteReadsDecisionFromChecklist(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	c := must(t)(h.svc.Create(ctx, divisionChief, CreateRequest{
		Law:            "RA-9003",
		Establishments: []string{"e"},
		Checklist:      json.RawMessage(`{"items": []}`),
	}))
	must(t)(h.svc.Assign(ctx, c.ID, sectionChief, ""))
	must(t)(h.svc.Start(ctx, c.ID, sectionChief, ""))

	_, err := h.svc.Complete(ctx, c.ID, sectionChief, CompleteRequest{})
	expectKind(t, err, workflow.KindInvalidArgument)

	if _, err := h.svc.SaveChecklist(ctx, c.ID, monitor, json.RawMessage(`{"compliant": false}`), 1); workflow.KindOf(err) != workflow.KindUnauthorized {
		t.Fatalf("expected non-holder checklist edit rejected, got %v", err)
	}
	if _, err := h.svc.SaveChecklist(ctx, c.ID, sectionChief, json.RawMessage(`{"compliant": false}`), 0); workflow.KindOf(err) != workflow.KindInvalidTransition {
		t.Fatalf("expected stale checklist version rejected, got %v", err)
	}
	b, err := h.svc.SaveChecklist(ctx, c.ID, sectionChief, json.RawMessage(`{"compliant": false}`), 1)
	if err != nil || b.Version != 2 {
		t.Fatalf("expected checklist v2, got %+v %v", b, err)
	}

	c = must(t)(h.svc.Complete(ctx, c.ID, sectionChief, CompleteRequest{}))
	if c.Status != workflow.StatusSectionCompletedNonCompliant || c.Decision != workflow.DecisionNonCompliant {
		t.Fatalf("expected decision from checklist, got %s/%s", c.Status, c.Decision)
	}
}

func TestService_CompliantCaseCannotReachLegalAndClosesAtDivision(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	c := h.toDivisionReviewed(t, law.RA8749, workflow.DecisionCompliant)
	if c.Status != workflow.StatusDivisionReviewed {
		t.Fatalf("expected DIVISION_REVIEWED, got %s", c.Status)
	}

	_, err := h.svc.ForwardToLegal(ctx, c.ID, divisionChief, "")
	expectKind(t, err, workflow.KindInvalidTransition)

	c = must(t)(h.svc.Close(ctx, c.ID, divisionChief, "all clear"))
	if c.Status != workflow.StatusClosedCompliant {
		t.Fatalf("expected CLOSED_COMPLIANT, got %s", c.Status)
	}

	_, err = h.svc.Assign(ctx, c.ID, sectionChief, "")
	expectKind(t, err, workflow.KindAlreadyTerminal)
	_, err = h.svc.SaveChecklist(ctx, c.ID, sectionChief, json.RawMessage(`{}`), 0)
	expectKind(t, err, workflow.KindAlreadyTerminal)

	rep, err := h.svc.Verify(ctx, c.ID)
	if err != nil || !rep.OK {
		t.Fatalf("expected replayable ledger, got %+v %v", rep, err)
	}
}

func TestService_NotFound(t *testing.T) {
	h := newHarness()
	_, err := h.svc.Assign(context.Background(), "missing", sectionChief, "")
	expectKind(t, err, workflow.KindNotFound)
	_, err = h.svc.History(context.Background(), "missing")
	expectKind(t, err, workflow.KindNotFound)
}

func TestService_Available(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	c := h.create(t, law.PD1586)

	acts, err := h.svc.Available(ctx, c.ID, sectionChief)
	if err != nil || len(acts) != 1 || acts[0] != workflow.ActionAssign {
		t.Fatalf("expected [assign], got %v %v", acts, err)
	}
	acts, _ = h.svc.Available(ctx, c.ID, legalOfficer)
	if len(acts) != 0 {
		t.Fatalf("expected no actions for legal, got %v", acts)
	}
}

func TestService_ListFilters(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	a := h.create(t, law.PD1586)
	h.create(t, law.RA9003)
	must(t)(h.svc.Assign(ctx, a.ID, sectionChief, ""))

	mine, _ := h.svc.List(ctx, Filter{AssignedTo: sectionChief.ID})
	if len(mine) != 1 || mine[0].ID != a.ID {
		t.Fatalf("expected only the claimed case, got %d", len(mine))
	}
	created, _ := h.svc.List(ctx, Filter{Statuses: []workflow.Status{workflow.StatusCreated}, Unassigned: true})
	if len(created) != 1 || created[0].Law != law.RA9003 {
		t.Fatalf("expected one unclaimed CREATED case, got %d", len(created))
	}
}

// failingRepo simulates a store outage on writes.
type failingRepo struct {
	*MemoryRepo
}

func (r failingRepo) CompareAndSwap(ctx context.Context, expectedVersion int64, next Case, rec history.Record) error {
	return errors.New("connection refused")
}

func TestService_StoreFailureIsRetryable(t *testing.T) {
	mem := NewMemoryRepo(nil)
	seedSvc := NewService(mem, nil, Deps{})
	c := must(t)(seedSvc.Create(context.Background(), divisionChief, CreateRequest{Law: "RA-9003", Establishments: []string{"e"}}))

	svc := NewService(failingRepo{mem}, nil, Deps{})
	_, err := svc.Assign(context.Background(), c.ID, sectionChief, "")
	expectKind(t, err, workflow.KindDependencyUnavailable)
	if !workflow.IsRetryable(err) {
		t.Fatalf("expected store failure to be retryable")
	}
	got, _ := mem.Get(context.Background(), c.ID)
	if got.AssignedTo != "" {
		t.Fatalf("expected nothing committed")
	}
}
