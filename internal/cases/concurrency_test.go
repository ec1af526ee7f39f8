package cases

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"inspection-platform/internal/history"
	"inspection-platform/internal/law"
	"inspection-platform/internal/rbac"
	"inspection-platform/internal/workflow"
)

func TestConcurrentAssign_SingleWinner(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	c := h.create(t, law.PD1586)

	const n = 12
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		kinds   = map[workflow.Kind]int{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := workflow.Actor{ID: fmt.Sprintf("sc-%d", i), Role: rbac.RoleSectionChief}
			_, err := h.svc.Assign(ctx, c.ID, actor, "")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners = append(winners, actor.ID)
				return
			}
			kinds[workflow.KindOf(err)]++
		}(i)
	}
	wg.Wait()

	if len(winners) != 1 {
		t.Fatalf("expected exactly one winner, got %v", winners)
	}
	if kinds[workflow.KindAlreadyAssigned] != n-1 {
		t.Fatalf("expected %d AlreadyAssigned losers, got %v", n-1, kinds)
	}
	got, _ := h.svc.Get(ctx, c.ID)
	if got.AssignedTo != winners[0] || got.Version != 2 {
		t.Fatalf("expected winner recorded once, got %s v%d", got.AssignedTo, got.Version)
	}
	recs, _ := h.svc.History(ctx, c.ID)
	if len(recs) != 2 {
		t.Fatalf("expected one claim record, got %d records", len(recs))
	}
}

func TestConcurrentNOV_DispatchesOnce(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	c := h.toLegalReview(t)

	const n = 6
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		other     []workflow.Kind
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.SendNOV(ctx, c.ID, legalOfficer, novRequest())
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			other = append(other, workflow.KindOf(err))
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected one successful NOV, got %d", successes)
	}
	for _, k := range other {
		if k != workflow.KindDuplicateLegalNotice && k != workflow.KindDependencyUnavailable {
			t.Fatalf("unexpected failure kind %s", k)
		}
	}
	if h.notifier.count() != 1 {
		t.Fatalf("expected exactly one email, got %d", h.notifier.count())
	}
	if len(h.billing.records) != 1 {
		t.Fatalf("expected exactly one billing record, got %d", len(h.billing.records))
	}
}

func TestMemoryRepo_CompareAndSwapRejectsStaleVersion(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	c := h.create(t, law.RA9003)

	next := c.Clone()
	next.Status = workflow.StatusSectionAssigned
	next.AssignedTo = "sc-1"
	next.Version = c.Version + 1
	rec := recFor(c, next, workflow.ActionAssign)
	if err := h.repo.CompareAndSwap(ctx, c.Version, next, rec); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := h.repo.CompareAndSwap(ctx, c.Version, next, rec); err != ErrVersionConflict {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}

func recFor(prev, next Case, action workflow.Action) history.Record {
	return history.Record{
		CaseID:         next.ID,
		PreviousStatus: prev.Status,
		NewStatus:      next.Status,
		Action:         action,
		ActorID:        next.AssignedTo,
		ActorRole:      rbac.RoleSectionChief,
	}
}
