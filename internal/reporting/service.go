package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"inspection-platform/internal/cases"
	"inspection-platform/internal/rbac"
	"inspection-platform/internal/workflow"
	"inspection-platform/pkg/logger"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// CaseLister is the read side of the case store.
type CaseLister interface {
	List(ctx context.Context, f cases.Filter) ([]cases.Case, error)
}

// Service computes per-role queue counts over status and assignment.
// Results are read-only and may lag commits by up to the cache TTL.
type Service struct {
	cases   CaseLister
	machine *workflow.Machine
	cache   Cache
	ttl     time.Duration
	clock   func() time.Time
}

func NewService(lister CaseLister, machine *workflow.Machine, cache Cache, ttl time.Duration) *Service {
	if machine == nil {
		machine = workflow.NewMachine(nil)
	}
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &Service{cases: lister, machine: machine, cache: cache, ttl: ttl, clock: time.Now}
}

func openStatuses() []workflow.Status {
	out := make([]workflow.Status, 0, len(workflow.AllStatuses))
	for _, s := range workflow.AllStatuses {
		if !s.Terminal() {
			out = append(out, s)
		}
	}
	return out
}

func cacheKey(a workflow.Actor) string {
	return "queue:counts:" + a.Role + ":" + a.ID
}

func (s *Service) QueueCounts(ctx context.Context, req QueueCountsRequest) (QueueCounts, error) {
	actor := req.Actor
	if actor.ID == "" || !rbac.IsKnownRole(actor.Role) {
		return QueueCounts{}, ErrInvalidRequest
	}
	if s.cases == nil {
		return QueueCounts{}, errors.New("reporting: case store not configured")
	}

	key := cacheKey(actor)
	if s.cache != nil {
		raw, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			logger.From(ctx).Warn("queue count cache read failed", "key", key, "err", err)
		} else if ok {
			var out QueueCounts
			if err := json.Unmarshal(raw, &out); err == nil {
				out.Cached = true
				return out, nil
			}
		}
	}

	out, err := s.compute(ctx, actor)
	if err != nil {
		return QueueCounts{}, err
	}

	if s.cache != nil {
		raw, err := json.Marshal(out)
		if err == nil {
			err = s.cache.Set(ctx, key, raw, s.ttl)
		}
		if err != nil {
			logger.From(ctx).Warn("queue count cache write failed", "key", key, "err", err)
		}
	}
	return out, nil
}

func (s *Service) compute(ctx context.Context, actor workflow.Actor) (QueueCounts, error) {
	open := openStatuses()
	out := QueueCounts{
		UserID:     actor.ID,
		Role:       actor.Role,
		ByStatus:   map[workflow.Status]int{},
		ComputedAt: s.clock().UTC(),
	}

	mine, err := s.cases.List(ctx, cases.Filter{Statuses: open, AssignedTo: actor.ID})
	if err != nil {
		return QueueCounts{}, err
	}
	for _, c := range mine {
		out.AssignedToMe++
		out.ByStatus[c.Status]++
	}

	free, err := s.cases.List(ctx, cases.Filter{Statuses: open, Unassigned: true})
	if err != nil {
		return QueueCounts{}, err
	}
	for _, c := range free {
		if len(s.machine.Available(c.Snapshot(), actor)) == 0 {
			continue
		}
		out.Actionable++
		out.ByStatus[c.Status]++
	}
	return out, nil
}

// Invalidate drops the cached counts of actor.
func (s *Service) Invalidate(ctx context.Context, actor workflow.Actor) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, cacheKey(actor))
}
