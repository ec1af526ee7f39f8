package cases

import (
	"context"
	"encoding/json"
	"errors"
	"net/mail"
	"strings"
	"time"

	"inspection-platform/internal/billing"
	"inspection-platform/internal/notify"
	"inspection-platform/internal/workflow"
	"inspection-platform/pkg/logger"
)

// NoticeRequest is the payload of a NOV or NOO. For a NOO, empty recipient
// and violation fields default to those of the NOV already issued.
type NoticeRequest struct {
	RecipientName  string          `json:"recipient_name"`
	RecipientEmail string          `json:"recipient_email"`
	Violations     json.RawMessage `json:"violations,omitempty"`
	PenaltyMinor   int64           `json:"penalty_minor"`
	Currency       string          `json:"currency,omitempty"`
	Deadline       *time.Time      `json:"deadline,omitempty"`
	Remarks        string          `json:"remarks,omitempty"`
}

// SendNOV issues the Notice of Violation and moves LEGAL_REVIEW -> NOV_SENT.
func (s *Service) SendNOV(ctx context.Context, id string, actor workflow.Actor, req NoticeRequest) (Case, error) {
	return s.sendNotice(ctx, id, actor, workflow.ActionSendNOV, req)
}

// SendNOO issues the Notice of Order and moves NOV_SENT -> NOO_SENT.
func (s *Service) SendNOO(ctx context.Context, id string, actor workflow.Actor, req NoticeRequest) (Case, error) {
	return s.sendNotice(ctx, id, actor, workflow.ActionSendNOO, req)
}

// sendNotice dispatches the email before committing. The email goes out at
// most once per call; a dispatch failure commits nothing. A per-case, per-kind
// lease keeps two concurrent calls from both dispatching.
func (s *Service) sendNotice(ctx context.Context, id string, actor workflow.Actor, action workflow.Action, req NoticeRequest) (Case, error) {
	kind, _ := workflow.NoticeKindFor(action)
	wreq := workflow.Request{Action: action, Actor: actor, Remarks: req.Remarks}

	cur, err := s.Get(ctx, id)
	if err != nil {
		return Case{}, err
	}
	if _, err := s.machine.Evaluate(cur.Snapshot(), wreq); err != nil {
		return Case{}, err
	}
	req = withNOVDefaults(cur, kind, req)
	if err := s.validateNotice(action, req); err != nil {
		return Case{}, err
	}

	key := "case:" + id + ":" + string(kind)
	token, ok, err := s.locker.TryAcquire(ctx, key, s.lockTTL)
	if err != nil {
		return Case{}, workflow.Wrap(workflow.KindDependencyUnavailable, action, err)
	}
	if !ok {
		return Case{}, &workflow.Error{Kind: workflow.KindDependencyUnavailable, Action: action, Msg: string(kind) + " for this case is already being issued"}
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			logger.From(ctx).Warn("failed to release notice lock", "case_id", id, "kind", string(kind), "err", err)
		}
	}()

	var sent *Notice
	committed, err := s.transition(ctx, id, wreq, nil, func(ctx context.Context, cur Case, next *Case) error {
		if sent == nil {
			n, err := s.dispatch(ctx, cur, actor, kind, req)
			if err != nil {
				return err
			}
			sent = n
		}
		n := *sent
		next.Legal.set(&n)
		return nil
	})
	if err != nil {
		if sent != nil {
			// The provider accepted the email but the case did not move.
			logger.From(ctx).Error("notice dispatched but not committed",
				"case_id", id,
				"kind", string(kind),
				"dispatch_id", sent.DispatchID,
				"err", err,
			)
		}
		return Case{}, err
	}

	s.submitBilling(ctx, committed, sent)
	return committed, nil
}

func withNOVDefaults(c Case, kind workflow.NoticeKind, req NoticeRequest) NoticeRequest {
	nov := c.Legal.NOV
	if kind != workflow.NoticeNOO || nov == nil {
		return req
	}
	if strings.TrimSpace(req.RecipientName) == "" {
		req.RecipientName = nov.RecipientName
	}
	if strings.TrimSpace(req.RecipientEmail) == "" {
		req.RecipientEmail = nov.RecipientEmail
	}
	if len(req.Violations) == 0 {
		req.Violations = append(json.RawMessage(nil), nov.Violations...)
	}
	if req.Currency == "" {
		req.Currency = nov.Currency
	}
	return req
}

func (s *Service) validateNotice(action workflow.Action, req NoticeRequest) error {
	if strings.TrimSpace(req.RecipientName) == "" {
		return invalidArg(action, "recipient name is required")
	}
	if _, err := mail.ParseAddress(req.RecipientEmail); err != nil {
		return invalidArg(action, "recipient email is invalid")
	}
	if len(req.Violations) > 0 && !json.Valid(req.Violations) {
		return invalidArg(action, "violations must be valid JSON")
	}
	if req.PenaltyMinor < 0 {
		return invalidArg(action, "penalty must not be negative")
	}
	return nil
}

func (s *Service) dispatch(ctx context.Context, c Case, actor workflow.Actor, kind workflow.NoticeKind, req NoticeRequest) (*Notice, error) {
	issued := s.clock().UTC()
	var override time.Time
	if req.Deadline != nil {
		override = *req.Deadline
	}
	deadline, err := s.deadlines.Deadline(kind, issued, override)
	if err != nil {
		return nil, err
	}
	currency := req.Currency
	if currency == "" {
		currency = s.currency
	}

	msg, err := notify.RenderNotice(notify.NoticeData{
		Kind:          string(kind),
		CaseCode:      c.Code,
		Law:           string(c.Law),
		Recipient:     notify.Recipient{Name: req.RecipientName, Email: req.RecipientEmail},
		Violations:    notify.ViolationLines(req.Violations),
		PenaltyMinor:  req.PenaltyMinor,
		Currency:      currency,
		IssuedAt:      issued,
		Deadline:      deadline,
		Establishment: strings.Join(c.Establishments, ", "),
	}, c.ID)
	if err != nil {
		return nil, workflow.Wrap(workflow.KindConfiguration, "", err)
	}

	receipt, err := s.notifier.Send(ctx, msg)
	if err != nil {
		if errors.Is(err, notify.ErrInvalidMessage) {
			return nil, invalidArg("", "notice email is incomplete")
		}
		return nil, workflow.Wrap(workflow.KindDependencyUnavailable, "", err)
	}
	sentAt := receipt.SentAt
	if sentAt.IsZero() {
		sentAt = issued
	}
	return &Notice{
		Kind:           kind,
		RecipientName:  req.RecipientName,
		RecipientEmail: req.RecipientEmail,
		Violations:     append(json.RawMessage(nil), req.Violations...),
		PenaltyMinor:   req.PenaltyMinor,
		Currency:       currency,
		Deadline:       deadline,
		SentAt:         sentAt,
		SentBy:         actor.ID,
		EmailSubject:   msg.Subject,
		EmailBody:      msg.Text,
		DispatchID:     receipt.DispatchID,
	}, nil
}

// submitBilling hands the penalty to billing after commit. The notice is
// already recorded, so a failure here is logged and left to the outbox.
func (s *Service) submitBilling(ctx context.Context, c Case, n *Notice) {
	if s.billing == nil || n == nil || n.PenaltyMinor <= 0 {
		return
	}
	rec := billing.Record{
		ID:             billing.RecordID(c.ID, string(n.Kind)),
		CaseID:         c.ID,
		CaseCode:       c.Code,
		Law:            string(c.Law),
		NoticeKind:     string(n.Kind),
		AmountMinor:    n.PenaltyMinor,
		Currency:       n.Currency,
		RecipientName:  n.RecipientName,
		RecipientEmail: n.RecipientEmail,
		IssuedAt:       n.SentAt,
		Deadline:       n.Deadline,
	}
	if err := s.billing.Submit(ctx, rec); err != nil {
		logger.From(ctx).Error("billing hand-off failed", "case_id", c.ID, "kind", string(n.Kind), "err", err)
	}
}
