package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"inspection-platform/pkg/logger"

	"github.com/cenkalti/backoff/v4"
)

// Service delivers billing records at least once: a direct publish with
// bounded exponential backoff, then the outbox for the scheduler to re-drive.
type Service struct {
	pub    Publisher
	outbox OutboxRepository
	clock  func() time.Time

	// MaxElapsed bounds the inline retry window of Submit.
	MaxElapsed time.Duration
	// RedriveDelay is the wait before an outbox entry is retried again.
	RedriveDelay time.Duration
	// BatchSize caps entries processed per Redrive call.
	BatchSize int
}

func NewService(pub Publisher, outbox OutboxRepository) *Service {
	return &Service{
		pub:          pub,
		outbox:       outbox,
		clock:        time.Now,
		MaxElapsed:   10 * time.Second,
		RedriveDelay: time.Minute,
		BatchSize:    100,
	}
}

func (s *Service) newBackoff() backoff.BackOff {
	// BackOff implementations are stateful; always return a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = s.MaxElapsed
	return bo
}

// Submit publishes r, falling back to the outbox when the broker stays
// unavailable. It only fails when neither path accepted the record.
func (s *Service) Submit(ctx context.Context, r Record) error {
	if err := validate(r); err != nil {
		return err
	}
	log := logger.From(ctx).With("case_id", r.CaseID, "billing_id", r.ID)

	err := s.publish(ctx, r)
	if err == nil {
		log.Info("billing record published", "amount_minor", r.AmountMinor, "currency", r.Currency)
		return nil
	}
	if s.outbox == nil {
		return fmt.Errorf("billing: publish failed and no outbox configured: %w", err)
	}
	log.Warn("billing publish failed, queued to outbox", "err", err)
	if oerr := s.outbox.Enqueue(ctx, r, err.Error(), s.clock().Add(s.RedriveDelay)); oerr != nil {
		return errors.Join(err, fmt.Errorf("billing: outbox enqueue: %w", oerr))
	}
	return nil
}

func (s *Service) publish(ctx context.Context, r Record) error {
	if s.pub == nil {
		return errors.New("billing: publisher not configured")
	}
	return backoff.Retry(func() error {
		err := s.pub.Publish(ctx, r)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(s.newBackoff(), ctx))
}

// RedriveResult summarizes one outbox pass.
type RedriveResult struct {
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// Redrive retries due outbox entries once each.
func (s *Service) Redrive(ctx context.Context) (RedriveResult, error) {
	var res RedriveResult
	if s.outbox == nil {
		return res, nil
	}
	now := s.clock()
	due, err := s.outbox.Due(ctx, now, s.BatchSize)
	if err != nil {
		return res, err
	}
	log := logger.From(ctx)
	for _, e := range due {
		if s.pub == nil {
			break
		}
		if err := s.pub.Publish(ctx, e.Record); err != nil {
			res.Failed++
			next := now.Add(s.RedriveDelay * time.Duration(min(e.Attempts+1, 10)))
			if merr := s.outbox.MarkFailed(ctx, e.Record.ID, err.Error(), next); merr != nil {
				return res, merr
			}
			log.Warn("billing redrive failed", "billing_id", e.Record.ID, "attempts", e.Attempts+1, "err", err)
			continue
		}
		if err := s.outbox.MarkDelivered(ctx, e.Record.ID, s.clock()); err != nil {
			return res, err
		}
		res.Delivered++
	}
	if len(due) > 0 {
		log.Info("billing redrive pass", "delivered", res.Delivered, "failed", res.Failed)
	}
	return res, nil
}
