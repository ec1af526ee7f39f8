package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"inspection-platform/pkg/utils"

	"github.com/robfig/cron/v3"
)

const redriveLockKey = "billing:redrive"

// Scheduler runs Redrive on a cron spec. With a Locker configured only one
// instance runs each tick.
type Scheduler struct {
	cron    *cron.Cron
	svc     *Service
	locker  utils.Locker
	log     *slog.Logger
	timeout time.Duration
}

func NewScheduler(svc *Service, locker utils.Locker, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		svc:     svc,
		locker:  locker,
		log:     log,
		timeout: 2 * time.Minute,
	}
}

// Start registers the re-drive job on spec (standard 5-field cron) and starts
// the scheduler.
func (s *Scheduler) Start(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.runOnce); err != nil {
		return fmt.Errorf("register billing redrive job: %w", err)
	}
	s.cron.Start()
	s.log.Info("billing redrive scheduler started", "spec", spec)
	return nil
}

// Stop waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("billing redrive scheduler stopped")
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if s.locker != nil {
		token, ok, err := s.locker.TryAcquire(ctx, redriveLockKey, s.timeout)
		if err != nil {
			s.log.Error("failed to acquire billing redrive lock", "err", err)
			return
		}
		if !ok {
			s.log.Debug("billing redrive already running on another instance, skipping")
			return
		}
		defer func() { _ = s.locker.Release(context.Background(), redriveLockKey, token) }()
	}

	if _, err := s.svc.Redrive(ctx); err != nil {
		s.log.Error("billing redrive failed", "err", err)
	}
}
