package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bchapman/wednesday/internal/config"
	"github.com/bchapman/wednesday/internal/models"
	"github.com/bchapman/wednesday/internal/pulllist"
)

type runner interface {
	Run(ctx context.Context, trigger string) (*pulllist.RunResult, error)
}

// Scheduler fires the weekly pull list generation at the configured local
// time. A run already in progress is skipped, not queued.
type Scheduler struct {
	runner  runner
	cron    *cron.Cron
	spec    string
	entryID cron.EntryID
	enabled bool
	logger  *slog.Logger
	stopCh  chan struct{}
}

func New(runner runner, cfg config.ScheduleConfig, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	spec := fmt.Sprintf("%d %d * * %s", cfg.Minute, cfg.Hour, cfg.DayOfWeek)
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	s := &Scheduler{
		runner:  runner,
		cron:    cron.New(cron.WithLocation(cfg.Location())),
		spec:    spec,
		enabled: cfg.Enabled,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
	return s, nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	if !s.enabled {
		s.logger.Info("scheduler disabled")
		return nil
	}

	entryID, err := s.cron.AddFunc(s.spec, func() {
		s.fire(ctx)
	})
	if err != nil {
		return fmt.Errorf("register schedule: %w", err)
	}
	s.entryID = entryID

	s.cron.Start()
	s.logger.Info("scheduler started", "spec", s.spec, "nextRun", s.NextRun().Format(time.RFC3339))

	go func() {
		<-ctx.Done()
		stopCtx := s.cron.Stop()
		<-stopCtx.Done()
		s.logger.Info("scheduler stopped")
		close(s.stopCh)
	}()

	return nil
}

// StopWait blocks until the scheduler has drained or the timeout passes.
func (s *Scheduler) StopWait(timeout time.Duration) {
	if s == nil || !s.enabled {
		return
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	select {
	case <-s.stopCh:
	case <-time.After(timeout):
	}
}

// NextRun returns the next scheduled fire time, or the zero time when the
// scheduler is nil, disabled or not started.
func (s *Scheduler) NextRun() time.Time {
	if s == nil || !s.enabled {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// Enabled is safe on a nil receiver so callers can hand the scheduler
// around without caring whether one was built.
func (s *Scheduler) Enabled() bool {
	return s != nil && s.enabled
}

func (s *Scheduler) fire(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled run panicked", "panic", r)
		}
	}()

	result, err := s.runner.Run(ctx, models.TriggerScheduled)
	if err != nil {
		if errors.Is(err, pulllist.ErrRunInProgress) {
			s.logger.Warn("scheduled run skipped, another run in progress")
			return
		}
		s.logger.Error("scheduled run failed", "error", err)
		return
	}

	s.logger.Info("scheduled run finished",
		"runId", result.RunID, "status", result.Status, "booksFound", result.BooksFound)
}
