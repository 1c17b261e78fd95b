// Package scheduler fires the three engine jobs at their fixed
// business-local times. It is intentionally dumb: it only notices that
// a trigger time passed and dispatches; whether the job actually runs
// is the orchestrator's call.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/officina-hr/jobengine/internal/cron"
	"github.com/officina-hr/jobengine/internal/domain"
)

// Trigger pairs a job name with its cron expression in the business
// timezone.
type Trigger struct {
	JobName    string
	Expression string
}

// DefaultTriggers is the production schedule: shifts at 01:00 daily,
// deadline reminders at 09:00 daily, accrual at 01:00 on the first of
// the month.
func DefaultTriggers() []Trigger {
	return []Trigger{
		{JobName: domain.JobShiftGeneration, Expression: "0 1 * * *"},
		{JobName: domain.JobDeadlineNotification, Expression: "0 9 * * *"},
		{JobName: domain.JobMonthlyAccrual, Expression: "0 1 1 * *"},
	}
}

// Runner executes a job by name.
type Runner interface {
	Run(ctx context.Context, jobName string) domain.Result
}

type trigger struct {
	jobName  string
	schedule cron.Schedule
}

// Scheduler polls for trigger times that passed since the previous tick
// and dispatches each one exactly once. A missed fire is not replayed
// per occurrence; one dispatch covers the whole gap because every job
// re-derives its own backlog.
type Scheduler struct {
	triggers []trigger
	runner   Runner
	logger   *zap.Logger

	tickInterval time.Duration
	clock        func() time.Time
	lastTick     time.Time
}

type Option func(*Scheduler)

// WithClock overrides the time source. Used by tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) { s.clock = clock }
}

func New(triggers []Trigger, parser *cron.Parser, runner Runner, tickInterval time.Duration, logger *zap.Logger, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		runner:       runner,
		logger:       logger,
		tickInterval: tickInterval,
		clock:        time.Now,
	}

	for _, t := range triggers {
		schedule, err := parser.Parse(t.Expression)
		if err != nil {
			return nil, fmt.Errorf("parse trigger for %s: %w", t.JobName, err)
		}
		s.triggers = append(s.triggers, trigger{jobName: t.JobName, schedule: schedule})
	}

	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run starts the tick loop. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	s.logger.Info("scheduler started",
		zap.Duration("tick", s.tickInterval),
		zap.Int("triggers", len(s.triggers)))
	s.lastTick = s.clock().UTC()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.processTick(ctx)
		}
	}
}

// processTick dispatches every trigger whose fire time falls inside
// (lastTick, now].
func (s *Scheduler) processTick(ctx context.Context) {
	now := s.clock().UTC()

	for _, t := range s.triggers {
		if due := t.schedule.Next(s.lastTick); !due.After(now) {
			s.logger.Info("trigger fired",
				zap.String("job", t.jobName),
				zap.Time("due", due))

			result := s.runner.Run(ctx, t.jobName)
			if result.Outcome == domain.RunOutcomeFailure {
				s.logger.Error("triggered job failed",
					zap.String("job", t.jobName),
					zap.String("error", result.Err))
			}
		}
	}

	s.lastTick = now
}
