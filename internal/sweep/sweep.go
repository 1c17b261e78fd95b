// Package sweep recovers jobs whose scheduled run never succeeded.
//
// A job is overdue when it is enabled and its next scheduled run is in
// the past with no success recorded for that slot, whatever the cause:
// the process was down, the job failed, or it was disabled at the time.
//
// The sweep runs once at startup and then on a fixed interval. It only
// reads and dispatches; all state transitions stay with the
// orchestrator, so a sweep racing a scheduled trigger is resolved by
// the orchestrator's single-flight guard.
package sweep

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/officina-hr/jobengine/internal/domain"
)

// Store fetches overdue trackers.
type Store interface {
	FindOverdue(ctx context.Context, now time.Time) ([]domain.JobTracker, error)
}

// Runner recovers one overdue job.
type Runner interface {
	Recover(ctx context.Context, tracker domain.JobTracker) domain.Result
}

// MetricsSink is the subset of metrics the sweep reports.
type MetricsSink interface {
	SweepCompleted(duration time.Duration, dispatched int, err error)
	OverdueJobsUpdate(count int)
}

type noopMetrics struct{}

func (noopMetrics) SweepCompleted(time.Duration, int, error) {}
func (noopMetrics) OverdueJobsUpdate(int)                    {}

// Sweep periodically dispatches overdue jobs for recovery.
type Sweep struct {
	store   Store
	runner  Runner
	metrics MetricsSink
	logger  *zap.Logger

	interval time.Duration
	clock    func() time.Time
}

type Option func(*Sweep)

// WithMetrics attaches a metrics sink.
func WithMetrics(m MetricsSink) Option {
	return func(s *Sweep) { s.metrics = m }
}

// WithClock overrides the time source. Used by tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Sweep) { s.clock = clock }
}

func New(store Store, runner Runner, interval time.Duration, logger *zap.Logger, opts ...Option) *Sweep {
	s := &Sweep{
		store:    store,
		runner:   runner,
		metrics:  noopMetrics{},
		logger:   logger,
		interval: interval,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run starts the sweep loop. The first cycle runs immediately so a
// restart recovers missed work without waiting an interval. Blocks
// until ctx is cancelled.
func (s *Sweep) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("recovery sweep started", zap.Duration("interval", s.interval))

	s.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("recovery sweep stopped")
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// runCycle executes one sweep: read overdue trackers, then dispatch
// each one in turn.
func (s *Sweep) runCycle(ctx context.Context) {
	started := s.clock()
	now := started.UTC()

	overdue, err := s.store.FindOverdue(ctx, now)
	if err != nil {
		// DB error: abort the cycle, the next interval retries.
		s.logger.Error("failed to query overdue jobs", zap.Error(err))
		s.metrics.SweepCompleted(s.clock().Sub(started), 0, err)
		return
	}

	s.metrics.OverdueJobsUpdate(len(overdue))

	if len(overdue) == 0 {
		s.logger.Debug("no overdue jobs")
		s.metrics.SweepCompleted(s.clock().Sub(started), 0, nil)
		return
	}

	s.logger.Warn("overdue jobs need recovery", zap.Int("count", len(overdue)))

	dispatched := 0
	for _, tracker := range overdue {
		if ctx.Err() != nil {
			s.logger.Info("sweep interrupted",
				zap.Int("dispatched", dispatched),
				zap.Int("total", len(overdue)))
			return
		}

		s.logger.Info("recovering overdue job",
			zap.String("job", tracker.JobName),
			zap.Timep("last_run", tracker.LastSuccessfulRun),
			zap.Time("next_scheduled", tracker.NextScheduledRun))

		result := s.runner.Recover(ctx, tracker)
		dispatched++

		if result.Outcome == domain.RunOutcomeFailure {
			// The tracker did not advance; the next cycle retries.
			s.logger.Error("recovery attempt failed",
				zap.String("job", tracker.JobName),
				zap.String("error", result.Err))
		}
	}

	s.metrics.SweepCompleted(s.clock().Sub(started), dispatched, nil)
}
