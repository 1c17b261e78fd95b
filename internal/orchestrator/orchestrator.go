// Package orchestrator owns the execution envelope around every job:
// tracker validation, single-flight guarding, timeouts, panic recovery,
// and the success-only tracker advance. Job logic itself is injected as
// a unit of work and never touches the tracker.
package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/officina-hr/jobengine/internal/domain"
)

// UnitOfWork is the business logic of one job. It must honour ctx
// cancellation and report everything through the returned Result.
type UnitOfWork func(ctx context.Context) domain.Result

// TrackerStore is the persisted tracker state the orchestrator reads
// and advances.
type TrackerStore interface {
	FindByName(ctx context.Context, jobName string) (domain.JobTracker, error)
	RecordSuccess(ctx context.Context, jobName string, executedAt, nextRun time.Time) (bool, error)
}

// RunStore persists per-attempt history.
type RunStore interface {
	InsertRun(ctx context.Context, run domain.RunRecord) error
}

// EventEmitter publishes completed-run events. Emit must not block.
type EventEmitter interface {
	Emit(event domain.RunEvent) bool
}

// MetricsSink is the subset of metrics the orchestrator reports.
type MetricsSink interface {
	JobStarted(job string)
	JobCompleted(job, outcome string, duration time.Duration, records int)
}

type noopEmitter struct{}

func (noopEmitter) Emit(domain.RunEvent) bool { return true }

type noopMetrics struct{}

func (noopMetrics) JobStarted(string)                               {}
func (noopMetrics) JobCompleted(string, string, time.Duration, int) {}

// Orchestrator serializes executions per job name and guarantees that
// only a successful run can move the schedule forward.
type Orchestrator struct {
	trackers TrackerStore
	runs     RunStore
	emitter  EventEmitter
	metrics  MetricsSink
	logger   *zap.Logger

	jobTimeout time.Duration
	now        func() time.Time

	mu    sync.Mutex
	flags map[string]*semaphore.Weighted
}

type Option func(*Orchestrator)

// WithRunStore enables per-attempt run history.
func WithRunStore(runs RunStore) Option {
	return func(o *Orchestrator) { o.runs = runs }
}

// WithEventEmitter publishes a RunEvent after every attempt.
func WithEventEmitter(emitter EventEmitter) Option {
	return func(o *Orchestrator) { o.emitter = emitter }
}

// WithMetrics attaches a metrics sink.
func WithMetrics(metrics MetricsSink) Option {
	return func(o *Orchestrator) { o.metrics = metrics }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func New(trackers TrackerStore, jobTimeout time.Duration, logger *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		trackers:   trackers,
		emitter:    noopEmitter{},
		metrics:    noopMetrics{},
		logger:     logger,
		jobTimeout: jobTimeout,
		now:        time.Now,
		flags:      make(map[string]*semaphore.Weighted),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Execute runs one job under the full envelope. Failures and skips
// leave the tracker untouched, so the job stays overdue and the next
// sweep retries it.
func (o *Orchestrator) Execute(ctx context.Context, jobName string, work UnitOfWork) domain.Result {
	start := o.now()
	log := o.logger.With(zap.String("job", jobName))

	tracker, err := o.trackers.FindByName(ctx, jobName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Error("job not found in tracker")
			return domain.Failed("job not found in tracker")
		}
		log.Error("failed to load job tracker", zap.Error(err))
		return domain.Failed(fmt.Sprintf("load tracker: %v", err))
	}

	if !tracker.Enabled {
		log.Warn("job is disabled, skipping")
		return domain.Skipped("job is disabled")
	}

	flight := o.flight(jobName)
	if !flight.TryAcquire(1) {
		log.Warn("job is already running, skipping")
		return domain.Skipped("job is already running")
	}
	defer flight.Release(1)

	log.Info("job starting")
	o.metrics.JobStarted(jobName)

	runCtx, cancel := context.WithTimeout(ctx, o.jobTimeout)
	result := o.runProtected(runCtx, log, work)
	cancel()

	finished := o.now()
	duration := finished.Sub(start)

	if result.IsSuccess() {
		updated, err := o.trackers.RecordSuccess(ctx, jobName, finished, result.NextRun)
		switch {
		case err != nil:
			// The work itself completed; a lost tracker advance means the
			// job re-runs on the next sweep, which every job tolerates.
			log.Error("failed to advance tracker after success", zap.Error(err))
		case !updated:
			log.Warn("tracker row vanished during execution")
		default:
			log.Info("job succeeded",
				zap.Duration("duration", duration),
				zap.Int("records", result.RecordsProcessed),
				zap.Time("next_run", result.NextRun))
		}
	} else if result.Outcome == domain.RunOutcomeFailure {
		log.Error("job failed",
			zap.Duration("duration", duration),
			zap.String("error", result.Err))
	}

	o.metrics.JobCompleted(jobName, string(result.Outcome), duration, result.RecordsProcessed)
	o.recordRun(jobName, start, finished, result)

	return result
}

// runProtected executes the unit of work, converting panics into
// failures so one broken job cannot take the engine down.
func (o *Orchestrator) runProtected(ctx context.Context, log *zap.Logger, work UnitOfWork) (result domain.Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", zap.Any("panic", r))
			result = domain.Failed(fmt.Sprintf("panic: %v", r))
		}
	}()
	return work(ctx)
}

// recordRun persists history and emits the run event. Both are
// advisory: errors are logged and never surfaced to the caller. The
// insert uses a background context so history survives caller
// cancellation.
func (o *Orchestrator) recordRun(jobName string, start, finished time.Time, result domain.Result) {
	detail := result.Detail
	if result.Outcome == domain.RunOutcomeFailure {
		detail = result.Err
	}

	run := domain.RunRecord{
		ID:               uuid.New(),
		JobName:          jobName,
		StartedAt:        start,
		FinishedAt:       finished,
		Outcome:          result.Outcome,
		Detail:           detail,
		RecordsProcessed: result.RecordsProcessed,
		CreatedAt:        finished,
	}

	if o.runs != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.runs.InsertRun(ctx, run); err != nil {
			o.logger.Warn("failed to persist run history",
				zap.String("job", jobName), zap.Error(err))
		}
	}

	o.emitter.Emit(domain.RunEvent{
		RunID:            run.ID,
		JobName:          jobName,
		Outcome:          result.Outcome,
		RecordsProcessed: result.RecordsProcessed,
		StartedAt:        start,
		FinishedAt:       finished,
	})
}

func (o *Orchestrator) flight(jobName string) *semaphore.Weighted {
	o.mu.Lock()
	defer o.mu.Unlock()

	sem, ok := o.flags[jobName]
	if !ok {
		sem = semaphore.NewWeighted(1)
		o.flags[jobName] = sem
	}
	return sem
}
