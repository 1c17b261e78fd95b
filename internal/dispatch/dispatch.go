// Package dispatch binds job names to their business logic and hands
// the work to the orchestrator. It is the only place that knows what
// "monthly_accrual" actually does.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/officina-hr/jobengine/internal/domain"
	"github.com/officina-hr/jobengine/internal/mail"
	"github.com/officina-hr/jobengine/internal/metrics"
	"github.com/officina-hr/jobengine/internal/orchestrator"
	"github.com/officina-hr/jobengine/internal/timeutil"
)

// shiftWindowDays is how far ahead of tomorrow shift generation plans.
const shiftWindowDays = 14

// Executor runs a unit of work under the orchestrator envelope.
type Executor interface {
	Execute(ctx context.Context, jobName string, work orchestrator.UnitOfWork) domain.Result
}

// AccrualStore credits monthly leave quotas.
type AccrualStore interface {
	RunMonthlyAccrual(ctx context.Context) (int, error)
}

// TenantStore lists the companies shift generation iterates over.
type TenantStore interface {
	ListTenants(ctx context.Context) ([]domain.Tenant, error)
}

// ShiftStore generates shift assignments for one tenant.
type ShiftStore interface {
	GenerateForDateRange(ctx context.Context, tenantID int64, start, end time.Time) (int, error)
}

// DeadlineStore reads and flags deadlines needing a reminder.
type DeadlineStore interface {
	FindNeedingNotification(ctx context.Context) ([]domain.Deadline, error)
	MarkNotified(ctx context.Context, id int64) (bool, error)
}

// Breaker guards outbound mail per recipient domain.
type Breaker interface {
	Allow(key string) error
	RecordSuccess(key string)
	RecordFailure(key string)
}

// MetricsSink is the subset of metrics the dispatcher reports.
type MetricsSink interface {
	MailOutcome(outcome string)
}

type noopBreaker struct{}

func (noopBreaker) Allow(string) error   { return nil }
func (noopBreaker) RecordSuccess(string) {}
func (noopBreaker) RecordFailure(string) {}

type noopMetrics struct{}

func (noopMetrics) MailOutcome(string) {}

// Dispatcher routes job names to their implementations.
type Dispatcher struct {
	exec      Executor
	accruals  AccrualStore
	tenants   TenantStore
	shifts    ShiftStore
	deadlines DeadlineStore
	sender    mail.Sender
	breaker   Breaker
	metrics   MetricsSink

	cal    *timeutil.Calendar
	logger *zap.Logger
	now    func() time.Time

	notificationHour int
}

type Option func(*Dispatcher)

// WithBreaker guards notification mail with a circuit breaker.
func WithBreaker(b Breaker) Option {
	return func(d *Dispatcher) { d.breaker = b }
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m MetricsSink) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func New(
	exec Executor,
	accruals AccrualStore,
	tenants TenantStore,
	shifts ShiftStore,
	deadlines DeadlineStore,
	sender mail.Sender,
	cal *timeutil.Calendar,
	notificationHour int,
	logger *zap.Logger,
	opts ...Option,
) *Dispatcher {
	d := &Dispatcher{
		exec:             exec,
		accruals:         accruals,
		tenants:          tenants,
		shifts:           shifts,
		deadlines:        deadlines,
		sender:           sender,
		breaker:          noopBreaker{},
		metrics:          noopMetrics{},
		cal:              cal,
		logger:           logger,
		now:              time.Now,
		notificationHour: notificationHour,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executes a job by name for a scheduled or manual trigger.
func (d *Dispatcher) Run(ctx context.Context, jobName string) domain.Result {
	switch jobName {
	case domain.JobMonthlyAccrual:
		return d.exec.Execute(ctx, jobName, d.accrualWork())
	case domain.JobShiftGeneration:
		return d.exec.Execute(ctx, jobName, d.shiftWork())
	case domain.JobDeadlineNotification:
		return d.exec.Execute(ctx, jobName, d.deadlineWork())
	default:
		d.logger.Error("unknown job name", zap.String("job", jobName))
		return domain.Failed(fmt.Sprintf("unknown job: %s", jobName))
	}
}

// Recover executes an overdue job found by the sweep. Monthly accrual
// recovers through catch-up so every missed month is credited exactly
// once; the daily jobs cover their whole backlog in a single run.
func (d *Dispatcher) Recover(ctx context.Context, tracker domain.JobTracker) domain.Result {
	if tracker.JobName == domain.JobMonthlyAccrual {
		return d.exec.Execute(ctx, tracker.JobName, d.accrualCatchupWork(tracker.LastSuccessfulRun))
	}
	return d.Run(ctx, tracker.JobName)
}

// accrualWork credits one month of leave for every eligible employee.
func (d *Dispatcher) accrualWork() orchestrator.UnitOfWork {
	return func(ctx context.Context) domain.Result {
		credited, err := d.accruals.RunMonthlyAccrual(ctx)
		if err != nil {
			return domain.Failed(err.Error())
		}
		nextRun := d.cal.NextMonthlyRun(d.now())
		return domain.Success("monthly accrual completed", credited, nextRun)
	}
}

// accrualCatchupWork credits every calendar month missed since the last
// successful run, one crediting pass per month. Catch-up applies the
// rates configured now, not the rates of the missed months.
func (d *Dispatcher) accrualCatchupWork(lastRun *time.Time) orchestrator.UnitOfWork {
	return func(ctx context.Context) domain.Result {
		now := d.now()

		if lastRun == nil {
			d.logger.Info("first monthly accrual run, executing once")
			credited, err := d.accruals.RunMonthlyAccrual(ctx)
			if err != nil {
				return domain.Failed(err.Error())
			}
			return domain.Success("first monthly accrual completed", credited, d.cal.NextMonthlyRun(now))
		}

		missed := d.cal.MissedMonths(*lastRun, now)
		d.logger.Info("running accrual catch-up",
			zap.Int("missed_months", missed),
			zap.Time("last_run", *lastRun))
		if missed > 0 {
			d.logger.Warn("catch-up credits missed months at current rates")
		}

		total := 0
		for i := 0; i < missed; i++ {
			d.logger.Info("running accrual pass",
				zap.Int("pass", i+1),
				zap.Int("of", missed))
			credited, err := d.accruals.RunMonthlyAccrual(ctx)
			if err != nil {
				// Completed passes are already committed; the tracker stays
				// behind so the next sweep resumes from here.
				return domain.Failed(fmt.Sprintf("catch-up pass %d/%d: %v", i+1, missed, err))
			}
			total += credited
		}

		detail := fmt.Sprintf("catch-up completed: %d month(s) processed", missed)
		return domain.Success(detail, total, d.cal.NextMonthlyRun(now))
	}
}

// shiftWork generates assignments for the two weeks after tomorrow,
// tenant by tenant. One broken tenant never blocks the others; the run
// fails only when every tenant fails.
func (d *Dispatcher) shiftWork() orchestrator.UnitOfWork {
	return func(ctx context.Context) domain.Result {
		today := d.now().In(d.cal.Location())
		start := time.Date(today.Year(), today.Month(), today.Day()+1, 0, 0, 0, 0, d.cal.Location())
		end := start.AddDate(0, 0, shiftWindowDays)

		tenants, err := d.tenants.ListTenants(ctx)
		if err != nil {
			return domain.Failed(fmt.Sprintf("list tenants: %v", err))
		}

		totalGenerated := 0
		succeeded := 0
		failed := 0

		for _, tenant := range tenants {
			generated, err := d.shifts.GenerateForDateRange(ctx, tenant.ID, start, end)
			if err != nil {
				failed++
				d.logger.Error("shift generation failed for tenant",
					zap.String("tenant", tenant.Name),
					zap.Int64("tenant_id", tenant.ID),
					zap.Error(err))
				continue
			}
			succeeded++
			totalGenerated += generated
			d.logger.Info("generated shifts for tenant",
				zap.String("tenant", tenant.Name),
				zap.Int("generated", generated))
		}

		detail := fmt.Sprintf(
			"generated %d shifts for %s to %s, tenants: %d succeeded, %d failed of %d",
			totalGenerated, start.Format("2006-01-02"), end.Format("2006-01-02"),
			succeeded, failed, len(tenants))

		if failed > 0 && succeeded == 0 {
			return domain.Failed(detail)
		}
		return domain.Success(detail, totalGenerated, d.cal.NextDailyRun(d.now()))
	}
}

// deadlineWork sends reminder mail for deadlines inside their reminder
// window and flags each one only after its mail went out. Failed items
// stay unflagged and are retried on the next run.
func (d *Dispatcher) deadlineWork() orchestrator.UnitOfWork {
	return func(ctx context.Context) domain.Result {
		deadlines, err := d.deadlines.FindNeedingNotification(ctx)
		if err != nil {
			return domain.Failed(fmt.Sprintf("find deadlines: %v", err))
		}

		d.logger.Info("deadlines requiring notification", zap.Int("count", len(deadlines)))

		sent := 0
		failed := 0

		for _, deadline := range deadlines {
			if err := d.notifyDeadline(ctx, deadline); err != nil {
				failed++
				d.logger.Error("failed to notify deadline",
					zap.Int64("deadline_id", deadline.ID),
					zap.Error(err))
				continue
			}
			sent++
		}

		if failed > 0 {
			d.logger.Warn("some deadline notifications failed",
				zap.Int("failed", failed),
				zap.Int("total", len(deadlines)))
		}

		detail := fmt.Sprintf("processed %d deadline(s): %d successful, %d failed",
			len(deadlines), sent, failed)
		nextRun := d.cal.TomorrowAt(d.now(), d.notificationHour)
		return domain.Success(detail, sent, nextRun)
	}
}

func (d *Dispatcher) notifyDeadline(ctx context.Context, deadline domain.Deadline) error {
	// A deadline without a recipient can never be delivered. It is
	// flagged anyway so it stops reappearing every day.
	if deadline.RecipientEmail == "" {
		d.logger.Warn("deadline has no recipient email", zap.Int64("deadline_id", deadline.ID))
		d.metrics.MailOutcome(metrics.MailOutcomeRejected)
		return d.markNotified(ctx, deadline.ID)
	}

	key := mail.RecipientDomain(deadline.RecipientEmail)
	if key != "" {
		if err := d.breaker.Allow(key); err != nil {
			d.metrics.MailOutcome(metrics.MailOutcomeFailed)
			return fmt.Errorf("mail domain %s: %w", key, err)
		}
	}

	msg := buildReminder(deadline, d.now().In(d.cal.Location()))
	if err := d.sender.Send(ctx, msg); err != nil {
		if key != "" {
			d.breaker.RecordFailure(key)
		}
		d.metrics.MailOutcome(metrics.MailOutcomeFailed)
		return fmt.Errorf("send reminder: %w", err)
	}
	if key != "" {
		d.breaker.RecordSuccess(key)
	}
	d.metrics.MailOutcome(metrics.MailOutcomeSent)

	return d.markNotified(ctx, deadline.ID)
}

func (d *Dispatcher) markNotified(ctx context.Context, id int64) error {
	marked, err := d.deadlines.MarkNotified(ctx, id)
	if err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	if !marked {
		d.logger.Warn("deadline vanished before it could be flagged", zap.Int64("deadline_id", id))
	}
	return nil
}

func buildReminder(deadline domain.Deadline, today time.Time) mail.Message {
	days := int(deadline.ExpirationDate.Sub(today).Hours() / 24)
	if days < 0 {
		days = 0
	}

	body := fmt.Sprintf(
		"Deadline %s for employee %d expires on %s (%d day(s) remaining).",
		deadline.Type, deadline.EmployeeID,
		deadline.ExpirationDate.Format("2006-01-02"), days)
	if deadline.Note != "" {
		body += "\n\nNote: " + deadline.Note
	}

	return mail.Message{
		To:      deadline.RecipientEmail,
		Subject: fmt.Sprintf("Reminder: %s expires in %d day(s)", deadline.Type, days),
		Body:    body,
	}
}
