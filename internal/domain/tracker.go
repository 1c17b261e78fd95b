package domain

import "time"

type JobType string

const (
	JobTypeDaily    JobType = "DAILY"
	JobTypeMonthly  JobType = "MONTHLY"
	JobTypeOnDemand JobType = "ON_DEMAND"
)

// Known job names. One tracker row is seeded per name before first use;
// rows are never deleted by the engine.
const (
	JobMonthlyAccrual       = "monthly_accrual"
	JobShiftGeneration      = "shift_generation"
	JobDeadlineNotification = "deadline_notification"
)

// JobTracker is the persisted schedule state of one named job.
// All fields except Enabled are owned exclusively by the orchestrator.
type JobTracker struct {
	ID      int64
	JobName string
	JobType JobType

	// LastSuccessfulRun is nil until the job completes successfully once.
	LastSuccessfulRun *time.Time
	NextScheduledRun  time.Time

	Enabled bool
}

// Overdue reports whether the job should have run by now but has no
// recorded success for its slot. Disabled jobs are never overdue.
func (t JobTracker) Overdue(now time.Time) bool {
	return t.Enabled && t.NextScheduledRun.Before(now)
}
