package metrics

import "time"

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations MUST NOT block or propagate errors.
// If the metrics backend is unavailable, implementations log warnings and continue.
type Sink interface {
	// Orchestrator metrics
	JobStarted(job string)
	JobCompleted(job, outcome string, duration time.Duration, records int)

	// Recovery sweep metrics
	SweepCompleted(duration time.Duration, dispatched int, err error)
	OverdueJobsUpdate(count int)

	// Event bus metrics
	RunEventDropped()

	// Notification metrics
	MailOutcome(outcome string)

	// Leader election metrics
	LeaderStatusChanged(isLeader bool)
	LeaderAcquired()
	LeaderLost(reason string)
}

// Outcome label values for JobCompleted and MailOutcome.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"

	MailOutcomeSent     = "sent"
	MailOutcomeFailed   = "failed"
	MailOutcomeRejected = "rejected"
)
