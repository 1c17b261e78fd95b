package metrics

import (
	"errors"
	"testing"
	"time"
)

func TestNoopSink_AllMethods(t *testing.T) {
	// Verify that calling all methods on NoopSink does not panic.
	s := NewNoopSink()

	s.JobStarted("monthly_accrual")
	s.JobCompleted("monthly_accrual", OutcomeSuccess, time.Second, 5)
	s.JobCompleted("monthly_accrual", OutcomeFailure, time.Second, 0)
	s.JobCompleted("monthly_accrual", OutcomeSkipped, 0, 0)

	s.SweepCompleted(100*time.Millisecond, 2, nil)
	s.SweepCompleted(100*time.Millisecond, 0, errors.New("boom"))
	s.OverdueJobsUpdate(3)

	s.RunEventDropped()
	s.MailOutcome(MailOutcomeSent)
	s.MailOutcome(MailOutcomeRejected)

	s.LeaderStatusChanged(true)
	s.LeaderAcquired()
	s.LeaderStatusChanged(false)
	s.LeaderLost("context_cancelled")
}
