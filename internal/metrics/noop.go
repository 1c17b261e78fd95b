package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) JobStarted(job string)                                            {}
func (n *NoopSink) JobCompleted(job, outcome string, d time.Duration, records int)   {}
func (n *NoopSink) SweepCompleted(duration time.Duration, dispatched int, err error) {}
func (n *NoopSink) OverdueJobsUpdate(count int)                                      {}
func (n *NoopSink) RunEventDropped()                                                 {}
func (n *NoopSink) MailOutcome(outcome string)                                       {}
func (n *NoopSink) LeaderStatusChanged(isLeader bool)                                {}
func (n *NoopSink) LeaderAcquired()                                                  {}
func (n *NoopSink) LeaderLost(reason string)                                         {}

var _ Sink = (*NoopSink)(nil)
