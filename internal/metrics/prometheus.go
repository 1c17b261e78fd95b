package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// PrometheusSink implements Sink using the Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	logger *zap.Logger

	// Orchestrator metrics
	jobRunsTotal        *prometheus.CounterVec
	jobDuration         *prometheus.HistogramVec
	jobRecordsProcessed *prometheus.CounterVec
	jobsInFlight        prometheus.Gauge

	// Recovery sweep metrics
	sweepsTotal          prometheus.Counter
	sweepErrorsTotal     prometheus.Counter
	sweepDispatchedTotal prometheus.Counter
	sweepDuration        prometheus.Histogram
	overdueJobs          prometheus.Gauge

	// Event bus metrics
	runEventsDroppedTotal prometheus.Counter

	// Notification metrics
	mailOutcomesTotal *prometheus.CounterVec

	// Leader election metrics
	leaderStatus      prometheus.Gauge
	leaderAcquisition prometheus.Counter
	leaderLossTotal   *prometheus.CounterVec
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// If registration fails, it logs a warning and returns a functional sink.
func NewPrometheusSink(reg prometheus.Registerer, logger *zap.Logger) *PrometheusSink {
	s := &PrometheusSink{logger: logger}
	s.initJobMetrics(reg)
	s.initSweepMetrics(reg)
	s.initBusMetrics(reg)
	s.initLeaderMetrics(reg)
	return s
}

func (s *PrometheusSink) initJobMetrics(reg prometheus.Registerer) {
	s.jobRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jobengine_job_runs_total",
		Help: "Total number of job executions by job name and outcome.",
	}, []string{"job", "outcome"})

	s.jobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jobengine_job_duration_seconds",
		Help:    "Duration of each job execution in seconds.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"job"})

	s.jobRecordsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jobengine_job_records_processed_total",
		Help: "Total number of records processed by successful job runs.",
	}, []string{"job"})

	s.jobsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "jobengine_jobs_in_flight",
		Help: "Number of jobs currently executing.",
	})

	s.register(reg, s.jobRunsTotal, "jobengine_job_runs_total")
	s.register(reg, s.jobDuration, "jobengine_job_duration_seconds")
	s.register(reg, s.jobRecordsProcessed, "jobengine_job_records_processed_total")
	s.register(reg, s.jobsInFlight, "jobengine_jobs_in_flight")
}

func (s *PrometheusSink) initSweepMetrics(reg prometheus.Registerer) {
	s.sweepsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jobengine_sweeps_total",
		Help: "Total number of recovery sweep cycles.",
	})
	s.sweepErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jobengine_sweep_errors_total",
		Help: "Total number of recovery sweep cycles that failed to query overdue jobs.",
	})
	s.sweepDispatchedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jobengine_sweep_dispatched_total",
		Help: "Total number of overdue jobs dispatched by the recovery sweep.",
	})
	s.sweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "jobengine_sweep_duration_seconds",
		Help:    "Duration of each recovery sweep cycle in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 60},
	})
	s.overdueJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "jobengine_overdue_jobs",
		Help: "Number of enabled jobs past their scheduled run at the last sweep.",
	})

	s.register(reg, s.sweepsTotal, "jobengine_sweeps_total")
	s.register(reg, s.sweepErrorsTotal, "jobengine_sweep_errors_total")
	s.register(reg, s.sweepDispatchedTotal, "jobengine_sweep_dispatched_total")
	s.register(reg, s.sweepDuration, "jobengine_sweep_duration_seconds")
	s.register(reg, s.overdueJobs, "jobengine_overdue_jobs")
}

func (s *PrometheusSink) initBusMetrics(reg prometheus.Registerer) {
	s.runEventsDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jobengine_run_events_dropped_total",
		Help: "Total number of run events dropped because the bus buffer was full.",
	})
	s.mailOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jobengine_mail_outcomes_total",
		Help: "Total number of notification mail attempts by outcome.",
	}, []string{"outcome"})

	s.register(reg, s.runEventsDroppedTotal, "jobengine_run_events_dropped_total")
	s.register(reg, s.mailOutcomesTotal, "jobengine_mail_outcomes_total")
}

func (s *PrometheusSink) initLeaderMetrics(reg prometheus.Registerer) {
	s.leaderStatus = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "jobengine_leader_status",
		Help: "1 when this instance holds the scheduler lease, 0 otherwise.",
	})
	s.leaderAcquisition = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jobengine_leader_acquisitions_total",
		Help: "Total number of times this instance acquired the scheduler lease.",
	})
	s.leaderLossTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jobengine_leader_losses_total",
		Help: "Total number of times this instance lost the scheduler lease.",
	}, []string{"reason"})

	s.register(reg, s.leaderStatus, "jobengine_leader_status")
	s.register(reg, s.leaderAcquisition, "jobengine_leader_acquisitions_total")
	s.register(reg, s.leaderLossTotal, "jobengine_leader_losses_total")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		s.logger.Warn("failed to register metric", zap.String("metric", name), zap.Error(err))
	}
}

// Orchestrator metrics implementation

func (s *PrometheusSink) JobStarted(job string) {
	s.jobsInFlight.Inc()
}

func (s *PrometheusSink) JobCompleted(job, outcome string, duration time.Duration, records int) {
	s.jobsInFlight.Dec()
	s.jobRunsTotal.WithLabelValues(job, outcome).Inc()
	s.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
	if outcome == OutcomeSuccess && records > 0 {
		s.jobRecordsProcessed.WithLabelValues(job).Add(float64(records))
	}
}

// Recovery sweep metrics implementation

func (s *PrometheusSink) SweepCompleted(duration time.Duration, dispatched int, err error) {
	s.sweepsTotal.Inc()
	s.sweepDuration.Observe(duration.Seconds())
	s.sweepDispatchedTotal.Add(float64(dispatched))
	if err != nil {
		s.sweepErrorsTotal.Inc()
	}
}

func (s *PrometheusSink) OverdueJobsUpdate(count int) {
	s.overdueJobs.Set(float64(count))
}

// Event bus metrics implementation

func (s *PrometheusSink) RunEventDropped() {
	s.runEventsDroppedTotal.Inc()
}

// Notification metrics implementation

func (s *PrometheusSink) MailOutcome(outcome string) {
	s.mailOutcomesTotal.WithLabelValues(outcome).Inc()
}

// Leader election metrics implementation

func (s *PrometheusSink) LeaderStatusChanged(isLeader bool) {
	if isLeader {
		s.leaderStatus.Set(1)
	} else {
		s.leaderStatus.Set(0)
	}
}

func (s *PrometheusSink) LeaderAcquired() {
	s.leaderAcquisition.Inc()
}

func (s *PrometheusSink) LeaderLost(reason string) {
	s.leaderLossTotal.WithLabelValues(reason).Inc()
}

var _ Sink = (*PrometheusSink)(nil)
