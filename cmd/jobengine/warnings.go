package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/officina-hr/jobengine/internal/config"
)

// configWarnings returns operational warnings for configurations that are
// valid but likely unintended in production.
func configWarnings(cfg config.Config) []string {
	var warnings []string

	if cfg.SMTPAddr == "" {
		warnings = append(warnings,
			"SMTP_ADDR not set: deadline reminders will be logged, not delivered to employees")
	}

	if !cfg.LeaderEnabled {
		warnings = append(warnings,
			"LEADER_ENABLED=false: running multiple instances against the same database will duplicate shift generation and notification sends")
	}

	if !cfg.MetricsEnabled {
		warnings = append(warnings,
			"METRICS_ENABLED=false: overdue job counts and sweep outcomes will not be observable")
	}

	if cfg.BreakerThreshold == 0 {
		warnings = append(warnings,
			"BREAKER_THRESHOLD=0: mail circuit breaker disabled, a dead mail domain will be retried on every deadline run")
	}

	if cfg.SweepInterval < cfg.JobTimeout {
		warnings = append(warnings, fmt.Sprintf(
			"SWEEP_INTERVAL (%s) is shorter than JOB_TIMEOUT (%s): sweeps will repeatedly skip jobs that are still running",
			cfg.SweepInterval, cfg.JobTimeout))
	}

	return warnings
}

func logConfigWarnings(cfg config.Config, logger *zap.Logger) {
	for _, w := range configWarnings(cfg) {
		logger.Warn(w)
	}
}
