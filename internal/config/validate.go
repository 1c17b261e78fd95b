package config

import (
	"fmt"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors

	if cfg.DatabaseURL == "" {
		errs = append(errs, ValidationError{
			Field:   "DATABASE_URL",
			Message: "required",
		})
	}

	if _, err := time.LoadLocation(cfg.BusinessTimezone); err != nil {
		errs = append(errs, ValidationError{
			Field:   "BUSINESS_TIMEZONE",
			Message: fmt.Sprintf("unknown timezone: %v", err),
		})
	}

	if cfg.NotificationHour < 0 || cfg.NotificationHour > 23 {
		errs = append(errs, ValidationError{
			Field:   "NOTIFICATION_HOUR",
			Message: fmt.Sprintf("must be 0-23, got %d", cfg.NotificationHour),
		})
	}

	durations := []struct {
		field string
		raw   string
	}{
		{"TICK_INTERVAL", cfg.TickIntervalStr},
		{"SWEEP_INTERVAL", cfg.SweepIntervalStr},
		{"JOB_TIMEOUT", cfg.JobTimeoutStr},
		{"DB_OP_TIMEOUT", cfg.DBOpTimeoutStr},
		{"HTTP_SHUTDOWN_TIMEOUT", cfg.HTTPShutdownTimeoutStr},
		{"ANALYTICS_RETENTION", cfg.AnalyticsRetentionStr},
		{"BREAKER_COOLDOWN", cfg.BreakerCooldownStr},
		{"LEADER_RETRY_INTERVAL", cfg.LeaderRetryIntervalStr},
		{"LEADER_HEARTBEAT_INTERVAL", cfg.LeaderHeartbeatIntervalStr},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   d.field,
				Message: fmt.Sprintf("invalid duration: %v", err),
			})
		} else if parsed <= 0 {
			errs = append(errs, ValidationError{
				Field:   d.field,
				Message: "must be positive",
			})
		}
	}

	if cfg.SMTPAddr != "" && cfg.SMTPFrom == "" {
		errs = append(errs, ValidationError{
			Field:   "SMTP_FROM",
			Message: "required when SMTP_ADDR is set",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
