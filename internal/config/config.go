package config

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

// Config holds all configuration for the jobengine service.
// Values are loaded from environment variables; see the serve command's
// usage text for the full list.
type Config struct {
	DatabaseURL string `json:"database_url"`
	RedisAddr   string `json:"redis_addr,omitempty"`
	HTTPAddr    string `json:"http_addr"`

	// BusinessTimezone is the calendar all next-run arithmetic and fixed
	// triggers are evaluated in. Timestamps are still stored in UTC.
	BusinessTimezone string `json:"business_timezone"`

	TickInterval    time.Duration `json:"-"`
	TickIntervalStr string        `json:"tick_interval"`

	SweepInterval    time.Duration `json:"-"`
	SweepIntervalStr string        `json:"sweep_interval"`

	// JobTimeout bounds each job execution; a deadline hit is an ordinary
	// failure result and the tracker stays overdue.
	JobTimeout    time.Duration `json:"-"`
	JobTimeoutStr string        `json:"job_timeout"`

	// NotificationHour is the business-local hour the deadline job is
	// rescheduled to (its cadence is calendar-fixed, not lastRun-derived).
	NotificationHour int `json:"notification_hour"`

	DBOpTimeout          time.Duration `json:"-"`
	DBOpTimeoutStr       string        `json:"db_op_timeout"`
	DBMaxOpenConns       int           `json:"db_max_open_conns"`
	DBMaxIdleConns       int           `json:"db_max_idle_conns"`
	DBConnMaxLifetime    time.Duration `json:"-"`
	DBConnMaxLifetimeStr string        `json:"db_conn_max_lifetime"`
	DBConnMaxIdleTime    time.Duration `json:"-"`
	DBConnMaxIdleTimeStr string        `json:"db_conn_max_idle_time"`

	HTTPShutdownTimeout    time.Duration `json:"-"`
	HTTPShutdownTimeoutStr string        `json:"http_shutdown_timeout"`

	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsPath    string `json:"metrics_path"`
	MetricsPort    string `json:"metrics_port"`

	EventBusBufferSize int `json:"eventbus_buffer_size"`

	AnalyticsRetention    time.Duration `json:"-"`
	AnalyticsRetentionStr string        `json:"analytics_retention"`

	// BreakerThreshold: 0 disables the outbound-mail circuit breaker.
	BreakerThreshold   int           `json:"breaker_threshold"`
	BreakerCooldown    time.Duration `json:"-"`
	BreakerCooldownStr string        `json:"breaker_cooldown"`

	// LeaderEnabled gates the scheduler and recovery sweep behind Postgres
	// advisory-lock leader election. All instances sharing a database must
	// use the same lock key.
	LeaderEnabled              bool          `json:"leader_enabled"`
	LeaderLockKey              int64         `json:"leader_lock_key"`
	LeaderRetryInterval        time.Duration `json:"-"`
	LeaderRetryIntervalStr     string        `json:"leader_retry_interval"`
	LeaderHeartbeatInterval    time.Duration `json:"-"`
	LeaderHeartbeatIntervalStr string        `json:"leader_heartbeat_interval"`

	// SMTPAddr empty means outbound mail is logged instead of sent.
	SMTPAddr     string `json:"smtp_addr,omitempty"`
	SMTPFrom     string `json:"smtp_from,omitempty"`
	SMTPUsername string `json:"smtp_username,omitempty"`
	SMTPPassword string `json:"smtp_password,omitempty"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	cfg := Config{
		DatabaseURL:                os.Getenv("DATABASE_URL"),
		RedisAddr:                  os.Getenv("REDIS_ADDR"),
		HTTPAddr:                   os.Getenv("HTTP_ADDR"),
		BusinessTimezone:           os.Getenv("BUSINESS_TIMEZONE"),
		TickIntervalStr:            os.Getenv("TICK_INTERVAL"),
		SweepIntervalStr:           os.Getenv("SWEEP_INTERVAL"),
		JobTimeoutStr:              os.Getenv("JOB_TIMEOUT"),
		DBOpTimeoutStr:             os.Getenv("DB_OP_TIMEOUT"),
		DBConnMaxLifetimeStr:       os.Getenv("DB_CONN_MAX_LIFETIME"),
		DBConnMaxIdleTimeStr:       os.Getenv("DB_CONN_MAX_IDLE_TIME"),
		HTTPShutdownTimeoutStr:     os.Getenv("HTTP_SHUTDOWN_TIMEOUT"),
		MetricsEnabled:             os.Getenv("METRICS_ENABLED") == "true",
		MetricsPath:                os.Getenv("METRICS_PATH"),
		MetricsPort:                os.Getenv("METRICS_PORT"),
		AnalyticsRetentionStr:      os.Getenv("ANALYTICS_RETENTION"),
		BreakerCooldownStr:         os.Getenv("BREAKER_COOLDOWN"),
		LeaderEnabled:              os.Getenv("LEADER_ENABLED") == "true",
		LeaderRetryIntervalStr:     os.Getenv("LEADER_RETRY_INTERVAL"),
		LeaderHeartbeatIntervalStr: os.Getenv("LEADER_HEARTBEAT_INTERVAL"),
		SMTPAddr:                   os.Getenv("SMTP_ADDR"),
		SMTPFrom:                   os.Getenv("SMTP_FROM"),
		SMTPUsername:               os.Getenv("SMTP_USERNAME"),
		SMTPPassword:               os.Getenv("SMTP_PASSWORD"),
	}

	if hourStr := os.Getenv("NOTIFICATION_HOUR"); hourStr != "" {
		if n, err := parseInt(hourStr); err == nil && n >= 0 && n <= 23 {
			cfg.NotificationHour = n
		} else {
			log.Printf("config: invalid NOTIFICATION_HOUR %q (must be 0-23), using default 9", hourStr)
			cfg.NotificationHour = 9
		}
	} else {
		cfg.NotificationHour = 9
	}

	if bufStr := os.Getenv("EVENTBUS_BUFFER_SIZE"); bufStr != "" {
		if n, err := parseInt(bufStr); err == nil && n > 0 {
			cfg.EventBusBufferSize = n
		} else {
			log.Printf("config: invalid EVENTBUS_BUFFER_SIZE %q (must be a positive integer), using default 100", bufStr)
		}
	}
	if cfg.EventBusBufferSize == 0 {
		cfg.EventBusBufferSize = 100
	}

	if thresholdStr := os.Getenv("BREAKER_THRESHOLD"); thresholdStr != "" {
		if n, err := parseInt(thresholdStr); err == nil {
			cfg.BreakerThreshold = n
		} else {
			log.Printf("config: invalid BREAKER_THRESHOLD %q, using default 5", thresholdStr)
			cfg.BreakerThreshold = 5
		}
	} else {
		cfg.BreakerThreshold = 5
	}

	if lockKeyStr := os.Getenv("LEADER_LOCK_KEY"); lockKeyStr != "" {
		if n, err := parseInt(lockKeyStr); err == nil && n > 0 {
			cfg.LeaderLockKey = int64(n)
		} else {
			log.Printf("config: invalid LEADER_LOCK_KEY %q (must be a positive integer), using default 581247", lockKeyStr)
		}
	}
	if cfg.LeaderLockKey == 0 {
		cfg.LeaderLockKey = 581247
	}

	if maxOpenStr := os.Getenv("DB_MAX_OPEN_CONNS"); maxOpenStr != "" {
		if n, err := parseInt(maxOpenStr); err == nil && n > 0 {
			cfg.DBMaxOpenConns = n
		}
	}
	if cfg.DBMaxOpenConns == 0 {
		cfg.DBMaxOpenConns = 25
	}

	if maxIdleStr := os.Getenv("DB_MAX_IDLE_CONNS"); maxIdleStr != "" {
		if n, err := parseInt(maxIdleStr); err == nil && n > 0 {
			cfg.DBMaxIdleConns = n
		}
	}
	if cfg.DBMaxIdleConns == 0 {
		cfg.DBMaxIdleConns = 5
	}

	if cfg.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = ":8080"
		}
	}
	if cfg.BusinessTimezone == "" {
		cfg.BusinessTimezone = "Europe/Rome"
	}
	if cfg.TickIntervalStr == "" {
		cfg.TickIntervalStr = "30s"
	}
	if cfg.SweepIntervalStr == "" {
		cfg.SweepIntervalStr = "1h"
	}
	if cfg.JobTimeoutStr == "" {
		cfg.JobTimeoutStr = "10m"
	}
	if cfg.DBOpTimeoutStr == "" {
		cfg.DBOpTimeoutStr = "5s"
	}
	if cfg.DBConnMaxLifetimeStr == "" {
		cfg.DBConnMaxLifetimeStr = "30m"
	}
	if cfg.DBConnMaxIdleTimeStr == "" {
		cfg.DBConnMaxIdleTimeStr = "5m"
	}
	if cfg.HTTPShutdownTimeoutStr == "" {
		cfg.HTTPShutdownTimeoutStr = "10s"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.MetricsPort == "" {
		cfg.MetricsPort = "9090"
	}
	if cfg.AnalyticsRetentionStr == "" {
		cfg.AnalyticsRetentionStr = "720h"
	}
	if cfg.BreakerCooldownStr == "" {
		cfg.BreakerCooldownStr = "2m"
	}
	if cfg.LeaderRetryIntervalStr == "" {
		cfg.LeaderRetryIntervalStr = "5s"
	}
	if cfg.LeaderHeartbeatIntervalStr == "" {
		cfg.LeaderHeartbeatIntervalStr = "2s"
	}

	// Parse durations; validation is handled separately by Validate().
	if d, err := time.ParseDuration(cfg.TickIntervalStr); err == nil {
		cfg.TickInterval = d
	}
	if d, err := time.ParseDuration(cfg.SweepIntervalStr); err == nil {
		cfg.SweepInterval = d
	}
	if d, err := time.ParseDuration(cfg.JobTimeoutStr); err == nil {
		cfg.JobTimeout = d
	}
	if d, err := time.ParseDuration(cfg.DBOpTimeoutStr); err == nil {
		cfg.DBOpTimeout = d
	}
	if d, err := time.ParseDuration(cfg.DBConnMaxLifetimeStr); err == nil {
		cfg.DBConnMaxLifetime = d
	}
	if d, err := time.ParseDuration(cfg.DBConnMaxIdleTimeStr); err == nil {
		cfg.DBConnMaxIdleTime = d
	}
	if d, err := time.ParseDuration(cfg.HTTPShutdownTimeoutStr); err == nil {
		cfg.HTTPShutdownTimeout = d
	}
	if d, err := time.ParseDuration(cfg.AnalyticsRetentionStr); err == nil {
		cfg.AnalyticsRetention = d
	}
	if d, err := time.ParseDuration(cfg.BreakerCooldownStr); err == nil {
		cfg.BreakerCooldown = d
	}
	if d, err := time.ParseDuration(cfg.LeaderRetryIntervalStr); err == nil {
		cfg.LeaderRetryInterval = d
	}
	if d, err := time.ParseDuration(cfg.LeaderHeartbeatIntervalStr); err == nil {
		cfg.LeaderHeartbeatInterval = d
	}

	return cfg
}

// parseInt parses a string as a non-negative base-10 integer.
func parseInt(s string) (int, error) {
	if s == "" {
		return 0, os.ErrInvalid
	}
	var n int
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, os.ErrInvalid
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// MaskedJSON returns the configuration as JSON with secrets masked.
func (c Config) MaskedJSON() ([]byte, error) {
	masked := c
	masked.DatabaseURL = maskSecret(c.DatabaseURL)
	if masked.SMTPPassword != "" {
		masked.SMTPPassword = "***"
	}
	return json.MarshalIndent(masked, "", "  ")
}

// maskSecret masks a secret value, preserving only the URI scheme if present.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if len(s) >= len(scheme) && s[:len(scheme)] == scheme {
			return scheme + "***"
		}
	}
	return "***"
}
