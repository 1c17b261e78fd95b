package config

import (
	"errors"
	"testing"
)

func validConfig() Config {
	cfg := Load()
	cfg.DatabaseURL = "postgres://localhost:5432/hr"
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Errorf("expected valid config, got: %v", err)
	}
}

func TestValidate_MissingDatabaseURL(t *testing.T) {
	cfg := validConfig()
	cfg.DatabaseURL = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for missing DATABASE_URL")
	}

	var errs ValidationErrors
	if !errors.As(err, &errs) {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if errs[0].Field != "DATABASE_URL" {
		t.Errorf("expected DATABASE_URL error, got %q", errs[0].Field)
	}
}

func TestValidate_UnknownTimezone(t *testing.T) {
	cfg := validConfig()
	cfg.BusinessTimezone = "Mars/Olympus"

	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}

func TestValidate_BadDurations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"garbage tick interval", func(c *Config) { c.TickIntervalStr = "soon" }},
		{"negative sweep interval", func(c *Config) { c.SweepIntervalStr = "-1h" }},
		{"zero job timeout", func(c *Config) { c.JobTimeoutStr = "0s" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			if err := Validate(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidate_NotificationHourRange(t *testing.T) {
	cfg := validConfig()
	cfg.NotificationHour = 24

	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for notification hour out of range")
	}
}

func TestValidate_SMTPFromRequiredWithAddr(t *testing.T) {
	cfg := validConfig()
	cfg.SMTPAddr = "mail.internal:587"
	cfg.SMTPFrom = ""

	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for missing SMTP_FROM")
	}
}

func TestValidationErrors_MessageAggregation(t *testing.T) {
	cfg := validConfig()
	cfg.DatabaseURL = ""
	cfg.TickIntervalStr = "bogus"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected errors")
	}

	var errs ValidationErrors
	if !errors.As(err, &errs) {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(errs) != 2 {
		t.Errorf("expected 2 errors, got %d: %v", len(errs), errs)
	}
}
