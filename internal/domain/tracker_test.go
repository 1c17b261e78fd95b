package domain

import (
	"testing"
	"time"
)

func TestJobTracker_Overdue(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		tracker JobTracker
		want    bool
	}{
		{
			name:    "enabled and past due",
			tracker: JobTracker{Enabled: true, NextScheduledRun: now.Add(-time.Hour)},
			want:    true,
		},
		{
			name:    "enabled and not yet due",
			tracker: JobTracker{Enabled: true, NextScheduledRun: now.Add(time.Hour)},
			want:    false,
		},
		{
			name:    "due exactly now is not overdue",
			tracker: JobTracker{Enabled: true, NextScheduledRun: now},
			want:    false,
		},
		{
			name:    "disabled is inert regardless of how overdue",
			tracker: JobTracker{Enabled: false, NextScheduledRun: now.Add(-30 * 24 * time.Hour)},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tracker.Overdue(now); got != tt.want {
				t.Errorf("Overdue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResult_Constructors(t *testing.T) {
	nextRun := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	res := Success("done", 42, nextRun)
	if !res.IsSuccess() {
		t.Error("Success result should report IsSuccess")
	}
	if res.RecordsProcessed != 42 {
		t.Errorf("expected 42 records, got %d", res.RecordsProcessed)
	}
	if !res.NextRun.Equal(nextRun) {
		t.Errorf("expected next run %v, got %v", nextRun, res.NextRun)
	}

	res = Failed("boom")
	if res.IsSuccess() {
		t.Error("Failed result should not report IsSuccess")
	}
	if res.Err != "boom" {
		t.Errorf("expected error message preserved, got %q", res.Err)
	}
	if !res.NextRun.IsZero() {
		t.Error("Failed result must not carry a next run")
	}

	res = Skipped("job is disabled")
	if res.IsSuccess() {
		t.Error("Skipped result should not report IsSuccess")
	}
	if res.Outcome != RunOutcomeSkipped {
		t.Errorf("expected skipped outcome, got %q", res.Outcome)
	}
}
