package api

import "time"

type TrackerResponse struct {
	JobName           string  `json:"job_name"`
	JobType           string  `json:"job_type"`
	LastSuccessfulRun *string `json:"last_successful_run"`
	NextScheduledRun  string  `json:"next_scheduled_run"`
	Enabled           bool    `json:"enabled"`
	Overdue           bool    `json:"overdue"`
}

type ListJobsResponse struct {
	Jobs []TrackerResponse `json:"jobs"`
}

type RunResponse struct {
	ID               string `json:"id"`
	JobName          string `json:"job_name"`
	StartedAt        string `json:"started_at"`
	FinishedAt       string `json:"finished_at"`
	Outcome          string `json:"outcome"`
	Detail           string `json:"detail,omitempty"`
	RecordsProcessed int    `json:"records_processed"`
}

type ListRunsResponse struct {
	Runs []RunResponse `json:"runs"`
}

type TriggerResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
