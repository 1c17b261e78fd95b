package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunRecord is the persisted history of one execution attempt.
type RunRecord struct {
	ID      uuid.UUID
	JobName string

	StartedAt  time.Time
	FinishedAt time.Time

	Outcome          RunOutcome
	Detail           string
	RecordsProcessed int

	CreatedAt time.Time
}

// RunEvent is published on the in-process bus when an execution attempt
// finishes. Events are advisory; the tracker row is the source of truth.
type RunEvent struct {
	RunID   uuid.UUID
	JobName string

	Outcome          RunOutcome
	RecordsProcessed int

	StartedAt  time.Time
	FinishedAt time.Time
}
