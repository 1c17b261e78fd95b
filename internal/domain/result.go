package domain

import "time"

type RunOutcome string

const (
	RunOutcomeSuccess RunOutcome = "success"
	RunOutcomeFailure RunOutcome = "failure"
	RunOutcomeSkipped RunOutcome = "skipped"
)

// Result is the outcome of one execution attempt. It is the only channel
// through which job logic reports back to the orchestrator; the orchestrator
// never inspects job internals.
type Result struct {
	Outcome          RunOutcome
	Detail           string
	Err              string
	RecordsProcessed int

	// NextRun is set only on success; the tracker advances to it.
	NextRun time.Time
}

func Success(detail string, records int, nextRun time.Time) Result {
	return Result{
		Outcome:          RunOutcomeSuccess,
		Detail:           detail,
		RecordsProcessed: records,
		NextRun:          nextRun,
	}
}

func Failed(errMsg string) Result {
	return Result{Outcome: RunOutcomeFailure, Err: errMsg}
}

func Skipped(reason string) Result {
	return Result{Outcome: RunOutcomeSkipped, Detail: reason}
}

func (r Result) IsSuccess() bool {
	return r.Outcome == RunOutcomeSuccess
}
