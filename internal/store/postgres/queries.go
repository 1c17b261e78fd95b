package postgres

const queryFindByName = `
SELECT id, job_name, job_type, last_successful_run_date, next_scheduled_run_date, enabled
FROM job_tracker
WHERE job_name = $1
`

const queryFindAllEnabled = `
SELECT id, job_name, job_type, last_successful_run_date, next_scheduled_run_date, enabled
FROM job_tracker
WHERE enabled = TRUE
ORDER BY next_scheduled_run_date
`

const queryFindOverdue = `
SELECT id, job_name, job_type, last_successful_run_date, next_scheduled_run_date, enabled
FROM job_tracker
WHERE enabled = TRUE
  AND next_scheduled_run_date < $1
ORDER BY next_scheduled_run_date
`

const queryRecordSuccess = `
UPDATE job_tracker
SET last_successful_run_date = $1,
    next_scheduled_run_date = $2
WHERE job_name = $3
`

const querySetEnabled = `
UPDATE job_tracker SET enabled = $1 WHERE job_name = $2
`

const querySeedTracker = `
INSERT INTO job_tracker (job_name, job_type, next_scheduled_run_date, enabled)
VALUES ($1, $2, $3, TRUE)
ON CONFLICT (job_name) DO NOTHING
`

const queryInsertRun = `
INSERT INTO job_runs (id, job_name, started_at, finished_at, outcome, detail, records_processed, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

const queryListRuns = `
SELECT id, job_name, started_at, finished_at, outcome, detail, records_processed, created_at
FROM job_runs
WHERE job_name = $1
ORDER BY started_at DESC
LIMIT $2 OFFSET $3
`
