// Package postgres persists job trackers and run history.
//
// Tracker rows are seeded once per known job name and never deleted; the
// orchestrator is the only component that advances their timestamps.
package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/officina-hr/jobengine/internal/domain"
)

// Store implements the tracker store contracts consumed by the
// orchestrator, the recovery sweep and the admin API using PostgreSQL.
type Store struct {
	db        *sql.DB
	opTimeout time.Duration
}

// New creates a store with the given connection and per-operation timeout.
func New(db *sql.DB, opTimeout time.Duration) *Store {
	return &Store{db: db, opTimeout: opTimeout}
}

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

// FindByName returns the tracker for the given job name.
// Returns sql.ErrNoRows if the job is unknown.
func (s *Store) FindByName(ctx context.Context, jobName string) (domain.JobTracker, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	return scanTracker(s.db.QueryRowContext(ctx, queryFindByName, jobName))
}

// FindAllEnabled returns all enabled trackers ordered by next scheduled run.
func (s *Store) FindAllEnabled(ctx context.Context) ([]domain.JobTracker, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryFindAllEnabled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectTrackers(rows)
}

// FindOverdue returns enabled trackers whose next scheduled run is strictly
// before now, ordered by next run ascending.
func (s *Store) FindOverdue(ctx context.Context, now time.Time) ([]domain.JobTracker, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryFindOverdue, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectTrackers(rows)
}

// RecordSuccess advances the tracker after a successful execution.
// Returns false if the job name is unknown.
func (s *Store) RecordSuccess(ctx context.Context, jobName string, executedAt, nextRun time.Time) (bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, queryRecordSuccess, executedAt.UTC(), nextRun.UTC(), jobName)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetEnabled toggles a job's enabled flag. Returns false if the job name
// is unknown.
func (s *Store) SetEnabled(ctx context.Context, jobName string, enabled bool) (bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, querySetEnabled, enabled, jobName)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// EnsureSeeded inserts a tracker row per known job if absent. New rows get
// next_scheduled_run_date = now, so a fresh deployment bootstraps each job
// through the startup recovery sweep.
func (s *Store) EnsureSeeded(ctx context.Context, now time.Time) error {
	seeds := []struct {
		name    string
		jobType domain.JobType
	}{
		{domain.JobMonthlyAccrual, domain.JobTypeMonthly},
		{domain.JobShiftGeneration, domain.JobTypeDaily},
		{domain.JobDeadlineNotification, domain.JobTypeDaily},
	}

	for _, seed := range seeds {
		ctx, cancel := s.opCtx(ctx)
		_, err := s.db.ExecContext(ctx, querySeedTracker, seed.name, string(seed.jobType), now.UTC())
		cancel()
		if err != nil {
			return err
		}
	}
	return nil
}

// InsertRun appends one execution attempt to the run history.
func (s *Store) InsertRun(ctx context.Context, run domain.RunRecord) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, queryInsertRun,
		run.ID,
		run.JobName,
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
		string(run.Outcome),
		run.Detail,
		run.RecordsProcessed,
		run.CreatedAt.UTC(),
	)
	return err
}

// ListRuns returns run history for a job, newest first.
func (s *Store) ListRuns(ctx context.Context, jobName string, limit, offset int) ([]domain.RunRecord, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryListRuns, jobName, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.RunRecord
	for rows.Next() {
		var run domain.RunRecord
		var outcome string

		err := rows.Scan(
			&run.ID,
			&run.JobName,
			&run.StartedAt,
			&run.FinishedAt,
			&outcome,
			&run.Detail,
			&run.RecordsProcessed,
			&run.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		run.Outcome = domain.RunOutcome(outcome)
		result = append(result, run)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTracker(row rowScanner) (domain.JobTracker, error) {
	var t domain.JobTracker
	var jobType string
	var lastRun sql.NullTime

	err := row.Scan(
		&t.ID,
		&t.JobName,
		&jobType,
		&lastRun,
		&t.NextScheduledRun,
		&t.Enabled,
	)
	if err != nil {
		return domain.JobTracker{}, err
	}

	t.JobType = domain.JobType(jobType)
	if lastRun.Valid {
		lt := lastRun.Time
		t.LastSuccessfulRun = &lt
	}
	return t, nil
}

func collectTrackers(rows *sql.Rows) ([]domain.JobTracker, error) {
	var result []domain.JobTracker
	for rows.Next() {
		t, err := scanTracker(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
