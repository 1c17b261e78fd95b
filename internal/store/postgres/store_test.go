package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/officina-hr/jobengine/internal/domain"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, 5*time.Second), mock
}

func trackerColumns() []string {
	return []string{"id", "job_name", "job_type", "last_successful_run_date", "next_scheduled_run_date", "enabled"}
}

func TestFindByName_Found(t *testing.T) {
	store, mock := newMockStore(t)

	lastRun := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	nextRun := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(queryFindByName)).
		WithArgs(domain.JobMonthlyAccrual).
		WillReturnRows(sqlmock.NewRows(trackerColumns()).
			AddRow(int64(1), domain.JobMonthlyAccrual, "MONTHLY", lastRun, nextRun, true))

	tracker, err := store.FindByName(context.Background(), domain.JobMonthlyAccrual)
	if err != nil {
		t.Fatalf("FindByName: %v", err)
	}

	if tracker.JobName != domain.JobMonthlyAccrual {
		t.Errorf("expected job name %q, got %q", domain.JobMonthlyAccrual, tracker.JobName)
	}
	if tracker.JobType != domain.JobTypeMonthly {
		t.Errorf("expected MONTHLY, got %q", tracker.JobType)
	}
	if tracker.LastSuccessfulRun == nil || !tracker.LastSuccessfulRun.Equal(lastRun) {
		t.Errorf("expected last run %v, got %v", lastRun, tracker.LastSuccessfulRun)
	}
	if !tracker.NextScheduledRun.Equal(nextRun) {
		t.Errorf("expected next run %v, got %v", nextRun, tracker.NextScheduledRun)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestFindByName_NeverRun(t *testing.T) {
	store, mock := newMockStore(t)

	nextRun := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(queryFindByName)).
		WithArgs(domain.JobShiftGeneration).
		WillReturnRows(sqlmock.NewRows(trackerColumns()).
			AddRow(int64(2), domain.JobShiftGeneration, "DAILY", nil, nextRun, true))

	tracker, err := store.FindByName(context.Background(), domain.JobShiftGeneration)
	if err != nil {
		t.Fatalf("FindByName: %v", err)
	}

	if tracker.LastSuccessfulRun != nil {
		t.Errorf("expected nil last run for never-run job, got %v", tracker.LastSuccessfulRun)
	}
}

func TestFindByName_Unknown(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(queryFindByName)).
		WithArgs("no_such_job").
		WillReturnError(sql.ErrNoRows)

	_, err := store.FindByName(context.Background(), "no_such_job")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestFindOverdue(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	overdueAt := now.Add(-2 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta(queryFindOverdue)).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows(trackerColumns()).
			AddRow(int64(1), domain.JobMonthlyAccrual, "MONTHLY", nil, overdueAt, true))

	overdue, err := store.FindOverdue(context.Background(), now)
	if err != nil {
		t.Fatalf("FindOverdue: %v", err)
	}
	if len(overdue) != 1 {
		t.Fatalf("expected 1 overdue tracker, got %d", len(overdue))
	}
	if overdue[0].JobName != domain.JobMonthlyAccrual {
		t.Errorf("unexpected job: %q", overdue[0].JobName)
	}
}

func TestRecordSuccess(t *testing.T) {
	store, mock := newMockStore(t)

	executedAt := time.Date(2024, 3, 15, 1, 0, 0, 0, time.UTC)
	nextRun := time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(queryRecordSuccess)).
		WithArgs(executedAt, nextRun, domain.JobShiftGeneration).
		WillReturnResult(sqlmock.NewResult(0, 1))

	updated, err := store.RecordSuccess(context.Background(), domain.JobShiftGeneration, executedAt, nextRun)
	if err != nil {
		t.Fatalf("RecordSuccess: %v", err)
	}
	if !updated {
		t.Error("expected updated=true")
	}
}

func TestRecordSuccess_UnknownJob(t *testing.T) {
	store, mock := newMockStore(t)

	executedAt := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta(queryRecordSuccess)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	updated, err := store.RecordSuccess(context.Background(), "no_such_job", executedAt, executedAt.Add(time.Hour))
	if err != nil {
		t.Fatalf("RecordSuccess: %v", err)
	}
	if updated {
		t.Error("expected updated=false for unknown job")
	}
}

func TestSetEnabled(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(querySetEnabled)).
		WithArgs(true, domain.JobDeadlineNotification).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := store.SetEnabled(context.Background(), domain.JobDeadlineNotification, true)
	if err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if !ok {
		t.Error("expected ok=true")
	}
}

func TestEnsureSeeded_InsertsAllKnownJobs(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		mock.ExpectExec(regexp.QuoteMeta(querySeedTracker)).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	if err := store.EnsureSeeded(context.Background(), now); err != nil {
		t.Fatalf("EnsureSeeded: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestInsertRun(t *testing.T) {
	store, mock := newMockStore(t)

	run := domain.RunRecord{
		ID:               uuid.New(),
		JobName:          domain.JobMonthlyAccrual,
		StartedAt:        time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC),
		FinishedAt:       time.Date(2024, 3, 1, 1, 0, 5, 0, time.UTC),
		Outcome:          domain.RunOutcomeSuccess,
		Detail:           "monthly accrual completed",
		RecordsProcessed: 12,
		CreatedAt:        time.Date(2024, 3, 1, 1, 0, 5, 0, time.UTC),
	}

	mock.ExpectExec(regexp.QuoteMeta(queryInsertRun)).
		WithArgs(run.ID, run.JobName, run.StartedAt, run.FinishedAt, "success", run.Detail, run.RecordsProcessed, run.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.InsertRun(context.Background(), run); err != nil {
		t.Fatalf("InsertRun: %v", err)
	}
}

func TestListRuns(t *testing.T) {
	store, mock := newMockStore(t)

	runID := uuid.New()
	started := time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(queryListRuns)).
		WithArgs(domain.JobShiftGeneration, 100, 0).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "job_name", "started_at", "finished_at", "outcome", "detail", "records_processed", "created_at",
		}).AddRow(runID, domain.JobShiftGeneration, started, started.Add(time.Minute), "failure", "tenant db down", 0, started.Add(time.Minute)))

	runs, err := store.ListRuns(context.Background(), domain.JobShiftGeneration, 100, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].Outcome != domain.RunOutcomeFailure {
		t.Errorf("expected failure outcome, got %q", runs[0].Outcome)
	}
	if runs[0].ID != runID {
		t.Errorf("unexpected run id: %v", runs[0].ID)
	}
}
