// Package hr talks to the workforce tables the background jobs operate
// on: leave balances, shift planning, and employee deadlines. The job
// engine owns none of these tables; it only runs the recurring work
// against them.
package hr

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/officina-hr/jobengine/internal/domain"
)

// Store wraps the HR schema with per-operation timeouts.
type Store struct {
	db        *sql.DB
	opTimeout time.Duration
}

func New(db *sql.DB, opTimeout time.Duration) *Store {
	return &Store{db: db, opTimeout: opTimeout}
}

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

// RunMonthlyAccrual credits one month of vacation and ROL hours to
// every employee with a valid contract. Both credits run in a single
// transaction so a partial pass can never be committed, which keeps the
// catch-up loop safe to repeat. Returns the number of balances updated.
func (s *Store) RunMonthlyAccrual(ctx context.Context) (int, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin accrual tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, queryCreditVacationHours)
	if err != nil {
		return 0, fmt.Errorf("credit vacation hours: %w", err)
	}
	credited, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, queryCreditRolHours); err != nil {
		return 0, fmt.Errorf("credit rol hours: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit accrual tx: %w", err)
	}
	return int(credited), nil
}

// ListTenants returns every company in the workforce schema.
func (s *Store) ListTenants(ctx context.Context) ([]domain.Tenant, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryListTenants)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []domain.Tenant
	for rows.Next() {
		var t domain.Tenant
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// GenerateForDateRange creates automatic shift assignments for one
// tenant over [start, end], both inclusive. Holiday dates produce no
// assignments. Returns the number of assignments created.
func (s *Store) GenerateForDateRange(ctx context.Context, tenantID int64, start, end time.Time) (int, error) {
	total := 0
	for date := start; !date.After(end); date = date.AddDate(0, 0, 1) {
		created, err := s.generateForDate(ctx, tenantID, date)
		if err != nil {
			return total, fmt.Errorf("generate assignments for %s: %w", date.Format("2006-01-02"), err)
		}
		total += created
	}
	return total, nil
}

func (s *Store) generateForDate(ctx context.Context, tenantID int64, date time.Time) (int, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var holidays int
	err := s.db.QueryRowContext(ctx, queryIsHoliday,
		int(date.Month()), date.Day(), date.Year()).Scan(&holidays)
	if err != nil {
		return 0, fmt.Errorf("holiday check: %w", err)
	}
	if holidays > 0 {
		return 0, nil
	}

	res, err := s.db.ExecContext(ctx, queryGenerateAssignments,
		date.Format("2006-01-02"), isoWeekday(date.Weekday()), tenantID)
	if err != nil {
		return 0, err
	}
	created, err := res.RowsAffected()
	return int(created), err
}

// isoWeekday maps Go's Sunday-based weekday to ISO numbering
// (Monday=1 .. Sunday=7), which is what shift_associations stores.
func isoWeekday(d time.Weekday) int {
	if d == time.Sunday {
		return 7
	}
	return int(d)
}

// FindNeedingNotification returns unnotified deadlines inside their
// reminder window that have not yet expired.
func (s *Store) FindNeedingNotification(ctx context.Context) ([]domain.Deadline, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryFindNeedingNotification)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deadlines []domain.Deadline
	for rows.Next() {
		var d domain.Deadline
		var note, email sql.NullString
		err := rows.Scan(&d.ID, &d.EmployeeID, &d.Type, &d.ExpirationDate,
			&note, &d.ReminderDays, &email, &d.Notified)
		if err != nil {
			return nil, err
		}
		d.Note = note.String
		d.RecipientEmail = email.String
		deadlines = append(deadlines, d)
	}
	return deadlines, rows.Err()
}

// MarkNotified flags a deadline as notified. Reports whether a row
// was updated.
func (s *Store) MarkNotified(ctx context.Context, id int64) (bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, queryMarkNotified, id)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}
