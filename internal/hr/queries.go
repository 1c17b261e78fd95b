package hr

// Accrual. One crediting pass adds each monthly quota to the balance of
// every employee holding a currently valid contract.
const (
	queryCreditVacationHours = `
		UPDATE employee_leave_balance b
		SET vacation_available = b.vacation_available + a.vacation_hours_per_month
		FROM employee_leave_accrual a
		JOIN contracts c ON c.employee_id = a.employee_id
		WHERE b.employee_id = a.employee_id
		  AND c.start_date <= CURRENT_DATE
		  AND (c.end_date IS NULL OR c.end_date >= CURRENT_DATE)`

	queryCreditRolHours = `
		UPDATE employee_leave_balance b
		SET rol_available = b.rol_available + a.rol_hours_per_month
		FROM employee_leave_accrual a
		JOIN contracts c ON c.employee_id = a.employee_id
		WHERE b.employee_id = a.employee_id
		  AND c.start_date <= CURRENT_DATE
		  AND (c.end_date IS NULL OR c.end_date >= CURRENT_DATE)`
)

// Tenants.
const queryListTenants = `
	SELECT id, name
	FROM companies
	ORDER BY name`

// Shift generation. Assignments are derived from weekday associations,
// skipping inactive shifts, employees absent for the whole day, and
// slots that would overlap an existing assignment.
const (
	queryIsHoliday = `
		SELECT COUNT(*) FROM holiday
		WHERE deleted = false
		  AND (
		      (recurring = true AND month = $1 AND day = $2)
		      OR
		      (recurring = false AND year = $3 AND month = $1 AND day = $2)
		  )`

	queryGenerateAssignments = `
		INSERT INTO shift_assignments (employee_id, date, start_time, end_time, auto_generated)
		SELECT sa.employee_id, $1::date, s.start_time, s.end_time, true
		FROM shift_associations sa
		JOIN employees e ON e.id = sa.employee_id
		JOIN shifts s ON s.id = sa.shift_id
		WHERE sa.day_of_week = $2
		  AND e.company_id = $3
		  AND s.active = true
		  AND NOT EXISTS (
		      SELECT 1 FROM absences ab
		      WHERE ab.employee_id = sa.employee_id
		        AND ab.status = 'APPROVED'
		        AND ab.type IN ('VACATION', 'SICK_LEAVE')
		        AND ab.start_date <= $1::date
		        AND ab.end_date >= $1::date
		        AND ab.start_time IS NULL
		  )
		  AND NOT EXISTS (
		      SELECT 1 FROM shift_assignments ex
		      WHERE ex.employee_id = sa.employee_id
		        AND ex.date = $1::date
		        AND ex.start_time < s.end_time
		        AND ex.end_time > s.start_time
		  )`
)

// Deadlines.
const (
	queryFindNeedingNotification = `
		SELECT id, employee_id, type, expiration_date, note, reminder_days, recipient_email, notified
		FROM employee_deadlines
		WHERE expiration_date <= CURRENT_DATE + (reminder_days || ' days')::INTERVAL
		  AND expiration_date >= CURRENT_DATE
		  AND notified = false
		ORDER BY expiration_date`

	queryMarkNotified = `
		UPDATE employee_deadlines
		SET notified = true
		WHERE id = $1`
)
