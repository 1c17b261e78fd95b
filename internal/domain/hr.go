package domain

import "time"

// Tenant is an isolated company scope; shift generation runs per tenant.
type Tenant struct {
	ID   int64
	Name string
}

// Deadline is an employee deadline whose notification window has opened.
type Deadline struct {
	ID         int64
	EmployeeID int64

	Type           string
	ExpirationDate time.Time
	Note           string
	ReminderDays   int

	RecipientEmail string
	Notified       bool
}
