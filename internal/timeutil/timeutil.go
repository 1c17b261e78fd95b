// Package timeutil provides calendar arithmetic against the business
// timezone. Next-run times are computed on the business-local calendar date,
// not the raw instant, so a UTC/local offset cannot shift runs across days.
package timeutil

import (
	"fmt"
	"time"
)

// DefaultZone is the business timezone used when none is configured.
const DefaultZone = "Europe/Rome"

// Calendar performs date arithmetic in a fixed business timezone.
// All returned times are normalized to UTC for storage.
type Calendar struct {
	loc *time.Location
}

func NewCalendar(timezone string) (*Calendar, error) {
	if timezone == "" {
		timezone = DefaultZone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", timezone, err)
	}
	return &Calendar{loc: loc}, nil
}

// Location returns the business timezone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// StartOfDay returns midnight of t's business-local calendar date.
func (c *Calendar) StartOfDay(t time.Time) time.Time {
	l := t.In(c.loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, c.loc).UTC()
}

// Tomorrow returns midnight of the business-local day after t.
func (c *Calendar) Tomorrow(t time.Time) time.Time {
	l := t.In(c.loc)
	return time.Date(l.Year(), l.Month(), l.Day()+1, 0, 0, 0, 0, c.loc).UTC()
}

// TomorrowAt returns the given hour of the business-local day after t.
func (c *Calendar) TomorrowAt(t time.Time, hour int) time.Time {
	l := t.In(c.loc)
	return time.Date(l.Year(), l.Month(), l.Day()+1, hour, 0, 0, 0, c.loc).UTC()
}

// NextDailyRun returns start-of-day of the business-local date after
// lastRun's date.
func (c *Calendar) NextDailyRun(lastRun time.Time) time.Time {
	return c.Tomorrow(lastRun)
}

// NextMonthlyRun returns start-of-day of the first day of the calendar
// month following lastRun's business-local month.
func (c *Calendar) NextMonthlyRun(lastRun time.Time) time.Time {
	l := lastRun.In(c.loc)
	return time.Date(l.Year(), l.Month()+1, 1, 0, 0, 0, 0, c.loc).UTC()
}

// MissedMonths counts the whole calendar months between lastRun's month
// (exclusive) and now's month (inclusive). A job last run in January checked
// mid-April has missed February, March and April: 3 months.
func (c *Calendar) MissedMonths(lastRun, now time.Time) int {
	last := lastRun.In(c.loc)
	cursor := time.Date(last.Year(), last.Month()+1, 1, 0, 0, 0, 0, c.loc)

	n := now.In(c.loc)
	limit := time.Date(n.Year(), n.Month(), 1, 0, 0, 0, 0, c.loc)

	missed := 0
	for !cursor.After(limit) {
		missed++
		cursor = cursor.AddDate(0, 1, 0)
	}
	return missed
}
