// Package cron wraps robfig/cron expression parsing, pinning evaluation to
// the business timezone so fixed calendar triggers fire on local wall time.
package cron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

type Parser struct {
	parser cron.Parser
	loc    *time.Location
}

// NewParser creates a parser for standard 5-field cron expressions
// evaluated in loc.
func NewParser(loc *time.Location) *Parser {
	return &Parser{
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		loc:    loc,
	}
}

func (p *Parser) Parse(expression string) (Schedule, error) {
	sched, err := p.parser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("parse cron: %w", err)
	}
	return &schedule{sched: sched, loc: p.loc}, nil
}

type Schedule interface {
	Next(after time.Time) time.Time
}

type schedule struct {
	sched cron.Schedule
	loc   *time.Location
}

func (s *schedule) Next(after time.Time) time.Time {
	return s.sched.Next(after.In(s.loc))
}
