// Package services holds the application workflows that sit between the
// HTTP layer and the ledger backend: transaction submission, dashboards
// and recurring bill processing.
package services

import (
	"fmt"
	"time"

	"carteira/internal/core"
)

// DuenessChecker decides whether a recurring bill must run at now, given
// when it last ran. A zero lastExecution means it never ran.
type DuenessChecker interface {
	IsDue(lastExecution, now time.Time, startDate core.Date) bool
}

// DailyChecker is due once per calendar day.
type DailyChecker struct{}

func (DailyChecker) IsDue(lastExecution, now time.Time, _ core.Date) bool {
	if lastExecution.IsZero() {
		return true
	}
	return !sameDay(lastExecution.In(now.Location()), now)
}

// WeeklyChecker is due when at least seven calendar days passed.
type WeeklyChecker struct{}

func (WeeklyChecker) IsDue(lastExecution, now time.Time, _ core.Date) bool {
	if lastExecution.IsZero() {
		return true
	}
	last := core.StartOfDay(lastExecution.In(now.Location()))
	return !core.StartOfDay(now).Before(last.AddDate(0, 0, 7))
}

// MonthlyChecker is due once per month, on or after the start date's day.
// Days past the end of a short month fall back to its last day.
type MonthlyChecker struct{}

func (MonthlyChecker) IsDue(lastExecution, now time.Time, startDate core.Date) bool {
	if lastExecution.IsZero() {
		return true
	}
	last := lastExecution.In(now.Location())
	if last.Year() == now.Year() && last.Month() == now.Month() {
		return false
	}
	return now.Day() >= core.ClampDay(now.Year(), now.Month(), startDate.Day())
}

// YearlyChecker is due once per year, on or after the start date's
// month and day. Feb 29 runs on Feb 28 in common years.
type YearlyChecker struct{}

func (YearlyChecker) IsDue(lastExecution, now time.Time, startDate core.Date) bool {
	if lastExecution.IsZero() {
		return true
	}
	if lastExecution.In(now.Location()).Year() == now.Year() {
		return false
	}
	target := time.Month(startDate.Month())
	switch {
	case now.Month() < target:
		return false
	case now.Month() > target:
		return true
	}
	return now.Day() >= core.ClampDay(now.Year(), target, startDate.Day())
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// DuenessRegistry maps repetition types to their checker.
type DuenessRegistry map[core.RepetitionTypes]DuenessChecker

// DefaultDueness returns a fresh registry with the built-in frequencies.
func DefaultDueness() DuenessRegistry {
	return DuenessRegistry{
		core.Daily:   DailyChecker{},
		core.Weekly:  WeeklyChecker{},
		core.Monthly: MonthlyChecker{},
		core.Yearly:  YearlyChecker{},
	}
}

// Checker returns the checker for frequency.
func (r DuenessRegistry) Checker(frequency core.RepetitionTypes) (DuenessChecker, error) {
	checker, ok := r[frequency]
	if !ok {
		return nil, fmt.Errorf("unknown repetition type: %s", frequency)
	}
	return checker, nil
}

// Register adds or replaces the checker for frequency.
func (r DuenessRegistry) Register(frequency core.RepetitionTypes, checker DuenessChecker) {
	r[frequency] = checker
}
