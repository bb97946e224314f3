package periods

import (
	"fmt"
	"time"
)

// FiscalYearStatus enumerates fiscal year states.
type FiscalYearStatus string

const (
	FiscalYearOpen   FiscalYearStatus = "OPEN"
	FiscalYearLocked FiscalYearStatus = "LOCKED"
	FiscalYearClosed FiscalYearStatus = "CLOSED"
)

// FiscalYear bounds a set of accounting periods.
type FiscalYear struct {
	ID        int64
	Name      string
	StartDate time.Time
	EndDate   time.Time
	Status    FiscalYearStatus
	IsActive  bool
	ClosedBy  *int64
	ClosedAt  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Period is an accounting period; vouchers may only post into unlocked ones.
type Period struct {
	ID           int64
	FiscalYearID int64
	Name         string
	StartDate    time.Time
	EndDate      time.Time
	Locked       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Contains reports whether date falls within the period, inclusive.
func (p Period) Contains(date time.Time) bool {
	d := Day(date)
	return !d.Before(Day(p.StartDate)) && !d.After(Day(p.EndDate))
}

// Quarter returns the calendar quarter of the period start.
func (p Period) Quarter() int {
	return (int(p.StartDate.Month())-1)/3 + 1
}

func (p Period) String() string {
	if p.Name != "" {
		return p.Name
	}
	return fmt.Sprintf("%s to %s", p.StartDate.Format(time.DateOnly), p.EndDate.Format(time.DateOnly))
}

// Day truncates t to its calendar date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FiscalYearInput carries fields for creating a fiscal year.
type FiscalYearInput struct {
	Name      string    `json:"name" validate:"required,max=50"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
}

// PeriodInput carries fields for creating an accounting period.
type PeriodInput struct {
	FiscalYearID int64     `json:"fiscal_year_id" validate:"required,gt=0"`
	Name         string    `json:"name" validate:"max=50"`
	StartDate    time.Time `json:"start_date" validate:"required"`
	EndDate      time.Time `json:"end_date" validate:"required"`
}
