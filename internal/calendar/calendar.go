// Package calendar converts instants into program days and weeks.
//
// All arithmetic is done on calendar dates in the program's time zone, so a
// daylight-saving shift never moves a record into a different day or week.
package calendar

import (
	"time"

	"alcyxob/wellness-program/internal/domain"
)

const (
	// MaxWeek is the last program week; later records stay in it.
	MaxWeek = domain.ProgramWeeks

	dayLayout = "2006-01-02"
)

// Calendar performs day and week math in a fixed location.
type Calendar struct {
	loc *time.Location
}

// New returns a Calendar for loc. A nil loc means UTC.
func New(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return Calendar{loc: loc}
}

// Location returns the calendar's time zone.
func (c Calendar) Location() *time.Location {
	return c.loc
}

// DayStart returns 00:00 of t's calendar day.
func (c Calendar) DayStart(t time.Time) time.Time {
	y, m, d := t.In(c.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.loc)
}

// DayBounds returns [start, end) of t's calendar day.
func (c Calendar) DayBounds(t time.Time) (time.Time, time.Time) {
	start := c.DayStart(t)
	return start, start.AddDate(0, 0, 1)
}

// DayKey formats t's calendar day as YYYY-MM-DD.
func (c Calendar) DayKey(t time.Time) string {
	return t.In(c.loc).Format(dayLayout)
}

// Weekday returns the weekday tag of t's calendar day.
func (c Calendar) Weekday(t time.Time) domain.Weekday {
	return domain.WeekdayOf(t.In(c.loc).Weekday())
}

// DaysBetween returns the number of calendar days from one day to another.
// It is negative when to is before from.
func (c Calendar) DaysBetween(from, to time.Time) int {
	fy, fm, fd := from.In(c.loc).Date()
	ty, tm, td := to.In(c.loc).Date()
	a := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// WeeksElapsed returns the whole weeks between from and to, never negative.
func (c Calendar) WeeksElapsed(from, to time.Time) int {
	days := c.DaysBetween(from, to)
	if days < 0 {
		return 0
	}
	return days / 7
}

// WeekNumber maps a record date onto the program week of a patient who
// started on programStart. The result is always within [1, MaxWeek].
func (c Calendar) WeekNumber(programStart, record time.Time) int {
	days := c.DaysBetween(programStart, record)
	if days < 0 {
		days = 0
	}
	week := days/7 + 1
	if week > MaxWeek {
		week = MaxWeek
	}
	return week
}

// WeekBounds returns [start, end) of the given program week.
func (c Calendar) WeekBounds(programStart time.Time, week int) (time.Time, time.Time) {
	if week < 1 {
		week = 1
	}
	start := c.DayStart(programStart).AddDate(0, 0, (week-1)*7)
	return start, start.AddDate(0, 0, 7)
}
