// Package calendar builds the month grid shown on the home page and keeps
// track of which class the visitor is currently looking at.
//
// Everything in this package is a synchronous, total computation over its
// inputs: an empty class list, an empty day cell, or a month boundary are
// regular inputs with defined results, never errors.
package calendar

import (
	"fmt"
	"time"

	"classcal/internal/model"
)

// Weekdays are the column headings of a grid, Sunday first.
var Weekdays = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// Month is a (year, month) pair, the month pointer of a calendar view.
type Month struct {
	Year  int
	Month time.Month
}

// MonthOf returns the month containing t, in t's own location.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// first returns midnight of day 1. The zone is irrelevant for calendar
// arithmetic, so UTC is used to avoid DST surprises.
func (m Month) first() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// FirstWeekday is the weekday of day 1 of the month.
func (m Month) FirstWeekday() time.Weekday {
	return m.first().Weekday()
}

// Days returns the number of days in the month, computed as day 0 of the
// following month so that leap years fall out of time.Date normalization.
func (m Month) Days() int {
	return time.Date(m.Year, m.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Add moves the pointer by n months (negative n moves backwards).
func (m Month) Add(n int) Month {
	return MonthOf(time.Date(m.Year, m.Month+time.Month(n), 1, 0, 0, 0, 0, time.UTC))
}

// String renders the month the way the home page titles it, e.g. "November 2025".
func (m Month) String() string {
	return fmt.Sprintf("%s %d", m.Month, m.Year)
}

// Day is a single grid cell. The zero value is an empty padding cell.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

// DayOf returns the calendar day of t in t's own location.
func DayOf(t time.Time) Day {
	return Day{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// IsEmpty reports whether d is a padding cell.
func (d Day) IsEmpty() bool {
	return d.Day == 0
}

// Time returns midnight of d in loc.
func (d Day) Time(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Day) String() string {
	if d.IsEmpty() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Week is one row of the grid, Sunday through Saturday.
type Week [7]Day

// BuildGrid lays out the days of m in Sunday-first weeks. Leading cells
// before day 1 and trailing cells after the last day are empty. The result
// always holds ceil((Days + FirstWeekday) / 7) weeks.
func BuildGrid(m Month) []Week {
	var (
		weeks []Week
		cur   Week
	)

	// Leading padding is already the zero value.
	n := int(m.FirstWeekday())
	days := m.Days()
	for day := 1; day <= days; day++ {
		cur[n] = Day{Year: m.Year, Month: m.Month, Day: day}
		n++
		if n == len(cur) {
			weeks = append(weeks, cur)
			cur = Week{}
			n = 0
		}
	}
	if n > 0 {
		weeks = append(weeks, cur)
	}
	return weeks
}

// EventsOnDay returns the classes whose start falls on day d in loc,
// preserving their order. An empty cell has no classes.
func EventsOnDay(d Day, classes []model.Class, loc *time.Location) []model.Class {
	if d.IsEmpty() {
		return nil
	}
	var out []model.Class
	for _, c := range classes {
		if DayOf(c.Start.In(loc)) == d {
			out = append(out, c)
		}
	}
	return out
}

// IsToday reports whether d is the calendar day of now. Time of day is
// ignored and an empty cell is never today.
func IsToday(d Day, now time.Time) bool {
	return !d.IsEmpty() && DayOf(now) == d
}

// sameDay compares the calendar days of a and b in loc.
func sameDay(a, b time.Time, loc *time.Location) bool {
	return DayOf(a.In(loc)) == DayOf(b.In(loc))
}
