package calendar

import (
	"time"

	"classcal/internal/model"
)

// Board is the view state of one browsing session: the month on display and
// the class under the cursor. It is not safe for concurrent use; the owner
// serializes access.
type Board struct {
	loc *time.Location
	now func() time.Time

	month Month

	version uint64
	synced  bool
	cursor  Cursor
}

// NewBoard returns a board showing the current month in loc. A nil now
// defaults to time.Now.
func NewBoard(loc *time.Location, now func() time.Time) *Board {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	return &Board{
		loc:   loc,
		now:   now,
		month: MonthOf(now().In(loc)),
	}
}

// Update feeds a snapshot to the board. The cursor is recomputed only when
// the snapshot is newer than the last one seen, so manual browsing is kept
// across repeated reads of the same snapshot and a late, older snapshot is
// ignored. It reports whether a recompute happened.
func (b *Board) Update(s model.Snapshot) bool {
	if b.synced && s.Version <= b.version {
		return false
	}
	b.synced = true
	b.version = s.Version
	b.cursor.Reset(s.Classes, b.now(), b.loc)
	b.follow()
	return true
}

// follow points the month at the selected class, if any.
func (b *Board) follow() {
	if c, ok := b.cursor.Selected(); ok {
		b.month = MonthOf(c.Start.In(b.loc))
	}
}

// Version is the snapshot version the board was last computed from.
func (b *Board) Version() uint64 { return b.version }

func (b *Board) Location() *time.Location { return b.loc }

func (b *Board) Month() Month { return b.month }

// Title is the heading of the displayed month, e.g. "November 2025".
func (b *Board) Title() string { return b.month.String() }

// Grid returns the weeks of the displayed month.
func (b *Board) Grid() []Week { return BuildGrid(b.month) }

// Classes returns the start-ordered classes of the last snapshot.
func (b *Board) Classes() []model.Class { return b.cursor.Classes() }

func (b *Board) State() State { return b.cursor.State() }

// SelectedIndex is the cursor position, or -1.
func (b *Board) SelectedIndex() int { return b.cursor.Index() }

// SelectedEvent returns the class under the cursor.
func (b *Board) SelectedEvent() (model.Class, bool) {
	return b.cursor.Selected()
}

// PrevEvent steps the cursor back and shows the month of the new class.
func (b *Board) PrevEvent() {
	if b.cursor.Prev() {
		b.follow()
	}
}

// NextEvent steps the cursor forward and shows the month of the new class.
func (b *Board) NextEvent() {
	if b.cursor.Next() {
		b.follow()
	}
}

// PreviousMonth shows the month before the current one. The cursor is left alone.
func (b *Board) PreviousMonth() { b.month = b.month.Add(-1) }

// NextMonth shows the month after the current one. The cursor is left alone.
func (b *Board) NextMonth() { b.month = b.month.Add(1) }

// EventsOnDay returns the classes held by the board that start on d.
func (b *Board) EventsOnDay(d Day) []model.Class {
	return EventsOnDay(d, b.cursor.Classes(), b.loc)
}

// IsToday reports whether d is today in the board's location.
func (b *Board) IsToday(d Day) bool {
	return IsToday(d, b.now().In(b.loc))
}

// DayClick returns the first class on d that has not been canceled; this is
// where a click on a calendar cell takes the visitor.
func (b *Board) DayClick(d Day) (model.Class, bool) {
	for _, c := range b.EventsOnDay(d) {
		if !c.IsCanceled {
			return c, true
		}
	}
	return model.Class{}, false
}
