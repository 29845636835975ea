package calendar

import (
	"slices"
	"time"

	"classcal/internal/model"
)

// State is the lifecycle of a Cursor.
type State int

const (
	Uninitialized State = iota
	NoEvents
	Selected
)

func (s State) String() string {
	switch s {
	case NoEvents:
		return "no_events"
	case Selected:
		return "selected"
	default:
		return "uninitialized"
	}
}

// Cursor points at one class of a start-ordered list.
type Cursor struct {
	classes []model.Class
	index   int
	state   State
}

// SortByStart returns a copy of classes ordered by start. Classes starting
// at the same instant keep their original order.
func SortByStart(classes []model.Class) []model.Class {
	sorted := slices.Clone(classes)
	slices.SortStableFunc(sorted, func(a, b model.Class) int {
		return a.Start.Compare(b.Start)
	})
	return sorted
}

// SelectIndex picks the next relevant class of a start-ordered list: the
// first one that has not started yet or that takes place today in loc. When
// every class is in the past the last one is picked. It returns -1 for an
// empty list.
func SelectIndex(sorted []model.Class, now time.Time, loc *time.Location) int {
	if len(sorted) == 0 {
		return -1
	}
	for i, c := range sorted {
		if !c.Start.Before(now) || sameDay(c.Start, now, loc) {
			return i
		}
	}
	return len(sorted) - 1
}

// Reset replaces the list and recomputes the selection from scratch.
func (c *Cursor) Reset(classes []model.Class, now time.Time, loc *time.Location) {
	c.classes = SortByStart(classes)
	c.index = SelectIndex(c.classes, now, loc)
	if c.index < 0 {
		c.state = NoEvents
		return
	}
	c.state = Selected
}

// Prev moves one class back. It reports false, changing nothing, at the
// first class or when nothing is selected.
func (c *Cursor) Prev() bool {
	if c.state != Selected || c.index == 0 {
		return false
	}
	c.index--
	return true
}

// Next moves one class forward. It reports false, changing nothing, at the
// last class or when nothing is selected.
func (c *Cursor) Next() bool {
	if c.state != Selected || c.index >= len(c.classes)-1 {
		return false
	}
	c.index++
	return true
}

// Selected returns the class under the cursor.
func (c *Cursor) Selected() (model.Class, bool) {
	if c.state != Selected {
		return model.Class{}, false
	}
	return c.classes[c.index], true
}

// Index returns the selected position, or -1 when nothing is selected.
func (c *Cursor) Index() int {
	if c.state != Selected {
		return -1
	}
	return c.index
}

func (c *Cursor) State() State { return c.state }

// Classes returns the start-ordered list the cursor walks.
func (c *Cursor) Classes() []model.Class { return c.classes }
