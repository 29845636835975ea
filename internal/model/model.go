package model

import (
	"slices"
	"time"
)

// Class represents a single scheduled session that visitors can sign up for.
// Every component (store, calendar board, web, ICS export) shares this type.
type Class struct {
	ID string `json:"id"`

	// Start is the instant the session begins.
	Start time.Time `json:"start"`

	IsCanceled bool   `json:"is_canceled"`
	Location   string `json:"location"`

	// Attendees is the ordered list of display names signed up for the class.
	// Uniqueness is only guarded by the booking service, not by the store.
	Attendees []string `json:"attendees"`

	CreatedAt time.Time `json:"created_at"`

	// Origin identifies the recurring rule or imported timetable instance the
	// class was generated from, e.g. "weekly-flow:2025-11-03T18:00:00Z".
	// Empty for classes created by hand.
	Origin string `json:"origin,omitempty"`
}

// HasAttendee reports whether name is already on the attendee list.
func (c Class) HasAttendee(name string) bool {
	return slices.Contains(c.Attendees, name)
}

// Snapshot is a full, replacing view of the class collection as pushed by the
// store after every change.
type Snapshot struct {
	// Version increases on every store mutation; consumers use it as the list
	// identity to decide whether derived state must be recomputed, and ignore
	// a snapshot older than one already seen.
	Version uint64 `json:"version"`

	// Classes are ordered ascending by start time.
	Classes []Class `json:"classes"`

	At time.Time `json:"at"`
}

// Available returns the non-canceled classes of the snapshot, in order.
func (s Snapshot) Available() []Class {
	out := make([]Class, 0, len(s.Classes))
	for _, c := range s.Classes {
		if !c.IsCanceled {
			out = append(out, c)
		}
	}
	return out
}

// Find returns the class with the given ID.
func (s Snapshot) Find(id string) (Class, bool) {
	for _, c := range s.Classes {
		if c.ID == id {
			return c, true
		}
	}
	return Class{}, false
}

// Occurrence represents a single concrete instance of a recurring rule or an
// imported timetable entry, before it is materialized as a Class.
type Occurrence struct {
	SourceID string // recurring rule ID or ICS source ID
	UID      string // iCalendar UID, empty for configured rules

	// InstanceKey uniquely identifies a single occurrence of a recurring
	// event, typically derived from the local start time.
	InstanceKey string

	Summary  string
	Location string
	Canceled bool

	Start time.Time
	End   time.Time
}

// Origin returns the key under which the occurrence is materialized.
func (o Occurrence) Origin() string {
	return o.SourceID + ":" + o.InstanceKey
}
