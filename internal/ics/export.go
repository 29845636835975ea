package ics

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"classcal/internal/model"
)

const productID = "-//classcal//Class Schedule//EN"

// Export renders classes as a published iCalendar feed. Each class becomes
// one VEVENT lasting duration; canceled classes stay in the feed with
// STATUS:CANCELLED so subscribed calendars drop them.
func Export(classes []model.Class, name string, duration time.Duration, now time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if name != "" {
		cal.SetXWRCalName(name)
	}

	for _, c := range classes {
		ev := cal.AddEvent(c.ID + "@classcal")
		ev.SetDtStampTime(now.UTC())
		if !c.CreatedAt.IsZero() {
			ev.SetCreatedTime(c.CreatedAt.UTC())
		}
		ev.SetStartAt(c.Start.UTC())
		ev.SetEndAt(c.Start.Add(duration).UTC())
		ev.SetSummary(summaryFor(c))
		ev.SetLocation(c.Location)
		ev.SetDescription(describeAttendees(len(c.Attendees)))
		if c.IsCanceled {
			ev.SetStatus(ical.ObjectStatusCancelled)
		} else {
			ev.SetStatus(ical.ObjectStatusConfirmed)
		}
	}

	return cal.Serialize()
}

func summaryFor(c model.Class) string {
	if c.IsCanceled {
		return "CANCELED: Class at " + c.Location
	}
	return "Class at " + c.Location
}

func describeAttendees(n int) string {
	switch n {
	case 0:
		return "No one has signed up yet."
	case 1:
		return "1 person signed up."
	default:
		return fmt.Sprintf("%d people signed up.", n)
	}
}
