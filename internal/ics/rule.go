package ics

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"classcal/internal/model"
)

// Rule is a configured recurring class.
type Rule struct {
	ID       string
	Location string
	// RRule is the recurrence rule without DTSTART, e.g. "FREQ=WEEKLY;BYDAY=MO".
	RRule string
	// Start is the first occurrence; its wall-clock time and zone apply to
	// every occurrence.
	Start time.Time
}

// ExpandRule returns the occurrences of r that start within [from, to],
// at most limit of them (defaultMaxOccurrencesPerEvent when limit <= 0).
func ExpandRule(r Rule, from, to time.Time, duration time.Duration, limit int) ([]model.Occurrence, error) {
	if r.ID == "" {
		return nil, errors.New("rule: missing id")
	}
	if r.Start.IsZero() {
		return nil, fmt.Errorf("rule %s: missing start", r.ID)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("rule %s: range end is before range start", r.ID)
	}
	if limit <= 0 {
		limit = defaultMaxOccurrencesPerEvent
	}

	opt, err := rrule.StrToROption(r.RRule)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", r.ID, err)
	}
	opt.Dtstart = r.Start
	rr, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", r.ID, err)
	}

	loc := r.Start.Location()
	times := rr.Between(from.In(loc), to.In(loc), true)
	if len(times) > limit {
		times = times[:limit]
	}

	out := make([]model.Occurrence, 0, len(times))
	for _, t := range times {
		out = append(out, model.Occurrence{
			SourceID:    r.ID,
			InstanceKey: t.UTC().Format(time.RFC3339),
			Location:    r.Location,
			Start:       t,
			End:         t.Add(duration),
		})
	}
	return out, nil
}
