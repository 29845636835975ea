// Package schedule materializes recurring classes and imported timetables
// into the class collection.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"classcal/internal/config"
	"classcal/internal/ics"
	appLog "classcal/internal/log"
	"classcal/internal/model"
)

// Store is where generated classes are written.
type Store interface {
	EnsureGenerated(ctx context.Context, c model.Class) (bool, error)
}

// Report summarizes one generation run.
type Report struct {
	Occurrences int
	Created     int
	Failed      int
	// FetchErrors counts timetables that could not be fetched or parsed.
	FetchErrors int
}

type source struct {
	ics.Source
	location string
}

// Generator expands the configured rules and timetables over the horizon
// and hands every occurrence to the store, which creates it only once.
type Generator struct {
	store   Store
	fetcher *ics.Fetcher

	rules   []ics.Rule
	sources []source

	loc             *time.Location
	horizon         time.Duration
	duration        time.Duration
	defaultLocation string

	now   func() time.Time
	newID func() string
}

// NewGenerator builds a Generator from cfg. Rule start times are read as
// wall-clock time in loc. fetcher may be nil when no timetables are
// configured.
func NewGenerator(cfg *config.Config, st Store, fetcher *ics.Fetcher, loc *time.Location) (*Generator, error) {
	if loc == nil {
		loc = time.Local
	}
	g := &Generator{
		store:           st,
		fetcher:         fetcher,
		loc:             loc,
		horizon:         time.Duration(cfg.HorizonDays) * 24 * time.Hour,
		duration:        time.Duration(cfg.ClassDurationMinutes) * time.Minute,
		defaultLocation: cfg.DefaultLocation,
		now:             time.Now,
		newID:           uuid.NewString,
	}

	for _, rc := range cfg.Recurring {
		start, err := time.ParseInLocation("2006-01-02T15:04", strings.TrimSpace(rc.Start), loc)
		if err != nil {
			return nil, fmt.Errorf("recurring class %s: bad start %q: %w", rc.ID, rc.Start, err)
		}
		g.rules = append(g.rules, ics.Rule{
			ID:       rc.ID,
			Location: rc.Location,
			RRule:    rc.RRule,
			Start:    start,
		})
	}

	for _, c := range cfg.ICS {
		if c.URL == "" {
			continue
		}
		id := c.ID
		if id == "" {
			if c.Name != "" {
				id = c.Name
			} else {
				id = c.URL
			}
		}
		g.sources = append(g.sources, source{
			Source:   ics.Source{ID: id, URL: c.URL},
			location: strings.TrimSpace(c.Location),
		})
	}
	if len(g.sources) > 0 && g.fetcher == nil {
		return nil, errors.New("schedule: timetables configured without a fetcher")
	}

	return g, nil
}

// Run expands everything in [now, now+horizon] and writes new occurrences.
// Individual failures are logged and counted; Run only returns an error
// when ctx is done.
func (g *Generator) Run(ctx context.Context) (Report, error) {
	var rep Report
	from := g.now().In(g.loc)
	to := from.Add(g.horizon)

	var occurrences []model.Occurrence
	for _, r := range g.rules {
		occ, err := ics.ExpandRule(r, from, to, g.duration, 0)
		if err != nil {
			appLog.Error("schedule: expanding recurring class failed", err, "id", r.ID)
			rep.Failed++
			continue
		}
		occurrences = append(occurrences, occ...)
	}

	imported, fetchErrors := g.importTimetables(ctx, from, to)
	occurrences = append(occurrences, imported...)
	rep.FetchErrors = fetchErrors

	rep.Occurrences = len(occurrences)
	for _, o := range occurrences {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		created, err := g.store.EnsureGenerated(ctx, model.Class{
			ID:         g.newID(),
			Start:      o.Start,
			IsCanceled: o.Canceled,
			Location:   o.Location,
			Attendees:  []string{},
			CreatedAt:  g.now(),
			Origin:     o.Origin(),
		})
		if err != nil {
			appLog.Error("schedule: storing generated class failed", err, "origin", o.Origin())
			rep.Failed++
			continue
		}
		if created {
			rep.Created++
		}
	}

	appLog.Info("schedule: generation finished",
		"from", from.Format(time.RFC3339),
		"to", to.Format(time.RFC3339),
		"occurrences", rep.Occurrences,
		"created", rep.Created,
		"failed", rep.Failed,
		"fetch_errors", rep.FetchErrors,
	)
	return rep, nil
}

func (g *Generator) importTimetables(ctx context.Context, from, to time.Time) ([]model.Occurrence, int) {
	if len(g.sources) == 0 {
		return nil, 0
	}

	srcs := make([]ics.Source, 0, len(g.sources))
	overrides := make(map[string]string, len(g.sources))
	for _, s := range g.sources {
		srcs = append(srcs, s.Source)
		overrides[s.ID] = s.location
	}

	results, errs := g.fetcher.FetchAll(ctx, srcs)
	failures := len(errs)

	var parsed []ics.ParsedEvent
	for _, res := range results {
		events, err := ics.ParseICS(res.Source, res.Body)
		if err != nil {
			appLog.Error("schedule: parsing timetable failed", err, "id", res.Source.ID)
			failures++
			continue
		}
		parsed = append(parsed, events...)
	}

	expanded, err := ics.ExpandOccurrences(parsed, ics.ExpandConfig{
		DisplayLocation: g.loc,
		RangeStart:      from,
		RangeEnd:        to,
	})
	if err != nil {
		appLog.Error("schedule: expanding timetables failed", err)
		return nil, failures + 1
	}

	out := expanded.Occurrences
	for i := range out {
		out[i].Location = g.locationFor(overrides[out[i].SourceID], out[i].Location)
	}
	return out, failures
}

// locationFor picks the source override, then the event's own location,
// then the configured default.
func (g *Generator) locationFor(override, event string) string {
	if override != "" {
		return override
	}
	if event = strings.TrimSpace(event); event != "" {
		return event
	}
	return g.defaultLocation
}
