package web

import (
	"time"

	"classcal/internal/calendar"
	"classcal/internal/model"
)

// cellView is one grid cell. Day is 0 for padding cells.
type cellView struct {
	Date    string        `json:"date,omitempty"`
	Day     int           `json:"day"`
	Today   bool          `json:"today"`
	Classes []model.Class `json:"classes"`
}

type monthView struct {
	Title    string       `json:"title"`
	Year     int          `json:"year"`
	Month    int          `json:"month"`
	Weekdays [7]string    `json:"weekdays"`
	Weeks    [][]cellView `json:"weeks"`
}

type boardView struct {
	monthView
	Version       uint64       `json:"version"`
	State         string       `json:"state"`
	SelectedIndex int          `json:"selected_index"`
	Selected      *model.Class `json:"selected,omitempty"`
	Classes       int          `json:"class_count"`
}

func buildMonthView(m calendar.Month, eventsOn func(calendar.Day) []model.Class, isToday func(calendar.Day) bool) monthView {
	grid := calendar.BuildGrid(m)
	v := monthView{
		Title:    m.String(),
		Year:     m.Year,
		Month:    int(m.Month),
		Weekdays: calendar.Weekdays,
		Weeks:    make([][]cellView, 0, len(grid)),
	}
	for _, week := range grid {
		row := make([]cellView, 0, len(week))
		for _, d := range week {
			cell := cellView{Day: d.Day, Date: d.String(), Classes: []model.Class{}}
			if !d.IsEmpty() {
				cell.Today = isToday(d)
				if cs := eventsOn(d); len(cs) > 0 {
					cell.Classes = cs
				}
			}
			row = append(row, cell)
		}
		v.Weeks = append(v.Weeks, row)
	}
	return v
}

func buildBoardView(b *calendar.Board) boardView {
	v := boardView{
		monthView:     buildMonthView(b.Month(), b.EventsOnDay, b.IsToday),
		Version:       b.Version(),
		State:         b.State().String(),
		SelectedIndex: b.SelectedIndex(),
		Classes:       len(b.Classes()),
	}
	if c, ok := b.SelectedEvent(); ok {
		v.Selected = &c
	}
	return v
}

// statelessMonthView renders any month over a class list without touching
// a session board.
func statelessMonthView(m calendar.Month, classes []model.Class, loc *time.Location, now time.Time) monthView {
	sorted := calendar.SortByStart(classes)
	return buildMonthView(m,
		func(d calendar.Day) []model.Class { return calendar.EventsOnDay(d, sorted, loc) },
		func(d calendar.Day) bool { return calendar.IsToday(d, now.In(loc)) },
	)
}
