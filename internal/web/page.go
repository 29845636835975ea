package web

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"time"

	"classcal/internal/booking"
	"classcal/internal/calendar"
	appLog "classcal/internal/log"
)

//go:embed templates/calendar.html
var templateFS embed.FS

var pageTemplate = template.Must(template.New("calendar.html").Funcs(template.FuncMap{
	"clock": func(t time.Time, loc *time.Location) string {
		return t.In(loc).Format("3:04 PM")
	},
	"longdate": func(t time.Time, loc *time.Location) string {
		return t.In(loc).Format("Monday, January 2 at 3:04 PM")
	},
}).ParseFS(templateFS, "templates/calendar.html"))

type pageData struct {
	Name           string
	Loc            *time.Location
	Board          boardView
	SelectedID     string
	RegisteredName string
}

// handlePage renders the session board as HTML. The root element carries
// data-ready="true" once rendered, which headless captures wait for.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	data := pageData{
		Name:           s.cfg.CalendarName,
		Loc:            s.loc,
		RegisteredName: registeredName(r),
	}
	s.session(w, r).withBoard(snap, func(b *calendar.Board) {
		data.Board = buildBoardView(b)
	})
	if data.Board.Selected != nil {
		data.SelectedID = data.Board.Selected.ID
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		appLog.Error("page render failed", err)
		http.Error(w, "failed to render calendar", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// handleDayClick returns the class a click on a calendar day leads to: the
// first class of that day that is not canceled.
//
// GET /api/board/days/2025-11-03
func (s *Server) handleDayClick(w http.ResponseWriter, r *http.Request) {
	t, err := time.Parse("2006-01-02", pathVar(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date.")
		return
	}
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}

	var v classResponse
	var found bool
	s.session(w, r).withBoard(snap, func(b *calendar.Board) {
		v.Class, found = b.DayClick(calendar.DayOf(t))
	})
	if !found {
		writeError(w, http.StatusNotFound, "No open class on this day.")
		return
	}
	name := registeredName(r)
	v.RegisteredName = name
	v.Registered = booking.IsRegistered(v.Class, name)
	writeJSON(w, http.StatusOK, v)
}
