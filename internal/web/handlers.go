package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"classcal/internal/booking"
	"classcal/internal/calendar"
	"classcal/internal/ics"
	appLog "classcal/internal/log"
	"classcal/internal/model"
	"classcal/internal/store"
)

const registeredCookie = "classcal_registered_name"

// handleListClasses returns the classes in start order. Canceled classes
// are only listed for the administrator with ?all=1.
func (s *Server) handleListClasses(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}

	classes := snap.Available()
	if r.URL.Query().Get("all") == "1" {
		if !s.isAdmin(r) {
			challenge(w)
			return
		}
		classes = snap.Classes
	}
	writeJSON(w, http.StatusOK, struct {
		Version uint64        `json:"version"`
		Classes []model.Class `json:"classes"`
	}{snap.Version, calendar.SortByStart(classes)})
}

type classResponse struct {
	Class model.Class `json:"class"`
	// Registered reports whether the name remembered in this browser is on
	// the attendee list.
	Registered     bool   `json:"registered"`
	RegisteredName string `json:"registered_name,omitempty"`
}

func (s *Server) handleGetClass(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	c, found := snap.Find(pathVar(r, "id"))
	if !found {
		writeError(w, http.StatusNotFound, "Class not found.")
		return
	}
	name := registeredName(r)
	writeJSON(w, http.StatusOK, classResponse{
		Class:          c,
		Registered:     booking.IsRegistered(c, name),
		RegisteredName: name,
	})
}

type signUpRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	res, err := s.booking.SignUp(r.Context(), pathVar(r, "id"), req.Name)
	switch {
	case err == nil:
	case errors.Is(err, booking.ErrMissingName):
		writeError(w, http.StatusBadRequest, "Please enter your name.")
		return
	case errors.Is(err, booking.ErrAlreadySignedUp):
		writeError(w, http.StatusConflict, "You are already signed up for this class!")
		return
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Class not found.")
		return
	default:
		appLog.Error("api: signup failed", err)
		writeError(w, http.StatusInternalServerError, "Error signing up. Please try again.")
		return
	}

	s.setRegisteredName(w, strings.TrimSpace(req.Name))
	writeMessage(w, http.StatusOK, res)
}

func (s *Server) handleRemoveAttendee(w http.ResponseWriter, r *http.Request) {
	name := pathVar(r, "name")

	res, err := s.booking.RemoveAttendee(r.Context(), pathVar(r, "id"), name)
	switch {
	case err == nil:
	case errors.Is(err, booking.ErrMissingName):
		writeError(w, http.StatusBadRequest, "Please enter your name.")
		return
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Class not found.")
		return
	default:
		appLog.Error("api: attendee removal failed", err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error removing %s. Please try again.", strings.TrimSpace(name)))
		return
	}

	if remembered := registeredName(r); remembered != "" && remembered == strings.TrimSpace(name) {
		s.clearRegisteredName(w)
	}
	writeMessage(w, http.StatusOK, res)
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	var v boardView
	s.session(w, r).withBoard(snap, func(b *calendar.Board) {
		v = buildBoardView(b)
	})
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleBoardAction(w http.ResponseWriter, r *http.Request) {
	var step func(b *calendar.Board)
	switch pathVar(r, "action") {
	case "prev-event":
		step = (*calendar.Board).PrevEvent
	case "next-event":
		step = (*calendar.Board).NextEvent
	case "prev-month":
		step = (*calendar.Board).PreviousMonth
	case "next-month":
		step = (*calendar.Board).NextMonth
	default:
		writeError(w, http.StatusNotFound, "Unknown board action.")
		return
	}

	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	var v boardView
	s.session(w, r).withBoard(snap, func(b *calendar.Board) {
		step(b)
		v = buildBoardView(b)
	})
	writeJSON(w, http.StatusOK, v)
}

// handleCalendar renders any month without touching the session board.
//
// GET /api/calendar?year=2025&month=11
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	now := s.now().In(s.loc)
	q := r.URL.Query()
	year := parseIntDefault(q.Get("year"), now.Year())
	month := parseIntDefault(q.Get("month"), int(now.Month()))
	if month < 1 || month > 12 || year < 1 || year > 9999 {
		writeError(w, http.StatusBadRequest, "Invalid year or month.")
		return
	}

	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	m := calendar.Month{Year: year, Month: time.Month(month)}
	writeJSON(w, http.StatusOK, statelessMonthView(m, snap.Classes, s.loc, now))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	duration := time.Duration(s.cfg.ClassDurationMinutes) * time.Minute
	body := ics.Export(calendar.SortByStart(snap.Classes), s.cfg.CalendarName, duration, s.now())

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="classes.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

type scheduleRequest struct {
	// Start is an RFC 3339 instant, or local wall time "2006-01-02T15:04"
	// as sent by a datetime-local input.
	Start    string `json:"start"`
	Location string `json:"location"`
}

func (s *Server) handleScheduleClass(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	start, err := s.parseStart(req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Please provide a date and a location.")
		return
	}

	res, err := s.booking.Schedule(r.Context(), start, req.Location)
	switch {
	case err == nil:
		writeMessage(w, http.StatusCreated, res)
	case errors.Is(err, booking.ErrMissingFields):
		writeError(w, http.StatusBadRequest, "Please provide a date and a location.")
	default:
		writeError(w, http.StatusInternalServerError, "Error scheduling class.")
	}
}

func (s *Server) parseStart(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02T15:04", v, s.loc)
}

func (s *Server) handleToggleCancel(w http.ResponseWriter, r *http.Request) {
	res, err := s.booking.ToggleCancel(r.Context(), pathVar(r, "id"))
	switch {
	case err == nil:
		writeMessage(w, http.StatusOK, res)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Class not found.")
	default:
		writeError(w, http.StatusInternalServerError, "Error updating status.")
	}
}

func (s *Server) handleDeleteClass(w http.ResponseWriter, r *http.Request) {
	res, err := s.booking.Delete(r.Context(), pathVar(r, "id"))
	switch {
	case err == nil:
		writeMessage(w, http.StatusOK, res)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Class not found.")
	default:
		writeError(w, http.StatusInternalServerError, "Error deleting class.")
	}
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if s.generator == nil {
		writeError(w, http.StatusServiceUnavailable, "Class generation is not configured.")
		return
	}
	rep, err := s.generator.Run(r.Context())
	if err != nil {
		appLog.Error("api: generation failed", err)
		writeError(w, http.StatusInternalServerError, "Error generating classes.")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Message string `json:"message"`
		Created int    `json:"created"`
		Failed  int    `json:"failed"`
	}{
		Message: fmt.Sprintf("%d new classes generated.", rep.Created),
		Created: rep.Created,
		Failed:  rep.Failed + rep.FetchErrors,
	})
}

// snapshot loads the current class list, answering 500 on failure.
func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) (model.Snapshot, bool) {
	snap, err := s.classes.Snapshot(r.Context())
	if err != nil {
		appLog.Error("api: reading classes failed", err, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "Error loading classes.")
		return model.Snapshot{}, false
	}
	return snap, true
}

func registeredName(r *http.Request) string {
	c, err := r.Cookie(registeredCookie)
	if err != nil {
		return ""
	}
	name, err := url.QueryUnescape(c.Value)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(name)
}

func (s *Server) setRegisteredName(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     registeredCookie,
		Value:    url.QueryEscape(name),
		Path:     "/",
		MaxAge:   s.cfg.CookieDays * 24 * 60 * 60,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearRegisteredName(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     registeredCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}
