package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"classcal/internal/booking"
	"classcal/internal/config"
	appLog "classcal/internal/log"
	"classcal/internal/model"
	"classcal/internal/schedule"
)

// Classes is the read side of the class collection.
type Classes interface {
	Snapshot(ctx context.Context) (model.Snapshot, error)
	Subscribe(ctx context.Context) (<-chan model.Snapshot, error)
}

// Generator materializes recurring and imported classes on demand.
type Generator interface {
	Run(ctx context.Context) (schedule.Report, error)
}

// Options wires a Server to the rest of the application.
type Options struct {
	Config  *config.Config
	Classes Classes
	Booking *booking.Service
	// Generator backs POST /api/admin/generate. Optional.
	Generator Generator
	// Location is the zone in which calendar days are compared.
	Location *time.Location
	Now      func() time.Time
}

// Server provides the calendar page and the HTTP API.
type Server struct {
	cfg       *config.Config
	classes   Classes
	booking   *booking.Service
	generator Generator
	loc       *time.Location
	now       func() time.Time

	sessions *sessions
	router   *mux.Router
}

// NewServer constructs a new Server.
func NewServer(opts Options) (*Server, error) {
	if opts.Config == nil || opts.Classes == nil || opts.Booking == nil {
		return nil, errors.New("web: config, classes and booking are required")
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	sess, err := newSessions(opts.Config.SessionLimit, opts.Location, opts.Now)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:       opts.Config,
		classes:   opts.Classes,
		booking:   opts.Booking,
		generator: opts.Generator,
		loc:       opts.Location,
		now:       opts.Now,
		sessions:  sess,
		router:    mux.NewRouter().UseEncodedPath(),
	}
	s.registerRoutes()
	return s, nil
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves HTTP on cfg.Listen until ctx is done, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves HTTP on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Request contexts end with ctx so open event streams return.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+ln.Addr().String(), "admin", s.cfg.AdminEnabled())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	r := s.router
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/", s.handlePage).Methods(http.MethodGet)
	r.HandleFunc("/classes.ics", s.handleExport).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/classes", s.handleListClasses).Methods(http.MethodGet)
	api.HandleFunc("/classes/{id}", s.handleGetClass).Methods(http.MethodGet)
	api.HandleFunc("/classes/{id}/attendees", s.handleSignUp).Methods(http.MethodPost)
	api.HandleFunc("/classes/{id}/attendees/{name}", s.handleRemoveAttendee).Methods(http.MethodDelete)
	api.HandleFunc("/board", s.handleBoard).Methods(http.MethodGet)
	api.HandleFunc("/board/days/{date}", s.handleDayClick).Methods(http.MethodGet)
	api.HandleFunc("/board/{action}", s.handleBoardAction).Methods(http.MethodPost)
	api.HandleFunc("/calendar", s.handleCalendar).Methods(http.MethodGet)
	api.HandleFunc("/stream", s.handleStream).Methods(http.MethodGet)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(s.requireAdmin)
	admin.HandleFunc("/classes", s.handleScheduleClass).Methods(http.MethodPost)
	admin.HandleFunc("/classes/{id}/cancel", s.handleToggleCancel).Methods(http.MethodPost)
	admin.HandleFunc("/classes/{id}", s.handleDeleteClass).Methods(http.MethodDelete)
	admin.HandleFunc("/generate", s.handleGenerate).Methods(http.MethodPost)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// requireAdmin guards the admin routes with HTTP Basic Auth. Without
// configured credentials the routes are disabled.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.AdminEnabled() {
			writeError(w, http.StatusForbidden, "Admin access is disabled.")
			return
		}
		if !s.isAdmin(r) {
			challenge(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) isAdmin(r *http.Request) bool {
	if !s.cfg.AdminEnabled() {
		return false
	}
	u, p, ok := r.BasicAuth()
	return ok && secureCompare(u, s.cfg.BasicAuth.Username) && secureCompare(p, s.cfg.BasicAuth.Password)
}

func challenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="classcal", charset="UTF-8"`)
	writeError(w, http.StatusUnauthorized, "Unauthorized")
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// pathVar returns the decoded route variable key. Routes match the escaped
// path, so an attendee name containing "%2F" stays one segment.
func pathVar(r *http.Request, key string) string {
	v := mux.Vars(r)[key]
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// ResolveLocationOrLocal loads the named zone, falling back to time.Local.
func ResolveLocationOrLocal(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
}

type messageResponse struct {
	Message string       `json:"message"`
	Class   *model.Class `json:"class,omitempty"`
}

func writeMessage(w http.ResponseWriter, status int, res booking.Result) {
	resp := messageResponse{Message: res.Message}
	if res.Class.ID != "" {
		c := res.Class
		resp.Class = &c
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
