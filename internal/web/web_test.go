package web

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classcal/internal/booking"
	"classcal/internal/config"
	"classcal/internal/schedule"
	"classcal/internal/store"
)

var testNow = time.Date(2025, time.November, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	srv     *Server
	store   *store.Store
	booking *booking.Service
	classes []string
}

type fakeGenerator struct{ created int }

func (g fakeGenerator) Run(context.Context) (schedule.Report, error) {
	return schedule.Report{Created: g.created}, nil
}

func newFixture(t *testing.T, admin bool, gen Generator) *fixture {
	t.Helper()
	ctx := context.Background()
	now := func() time.Time { return testNow }

	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "classes.db"), store.Options{DefaultLocation: "Studio A", Now: now})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := config.DefaultConfig()
	if admin {
		cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "s3cret"}
	}
	svc := booking.New(st, now)

	f := &fixture{store: st, booking: svc}
	for _, start := range []time.Time{
		time.Date(2025, time.November, 3, 18, 0, 0, 0, time.UTC),
		time.Date(2025, time.November, 10, 18, 0, 0, 0, time.UTC),
	} {
		res, err := svc.Schedule(ctx, start, "Studio A")
		require.NoError(t, err)
		f.classes = append(f.classes, res.Class.ID)
	}

	f.srv, err = NewServer(Options{
		Config:    cfg,
		Classes:   st,
		Booking:   svc,
		Generator: gen,
		Location:  time.UTC,
		Now:       now,
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, m := range mutate {
		m(req)
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func withCookie(c *http.Cookie) func(*http.Request) {
	return func(r *http.Request) { r.AddCookie(c) }
}

func asAdmin(r *http.Request) { r.SetBasicAuth("admin", "s3cret") }

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t, false, nil)
	rec := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestSignUpFlow(t *testing.T) {
	f := newFixture(t, false, nil)
	id := f.classes[0]

	rec := f.do(t, http.MethodPost, "/api/classes/"+id+"/attendees", `{"name":" Jane Doe "}`)
	require.Equal(t, http.StatusOK, rec.Code)
	msg := decode[messageResponse](t, rec)
	assert.Equal(t, "Jane Doe, you are successfully signed up for the class at Studio A!", msg.Message)

	remembered := cookieNamed(rec, registeredCookie)
	require.NotNil(t, remembered)
	assert.Equal(t, 365*24*60*60, remembered.MaxAge)
	assert.Equal(t, "/", remembered.Path)
	assert.True(t, remembered.Secure)
	assert.Equal(t, http.SameSiteLaxMode, remembered.SameSite)

	rec = f.do(t, http.MethodPost, "/api/classes/"+id+"/attendees", `{"name":"Jane Doe"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "You are already signed up for this class!", decode[map[string]string](t, rec)["error"])

	rec = f.do(t, http.MethodGet, "/api/classes/"+id, "", withCookie(remembered))
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[classResponse](t, rec)
	assert.True(t, got.Registered)
	assert.Equal(t, "Jane Doe", got.RegisteredName)
	assert.Equal(t, []string{"Jane Doe"}, got.Class.Attendees)

	rec = f.do(t, http.MethodDelete, "/api/classes/"+id+"/attendees/Jane%20Doe", "", withCookie(remembered))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Jane Doe has been successfully removed from the class.", decode[messageResponse](t, rec).Message)
	cleared := cookieNamed(rec, registeredCookie)
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0)

	rec = f.do(t, http.MethodPost, "/api/classes/"+id+"/attendees", `{"name":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/classes/nope/attendees", `{"name":"Sam"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRemoveAttendeeWithEncodedSlash(t *testing.T) {
	f := newFixture(t, false, nil)
	id := f.classes[0]

	rec := f.do(t, http.MethodPost, "/api/classes/"+id+"/attendees", `{"name":"Ann/Bob"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"Ann/Bob"}, decode[messageResponse](t, rec).Class.Attendees)

	rec = f.do(t, http.MethodDelete, "/api/classes/"+id+"/attendees/Ann%2FBob", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ann/Bob has been successfully removed from the class.", decode[messageResponse](t, rec).Message)

	got, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, got.Attendees)
}

func TestAdminDisabledWithoutCredentials(t *testing.T) {
	f := newFixture(t, false, nil)
	rec := f.do(t, http.MethodPost, "/api/admin/classes", `{"start":"2025-11-05T18:00:00Z","location":"Gym"}`, asAdmin)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminRoutes(t *testing.T) {
	f := newFixture(t, true, nil)

	rec := f.do(t, http.MethodPost, "/api/admin/classes", `{"start":"2025-11-05T18:00:00Z","location":"Gym"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	rec = f.do(t, http.MethodPost, "/api/admin/classes", `{"start":"2025-11-05T18:00:00Z","location":"Gym"}`, asAdmin)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[messageResponse](t, rec)
	assert.Equal(t, "New class scheduled successfully at Gym.", created.Message)
	require.NotNil(t, created.Class)

	rec = f.do(t, http.MethodPost, "/api/admin/classes", `{"start":"","location":"Gym"}`, asAdmin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/admin/classes/"+created.Class.ID+"/cancel", "", asAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Class at Gym has been CANCELED.", decode[messageResponse](t, rec).Message)

	type listing struct {
		Classes []struct {
			ID string `json:"id"`
		} `json:"classes"`
	}
	rec = f.do(t, http.MethodGet, "/api/classes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[listing](t, rec).Classes, 2)

	rec = f.do(t, http.MethodGet, "/api/classes?all=1", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/classes?all=1", "", asAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[listing](t, rec).Classes, 3)

	rec = f.do(t, http.MethodDelete, "/api/admin/classes/"+created.Class.ID, "", asAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Class successfully deleted.", decode[messageResponse](t, rec).Message)

	rec = f.do(t, http.MethodDelete, "/api/admin/classes/"+created.Class.ID, "", asAdmin)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerateRoute(t *testing.T) {
	f := newFixture(t, true, nil)
	rec := f.do(t, http.MethodPost, "/api/admin/generate", "", asAdmin)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	f = newFixture(t, true, fakeGenerator{created: 3})
	rec = f.do(t, http.MethodPost, "/api/admin/generate", "", asAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3 new classes generated.", decode[map[string]any](t, rec)["message"])
}

func TestBoardSession(t *testing.T) {
	f := newFixture(t, false, nil)

	rec := f.do(t, http.MethodGet, "/api/board", "")
	require.Equal(t, http.StatusOK, rec.Code)
	sess := cookieNamed(rec, sessionCookie)
	require.NotNil(t, sess)

	board := decode[boardView](t, rec)
	assert.Equal(t, "November 2025", board.Title)
	assert.Equal(t, "selected", board.State)
	assert.Equal(t, 0, board.SelectedIndex)
	require.NotNil(t, board.Selected)
	assert.Equal(t, f.classes[0], board.Selected.ID)
	assert.Equal(t, 0, board.Weeks[0][5].Day)
	assert.Equal(t, 1, board.Weeks[0][6].Day)
	assert.True(t, board.Weeks[0][6].Today)

	rec = f.do(t, http.MethodPost, "/api/board/next-event", "", withCookie(sess))
	require.Equal(t, http.StatusOK, rec.Code)
	board = decode[boardView](t, rec)
	assert.Equal(t, 1, board.SelectedIndex)

	// Bounded: stepping past the last class keeps the selection.
	rec = f.do(t, http.MethodPost, "/api/board/next-event", "", withCookie(sess))
	assert.Equal(t, 1, decode[boardView](t, rec).SelectedIndex)

	rec = f.do(t, http.MethodPost, "/api/board/next-month", "", withCookie(sess))
	board = decode[boardView](t, rec)
	assert.Equal(t, "December 2025", board.Title)
	assert.Equal(t, 1, board.SelectedIndex)

	// A fresh session starts over.
	rec = f.do(t, http.MethodGet, "/api/board", "")
	assert.Equal(t, 0, decode[boardView](t, rec).SelectedIndex)

	rec = f.do(t, http.MethodPost, "/api/board/sideways", "", withCookie(sess))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBoardRecomputesAfterChange(t *testing.T) {
	f := newFixture(t, false, nil)
	rec := f.do(t, http.MethodGet, "/api/board", "")
	sess := cookieNamed(rec, sessionCookie)
	require.NotNil(t, sess)

	rec = f.do(t, http.MethodPost, "/api/board/next-event", "", withCookie(sess))
	require.Equal(t, 1, decode[boardView](t, rec).SelectedIndex)

	_, err := f.booking.SignUp(context.Background(), f.classes[1], "Sam")
	require.NoError(t, err)

	rec = f.do(t, http.MethodGet, "/api/board", "", withCookie(sess))
	assert.Equal(t, 0, decode[boardView](t, rec).SelectedIndex)
}

func TestDayClick(t *testing.T) {
	f := newFixture(t, false, nil)
	rec := f.do(t, http.MethodGet, "/api/board/days/2025-11-03", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, f.classes[0], decode[classResponse](t, rec).Class.ID)

	rec = f.do(t, http.MethodGet, "/api/board/days/2025-11-04", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/board/days/tomorrow", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatelessCalendar(t *testing.T) {
	f := newFixture(t, false, nil)

	rec := f.do(t, http.MethodGet, "/api/calendar?year=2025&month=11", "")
	require.Equal(t, http.StatusOK, rec.Code)
	m := decode[monthView](t, rec)
	assert.Equal(t, "November 2025", m.Title)
	require.Len(t, m.Weeks, 6)
	assert.Equal(t, 30, m.Weeks[5][0].Day)
	assert.Len(t, m.Weeks[1][1].Classes, 1)

	rec = f.do(t, http.MethodGet, "/api/calendar?year=2025&month=13", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportAndPage(t *testing.T) {
	f := newFixture(t, false, nil)

	rec := f.do(t, http.MethodGet, "/classes.ics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/calendar")
	assert.Contains(t, rec.Body.String(), "UID:"+f.classes[0]+"@classcal")

	rec = f.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `data-ready="true"`)
	assert.Contains(t, body, "November 2025")
	assert.Contains(t, body, `id="class-`+f.classes[0]+`"`)
	assert.NotNil(t, cookieNamed(rec, sessionCookie))
}

func TestStream(t *testing.T) {
	f := newFixture(t, false, nil)
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream", nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	var data string
	for data == "" {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(strings.TrimSpace(line), "data: ")
		}
	}

	var ev streamEvent
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Len(t, ev.Classes, 2)
	assert.NotZero(t, ev.Version)
}
