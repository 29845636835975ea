package web

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"classcal/internal/calendar"
	"classcal/internal/model"
)

const sessionCookie = "classcal_session"

// session owns one visitor's calendar board. mu serializes every read and
// step of the board.
type session struct {
	mu    sync.Mutex
	board *calendar.Board
}

// sessions keeps the most recently used boards; the least recently used
// one is dropped once limit is reached and that visitor starts over.
type sessions struct {
	cache *lru.Cache[string, *session]
	loc   *time.Location
	now   func() time.Time
}

func newSessions(limit int, loc *time.Location, now func() time.Time) (*sessions, error) {
	if limit <= 0 {
		limit = 1024
	}
	cache, err := lru.New[string, *session](limit)
	if err != nil {
		return nil, err
	}
	return &sessions{cache: cache, loc: loc, now: now}, nil
}

// lookup returns the session for id, creating it if needed. Concurrent
// first requests for the same id end up sharing one session.
func (s *sessions) lookup(id string) *session {
	if sess, ok := s.cache.Get(id); ok {
		return sess
	}
	fresh := &session{board: calendar.NewBoard(s.loc, s.now)}
	if prev, ok, _ := s.cache.PeekOrAdd(id, fresh); ok {
		return prev
	}
	return fresh
}

// session resolves the visitor's session from its cookie, issuing a new
// one when missing.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *session {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return s.sessions.lookup(c.Value)
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return s.sessions.lookup(id)
}

// withBoard syncs the session board to snap and runs fn while holding the
// session lock.
func (sess *session) withBoard(snap model.Snapshot, fn func(b *calendar.Board)) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.board.Update(snap)
	fn(sess.board)
}
