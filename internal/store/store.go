// Package store keeps the class collection in SQLite and pushes a full
// snapshot of it to subscribers after every change.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	appLog "classcal/internal/log"
	"classcal/internal/model"
)

const DriverName = "sqlite3"

var ErrNotFound = errors.New("class not found")

//go:embed migrations/*.sql
var migrations embed.FS

// Options tune how stored rows are turned into classes.
type Options struct {
	// DefaultLocation is reported for classes stored without a location.
	DefaultLocation string
	// Now stamps CreatedAt when a class arrives without one.
	Now func() time.Time
}

// Store is the class collection.
type Store struct {
	db   *sqlx.DB
	hub  *Hub
	opts Options

	// pubMu orders snapshot publication so versions match mutation order.
	pubMu   sync.Mutex
	version uint64
}

// Open opens (creating if needed) the SQLite file at path and migrates it.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	if path == "" {
		return nil, errors.New("store: database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("store: creating database directory: %w", err)
	}
	db, err := sql.Open(DriverName, "file:"+path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", path, err)
	}
	s, err := New(ctx, db, opts)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open SQLite handle and runs pending migrations.
func New(ctx context.Context, db *sql.DB, opts Options) (*Store, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if err := migrate(ctx, db); err != nil {
		return nil, fmt.Errorf("store: running migrations: %w", err)
	}
	// A single connection serializes writers; SQLite allows only one anyway.
	db.SetMaxOpenConns(1)

	return &Store{
		db:   sqlx.NewDb(db, DriverName),
		hub:  NewHub(),
		opts: opts,
	}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{})
	if err := goose.SetDialect(DriverName); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

// gooseLogger routes migration progress into the application log.
type gooseLogger struct{}

func (gooseLogger) Printf(format string, v ...any) {
	appLog.Debug("store migration", "detail", strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (gooseLogger) Fatalf(format string, v ...any) {
	err := fmt.Errorf(format, v...)
	appLog.Error("store migration failed", err)
	panic(err)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Hub exposes the snapshot fan-out.
func (s *Store) Hub() *Hub { return s.hub }

type classRow struct {
	ID         string `db:"id"`
	StartAt    int64  `db:"start_at"`
	IsCanceled bool   `db:"is_canceled"`
	Location   string `db:"location"`
	Attendees  string `db:"attendees"`
	CreatedAt  int64  `db:"created_at"`
	Origin     string `db:"origin"`
}

func (r classRow) convert(defaultLocation string) (model.Class, error) {
	c := model.Class{
		ID:         r.ID,
		Start:      time.UnixMilli(r.StartAt).UTC(),
		IsCanceled: r.IsCanceled,
		Location:   r.Location,
		CreatedAt:  time.UnixMilli(r.CreatedAt).UTC(),
		Origin:     r.Origin,
	}
	if c.Location == "" {
		c.Location = defaultLocation
	}
	attendees, err := decodeAttendees(r.Attendees)
	if err != nil {
		return model.Class{}, fmt.Errorf("class %s: %w", r.ID, err)
	}
	c.Attendees = attendees
	return c, nil
}

func decodeAttendees(raw string) ([]string, error) {
	out := []string{}
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decoding attendees: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func encodeAttendees(names []string) (string, error) {
	if names == nil {
		names = []string{}
	}
	data, err := json.Marshal(names)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

const selectClasses = `
	SELECT id, start_at, is_canceled, location, attendees, created_at, origin
	FROM classes`

// List returns every class ordered by start time.
func (s *Store) List(ctx context.Context) ([]model.Class, error) {
	var rows []classRow
	err := s.db.SelectContext(ctx, &rows, selectClasses+` ORDER BY start_at, created_at, id`)
	if err != nil {
		return nil, err
	}
	out := make([]model.Class, 0, len(rows))
	for _, r := range rows {
		c, err := r.convert(s.opts.DefaultLocation)
		if err != nil {
			// One damaged document must not hide the rest of the schedule.
			appLog.Error("store: skipping unreadable class", err, "id", r.ID)
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// Get returns a single class.
func (s *Store) Get(ctx context.Context, id string) (model.Class, error) {
	var r classRow
	err := s.db.GetContext(ctx, &r, selectClasses+` WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Class{}, ErrNotFound
	}
	if err != nil {
		return model.Class{}, err
	}
	return r.convert(s.opts.DefaultLocation)
}

// Create inserts a new class.
func (s *Store) Create(ctx context.Context, c model.Class) error {
	if err := s.insert(ctx, s.db, c); err != nil {
		return err
	}
	s.publish(ctx)
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) insert(ctx context.Context, db execer, c model.Class) error {
	if c.ID == "" {
		return errors.New("store: class ID is empty")
	}
	attendees, err := encodeAttendees(c.Attendees)
	if err != nil {
		return err
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.opts.Now()
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO classes (id, start_at, is_canceled, location, attendees, created_at, origin)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.Start.UnixMilli(), c.IsCanceled, c.Location, attendees, c.CreatedAt.UnixMilli(), c.Origin)
	return err
}

// SetCanceled sets the cancellation flag of a class.
func (s *Store) SetCanceled(ctx context.Context, id string, canceled bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE classes SET is_canceled = ? WHERE id = ?`, canceled, id)
	if err != nil {
		return err
	}
	if err := expectRow(res); err != nil {
		return err
	}
	s.publish(ctx)
	return nil
}

// Delete removes a class.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM classes WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := expectRow(res); err != nil {
		return err
	}
	s.publish(ctx)
	return nil
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddAttendee appends name to the attendee list unless it is already there.
func (s *Store) AddAttendee(ctx context.Context, id, name string) error {
	return s.updateAttendees(ctx, id, func(names []string) []string {
		if slices.Contains(names, name) {
			return names
		}
		return append(names, name)
	})
}

// RemoveAttendee removes every occurrence of name from the attendee list.
func (s *Store) RemoveAttendee(ctx context.Context, id, name string) error {
	return s.updateAttendees(ctx, id, func(names []string) []string {
		return slices.DeleteFunc(names, func(n string) bool { return n == name })
	})
}

func (s *Store) updateAttendees(ctx context.Context, id string, fn func([]string) []string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var raw string
	err = tx.GetContext(ctx, &raw, `SELECT attendees FROM classes WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	names, err := decodeAttendees(raw)
	if err != nil {
		return err
	}
	updated, err := encodeAttendees(fn(names))
	if err != nil {
		return err
	}
	if updated != raw {
		if _, err := tx.ExecContext(ctx, `UPDATE classes SET attendees = ? WHERE id = ?`, updated, id); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.publish(ctx)
	return nil
}

// EnsureGenerated inserts a class generated from a recurring rule or an
// imported timetable. Each origin is materialized at most once, so a
// generated class the administrator deleted stays deleted. It reports
// whether a class was inserted.
func (s *Store) EnsureGenerated(ctx context.Context, c model.Class) (bool, error) {
	if c.Origin == "" {
		return false, errors.New("store: generated class has no origin")
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO generated_origins (origin, class_id, generated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(origin) DO NOTHING
	`, c.Origin, c.ID, s.opts.Now().UnixMilli())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if err := s.insert(ctx, tx, c); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	s.publish(ctx)
	return true, nil
}

// Snapshot returns the latest snapshot, reading the table on first use.
func (s *Store) Snapshot(ctx context.Context) (model.Snapshot, error) {
	if snap, ok := s.hub.Latest(); ok {
		return snap, nil
	}
	return s.refresh(ctx)
}

// Subscribe delivers the current snapshot and then one per change until ctx
// is done.
func (s *Store) Subscribe(ctx context.Context) (<-chan model.Snapshot, error) {
	if _, err := s.Snapshot(ctx); err != nil {
		return nil, err
	}
	return s.hub.Subscribe(ctx), nil
}

func (s *Store) refresh(ctx context.Context) (model.Snapshot, error) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	classes, err := s.List(ctx)
	if err != nil {
		return model.Snapshot{}, err
	}
	s.version++
	snap := model.Snapshot{Version: s.version, Classes: classes, At: s.opts.Now()}
	s.hub.Publish(snap)
	appLog.Debug("store: snapshot published", "version", snap.Version, "classes", len(classes))
	return snap, nil
}

// publish pushes a fresh snapshot after a successful mutation. The mutation
// has already been committed, so a failure here is logged, not returned;
// the next change publishes again.
func (s *Store) publish(ctx context.Context) {
	if _, err := s.refresh(context.WithoutCancel(ctx)); err != nil {
		appLog.Error("store: publishing snapshot failed", err)
	}
}
