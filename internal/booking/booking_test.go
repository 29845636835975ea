package booking

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classcal/internal/model"
	"classcal/internal/store"
)

var testNow = time.Date(2025, time.November, 1, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "classes.db"), store.Options{
		DefaultLocation: "Studio A",
		Now:             func() time.Time { return testNow },
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st, func() time.Time { return testNow }), st
}

func TestScheduleValidatesAndTrims(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t)

	_, err := svc.Schedule(ctx, time.Time{}, "Studio A")
	assert.ErrorIs(t, err, ErrMissingFields)
	_, err = svc.Schedule(ctx, testNow, "   ")
	assert.ErrorIs(t, err, ErrMissingFields)

	start := time.Date(2025, time.November, 3, 18, 0, 0, 0, time.UTC)
	res, err := svc.Schedule(ctx, start, "  Lakeside Pavilion ")
	require.NoError(t, err)
	assert.Equal(t, "New class scheduled successfully at Lakeside Pavilion.", res.Message)
	assert.NotEmpty(t, res.Class.ID)

	got, err := st.Get(ctx, res.Class.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lakeside Pavilion", got.Location)
	assert.False(t, got.IsCanceled)
	assert.Empty(t, got.Attendees)
	assert.True(t, got.CreatedAt.Equal(testNow))
}

func TestToggleCancelAndDelete(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t)
	res, err := svc.Schedule(ctx, testNow.Add(48*time.Hour), "Studio A")
	require.NoError(t, err)
	id := res.Class.ID

	res, err = svc.ToggleCancel(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Class at Studio A has been CANCELED.", res.Message)
	assert.True(t, res.Class.IsCanceled)

	res, err = svc.ToggleCancel(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Class at Studio A has been RE-ACTIVATED.", res.Message)

	res, err = svc.Delete(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Class successfully deleted.", res.Message)

	_, err = st.Get(ctx, id)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.ToggleCancel(ctx, id)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = svc.Delete(ctx, id)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSignUpAndRemove(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t)
	res, err := svc.Schedule(ctx, testNow.Add(48*time.Hour), "Studio A")
	require.NoError(t, err)
	id := res.Class.ID

	_, err = svc.SignUp(ctx, id, "  ")
	assert.ErrorIs(t, err, ErrMissingName)

	res, err = svc.SignUp(ctx, id, " Jane ")
	require.NoError(t, err)
	assert.Equal(t, "Jane, you are successfully signed up for the class at Studio A!", res.Message)
	assert.Equal(t, []string{"Jane"}, res.Class.Attendees)
	assert.True(t, IsRegistered(res.Class, "Jane "))

	_, err = svc.SignUp(ctx, id, "Jane")
	assert.ErrorIs(t, err, ErrAlreadySignedUp)

	res, err = svc.RemoveAttendee(ctx, id, "Jane")
	require.NoError(t, err)
	assert.Equal(t, "Jane has been successfully removed from the class.", res.Message)

	got, err := st.Get(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, got.Attendees)

	_, err = svc.SignUp(ctx, "missing", "Jane")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// staleStore serves a snapshot taken before a concurrent sign-up landed.
type staleStore struct {
	*store.Store
	stale model.Snapshot
}

func (s staleStore) Snapshot(context.Context) (model.Snapshot, error) {
	return s.stale, nil
}

func TestSignUpReturnsStoredAttendees(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t)
	res, err := svc.Schedule(ctx, testNow.Add(48*time.Hour), "Studio A")
	require.NoError(t, err)
	id := res.Class.ID

	stale, err := st.Snapshot(ctx)
	require.NoError(t, err)
	require.NoError(t, st.AddAttendee(ctx, id, "Jane"))

	racing := New(staleStore{Store: st, stale: stale}, func() time.Time { return testNow })
	res, err = racing.SignUp(ctx, id, "Jane")
	require.NoError(t, err)
	assert.Equal(t, []string{"Jane"}, res.Class.Attendees)
}

type failingStore struct {
	Store
	err error
}

func (f failingStore) Snapshot(context.Context) (model.Snapshot, error) {
	return model.Snapshot{}, nil
}

func (f failingStore) Create(context.Context, model.Class) error { return f.err }

func (f failingStore) AddAttendee(context.Context, string, string) error { return f.err }

func TestStoreFailuresAreWrapped(t *testing.T) {
	boom := errors.New("disk full")
	svc := New(failingStore{err: boom}, nil)

	_, err := svc.Schedule(context.Background(), testNow, "Studio A")
	assert.ErrorIs(t, err, boom)

	_, err = svc.SignUp(context.Background(), "id", "Jane")
	assert.ErrorIs(t, err, boom)
}
