// Package booking implements the mutations visitors and the administrator
// perform on the class collection.
//
// Guards such as "already signed up" are evaluated against the latest
// snapshot and are not atomic with the write that follows: two concurrent
// sign-ups under the same name can both pass the check. The store's
// array-union write keeps the list free of that particular duplicate, but
// nothing here arbitrates between concurrent writers.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	appLog "classcal/internal/log"
	"classcal/internal/model"
)

var (
	ErrMissingFields   = errors.New("booking: date and location are required")
	ErrMissingName     = errors.New("booking: attendee name is required")
	ErrAlreadySignedUp = errors.New("booking: already signed up")
)

// Store is the subset of the class collection the service writes to.
type Store interface {
	Snapshot(ctx context.Context) (model.Snapshot, error)
	Get(ctx context.Context, id string) (model.Class, error)
	Create(ctx context.Context, c model.Class) error
	SetCanceled(ctx context.Context, id string, canceled bool) error
	Delete(ctx context.Context, id string) error
	AddAttendee(ctx context.Context, id, name string) error
	RemoveAttendee(ctx context.Context, id, name string) error
}

// Result describes a successful mutation.
type Result struct {
	// Message is shown to the visitor as confirmation.
	Message string
	Class   model.Class
}

type Service struct {
	store Store
	now   func() time.Time
	newID func() string
}

// New returns a Service writing to store. A nil now defaults to time.Now.
func New(store Store, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		store: store,
		now:   now,
		newID: uuid.NewString,
	}
}

// Schedule creates a new class at start in location. The class starts with
// no attendees and is not canceled.
func (s *Service) Schedule(ctx context.Context, start time.Time, location string) (Result, error) {
	location = strings.TrimSpace(location)
	if start.IsZero() || location == "" {
		return Result{}, ErrMissingFields
	}

	c := model.Class{
		ID:        s.newID(),
		Start:     start,
		Location:  location,
		Attendees: []string{},
		CreatedAt: s.now(),
	}
	if err := s.store.Create(ctx, c); err != nil {
		appLog.Error("booking: adding class failed", err, "start", start.Format(time.RFC3339), "location", location)
		return Result{}, fmt.Errorf("scheduling class: %w", err)
	}

	appLog.Info("booking: class scheduled", "id", c.ID, "start", start.Format(time.RFC3339), "location", location)
	return Result{
		Message: fmt.Sprintf("New class scheduled successfully at %s.", location),
		Class:   c,
	}, nil
}

// ToggleCancel cancels an active class or re-activates a canceled one.
func (s *Service) ToggleCancel(ctx context.Context, id string) (Result, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return Result{}, fmt.Errorf("loading class %s: %w", id, err)
	}

	canceled := !c.IsCanceled
	if err := s.store.SetCanceled(ctx, id, canceled); err != nil {
		appLog.Error("booking: toggling cancel status failed", err, "id", id)
		return Result{}, fmt.Errorf("updating class %s: %w", id, err)
	}
	c.IsCanceled = canceled

	status := "RE-ACTIVATED"
	if canceled {
		status = "CANCELED"
	}
	appLog.Info("booking: class status changed", "id", id, "canceled", canceled)
	return Result{
		Message: fmt.Sprintf("Class at %s has been %s.", c.Location, status),
		Class:   c,
	}, nil
}

// Delete removes a class and its attendee list.
func (s *Service) Delete(ctx context.Context, id string) (Result, error) {
	if err := s.store.Delete(ctx, id); err != nil {
		appLog.Error("booking: deleting class failed", err, "id", id)
		return Result{}, fmt.Errorf("deleting class %s: %w", id, err)
	}
	appLog.Info("booking: class deleted", "id", id)
	return Result{Message: "Class successfully deleted."}, nil
}

// SignUp adds name to the attendees of class id.
func (s *Service) SignUp(ctx context.Context, id, name string) (Result, error) {
	name = strings.TrimSpace(name)
	if id == "" || name == "" {
		return Result{}, ErrMissingName
	}

	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("reading classes: %w", err)
	}
	c, known := snap.Find(id)
	if known && c.HasAttendee(name) {
		return Result{Class: c}, ErrAlreadySignedUp
	}

	if err := s.store.AddAttendee(ctx, id, name); err != nil {
		appLog.Error("booking: signup failed", err, "id", id)
		return Result{}, fmt.Errorf("signing up for class %s: %w", id, err)
	}
	if c, err = s.store.Get(ctx, id); err != nil {
		return Result{}, fmt.Errorf("loading class %s: %w", id, err)
	}

	appLog.Info("booking: attendee signed up", "id", id, "attendees", len(c.Attendees))
	return Result{
		Message: fmt.Sprintf("%s, you are successfully signed up for the class at %s!", name, c.Location),
		Class:   c,
	}, nil
}

// RemoveAttendee takes name off the attendees of class id.
func (s *Service) RemoveAttendee(ctx context.Context, id, name string) (Result, error) {
	name = strings.TrimSpace(name)
	if id == "" || name == "" {
		return Result{}, ErrMissingName
	}
	if err := s.store.RemoveAttendee(ctx, id, name); err != nil {
		appLog.Error("booking: removal failed", err, "id", id)
		return Result{}, fmt.Errorf("removing attendee from class %s: %w", id, err)
	}
	appLog.Info("booking: attendee removed", "id", id)
	return Result{Message: fmt.Sprintf("%s has been successfully removed from the class.", name)}, nil
}

// IsRegistered reports whether name, once trimmed, is on the attendee list.
func IsRegistered(c model.Class, name string) bool {
	name = strings.TrimSpace(name)
	return name != "" && c.HasAttendee(name)
}
