package main

import (
	"context"
	"errors"
	"time"

	"google.golang.org/api/calendar/v3"
)

// CalendarProvider is the remote calendar client. Events travel in the
// Google Calendar wire shape regardless of the backend.
type CalendarProvider interface {
	Name() string
	// Init loads and configures the client. Calling it again is a no-op.
	Init(ctx context.Context) error
	// SessionActive reports whether an authenticated session already exists,
	// without prompting the user.
	SessionActive(ctx context.Context) (bool, error)
	// SignIn runs the interactive login.
	SignIn(ctx context.Context) (bool, error)
	SignOut(ctx context.Context) error

	AddEvent(ctx context.Context, calendarID string, event *calendar.Event) (string, error)
	UpdateEvent(ctx context.Context, calendarID, eventID string, event *calendar.Event) error
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
	// ListEvents expands recurring events and orders by start time.
	ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time) ([]*calendar.Event, error)
}

// webAuthorizer is implemented by providers whose sign-in can be completed
// through a browser redirect instead of a console prompt.
type webAuthorizer interface {
	AuthURL(state string) string
	CompleteAuth(ctx context.Context, code string) error
}

var ErrInvalidEventWindow = errors.New("event end time must be after start time")

type Reminder struct {
	Minutes int
}

type Event struct {
	ID          string
	Title       string
	Description string
	StartTime   time.Time
	EndTime     time.Time
	Reminder    *Reminder
	TaskID      string
	// Source is the provenance tag found on listed events.
	Source string
	// SeriesID is set on listed instances of a recurring event.
	SeriesID string
}

func (e Event) Validate() error {
	if !e.EndTime.After(e.StartTime) {
		return ErrInvalidEventWindow
	}
	return nil
}

func (e Event) Duration() time.Duration {
	return e.EndTime.Sub(e.StartTime)
}
