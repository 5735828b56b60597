package main

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/api/calendar/v3"
)

const (
	taskIDProperty = "taskflowTaskId"
	sourceProperty = "source"
	sourceTaskflow = "taskflow"
)

var errNotConnected = errors.New("calendar not connected or client not loaded")

// CalendarService owns the provider lifecycle and the connection state.
// Build one per process and hand it to whatever needs calendar access.
//
// Every operation degrades to a zero result (false, "", empty slice) and
// logs the cause instead of returning an error.
type CalendarService struct {
	provider   CalendarProvider
	store      Storage
	calendarID string
	location   *time.Location
	log        log.FieldLogger
	now        func() time.Time

	initMu      sync.Mutex
	initialized atomic.Bool
	loaded      atomic.Bool
	signedIn    atomic.Bool
}

func NewCalendarService(provider CalendarProvider, store Storage, calendarID string, location *time.Location, logger log.FieldLogger) *CalendarService {
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &CalendarService{
		provider:   provider,
		store:      store,
		calendarID: calendarID,
		location:   location,
		log:        logger.WithField("provider", provider.Name()),
		now:        time.Now,
	}
}

// Initialize configures the provider once and picks up an existing session.
// Failures leave the service initialized but signed out so later calls fail
// fast instead of retrying the setup.
func (s *CalendarService) Initialize(ctx context.Context) {
	if s.initialized.Load() {
		return
	}
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.initialized.Load() {
		return
	}
	defer s.initialized.Store(true)

	if err := s.provider.Init(ctx); err != nil {
		s.log.WithError(err).Error("Failed to initialize calendar service")
		return
	}
	s.loaded.Store(true)

	active, err := s.provider.SessionActive(ctx)
	if err != nil {
		s.log.WithError(err).Error("Failed to initialize calendar service")
		return
	}
	s.signedIn.Store(active)
	s.log.WithField("session", active).Info("Calendar service initialized")
}

func (s *CalendarService) SignIn(ctx context.Context) bool {
	s.Initialize(ctx)
	if !s.loaded.Load() {
		s.log.Error("Calendar sign in failed: calendar client not loaded")
		return false
	}

	active, err := s.provider.SessionActive(ctx)
	if err != nil {
		s.log.WithError(err).Error("Calendar sign in failed")
		return false
	}
	if !active {
		active, err = s.provider.SignIn(ctx)
		if err != nil {
			s.log.WithError(err).Error("Calendar sign in failed")
			return false
		}
	}
	return s.markConnected(active)
}

// AuthURL returns the consent page for providers that sign in through a
// browser redirect.
func (s *CalendarService) AuthURL(ctx context.Context, state string) (string, bool) {
	s.Initialize(ctx)
	authorizer, ok := s.provider.(webAuthorizer)
	if !ok || !s.loaded.Load() {
		return "", false
	}
	return authorizer.AuthURL(state), true
}

// CompleteSignIn finishes a browser sign in with the code from the redirect.
func (s *CalendarService) CompleteSignIn(ctx context.Context, code string) bool {
	s.Initialize(ctx)
	authorizer, ok := s.provider.(webAuthorizer)
	if !ok || !s.loaded.Load() {
		s.log.Error("Calendar sign in failed: provider does not support browser sign in")
		return false
	}
	if err := authorizer.CompleteAuth(ctx, code); err != nil {
		s.log.WithError(err).Error("Calendar sign in failed")
		return false
	}

	active, err := s.provider.SessionActive(ctx)
	if err != nil {
		s.log.WithError(err).Error("Calendar sign in failed")
		return false
	}
	return s.markConnected(active)
}

func (s *CalendarService) markConnected(active bool) bool {
	s.signedIn.Store(active)
	if !active {
		return false
	}
	if err := s.store.Set(connectedKey, "true"); err != nil {
		s.log.WithError(err).Error("Calendar sign in failed")
		return false
	}
	s.log.Info("Calendar connected")
	return true
}

// ProviderName names the backend, e.g. "google" or "caldav".
func (s *CalendarService) ProviderName() string {
	return s.provider.Name()
}

// SignOut always clears both connection flags, even when the remote
// session could not be terminated.
func (s *CalendarService) SignOut(ctx context.Context) {
	s.Initialize(ctx)

	if s.loaded.Load() {
		active, err := s.provider.SessionActive(ctx)
		if err != nil {
			s.log.WithError(err).Warn("Calendar sign out: session check failed")
		}
		if active || err != nil {
			if err := s.provider.SignOut(ctx); err != nil {
				s.log.WithError(err).Error("Calendar sign out failed")
			}
		}
	}

	s.signedIn.Store(false)
	if err := s.store.Remove(connectedKey); err != nil {
		s.log.WithError(err).Error("Calendar sign out failed")
	}
}

// IsConnected is a local check: the session flag and the persisted marker
// must both be set.
func (s *CalendarService) IsConnected() bool {
	if !s.signedIn.Load() {
		return false
	}
	marker, err := s.store.Get(connectedKey)
	if err != nil {
		s.log.WithError(err).Warn("Failed to read connection marker")
		return false
	}
	return marker == "true"
}

// ready gates remote operations. The persisted marker is only a hint, so
// the session is re-validated before it is trusted.
func (s *CalendarService) ready(ctx context.Context) error {
	s.Initialize(ctx)
	if !s.loaded.Load() || !s.IsConnected() {
		return errNotConnected
	}
	active, err := s.provider.SessionActive(ctx)
	if err != nil {
		return err
	}
	if !active {
		s.signedIn.Store(false)
		s.log.Warn("Calendar session is no longer valid")
		return errNotConnected
	}
	return nil
}

// CreateEvent returns the provider-assigned event ID.
func (s *CalendarService) CreateEvent(ctx context.Context, event Event) (string, bool) {
	if err := s.ready(ctx); err != nil {
		s.log.WithError(err).Error("Failed to create calendar event")
		return "", false
	}
	if err := event.Validate(); err != nil {
		s.log.WithError(err).Error("Failed to create calendar event")
		return "", false
	}

	id, err := s.provider.AddEvent(ctx, s.calendarID, s.toRemote(event, true))
	if err != nil {
		s.log.WithError(err).Error("Failed to create calendar event")
		return "", false
	}

	s.log.WithField("event_id", id).Info("Calendar event created")
	return id, true
}

func (s *CalendarService) UpdateEvent(ctx context.Context, eventID string, event Event) bool {
	if eventID == "" {
		s.log.Error("Failed to update calendar event: missing event ID")
		return false
	}
	if err := s.ready(ctx); err != nil {
		s.log.WithError(err).Error("Failed to update calendar event")
		return false
	}
	if err := event.Validate(); err != nil {
		s.log.WithError(err).Error("Failed to update calendar event")
		return false
	}

	if err := s.provider.UpdateEvent(ctx, s.calendarID, eventID, s.toRemote(event, false)); err != nil {
		s.log.WithError(err).WithField("event_id", eventID).Error("Failed to update calendar event")
		return false
	}

	s.log.WithField("event_id", eventID).Info("Calendar event updated")
	return true
}

func (s *CalendarService) DeleteEvent(ctx context.Context, eventID string) bool {
	if eventID == "" {
		s.log.Error("Failed to delete calendar event: missing event ID")
		return false
	}
	if err := s.ready(ctx); err != nil {
		s.log.WithError(err).Error("Failed to delete calendar event")
		return false
	}

	if err := s.provider.DeleteEvent(ctx, s.calendarID, eventID); err != nil {
		s.log.WithError(err).WithField("event_id", eventID).Error("Failed to delete calendar event")
		return false
	}

	s.log.WithField("event_id", eventID).Info("Calendar event deleted")
	return true
}

// ListEvents returns the events in [from, to], recurring events expanded,
// ordered by start time. The result is never nil.
func (s *CalendarService) ListEvents(ctx context.Context, from, to time.Time) []Event {
	events := []Event{}

	if !to.After(from) {
		s.log.WithFields(log.Fields{"from": from, "to": to}).Error("Failed to get calendar events: empty time window")
		return events
	}
	if err := s.ready(ctx); err != nil {
		s.log.WithError(err).Debug("Skipping calendar events")
		return events
	}

	items, err := s.provider.ListEvents(ctx, s.calendarID, from, to)
	if err != nil {
		s.log.WithError(err).Error("Failed to get calendar events")
		return events
	}

	for _, item := range items {
		event, err := s.fromRemote(item)
		if err != nil {
			s.log.WithError(err).WithField("event_id", item.Id).Debug("Skipping invalid event")
			continue
		}
		events = append(events, event)
	}
	return events
}

// CreateTaskEvent mirrors a task as a one hour event with a 15 minute
// reminder, starting at the task's time of day (or now).
func (s *CalendarService) CreateTaskEvent(ctx context.Context, task Task) (string, bool) {
	if !s.IsConnected() {
		return "", false
	}

	start, err := task.startTime(s.now().In(s.location))
	if err != nil {
		s.log.WithError(err).WithField("task_id", task.ID).Error("Failed to create calendar event for task")
		return "", false
	}

	return s.CreateEvent(ctx, task.calendarEvent(start))
}

func (s *CalendarService) toRemote(event Event, tagged bool) *calendar.Event {
	tz := s.location.String()
	remote := &calendar.Event{
		Summary:     event.Title,
		Description: event.Description,
		Start: &calendar.EventDateTime{
			DateTime: event.StartTime.In(s.location).Format(time.RFC3339),
			TimeZone: tz,
		},
		End: &calendar.EventDateTime{
			DateTime: event.EndTime.In(s.location).Format(time.RFC3339),
			TimeZone: tz,
		},
		Reminders: &calendar.EventReminders{
			UseDefault:      false,
			Overrides:       []*calendar.EventReminder{},
			ForceSendFields: []string{"UseDefault", "Overrides"},
		},
	}

	if event.Reminder != nil {
		for _, method := range []string{"popup", "email"} {
			remote.Reminders.Overrides = append(remote.Reminders.Overrides, &calendar.EventReminder{
				Method:          method,
				Minutes:         int64(event.Reminder.Minutes),
				ForceSendFields: []string{"Minutes"},
			})
		}
	}

	if tagged {
		remote.ExtendedProperties = &calendar.EventExtendedProperties{
			Private: map[string]string{
				taskIDProperty: event.TaskID,
				sourceProperty: sourceTaskflow,
			},
		}
	}
	return remote
}

func (s *CalendarService) fromRemote(item *calendar.Event) (Event, error) {
	event := Event{
		ID:          item.Id,
		Title:       item.Summary,
		Description: item.Description,
		SeriesID:    item.RecurringEventId,
	}
	if event.Title == "" {
		event.Title = "Untitled"
	}

	var err error
	if event.StartTime, err = parseEventDateTime(item.Start, s.location); err != nil {
		return event, err
	}
	if event.EndTime, err = parseEventDateTime(item.End, s.location); err != nil {
		return event, err
	}

	if item.Reminders != nil && len(item.Reminders.Overrides) > 0 {
		event.Reminder = &Reminder{Minutes: int(item.Reminders.Overrides[0].Minutes)}
	}
	if item.ExtendedProperties != nil && item.ExtendedProperties.Private != nil {
		event.TaskID = item.ExtendedProperties.Private[taskIDProperty]
		event.Source = item.ExtendedProperties.Private[sourceProperty]
	}
	return event, nil
}

// parseEventDateTime reads a timed value, or an all-day date at midnight in loc.
func parseEventDateTime(dt *calendar.EventDateTime, loc *time.Location) (time.Time, error) {
	if dt == nil {
		return time.Time{}, errors.New("event has no start or end")
	}
	if dt.DateTime != "" {
		return time.Parse(time.RFC3339, dt.DateTime)
	}
	if dt.Date != "" {
		return time.ParseInLocation("2006-01-02", dt.Date, loc)
	}
	return time.Time{}, errors.New("event has no time or date")
}

// calendarChecker is implemented by providers that can confirm the
// configured calendar exists.
type calendarChecker interface {
	CheckCalendar(ctx context.Context, calendarID string) error
}

// CheckCalendar confirms the configured calendar is reachable. Providers
// without a way to check report nil.
func (s *CalendarService) CheckCalendar(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	checker, ok := s.provider.(calendarChecker)
	if !ok {
		return nil
	}
	return checker.CheckCalendar(ctx, s.calendarID)
}
