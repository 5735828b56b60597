package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"
	"google.golang.org/api/calendar/v3"
)

const (
	propTaskID = "X-TASKFLOW-TASK-ID"
	propSource = "X-TASKFLOW-SOURCE"
	productID  = "-//bobuk//taskcal//EN"
)

type CalDAVProvider struct {
	serverURL string
	username  string
	password  string
	location  *time.Location

	httpClient webdav.HTTPClient

	mu      sync.Mutex
	client  *caldav.Client
	primary string
}

func NewCalDAVProvider(server CalDAVConfig, location *time.Location) *CalDAVProvider {
	if location == nil {
		location = time.UTC
	}
	return &CalDAVProvider{
		serverURL:  server.ServerURL,
		username:   server.Username,
		password:   server.Password,
		location:   location,
		httpClient: http.DefaultClient,
	}
}

func (c *CalDAVProvider) Name() string {
	return "caldav"
}

func (c *CalDAVProvider) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return nil
	}

	baseURL, err := url.Parse(c.serverURL)
	if err != nil || baseURL.Scheme == "" || baseURL.Host == "" {
		return fmt.Errorf("invalid CalDAV server URL: %q", c.serverURL)
	}

	httpClient := c.httpClient
	if c.username != "" && c.password != "" {
		httpClient = webdav.HTTPClientWithBasicAuth(httpClient, c.username, c.password)
	}

	client, err := caldav.NewClient(httpClient, baseURL.String())
	if err != nil {
		return fmt.Errorf("failed to create CalDAV client: %w", err)
	}
	c.client = client
	return nil
}

// SessionActive checks that the server accepts the configured credentials.
func (c *CalDAVProvider) SessionActive(ctx context.Context) (bool, error) {
	if c.client == nil {
		return false, errors.New("CalDAV client not initialized")
	}
	if _, err := c.client.FindCurrentUserPrincipal(ctx); err != nil {
		return false, nil
	}
	return true, nil
}

func (c *CalDAVProvider) SignIn(ctx context.Context) (bool, error) {
	if c.client == nil {
		return false, errors.New("CalDAV client not initialized")
	}
	if _, err := c.client.FindCurrentUserPrincipal(ctx); err != nil {
		return false, fmt.Errorf("failed to connect to CalDAV server: %w", err)
	}
	return true, nil
}

// SignOut has nothing to terminate remotely: credentials live in the config.
func (c *CalDAVProvider) SignOut(ctx context.Context) error {
	return nil
}

func (c *CalDAVProvider) AddEvent(ctx context.Context, calendarID string, event *calendar.Event) (string, error) {
	calendarID, err := c.calendarPath(ctx, calendarID)
	if err != nil {
		return "", err
	}
	objectPath, err := eventPath(calendarID, "")
	if err != nil {
		return "", err
	}
	eventUID := uuid.NewString()
	objectPath += eventUID + ".ics"

	cal, err := toICalCalendar(eventUID, event, nil)
	if err != nil {
		return "", err
	}
	if _, err := c.client.PutCalendarObject(ctx, objectPath, cal); err != nil {
		return "", fmt.Errorf("failed to create event: %w", err)
	}
	return eventUID, nil
}

// UpdateEvent replaces the stored object, carrying over the provenance
// properties the update does not send.
func (c *CalDAVProvider) UpdateEvent(ctx context.Context, calendarID, eventID string, event *calendar.Event) error {
	calendarID, err := c.calendarPath(ctx, calendarID)
	if err != nil {
		return err
	}
	objectPath, err := eventPath(calendarID, eventID)
	if err != nil {
		return err
	}

	var keep ical.Props
	if existing, err := c.client.GetCalendarObject(ctx, objectPath); err == nil {
		if comp := firstEvent(existing.Data); comp != nil {
			keep = make(ical.Props)
			for _, name := range []string{propTaskID, propSource} {
				if prop := comp.Props.Get(name); prop != nil {
					keep.Set(prop)
				}
			}
		}
	}

	cal, err := toICalCalendar(eventID, event, keep)
	if err != nil {
		return err
	}
	if _, err := c.client.PutCalendarObject(ctx, objectPath, cal); err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	return nil
}

func (c *CalDAVProvider) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	calendarID, err := c.calendarPath(ctx, calendarID)
	if err != nil {
		return err
	}
	objectPath, err := eventPath(calendarID, eventID)
	if err != nil {
		return err
	}
	if err := c.client.Client.RemoveAll(ctx, objectPath); err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return nil
}

func (c *CalDAVProvider) ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time) ([]*calendar.Event, error) {
	calendarID, err := c.calendarPath(ctx, calendarID)
	if err != nil {
		return nil, err
	}
	calURL, err := url.Parse(calendarID)
	if err != nil {
		return nil, fmt.Errorf("invalid calendar URL: %w", err)
	}

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     ical.CompCalendar,
			AllProps: true,
			AllComps: true,
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompEvent,
				Start: timeMin,
				End:   timeMax,
			}},
		},
	}

	objects, err := c.client.QueryCalendar(ctx, calURL.Path, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	var result []*calendar.Event
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		for _, comp := range obj.Data.Children {
			if comp.Name != ical.CompEvent {
				continue
			}
			instances, err := expandEvent(comp, timeMin, timeMax, c.location)
			if err != nil {
				return nil, err
			}
			result = append(result, instances...)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return eventStart(result[i]).Before(eventStart(result[j]))
	})
	return result, nil
}

// CheckCalendar verifies that calendarID names a calendar in the user's
// calendar home set.
func (c *CalDAVProvider) CheckCalendar(ctx context.Context, calendarID string) error {
	calendarPath, err := c.calendarPath(ctx, calendarID)
	if err != nil {
		return err
	}
	calURL, err := url.Parse(calendarPath)
	if err != nil {
		return fmt.Errorf("invalid calendar URL: %w", err)
	}

	calendars, err := c.findCalendars(ctx)
	if err != nil {
		return err
	}
	want := strings.TrimRight(calURL.Path, "/")
	for _, cal := range calendars {
		if strings.TrimRight(cal.Path, "/") == want {
			return nil
		}
	}
	return fmt.Errorf("calendar not found at path: %s", calURL.Path)
}

// calendarPath resolves "primary" to the first calendar in the home set.
// Other IDs are calendar URLs or paths and pass through unchanged.
func (c *CalDAVProvider) calendarPath(ctx context.Context, calendarID string) (string, error) {
	if c.client == nil {
		return "", errors.New("CalDAV client not initialized")
	}
	if calendarID != "" && calendarID != "primary" {
		return calendarID, nil
	}

	c.mu.Lock()
	primary := c.primary
	c.mu.Unlock()
	if primary != "" {
		return primary, nil
	}

	calendars, err := c.findCalendars(ctx)
	if err != nil {
		return "", err
	}
	for _, cal := range calendars {
		if len(cal.SupportedComponentSet) > 0 && !slices.Contains(cal.SupportedComponentSet, ical.CompEvent) {
			continue
		}
		c.mu.Lock()
		c.primary = cal.Path
		c.mu.Unlock()
		return cal.Path, nil
	}
	return "", errors.New("no event calendar found on CalDAV server")
}

func (c *CalDAVProvider) findCalendars(ctx context.Context) ([]caldav.Calendar, error) {
	principal, err := c.client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find current user principal: %w", err)
	}
	homeSet, err := c.client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("failed to find calendar home set: %w", err)
	}
	calendars, err := c.client.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("failed to find calendars: %w", err)
	}
	return calendars, nil
}

// eventPath returns the object path for eventID inside the calendar
// collection, or the collection path with a trailing slash when eventID is
// empty.
func eventPath(calendarID, eventID string) (string, error) {
	calURL, err := url.Parse(calendarID)
	if err != nil {
		return "", fmt.Errorf("invalid calendar URL: %w", err)
	}
	collection := strings.TrimRight(calURL.Path, "/") + "/"
	if eventID == "" {
		return collection, nil
	}
	return collection + eventID + ".ics", nil
}

func toICalCalendar(eventUID string, event *calendar.Event, keep ical.Props) (*ical.Calendar, error) {
	start, err := parseEventDateTime(event.Start, time.UTC)
	if err != nil {
		return nil, err
	}
	end, err := parseEventDateTime(event.End, time.UTC)
	if err != nil {
		return nil, err
	}

	icalEvent := ical.NewEvent()
	icalEvent.Props.SetText(ical.PropUID, eventUID)
	icalEvent.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	icalEvent.Props.SetText(ical.PropSummary, event.Summary)
	icalEvent.Props.SetText(ical.PropDescription, event.Description)
	icalEvent.Props.SetDateTime(ical.PropDateTimeStart, start.UTC())
	icalEvent.Props.SetDateTime(ical.PropDateTimeEnd, end.UTC())
	icalEvent.Props.SetText(ical.PropStatus, "CONFIRMED")

	for _, props := range keep {
		for i := range props {
			icalEvent.Props.Add(&props[i])
		}
	}
	if event.ExtendedProperties != nil {
		if taskID, ok := event.ExtendedProperties.Private[taskIDProperty]; ok {
			icalEvent.Props.SetText(propTaskID, taskID)
		}
		if source, ok := event.ExtendedProperties.Private[sourceProperty]; ok {
			icalEvent.Props.SetText(propSource, source)
		}
	}

	// popup and email overrides share a lead time; one DISPLAY alarm per
	// distinct lead time is enough.
	if event.Reminders != nil {
		seen := make(map[int64]bool)
		for _, reminder := range event.Reminders.Overrides {
			if seen[reminder.Minutes] {
				continue
			}
			seen[reminder.Minutes] = true

			alarm := ical.NewComponent(ical.CompAlarm)
			alarm.Props.SetText(ical.PropAction, "DISPLAY")
			alarm.Props.SetText(ical.PropDescription, event.Summary)
			trigger := ical.NewProp(ical.PropTrigger)
			trigger.Value = fmt.Sprintf("-PT%dM", reminder.Minutes)
			alarm.Props.Set(trigger)
			icalEvent.Children = append(icalEvent.Children, alarm)
		}
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Children = append(cal.Children, icalEvent.Component)
	return cal, nil
}

// expandEvent converts a VEVENT into one calendar.Event per occurrence in
// [timeMin, timeMax].
func expandEvent(comp *ical.Component, timeMin, timeMax time.Time, loc *time.Location) ([]*calendar.Event, error) {
	base, err := fromICalComponent(comp, loc)
	if err != nil {
		return nil, err
	}

	set, err := comp.RecurrenceSet(loc)
	if err != nil {
		return nil, fmt.Errorf("invalid recurrence for event %s: %w", base.Id, err)
	}
	if set == nil {
		return []*calendar.Event{base}, nil
	}

	duration := eventEnd(base).Sub(eventStart(base))
	var instances []*calendar.Event
	for _, occurrence := range set.Between(timeMin.Add(-duration), timeMax, true) {
		instance := *base
		instance.Id = base.Id + "_" + occurrence.UTC().Format("20060102T150405Z")
		instance.RecurringEventId = base.Id
		instance.Start = &calendar.EventDateTime{DateTime: occurrence.In(loc).Format(time.RFC3339)}
		instance.End = &calendar.EventDateTime{DateTime: occurrence.Add(duration).In(loc).Format(time.RFC3339)}
		instances = append(instances, &instance)
	}
	return instances, nil
}

func fromICalComponent(comp *ical.Component, loc *time.Location) (*calendar.Event, error) {
	event := &calendar.Event{
		Id:          getTextProp(comp.Props, ical.PropUID),
		Summary:     getTextProp(comp.Props, ical.PropSummary),
		Description: getTextProp(comp.Props, ical.PropDescription),
		Status:      strings.ToLower(getTextProp(comp.Props, ical.PropStatus)),
	}
	if event.Status == "" {
		event.Status = "confirmed"
	}

	startProp := comp.Props.Get(ical.PropDateTimeStart)
	if startProp == nil {
		return nil, fmt.Errorf("event %s has no start", event.Id)
	}
	start, err := startProp.DateTime(loc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse start of event %s: %w", event.Id, err)
	}

	end := start.Add(time.Hour)
	if endProp := comp.Props.Get(ical.PropDateTimeEnd); endProp != nil {
		if end, err = endProp.DateTime(loc); err != nil {
			return nil, fmt.Errorf("failed to parse end of event %s: %w", event.Id, err)
		}
	} else if startProp.ValueType() == ical.ValueDate {
		end = start.AddDate(0, 0, 1)
	}

	if startProp.ValueType() == ical.ValueDate {
		event.Start = &calendar.EventDateTime{Date: start.Format("2006-01-02")}
		event.End = &calendar.EventDateTime{Date: end.Format("2006-01-02")}
	} else {
		event.Start = &calendar.EventDateTime{DateTime: start.In(loc).Format(time.RFC3339)}
		event.End = &calendar.EventDateTime{DateTime: end.In(loc).Format(time.RFC3339)}
	}

	private := make(map[string]string)
	if taskID := getTextProp(comp.Props, propTaskID); taskID != "" {
		private[taskIDProperty] = taskID
	}
	if source := getTextProp(comp.Props, propSource); source != "" {
		private[sourceProperty] = source
	}
	if len(private) > 0 {
		event.ExtendedProperties = &calendar.EventExtendedProperties{Private: private}
	}

	for _, child := range comp.Children {
		if child.Name != ical.CompAlarm {
			continue
		}
		minutes, ok := triggerMinutes(getTextProp(child.Props, ical.PropTrigger))
		if !ok {
			continue
		}
		if event.Reminders == nil {
			event.Reminders = &calendar.EventReminders{}
		}
		event.Reminders.Overrides = append(event.Reminders.Overrides, &calendar.EventReminder{
			Method:  "popup",
			Minutes: minutes,
		})
	}

	return event, nil
}

// triggerMinutes understands relative triggers like -PT15M and -PT1H.
func triggerMinutes(trigger string) (int64, bool) {
	rest, ok := strings.CutPrefix(trigger, "-PT")
	if !ok || len(rest) < 2 {
		return 0, false
	}
	n, err := strconv.ParseInt(rest[:len(rest)-1], 10, 64)
	if err != nil {
		return 0, false
	}
	switch rest[len(rest)-1] {
	case 'M':
		return n, true
	case 'H':
		return n * 60, true
	}
	return 0, false
}

func firstEvent(cal *ical.Calendar) *ical.Component {
	if cal == nil {
		return nil
	}
	for _, comp := range cal.Children {
		if comp.Name == ical.CompEvent {
			return comp
		}
	}
	return nil
}

func eventStart(event *calendar.Event) time.Time {
	t, _ := parseEventDateTime(event.Start, time.UTC)
	return t
}

func eventEnd(event *calendar.Event) time.Time {
	t, _ := parseEventDateTime(event.End, time.UTC)
	return t
}

// Helper function to get text property safely
func getTextProp(props ical.Props, name string) string {
	prop := props.Get(name)
	if prop == nil {
		return ""
	}
	if text, err := prop.Text(); err == nil {
		return text
	}
	return prop.Value
}
