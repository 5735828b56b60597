package main

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/api/calendar/v3"
)

type fakeProvider struct {
	mu sync.Mutex

	initErr    error
	sessionErr error
	signInErr  error
	signOutErr error
	addErr     error
	updateErr  error
	deleteErr  error
	listErr    error

	session  bool
	signInOK bool
	nextID   string
	listed   []*calendar.Event

	initCalls    atomic.Int32
	sessionCalls atomic.Int32
	signInCalls  atomic.Int32
	signOutCalls atomic.Int32
	eventCalls   atomic.Int32

	added      []*calendar.Event
	stored     []*calendar.Event
	updated    map[string]*calendar.Event
	deleted    []string
	calendarID string
	authCode   string
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Init(ctx context.Context) error {
	f.initCalls.Add(1)
	time.Sleep(time.Millisecond)
	return f.initErr
}

func (f *fakeProvider) SessionActive(ctx context.Context) (bool, error) {
	f.sessionCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session, f.sessionErr
}

func (f *fakeProvider) SignIn(ctx context.Context) (bool, error) {
	f.signInCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signInErr != nil {
		return false, f.signInErr
	}
	f.session = f.signInOK
	return f.signInOK, nil
}

func (f *fakeProvider) SignOut(ctx context.Context) error {
	f.signOutCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session = false
	return f.signOutErr
}

func (f *fakeProvider) AddEvent(ctx context.Context, calendarID string, event *calendar.Event) (string, error) {
	f.eventCalls.Add(1)
	f.calendarID = calendarID
	if f.addErr != nil {
		return "", f.addErr
	}
	f.added = append(f.added, event)
	created := *event
	created.Id = f.nextID
	f.stored = append(f.stored, &created)
	return f.nextID, nil
}

func (f *fakeProvider) UpdateEvent(ctx context.Context, calendarID, eventID string, event *calendar.Event) error {
	f.eventCalls.Add(1)
	if f.updateErr != nil {
		return f.updateErr
	}
	if f.updated == nil {
		f.updated = make(map[string]*calendar.Event)
	}
	f.updated[eventID] = event
	return nil
}

func (f *fakeProvider) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	f.eventCalls.Add(1)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, eventID)
	return nil
}

func (f *fakeProvider) ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time) ([]*calendar.Event, error) {
	f.eventCalls.Add(1)
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append(append([]*calendar.Event{}, f.listed...), f.stored...), nil
}

func (f *fakeProvider) AuthURL(state string) string {
	return "https://accounts.example.com/auth?state=" + state
}

func (f *fakeProvider) CompleteAuth(ctx context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code != f.authCode {
		return errors.New("bad code")
	}
	f.session = true
	return nil
}

type memStorage struct {
	mu      sync.Mutex
	values  map[string]string
	failSet bool
	failDel bool
}

func newMemStorage() *memStorage {
	return &memStorage{values: make(map[string]string)}
}

func (m *memStorage) Get(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

func (m *memStorage) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet {
		return errors.New("storage full")
	}
	m.values[key] = value
	return nil
}

func (m *memStorage) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	if m.failDel {
		return errors.New("storage locked")
	}
	return nil
}

func quietLogger() log.FieldLogger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}

var testLocation = time.FixedZone("Test", -5*60*60)

func newTestService(provider *fakeProvider, store *memStorage) *CalendarService {
	svc := NewCalendarService(provider, store, "primary", testLocation, quietLogger())
	svc.now = func() time.Time { return time.Date(2024, time.March, 5, 9, 0, 0, 0, testLocation) }
	return svc
}

// connectedService returns a service that has signed in successfully.
func connectedService(t *testing.T) (*CalendarService, *fakeProvider, *memStorage) {
	t.Helper()
	provider := &fakeProvider{signInOK: true, nextID: "evt-1"}
	store := newMemStorage()
	svc := newTestService(provider, store)
	if !svc.SignIn(context.Background()) {
		t.Fatal("SignIn() = false")
	}
	return svc, provider, store
}

func TestInitializeIsIdempotent(t *testing.T) {
	provider := &fakeProvider{}
	svc := newTestService(provider, newMemStorage())

	svc.Initialize(context.Background())
	svc.Initialize(context.Background())

	if got := provider.initCalls.Load(); got != 1 {
		t.Errorf("Init called %d times, want 1", got)
	}
	if got := provider.sessionCalls.Load(); got != 1 {
		t.Errorf("SessionActive called %d times, want 1", got)
	}
}

func TestInitializeConcurrentCallers(t *testing.T) {
	provider := &fakeProvider{}
	svc := newTestService(provider, newMemStorage())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Initialize(context.Background())
		}()
	}
	wg.Wait()

	if got := provider.initCalls.Load(); got != 1 {
		t.Errorf("Init called %d times, want 1", got)
	}
	if !svc.initialized.Load() {
		t.Error("service not initialized")
	}
}

func TestInitializeFailureStillMarksInitialized(t *testing.T) {
	provider := &fakeProvider{initErr: errors.New("script failed to load")}
	svc := newTestService(provider, newMemStorage())

	svc.Initialize(context.Background())
	svc.Initialize(context.Background())

	if !svc.initialized.Load() {
		t.Error("initialized = false after failed init")
	}
	if svc.loaded.Load() {
		t.Error("loaded = true after failed init")
	}
	if got := provider.initCalls.Load(); got != 1 {
		t.Errorf("Init called %d times, want 1", got)
	}
	if svc.SignIn(context.Background()) {
		t.Error("SignIn() = true without a loaded client")
	}
	if got := provider.signInCalls.Load(); got != 0 {
		t.Errorf("provider SignIn called %d times, want 0", got)
	}
}

func TestInitializePicksUpExistingSession(t *testing.T) {
	provider := &fakeProvider{session: true}
	store := newMemStorage()
	store.values[connectedKey] = "true"
	svc := newTestService(provider, store)

	svc.Initialize(context.Background())
	if !svc.IsConnected() {
		t.Error("IsConnected() = false with an existing session and marker")
	}
}

func TestSignInPersistsMarker(t *testing.T) {
	svc, provider, store := connectedService(t)

	if store.values[connectedKey] != "true" {
		t.Errorf("marker = %q, want true", store.values[connectedKey])
	}
	if !svc.IsConnected() {
		t.Error("IsConnected() = false after sign in")
	}
	if got := provider.signInCalls.Load(); got != 1 {
		t.Errorf("provider SignIn called %d times, want 1", got)
	}
}

func TestSignInReusesActiveSession(t *testing.T) {
	provider := &fakeProvider{session: true}
	store := newMemStorage()
	svc := newTestService(provider, store)

	if !svc.SignIn(context.Background()) {
		t.Fatal("SignIn() = false")
	}
	if got := provider.signInCalls.Load(); got != 0 {
		t.Errorf("provider SignIn called %d times, want 0", got)
	}
	if store.values[connectedKey] != "true" {
		t.Error("marker not persisted")
	}
}

func TestSignInFailures(t *testing.T) {
	tests := []struct {
		name     string
		provider *fakeProvider
		store    *memStorage
	}{
		{"provider error", &fakeProvider{signInErr: errors.New("popup closed")}, newMemStorage()},
		{"user declined", &fakeProvider{signInOK: false}, newMemStorage()},
		{"marker write fails", &fakeProvider{signInOK: true}, &memStorage{values: map[string]string{}, failSet: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(tt.provider, tt.store)
			if svc.SignIn(context.Background()) {
				t.Error("SignIn() = true")
			}
			if svc.IsConnected() {
				t.Error("IsConnected() = true after failed sign in")
			}
			if tt.store.values[connectedKey] != "" {
				t.Error("marker persisted after failed sign in")
			}
		})
	}
}

func TestSignOutClearsStateEvenOnFailure(t *testing.T) {
	svc, provider, store := connectedService(t)
	provider.signOutErr = errors.New("network down")

	svc.SignOut(context.Background())

	if svc.IsConnected() {
		t.Error("IsConnected() = true after sign out")
	}
	if _, ok := store.values[connectedKey]; ok {
		t.Error("marker still present after sign out")
	}
	if got := provider.signOutCalls.Load(); got != 1 {
		t.Errorf("provider SignOut called %d times, want 1", got)
	}
}

func TestSignOutWhenStorageFails(t *testing.T) {
	svc, _, store := connectedService(t)
	store.failDel = true

	svc.SignOut(context.Background())
	if svc.IsConnected() {
		t.Error("IsConnected() = true after sign out")
	}
}

func TestSignOutWithoutLoadedClient(t *testing.T) {
	provider := &fakeProvider{initErr: errors.New("no client")}
	store := newMemStorage()
	store.values[connectedKey] = "true"
	svc := newTestService(provider, store)

	svc.SignOut(context.Background())

	if got := provider.signOutCalls.Load(); got != 0 {
		t.Errorf("provider SignOut called %d times, want 0", got)
	}
	if _, ok := store.values[connectedKey]; ok {
		t.Error("marker still present after sign out")
	}
}

func TestIsConnectedRequiresBothFlags(t *testing.T) {
	tests := []struct {
		signedIn bool
		marker   string
		want     bool
	}{
		{false, "", false},
		{false, "true", false},
		{true, "", false},
		{true, "false", false},
		{true, "true", true},
	}

	for _, tt := range tests {
		provider := &fakeProvider{}
		store := newMemStorage()
		if tt.marker != "" {
			store.values[connectedKey] = tt.marker
		}
		svc := newTestService(provider, store)
		svc.signedIn.Store(tt.signedIn)

		if got := svc.IsConnected(); got != tt.want {
			t.Errorf("IsConnected() signedIn=%v marker=%q = %v, want %v", tt.signedIn, tt.marker, got, tt.want)
		}
		if provider.sessionCalls.Load() != 0 || provider.eventCalls.Load() != 0 {
			t.Error("IsConnected() called the provider")
		}
	}
}

func TestOperationsWhenNotConnected(t *testing.T) {
	provider := &fakeProvider{nextID: "evt-1"}
	svc := newTestService(provider, newMemStorage())
	ctx := context.Background()
	start := time.Date(2024, time.March, 5, 10, 0, 0, 0, testLocation)
	event := Event{Title: "Standup", StartTime: start, EndTime: start.Add(time.Hour)}

	if id, ok := svc.CreateEvent(ctx, event); ok || id != "" {
		t.Errorf("CreateEvent() = %q, %v; want \"\", false", id, ok)
	}
	if svc.UpdateEvent(ctx, "evt-1", event) {
		t.Error("UpdateEvent() = true")
	}
	if svc.DeleteEvent(ctx, "evt-1") {
		t.Error("DeleteEvent() = true")
	}
	events := svc.ListEvents(ctx, start, start.Add(24*time.Hour))
	if events == nil || len(events) != 0 {
		t.Errorf("ListEvents() = %#v, want empty non-nil slice", events)
	}
	if id, ok := svc.CreateTaskEvent(ctx, Task{ID: "t-1", Title: "x"}); ok || id != "" {
		t.Errorf("CreateTaskEvent() = %q, %v; want \"\", false", id, ok)
	}

	if got := provider.eventCalls.Load(); got != 0 {
		t.Errorf("provider event calls = %d, want 0", got)
	}
}

func TestMissingEventIDFailsWithoutProviderCall(t *testing.T) {
	svc, provider, _ := connectedService(t)
	ctx := context.Background()
	start := time.Date(2024, time.March, 5, 10, 0, 0, 0, testLocation)

	if svc.UpdateEvent(ctx, "", Event{Title: "x", StartTime: start, EndTime: start.Add(time.Hour)}) {
		t.Error("UpdateEvent(\"\") = true")
	}
	if svc.DeleteEvent(ctx, "") {
		t.Error("DeleteEvent(\"\") = true")
	}
	if got := provider.eventCalls.Load(); got != 0 {
		t.Errorf("provider event calls = %d, want 0", got)
	}
}

func TestCreateEventMapping(t *testing.T) {
	svc, provider, _ := connectedService(t)
	start := time.Date(2024, time.March, 5, 15, 0, 0, 0, time.UTC)

	id, ok := svc.CreateEvent(context.Background(), Event{
		Title:       "Review",
		Description: "PR 42",
		StartTime:   start,
		EndTime:     start.Add(30 * time.Minute),
		Reminder:    &Reminder{Minutes: 10},
		TaskID:      "t-9",
	})
	if !ok || id != "evt-1" {
		t.Fatalf("CreateEvent() = %q, %v", id, ok)
	}
	if provider.calendarID != "primary" {
		t.Errorf("calendar ID = %q, want primary", provider.calendarID)
	}

	remote := provider.added[0]
	if remote.Summary != "Review" || remote.Description != "PR 42" {
		t.Errorf("summary/description = %q/%q", remote.Summary, remote.Description)
	}
	if remote.Start.DateTime != "2024-03-05T10:00:00-05:00" {
		t.Errorf("start = %q", remote.Start.DateTime)
	}
	if remote.End.DateTime != "2024-03-05T10:30:00-05:00" {
		t.Errorf("end = %q", remote.End.DateTime)
	}
	if remote.Start.TimeZone != "Test" || remote.End.TimeZone != "Test" {
		t.Errorf("time zones = %q/%q", remote.Start.TimeZone, remote.End.TimeZone)
	}

	if remote.Reminders.UseDefault {
		t.Error("UseDefault = true")
	}
	if len(remote.Reminders.Overrides) != 2 {
		t.Fatalf("overrides = %d, want 2", len(remote.Reminders.Overrides))
	}
	methods := map[string]int64{}
	for _, o := range remote.Reminders.Overrides {
		methods[o.Method] = o.Minutes
	}
	if methods["popup"] != 10 || methods["email"] != 10 {
		t.Errorf("overrides = %v, want popup and email at 10", methods)
	}

	private := remote.ExtendedProperties.Private
	if private["taskflowTaskId"] != "t-9" || private["source"] != "taskflow" {
		t.Errorf("private props = %v", private)
	}
}

func TestCreateEventWithoutReminder(t *testing.T) {
	svc, provider, _ := connectedService(t)
	start := time.Date(2024, time.March, 5, 15, 0, 0, 0, time.UTC)

	if _, ok := svc.CreateEvent(context.Background(), Event{Title: "x", StartTime: start, EndTime: start.Add(time.Hour)}); !ok {
		t.Fatal("CreateEvent() = false")
	}
	remote := provider.added[0]
	if remote.Reminders.UseDefault || len(remote.Reminders.Overrides) != 0 {
		t.Errorf("reminders = %+v, want no defaults and no overrides", remote.Reminders)
	}
	if remote.ExtendedProperties.Private["source"] != "taskflow" {
		t.Error("created event not tagged")
	}
}

func TestCreateEventRejectsInvalidWindow(t *testing.T) {
	svc, provider, _ := connectedService(t)
	start := time.Date(2024, time.March, 5, 15, 0, 0, 0, time.UTC)

	if _, ok := svc.CreateEvent(context.Background(), Event{Title: "x", StartTime: start, EndTime: start}); ok {
		t.Error("CreateEvent() = true for zero-length event")
	}
	if got := provider.eventCalls.Load(); got != 0 {
		t.Errorf("provider event calls = %d, want 0", got)
	}
}

func TestCreateEventProviderError(t *testing.T) {
	svc, provider, _ := connectedService(t)
	provider.addErr = errors.New("quota exceeded")
	start := time.Date(2024, time.March, 5, 15, 0, 0, 0, time.UTC)

	if id, ok := svc.CreateEvent(context.Background(), Event{Title: "x", StartTime: start, EndTime: start.Add(time.Hour)}); ok || id != "" {
		t.Errorf("CreateEvent() = %q, %v; want \"\", false", id, ok)
	}
}

func TestUpdateEventIsNotTagged(t *testing.T) {
	svc, provider, _ := connectedService(t)
	start := time.Date(2024, time.March, 5, 15, 0, 0, 0, time.UTC)

	ok := svc.UpdateEvent(context.Background(), "evt-7", Event{
		Title:     "Moved",
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Reminder:  &Reminder{Minutes: 5},
	})
	if !ok {
		t.Fatal("UpdateEvent() = false")
	}
	remote := provider.updated["evt-7"]
	if remote == nil {
		t.Fatal("event not sent to provider")
	}
	if remote.ExtendedProperties != nil {
		t.Errorf("update carries extended properties: %+v", remote.ExtendedProperties)
	}
	if remote.Summary != "Moved" || len(remote.Reminders.Overrides) != 2 {
		t.Errorf("update mapping = %+v", remote)
	}

	provider.updateErr = errors.New("not found")
	if svc.UpdateEvent(context.Background(), "evt-7", Event{Title: "x", StartTime: start, EndTime: start.Add(time.Hour)}) {
		t.Error("UpdateEvent() = true on provider error")
	}
}

func TestDeleteEvent(t *testing.T) {
	svc, provider, _ := connectedService(t)

	if !svc.DeleteEvent(context.Background(), "evt-3") {
		t.Fatal("DeleteEvent() = false")
	}
	if len(provider.deleted) != 1 || provider.deleted[0] != "evt-3" {
		t.Errorf("deleted = %v", provider.deleted)
	}

	provider.deleteErr = errors.New("gone")
	if svc.DeleteEvent(context.Background(), "evt-4") {
		t.Error("DeleteEvent() = true on provider error")
	}
}

func TestListEventsMapping(t *testing.T) {
	svc, provider, _ := connectedService(t)
	provider.listed = []*calendar.Event{
		{
			Id:          "a",
			Summary:     "📝 Write report",
			Description: "TaskFlow Task",
			Start:       &calendar.EventDateTime{DateTime: "2024-03-05T14:30:00-05:00"},
			End:         &calendar.EventDateTime{DateTime: "2024-03-05T15:30:00-05:00"},
			Reminders: &calendar.EventReminders{Overrides: []*calendar.EventReminder{
				{Method: "popup", Minutes: 15},
				{Method: "email", Minutes: 15},
			}},
			ExtendedProperties: &calendar.EventExtendedProperties{Private: map[string]string{
				"taskflowTaskId": "t-1",
				"source":         "taskflow",
			}},
		},
		{
			Id:    "b",
			Start: &calendar.EventDateTime{Date: "2024-03-06"},
			End:   &calendar.EventDateTime{Date: "2024-03-07"},
		},
		{
			Id:      "broken",
			Summary: "no times",
		},
	}

	from := time.Date(2024, time.March, 5, 0, 0, 0, 0, testLocation)
	events := svc.ListEvents(context.Background(), from, from.Add(72*time.Hour))
	if len(events) != 2 {
		t.Fatalf("ListEvents() returned %d events, want 2", len(events))
	}

	first := events[0]
	if first.ID != "a" || first.Title != "📝 Write report" || first.TaskID != "t-1" || first.Source != "taskflow" {
		t.Errorf("first event = %+v", first)
	}
	if first.Reminder == nil || first.Reminder.Minutes != 15 {
		t.Errorf("first reminder = %+v", first.Reminder)
	}
	if first.Duration() != time.Hour {
		t.Errorf("first duration = %v", first.Duration())
	}

	second := events[1]
	if second.Title != "Untitled" {
		t.Errorf("second title = %q, want Untitled", second.Title)
	}
	if second.TaskID != "" || second.Reminder != nil {
		t.Errorf("second event = %+v", second)
	}
	wantStart := time.Date(2024, time.March, 6, 0, 0, 0, 0, testLocation)
	if !second.StartTime.Equal(wantStart) {
		t.Errorf("all-day start = %v, want %v", second.StartTime, wantStart)
	}
}

func TestListEventsReturnsEmptyOnError(t *testing.T) {
	svc, provider, _ := connectedService(t)
	provider.listErr = errors.New("backend unavailable")
	from := time.Date(2024, time.March, 5, 0, 0, 0, 0, testLocation)

	events := svc.ListEvents(context.Background(), from, from.Add(24*time.Hour))
	if events == nil || len(events) != 0 {
		t.Errorf("ListEvents() = %#v, want empty non-nil slice", events)
	}
}

func TestListEventsRejectsEmptyWindow(t *testing.T) {
	svc, provider, _ := connectedService(t)
	calls := provider.eventCalls.Load()
	from := time.Date(2024, time.March, 5, 0, 0, 0, 0, testLocation)

	if events := svc.ListEvents(context.Background(), from, from); len(events) != 0 {
		t.Errorf("ListEvents() = %v, want empty", events)
	}
	if provider.eventCalls.Load() != calls {
		t.Error("provider called for an empty window")
	}
}

func TestCreateTaskEvent(t *testing.T) {
	svc, provider, _ := connectedService(t)

	id, ok := svc.CreateTaskEvent(context.Background(), Task{
		ID:       "t-1",
		Title:    "Write report",
		Emoji:    "📝",
		Category: "Work",
		Priority: "high",
		Time:     "2:30 PM",
	})
	if !ok || id != "evt-1" {
		t.Fatalf("CreateTaskEvent() = %q, %v", id, ok)
	}

	remote := provider.added[0]
	if remote.Start.DateTime != "2024-03-05T14:30:00-05:00" || remote.End.DateTime != "2024-03-05T15:30:00-05:00" {
		t.Errorf("start/end = %s/%s", remote.Start.DateTime, remote.End.DateTime)
	}
	for _, o := range remote.Reminders.Overrides {
		if o.Minutes != 15 {
			t.Errorf("%s reminder = %d, want 15", o.Method, o.Minutes)
		}
	}
	if remote.ExtendedProperties.Private["taskflowTaskId"] != "t-1" {
		t.Errorf("task id = %q", remote.ExtendedProperties.Private["taskflowTaskId"])
	}
}

func TestCreatedEventListsWithTaskID(t *testing.T) {
	svc, _, _ := connectedService(t)
	ctx := context.Background()

	id, ok := svc.CreateTaskEvent(ctx, Task{ID: "t-7", Title: "Plan sprint", Emoji: "🗓", Time: "10:00 AM"})
	if !ok {
		t.Fatal("CreateTaskEvent() = false")
	}

	from := time.Date(2024, time.March, 5, 0, 0, 0, 0, testLocation)
	events := svc.ListEvents(ctx, from, from.Add(24*time.Hour))
	if len(events) != 1 {
		t.Fatalf("ListEvents() returned %d events, want 1", len(events))
	}
	got := events[0]
	if got.ID != id || got.TaskID != "t-7" || got.Source != sourceTaskflow {
		t.Errorf("listed event = %+v", got)
	}
	if !got.StartTime.Equal(time.Date(2024, time.March, 5, 10, 0, 0, 0, testLocation)) || got.Duration() != time.Hour {
		t.Errorf("listed window = %v + %v", got.StartTime, got.Duration())
	}
	if got.Reminder == nil || got.Reminder.Minutes != 15 {
		t.Errorf("listed reminder = %+v", got.Reminder)
	}
}

func TestCreateTaskEventStartsNowWithoutTime(t *testing.T) {
	svc, provider, _ := connectedService(t)

	if _, ok := svc.CreateTaskEvent(context.Background(), Task{ID: "t-2", Title: "Call"}); !ok {
		t.Fatal("CreateTaskEvent() = false")
	}
	if got := provider.added[0].Start.DateTime; got != "2024-03-05T09:00:00-05:00" {
		t.Errorf("start = %s, want the service clock", got)
	}
}

func TestCreateTaskEventMalformedTime(t *testing.T) {
	svc, provider, _ := connectedService(t)

	if _, ok := svc.CreateTaskEvent(context.Background(), Task{ID: "t-3", Title: "x", Time: "25:00 PM"}); ok {
		t.Error("CreateTaskEvent() = true for malformed time")
	}
	if got := provider.eventCalls.Load(); got != 0 {
		t.Errorf("provider event calls = %d, want 0", got)
	}
}

func TestStaleMarkerIsRevalidated(t *testing.T) {
	svc, provider, _ := connectedService(t)

	// Session expired remotely; the marker is still set.
	provider.mu.Lock()
	provider.session = false
	provider.mu.Unlock()

	start := time.Date(2024, time.March, 5, 15, 0, 0, 0, time.UTC)
	if _, ok := svc.CreateEvent(context.Background(), Event{Title: "x", StartTime: start, EndTime: start.Add(time.Hour)}); ok {
		t.Error("CreateEvent() = true with an expired session")
	}
	if got := provider.eventCalls.Load(); got != 0 {
		t.Errorf("provider event calls = %d, want 0", got)
	}
	if svc.IsConnected() {
		t.Error("IsConnected() = true after session check failed")
	}
}

func TestWebSignIn(t *testing.T) {
	provider := &fakeProvider{authCode: "good"}
	store := newMemStorage()
	svc := newTestService(provider, store)
	ctx := context.Background()

	authURL, ok := svc.AuthURL(ctx, "state-1")
	if !ok || authURL != "https://accounts.example.com/auth?state=state-1" {
		t.Fatalf("AuthURL() = %q, %v", authURL, ok)
	}

	if svc.CompleteSignIn(ctx, "bad") {
		t.Error("CompleteSignIn() = true for a bad code")
	}
	if !svc.CompleteSignIn(ctx, "good") {
		t.Fatal("CompleteSignIn() = false")
	}
	if !svc.IsConnected() || store.values[connectedKey] != "true" {
		t.Error("not connected after web sign in")
	}
}
