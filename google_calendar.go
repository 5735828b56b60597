package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const googleRevokeURL = "https://oauth2.googleapis.com/revoke"

var errNoClientID = errors.New("google client id is not configured")

type GoogleCalendarProvider struct {
	db          *sql.DB
	accountName string
	oauthConfig *oauth2.Config
	apiKey      string

	// Overridable for tests.
	endpoint   string
	revokeURL  string
	httpClient *http.Client
	prompt     func(ctx context.Context, authURL string) (string, error)

	mu      sync.Mutex
	service *calendar.Service
}

func NewGoogleCalendarProvider(db *sql.DB, accountName string, cfg GoogleConfig, prompt func(ctx context.Context, authURL string) (string, error)) *GoogleCalendarProvider {
	return &GoogleCalendarProvider{
		db:          db,
		accountName: accountName,
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{calendar.CalendarScope, calendar.CalendarEventsScope},
		},
		apiKey:    cfg.APIKey,
		revokeURL: googleRevokeURL,
		prompt:    prompt,
	}
}

func (g *GoogleCalendarProvider) Name() string {
	return "google"
}

func (g *GoogleCalendarProvider) Init(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.service != nil {
		return nil
	}
	if g.oauthConfig.ClientID == "" {
		return errNoClientID
	}

	// Tokens come and go with sign in/out, so the transport asks the token
	// store on every request instead of binding one token at build time.
	refreshCtx := context.WithoutCancel(ctx)
	client := &http.Client{
		Transport: &oauth2.Transport{
			Source: tokenSourceFunc(func() (*oauth2.Token, error) { return g.token(refreshCtx) }),
			Base:   g.baseTransport(),
		},
	}

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if g.endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.endpoint))
	}
	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create calendar service: %w", err)
	}
	g.service = service
	return nil
}

func (g *GoogleCalendarProvider) SessionActive(ctx context.Context) (bool, error) {
	stored, err := loadToken(g.db, g.accountName)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if stored.Valid() {
		return true, nil
	}
	if stored.RefreshToken == "" {
		// Expired and cannot be refreshed.
		return false, nil
	}

	token, err := g.token(ctx)
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		// Refresh token expired or revoked.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return token.Valid(), nil
}

func (g *GoogleCalendarProvider) SignIn(ctx context.Context) (bool, error) {
	if g.prompt == nil {
		return false, errors.New("no interactive prompt available for google sign in")
	}
	code, err := g.prompt(ctx, g.AuthURL(uuid.NewString()))
	if err != nil {
		return false, err
	}
	if err := g.CompleteAuth(ctx, code); err != nil {
		return false, err
	}
	return true, nil
}

func (g *GoogleCalendarProvider) AuthURL(state string) string {
	return g.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (g *GoogleCalendarProvider) CompleteAuth(ctx context.Context, code string) error {
	token, err := g.oauthConfig.Exchange(g.oauthContext(ctx), code)
	if err != nil {
		return fmt.Errorf("unable to retrieve token from web: %w", err)
	}
	if err := saveToken(g.db, g.accountName, token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// SignOut revokes the grant at Google and always forgets the local token.
func (g *GoogleCalendarProvider) SignOut(ctx context.Context) error {
	var revokeErr error
	if token, err := loadToken(g.db, g.accountName); err == nil {
		revokeErr = g.revoke(ctx, token)
	}
	if err := deleteToken(g.db, g.accountName); err != nil {
		return errors.Join(revokeErr, fmt.Errorf("failed to delete token: %w", err))
	}
	return revokeErr
}

func (g *GoogleCalendarProvider) revoke(ctx context.Context, token *oauth2.Token) error {
	value := token.RefreshToken
	if value == "" {
		value = token.AccessToken
	}
	form := url.Values{"token": {value}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := g.httpClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("token revocation failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token revocation failed with status %d", resp.StatusCode)
	}
	return nil
}

func (g *GoogleCalendarProvider) AddEvent(ctx context.Context, calendarID string, event *calendar.Event) (string, error) {
	if g.service == nil {
		return "", errors.New("calendar service not initialized")
	}
	createdEvent, err := g.service.Events.Insert(calendarID, event).Context(ctx).Do(g.callOptions()...)
	if err != nil {
		return "", fmt.Errorf("failed to create event: %w", err)
	}
	return createdEvent.Id, nil
}

// UpdateEvent patches the event so fields the caller does not send, such as
// the private provenance properties, survive.
func (g *GoogleCalendarProvider) UpdateEvent(ctx context.Context, calendarID, eventID string, event *calendar.Event) error {
	if g.service == nil {
		return errors.New("calendar service not initialized")
	}
	_, err := g.service.Events.Patch(calendarID, eventID, event).Context(ctx).Do(g.callOptions()...)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	return nil
}

func (g *GoogleCalendarProvider) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	if g.service == nil {
		return errors.New("calendar service not initialized")
	}
	err := g.service.Events.Delete(calendarID, eventID).Context(ctx).Do(g.callOptions()...)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return nil
}

func (g *GoogleCalendarProvider) ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time) ([]*calendar.Event, error) {
	if g.service == nil {
		return nil, errors.New("calendar service not initialized")
	}

	var result []*calendar.Event
	pageToken := ""
	for {
		events, err := g.service.Events.List(calendarID).
			TimeMin(timeMin.Format(time.RFC3339)).
			TimeMax(timeMax.Format(time.RFC3339)).
			SingleEvents(true).
			OrderBy("startTime").
			PageToken(pageToken).
			Context(ctx).
			Do(g.callOptions()...)
		if err != nil {
			return nil, fmt.Errorf("failed to list events: %w", err)
		}
		result = append(result, events.Items...)

		pageToken = events.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return result, nil
}

func (g *GoogleCalendarProvider) callOptions() []googleapi.CallOption {
	if g.apiKey == "" {
		return nil
	}
	return []googleapi.CallOption{googleapi.QueryParameter("key", g.apiKey)}
}

// token loads the stored token, refreshing and re-saving it when expired.
func (g *GoogleCalendarProvider) token(ctx context.Context) (*oauth2.Token, error) {
	token, err := loadToken(g.db, g.accountName)
	if err != nil {
		return nil, err
	}
	if token.Valid() {
		return token, nil
	}

	newToken, err := g.oauthConfig.TokenSource(g.oauthContext(ctx), token).Token()
	if err != nil {
		return nil, err
	}
	if newToken.AccessToken != token.AccessToken {
		if err := saveToken(g.db, g.accountName, newToken); err != nil {
			return nil, fmt.Errorf("failed to save refreshed token: %w", err)
		}
	}
	return newToken, nil
}

func (g *GoogleCalendarProvider) oauthContext(ctx context.Context) context.Context {
	if g.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
}

func (g *GoogleCalendarProvider) baseTransport() http.RoundTripper {
	if g.httpClient != nil && g.httpClient.Transport != nil {
		return g.httpClient.Transport
	}
	return http.DefaultTransport
}

type tokenSourceFunc func() (*oauth2.Token, error)

func (f tokenSourceFunc) Token() (*oauth2.Token, error) {
	return f()
}
