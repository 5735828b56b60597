package main

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"
)

const (
	callbackPath     = "/auth/google/callback"
	authStateTTL     = 10 * time.Minute
	defaultEventSpan = 7 * 24 * time.Hour
)

type panelServer struct {
	svc  *CalendarService
	log  log.FieldLogger
	echo *echo.Echo
	now  func() time.Time

	mu     sync.Mutex
	states map[string]time.Time
}

type statusResponse struct {
	Provider  string `json:"provider"`
	Connected bool   `json:"connected"`
}

type eventResponse struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	ReminderMinutes *int      `json:"reminderMinutes,omitempty"`
	TaskID          string    `json:"taskId,omitempty"`
	Source          string    `json:"source,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func newPanelServer(svc *CalendarService, logger log.FieldLogger) *panelServer {
	p := &panelServer{
		svc:    svc,
		log:    logger,
		now:    time.Now,
		states: make(map[string]time.Time),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = panelRenderer{}
	e.Use(middleware.Recover())
	e.Use(p.requestLogger)

	e.GET("/", p.handlePanel)
	e.POST("/connect", p.handleConnect)
	e.GET(callbackPath, p.handleCallback)
	e.POST("/disconnect", p.handleDisconnect)
	e.GET("/api/status", p.handleStatus)
	e.GET("/api/events", p.handleEvents)

	p.echo = e
	return p
}

func (p *panelServer) Start(addr string) error {
	p.log.WithField("addr", addr).Info("Panel listening")
	return p.echo.Start(addr)
}

func (p *panelServer) Shutdown(ctx context.Context) error {
	return p.echo.Shutdown(ctx)
}

func (p *panelServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.echo.ServeHTTP(w, r)
}

func (p *panelServer) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		p.log.WithFields(log.Fields{
			"method":   c.Request().Method,
			"path":     c.Path(),
			"status":   c.Response().Status,
			"duration": time.Since(start),
		}).Debug("Request handled")
		return nil
	}
}

func (p *panelServer) handlePanel(c echo.Context) error {
	return c.Render(http.StatusOK, "panel", newPanelView(p.svc, ""))
}

func (p *panelServer) handleConnect(c echo.Context) error {
	ctx := c.Request().Context()

	state := p.newState()
	if authURL, ok := p.svc.AuthURL(ctx, state); ok {
		return c.Redirect(http.StatusSeeOther, authURL)
	}
	p.dropState(state)

	message := "✅ Connected"
	if !p.svc.SignIn(ctx) {
		message = "❌ Failed to connect, check the logs for details"
	}
	return c.Render(http.StatusOK, "panel", newPanelView(p.svc, message))
}

func (p *panelServer) handleCallback(c echo.Context) error {
	if reason := c.QueryParam("error"); reason != "" {
		return c.Render(http.StatusBadRequest, "panel", newPanelView(p.svc, "❌ Authorization denied: "+reason))
	}
	if !p.consumeState(c.QueryParam("state")) {
		return c.Render(http.StatusBadRequest, "panel", newPanelView(p.svc, "❌ Invalid or expired sign in request"))
	}
	code := c.QueryParam("code")
	if code == "" {
		return c.Render(http.StatusBadRequest, "panel", newPanelView(p.svc, "❌ Missing authorization code"))
	}

	message := "✅ Connected"
	if !p.svc.CompleteSignIn(c.Request().Context(), code) {
		message = "❌ Failed to connect, check the logs for details"
	}
	return c.Render(http.StatusOK, "panel", newPanelView(p.svc, message))
}

func (p *panelServer) handleDisconnect(c echo.Context) error {
	p.svc.SignOut(c.Request().Context())
	return c.Render(http.StatusOK, "panel", newPanelView(p.svc, "Disconnected"))
}

func (p *panelServer) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, statusResponse{
		Provider:  p.svc.ProviderName(),
		Connected: p.svc.IsConnected(),
	})
}

func (p *panelServer) handleEvents(c echo.Context) error {
	from := p.now()
	to := from.Add(defaultEventSpan)

	var err error
	if v := c.QueryParam("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid from: " + err.Error()})
		}
	}
	if v := c.QueryParam("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid to: " + err.Error()})
		}
	}
	if !to.After(from) {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "to must be after from"})
	}

	events := p.svc.ListEvents(c.Request().Context(), from, to)
	resp := make([]eventResponse, 0, len(events))
	for _, event := range events {
		item := eventResponse{
			ID:          event.ID,
			Title:       event.Title,
			Description: event.Description,
			Start:       event.StartTime,
			End:         event.EndTime,
			TaskID:      event.TaskID,
			Source:      event.Source,
		}
		if event.Reminder != nil {
			minutes := event.Reminder.Minutes
			item.ReminderMinutes = &minutes
		}
		resp = append(resp, item)
	}
	return c.JSON(http.StatusOK, resp)
}

// newState issues a single-use OAuth state value.
func (p *panelServer) newState() string {
	state := uuid.NewString()
	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()
	for s, issued := range p.states {
		if now.Sub(issued) > authStateTTL {
			delete(p.states, s)
		}
	}
	p.states[state] = now
	return state
}

func (p *panelServer) dropState(state string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.states, state)
}

func (p *panelServer) consumeState(state string) bool {
	if state == "" {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	issued, ok := p.states[state]
	delete(p.states, state)
	return ok && p.now().Sub(issued) <= authStateTTL
}

type panelRenderer struct{}

func (panelRenderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	return panelTemplate.ExecuteTemplate(w, name, data)
}
