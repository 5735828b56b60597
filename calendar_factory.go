package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// CalendarFactory builds the configured calendar provider.
type CalendarFactory struct {
	config   *Config
	db       *sql.DB
	location *time.Location
	prompt   func(ctx context.Context, authURL string) (string, error)
}

func NewCalendarFactory(config *Config, db *sql.DB, location *time.Location, prompt func(ctx context.Context, authURL string) (string, error)) *CalendarFactory {
	return &CalendarFactory{
		config:   config,
		db:       db,
		location: location,
		prompt:   prompt,
	}
}

// CreateCalendarProvider returns the provider named by general.provider.
// Nothing is contacted until the provider's Init runs.
func (cf *CalendarFactory) CreateCalendarProvider() (CalendarProvider, error) {
	switch cf.config.General.Provider {
	case "google":
		return NewGoogleCalendarProvider(cf.db, cf.config.General.AccountName, cf.config.Google, cf.prompt), nil

	case "caldav":
		serverName := cf.config.General.CalDAVServer
		if serverName == "" {
			return nil, fmt.Errorf("no CalDAV server selected; set general.caldav_server")
		}
		server, ok := cf.config.CalDAVs[serverName]
		if !ok {
			return nil, fmt.Errorf("CalDAV server '%s' not found in configuration", serverName)
		}
		return NewCalDAVProvider(server, cf.location), nil

	default:
		return nil, fmt.Errorf("unsupported provider type: %s", cf.config.General.Provider)
	}
}

// NewService wires the configured provider to the connection marker store.
func (cf *CalendarFactory) NewService(logger log.FieldLogger) (*CalendarService, error) {
	provider, err := cf.CreateCalendarProvider()
	if err != nil {
		return nil, err
	}
	return NewCalendarService(provider, newSQLiteStorage(cf.db), cf.config.General.CalendarID, cf.location, logger), nil
}
