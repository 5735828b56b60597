package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/subosito/gotenv"
)

// app carries what every command needs. It is filled in by the root
// command's PersistentPreRunE.
type app struct {
	configFile string
	verbose    bool

	config   *Config
	db       *sql.DB
	location *time.Location
	logger   *log.Logger
	svc      *CalendarService
}

func main() {
	loadEnvFiles()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(&app{}).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// loadEnvFiles loads the first .env found, in the current directory and
// then next to the user config.
func loadEnvFiles() {
	tryPaths := []string{".env"}
	if home, err := os.UserHomeDir(); err == nil {
		tryPaths = append(tryPaths, filepath.Join(home, ".config", "taskcal", ".env"))
	}
	for _, p := range tryPaths {
		if _, err := os.Stat(p); err == nil {
			if loadErr := gotenv.Load(p); loadErr == nil {
				break
			}
		}
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "taskcal",
		Short: "Mirror tasks into Google Calendar or a CalDAV calendar",
		Long: `taskcal connects to a calendar provider and keeps calendar events for your tasks:
one hour events with a 15 minute reminder, tagged so they can be found again.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configFile, "config", configFileName, "config file")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(
		newConnectCmd(a),
		newDisconnectCmd(a),
		newStatusCmd(a),
		newListCmd(a),
		newAddCmd(a),
		newUpdateCmd(a),
		newDeleteCmd(a),
		newTaskCmd(a),
		newCleanupCmd(a),
		newServeCmd(a),
	)
	return rootCmd
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	config, err := readConfig(a.configFile)
	if err != nil {
		return err
	}
	a.config = config

	verbosity := config.General.VerbosityLevel
	if a.verbose && verbosity < 3 {
		verbosity = 3
	}
	a.logger = newLogger(verbosity, cmd.ErrOrStderr())

	if a.location, err = resolveLocation(config.General.Timezone); err != nil {
		return err
	}

	db, err := openDB(config.dbPath())
	if err != nil {
		return fmt.Errorf("error opening database: %w", err)
	}
	if err := dbInit(db); err != nil {
		db.Close()
		return fmt.Errorf("error initializing database: %w", err)
	}
	a.db = db
	return nil
}

// service builds the calendar service on first use, so commands can adjust
// the config (e.g. the OAuth redirect for serve) beforehand.
func (a *app) service(cmd *cobra.Command) (*CalendarService, error) {
	if a.svc != nil {
		return a.svc, nil
	}
	factory := NewCalendarFactory(a.config, a.db, a.location, consolePrompt(cmd.InOrStdin(), cmd.OutOrStdout()))
	svc, err := factory.NewService(a.logger)
	if err != nil {
		return nil, err
	}
	a.svc = svc
	return svc, nil
}

// connected initializes the service and fails when there is no session.
func (a *app) connected(cmd *cobra.Command) (*CalendarService, error) {
	svc, err := a.service(cmd)
	if err != nil {
		return nil, err
	}
	svc.Initialize(commandContext(cmd))
	if !svc.IsConnected() {
		return nil, fmt.Errorf("not connected to a calendar; run 'taskcal connect' first")
	}
	return svc, nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
