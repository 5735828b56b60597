package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/oauth2"
)

const (
	configFileName = ".taskcal.toml"
	dbFileName     = ".taskcal.db"
	oobRedirectURL = "urn:ietf:wg:oauth:2.0:oob"
)

type Config struct {
	General GeneralConfig           `toml:"general"`
	Google  GoogleConfig            `toml:"google"`
	CalDAVs map[string]CalDAVConfig `toml:"caldav_servers"`

	// dir is where the config file was found; the database lives next to it.
	dir string
}

type GeneralConfig struct {
	Provider       string `toml:"provider"`
	CalDAVServer   string `toml:"caldav_server"`
	CalendarID     string `toml:"calendar_id"`
	AccountName    string `toml:"account_name"`
	Timezone       string `toml:"timezone"`
	VerbosityLevel int    `toml:"verbosity_level"`
	ListenAddr     string `toml:"listen_addr"`
}

type GoogleConfig struct {
	APIKey       string `toml:"api_key"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURL  string `toml:"redirect_url"`
}

type CalDAVConfig struct {
	Name      string `toml:"name"`
	ServerURL string `toml:"server_url"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
}

// readConfig looks for filename in the current directory, then in
// $HOME/.config/taskcal/. A missing file is not an error: defaults and
// environment overrides still apply.
func readConfig(filename string) (*Config, error) {
	config := &Config{}

	candidates := []string{filename}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "taskcal", filepath.Base(filename)))
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		config.dir = filepath.Dir(path)
		break
	}

	applyEnvOverrides(config)
	applyDefaults(config)
	return config, nil
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv("TASKCAL_GOOGLE_API_KEY"); v != "" {
		config.Google.APIKey = v
	}
	if v := os.Getenv("TASKCAL_GOOGLE_CLIENT_ID"); v != "" {
		config.Google.ClientID = v
	}
	if v := os.Getenv("TASKCAL_GOOGLE_CLIENT_SECRET"); v != "" {
		config.Google.ClientSecret = v
	}
}

func applyDefaults(config *Config) {
	if config.General.Provider == "" {
		config.General.Provider = "google"
	}
	config.General.Provider = strings.ToLower(config.General.Provider)
	if config.General.CalendarID == "" {
		config.General.CalendarID = "primary"
	}
	if config.General.AccountName == "" {
		config.General.AccountName = "default"
	}
	if config.General.ListenAddr == "" {
		config.General.ListenAddr = "127.0.0.1:8080"
	}
	if config.Google.RedirectURL == "" {
		config.Google.RedirectURL = oobRedirectURL
	}
}

func (c *Config) dbPath() string {
	return filepath.Join(c.dir, dbFileName)
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	return db, nil
}

func saveToken(db *sql.DB, accountName string, token *oauth2.Token) error {
	tokenJSON, err := json.Marshal(token)
	if err != nil {
		return err
	}

	_, err = db.Exec("INSERT OR REPLACE INTO tokens (account_name, token) VALUES (?, ?)", accountName, tokenJSON)
	return err
}

// loadToken returns sql.ErrNoRows when the account has never signed in.
func loadToken(db *sql.DB, accountName string) (*oauth2.Token, error) {
	var tokenJSON []byte
	err := db.QueryRow("SELECT token FROM tokens WHERE account_name = ?", accountName).Scan(&tokenJSON)
	if err != nil {
		return nil, err
	}

	var token oauth2.Token
	if err := json.Unmarshal(tokenJSON, &token); err != nil {
		return nil, fmt.Errorf("error unmarshaling token: %w", err)
	}
	return &token, nil
}

func deleteToken(db *sql.DB, accountName string) error {
	_, err := db.Exec("DELETE FROM tokens WHERE account_name = ?", accountName)
	return err
}

// consolePrompt asks the user to open authURL and paste back the
// authorization code.
func consolePrompt(in io.Reader, out io.Writer) func(ctx context.Context, authURL string) (string, error) {
	reader := bufio.NewReader(in)
	return func(ctx context.Context, authURL string) (string, error) {
		fmt.Fprintf(out, "Go to the following link in your browser then type the "+
			"authorization code: \n%v\n", authURL)

		code, err := reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && code != "") {
			return "", fmt.Errorf("unable to read authorization code: %w", err)
		}
		code = strings.TrimSpace(code)
		if code == "" {
			return "", errors.New("empty authorization code")
		}
		return code, nil
	}
}
