// Package config loads the user configuration from a JSON file in the
// per-user config directory, with environment variable overrides.
package config

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/natefinch/atomic"

	"github.com/ericfisherdev/jiradl/internal/domain/model"
)

// Defaults applied when the file or environment leaves a value unset.
const (
	DefaultJQL        = "assignee = currentUser() AND statusCategory != Done ORDER BY updated DESC"
	DefaultWorkers    = 4
	MaxWorkers        = 16
	DefaultListenAddr = "127.0.0.1:8380"
	DefaultLogLevel   = "info"

	appDirName = "jiradl"
)

// ErrNoCredentials is returned by Validate when login has not completed.
var ErrNoCredentials = errors.New("no saved credentials")

// fileConfig is the on-disk JSON shape.
type fileConfig struct {
	JiraURL         string `json:"jira_url"`
	Email           string `json:"email"`
	TokenCiphertext string `json:"api_token_ciphertext,omitempty"`
	TokenNonce      string `json:"api_token_nonce,omitempty"`
	DownloadDir     string `json:"download_dir"`
	JQL             string `json:"jql"`
	Workers         int    `json:"workers"`
	SyncInterval    string `json:"sync_interval,omitempty"`
}

// Config is the effective configuration: file values with environment
// overrides applied. Only the file part is written back by Save.
type Config struct {
	JiraURL      string
	Email        string
	DownloadDir  string
	JQL          string
	Workers      int
	SyncInterval time.Duration

	// Environment only.
	LogLevel   string
	DBPath     string
	ListenAddr string

	token model.EncryptedToken
	file  fileConfig
	path  string
}

// DefaultPath returns JIRADL_CONFIG if set, else
// <user config dir>/jiradl/config.json.
func DefaultPath() (string, error) {
	if v, ok := os.LookupEnv("JIRADL_CONFIG"); ok && v != "" {
		return v, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate user config dir: %w", err)
	}
	return filepath.Join(dir, appDirName, "config.json"), nil
}

// Load reads the config file at path. A missing file yields defaults, so a
// first run works before login. Environment overrides:
// JIRADL_DOWNLOAD_DIR, JIRADL_WORKERS, JIRADL_SYNC_INTERVAL,
// JIRADL_LOG_LEVEL (info), JIRADL_DB_PATH (<config dir>/jiradl.db),
// JIRADL_LISTEN_ADDR (127.0.0.1:8380).
func Load(path string) (*Config, error) {
	var fc fileConfig

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Debug("config file not found, using defaults", "path", path)
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if fc.DownloadDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locate home dir: %w", err)
		}
		fc.DownloadDir = filepath.Join(home, "JiraDownloads")
	}
	if fc.JQL == "" {
		fc.JQL = DefaultJQL
	}
	if fc.Workers == 0 {
		fc.Workers = DefaultWorkers
	}

	cfg := &Config{
		JiraURL:     fc.JiraURL,
		Email:       fc.Email,
		DownloadDir: fc.DownloadDir,
		JQL:         fc.JQL,
		Workers:     fc.Workers,
		LogLevel:    DefaultLogLevel,
		DBPath:      filepath.Join(filepath.Dir(path), "jiradl.db"),
		ListenAddr:  DefaultListenAddr,
		file:        fc,
		path:        path,
	}

	if fc.SyncInterval != "" {
		d, err := time.ParseDuration(fc.SyncInterval)
		if err != nil {
			return nil, fmt.Errorf("sync_interval has invalid duration %q: %w", fc.SyncInterval, err)
		}
		cfg.SyncInterval = d
	}

	if fc.TokenCiphertext != "" || fc.TokenNonce != "" {
		if cfg.token, err = decodeToken(fc.TokenCiphertext, fc.TokenNonce); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.DownloadDir = expandHome(cfg.DownloadDir)
	cfg.Workers = ClampWorkers(cfg.Workers)
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("JIRADL_DOWNLOAD_DIR"); ok && v != "" {
		c.DownloadDir = v
	}
	if v, ok := os.LookupEnv("JIRADL_WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("JIRADL_WORKERS has invalid value %q: %w", v, err)
		}
		c.Workers = n
	}
	if v, ok := os.LookupEnv("JIRADL_SYNC_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("JIRADL_SYNC_INTERVAL has invalid duration %q: %w", v, err)
		}
		c.SyncInterval = d
	}
	if v, ok := os.LookupEnv("JIRADL_LOG_LEVEL"); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := os.LookupEnv("JIRADL_DB_PATH"); ok && v != "" {
		c.DBPath = v
	}
	if v, ok := os.LookupEnv("JIRADL_LISTEN_ADDR"); ok && v != "" {
		c.ListenAddr = v
	}
	return nil
}

// ClampWorkers bounds a worker count to 1..MaxWorkers.
func ClampWorkers(n int) int {
	switch {
	case n < 1:
		return 1
	case n > MaxWorkers:
		return MaxWorkers
	default:
		return n
	}
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string {
	return c.path
}

// DataDir returns the directory holding the config file, the ledger and logs.
func (c *Config) DataDir() string {
	return filepath.Dir(c.path)
}

// Token returns the encrypted API token.
func (c *Config) Token() model.EncryptedToken {
	return c.token
}

// SetCredentials replaces the account settings and the encrypted token.
func (c *Config) SetCredentials(jiraURL, email string, token model.EncryptedToken) {
	c.JiraURL = jiraURL
	c.Email = email
	c.token = token
}

// ClearToken forgets the encrypted token but keeps URL and email.
func (c *Config) ClearToken() {
	c.token = model.EncryptedToken{}
}

// HasCredentials reports whether URL, email and a token are all present.
func (c *Config) HasCredentials() bool {
	return c.JiraURL != "" && c.Email != "" && !c.token.IsZero()
}

// Validate checks that the config can be used for a sync pass.
func (c *Config) Validate() error {
	if !c.HasCredentials() {
		return ErrNoCredentials
	}
	u, err := url.Parse(c.JiraURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("jira_url %q is not a valid URL", c.JiraURL)
	}
	if c.DownloadDir == "" {
		return errors.New("download_dir is empty")
	}
	return nil
}

// Save writes the file settings and credentials atomically with owner-only
// permissions. Environment overrides are not persisted.
func (c *Config) Save() error {
	fc := c.file
	fc.JiraURL = c.JiraURL
	fc.Email = c.Email
	fc.TokenCiphertext = ""
	fc.TokenNonce = ""
	if !c.token.IsZero() {
		fc.TokenCiphertext = base64.StdEncoding.EncodeToString(c.token.Ciphertext)
		fc.TokenNonce = base64.StdEncoding.EncodeToString(c.token.Nonce)
	}

	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := atomic.WriteFile(c.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write config %s: %w", c.path, err)
	}
	if err := os.Chmod(c.path, 0o600); err != nil {
		return fmt.Errorf("chmod config %s: %w", c.path, err)
	}

	c.file = fc
	return nil
}

func decodeToken(ciphertext, nonce string) (model.EncryptedToken, error) {
	ct, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return model.EncryptedToken{}, fmt.Errorf("api_token_ciphertext is not base64: %w", err)
	}
	n, err := base64.StdEncoding.DecodeString(nonce)
	if err != nil {
		return model.EncryptedToken{}, fmt.Errorf("api_token_nonce is not base64: %w", err)
	}
	return model.EncryptedToken{Ciphertext: ct, Nonce: n}, nil
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
