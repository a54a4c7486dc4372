package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for minimal containers

	"github.com/ericfisherdev/jiradl/internal/adapter/driven/filesystem"
	"github.com/ericfisherdev/jiradl/internal/adapter/driven/jira"
	"github.com/ericfisherdev/jiradl/internal/adapter/driven/keyring"
	sqliteadapter "github.com/ericfisherdev/jiradl/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/jiradl/internal/application"
	"github.com/ericfisherdev/jiradl/internal/config"
	"github.com/ericfisherdev/jiradl/internal/domain/port/driven"
	"github.com/ericfisherdev/jiradl/internal/logging"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	defer a.close()

	return newRootCmd(a).ExecuteContext(ctx)
}

// app holds state shared by all commands. It is populated by the root
// command's PersistentPreRunE.
type app struct {
	configPath string
	logLevel   string

	cfg       *config.Config
	vault     *application.CredentialVault
	logCloser io.Closer
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "jiradl",
		Short:         "Mirror Jira issue attachments into a local folder tree",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return a.setup()
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default: $JIRADL_CONFIG or the user config dir)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		loginCmd(a),
		logoutCmd(a),
		syncCmd(a),
		incidentsCmd(a),
		historyCmd(a),
		serveCmd(a),
		healthCmd(a),
	)

	return root
}

// setup loads the configuration and installs the logger.
func (a *app) setup() error {
	path := a.configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}

	closer, err := logging.Setup(logging.Options{
		Level:   cfg.LogLevel,
		Console: os.Stderr,
		File:    filepath.Join(cfg.DataDir(), "logs", "jiradl.log"),
	})
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logCloser = closer
	a.vault = application.NewCredentialVault(keyring.NewKeyStore(keyring.DefaultService))

	slog.Debug("config loaded",
		"path", cfg.Path(),
		"download_dir", cfg.DownloadDir,
		"db_path", cfg.DBPath,
		"workers", cfg.Workers,
		"sync_interval", cfg.SyncInterval,
	)
	return nil
}

func (a *app) close() {
	if a.logCloser != nil {
		_ = a.logCloser.Close()
	}
}

// trackerFactory builds a Jira client from the saved credentials on first use.
func (a *app) trackerFactory() application.TrackerFactory {
	return newTrackerFactory(a.cfg.Path(), a.vault, func(baseURL, email, token string) (driven.TrackerClient, error) {
		return jira.NewClient(baseURL, email, token)
	})
}

// clientBuilder creates a tracker client from plain credentials.
type clientBuilder func(baseURL, email, token string) (driven.TrackerClient, error)

// newTrackerFactory re-reads the config file on every build, so a client
// rebuilt after TrackerProvider.Reset sees credentials saved by a later
// login.
func newTrackerFactory(configPath string, vault *application.CredentialVault, build clientBuilder) application.TrackerFactory {
	return func(_ context.Context) (driven.TrackerClient, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			if errors.Is(err, config.ErrNoCredentials) {
				return nil, application.ErrNotLoggedIn
			}
			return nil, err
		}

		token, err := vault.Decrypt(cfg.Token())
		if err != nil {
			return nil, err
		}

		client, err := build(cfg.JiraURL, cfg.Email, token)
		if err != nil {
			return nil, err
		}
		slog.Debug("tracker client created", "url", cfg.JiraURL, "email", cfg.Email)
		return client, nil
	}
}

// services is the wired application for commands that touch the ledger or
// the download tree.
type services struct {
	db       *sqliteadapter.DB
	store    *filesystem.Store
	runs     *sqliteadapter.RunRepo
	trackers *application.TrackerProvider
	sync     *application.SyncService
	cleanup  *application.CleanupService
}

func (a *app) openServices(ctx context.Context) (*services, error) {
	db, err := sqliteadapter.NewDB(ctx, a.cfg.DBPath)
	if err != nil {
		return nil, err
	}
	slog.Debug("database opened", "path", db.Path())

	store := filesystem.NewStore(a.cfg.DownloadDir)
	runs := sqliteadapter.NewRunRepo(db)
	incidents := sqliteadapter.NewIncidentRepo(db)
	trackers := application.NewTrackerProvider(a.trackerFactory())

	return &services{
		db:       db,
		store:    store,
		runs:     runs,
		trackers: trackers,
		sync:     application.NewSyncService(trackers, store, runs, incidents, a.cfg.JQL, a.cfg.Workers),
		cleanup:  application.NewCleanupService(trackers, store, incidents),
	}, nil
}

func (s *services) Close() {
	if err := s.db.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}
