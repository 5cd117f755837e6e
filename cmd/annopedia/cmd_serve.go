package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"annopedia/internal/auth"
	"annopedia/internal/config"
	"annopedia/internal/httpapi"
	"annopedia/internal/logging"
	"annopedia/internal/mail"
	"annopedia/internal/management"
	"annopedia/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// serveCmd runs the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the management and annotation API",
	Long: `Opens the store, builds the authenticator chain and serves the HTTP API
until SIGINT or SIGTERM. The config file is watched and the log level is
reloaded when it changes.`,
	RunE: runServe,
}

// migrateCmd applies schema migrations
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or migrate the database schema",
	RunE:  runMigrate,
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.Database.Driver, cfg.Database.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	srv := newServer(cfg, st)
	logger.Info("Starting Annopedia",
		zap.String("addr", cfg.Server.Addr),
		zap.String("driver", cfg.Database.Driver),
		zap.Bool("identity", cfg.Auth.Identity.Enabled),
		zap.Bool("anonymous", cfg.Auth.AllowAnonymous))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	g.Go(func() error {
		watchConfig(gctx, configPath)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Annopedia stopped")
	return nil
}

// newServer wires the service, authenticators and mailer over st.
func newServer(c *config.Config, st *store.Store) *httpapi.Server {
	var verifier auth.IdentityVerifier
	if c.Auth.Identity.Enabled {
		verifier = auth.NewHTTPVerifier(c.Auth.Identity.Endpoint, c.Auth.Identity.APIKey, c.GetIdentityTimeout())
	}
	svc := management.New(st, mail.New(c.Mail), c.Mail)
	return httpapi.New(c, svc, auth.New(c.Auth, st, verifier), st)
}

// watchConfig reloads the log level whenever path changes until ctx is done.
// A watcher that cannot start only disables hot reload.
func watchConfig(ctx context.Context, path string) {
	err := config.Watch(ctx, path, reloadLogLevel, func(err error) {
		logger.Warn("Config reload failed", zap.Error(err))
	})
	if err != nil {
		logger.Warn("Config hot reload disabled", zap.String("path", path), zap.Error(err))
	}
}

// reloadLogLevel applies the log level of a reloaded config. Other settings
// need a restart.
func reloadLogLevel(next *config.Config) {
	if verbose || next.Logging.Level == logging.Level() {
		return
	}
	if err := logging.SetLevel(next.Logging.Level); err != nil {
		logger.Warn("Ignoring reloaded log level", zap.String("level", next.Logging.Level), zap.Error(err))
		return
	}
	logging.Boot("Log level changed to %s", next.Logging.Level)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.GetShutdownTimeout())
	defer cancel()

	st, err := store.Open(cfg.Database.Driver, cfg.Database.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Ping(ctx); err != nil {
		return fmt.Errorf("database not reachable: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Schema version %d (%s, %s)\n", st.SchemaVersion(), st.Path(), st.Driver())
	return nil
}
