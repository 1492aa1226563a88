package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/maillist/internal/api"
	"github.com/foxzi/maillist/internal/broadcast"
	"github.com/foxzi/maillist/internal/config"
	"github.com/foxzi/maillist/internal/db"
	"github.com/foxzi/maillist/internal/ingest"
	"github.com/foxzi/maillist/internal/mailer"
	"github.com/foxzi/maillist/internal/metrics"
	"github.com/foxzi/maillist/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	RunE:  runServe,
}

var configFile string

func init() {
	serveCmd.Flags().StringVarP(&configFile, "config", "c", "/etc/maillist/config.yaml", "Path to configuration file")
	migrateCmd.Flags().StringVarP(&configFile, "config", "c", "/etc/maillist/config.yaml", "Path to configuration file")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		return err
	}

	lists := store.NewListStore(database.DB)
	subs := store.NewSubscriberStore(database.DB)

	transport, err := mailer.New(cfg.Mailer, logger)
	if err != nil {
		return err
	}

	pipeline := ingest.New(lists, subs, logger)
	engine := broadcast.New(lists, subs, transport, cfg.Unsubscribe.BaseURL, logger)

	server := api.NewServer(cfg, logger, metrics.New(), lists, pipeline, engine, subs)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down...", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: parseLogLevel(cfg.Level),
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: parseLogLevel(cfg.Level),
		})
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
