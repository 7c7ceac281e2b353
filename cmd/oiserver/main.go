package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/open_interest/internal/config"
	"github.com/eddiefleurent/open_interest/internal/server"
	"github.com/eddiefleurent/open_interest/internal/tools"
)

const (
	transportStdio = "stdio"
	transportHTTP  = "http"

	shutdownTimeout = 10 * time.Second
)

func main() {
	var configPath, envPath, transport string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.StringVar(&envPath, "env", ".env", "Path to .env file (optional)")
	flag.StringVar(&transport, "transport", transportStdio, "Transport: stdio | http")
	flag.Parse()

	if err := run(configPath, envPath, transport); err != nil {
		fmt.Fprintf(os.Stderr, "oiserver: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, envPath, transport string) error {
	if transport != transportStdio && transport != transportHTTP {
		return fmt.Errorf("unknown transport %q (want %s or %s)", transport, transportStdio, transportHTTP)
	}

	// A missing .env is normal in production.
	envErr := godotenv.Load(envPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := newLogger(cfg.Environment)
	if err != nil {
		return err
	}
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		logger.WithError(envErr).Warn("Failed to load .env file")
	}

	app, err := NewApp(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close cache")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.WithFields(logrus.Fields{
		"transport": transport,
		"provider":  cfg.DataSource.Provider,
		"calendar":  cfg.Calendar.Provider,
	}).Info("Starting open interest server")

	if transport == transportHTTP {
		return serveHTTP(ctx, app)
	}
	return serveStdio(ctx, app, os.Stdin, os.Stdout)
}

func serveStdio(ctx context.Context, app *App, in io.Reader, out io.Writer) error {
	srv := tools.NewServer(app.Service, app.Logger)
	err := srv.Serve(ctx, in, out)
	if errors.Is(err, context.Canceled) {
		app.Logger.Info("Shutdown signal received, stopping")
		return nil
	}
	return err
}

func serveHTTP(ctx context.Context, app *App) error {
	cfg := app.Config
	srv := server.NewServer(server.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		AuthToken:      cfg.Server.AuthToken,
		RequestTimeout: cfg.GetRequestTimeout(),
	}, app.Service, app.Metrics, app.Logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	app.Logger.Info("Shutdown signal received, stopping HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	app.Logger.Info("HTTP server stopped")
	return nil
}
