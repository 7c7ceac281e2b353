package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/open_interest/internal/calendar"
	"github.com/eddiefleurent/open_interest/internal/config"
	"github.com/eddiefleurent/open_interest/internal/marketdata"
	"github.com/eddiefleurent/open_interest/internal/metrics"
	"github.com/eddiefleurent/open_interest/internal/mock"
	"github.com/eddiefleurent/open_interest/internal/retry"
	"github.com/eddiefleurent/open_interest/internal/service"
	"github.com/eddiefleurent/open_interest/internal/storage"
	"github.com/eddiefleurent/open_interest/internal/tradier"
)

const metricsNamespace = "open_interest"

// App holds the wired components shared by both transports.
type App struct {
	Config  *config.Config
	Service *service.Service
	Metrics *metrics.Metrics
	Logger  *logrus.Logger

	store storage.Interface
}

// newLogger builds the process logger. Output goes to stderr so the stdio
// transport owns stdout.
func newLogger(env config.EnvironmentConfig) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(strings.ToLower(env.LogLevel))
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logger.SetLevel(level)

	if env.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

// NewApp wires calendar, data source chain, cache, metrics and service.
func NewApp(cfg *config.Config, logger *logrus.Logger) (*App, error) {
	loc := cfg.Location()
	m := metrics.New(metricsNamespace)

	var tradierClient *tradier.Client
	if cfg.UsesTradier() {
		tc := cfg.DataSource.Tradier
		tradierClient = tradier.NewClient(tc.APIKey, tc.Sandbox, tc.BaseURL, nil, logger)
	}

	nyse := calendar.NewNYSE(loc)
	var oracle calendar.Oracle = nyse
	if cfg.Calendar.Provider == config.CalendarTradier {
		oracle = calendar.NewTradier(tradierClient, nyse, logger)
	}

	provider, err := newProvider(cfg, tradierClient, oracle, loc, logger)
	if err != nil {
		return nil, err
	}

	var source marketdata.Source = marketdata.Instrument(provider, cfg.DataSource.Provider, m)
	source = marketdata.NewCircuitBreakerSource(cfg.DataSource.Provider, source, cfg.CircuitBreakerSettings(), logger)
	source = retry.NewSource(source, logger, retry.Config{
		MaxRetries:     cfg.Retry.MaxRetries,
		InitialBackoff: cfg.GetInitialBackoff(),
		MaxBackoff:     cfg.GetMaxBackoff(),
		Timeout:        cfg.GetFetchTimeout(),
	})

	var store storage.Interface
	if cfg.Cache.Enabled {
		store, err = openStore(cfg.Cache.Path, logger)
		if err != nil {
			return nil, err
		}
		source = marketdata.NewCachingSource(source, store, logger)
	}

	svc, err := service.New(service.Options{
		Source:       source,
		Calendar:     oracle,
		Location:     loc,
		MaxPain:      cfg.MaxPainOptions(),
		Metrics:      m,
		Logger:       logger,
		FetchTimeout: cfg.GetFetchTimeout(),
	})
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}

	return &App{
		Config:  cfg,
		Service: svc,
		Metrics: m,
		Logger:  logger,
		store:   store,
	}, nil
}

func newProvider(cfg *config.Config, client *tradier.Client, oracle calendar.Oracle, loc *time.Location, logger *logrus.Logger) (marketdata.Source, error) {
	switch cfg.DataSource.Provider {
	case config.ProviderAlphaVantage:
		av := cfg.DataSource.AlphaVantage
		dataType, err := marketdata.ParseDataType(av.DataType)
		if err != nil {
			return nil, err
		}
		logger.WithFields(logrus.Fields{"provider": cfg.DataSource.Provider, "datatype": dataType}).Info("Using Alpha Vantage data source")
		return marketdata.NewAlphaVantage(marketdata.AlphaVantageOptions{
			APIKey:   av.APIKey,
			BaseURL:  av.BaseURL,
			DataType: dataType,
			Calendar: oracle,
			Location: loc,
			Logger:   logger,
		})
	case config.ProviderTradier:
		if client == nil {
			return nil, errors.New("tradier client not configured")
		}
		logger.WithFields(logrus.Fields{"provider": cfg.DataSource.Provider, "base_url": client.BaseURL()}).Info("Using Tradier data source")
		return marketdata.NewTradier(marketdata.TradierOptions{
			API:            client,
			Calendar:       oracle,
			Location:       loc,
			Logger:         logger,
			Concurrency:    cfg.DataSource.Tradier.Concurrency,
			MaxExpirations: cfg.DataSource.Tradier.MaxExpirations,
		})
	case config.ProviderMock:
		logger.Warn("Using synthetic mock data source")
		return mock.NewDataProvider(), nil
	}
	return nil, fmt.Errorf("unknown data source provider %q", cfg.DataSource.Provider)
}

func openStore(path string, logger *logrus.Logger) (storage.Interface, error) {
	if path == "" {
		logger.Info("Caching chain snapshots in memory")
		return storage.NewMemoryStorage(), nil
	}
	store, err := storage.NewSQLiteStorage(path)
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", path, err)
	}
	logger.WithField("path", path).Info("Caching chain snapshots in SQLite")
	return store.WithLogger(logger), nil
}

// Close releases the snapshot cache.
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}
