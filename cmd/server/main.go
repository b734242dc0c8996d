// Package main provides the entry point for the catalog fetch service HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/helixir/catalog-fetch-service/internal/config"
	"github.com/helixir/catalog-fetch-service/internal/database"
	"github.com/helixir/catalog-fetch-service/internal/events"
	"github.com/helixir/catalog-fetch-service/internal/fetcher"
	"github.com/helixir/catalog-fetch-service/internal/fetcher/gvk"
	"github.com/helixir/catalog-fetch-service/internal/fsguard"
	"github.com/helixir/catalog-fetch-service/internal/importers"
	"github.com/helixir/catalog-fetch-service/internal/observability"
	"github.com/helixir/catalog-fetch-service/internal/prefs"
	httpserver "github.com/helixir/catalog-fetch-service/internal/server/http"
	"github.com/helixir/catalog-fetch-service/internal/unlinked"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("catalog-fetch-service starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics(cfg.Metrics.Namespace)

	// Fetchers.
	fetchers := fetcher.NewRegistry()
	if cfg.Fetchers.GVK.Enabled {
		fetchers.Register(newGVKClient(cfg.Fetchers.GVK, metrics, logger))
		logger.Info().Str("base_url", cfg.Fetchers.GVK.BaseURL).Msg("GVK fetcher registered")
	}

	// Preferences.
	store, health, closeStore, err := openPreferences(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// Importers.
	importerList, err := importers.Load(ctx, store)
	if err != nil {
		logger.Warn().Err(err).Msg("stored importer list is corrupt, starting with an empty list")
		importerList = importers.NewList()
	}
	pluginDirs, err := fsguard.New(cfg.Importers.PluginDir)
	if err != nil {
		return fmt.Errorf("plugin dir: %w", err)
	}
	importerRegistry := importers.NewRegistry(importers.NewPluginLoader(importers.WithPluginDirs(pluginDirs)), logger, importers.BibTeX{})
	if err := importerRegistry.LoadList(importerList); err != nil {
		logger.Warn().Err(err).Msg("some custom importers could not be loaded")
	}
	logger.Info().Int("custom_importers", importerList.Len()).Msg("importers ready")

	// Events.
	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.Kafka.Enabled {
		publisher = events.NewKafkaPublisher(events.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			BatchSize:    cfg.Kafka.BatchSize,
			BatchTimeout: cfg.Kafka.BatchTimeout,
		}, metrics, logger)
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka publisher enabled")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close event publisher")
		}
	}()

	libraryRoots, err := fsguard.New(cfg.Unlinked.AllowedRoots...)
	if err != nil {
		return fmt.Errorf("allowed roots: %w", err)
	}
	logger.Info().
		Strs("allowed_roots", libraryRoots.Dirs()).
		Strs("plugin_dirs", pluginDirs.Dirs()).
		Msg("file access confined")

	finder := unlinked.NewFinder(metrics, logger,
		unlinked.WithRoots(libraryRoots),
		unlinked.WithMaxDepth(cfg.Unlinked.MaxDepth),
	)
	fileImporter := unlinked.NewImporter(importerRegistry, publisher, metrics, logger, unlinked.WithRoots(libraryRoots))

	deps := httpserver.Deps{
		Fetchers:        fetchers,
		Importers:       importerRegistry,
		ImporterList:    importerList,
		Preferences:     store,
		Finder:          finder,
		FileImporter:    fileImporter,
		Publisher:       publisher,
		Health:          health,
		DefaultPatterns: cfg.Unlinked.DefaultPatterns,
	}

	httpCfg := httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}
	httpSrv := httpserver.NewServer(httpCfg, deps, logger)

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress(),
			Handler:      metricsMux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
	}

	errCh := make(chan error, 2)

	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	if metricsServer != nil {
		go func() {
			logger.Info().
				Str("address", metricsServer.Addr).
				Msg("metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	readyLog := logger.Info().Str("http_address", httpCfg.Address)
	if metricsServer != nil {
		readyLog = readyLog.Str("metrics_address", metricsServer.Addr)
	}
	readyLog.Msg("catalog-fetch-service is ready")

	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down catalog-fetch-service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}

	logger.Info().Msg("catalog-fetch-service shutdown complete")
	return nil
}

// newGVKClient builds the GVK fetcher with request metrics on its HTTP client.
func newGVKClient(cfg config.GVKConfig, metrics *observability.Metrics, logger zerolog.Logger) *gvk.Client {
	gvkCfg := gvk.Config{
		BaseURL:     cfg.BaseURL,
		MaxRecords:  cfg.MaxRecords,
		SortKeys:    cfg.SortKeys,
		Timeout:     cfg.Timeout,
		RateLimit:   cfg.RateLimit,
		BurstSize:   cfg.BurstSize,
		MaxRetries:  cfg.MaxRetries,
		MaxBodySize: cfg.MaxBodySize,
	}

	httpClient := fetcher.NewHTTPClient(gvkCfg.HTTPClientConfig()).WithObserver(func(source string, statusCode int, elapsed time.Duration) {
		metrics.RecordCatalogRequest(source, statusCode, elapsed.Seconds())
	})

	return gvk.NewWithHTTPClient(gvkCfg, httpClient,
		fetcher.WithLogger(logger),
		fetcher.WithMetrics(metrics),
	)
}

// openPreferences returns the configured preference store. For postgres it
// also returns the database as health checker and runs migrations when
// configured to.
func openPreferences(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (prefs.Store, httpserver.HealthChecker, func(), error) {
	if !cfg.UsesPostgres() {
		logger.Info().Msg("using in-memory preference store")
		return prefs.NewMemoryStore(), nil, func() {}, nil
	}

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Msg("database connection established")

	if cfg.Database.MigrationAutoRun {
		migrator, err := database.NewMigrator(db, cfg.Database.MigrationPath, logger)
		if err != nil {
			db.Close()
			return nil, nil, nil, fmt.Errorf("create migrator: %w", err)
		}
		upErr := migrator.Up()
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
		if upErr != nil {
			db.Close()
			return nil, nil, nil, fmt.Errorf("run migrations: %w", upErr)
		}
	}

	return prefs.NewPgStore(db), db, db.Close, nil
}
