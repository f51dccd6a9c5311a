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
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"televet/internal/api"
	"televet/internal/backup"
	"televet/internal/booking"
	"televet/internal/config"
	"televet/internal/docstore"
	"televet/internal/export"
	"televet/internal/maintenance"
	"televet/internal/metrics"
	"televet/internal/repository"
	"televet/internal/scheduling"
	"televet/internal/settings"
	"televet/internal/templates"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fallback := zerolog.New(os.Stderr).With().Timestamp().Logger()
		fallback.Fatal().Err(err).Msg("failed to load config")
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, snapshots, err := openStore(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("open store error")
	}
	defer store.Close()

	loc := cfg.Location()
	now := func() time.Time { return time.Now().In(loc) }

	schedules := repository.NewScheduleRepository(store)
	settingsRepo := repository.NewSettingsRepository(store).WithDefaultMinAdvance(cfg.DefaultMinAdvance())
	appointments := repository.NewAppointmentRepository(store)

	registry := scheduling.NewRegistry(scheduling.Deps{
		Schedules:    schedules,
		Settings:     settingsRepo,
		Maintainer:   maintenance.New(schedules, now, &logger),
		Now:          now,
		MaxRangeDays: cfg.MaxApplyRange(),
		Logger:       &logger,
	})
	defer registry.Close()
	go registry.RunEviction(ctx, cfg.SessionIdle(), max(cfg.SessionIdle()/2, time.Minute))

	rps, burst := cfg.RateLimit()
	server := api.NewServer(api.Services{
		Templates: templates.NewService(repository.NewTemplateRepository(store), &logger),
		Sessions:  registry,
		Settings:  settings.NewService(settingsRepo, registry, &logger),
		Booking:   booking.NewService(schedules, appointments, settingsRepo, now, &logger),
		Export:    export.NewExporter(schedules, now, &logger),
	}, api.Options{APIKey: cfg.API.APIKey, RPS: rps, Burst: burst, Now: now}, &logger)

	if cfg.Backup.Enabled && snapshots != nil {
		backups := backup.NewService(snapshots, backup.Config{
			Enabled:       true,
			Interval:      cfg.BackupInterval(),
			Dir:           cfg.Backup.Path,
			RetentionDays: cfg.Backup.RetentionDays,
		}, now, &logger)
		go backups.Start(ctx)
	}

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, store, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	logger.Info().
		Str("address", cfg.API.Address).
		Str("store", cfg.Store.Driver).
		Str("timezone", loc.String()).
		Bool("cache", cfg.CacheTTL() > 0).
		Msg("televet API started")
	serve(ctx, &http.Server{Addr: cfg.API.Address, Handler: server.Routes(), ReadHeaderTimeout: 5 * time.Second}, "api", &logger)
	logger.Info().Msg("televet API stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Logging.Console {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Str("app", cfg.App.Name).Logger()
}

// openStore also returns the snapshot source for local databases; it is nil
// for the other drivers.
func openStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (docstore.Store, backup.Snapshotter, error) {
	var (
		store     docstore.Store
		snapshots backup.Snapshotter
		err       error
	)
	switch cfg.Store.Driver {
	case config.DriverMemory:
		store = docstore.NewMemoryStore()
	case config.DriverSQLite:
		var sqlite *docstore.SQLiteStore
		sqlite, err = docstore.NewSQLiteStore(cfg.Store.SQLitePath, logger)
		if err == nil {
			store, snapshots = sqlite, sqlite
		}
	case config.DriverFirestore:
		store, err = docstore.NewFirestoreStore(ctx, docstore.FirestoreConfig{
			ProjectID:       cfg.Store.Firestore.ProjectID,
			CredentialsFile: cfg.Store.Firestore.CredentialsFile,
		}, logger)
	default:
		err = fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, nil, err
	}

	if ttl := cfg.CacheTTL(); ttl > 0 {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		store = docstore.NewCachedStore(store, rdb, ttl, logger)
	}
	return store, snapshots, nil
}

func startHealthServer(ctx context.Context, port int, store docstore.Store, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := store.Ping(ctxPing); err != nil {
			http.Error(w, "store not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	serve(ctx, &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}, "health", logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serve(ctx, &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}, "metrics", logger)
}

// serve runs srv until ctx is done, then shuts it down.
func serve(ctx context.Context, srv *http.Server, name string, logger *zerolog.Logger) {
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Str("server", name).Msg("server error")
	}
}
