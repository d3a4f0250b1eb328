package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/STRATINT/econcal/internal/aggregator"
	"github.com/STRATINT/econcal/internal/api"
	"github.com/STRATINT/econcal/internal/auth"
	"github.com/STRATINT/econcal/internal/browser"
	"github.com/STRATINT/econcal/internal/cloudsql"
	"github.com/STRATINT/econcal/internal/config"
	"github.com/STRATINT/econcal/internal/database"
	"github.com/STRATINT/econcal/internal/ingestion"
	"github.com/STRATINT/econcal/internal/issuelog"
	"github.com/STRATINT/econcal/internal/logging"
	"github.com/STRATINT/econcal/internal/metrics"
	"github.com/STRATINT/econcal/internal/pipeline"
	"github.com/STRATINT/econcal/internal/quality"
	"github.com/STRATINT/econcal/internal/scheduler"
	"github.com/STRATINT/econcal/internal/server"
	"github.com/STRATINT/econcal/internal/subscribers"
)

// issueRetention bounds how long persisted issues are kept.
const issueRetention = 30 * 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	logger.Info("starting econcal")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	registry := prometheus.NewRegistry()
	collector, err := metrics.NewHTTPCollector(registry)
	if err != nil {
		logger.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}
	pipelineMetrics, err := metrics.NewPipelineCollector(registry)
	if err != nil {
		logger.Error("failed to init pipeline metrics", "error", err)
		os.Exit(1)
	}

	// Issue log: Postgres when configured, memory otherwise.
	var (
		store  issuelog.Sink
		reader issuelog.Reader
		async  *issuelog.AsyncSink
		db     *sql.DB
	)
	logger.Info("database configuration", "config", cloudsql.Describe(cfg.Database.URL))
	if cfg.Database.URL != "" {
		dbCfg := database.DefaultConfig()
		dbCfg.URL = cfg.Database.URL
		db, err = database.Connect(ctx, dbCfg)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		logger.Info("database connected")

		// Non-fatal so the pipeline still serves events while the issue table is broken.
		if err := database.RunMigrations(ctx, db, "./migrations", logger); err != nil {
			logger.Warn("failed to run migrations, continuing anyway", "error", err)
		}

		repo := database.NewPostgresIssueRepository(db)
		async = issuelog.NewAsyncSink(repo, logger)
		store, reader = async, repo
		go purgeIssues(ctx, db, repo, logger)
	} else {
		logger.Warn("no database configured, issue log is memory-only")
		mem := issuelog.NewMemorySink(issuelog.DefaultMemoryCapacity)
		store, reader = mem, mem
	}

	issues := issuelog.NewDedupSink(
		issuelog.NewCountingSink(
			issuelog.NewAlertingSink(
				issuelog.MultiSink{issuelog.NewLoggerSink(logging.Component(logger, "issuelog")), store},
				issuelog.NewLogAlerter(logging.Component(logger, "alerts")),
			),
			pipelineMetrics,
		),
		issuelog.DefaultDedupWindow,
		nil,
	)

	coordinator := browser.NewCoordinator(browser.ChromeLauncher{
		ExecPath:          cfg.Browser.ExecPath,
		Headless:          cfg.Browser.Headless,
		UserAgent:         cfg.Sources.UserAgent,
		NavigationTimeout: cfg.Browser.NavigationTimeout,
	}, browser.Options{
		IdleTimeout:    cfg.Browser.IdleTimeout,
		CheckInterval:  cfg.Browser.CheckInterval,
		StartupTimeout: cfg.Browser.StartupTimeout,
		Logger:         logging.Component(logger, "browser"),
		Metrics:        pipelineMetrics,
	})
	defer coordinator.Close()

	sources, err := ingestion.NewSources(cfg.Sources, coordinator, &http.Client{Timeout: cfg.Sources.HTTPTimeout}, ingestion.Deps{
		Logger:  logger,
		Issues:  issues,
		Metrics: pipelineMetrics,
		Gate:    quality.NewGate(),
		Retry:   ingestion.DefaultRetryPolicy(),
	})
	if err != nil {
		logger.Error("failed to build adapters", "error", err)
		os.Exit(1)
	}
	defer sources.Close()

	agg := aggregator.New(sources.ForexFactory, sources.Myfxbook, logger)
	service := pipeline.NewService(agg, issues, logger, pipeline.WithMetrics(pipelineMetrics))

	var subs subscribers.Store = subscribers.NewStaticStore()
	if path := cfg.Scheduler.SubscribersFile; path != "" {
		fileStore, err := subscribers.LoadFile(path)
		if err != nil {
			logger.Error("failed to load subscribers", "path", path, "error", err)
			os.Exit(1)
		}
		subs = fileStore
	}

	warmer := scheduler.NewCacheWarmer(sources.All(), cfg.Scheduler.WarmInterval, 2, logger)
	go func() {
		if err := warmer.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Error("cache warmer stopped", "error", err)
		}
	}()

	var deliverer scheduler.Deliverer = scheduler.NewLogDeliverer(logging.Component(logger, "deliverer"))
	if cfg.Scheduler.WebhookURL != "" {
		deliverer = scheduler.NewWebhookDeliverer(cfg.Scheduler.WebhookURL, cfg.Scheduler.WebhookSecret,
			&http.Client{Timeout: cfg.Sources.HTTPTimeout}, logging.Component(logger, "deliverer"))
	}

	notifier := scheduler.NewNotificationScheduler(service, subs, deliverer, logger, scheduler.Options{
		CheckInterval: cfg.Scheduler.TickInterval,
		ReminderLead:  cfg.Scheduler.ReminderLead,
	})
	go notifier.Start(ctx)

	handler := api.NewRouter(api.RouterDeps{
		Runner:      service,
		Subscribers: subs,
		Sources:     agg,
		Issues:      reader,
		Auth: auth.Config{
			JWTSecret:         cfg.Auth.JWTSecret,
			AdminPasswordHash: cfg.Auth.AdminPasswordHash,
			TokenDuration:     cfg.Auth.TokenDuration,
		},
		Metrics: collector,
		Logger:  logger,
	})

	srv := server.New(cfg.Server, logger, handler)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("econcal started successfully", "adapters", len(sources.All()))
	logger.Info("API available", "url", fmt.Sprintf("http://localhost:%s", cfg.Server.Port))

	waitForSignal(logger)

	logger.Info("shutting down")
	notifier.Stop()
	stop()
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	if async != nil {
		drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		if err := async.Close(drainCtx); err != nil {
			logger.Warn("issue log did not drain", "error", err)
		}
		cancel()
	}
	logger.Info("shutdown complete")
}

// purgeIssues deletes persisted issues past retention once a day.
func purgeIssues(ctx context.Context, db *sql.DB, repo *database.PostgresIssueRepository, logger *slog.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		if err := database.HealthCheck(ctx, db); err != nil {
			logger.Warn("issue database unhealthy, skipping purge", "error", err)
		} else if n, err := repo.PurgeOlderThan(ctx, time.Now().Add(-issueRetention)); err != nil {
			logger.Error("failed to purge issues", "error", err)
		} else if n > 0 {
			logger.Info("purged old issues", "count", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func waitForSignal(logger *slog.Logger) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	sig := <-c
	logger.Info("received signal", "signal", sig.String())
	signal.Stop(c)
	close(c)
}
