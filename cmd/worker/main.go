// Package main provides the entry point for the event log relay worker.
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
	"go.temporal.io/sdk/client"

	"github.com/helixir/event-log-service/internal/config"
	"github.com/helixir/event-log-service/internal/database"
	"github.com/helixir/event-log-service/internal/observability"
	"github.com/helixir/event-log-service/internal/relay"
	"github.com/helixir/event-log-service/internal/repository"
	"github.com/helixir/event-log-service/internal/sink"
	"github.com/helixir/event-log-service/internal/temporal"
	"github.com/helixir/event-log-service/internal/temporal/activities"
	"github.com/helixir/event-log-service/internal/temporal/workflows"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "worker").Logger()
	logger.Info().Str("environment", cfg.Environment).Msg("event-log-service worker starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Set up alerting. Falls back to error-level logging when Sentry is off.
	var alerter observability.Alerter
	if cfg.Sentry.Enabled {
		sentryAlerter, err := observability.NewSentryAlerter(observability.SentryConfig{
			DSN:          cfg.Sentry.DSN,
			Environment:  cfg.Sentry.Environment,
			FlushTimeout: cfg.Sentry.FlushTimeout,
		})
		if err != nil {
			return fmt.Errorf("create sentry alerter: %w", err)
		}
		defer sentryAlerter.Close()
		alerter = sentryAlerter
		logger.Info().Msg("sentry alerter configured")
	} else {
		alerter = observability.NewLogAlerter(logger)
	}

	// Connect to PostgreSQL.
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	// Run migrations on startup if configured.
	if cfg.Database.MigrationAutoRun {
		migrator, err := database.NewMigrator(db, cfg.Database.MigrationPath, logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		if err := migrator.Up(); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		if err := migrator.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close migrator")
		}
		logger.Info().Msg("migrations applied")
	}

	// Create the outbox repository and sink opener.
	outboxRepo := repository.NewPgOutboxRepository(db)
	opener := sink.NewClickHouseOpener(cfg.ClickHouse, logger)

	// Create metrics and expose them over HTTP.
	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics("eventlog")
		startMetricsServer(ctx, cfg, logger)
	}

	// Create the relay worker. The advisory lock backs up the scheduler's
	// single-run guarantee if a second worker process ever races it.
	relayWorker := relay.New(outboxRepo, opener, cfg.Outbox, logger, alerter, metrics).
		WithLock(db, relay.RelayLockKey)

	// Refresh the backlog gauges between relay runs.
	if cfg.Metrics.Enabled {
		go func() {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					relayWorker.ReportBacklog(ctx)
				}
			}
		}()
	}

	// Create Temporal client.
	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    observability.NewTemporalLogger(logger),
	})
	if err != nil {
		return fmt.Errorf("connect to temporal: %w", err)
	}
	defer temporalClient.Close()
	logger.Info().
		Str("host_port", cfg.Temporal.HostPort).
		Str("namespace", cfg.Temporal.Namespace).
		Msg("temporal client connected")

	// Create WorkerManager and register the relay workflow and activities.
	workerConfig := temporal.DefaultWorkerConfig(cfg.Temporal.TaskQueue)
	manager, err := temporal.NewWorkerManager(temporalClient, workerConfig)
	if err != nil {
		return fmt.Errorf("create worker manager: %w", err)
	}

	manager.RegisterWorkflow(workflows.RelayWorkflow)
	manager.RegisterActivity(activities.NewRelayActivities(relayWorker))

	// Put the cron schedule in place. A second worker racing to start it
	// gets already-started, which means the schedule is in place.
	scheduleClient := temporal.NewRelayScheduleClient(temporalClient, temporal.ClientConfig{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		TaskQueue: cfg.Temporal.TaskQueue,
	})

	workflowID, runID, err := scheduleClient.StartRelaySchedule(ctx, cfg.Outbox.CronSchedule, workflows.RelayWorkflow, workflows.RelayWorkflowInput{
		HardTimeLimit: cfg.Outbox.HardTimeLimit,
		RetryBackoff:  cfg.Outbox.RetryBackoff,
		MaxRetries:    cfg.Outbox.MaxRetries,
	})
	switch {
	case err == nil:
		logger.Info().
			Str("workflow_id", workflowID).
			Str("run_id", runID).
			Str("cron", cfg.Outbox.CronSchedule).
			Msg("relay schedule started")
	case temporal.IsWorkflowAlreadyStarted(err):
		logger.Info().
			Str("workflow_id", temporal.RelayWorkflowID).
			Str("cron", cfg.Outbox.CronSchedule).
			Msg("relay schedule already in place")
	default:
		return fmt.Errorf("start relay schedule: %w", err)
	}

	logger.Info().
		Str("task_queue", cfg.Temporal.TaskQueue).
		Msg("starting temporal worker")

	// Start the worker and block until context is cancelled.
	if err := manager.Start(ctx); err != nil {
		if ctx.Err() != nil {
			logger.Info().Msg("worker stopped via signal")
			return nil
		}
		return fmt.Errorf("worker error: %w", err)
	}

	return nil
}

// startMetricsServer exposes the Prometheus registry over HTTP and shuts the
// listener down when ctx is cancelled.
func startMetricsServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.Server.MetricsAddress(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().
			Str("address", srv.Addr).
			Str("path", cfg.Metrics.Path).
			Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}()
}
