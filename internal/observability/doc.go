// Package observability provides logging, metrics, and alerting support for
// the event log service.
//
// # Overview
//
// The observability package provides:
//
//   - Structured logging with zerolog
//   - Prometheus metrics for relay runs, outbox records, and sink flushes
//   - An Alerter boundary for external error aggregation (Sentry)
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger.Info().Int("size", n).Msg("processed batch")
//
// Add relay run context to a logger:
//
//	logger = observability.WithRunContext(logger, runID)
//
// # Metrics
//
// Initialize metrics once at startup:
//
//	metrics := observability.NewMetrics("eventlog")
//
// Record metrics:
//
//	metrics.RunsStarted.Inc()
//	metrics.BatchSize.Observe(float64(len(batch)))
//
// # Alerting
//
// The Alerter interface is the boundary to the external error aggregator.
// Production wiring uses SentryAlerter; when Sentry is disabled, LogAlerter
// keeps the boundary non-nil by degrading to error-level log lines.
package observability
