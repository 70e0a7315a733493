package eventlog

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/helixir/event-log-service/internal/domain"
	"github.com/helixir/event-log-service/internal/observability"
	"github.com/helixir/event-log-service/internal/repository"
)

// Logger is the best-effort emission helper. Persistence failures are logged,
// reported to the alerting sink, and swallowed: event logging must never
// break the business operation that triggered it. Callers that need the
// write to succeed use Recorder directly.
type Logger struct {
	recorder *Recorder
	db       repository.DBTX
	logger   zerolog.Logger
	alerter  observability.Alerter
	metrics  *observability.Metrics
}

// NewLogger creates a best-effort event logger writing through db.
// alerter and metrics may be nil, in which case the corresponding
// reporting is skipped.
func NewLogger(recorder *Recorder, db repository.DBTX, logger zerolog.Logger, alerter observability.Alerter, metrics *observability.Metrics) *Logger {
	return &Logger{
		recorder: recorder,
		db:       db,
		logger:   logger.With().Str("component", "eventlog").Logger(),
		alerter:  alerter,
		metrics:  metrics,
	}
}

// LogEvent records an event outside any transaction. On failure it returns
// nil after logging and alerting; it never returns an error.
func (l *Logger) LogEvent(ctx context.Context, eventType string, eventContext map[string]any) *domain.OutboxRecord {
	return l.logEvent(ctx, l.db, eventType, eventContext)
}

// LogEventTx records an event on the caller's transaction with the same
// swallow-on-failure contract as LogEvent. Note that a record returned here
// is only durable once the surrounding transaction commits.
func (l *Logger) LogEventTx(ctx context.Context, tx repository.DBTX, eventType string, eventContext map[string]any) *domain.OutboxRecord {
	return l.logEvent(ctx, tx, eventType, eventContext)
}

func (l *Logger) logEvent(ctx context.Context, db repository.DBTX, eventType string, eventContext map[string]any) *domain.OutboxRecord {
	record, err := l.recorder.Record(ctx, db, eventType, eventContext)
	if err != nil {
		logger := observability.WithEventContext(l.logger, eventType, l.recorder.Environment())
		logger.Error().Err(err).Msg("failed to log event")

		if l.alerter != nil {
			l.alerter.CaptureError(err)
		}
		if l.metrics != nil {
			l.metrics.EmitFailures.Inc()
		}
		return nil
	}

	if l.metrics != nil {
		l.metrics.RecordsEmitted.Inc()
	}
	return record
}
