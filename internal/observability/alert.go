package observability

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
)

// Alerter is the external error-aggregation boundary. Implementations must
// be safe for concurrent use; callers never consult a return value.
type Alerter interface {
	// CaptureMessage reports a plain message to the aggregation sink.
	CaptureMessage(message string)

	// CaptureError reports an error to the aggregation sink.
	CaptureError(err error)
}

// SentryConfig contains Sentry alerter configuration.
type SentryConfig struct {
	// DSN is the Sentry project DSN.
	DSN string

	// Environment tags reported events.
	Environment string

	// FlushTimeout is the maximum time Close waits for buffered events.
	FlushTimeout time.Duration
}

// SentryAlerter reports messages and errors to Sentry.
type SentryAlerter struct {
	hub          *sentry.Hub
	flushTimeout time.Duration
}

// Compile-time check that *SentryAlerter implements Alerter.
var _ Alerter = (*SentryAlerter)(nil)

// NewSentryAlerter creates a SentryAlerter with its own client and hub,
// leaving the package-level Sentry state untouched.
func NewSentryAlerter(cfg SentryConfig) (*SentryAlerter, error) {
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
	})
	if err != nil {
		return nil, fmt.Errorf("create sentry client: %w", err)
	}

	flushTimeout := cfg.FlushTimeout
	if flushTimeout == 0 {
		flushTimeout = 2 * time.Second
	}

	return &SentryAlerter{
		hub:          sentry.NewHub(client, sentry.NewScope()),
		flushTimeout: flushTimeout,
	}, nil
}

// CaptureMessage reports a plain message to Sentry.
func (a *SentryAlerter) CaptureMessage(message string) {
	a.hub.CaptureMessage(message)
}

// CaptureError reports an error to Sentry.
func (a *SentryAlerter) CaptureError(err error) {
	if err == nil {
		return
	}
	a.hub.CaptureException(err)
}

// Close flushes buffered events. Call during shutdown.
func (a *SentryAlerter) Close() {
	a.hub.Flush(a.flushTimeout)
}

// LogAlerter degrades alerting to error-level log lines. Used when Sentry
// is not configured so callers always have a non-nil Alerter.
type LogAlerter struct {
	logger zerolog.Logger
}

// Compile-time check that *LogAlerter implements Alerter.
var _ Alerter = (*LogAlerter)(nil)

// NewLogAlerter creates a LogAlerter writing to the given logger.
func NewLogAlerter(logger zerolog.Logger) *LogAlerter {
	return &LogAlerter{logger: logger.With().Str("component", "alerter").Logger()}
}

// CaptureMessage logs the message at error level.
func (a *LogAlerter) CaptureMessage(message string) {
	a.logger.Error().Msg(message)
}

// CaptureError logs the error at error level.
func (a *LogAlerter) CaptureError(err error) {
	if err == nil {
		return
	}
	a.logger.Error().Err(err).Msg("alert")
}
