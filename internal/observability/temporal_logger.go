package observability

import (
	"fmt"

	"github.com/rs/zerolog"
)

// TemporalLogger adapts zerolog to the Temporal SDK's log.Logger interface
// so SDK-internal logging lands in the same stream as service logs.
type TemporalLogger struct {
	logger zerolog.Logger
}

// NewTemporalLogger wraps the given logger, tagging SDK log lines with
// component=temporal-sdk.
func NewTemporalLogger(logger zerolog.Logger) *TemporalLogger {
	return &TemporalLogger{logger: logger.With().Str("component", "temporal-sdk").Logger()}
}

// Debug logs at debug level.
func (l *TemporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug().Fields(fieldsFromKeyvals(keyvals)).Msg(msg)
}

// Info logs at info level.
func (l *TemporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info().Fields(fieldsFromKeyvals(keyvals)).Msg(msg)
}

// Warn logs at warn level.
func (l *TemporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn().Fields(fieldsFromKeyvals(keyvals)).Msg(msg)
}

// Error logs at error level.
func (l *TemporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error().Fields(fieldsFromKeyvals(keyvals)).Msg(msg)
}

// fieldsFromKeyvals converts the SDK's alternating key-value slice into a
// zerolog fields map. A trailing value-less key is dropped.
func fieldsFromKeyvals(keyvals []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", keyvals[i])
		}
		fields[key] = keyvals[i+1]
	}
	return fields
}
