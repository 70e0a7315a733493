package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogAlerter_CaptureMessage(t *testing.T) {
	var buf bytes.Buffer
	alerter := NewLogAlerter(zerolog.New(&buf))

	alerter.CaptureMessage("outbox processing error: connection refused")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "alerter", entry["component"])
	assert.Equal(t, "outbox processing error: connection refused", entry["message"])
}

func TestLogAlerter_CaptureError(t *testing.T) {
	t.Run("logs the error", func(t *testing.T) {
		var buf bytes.Buffer
		alerter := NewLogAlerter(zerolog.New(&buf))

		alerter.CaptureError(errors.New("flush failed"))

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "flush failed", entry["error"])
	})

	t.Run("ignores nil error", func(t *testing.T) {
		var buf bytes.Buffer
		alerter := NewLogAlerter(zerolog.New(&buf))

		alerter.CaptureError(nil)

		assert.Zero(t, buf.Len())
	})
}

func TestNewSentryAlerter(t *testing.T) {
	// An empty DSN puts the Sentry client in no-op mode; construction must
	// still succeed so disabled environments can share the wiring.
	alerter, err := NewSentryAlerter(SentryConfig{Environment: "test"})
	require.NoError(t, err)
	require.NotNil(t, alerter)

	alerter.CaptureMessage("no-op capture")
	alerter.CaptureError(errors.New("no-op error"))
	alerter.CaptureError(nil)
	alerter.Close()
}
