package domain

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_Valid(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		valid  bool
	}{
		{name: "pending", status: StatusPending, valid: true},
		{name: "processing", status: StatusProcessing, valid: true},
		{name: "processed", status: StatusProcessed, valid: true},
		{name: "failed", status: StatusFailed, valid: true},
		{name: "empty", status: Status(""), valid: false},
		{name: "unknown", status: Status("archived"), valid: false},
		{name: "case sensitive", status: Status("Pending"), valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.status.Valid())
		})
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.True(t, StatusProcessed.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusProcessing.IsTerminal())

	// failed is not terminal: later relay runs re-claim failed records
	assert.False(t, StatusFailed.IsTerminal())
}

func TestNewOutboxRecord(t *testing.T) {
	before := time.Now().UTC()
	rec := NewOutboxRecord("user.registered", map[string]any{"email": "a@b.c"}, "production")
	after := time.Now().UTC()

	assert.Equal(t, "user.registered", rec.EventType)
	assert.Equal(t, "production", rec.Environment)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Equal(t, uint(DefaultMetadataVersion), rec.MetadataVersion)
	assert.False(t, rec.EventDateTime.Before(before))
	assert.False(t, rec.EventDateTime.After(after))
	assert.NoError(t, rec.Validate())
}

func TestOutboxRecord_Validate(t *testing.T) {
	valid := func() *OutboxRecord {
		return NewOutboxRecord("user.registered", map[string]any{"k": "v"}, "test")
	}

	t.Run("accepts valid record", func(t *testing.T) {
		require.NoError(t, valid().Validate())
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		rec := valid()
		rec.Status = Status("archived")
		err := rec.Validate()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidInput))

		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "status", verr.Field)
	})

	t.Run("rejects empty event type", func(t *testing.T) {
		rec := valid()
		rec.EventType = ""
		err := rec.Validate()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidInput))
	})

	t.Run("rejects oversized event type", func(t *testing.T) {
		rec := valid()
		rec.EventType = strings.Repeat("x", MaxEventTypeLength+1)
		err := rec.Validate()
		require.Error(t, err)

		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "event_type", verr.Field)
	})

	t.Run("accepts event type at the boundary", func(t *testing.T) {
		rec := valid()
		rec.EventType = strings.Repeat("x", MaxEventTypeLength)
		assert.NoError(t, rec.Validate())
	})

	t.Run("rejects empty environment", func(t *testing.T) {
		rec := valid()
		rec.Environment = ""
		err := rec.Validate()
		require.Error(t, err)
	})

	t.Run("rejects zero metadata version", func(t *testing.T) {
		rec := valid()
		rec.MetadataVersion = 0
		err := rec.Validate()
		require.Error(t, err)

		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "metadata_version", verr.Field)
	})
}

func TestOutboxRecord_ContextJSON(t *testing.T) {
	t.Run("serializes context", func(t *testing.T) {
		rec := NewOutboxRecord("evt", map[string]any{"data": "test0"}, "test")
		s, err := rec.ContextJSON()
		require.NoError(t, err)
		assert.JSONEq(t, `{"data":"test0"}`, s)
	})

	t.Run("reports unserializable payload as validation error", func(t *testing.T) {
		rec := NewOutboxRecord("evt", map[string]any{"bad": make(chan int)}, "test")
		_, err := rec.ContextJSON()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidInput))
	})
}

func TestRelayError(t *testing.T) {
	cause := errors.New("connection refused")
	err := &RelayError{Step: "flush", ClaimedIDs: []int64{1, 2, 3}, Err: cause}

	assert.Contains(t, err.Error(), "flush")
	assert.Contains(t, err.Error(), "3 records")
	assert.True(t, errors.Is(err, ErrRelayFailed))
	assert.True(t, errors.Is(err, cause))
}
