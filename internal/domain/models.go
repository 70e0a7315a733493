// Package domain provides domain models and business rules for the event log service.
package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
)

// Status represents the lifecycle states of an outbox record.
// These values must match the database enum outbox_status.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusFailed     Status = "failed"
)

// MaxEventTypeLength is the maximum allowed length of an event type string.
const MaxEventTypeLength = 255

// DefaultMetadataVersion is the schema version assigned to newly emitted events.
const DefaultMetadataVersion = 1

// Valid reports whether the status is one of the known enumeration values.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusProcessed, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if the status represents a final state that will not change.
// Only processed is terminal; failed records are re-claimed by later relay runs.
func (s Status) IsTerminal() bool {
	return s == StatusProcessed
}

// String returns the status as a string.
func (s Status) String() string {
	return string(s)
}

// OutboxRecord is a durable event awaiting relay to the analytical event store.
//
// Records are created inside the emitting use case's transaction with status
// pending and are mutated only by the relay worker thereafter. UpdatedAt is
// the staleness clock: a record stuck in processing past the configured
// threshold is presumed abandoned and reclaimed as failed.
type OutboxRecord struct {
	// ID is assigned by the database on insert.
	ID int64

	// EventType identifies the event kind (e.g. "user.registered").
	EventType string `validate:"required,max=255"`

	// EventDateTime is when the logical event occurred. Defaults to creation time.
	EventDateTime time.Time

	// Environment tags the deployment environment that produced the event.
	Environment string `validate:"required"`

	// EventContext is the structured payload, opaque to the relay.
	EventContext map[string]any `validate:"required"`

	// MetadataVersion is the schema version of EventContext.
	MetadataVersion uint `validate:"required,gt=0"`

	// Status is the record's position in the relay lifecycle.
	Status Status

	// CreatedAt and UpdatedAt are maintained by the store.
	CreatedAt time.Time
	UpdatedAt time.Time
}

var validate = validator.New()

// NewOutboxRecord creates a pending outbox record for the given event.
// EventDateTime defaults to the current time.
func NewOutboxRecord(eventType string, eventContext map[string]any, environment string) *OutboxRecord {
	now := time.Now().UTC()
	return &OutboxRecord{
		EventType:       eventType,
		EventDateTime:   now,
		Environment:     environment,
		EventContext:    eventContext,
		MetadataVersion: DefaultMetadataVersion,
		Status:          StatusPending,
	}
}

// Validate checks the record's invariants. Violations are reported as
// ValidationError values, raised at write time rather than at relay time.
func (r *OutboxRecord) Validate() error {
	if !r.Status.Valid() {
		return NewValidationError("status", "invalid status: "+string(r.Status))
	}

	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return NewValidationError(fieldName(fe.Field()), validationMessage(fe))
		}
		return NewValidationError("record", err.Error())
	}

	return nil
}

// ContextJSON serializes the event context to its wire representation.
func (r *OutboxRecord) ContextJSON() (string, error) {
	b, err := json.Marshal(r.EventContext)
	if err != nil {
		return "", NewValidationError("event_context", "payload is not serializable: "+err.Error())
	}
	return string(b), nil
}

// fieldName maps struct field names to their snake_case wire names.
func fieldName(field string) string {
	switch field {
	case "EventType":
		return "event_type"
	case "EventDateTime":
		return "event_date_time"
	case "Environment":
		return "environment"
	case "EventContext":
		return "event_context"
	case "MetadataVersion":
		return "metadata_version"
	default:
		return field
	}
}

// validationMessage renders a human-readable message for a validator failure.
func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "exceeds maximum length of " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	default:
		return "failed validation rule " + fe.Tag()
	}
}
