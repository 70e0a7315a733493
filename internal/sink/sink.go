// Package sink provides the analytical event store client used by the relay
// worker to deliver outbox records.
//
// The relay opens a client per run through an Opener, flushes the claimed
// batch with a single Insert call, and closes the client. Query exists for
// verification in tests and operational tooling; the relay never reads back.
package sink

import (
	"context"
	"time"

	"github.com/helixir/event-log-service/internal/domain"
)

// EventRow is a delivered event as stored in the sink.
type EventRow struct {
	EventType       string
	EventDateTime   time.Time
	Environment     string
	EventContext    string
	MetadataVersion uint64
}

// Client writes event batches to the analytical store.
//
// Insert is all-or-nothing from the relay's perspective: either the whole
// batch is accepted or an error is returned and no record is finalized.
// Implementations do not retry internally; retry policy belongs to the
// scheduler above the relay.
type Client interface {
	// Insert delivers the records in the given order as one batch.
	Insert(ctx context.Context, records []*domain.OutboxRecord) error

	// Query runs a raw statement and returns the matching rows.
	Query(ctx context.Context, statement string) ([]EventRow, error)

	// Close releases the client's resources.
	Close() error
}

// Opener acquires a scoped Client. The relay opens a fresh client for each
// run so a sink outage in one run cannot poison connections for the next.
type Opener interface {
	Open(ctx context.Context) (Client, error)
}
