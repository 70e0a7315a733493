package eventlog

import (
	"context"
	"fmt"

	"github.com/helixir/event-log-service/internal/domain"
	"github.com/helixir/event-log-service/internal/repository"
)

// Recorder creates outbox records tagged with the deployment environment.
//
// Record accepts a DBTX so the insert can ride on the caller's transaction.
// Passing a pgx.Tx gives the transactional outbox guarantee: the event row
// commits or rolls back together with the business change.
type Recorder struct {
	environment string
}

// NewRecorder creates a Recorder for the given deployment environment.
func NewRecorder(environment string) *Recorder {
	return &Recorder{environment: environment}
}

// Environment returns the environment tag applied to recorded events.
func (r *Recorder) Environment() string {
	return r.environment
}

// Record validates and inserts a pending outbox record. The returned record
// carries its database-assigned id and timestamps.
func (r *Recorder) Record(ctx context.Context, db repository.DBTX, eventType string, eventContext map[string]any) (*domain.OutboxRecord, error) {
	record := domain.NewOutboxRecord(eventType, eventContext, r.environment)

	repo := repository.NewPgOutboxRepository(db)
	if err := repo.Insert(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to record event %q: %w", eventType, err)
	}

	return record, nil
}
