package repository

import (
	"context"
	"time"

	"github.com/helixir/event-log-service/internal/domain"
)

// OutboxRepository manages the lifecycle of outbox records: insertion alongside
// business transactions, claiming for relay, and finalization after delivery.
type OutboxRepository interface {
	// Insert persists a new outbox record. The record's ID, CreatedAt, and
	// UpdatedAt fields are populated from the database on success.
	Insert(ctx context.Context, record *domain.OutboxRecord) error

	// ReclaimStale forces records stuck in processing since before olderThan
	// to failed. A stale processing row indicates a relay run that died
	// between claiming and finalizing; marking it failed makes it claimable
	// again. Returns the number of records reclaimed.
	ReclaimStale(ctx context.Context, olderThan time.Time) (int64, error)

	// ClaimBatch atomically selects up to limit deliverable records (pending or
	// failed, oldest first) and transitions them to processing in a single
	// statement. Rows locked by a concurrent claim are skipped, so two relays
	// can never claim the same record. The claimed records are returned in
	// creation order.
	ClaimBatch(ctx context.Context, limit int) ([]*domain.OutboxRecord, error)

	// MarkProcessed transitions the given records to the terminal processed
	// status. Returns the number of records updated.
	MarkProcessed(ctx context.Context, ids []int64) (int64, error)

	// MarkFailed transitions the given records to failed so a later relay run
	// retries them. Returns the number of records updated.
	MarkFailed(ctx context.Context, ids []int64) (int64, error)

	// GetByID retrieves a single outbox record.
	GetByID(ctx context.Context, id int64) (*domain.OutboxRecord, error)

	// CountByStatus returns the number of records in each status. Statuses with
	// no records are absent from the map.
	CountByStatus(ctx context.Context) (map[domain.Status]int64, error)

	// List retrieves outbox records matching the filter criteria along with the
	// total count of matching records.
	List(ctx context.Context, filter OutboxFilter) ([]*domain.OutboxRecord, int64, error)
}

// OutboxFilter specifies criteria for listing outbox records.
type OutboxFilter struct {
	Status        *domain.Status
	EventType     *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Limit         int
	Offset        int
}

// Validate checks the filter for invalid criteria and normalizes pagination.
func (f *OutboxFilter) Validate() error {
	if f.Status != nil && !f.Status.Valid() {
		return domain.NewValidationError("status", "invalid status: "+string(*f.Status))
	}
	if f.CreatedAfter != nil && f.CreatedBefore != nil && f.CreatedAfter.After(*f.CreatedBefore) {
		return domain.NewValidationError("created_after", "created_after must not be later than created_before")
	}
	applyPaginationDefaults(&f.Limit, &f.Offset)
	return nil
}
