package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/helixir/event-log-service/internal/domain"
)

// Compile-time interface verification.
var _ OutboxRepository = (*PgOutboxRepository)(nil)

// outboxColumns is the canonical column list for outbox SELECT and RETURNING clauses.
const outboxColumns = "id, event_type, event_date_time, environment, event_context, metadata_version, status, created_at, updated_at"

// PgOutboxRepository is a PostgreSQL implementation of OutboxRepository.
type PgOutboxRepository struct {
	db DBTX
}

// NewPgOutboxRepository creates a new PostgreSQL outbox repository.
func NewPgOutboxRepository(db DBTX) *PgOutboxRepository {
	return &PgOutboxRepository{db: db}
}

// Insert persists a new outbox record and populates its database-assigned fields.
// Pass a transaction-scoped repository to make the insert atomic with the
// business change that produced the event.
func (r *PgOutboxRepository) Insert(ctx context.Context, record *domain.OutboxRecord) error {
	if record == nil {
		return domain.NewValidationError("record", "record cannot be nil")
	}
	if err := record.Validate(); err != nil {
		return err
	}

	contextJSON, err := record.ContextJSON()
	if err != nil {
		return err
	}

	query := `
		INSERT INTO outbox (
			event_type, event_date_time, environment, event_context,
			metadata_version, status
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err = r.db.QueryRow(ctx, query,
		record.EventType,
		record.EventDateTime,
		record.Environment,
		contextJSON,
		record.MetadataVersion,
		record.Status,
	).Scan(&record.ID, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert outbox record: %w", err)
	}

	return nil
}

// ReclaimStale forces records stuck in processing since before olderThan to
// failed, making them claimable again. A row in processing past the staleness
// threshold belongs to a relay run that died between claiming and finalizing.
func (r *PgOutboxRepository) ReclaimStale(ctx context.Context, olderThan time.Time) (int64, error) {
	if olderThan.IsZero() {
		return 0, domain.NewValidationError("older_than", "cutoff time is required")
	}

	query := `
		UPDATE outbox
		SET status = $1, updated_at = now()
		WHERE status = $2 AND updated_at < $3`

	tag, err := r.db.Exec(ctx, query, domain.StatusFailed, domain.StatusProcessing, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim stale records: %w", err)
	}

	return tag.RowsAffected(), nil
}

// ClaimBatch atomically claims up to limit deliverable records for this relay
// run. The inner SELECT takes row locks with SKIP LOCKED so concurrent claims
// partition the backlog instead of racing over it, and the UPDATE transitions
// the claimed rows to processing before any of them are returned.
func (r *PgOutboxRepository) ClaimBatch(ctx context.Context, limit int) ([]*domain.OutboxRecord, error) {
	if limit <= 0 {
		return nil, domain.NewValidationError("limit", "limit must be positive")
	}

	query := fmt.Sprintf(`
		WITH claimed AS (
			UPDATE outbox
			SET status = $1, updated_at = now()
			WHERE id IN (
				SELECT id FROM outbox
				WHERE status = ANY($2)
				ORDER BY created_at
				LIMIT $3
				FOR UPDATE SKIP LOCKED
			)
			RETURNING %s
		)
		SELECT %s FROM claimed ORDER BY created_at, id`, outboxColumns, outboxColumns)

	deliverable := []string{string(domain.StatusPending), string(domain.StatusFailed)}
	rows, err := r.db.Query(ctx, query, domain.StatusProcessing, deliverable, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox batch: %w", err)
	}
	defer rows.Close()

	records := make([]*domain.OutboxRecord, 0, limit)
	for rows.Next() {
		record, err := scanOutboxFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox records: %w", err)
	}

	return records, nil
}

// MarkProcessed transitions the given records to the terminal processed status.
func (r *PgOutboxRepository) MarkProcessed(ctx context.Context, ids []int64) (int64, error) {
	return r.setStatus(ctx, ids, domain.StatusProcessed)
}

// MarkFailed transitions the given records to failed. Failed records remain
// deliverable and are picked up again by a later relay run.
func (r *PgOutboxRepository) MarkFailed(ctx context.Context, ids []int64) (int64, error) {
	return r.setStatus(ctx, ids, domain.StatusFailed)
}

// setStatus updates the status of the given records in a single statement.
func (r *PgOutboxRepository) setStatus(ctx context.Context, ids []int64, status domain.Status) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := `
		UPDATE outbox
		SET status = $1, updated_at = now()
		WHERE id = ANY($2)`

	tag, err := r.db.Exec(ctx, query, status, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to mark records %s: %w", status, err)
	}

	return tag.RowsAffected(), nil
}

// GetByID retrieves a single outbox record.
func (r *PgOutboxRepository) GetByID(ctx context.Context, id int64) (*domain.OutboxRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM outbox
		WHERE id = $1`, outboxColumns)

	row := r.db.QueryRow(ctx, query, id)
	record, err := scanOutbox(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("outbox record", fmt.Sprintf("%d", id))
		}
		return nil, fmt.Errorf("failed to get outbox record by ID: %w", err)
	}

	return record, nil
}

// CountByStatus returns the number of records in each status.
func (r *PgOutboxRepository) CountByStatus(ctx context.Context) (map[domain.Status]int64, error) {
	query := `
		SELECT status, COUNT(*)
		FROM outbox
		GROUP BY status`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count records by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.Status]int64)
	for rows.Next() {
		var status domain.Status
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status counts: %w", err)
	}

	return counts, nil
}

// List retrieves outbox records matching the filter criteria.
func (r *PgOutboxRepository) List(ctx context.Context, filter OutboxFilter) ([]*domain.OutboxRecord, int64, error) {
	if err := filter.Validate(); err != nil {
		return nil, 0, err
	}

	// Build dynamic WHERE clause
	var conditions []string
	var args []interface{}
	argIndex := 1

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, *filter.Status)
		argIndex++
	}

	if filter.EventType != nil {
		conditions = append(conditions, fmt.Sprintf("event_type = $%d", argIndex))
		args = append(args, *filter.EventType)
		argIndex++
	}

	if filter.CreatedAfter != nil {
		conditions = append(conditions, fmt.Sprintf("created_at > $%d", argIndex))
		args = append(args, *filter.CreatedAfter)
		argIndex++
	}

	if filter.CreatedBefore != nil {
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", argIndex))
		args = append(args, *filter.CreatedBefore)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	// Count total matching records
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM outbox %s", whereClause)
	var totalCount int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count outbox records: %w", err)
	}

	// Query with pagination
	selectQuery := fmt.Sprintf(`
		SELECT %s
		FROM outbox
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`,
		outboxColumns, whereClause, argIndex, argIndex+1)

	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list outbox records: %w", err)
	}
	defer rows.Close()

	records := make([]*domain.OutboxRecord, 0, filter.Limit)
	for rows.Next() {
		record, err := scanOutboxFromRows(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan outbox record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating outbox records: %w", err)
	}

	return records, totalCount, nil
}

// outboxScanDest holds the destination pointers for scanning an OutboxRecord row.
type outboxScanDest struct {
	record      domain.OutboxRecord
	contextJSON []byte
}

// destinations returns the slice of pointers for Scan operations.
func (d *outboxScanDest) destinations() []interface{} {
	return []interface{}{
		&d.record.ID, &d.record.EventType, &d.record.EventDateTime,
		&d.record.Environment, &d.contextJSON, &d.record.MetadataVersion,
		&d.record.Status, &d.record.CreatedAt, &d.record.UpdatedAt,
	}
}

// finalize performs post-scan processing, deserializing the JSON event context.
func (d *outboxScanDest) finalize() (*domain.OutboxRecord, error) {
	if len(d.contextJSON) > 0 {
		if err := unmarshalContext(d.contextJSON, &d.record.EventContext); err != nil {
			return nil, err
		}
	}
	return &d.record, nil
}

// scanOutbox scans a single row into an OutboxRecord.
func scanOutbox(row pgx.Row) (*domain.OutboxRecord, error) {
	var dest outboxScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize()
}

// scanOutboxFromRows scans the current row from pgx.Rows into an OutboxRecord.
func scanOutboxFromRows(rows pgx.Rows) (*domain.OutboxRecord, error) {
	var dest outboxScanDest
	if err := rows.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize()
}

// unmarshalContext deserializes a stored event context payload.
func unmarshalContext(data []byte, dst *map[string]any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to unmarshal event context: %w", err)
	}
	return nil
}
