package sink

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/rs/zerolog"

	"github.com/helixir/event-log-service/internal/config"
	"github.com/helixir/event-log-service/internal/domain"
)

// Compile-time interface verification.
var (
	_ Opener = (*ClickHouseOpener)(nil)
	_ Client = (*ClickHouseClient)(nil)
)

// ClickHouseOpener opens ClickHouse clients from service configuration.
type ClickHouseOpener struct {
	cfg    config.ClickHouseConfig
	logger zerolog.Logger
}

// NewClickHouseOpener creates an Opener for the configured ClickHouse cluster.
func NewClickHouseOpener(cfg config.ClickHouseConfig, logger zerolog.Logger) *ClickHouseOpener {
	return &ClickHouseOpener{
		cfg:    cfg,
		logger: logger.With().Str("component", "sink").Logger(),
	}
}

// Open dials ClickHouse and verifies the connection with a ping.
func (o *ClickHouseOpener) Open(ctx context.Context) (Client, error) {
	opts := &clickhouse.Options{
		Addr: o.cfg.Addr,
		Auth: clickhouse.Auth{
			Database: o.cfg.Database,
			Username: o.cfg.User,
			Password: o.cfg.Password,
		},
		DialTimeout: o.cfg.DialTimeout,
		ReadTimeout: o.cfg.ReadTimeout,
	}
	if o.cfg.Compression {
		opts.Compression = &clickhouse.Compression{Method: clickhouse.CompressionLZ4}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse connection: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrSinkUnavailable, err)
	}

	o.logger.Debug().Strs("addr", o.cfg.Addr).Str("table", o.cfg.Table).Msg("sink connection opened")

	return &ClickHouseClient{
		conn:  conn,
		table: o.cfg.Table,
	}, nil
}

// ClickHouseClient is the ClickHouse implementation of Client.
type ClickHouseClient struct {
	conn  driver.Conn
	table string
}

// Insert delivers the records as a single batch, preserving their order.
// The event context is stored as its JSON wire representation.
func (c *ClickHouseClient) Insert(ctx context.Context, records []*domain.OutboxRecord) error {
	if len(records) == 0 {
		return nil
	}

	statement := fmt.Sprintf(
		"INSERT INTO %s (event_type, event_date_time, environment, event_context, metadata_version)",
		c.table,
	)

	batch, err := c.conn.PrepareBatch(ctx, statement)
	if err != nil {
		return fmt.Errorf("failed to prepare sink batch: %w", err)
	}

	for _, record := range records {
		contextJSON, err := record.ContextJSON()
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to serialize event context for record %d: %w", record.ID, err)
		}

		if err := batch.Append(
			record.EventType,
			record.EventDateTime,
			record.Environment,
			contextJSON,
			uint64(record.MetadataVersion),
		); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append record %d to sink batch: %w", record.ID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send sink batch: %w", err)
	}

	return nil
}

// Query runs a raw statement against the sink and scans the event columns.
func (c *ClickHouseClient) Query(ctx context.Context, statement string) ([]EventRow, error) {
	rows, err := c.conn.Query(ctx, statement)
	if err != nil {
		return nil, fmt.Errorf("failed to query sink: %w", err)
	}
	defer rows.Close()

	var results []EventRow
	for rows.Next() {
		var row EventRow
		if err := rows.Scan(&row.EventType, &row.EventDateTime, &row.Environment, &row.EventContext, &row.MetadataVersion); err != nil {
			return nil, fmt.Errorf("failed to scan sink row: %w", err)
		}
		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sink rows: %w", err)
	}

	return results, nil
}

// Close releases the underlying connection.
func (c *ClickHouseClient) Close() error {
	return c.conn.Close()
}
