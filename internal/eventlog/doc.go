// Package eventlog provides the event emission side of the transactional
// outbox: recording application events in PostgreSQL so they are delivered
// to the analytical event store by the relay worker.
//
// # Overview
//
// Business code never writes to the event store directly. It records an
// outbox row, either inside its own database transaction (Recorder) or
// fire-and-forget (Logger), and the relay worker handles delivery with
// at-least-once semantics.
//
// # Components
//
//   - Recorder: strict emission; returns errors and composes with the
//     caller's transaction so the event commits or rolls back with the
//     business change that produced it
//   - Logger: best-effort emission; persistence failures are logged,
//     reported to the alerting sink, and swallowed so event logging can
//     never break the business operation
//
// # Usage
//
// Record an event atomically with a business change:
//
//	recorder := eventlog.NewRecorder("production")
//	err := db.WithTransaction(ctx, func(tx pgx.Tx) error {
//	    if err := saveOrder(ctx, tx, order); err != nil {
//	        return err
//	    }
//	    _, err := recorder.Record(ctx, tx, "order.placed", map[string]any{
//	        "order_id": order.ID,
//	    })
//	    return err
//	})
//
// Or fire-and-forget where a lost event is acceptable:
//
//	logger.LogEvent(ctx, "user.login", map[string]any{"user_id": userID})
package eventlog
