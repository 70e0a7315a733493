// Package relay implements the outbox relay worker: a single-invocation,
// idempotent-per-run procedure that moves pending outbox records from
// PostgreSQL to the analytical event store.
//
// Each run reclaims stale in-flight records, claims a bounded batch, flushes
// it to the sink in one insert, and finalizes statuses. Any failure after
// records were claimed marks exactly those records failed, so at-least-once
// delivery holds under partial failure: a record is lost only if it was never
// claimed, and a record is marked processed only after the sink accepted it.
package relay

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/event-log-service/internal/config"
	"github.com/helixir/event-log-service/internal/domain"
	"github.com/helixir/event-log-service/internal/observability"
	"github.com/helixir/event-log-service/internal/repository"
	"github.com/helixir/event-log-service/internal/sink"
)

// RelayLockKey is the advisory lock key serializing relay runs across
// processes ("eventlog" as big-endian ASCII).
const RelayLockKey int64 = 0x6576656e746c6f67

// Locker serializes relay runs across processes by running a function under
// a database-held lock. *database.DB satisfies it via WithAdvisoryLock.
type Locker interface {
	WithAdvisoryLock(ctx context.Context, key int64, fn func(ctx context.Context) error) (bool, error)
}

// RunResult summarizes a single relay run.
type RunResult struct {
	// RunID uniquely identifies the run in logs and alerts.
	RunID string
	// Reclaimed is the number of stale processing records forced to failed.
	Reclaimed int64
	// Claimed is the number of records claimed for this run.
	Claimed int
	// Relayed is the number of records delivered and marked processed.
	Relayed int
	// Duration is the end-to-end run duration.
	Duration time.Duration
}

// Relay delivers claimed outbox batches to the event store sink.
type Relay struct {
	repo    repository.OutboxRepository
	opener  sink.Opener
	cfg     config.OutboxConfig
	logger  zerolog.Logger
	alerter observability.Alerter
	metrics *observability.Metrics

	// locker, when set, makes runs mutually exclusive across processes.
	locker  Locker
	lockKey int64

	// now is swapped in tests to control the staleness and soft-limit clocks.
	now func() time.Time
}

// New creates a relay worker. alerter and metrics may be nil, in which case
// the corresponding reporting is skipped.
func New(repo repository.OutboxRepository, opener sink.Opener, cfg config.OutboxConfig, logger zerolog.Logger, alerter observability.Alerter, metrics *observability.Metrics) *Relay {
	return &Relay{
		repo:    repo,
		opener:  opener,
		cfg:     cfg,
		logger:  logger.With().Str("component", "relay").Logger(),
		alerter: alerter,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithLock makes runs mutually exclusive across processes by holding the
// given advisory lock for the duration of each run. The cron scheduler
// already prevents overlapping runs; the lock is the safety net if a second
// worker ever races it.
func (r *Relay) WithLock(locker Locker, key int64) *Relay {
	r.locker = locker
	r.lockKey = key
	return r
}

// Run executes one relay pass, holding the advisory lock if one is
// configured. A run skipped because another process holds the lock is a
// successful no-op.
//
// The pass is idempotent per run: re-running after any failure converges the
// store because failed records stay claimable and processed records are
// terminal. Run returns an error only for failures the scheduler should
// retry; an empty claim is a successful no-op.
func (r *Relay) Run(ctx context.Context) (*RunResult, error) {
	if r.locker == nil {
		return r.run(ctx)
	}

	var (
		result *RunResult
		runErr error
	)
	acquired, err := r.locker.WithAdvisoryLock(ctx, r.lockKey, func(ctx context.Context) error {
		result, runErr = r.run(ctx)
		return nil
	})
	if err != nil {
		return nil, r.fail(ctx, r.logger, nil, "lock", err)
	}
	if !acquired {
		r.logger.Info().Int64("lock_key", r.lockKey).Msg("relay lock held by another process, skipping run")
		return &RunResult{RunID: uuid.New().String()}, nil
	}
	return result, runErr
}

// run executes the reclaim, claim, flush, finalize sequence.
func (r *Relay) run(ctx context.Context) (*RunResult, error) {
	start := r.now()
	result := &RunResult{RunID: uuid.New().String()}
	logger := observability.WithRunContext(r.logger, result.RunID)

	if r.metrics != nil {
		r.metrics.RunsStarted.Inc()
	}

	// Step 1: recover records orphaned by a prior run that died mid-flush.
	// Without this they stay processing forever and delivery silently stalls.
	reclaimed, err := r.repo.ReclaimStale(ctx, start.Add(-r.cfg.StaleThreshold))
	if err != nil {
		return nil, r.fail(ctx, logger, nil, "reclaim", err)
	}
	result.Reclaimed = reclaimed
	if reclaimed > 0 {
		logger.Warn().Int64("reclaimed", reclaimed).Msg("reclaimed stale processing records")
		if r.metrics != nil {
			r.metrics.RecordsReclaimed.Add(float64(reclaimed))
		}
	}

	// Step 2: claim a bounded batch, oldest first. The claim transitions the
	// records to processing atomically, so a concurrent run cannot see them.
	records, err := r.repo.ClaimBatch(ctx, r.cfg.BatchSize)
	if err != nil {
		return nil, r.fail(ctx, logger, nil, "claim", err)
	}

	if len(records) == 0 {
		logger.Info().Msg("No pending logs to process")
		r.finishRun(logger, result, start)
		if r.metrics != nil {
			r.metrics.RunsIdle.Inc()
		}
		return result, nil
	}

	result.Claimed = len(records)
	if r.metrics != nil {
		r.metrics.BatchSize.Observe(float64(len(records)))
	}

	// Freeze the claimed id set now. Every later mutation in this run targets
	// exactly these ids, never a re-queried status set.
	ids := make([]int64, len(records))
	for i, record := range records {
		ids[i] = record.ID
	}

	// Step 3: flush the whole batch to the sink in one insert, in claim order.
	if err := r.flush(ctx, records); err != nil {
		return nil, r.fail(ctx, logger, ids, "flush", err)
	}

	// Step 4: finalize. Only records the sink accepted reach this update.
	marked, err := r.repo.MarkProcessed(ctx, ids)
	if err != nil {
		// The sink already has the batch; marking failed here means these
		// records will be delivered again. At-least-once, not exactly-once.
		return nil, r.fail(ctx, logger, ids, "finalize", err)
	}
	if marked != int64(len(ids)) {
		logger.Warn().Int64("marked", marked).Int("claimed", len(ids)).
			Msg("processed mark count does not match claimed batch")
	}

	result.Relayed = len(records)
	if r.metrics != nil {
		r.metrics.RecordsRelayed.Add(float64(len(records)))
	}
	logger.Info().Int("size", len(records)).Msg("Processed batch")

	r.finishRun(logger, result, start)
	return result, nil
}

// flush opens a scoped sink client for this run and delivers the batch.
func (r *Relay) flush(ctx context.Context, records []*domain.OutboxRecord) error {
	client, err := r.opener.Open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			r.logger.Warn().Err(closeErr).Msg("failed to close sink client")
		}
	}()

	flushStart := time.Now()
	err = client.Insert(ctx, records)
	if r.metrics != nil {
		r.metrics.FlushDuration.Observe(time.Since(flushStart).Seconds())
		if err != nil {
			r.metrics.FlushFailures.Inc()
		}
	}
	return err
}

// fail handles the failure boundary: mark the frozen claimed id set failed,
// log, alert, and wrap the error for the scheduler's retry policy.
func (r *Relay) fail(ctx context.Context, logger zerolog.Logger, claimedIDs []int64, step string, cause error) error {
	if len(claimedIDs) > 0 {
		marked, markErr := r.repo.MarkFailed(ctx, claimedIDs)
		if markErr != nil {
			// The records stay processing; the stale reclaim of a later run
			// recovers them once past the threshold.
			logger.Error().Err(markErr).Ints64("claimed_ids", claimedIDs).
				Msg("failed to mark claimed records failed")
		} else if r.metrics != nil {
			r.metrics.RecordsMarkedFailed.Add(float64(marked))
		}
	}

	relayErr := &domain.RelayError{Step: step, ClaimedIDs: claimedIDs, Err: cause}
	logger.Error().Err(cause).Str("step", step).Int("claimed", len(claimedIDs)).
		Msg("relay run failed")

	if r.alerter != nil {
		r.alerter.CaptureError(relayErr)
	}
	if r.metrics != nil {
		r.metrics.RunsFailed.Inc()
	}

	return relayErr
}

// finishRun records run duration, flags slow runs, and updates the backlog gauge.
func (r *Relay) finishRun(logger zerolog.Logger, result *RunResult, start time.Time) {
	result.Duration = r.now().Sub(start)

	if r.cfg.SoftTimeLimit > 0 && result.Duration > r.cfg.SoftTimeLimit {
		logger.Warn().Dur("duration", result.Duration).Dur("soft_time_limit", r.cfg.SoftTimeLimit).
			Msg("relay run exceeded soft time limit")
	}

	if r.metrics != nil {
		r.metrics.RunsCompleted.Inc()
		r.metrics.RunDuration.Observe(result.Duration.Seconds())
	}
}

// ReportBacklog refreshes the per-status backlog gauge. Called after runs and
// from the worker's periodic reporting loop; failures are logged only.
func (r *Relay) ReportBacklog(ctx context.Context) {
	if r.metrics == nil {
		return
	}

	counts, err := r.repo.CountByStatus(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("failed to report outbox backlog")
		return
	}

	for _, status := range []domain.Status{domain.StatusPending, domain.StatusProcessing, domain.StatusProcessed, domain.StatusFailed} {
		r.metrics.OutboxBacklog.WithLabelValues(status.String()).Set(float64(counts[status]))
	}
}
