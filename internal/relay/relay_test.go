package relay

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/event-log-service/internal/config"
	"github.com/helixir/event-log-service/internal/domain"
	"github.com/helixir/event-log-service/internal/observability"
	"github.com/helixir/event-log-service/internal/repository"
	"github.com/helixir/event-log-service/internal/sink"
)

// fakeRepo is an in-memory OutboxRepository recording the calls the relay makes.
type fakeRepo struct {
	reclaimCutoff time.Time
	reclaimCount  int64
	reclaimErr    error

	claimLimit   int
	claimRecords []*domain.OutboxRecord
	claimErr     error

	processedIDs     []int64
	markProcessedErr error

	failedIDs     []int64
	markFailedErr error

	counts    map[domain.Status]int64
	countsErr error
}

var _ repository.OutboxRepository = (*fakeRepo)(nil)

func (f *fakeRepo) Insert(ctx context.Context, record *domain.OutboxRecord) error {
	return errors.New("not implemented")
}

func (f *fakeRepo) ReclaimStale(ctx context.Context, olderThan time.Time) (int64, error) {
	f.reclaimCutoff = olderThan
	return f.reclaimCount, f.reclaimErr
}

func (f *fakeRepo) ClaimBatch(ctx context.Context, limit int) ([]*domain.OutboxRecord, error) {
	f.claimLimit = limit
	return f.claimRecords, f.claimErr
}

func (f *fakeRepo) MarkProcessed(ctx context.Context, ids []int64) (int64, error) {
	if f.markProcessedErr != nil {
		return 0, f.markProcessedErr
	}
	f.processedIDs = append(f.processedIDs, ids...)
	return int64(len(ids)), nil
}

func (f *fakeRepo) MarkFailed(ctx context.Context, ids []int64) (int64, error) {
	if f.markFailedErr != nil {
		return 0, f.markFailedErr
	}
	f.failedIDs = append(f.failedIDs, ids...)
	return int64(len(ids)), nil
}

func (f *fakeRepo) GetByID(ctx context.Context, id int64) (*domain.OutboxRecord, error) {
	return nil, domain.NewNotFoundError("outbox record", "fake")
}

func (f *fakeRepo) CountByStatus(ctx context.Context) (map[domain.Status]int64, error) {
	return f.counts, f.countsErr
}

func (f *fakeRepo) List(ctx context.Context, filter repository.OutboxFilter) ([]*domain.OutboxRecord, int64, error) {
	return nil, 0, errors.New("not implemented")
}

// memorySink collects inserted batches in memory.
type memorySink struct {
	inserted  []*domain.OutboxRecord
	insertErr error
	closed    bool
}

var _ sink.Client = (*memorySink)(nil)

func (s *memorySink) Insert(ctx context.Context, records []*domain.OutboxRecord) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserted = append(s.inserted, records...)
	return nil
}

func (s *memorySink) Query(ctx context.Context, statement string) ([]sink.EventRow, error) {
	return nil, errors.New("not implemented")
}

func (s *memorySink) Close() error {
	s.closed = true
	return nil
}

// fakeOpener hands out a memorySink and counts opens.
type fakeOpener struct {
	client  *memorySink
	openErr error
	opens   int
}

var _ sink.Opener = (*fakeOpener)(nil)

func (o *fakeOpener) Open(ctx context.Context) (sink.Client, error) {
	o.opens++
	if o.openErr != nil {
		return nil, o.openErr
	}
	return o.client, nil
}

// spyAlerter records captured errors for assertions.
type spyAlerter struct {
	messages []string
	errors   []error
}

func (a *spyAlerter) CaptureMessage(message string) { a.messages = append(a.messages, message) }
func (a *spyAlerter) CaptureError(err error)        { a.errors = append(a.errors, err) }

func testConfig() config.OutboxConfig {
	return config.OutboxConfig{
		BatchSize:      500,
		StaleThreshold: 10 * time.Minute,
		SoftTimeLimit:  300 * time.Second,
		HardTimeLimit:  330 * time.Second,
	}
}

func claimedRecord(id int64, eventType string, createdAt time.Time) *domain.OutboxRecord {
	return &domain.OutboxRecord{
		ID:              id,
		EventType:       eventType,
		EventDateTime:   createdAt,
		Environment:     "test",
		EventContext:    map[string]any{"id": id},
		MetadataVersion: 1,
		Status:          domain.StatusProcessing,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
}

func TestRelay_Run_HappyPath(t *testing.T) {
	now := time.Now().UTC()
	records := []*domain.OutboxRecord{
		claimedRecord(1, "user.registered", now.Add(-3*time.Minute)),
		claimedRecord(2, "order.placed", now.Add(-2*time.Minute)),
		claimedRecord(3, "order.shipped", now.Add(-time.Minute)),
	}
	repo := &fakeRepo{claimRecords: records}
	client := &memorySink{}
	opener := &fakeOpener{client: client}
	alerter := &spyAlerter{}
	metrics := observability.NewMetricsWithRegistry("test", prometheus.NewRegistry())

	relay := New(repo, opener, testConfig(), zerolog.Nop(), alerter, metrics)
	result, err := relay.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 3, result.Claimed)
	assert.Equal(t, 3, result.Relayed)

	// Whole batch delivered in claim order, then finalized by the frozen id set.
	require.Len(t, client.inserted, 3)
	assert.Equal(t, "user.registered", client.inserted[0].EventType)
	assert.Equal(t, "order.shipped", client.inserted[2].EventType)
	assert.Equal(t, []int64{1, 2, 3}, repo.processedIDs)
	assert.Empty(t, repo.failedIDs)
	assert.True(t, client.closed)
	assert.Empty(t, alerter.errors)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RunsStarted))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RunsCompleted))
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.RecordsRelayed))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.RunsFailed))
}

func TestRelay_Run_EmptyClaim(t *testing.T) {
	repo := &fakeRepo{}
	opener := &fakeOpener{client: &memorySink{}}

	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	relay := New(repo, opener, testConfig(), logger, nil, nil)
	result, err := relay.Run(context.Background())
	require.NoError(t, err)

	// No-op run: zero sink opens, zero status mutations beyond the reclaim step.
	assert.Zero(t, result.Claimed)
	assert.Zero(t, result.Relayed)
	assert.Zero(t, opener.opens)
	assert.Empty(t, repo.processedIDs)
	assert.Empty(t, repo.failedIDs)
	assert.Contains(t, buf.String(), "No pending logs to process")
}

func TestRelay_Run_StaleReclaim(t *testing.T) {
	start := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	repo := &fakeRepo{reclaimCount: 2}
	relay := New(repo, &fakeOpener{client: &memorySink{}}, testConfig(), zerolog.Nop(), nil, nil)
	relay.now = func() time.Time { return start }

	result, err := relay.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(2), result.Reclaimed)
	assert.Equal(t, start.Add(-10*time.Minute), repo.reclaimCutoff)
}

func TestRelay_Run_FlushFailure(t *testing.T) {
	now := time.Now().UTC()
	repo := &fakeRepo{claimRecords: []*domain.OutboxRecord{
		claimedRecord(11, "user.registered", now),
		claimedRecord(12, "order.placed", now),
	}}
	client := &memorySink{insertErr: errors.New("sink write refused")}
	alerter := &spyAlerter{}

	relay := New(repo, &fakeOpener{client: client}, testConfig(), zerolog.Nop(), alerter, nil)
	result, err := relay.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, result)

	// Exactly the claimed ids are marked failed; nothing is marked processed.
	assert.Equal(t, []int64{11, 12}, repo.failedIDs)
	assert.Empty(t, repo.processedIDs)
	assert.True(t, client.closed)

	var relayErr *domain.RelayError
	require.True(t, errors.As(err, &relayErr))
	assert.Equal(t, "flush", relayErr.Step)
	assert.Equal(t, []int64{11, 12}, relayErr.ClaimedIDs)
	assert.True(t, errors.Is(err, domain.ErrRelayFailed))

	require.Len(t, alerter.errors, 1)
	assert.Contains(t, alerter.errors[0].Error(), "sink write refused")
}

func TestRelay_Run_SinkOpenFailure(t *testing.T) {
	now := time.Now().UTC()
	repo := &fakeRepo{claimRecords: []*domain.OutboxRecord{claimedRecord(5, "user.registered", now)}}
	opener := &fakeOpener{openErr: domain.ErrSinkUnavailable}

	relay := New(repo, opener, testConfig(), zerolog.Nop(), nil, nil)
	_, err := relay.Run(context.Background())
	require.Error(t, err)

	assert.Equal(t, []int64{5}, repo.failedIDs)
	assert.True(t, errors.Is(err, domain.ErrSinkUnavailable))
	assert.True(t, errors.Is(err, domain.ErrRelayFailed))
}

func TestRelay_Run_FinalizeFailure(t *testing.T) {
	now := time.Now().UTC()
	client := &memorySink{}
	repo := &fakeRepo{
		claimRecords:     []*domain.OutboxRecord{claimedRecord(7, "user.registered", now)},
		markProcessedErr: errors.New("connection lost"),
	}

	relay := New(repo, &fakeOpener{client: client}, testConfig(), zerolog.Nop(), nil, nil)
	_, err := relay.Run(context.Background())
	require.Error(t, err)

	// The sink accepted the batch before the finalize failed; the record goes
	// back to failed and will be delivered again. At-least-once, by contract.
	require.Len(t, client.inserted, 1)
	assert.Equal(t, []int64{7}, repo.failedIDs)

	var relayErr *domain.RelayError
	require.True(t, errors.As(err, &relayErr))
	assert.Equal(t, "finalize", relayErr.Step)
}

func TestRelay_Run_ClaimFailure(t *testing.T) {
	repo := &fakeRepo{claimErr: errors.New("deadlock detected")}
	alerter := &spyAlerter{}

	relay := New(repo, &fakeOpener{client: &memorySink{}}, testConfig(), zerolog.Nop(), alerter, nil)
	_, err := relay.Run(context.Background())
	require.Error(t, err)

	// Nothing was claimed, so nothing is marked failed.
	assert.Empty(t, repo.failedIDs)
	assert.Len(t, alerter.errors, 1)

	var relayErr *domain.RelayError
	require.True(t, errors.As(err, &relayErr))
	assert.Equal(t, "claim", relayErr.Step)
	assert.Empty(t, relayErr.ClaimedIDs)
}

func TestRelay_Run_MarkFailedFailure(t *testing.T) {
	now := time.Now().UTC()
	repo := &fakeRepo{
		claimRecords:  []*domain.OutboxRecord{claimedRecord(9, "user.registered", now)},
		markFailedErr: errors.New("connection lost"),
	}
	client := &memorySink{insertErr: errors.New("sink down")}

	var buf bytes.Buffer
	relay := New(repo, &fakeOpener{client: client}, testConfig(), zerolog.New(&buf), nil, nil)

	// The failure mark itself failing must not mask the run error. The record
	// stays processing and is recovered by a later run's stale reclaim.
	_, err := relay.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRelayFailed))
	assert.Contains(t, buf.String(), "failed to mark claimed records failed")
}

func TestRelay_Run_SoftTimeLimitWarning(t *testing.T) {
	repo := &fakeRepo{}
	cfg := testConfig()
	cfg.SoftTimeLimit = time.Second

	var buf bytes.Buffer
	relay := New(repo, &fakeOpener{client: &memorySink{}}, cfg, zerolog.New(&buf), nil, nil)

	// Advance the clock past the soft limit between start and finish.
	base := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	calls := 0
	relay.now = func() time.Time {
		calls++
		if calls == 1 {
			return base
		}
		return base.Add(2 * time.Second)
	}

	result, err := relay.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, result.Duration)
	assert.Contains(t, buf.String(), "exceeded soft time limit")
}

func TestRelay_ReportBacklog(t *testing.T) {
	repo := &fakeRepo{counts: map[domain.Status]int64{
		domain.StatusPending: 4,
		domain.StatusFailed:  1,
	}}
	metrics := observability.NewMetricsWithRegistry("test", prometheus.NewRegistry())

	relay := New(repo, &fakeOpener{client: &memorySink{}}, testConfig(), zerolog.Nop(), nil, metrics)
	relay.ReportBacklog(context.Background())

	assert.Equal(t, float64(4), testutil.ToFloat64(metrics.OutboxBacklog.WithLabelValues("pending")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.OutboxBacklog.WithLabelValues("failed")))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.OutboxBacklog.WithLabelValues("processing")))
}

// fakeLocker simulates the cross-process advisory lock.
type fakeLocker struct {
	held     bool
	err      error
	key      int64
	acquires int
	released bool
}

var _ Locker = (*fakeLocker)(nil)

func (l *fakeLocker) WithAdvisoryLock(ctx context.Context, key int64, fn func(ctx context.Context) error) (bool, error) {
	l.acquires++
	l.key = key
	if l.err != nil {
		return false, l.err
	}
	if l.held {
		return false, nil
	}
	err := fn(ctx)
	l.released = true
	return true, err
}

func TestRelay_Run_LockHeldElsewhere(t *testing.T) {
	now := time.Now().UTC()
	repo := &fakeRepo{claimRecords: []*domain.OutboxRecord{claimedRecord(1, "user.registered", now)}}
	opener := &fakeOpener{client: &memorySink{}}
	locker := &fakeLocker{held: true}

	var buf bytes.Buffer
	relay := New(repo, opener, testConfig(), zerolog.New(&buf), nil, nil).
		WithLock(locker, RelayLockKey)

	result, err := relay.Run(context.Background())
	require.NoError(t, err)

	// Skipped run: the store is untouched and the sink is never opened.
	assert.NotEmpty(t, result.RunID)
	assert.Zero(t, result.Claimed)
	assert.Zero(t, opener.opens)
	assert.Zero(t, repo.claimLimit)
	assert.Empty(t, repo.processedIDs)
	assert.Empty(t, repo.failedIDs)
	assert.Equal(t, RelayLockKey, locker.key)
	assert.Contains(t, buf.String(), "skipping run")
}

func TestRelay_Run_HoldsLockForRun(t *testing.T) {
	now := time.Now().UTC()
	repo := &fakeRepo{claimRecords: []*domain.OutboxRecord{claimedRecord(2, "order.placed", now)}}
	client := &memorySink{}
	locker := &fakeLocker{}

	relay := New(repo, &fakeOpener{client: client}, testConfig(), zerolog.Nop(), nil, nil).
		WithLock(locker, RelayLockKey)

	result, err := relay.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Relayed)
	assert.Equal(t, 1, locker.acquires)
	assert.True(t, locker.released)
	assert.Equal(t, []int64{2}, repo.processedIDs)
}

func TestRelay_Run_LockAcquisitionFailure(t *testing.T) {
	repo := &fakeRepo{}
	alerter := &spyAlerter{}
	locker := &fakeLocker{err: errors.New("connection pool exhausted")}

	relay := New(repo, &fakeOpener{client: &memorySink{}}, testConfig(), zerolog.Nop(), alerter, nil).
		WithLock(locker, RelayLockKey)

	_, err := relay.Run(context.Background())
	require.Error(t, err)

	var relayErr *domain.RelayError
	require.True(t, errors.As(err, &relayErr))
	assert.Equal(t, "lock", relayErr.Step)
	assert.Empty(t, relayErr.ClaimedIDs)
	assert.True(t, errors.Is(err, domain.ErrRelayFailed))
	require.Len(t, alerter.errors, 1)
}

func TestRelay_Run_BatchSizeLimit(t *testing.T) {
	repo := &fakeRepo{}
	cfg := testConfig()
	cfg.BatchSize = 100

	relay := New(repo, &fakeOpener{client: &memorySink{}}, cfg, zerolog.Nop(), nil, nil)
	_, err := relay.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100, repo.claimLimit)
}
