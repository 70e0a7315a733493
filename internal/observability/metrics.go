package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the event log service.
// Metrics are organized by subsystem: relay runs, outbox records, and the
// sink flush path. All counters and histograms are registered via promauto
// for automatic registration with the default Prometheus registry.
type Metrics struct {
	// RunsStarted counts relay runs initiated by the scheduler.
	RunsStarted prometheus.Counter

	// RunsCompleted counts relay runs that finished successfully, including no-op runs.
	RunsCompleted prometheus.Counter

	// RunsFailed counts relay runs that ended in failure.
	RunsFailed prometheus.Counter

	// RunsIdle counts runs that found no eligible records.
	RunsIdle prometheus.Counter

	// RunDuration observes end-to-end relay run duration in seconds.
	RunDuration prometheus.Histogram

	// RecordsEmitted counts outbox records written by the emission helper.
	RecordsEmitted prometheus.Counter

	// EmitFailures counts outbox writes that failed and were swallowed.
	EmitFailures prometheus.Counter

	// RecordsRelayed counts records delivered to the sink.
	RecordsRelayed prometheus.Counter

	// RecordsReclaimed counts stale processing records forced to failed.
	RecordsReclaimed prometheus.Counter

	// RecordsMarkedFailed counts claimed records marked failed after a run error.
	RecordsMarkedFailed prometheus.Counter

	// BatchSize observes the distribution of claimed batch sizes.
	BatchSize prometheus.Histogram

	// FlushDuration observes sink insert duration in seconds.
	FlushDuration prometheus.Histogram

	// FlushFailures counts sink insert calls that raised an error.
	FlushFailures prometheus.Counter

	// OutboxBacklog reports the current number of records per status.
	OutboxBacklog *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance registered on the default
// Prometheus registry. The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegistry(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a new Metrics instance registered on the
// given registerer. Tests use this with a fresh registry to avoid duplicate
// registration panics.
func NewMetricsWithRegistry(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RunsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_runs_started_total",
			Help:      "Total number of relay runs started",
		}),
		RunsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_runs_completed_total",
			Help:      "Total number of relay runs completed successfully",
		}),
		RunsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_runs_failed_total",
			Help:      "Total number of relay runs that failed",
		}),
		RunsIdle: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_runs_idle_total",
			Help:      "Total number of relay runs with no eligible records",
		}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relay_run_duration_seconds",
			Help:      "Duration of relay runs in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 330},
		}),
		RecordsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_records_emitted_total",
			Help:      "Total number of outbox records written by the emission helper",
		}),
		EmitFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_emit_failures_total",
			Help:      "Total number of outbox writes that failed and were swallowed",
		}),
		RecordsRelayed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_records_relayed_total",
			Help:      "Total number of outbox records delivered to the event store",
		}),
		RecordsReclaimed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_records_reclaimed_total",
			Help:      "Total number of stale processing records reclaimed as failed",
		}),
		RecordsMarkedFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_records_marked_failed_total",
			Help:      "Total number of claimed records marked failed after a run error",
		}),
		BatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relay_batch_size",
			Help:      "Number of records claimed per relay run",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),
		FlushDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sink_flush_duration_seconds",
			Help:      "Duration of sink insert calls in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60},
		}),
		FlushFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_flush_failures_total",
			Help:      "Total number of sink insert calls that failed",
		}),
		OutboxBacklog: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outbox_backlog",
			Help:      "Current number of outbox records by status",
		}, []string{"status"}),
	}
}
