// Package activities defines the Temporal activities that drive the outbox
// relay. The relay itself is plain Go; the activity layer adds the scheduler
// contract around it (retry, timeouts, heartbeat-free single invocations).
package activities

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"

	"github.com/helixir/event-log-service/internal/relay"
)

// RelayRunner is the interface used by RelayActivities to execute a relay run.
// This decouples the activity from the concrete relay.Relay implementation,
// enabling straightforward testing with mock implementations.
type RelayRunner interface {
	Run(ctx context.Context) (*relay.RunResult, error)
}

// RelayActivities provides the Temporal activity wrapping the outbox relay.
//
// Methods on this struct are registered as Temporal activities via the worker.
type RelayActivities struct {
	runner RelayRunner
}

// NewRelayActivities creates a new RelayActivities with the given runner.
func NewRelayActivities(runner RelayRunner) *RelayActivities {
	return &RelayActivities{runner: runner}
}

// RelayRunOutput is the serializable result of a relay run.
type RelayRunOutput struct {
	// RunID identifies the run in logs and alerts.
	RunID string

	// Reclaimed is the number of stale processing records forced to failed.
	Reclaimed int64

	// Claimed is the number of records claimed for the run.
	Claimed int

	// Relayed is the number of records delivered and marked processed.
	Relayed int

	// DurationSeconds is the end-to-end run duration.
	DurationSeconds float64
}

// RelayOutbox executes one relay run.
//
// Errors are returned to Temporal so the workflow's retry policy engages;
// the relay has already marked the claimed records failed and alerted by the
// time the error surfaces here.
func (a *RelayActivities) RelayOutbox(ctx context.Context) (*RelayRunOutput, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("starting relay run")

	result, err := a.runner.Run(ctx)
	if err != nil {
		logger.Error("relay run failed", "error", err)
		return nil, fmt.Errorf("relay outbox: %w", err)
	}

	logger.Info("relay run completed",
		"runID", result.RunID,
		"reclaimed", result.Reclaimed,
		"claimed", result.Claimed,
		"relayed", result.Relayed,
		"duration", result.Duration,
	)

	return &RelayRunOutput{
		RunID:           result.RunID,
		Reclaimed:       result.Reclaimed,
		Claimed:         result.Claimed,
		Relayed:         result.Relayed,
		DurationSeconds: result.Duration.Seconds(),
	}, nil
}
