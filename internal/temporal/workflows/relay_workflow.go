// Package workflows defines the Temporal workflow that schedules outbox
// relay runs.
package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/helixir/event-log-service/internal/temporal/activities"
)

// Scheduler contract defaults. The hard limit terminates a hung run; the
// retry policy re-runs a failed one with backoff. Retried records are safe
// either way because failed and stale-processing records stay claimable.
const (
	// DefaultHardTimeLimit is the activity StartToCloseTimeout.
	DefaultHardTimeLimit = 330 * time.Second

	// DefaultRetryBackoff is the initial retry interval after a failed run.
	DefaultRetryBackoff = 60 * time.Second

	// DefaultMaxRetries is the number of retries after the first failed attempt.
	DefaultMaxRetries = 3

	// retryBackoffCoefficient doubles the interval between successive retries.
	retryBackoffCoefficient = 2.0
)

// RelayWorkflowInput carries the scheduler tunables into the workflow.
// Zero values fall back to the defaults above, so an empty input is valid.
type RelayWorkflowInput struct {
	// HardTimeLimit is the maximum duration of a single relay run.
	HardTimeLimit time.Duration

	// RetryBackoff is the initial delay before retrying a failed run.
	RetryBackoff time.Duration

	// MaxRetries is the number of retries after a failed run.
	MaxRetries int
}

// RelayWorkflowResult summarizes the relay run this workflow invocation executed.
type RelayWorkflowResult struct {
	// RunID identifies the relay run.
	RunID string

	// Reclaimed is the number of stale processing records forced to failed.
	Reclaimed int64

	// Claimed is the number of records claimed.
	Claimed int

	// Relayed is the number of records delivered and marked processed.
	Relayed int
}

// RelayWorkflow executes a single relay run as a Temporal activity.
//
// The workflow is intentionally thin: started on a cron schedule, it invokes
// the relay activity once with the configured timeout and retry policy and
// returns the run summary. All state lives in PostgreSQL; the workflow holds
// none, so a new cron invocation never depends on a previous one.
func RelayWorkflow(ctx workflow.Context, input RelayWorkflowInput) (*RelayWorkflowResult, error) {
	logger := workflow.GetLogger(ctx)

	hardLimit := input.HardTimeLimit
	if hardLimit <= 0 {
		hardLimit = DefaultHardTimeLimit
	}
	backoff := input.RetryBackoff
	if backoff <= 0 {
		backoff = DefaultRetryBackoff
	}
	maxRetries := input.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	actCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: hardLimit,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    backoff,
			BackoffCoefficient: retryBackoffCoefficient,
			// MaximumAttempts counts the first attempt, so retries + 1.
			MaximumAttempts: int32(maxRetries) + 1,
		},
	})

	var relayAct *activities.RelayActivities
	var output activities.RelayRunOutput
	if err := workflow.ExecuteActivity(actCtx, relayAct.RelayOutbox).Get(actCtx, &output); err != nil {
		logger.Error("relay run exhausted retries", "error", err)
		return nil, err
	}

	logger.Info("relay run finished",
		"runID", output.RunID,
		"reclaimed", output.Reclaimed,
		"claimed", output.Claimed,
		"relayed", output.Relayed,
	)

	return &RelayWorkflowResult{
		RunID:     output.RunID,
		Reclaimed: output.Reclaimed,
		Claimed:   output.Claimed,
		Relayed:   output.Relayed,
	}, nil
}
