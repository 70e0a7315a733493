package workflows

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/helixir/event-log-service/internal/temporal/activities"
)

func TestRelayWorkflow_Success(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	var relayAct *activities.RelayActivities

	env.OnActivity(relayAct.RelayOutbox, mock.Anything).Return(
		&activities.RelayRunOutput{
			RunID:           "run-7",
			Reclaimed:       1,
			Claimed:         42,
			Relayed:         42,
			DurationSeconds: 3.2,
		}, nil,
	)

	env.ExecuteWorkflow(RelayWorkflow, RelayWorkflowInput{})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result RelayWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, "run-7", result.RunID)
	assert.Equal(t, int64(1), result.Reclaimed)
	assert.Equal(t, 42, result.Claimed)
	assert.Equal(t, 42, result.Relayed)

	env.AssertExpectations(t)
}

func TestRelayWorkflow_IdleRun(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	var relayAct *activities.RelayActivities

	env.OnActivity(relayAct.RelayOutbox, mock.Anything).Return(
		&activities.RelayRunOutput{RunID: "run-8"}, nil,
	)

	env.ExecuteWorkflow(RelayWorkflow, RelayWorkflowInput{
		HardTimeLimit: DefaultHardTimeLimit,
		RetryBackoff:  DefaultRetryBackoff,
		MaxRetries:    DefaultMaxRetries,
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result RelayWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, "run-8", result.RunID)
	assert.Zero(t, result.Claimed)
	assert.Zero(t, result.Relayed)
}

func TestRelayWorkflow_ActivityFailure(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	var relayAct *activities.RelayActivities

	// NonRetryable keeps the test environment from replaying the retry
	// policy's backoff schedule before surfacing the error.
	env.OnActivity(relayAct.RelayOutbox, mock.Anything).Return(
		nil, temporal.NewNonRetryableApplicationError("relay outbox: sink unreachable", "relayError", nil),
	)

	env.ExecuteWorkflow(RelayWorkflow, RelayWorkflowInput{})

	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)

	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Contains(t, appErr.Error(), "sink unreachable")
}

func TestRelayWorkflow_RetriesTransientFailure(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	var relayAct *activities.RelayActivities

	calls := 0
	env.OnActivity(relayAct.RelayOutbox, mock.Anything).Return(
		func(_ context.Context) (*activities.RelayRunOutput, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("relay outbox: flush timed out")
			}
			return &activities.RelayRunOutput{RunID: "run-9", Claimed: 3, Relayed: 3}, nil
		},
	)

	env.ExecuteWorkflow(RelayWorkflow, RelayWorkflowInput{})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result RelayWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, "run-9", result.RunID)
	assert.Equal(t, 2, calls)
}

func TestRelayWorkflowInput_Defaults(t *testing.T) {
	assert.Equal(t, int64(330), int64(DefaultHardTimeLimit.Seconds()))
	assert.Equal(t, int64(60), int64(DefaultRetryBackoff.Seconds()))
	assert.Equal(t, 3, DefaultMaxRetries)
}
