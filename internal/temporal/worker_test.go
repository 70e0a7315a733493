package temporal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultWorkerConfig(t *testing.T) {
	cfg := DefaultWorkerConfig("event-log-relay")

	assert.Equal(t, "event-log-relay", cfg.TaskQueue)
	assert.Equal(t, 2, cfg.MaxConcurrentActivityExecutionSize)
	assert.Equal(t, 10, cfg.MaxConcurrentWorkflowTaskExecutionSize)
	assert.Equal(t, 2, cfg.MaxConcurrentActivityTaskPollers)
	assert.Equal(t, 2, cfg.MaxConcurrentWorkflowTaskPollers)
}

func TestWorkerOptionsFromConfig(t *testing.T) {
	t.Run("applies defaults for zero values", func(t *testing.T) {
		options := workerOptionsFromConfig(WorkerConfig{TaskQueue: "q"})

		assert.Equal(t, 2, options.MaxConcurrentActivityExecutionSize)
		assert.Equal(t, 10, options.MaxConcurrentWorkflowTaskExecutionSize)
		assert.Equal(t, 2, options.MaxConcurrentActivityTaskPollers)
		assert.Equal(t, 2, options.MaxConcurrentWorkflowTaskPollers)
	})

	t.Run("keeps explicit values", func(t *testing.T) {
		options := workerOptionsFromConfig(WorkerConfig{
			TaskQueue:                              "q",
			MaxConcurrentActivityExecutionSize:     1,
			MaxConcurrentWorkflowTaskExecutionSize: 5,
			MaxConcurrentActivityTaskPollers:       3,
			MaxConcurrentWorkflowTaskPollers:       4,
		})

		assert.Equal(t, 1, options.MaxConcurrentActivityExecutionSize)
		assert.Equal(t, 5, options.MaxConcurrentWorkflowTaskExecutionSize)
		assert.Equal(t, 3, options.MaxConcurrentActivityTaskPollers)
		assert.Equal(t, 4, options.MaxConcurrentWorkflowTaskPollers)
	})
}

func TestNewWorkerManager(t *testing.T) {
	t.Run("requires a task queue", func(t *testing.T) {
		// The task queue check runs before the worker is constructed, so a
		// nil client is fine here.
		_, err := NewWorkerManager(nil, WorkerConfig{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "task queue is required")
	})
}
