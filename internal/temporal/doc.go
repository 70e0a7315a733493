// Package temporal provides Temporal client and worker infrastructure for
// scheduling relay runs.
//
// # Overview
//
// The relay worker does not loop or sleep on its own. Each run is a single
// invocation of the relay activity, driven by a cron-scheduled workflow.
// Temporal supplies the scheduling contract the relay depends on: retry with
// backoff on failure, a hard execution timeout that terminates hung runs, and
// workflow id reuse semantics that keep runs from overlapping.
//
// # Components
//
//   - ClientConfig / NewClient: Temporal client construction with optional TLS
//   - RelayScheduleClient: starts the cron workflow and inspects runs
//   - WorkerManager: worker lifecycle with workflow and activity registration
//   - TemporalError: maps Temporal service errors to sentinel errors
//
// # Usage
//
//	c, err := temporal.NewClient(temporal.ClientConfig{
//	    HostPort:  cfg.Temporal.HostPort,
//	    Namespace: cfg.Temporal.Namespace,
//	})
//	manager, err := temporal.NewWorkerManager(c, temporal.DefaultWorkerConfig(cfg.Temporal.TaskQueue))
//	manager.RegisterWorkflow(workflows.RelayWorkflow)
//	manager.RegisterActivity(relayActivities.RelayOutbox)
//	err = manager.Start(ctx)
package temporal
