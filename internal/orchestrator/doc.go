// Package orchestrator sequences the phases of a world-model training run.
//
// # Phases
//
// A run is built by Setup and then executed by Run in one of two orders:
//
//	setup → prefill → pretrain → online → done
//	setup → zero_shot → done
//
// The order is fixed by run.zero_shot. Each transition is checked with
// RunState.CanTransition so phases cannot be skipped or reordered.
//
//   - prefill resets the driver and collects experience until the replay
//     buffer holds run.prefill steps, then flushes the pending episode.
//   - pretrain calls Agent.TrainStep run.pretrain times with training on.
//   - online collects one step per iteration and calls Agent.TrainStep and
//     Logger.Log with the train, log and eval cadences. It releases the
//     training and evaluation drivers when it finishes.
//   - zero_shot calls Agent.TrainStepZeroShot and Logger.Log for run.steps
//     iterations without touching the environment.
//
// An episode boundary is any done flag in the batch or the driver step
// counter reaching env.time_limit. The whole batch is then flushed to the
// replay buffer and reset together.
//
// # Resources
//
// Run always calls Close before returning, so the drivers are released on
// errors and on context cancellation too. Cancellation is checked between
// steps. Close is idempotent.
//
// # Observability
//
// Every phase runs inside an OpenTelemetry span named "orchestrator.<phase>",
// updates the Prometheus collectors in internal/metrics and logs with the
// phase attached to the context. Progress is reported through the callback
// set with OnProgress.
//
// # Usage Example
//
//	o, c, err := orchestrator.Setup(ctx, cfg, orchestrator.SetupOptions{
//	    AgentPath: agentPath,
//	    Logger:    logger,
//	    Metrics:   metrics.New(),
//	})
//	if err != nil {
//	    return err
//	}
//	o.OnProgress(func(p orchestrator.PhaseProgress) { ... })
//	if err := o.Run(ctx); err != nil {
//	    return err
//	}
//	return c.Agent.Save(savePath)
package orchestrator
