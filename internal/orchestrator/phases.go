package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/fyrsmithlabs/worldmodel/internal/batch"
	"github.com/fyrsmithlabs/worldmodel/internal/logging"
)

// rollout is the agent state carried between driver steps.
type rollout struct {
	hidden *mat.Dense
	action *mat.Dense
}

// Prefill collects experience until the replay buffer holds run.prefill
// steps, then flushes the pending episode.
func (o *Orchestrator) Prefill(ctx context.Context) (int, error) {
	ro, err := o.reset(ctx, PhasePrefill)
	if err != nil {
		return 0, err
	}
	steps := 0
	for o.replay.Len() < o.run.Prefill {
		if err := ctx.Err(); err != nil {
			return steps, err
		}
		boundary, err := o.collect(ctx, PhasePrefill, &ro)
		if err != nil {
			return steps, err
		}
		steps++
		if boundary {
			o.flush(PhasePrefill)
			if ro, err = o.reset(ctx, PhasePrefill); err != nil {
				return steps, err
			}
		}
		o.reportProgress(PhaseProgress{Phase: PhasePrefill, Status: StatusInProgress, Current: o.replay.Len(), Total: o.run.Prefill})
	}
	o.flush(PhasePrefill)
	return steps, nil
}

// Pretrain runs run.pretrain unconditional training steps.
func (o *Orchestrator) Pretrain(ctx context.Context) (int, error) {
	for step := 0; step < o.run.Pretrain; step++ {
		if err := ctx.Err(); err != nil {
			return step, err
		}
		if _, err := o.train(ctx, PhasePretrain, step, true); err != nil {
			return step, err
		}
		o.reportProgress(PhaseProgress{Phase: PhasePretrain, Status: StatusInProgress, Current: step + 1, Total: o.run.Pretrain})
	}
	return o.run.Pretrain, nil
}

// Online interleaves collection with gated training, logging and
// evaluation for run.steps steps, then releases the drivers.
func (o *Orchestrator) Online(ctx context.Context) (int, error) {
	ro, err := o.reset(ctx, PhaseOnline)
	if err != nil {
		return 0, err
	}
	for step := 0; step < o.run.Steps; step++ {
		if err := ctx.Err(); err != nil {
			return step, err
		}
		boundary, err := o.collect(ctx, PhaseOnline, &ro)
		if err != nil {
			return step, err
		}
		info, err := o.train(ctx, PhaseOnline, step, o.trainGate.Due(step))
		if err != nil {
			return step, err
		}
		if err := o.logger.Log(ctx, info, step, o.logGate.Due(step), o.evalGate.Due(step)); err != nil {
			return step, fmt.Errorf("logger: %w", err)
		}
		if boundary {
			o.flush(PhaseOnline)
			if ro, err = o.reset(ctx, PhaseOnline); err != nil {
				return step + 1, err
			}
		}
		o.reportProgress(PhaseProgress{Phase: PhaseOnline, Status: StatusInProgress, Current: step + 1, Total: o.run.Steps})
	}
	return o.run.Steps, o.Close()
}

// ZeroShot trains without environment interaction for run.steps steps,
// logging and evaluating on the usual cadence.
func (o *Orchestrator) ZeroShot(ctx context.Context) (int, error) {
	for step := 0; step < o.run.Steps; step++ {
		if err := ctx.Err(); err != nil {
			return step, err
		}
		info, err := o.agent.TrainStepZeroShot(ctx, o.replay)
		if err != nil {
			return step, fmt.Errorf("agent zero-shot train: %w", err)
		}
		o.countTrain(PhaseZeroShot, true, info)
		if err := o.logger.Log(ctx, info, step, o.logGate.Due(step), o.evalGate.Due(step)); err != nil {
			return step, fmt.Errorf("logger: %w", err)
		}
		o.reportProgress(PhaseProgress{Phase: PhaseZeroShot, Status: StatusInProgress, Current: step + 1, Total: o.run.Steps})
	}
	return o.run.Steps, nil
}

// reset starts a new episode batch.
func (o *Orchestrator) reset(ctx context.Context, phase Phase) (rollout, error) {
	r, err := o.driver.Reset(ctx)
	if err != nil {
		return rollout{}, fmt.Errorf("driver reset: %w", err)
	}
	o.state.Resets++
	if o.metrics != nil {
		o.metrics.ResetsTotal.WithLabelValues(string(phase)).Inc()
	}
	return rollout{hidden: r.Hidden, action: r.Action}, nil
}

// collect steps the driver with the carried action, asks the agent for the
// next one and stores the transition. It reports whether the episode batch
// reached a boundary.
func (o *Orchestrator) collect(ctx context.Context, phase Phase, ro *rollout) (bool, error) {
	start := time.Now()
	s, err := o.driver.Step(ctx, ro.action)
	if err != nil {
		return false, fmt.Errorf("driver step: %w", err)
	}
	o.state.EnvSteps++
	if o.metrics != nil {
		o.metrics.EnvStepsTotal.WithLabelValues(string(phase)).Inc()
		o.metrics.StepDuration.WithLabelValues(string(phase)).Observe(time.Since(start).Seconds())
	}

	hidden, action, err := o.agent.Act(ctx, ro.hidden, s.Obs)
	if err != nil {
		return false, fmt.Errorf("agent act: %w", err)
	}
	ro.hidden, ro.action = hidden, action

	if err := o.replay.Store(batch.NewTransition(s.Obs, s.Reward, s.Done, action)); err != nil {
		return false, fmt.Errorf("replay store: %w", err)
	}
	boundary := batch.AnyDone(s.Done) || o.driver.Steps() >= o.timeLimit
	if o.log.Enabled(logging.TraceLevel) {
		o.log.Trace(ctx, "env step",
			zap.Int("episode_steps", o.driver.Steps()),
			zap.Int("replay_len", o.replay.Len()),
			zap.Bool("boundary", boundary),
		)
	}
	return boundary, nil
}

// flush closes the pending episode in the replay buffer.
func (o *Orchestrator) flush(phase Phase) {
	o.replay.AddEpisode()
	o.state.Flushes++
	if o.metrics != nil {
		o.metrics.EpisodesTotal.WithLabelValues(string(phase)).Inc()
		o.metrics.ReplaySteps.Set(float64(o.replay.Len()))
	}
}

func (o *Orchestrator) train(ctx context.Context, phase Phase, step int, due bool) (batch.Info, error) {
	info, err := o.agent.TrainStep(ctx, step, o.replay, due)
	if err != nil {
		return nil, fmt.Errorf("agent train step %d: %w", step, err)
	}
	o.countTrain(phase, due, info)
	return info, nil
}

func (o *Orchestrator) countTrain(phase Phase, due bool, info batch.Info) {
	o.state.TrainCalls++
	result := "gated"
	switch {
	case due && info["skipped"] == 1:
		result = "skip"
	case due:
		result = "update"
		o.state.Updates++
	}
	if o.metrics != nil {
		o.metrics.TrainStepsTotal.WithLabelValues(string(phase), result).Inc()
	}
}
