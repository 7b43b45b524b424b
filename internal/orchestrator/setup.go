package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/worldmodel/internal/agent"
	"github.com/fyrsmithlabs/worldmodel/internal/config"
	"github.com/fyrsmithlabs/worldmodel/internal/driver"
	"github.com/fyrsmithlabs/worldmodel/internal/logging"
	"github.com/fyrsmithlabs/worldmodel/internal/metrics"
	"github.com/fyrsmithlabs/worldmodel/internal/replay"
	"github.com/fyrsmithlabs/worldmodel/internal/report"
	"github.com/fyrsmithlabs/worldmodel/internal/telemetry"
)

// evalSeedOffset separates the evaluation driver's random stream from the
// training driver's.
const evalSeedOffset = 1_000_003

// SetupOptions are the inputs of Setup beyond the configuration.
type SetupOptions struct {
	// AgentPath restores the agent from a snapshot when set.
	AgentPath string
	// ReplayPath restores the replay buffer from a snapshot when set.
	ReplayPath string
	// Output receives human-rendered frames.
	Output io.Writer

	Logger    *logging.Logger
	Metrics   *metrics.Metrics
	Telemetry *telemetry.Telemetry

	// DriverOptions are passed to every driver.New call.
	DriverOptions []driver.Option
}

// Components are the collaborators Setup built.
type Components struct {
	Driver driver.Driver
	Agent  *agent.Baseline
	Replay *replay.Buffer
	Logger *report.Logger
}

// Setup builds the driver, the agent, the replay buffer, the evaluation
// driver and the logger, restoring snapshots when requested. Nothing is
// stepped. On error everything already built is released.
func Setup(ctx context.Context, cfg *config.Config, in SetupOptions) (o *Orchestrator, c Components, err error) {
	log := in.Logger
	if log == nil {
		log = logging.NewNop()
	}
	ctx = logging.WithPhase(ctx, string(PhaseSetup))
	log.Info(ctx, "using device", zap.String("device", cfg.Device))

	var closers []io.Closer
	defer func() {
		if err == nil {
			return
		}
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			if cerr := closers[i].Close(); cerr != nil {
				errs = append(errs, cerr)
			}
		}
		if cerr := errors.Join(errs...); cerr != nil {
			log.Error(ctx, "release after failed setup", zap.Error(cerr))
		}
	}()

	dopts := append([]driver.Option{driver.WithOutput(in.Output)}, in.DriverOptions...)
	c.Driver, err = driver.New(cfg, dopts...)
	if err != nil {
		return nil, Components{}, fmt.Errorf("setup driver: %w", err)
	}
	closers = append(closers, c.Driver)

	info := c.Driver.EnvInfo()
	log.Info(ctx, "environment ready",
		zap.String("env", cfg.Env.Name),
		zap.Int("num_envs", cfg.Env.NumEnvs),
		zap.Stringer("env_info", info),
	)

	c.Agent, err = agent.New(agent.Spec{ObsDim: info.ObsDim, ActDim: info.ActDim, ActBound: info.ActBound},
		cfg.Model, cfg.Replay, cfg.Env.Seed)
	if err != nil {
		return nil, Components{}, fmt.Errorf("setup agent: %w", err)
	}
	if in.AgentPath != "" {
		if err = c.Agent.Load(in.AgentPath); err != nil {
			return nil, Components{}, fmt.Errorf("setup agent: %w", err)
		}
		log.Info(ctx, "agent restored", zap.String("path", in.AgentPath))
	}

	dims := replay.Dims{Obs: info.ObsDim, Action: info.ActDim}
	if c.Replay, err = setupReplay(cfg, in.ReplayPath, dims); err != nil {
		return nil, Components{}, fmt.Errorf("setup replay: %w", err)
	}
	if in.ReplayPath != "" {
		log.Info(ctx, "replay restored",
			zap.String("path", in.ReplayPath),
			zap.Int("len", c.Replay.Len()),
			zap.Int("episodes", c.Replay.Episodes()),
		)
	}

	evalCfg := *cfg
	evalCfg.Env.Seed = cfg.Env.Seed + evalSeedOffset
	evalDriver, err := driver.New(&evalCfg, dopts...)
	if err != nil {
		return nil, Components{}, fmt.Errorf("setup eval driver: %w", err)
	}
	closers = append(closers, evalDriver)

	c.Logger = report.New(report.Options{
		TimeLimit:    cfg.Env.TimeLimit,
		EvalEpisodes: cfg.Run.EvalEpisodes,
	}, c.Agent, c.Replay, evalDriver, log, in.Metrics)

	o = New(cfg, c.Driver, c.Agent, c.Replay, c.Logger,
		WithLogger(log),
		WithMetrics(in.Metrics),
		WithTelemetry(in.Telemetry),
	)
	return o, c, nil
}

func setupReplay(cfg *config.Config, path string, dims replay.Dims) (*replay.Buffer, error) {
	if path == "" {
		return replay.New(cfg.Replay.Capacity, dims, cfg.Env.Seed)
	}
	b, err := replay.Load(path, cfg.Env.Seed)
	if err != nil {
		return nil, err
	}
	if b.Dims() != dims {
		return nil, fmt.Errorf("%w: snapshot %s holds %+v, environment needs %+v",
			replay.ErrShapeMismatch, path, b.Dims(), dims)
	}
	if n := b.NumEnvs(); n != 0 && n != cfg.Env.NumEnvs {
		return nil, fmt.Errorf("%w: snapshot %s holds batches of %d envs, env.num_envs is %d",
			replay.ErrShapeMismatch, path, n, cfg.Env.NumEnvs)
	}
	if b.Capacity() < cfg.Run.Prefill {
		return nil, fmt.Errorf("snapshot %s has capacity %d, below run.prefill %d",
			path, b.Capacity(), cfg.Run.Prefill)
	}
	return b, nil
}
