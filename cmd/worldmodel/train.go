package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/worldmodel/internal/config"
	"github.com/fyrsmithlabs/worldmodel/internal/http"
	"github.com/fyrsmithlabs/worldmodel/internal/logging"
	"github.com/fyrsmithlabs/worldmodel/internal/metrics"
	"github.com/fyrsmithlabs/worldmodel/internal/orchestrator"
	"github.com/fyrsmithlabs/worldmodel/internal/telemetry"
)

const serverShutdownTimeout = 5 * time.Second

type trainOptions struct {
	envName     string
	agentPath   string
	replayPath  string
	saveAgent   string
	saveReplay  string
	metricsAddr string
	noProgress  bool
}

func newTrainCmd(root *rootOptions) *cobra.Command {
	opts := &trainOptions{}
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Run a training experiment",
		Long: `Run prefill, pretrain and online training (or zero-shot training when
run.zero_shot is set) on the configured environment.

Examples:
  # Train on the physics backend with the bundled defaults
  worldmodel train --env physics

  # Resume from snapshots and save the result
  worldmodel train --env Pendulum-v1 --agent agent.snap --replay replay.snap \
    --save-agent agent.snap --save-replay replay.snap

  # Expose Prometheus metrics while training
  worldmodel train --config config.yaml --metrics-addr localhost:9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrain(cmd.Context(), root.configPath, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.envName, "env", "", "environment id; overrides env.name")
	f.StringVar(&opts.agentPath, "agent", "", "restore the agent from this snapshot")
	f.StringVar(&opts.replayPath, "replay", "", "restore the replay buffer from this snapshot")
	f.StringVar(&opts.saveAgent, "save-agent", "", "write the agent snapshot here after the run")
	f.StringVar(&opts.saveReplay, "save-replay", "", "write the replay snapshot here after the run")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address; overrides metrics.addr")
	f.BoolVar(&opts.noProgress, "no-progress", false, "disable progress bars")
	return cmd
}

// runTrain wires configuration, logging, telemetry, metrics and the
// orchestrator, runs it and writes the requested snapshots.
func runTrain(ctx context.Context, configPath string, opts *trainOptions, stdout, stderr io.Writer) error {
	cfg, err := config.Load(configPath, opts.envName)
	if err != nil {
		return err
	}
	if opts.metricsAddr != "" {
		cfg.Metrics.Addr = opts.metricsAddr
	}

	runID := uuid.NewString()
	tel, err := telemetry.New(ctx, cfg.Telemetry, telemetry.WithResourceAttributes(
		attribute.String("run.id", runID),
		attribute.String("env.name", cfg.Env.Name),
	))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		_ = tel.Shutdown(context.WithoutCancel(ctx))
	}()

	logger, err := logging.NewLogger(cfg.Logging, tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	ctx = logging.WithRunID(ctx, runID)
	ctx = logging.WithEnv(ctx, cfg.Env.Name)
	ctx = logging.WithLogger(ctx, logger)
	logger.Info(ctx, "starting worldmodel",
		zap.String("version", version),
		zap.Bool("zero_shot", cfg.Run.ZeroShot),
		zap.Bool("telemetry", tel.IsEnabled()),
	)

	m := metrics.New()
	o, c, err := orchestrator.Setup(ctx, cfg, orchestrator.SetupOptions{
		AgentPath:  opts.agentPath,
		ReplayPath: opts.replayPath,
		Output:     stdout,
		Logger:     logger,
		Metrics:    m,
		Telemetry:  tel,
	})
	if err != nil {
		return err
	}

	status := newStatusTracker(cfg.Env.Name)
	var bars *progressBars
	if !opts.noProgress {
		bars = newProgressBars(stderr)
	}
	o.OnProgress(func(p orchestrator.PhaseProgress) {
		status.update(p)
		bars.update(p)
	})

	if cfg.Metrics.Addr != "" {
		srv, err := http.NewServer(m.Registry, status.snapshot, healthFunc(tel), logger, &http.Config{Addr: cfg.Metrics.Addr, Meter: tel.Meter("github.com/fyrsmithlabs/worldmodel/internal/http")})
		if err != nil {
			_ = o.Close()
			return err
		}
		srvCtx, stopSrv := context.WithCancel(ctx)
		srvDone := make(chan struct{})
		go func() {
			defer close(srvDone)
			if err := srv.Run(srvCtx, serverShutdownTimeout); err != nil {
				logger.Error(ctx, "metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			stopSrv()
			<-srvDone
		}()
	}

	runErr := o.Run(ctx)
	bars.finish()
	status.finish(runErr)
	if runErr != nil {
		logger.Error(ctx, "run failed", zap.Error(runErr))
		return runErr
	}

	if opts.saveAgent != "" {
		if err := c.Agent.Save(opts.saveAgent); err != nil {
			return fmt.Errorf("save agent: %w", err)
		}
		logger.Info(ctx, "agent saved", zap.String("path", opts.saveAgent))
	}
	if opts.saveReplay != "" {
		if err := c.Replay.Save(opts.saveReplay); err != nil {
			return fmt.Errorf("save replay: %w", err)
		}
		logger.Info(ctx, "replay saved", zap.String("path", opts.saveReplay), zap.Int("len", c.Replay.Len()))
	}
	return nil
}

func healthFunc(tel *telemetry.Telemetry) http.HealthFunc {
	return func() http.HealthResponse {
		h := tel.Health()
		if h.Degraded {
			return http.HealthResponse{Status: "degraded", Telemetry: h.Reason}
		}
		return http.HealthResponse{Status: "ok"}
	}
}
