package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/fyrsmithlabs/worldmodel/internal/batch"
	"github.com/fyrsmithlabs/worldmodel/internal/cadence"
	"github.com/fyrsmithlabs/worldmodel/internal/config"
	"github.com/fyrsmithlabs/worldmodel/internal/driver"
	"github.com/fyrsmithlabs/worldmodel/internal/logging"
	"github.com/fyrsmithlabs/worldmodel/internal/metrics"
	"github.com/fyrsmithlabs/worldmodel/internal/replay"
	"github.com/fyrsmithlabs/worldmodel/internal/telemetry"
)

const instrumentationName = "github.com/fyrsmithlabs/worldmodel/internal/orchestrator"

// Agent acts in the environment and trains on replayed experience.
type Agent interface {
	Act(ctx context.Context, hidden, obs *mat.Dense) (*mat.Dense, *mat.Dense, error)
	TrainStep(ctx context.Context, step int, data replay.Sampler, train bool) (batch.Info, error)
	TrainStepZeroShot(ctx context.Context, data replay.Sampler) (batch.Info, error)
}

// ReplayBuffer stores transitions grouped into episodes.
type ReplayBuffer interface {
	replay.Sampler
	Store(t batch.Transition) error
	Len() int
	AddEpisode()
}

// Logger records training info and evaluates on its own driver.
type Logger interface {
	Log(ctx context.Context, info batch.Info, step int, doLog, doEval bool) error
	Close() error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the structured logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTelemetry sets where phase spans are exported.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(o *Orchestrator) { o.tel = t }
}

// Orchestrator sequences the phases of a training run. It owns the driver
// and the logger and releases both when the run ends.
type Orchestrator struct {
	run       config.RunConfig
	timeLimit int

	driver driver.Driver
	agent  Agent
	replay ReplayBuffer
	logger Logger

	trainGate cadence.Gate
	logGate   cadence.Gate
	evalGate  cadence.Gate

	log              *logging.Logger
	metrics          *metrics.Metrics
	tel              *telemetry.Telemetry
	progressCallback ProgressCallback
	phaseDuration    metric.Float64Histogram

	state  *RunState
	closed bool
}

// New creates an orchestrator from already built collaborators.
func New(cfg *config.Config, d driver.Driver, a Agent, r ReplayBuffer, l Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		run:       cfg.Run,
		timeLimit: cfg.Env.TimeLimit,
		driver:    d,
		agent:     a,
		replay:    r,
		logger:    l,
		trainGate: cadence.New(cfg.Run.TrainEvery),
		logGate:   cadence.New(cfg.Run.LogEvery),
		evalGate:  cadence.New(cfg.Run.EvalEvery),
		state:     NewRunState(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logging.NewNop()
	}
	o.log = o.log.Named("orchestrator")
	// Instrument errors are not fatal; phases are still traced and logged.
	o.phaseDuration, _ = o.tel.Meter(instrumentationName).Float64Histogram(
		"worldmodel.phase.duration",
		metric.WithDescription("Wall time of each run phase"),
		metric.WithUnit("s"),
	)
	return o
}

// OnProgress sets the progress callback
func (o *Orchestrator) OnProgress(callback ProgressCallback) {
	o.progressCallback = callback
}

// State returns the run bookkeeping.
func (o *Orchestrator) State() *RunState { return o.state }

// Driver returns the training driver.
func (o *Orchestrator) Driver() driver.Driver { return o.driver }

// Run executes every phase in order. The driver and the logger are released
// on every exit path; a release error is returned only when the run itself
// succeeded.
func (o *Orchestrator) Run(ctx context.Context) (err error) {
	defer func() {
		if cerr := o.Close(); cerr != nil {
			o.log.Error(ctx, "release resources", zap.Error(cerr))
			if err == nil {
				err = cerr
			}
		}
	}()

	o.state.Status = StatusInProgress
	order := Phases(o.run.ZeroShot)
	o.log.Info(ctx, "run starting",
		zap.Stringers("phases", order),
		zap.Stringer("train_every", o.trainGate),
		zap.Stringer("log_every", o.logGate),
		zap.Stringer("eval_every", o.evalGate),
	)

	for _, phase := range order {
		if err := ctx.Err(); err != nil {
			o.state.Status = StatusFailed
			return fmt.Errorf("%s: %w", phase, err)
		}
		if err := o.state.CanTransition(phase, order); err != nil {
			o.state.Status = StatusFailed
			return err
		}
		if err := o.runPhase(ctx, phase); err != nil {
			o.state.Status = StatusFailed
			return err
		}
	}

	o.state.Phase = PhaseDone
	o.state.Status = StatusCompleted
	o.metrics.SetPhase(string(PhaseDone))
	o.log.Info(ctx, "run finished",
		zap.Int("env_steps", o.state.EnvSteps),
		zap.Int("resets", o.state.Resets),
		zap.Int("flushes", o.state.Flushes),
		zap.Int("updates", o.state.Updates),
		zap.Duration("elapsed", time.Since(o.state.StartedAt)),
	)
	return nil
}

// runPhase executes one phase inside a span and records its result.
func (o *Orchestrator) runPhase(ctx context.Context, phase Phase) error {
	ctx = logging.WithPhase(ctx, string(phase))
	ctx, span := o.tel.Tracer(instrumentationName).Start(ctx, "orchestrator."+string(phase))
	defer span.End()
	span.SetAttributes(attribute.String("run.phase", string(phase)))

	result := &PhaseResult{Phase: phase, Status: StatusInProgress, StartedAt: time.Now()}
	o.state.Results[phase] = result
	o.state.Phase = phase
	o.metrics.SetPhase(string(phase))
	total := o.phaseTotal(phase)
	o.reportProgress(PhaseProgress{
		Phase:   phase,
		Status:  StatusInProgress,
		Message: fmt.Sprintf("Starting phase: %s", phase),
		Total:   total,
	})
	o.log.Info(ctx, "phase starting", zap.Int("total", total))

	var (
		steps int
		err   error
	)
	switch phase {
	case PhasePrefill:
		steps, err = o.Prefill(ctx)
	case PhasePretrain:
		steps, err = o.Pretrain(ctx)
	case PhaseOnline:
		steps, err = o.Online(ctx)
	case PhaseZeroShot:
		steps, err = o.ZeroShot(ctx)
	default:
		err = fmt.Errorf("no handler for phase %s", phase)
	}

	result.Steps = steps
	result.CompletedAt = time.Now()
	span.SetAttributes(attribute.Int("run.phase.steps", steps))
	if o.phaseDuration != nil {
		o.phaseDuration.Record(ctx, result.Duration().Seconds(),
			metric.WithAttributes(attribute.String("run.phase", string(phase)), attribute.Bool("failed", err != nil)))
	}
	if err != nil {
		result.Status = StatusFailed
		result.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.reportProgress(PhaseProgress{Phase: phase, Status: StatusFailed, Message: err.Error(), Current: steps, Total: total})
		return fmt.Errorf("%s: %w", phase, err)
	}

	result.Status = StatusCompleted
	o.reportProgress(PhaseProgress{
		Phase:   phase,
		Status:  StatusCompleted,
		Message: fmt.Sprintf("Completed phase: %s", phase),
		Current: total,
		Total:   total,
	})
	o.log.Info(ctx, "phase completed",
		zap.Int("steps", steps),
		zap.Duration("duration", result.Duration()),
		zap.Int("replay_len", o.replay.Len()),
	)
	return nil
}

func (o *Orchestrator) phaseTotal(phase Phase) int {
	switch phase {
	case PhasePrefill:
		return o.run.Prefill
	case PhasePretrain:
		return o.run.Pretrain
	default:
		return o.run.Steps
	}
}

// Close releases the driver and the logger's evaluation driver. Close is
// idempotent.
func (o *Orchestrator) Close() error {
	if o.closed {
		return nil
	}
	o.closed = true
	var errs []error
	if err := o.driver.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close driver: %w", err))
	}
	if err := o.logger.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close logger: %w", err))
	}
	return errors.Join(errs...)
}

// reportProgress sends progress updates to the callback
func (o *Orchestrator) reportProgress(progress PhaseProgress) {
	if o.progressCallback != nil {
		o.progressCallback(progress)
	}
}
