// Package report implements the run logger: it aggregates training scalars
// between log points and evaluates the agent on a dedicated driver.
package report

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/fyrsmithlabs/worldmodel/internal/batch"
	"github.com/fyrsmithlabs/worldmodel/internal/driver"
	"github.com/fyrsmithlabs/worldmodel/internal/logging"
	"github.com/fyrsmithlabs/worldmodel/internal/metrics"
)

// Actor picks actions during evaluation.
type Actor interface {
	Act(ctx context.Context, hidden, obs *mat.Dense) (*mat.Dense, *mat.Dense, error)
}

// Sized reports how much data a replay buffer holds.
type Sized interface {
	Len() int
}

// visualizer is implemented by drivers that can render and break down rewards.
type visualizer interface {
	TurnOnVisualization()
	TurnOffVisualization()
	RewardInfo() []map[string]float64
}

// Options configures a Logger.
type Options struct {
	TimeLimit    int
	EvalEpisodes int
}

// Logger writes periodic training summaries and evaluation results.
type Logger struct {
	opts    Options
	agent   Actor
	replay  Sized
	eval    driver.Driver
	log     *logging.Logger
	metrics *metrics.Metrics

	window  map[string][]float64
	last    time.Time
	evals   int
	closed  bool
	results []EvalResult
}

// EvalResult summarizes one evaluation.
type EvalResult struct {
	Step     int
	Episodes int
	Return   float64            // mean per-environment episode return
	Length   float64            // mean episode length in driver steps
	Rewards  map[string]float64 // mean per-episode reward components, physics only
	Duration time.Duration
}

// New creates a logger that owns eval.
func New(opts Options, agent Actor, replay Sized, eval driver.Driver, log *logging.Logger, m *metrics.Metrics) *Logger {
	if opts.EvalEpisodes < 1 {
		opts.EvalEpisodes = 1
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Logger{
		opts:    opts,
		agent:   agent,
		replay:  replay,
		eval:    eval,
		log:     log.Named("report"),
		metrics: m,
		window:  make(map[string][]float64),
		last:    time.Now(),
	}
}

// EvalDriver returns the driver evaluations run on.
func (l *Logger) EvalDriver() driver.Driver { return l.eval }

// Results returns every evaluation run so far.
func (l *Logger) Results() []EvalResult { return l.results }

// Log records info for step. With doLog the scalars accumulated since the
// last log point are averaged and written out; with doEval the agent is
// evaluated first.
func (l *Logger) Log(ctx context.Context, info batch.Info, step int, doLog, doEval bool) error {
	for k, v := range info {
		if !math.IsNaN(v) {
			l.window[k] = append(l.window[k], v)
		}
	}

	if doEval {
		res, err := l.Evaluate(ctx, step)
		if err != nil {
			return fmt.Errorf("evaluate at step %d: %w", step, err)
		}
		fields := []zap.Field{
			zap.Int("step", step),
			zap.Int("episodes", res.Episodes),
			zap.Float64("return", res.Return),
			zap.Float64("length", res.Length),
			zap.Duration("duration", res.Duration),
		}
		for _, k := range sortedKeys(res.Rewards) {
			fields = append(fields, zap.Float64("reward."+k, res.Rewards[k]))
		}
		l.log.Info(ctx, "evaluation", fields...)
	}

	if doLog {
		l.flush(ctx, step)
	}
	return nil
}

func (l *Logger) flush(ctx context.Context, step int) {
	now := time.Now()
	fields := []zap.Field{
		zap.Int("step", step),
		zap.Int("replay_len", l.replay.Len()),
		zap.Duration("elapsed", now.Sub(l.last)),
	}
	for _, k := range sortedKeys(l.window) {
		mean := meanOf(l.window[k])
		fields = append(fields, zap.Float64(k, mean))
		if l.metrics != nil {
			l.metrics.Scalars.WithLabelValues(k).Set(mean)
		}
	}
	if l.metrics != nil {
		l.metrics.ReplaySteps.Set(float64(l.replay.Len()))
	}
	l.log.Info(ctx, "train summary", fields...)

	l.window = make(map[string][]float64)
	l.last = now
}

// Evaluate runs EvalEpisodes episodes on the eval driver. An episode ends on
// the first done in the batch or at the time limit. Physics drivers are
// visualized for the duration and report their reward breakdown.
func (l *Logger) Evaluate(ctx context.Context, step int) (EvalResult, error) {
	if l.closed {
		return EvalResult{}, driver.ErrClosed
	}
	start := time.Now()
	vis, isVis := l.eval.(visualizer)
	if isVis {
		vis.TurnOnVisualization()
		defer vis.TurnOffVisualization()
	}

	res := EvalResult{Step: step, Episodes: l.opts.EvalEpisodes}
	if isVis {
		res.Rewards = make(map[string]float64)
	}
	for ep := 0; ep < l.opts.EvalEpisodes; ep++ {
		ret, length, err := l.episode(ctx, vis, res.Rewards)
		if err != nil {
			return EvalResult{}, err
		}
		res.Return += ret
		res.Length += float64(length)
	}
	n := float64(l.opts.EvalEpisodes)
	res.Return /= n
	res.Length /= n
	for k := range res.Rewards {
		res.Rewards[k] /= n
	}
	res.Duration = time.Since(start)

	l.evals++
	l.results = append(l.results, res)
	if l.metrics != nil {
		l.metrics.EvalReturn.Set(res.Return)
	}
	return res, nil
}

// episode returns the mean per-environment return and the episode length.
func (l *Logger) episode(ctx context.Context, vis visualizer, components map[string]float64) (float64, int, error) {
	r, err := l.eval.Reset(ctx)
	if err != nil {
		return 0, 0, err
	}
	hidden, action := r.Hidden, r.Action
	var total float64
	for {
		s, err := l.eval.Step(ctx, action)
		if err != nil {
			return 0, 0, err
		}
		total += meanOf(s.Reward)
		if vis != nil {
			addComponents(components, vis.RewardInfo())
		}
		if batch.AnyDone(s.Done) || l.eval.Steps() >= l.opts.TimeLimit {
			return total, l.eval.Steps(), nil
		}
		if hidden, action, err = l.agent.Act(ctx, hidden, s.Obs); err != nil {
			return 0, 0, fmt.Errorf("act: %w", err)
		}
	}
}

// Close releases the eval driver. Close is idempotent.
func (l *Logger) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	if err := l.eval.Close(); err != nil {
		return fmt.Errorf("close eval driver: %w", err)
	}
	return nil
}

// addComponents accumulates the mean over environments of each component.
func addComponents(dst map[string]float64, info []map[string]float64) {
	if len(info) == 0 {
		return
	}
	for _, m := range info {
		for k, v := range m {
			dst[k] += v / float64(len(info))
		}
	}
}

// meanOf is 0 for an empty window; stat.Mean would return NaN.
func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
