package orchestrator

import (
	"context"
	"errors"

	"github.com/stretchr/testify/mock"
	"gonum.org/v1/gonum/mat"

	"github.com/fyrsmithlabs/worldmodel/internal/batch"
	"github.com/fyrsmithlabs/worldmodel/internal/config"
	"github.com/fyrsmithlabs/worldmodel/internal/driver"
	"github.com/fyrsmithlabs/worldmodel/internal/replay"
)

const (
	testObsDim = 3
	testActDim = 2
	testHDim   = 4
)

// fakeDriver steps a counter; env 0 reports done on step doneAt of each
// episode when doneAt > 0.
type fakeDriver struct {
	numEnvs int
	doneAt  int

	steps      int
	totalSteps int
	resets     int
	closed     int
	failAt     int // total step that fails, 0 disables
	closeErr   error
	events     []string
}

var errStep = errors.New("backend exploded")

func (f *fakeDriver) Reset(context.Context) (driver.ResetResult, error) {
	f.resets++
	f.steps = 0
	f.events = append(f.events, "reset")
	return driver.ResetResult{
		Obs:    mat.NewDense(f.numEnvs, testObsDim, nil),
		Hidden: mat.NewDense(f.numEnvs, testHDim, nil),
		Action: mat.NewDense(f.numEnvs, testActDim, nil),
	}, nil
}

func (f *fakeDriver) Step(_ context.Context, action *mat.Dense) (driver.StepResult, error) {
	if action == nil {
		return driver.StepResult{}, errors.New("nil action")
	}
	f.totalSteps++
	if f.failAt > 0 && f.totalSteps == f.failAt {
		return driver.StepResult{}, errStep
	}
	f.steps++
	done := make([]bool, f.numEnvs)
	done[0] = f.doneAt > 0 && f.steps == f.doneAt
	return driver.StepResult{
		Obs:    mat.NewDense(f.numEnvs, testObsDim, nil),
		Reward: make([]float64, f.numEnvs),
		Done:   done,
	}, nil
}

func (f *fakeDriver) EnvInfo() driver.EnvInfo {
	return driver.EnvInfo{ObsDim: testObsDim, ActDim: testActDim, ActBound: 1}
}

func (f *fakeDriver) Steps() int { return f.steps }

func (f *fakeDriver) Close() error {
	f.closed++
	return f.closeErr
}

// fakeReplay counts stores and flushes, sharing an event log with the driver.
type fakeReplay struct {
	stored  []batch.Transition
	flushes int
	events  *[]string
}

func (r *fakeReplay) Store(t batch.Transition) error {
	if err := t.Validate(); err != nil {
		return err
	}
	r.stored = append(r.stored, t)
	return nil
}

func (r *fakeReplay) Len() int { return len(r.stored) }

func (r *fakeReplay) AddEpisode() {
	r.flushes++
	if r.events != nil {
		*r.events = append(*r.events, "flush")
	}
}

func (r *fakeReplay) Sample(int, int) (replay.Sequences, error) {
	return replay.Sequences{}, nil
}

type trainCall struct {
	step  int
	train bool
}

// fakeAgent returns a fresh action per call and records training calls.
type fakeAgent struct {
	numEnvs  int
	acts     int
	trains   []trainCall
	zeroShot int
}

func (a *fakeAgent) Act(_ context.Context, hidden, _ *mat.Dense) (*mat.Dense, *mat.Dense, error) {
	a.acts++
	action := mat.NewDense(a.numEnvs, testActDim, nil)
	action.Set(0, 0, float64(a.acts))
	return hidden, action, nil
}

func (a *fakeAgent) TrainStep(_ context.Context, step int, _ replay.Sampler, train bool) (batch.Info, error) {
	a.trains = append(a.trains, trainCall{step, train})
	return batch.Info{"loss": float64(step)}, nil
}

func (a *fakeAgent) TrainStepZeroShot(context.Context, replay.Sampler) (batch.Info, error) {
	a.zeroShot++
	return batch.Info{"zero_shot": 1}, nil
}

type logCall struct {
	step          int
	doLog, doEval bool
}

type fakeLogger struct {
	calls    []logCall
	closed   int
	err      error
	closeErr error
}

func (l *fakeLogger) Log(_ context.Context, _ batch.Info, step int, doLog, doEval bool) error {
	l.calls = append(l.calls, logCall{step, doLog, doEval})
	return l.err
}

func (l *fakeLogger) Close() error {
	l.closed++
	return l.closeErr
}

func (l *fakeLogger) logged() []int {
	var out []int
	for _, c := range l.calls {
		if c.doLog {
			out = append(out, c.step)
		}
	}
	return out
}

func (l *fakeLogger) evaluated() []int {
	var out []int
	for _, c := range l.calls {
		if c.doEval {
			out = append(out, c.step)
		}
	}
	return out
}

// mockAgent is a testify mock implementation of Agent
type mockAgent struct {
	mock.Mock
}

func (m *mockAgent) Act(ctx context.Context, hidden, obs *mat.Dense) (*mat.Dense, *mat.Dense, error) {
	args := m.Called(ctx, hidden, obs)
	h, _ := args.Get(0).(*mat.Dense)
	a, _ := args.Get(1).(*mat.Dense)
	return h, a, args.Error(2)
}

func (m *mockAgent) TrainStep(ctx context.Context, step int, data replay.Sampler, train bool) (batch.Info, error) {
	args := m.Called(ctx, step, data, train)
	info, _ := args.Get(0).(batch.Info)
	return info, args.Error(1)
}

func (m *mockAgent) TrainStepZeroShot(ctx context.Context, data replay.Sampler) (batch.Info, error) {
	args := m.Called(ctx, data)
	info, _ := args.Get(0).(batch.Info)
	return info, args.Error(1)
}

type harness struct {
	cfg    *config.Config
	driver *fakeDriver
	replay *fakeReplay
	agent  *fakeAgent
	logger *fakeLogger
}

func newHarness(mutate func(*config.Config)) *harness {
	cfg := config.Default()
	cfg.Env.NumEnvs = 4
	cfg.Env.TimeLimit = 5
	cfg.Run.Prefill = 10
	cfg.Run.Pretrain = 3
	cfg.Run.Steps = 20
	cfg.Run.TrainEvery = 5
	cfg.Run.LogEvery = 10
	cfg.Run.EvalEvery = 0
	if mutate != nil {
		mutate(cfg)
	}
	d := &fakeDriver{numEnvs: cfg.Env.NumEnvs}
	return &harness{
		cfg:    cfg,
		driver: d,
		replay: &fakeReplay{events: &d.events},
		agent:  &fakeAgent{numEnvs: cfg.Env.NumEnvs},
		logger: &fakeLogger{},
	}
}

func (h *harness) orchestrator(opts ...Option) *Orchestrator {
	return New(h.cfg, h.driver, h.agent, h.replay, h.logger, opts...)
}
