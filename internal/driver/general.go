package driver

import (
	"context"
	"fmt"
	"io"

	"gonum.org/v1/gonum/mat"

	"github.com/fyrsmithlabs/worldmodel/internal/config"
	"github.com/fyrsmithlabs/worldmodel/internal/sim"
	"github.com/fyrsmithlabs/worldmodel/internal/sim/vector"
)

// VectorEnv is the backend of the General driver.
type VectorEnv interface {
	Reset(ctx context.Context) (*mat.Dense, error)
	Step(ctx context.Context, action *mat.Dense) (*mat.Dense, []float64, []bool, error)
	ObservationSpace() sim.Box
	ActionSpace() sim.Box
	SampleAction() *mat.Dense
	Close() error
}

// VectorMaker builds a vector backend for the given render options.
type VectorMaker func(id string, numEnvs int, seed uint64, opts vector.Options) (VectorEnv, error)

// MakeVector is the default VectorMaker backed by the bundled simulators.
func MakeVector(id string, numEnvs int, seed uint64, opts vector.Options) (VectorEnv, error) {
	return vector.Make(id, numEnvs, seed, opts)
}

// General drives a vectorized classic-control backend.
//
// In recording mode every Reset closes and rebuilds the backend so each
// reset starts a new recording session.
type General struct {
	base

	id     string
	seed   uint64
	opts   vector.Options
	makeFn VectorMaker
	env    VectorEnv
	builds int
	// stale is set while env has been closed for a rebuild that has not
	// yet succeeded.
	stale bool
}

// NewGeneral builds the backend. Recording takes precedence over render.
func NewGeneral(cfg *config.Config, render bool, out io.Writer, makeFn VectorMaker) (*General, error) {
	if makeFn == nil {
		makeFn = MakeVector
	}
	opts := vector.Options{Output: out}
	switch {
	case cfg.Env.Record:
		opts.Render = vector.RenderRecord
		opts.VideoDir = cfg.VideoDir()
	case render || cfg.Env.Render:
		opts.Render = vector.RenderHuman
	}

	g := &General{
		base:   newBase(cfg),
		id:     cfg.Env.Name,
		seed:   cfg.Env.Seed,
		opts:   opts,
		makeFn: makeFn,
	}
	if err := g.build(); err != nil {
		return nil, err
	}
	return g, nil
}

// Recording reports whether episodes are written to video files.
func (g *General) Recording() bool {
	return g.opts.Render == vector.RenderRecord
}

// Builds counts how many times the backend was constructed.
func (g *General) Builds() int {
	return g.builds
}

func (g *General) Reset(ctx context.Context) (ResetResult, error) {
	if err := g.beginReset(); err != nil {
		return ResetResult{}, err
	}
	if g.Recording() {
		if err := g.rebuild(); err != nil {
			g.reset = false
			return ResetResult{}, err
		}
	}

	hidden, err := g.initHidden()
	if err != nil {
		return ResetResult{}, err
	}
	obs, err := g.env.Reset(ctx)
	if err != nil {
		return ResetResult{}, fmt.Errorf("reset %s: %w", g.id, err)
	}
	return ResetResult{Obs: obs, Hidden: hidden, Action: g.env.SampleAction()}, nil
}

func (g *General) Step(ctx context.Context, action *mat.Dense) (StepResult, error) {
	if err := g.beginStep(action, g.env.ActionSpace().Dim()); err != nil {
		return StepResult{}, err
	}
	var res StepResult
	for i := 0; i < g.actionRepeat; i++ {
		obs, reward, done, err := g.env.Step(ctx, action)
		if err != nil {
			return StepResult{}, fmt.Errorf("step %s: %w", g.id, err)
		}
		res = StepResult{Obs: obs, Reward: reward, Done: done}
	}
	return res, nil
}

func (g *General) EnvInfo() EnvInfo {
	act := g.env.ActionSpace()
	return EnvInfo{
		ObsDim:   g.env.ObservationSpace().Dim(),
		ActDim:   act.Dim(),
		ActBound: act.High.At(0, 0),
	}
}

func (g *General) Close() error {
	if g.closed {
		return nil
	}
	g.closed = true
	if g.stale {
		return nil
	}
	return g.env.Close()
}

// rebuild closes the current backend and builds a fresh one. After a failed
// build the old backend stays marked stale so it is never closed twice.
func (g *General) rebuild() error {
	if !g.stale {
		g.stale = true
		if err := g.env.Close(); err != nil {
			return fmt.Errorf("close recording backend: %w", err)
		}
	}
	if err := g.build(); err != nil {
		return err
	}
	g.stale = false
	return nil
}

func (g *General) build() error {
	env, err := g.makeFn(g.id, g.numEnvs, g.seed+uint64(g.builds), g.opts)
	if err != nil {
		return fmt.Errorf("make %s: %w", g.id, err)
	}
	g.env = env
	g.builds++
	return nil
}
