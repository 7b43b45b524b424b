package driver

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/fyrsmithlabs/worldmodel/internal/batch"
	"github.com/fyrsmithlabs/worldmodel/internal/config"
	"github.com/fyrsmithlabs/worldmodel/internal/sim/physics"
)

// PhysicsEnvID selects the Physics driver.
const PhysicsEnvID = "physics"

// PhysicsEnv is the backend of the Physics driver.
type PhysicsEnv interface {
	Reset() error
	Observe() *mat.Dense
	Step(action *mat.Dense) ([]float64, []bool, error)
	NumEnvs() int
	NumObs() int
	NumActs() int
	TurnOnVisualization()
	TurnOffVisualization()
	RewardInfo() []map[string]float64
	Close() error
}

// PhysicsMaker builds a physics backend from a resource directory and a
// YAML scene document.
type PhysicsMaker func(resourceDir, sceneYAML string) (PhysicsEnv, error)

// MakePhysics is the default PhysicsMaker backed by the bundled simulator.
func MakePhysics(resourceDir, sceneYAML string) (PhysicsEnv, error) {
	return physics.New(resourceDir, sceneYAML)
}

// Physics drives the batched robotics simulator. Visualization is off
// after construction.
type Physics struct {
	base

	env        PhysicsEnv
	actionClip float64
}

// NewPhysics serializes the scene configuration and builds the simulator.
func NewPhysics(cfg *config.Config, makeFn PhysicsMaker) (*Physics, error) {
	if makeFn == nil {
		makeFn = MakePhysics
	}
	doc, err := config.MarshalScene(cfg.Physics, cfg.Env.NumEnvs, cfg.Env.Seed)
	if err != nil {
		return nil, err
	}
	env, err := makeFn(cfg.Physics.ResourceDir, doc)
	if err != nil {
		return nil, fmt.Errorf("make physics: %w", err)
	}
	if env.NumEnvs() != cfg.Env.NumEnvs {
		env.Close()
		return nil, fmt.Errorf("physics backend has %d envs, want %d", env.NumEnvs(), cfg.Env.NumEnvs)
	}
	env.TurnOffVisualization()

	return &Physics{
		base:       newBase(cfg),
		env:        env,
		actionClip: cfg.Env.ActionClip,
	}, nil
}

func (p *Physics) Reset(ctx context.Context) (ResetResult, error) {
	if err := p.beginReset(); err != nil {
		return ResetResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return ResetResult{}, err
	}
	if err := p.env.Reset(); err != nil {
		return ResetResult{}, fmt.Errorf("reset physics: %w", err)
	}
	hidden, err := p.initHidden()
	if err != nil {
		return ResetResult{}, err
	}
	action := mat.NewDense(p.numEnvs, p.env.NumActs(), nil)
	batch.FillNormal(action, 1, p.rng)
	return ResetResult{Obs: p.env.Observe(), Hidden: hidden, Action: action}, nil
}

func (p *Physics) Step(ctx context.Context, action *mat.Dense) (StepResult, error) {
	if err := p.beginStep(action, p.env.NumActs()); err != nil {
		return StepResult{}, err
	}
	var (
		reward []float64
		done   []bool
	)
	for i := 0; i < p.actionRepeat; i++ {
		if err := ctx.Err(); err != nil {
			return StepResult{}, err
		}
		var err error
		reward, done, err = p.env.Step(action)
		if err != nil {
			return StepResult{}, fmt.Errorf("step physics: %w", err)
		}
	}
	return StepResult{Obs: p.env.Observe(), Reward: reward, Done: done}, nil
}

// EnvInfo reports the configured action clip as the action bound.
func (p *Physics) EnvInfo() EnvInfo {
	return EnvInfo{
		ObsDim:   p.env.NumObs(),
		ActDim:   p.env.NumActs(),
		ActBound: p.actionClip,
	}
}

// TurnOnVisualization starts rendering without affecting simulation.
func (p *Physics) TurnOnVisualization() { p.env.TurnOnVisualization() }

// TurnOffVisualization stops rendering.
func (p *Physics) TurnOffVisualization() { p.env.TurnOffVisualization() }

// RewardInfo returns the per-environment reward breakdown of the last tick.
func (p *Physics) RewardInfo() []map[string]float64 { return p.env.RewardInfo() }

func (p *Physics) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	return p.env.Close()
}
