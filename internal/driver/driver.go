// Package driver unifies the bundled simulators behind one stepping contract.
//
// A Driver owns one batch of environments. Reset starts a new episode on
// every environment at once, zeroes the step counter and hands back a fresh
// hidden state together with an initial action. Step repeats one action for
// the configured number of backend ticks and reports the outcome of the
// final tick only.
//
// Two variants exist: General adapts the vectorized classic-control
// simulators and Physics adapts the batched robotics simulator. New picks
// the variant from the environment name.
package driver

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/fyrsmithlabs/worldmodel/internal/batch"
	"github.com/fyrsmithlabs/worldmodel/internal/config"
)

var (
	// ErrNotReset is returned by Step before the first Reset.
	ErrNotReset = errors.New("driver not reset")
	// ErrClosed is returned by Reset and Step after Close.
	ErrClosed = errors.New("driver closed")
)

// Driver steps a batch of environments in lockstep.
type Driver interface {
	// Reset re-initializes every environment and returns the first
	// observation, a fresh hidden state and an initial action.
	Reset(ctx context.Context) (ResetResult, error)
	// Step applies action for action_repeat backend ticks.
	Step(ctx context.Context, action *mat.Dense) (StepResult, error)
	// EnvInfo describes observation and action dimensions.
	EnvInfo() EnvInfo
	// Steps returns the number of Step calls since the last Reset.
	Steps() int
	// Close releases the backend. Close is idempotent.
	Close() error
}

// ResetResult is the start of an episode batch.
type ResetResult struct {
	Obs    *mat.Dense // (num_envs, obs_dim)
	Hidden *mat.Dense // (num_envs, h_dim)
	Action *mat.Dense // (num_envs, act_dim)
}

// StepResult is the outcome of the last backend tick of a Step.
type StepResult struct {
	Obs    *mat.Dense
	Reward []float64
	Done   []bool
}

// EnvInfo describes the spaces of a driver's environments.
type EnvInfo struct {
	ObsDim   int
	ActDim   int
	ActBound float64
}

func (e EnvInfo) String() string {
	return fmt.Sprintf("obs_dim=%d act_dim=%d act_bound=%g", e.ObsDim, e.ActDim, e.ActBound)
}

// base carries the state both variants share.
type base struct {
	numEnvs      int
	hDim         int
	initDeter    string
	actionRepeat int
	rng          *rand.Rand

	steps  int
	reset  bool
	closed bool
}

func newBase(cfg *config.Config) base {
	return base{
		numEnvs:      cfg.Env.NumEnvs,
		hDim:         cfg.Model.HDim,
		initDeter:    cfg.Model.InitDeter,
		actionRepeat: cfg.Env.ActionRepeat,
		rng:          batch.NewRand(cfg.Env.Seed),
	}
}

func (b *base) Steps() int { return b.steps }

func (b *base) initHidden() (*mat.Dense, error) {
	return batch.InitHidden(b.initDeter, b.numEnvs, b.hDim, b.rng)
}

// beginReset checks the lifecycle and zeroes the counter.
func (b *base) beginReset() error {
	if b.closed {
		return ErrClosed
	}
	b.steps = 0
	b.reset = true
	return nil
}

// beginStep checks the lifecycle and counts the step.
func (b *base) beginStep(action *mat.Dense, actDim int) error {
	if b.closed {
		return ErrClosed
	}
	if !b.reset {
		return ErrNotReset
	}
	if r, c := action.Dims(); r != b.numEnvs || c != actDim {
		return fmt.Errorf("action shape (%d, %d), want (%d, %d)", r, c, b.numEnvs, actDim)
	}
	b.steps++
	return nil
}
