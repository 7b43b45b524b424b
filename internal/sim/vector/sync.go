// Package vector batches single environments into one synchronous vector
// environment with automatic per-environment resets.
package vector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/fyrsmithlabs/worldmodel/internal/sim"
	"github.com/fyrsmithlabs/worldmodel/internal/sim/classic"
)

// ErrClosed is returned by operations on a closed vector environment.
var ErrClosed = errors.New("vector environment closed")

// Render modes.
const (
	RenderNone   = ""
	RenderHuman  = "human"
	RenderRecord = "rgb_array"
)

// Options configures Make.
type Options struct {
	Render   string
	VideoDir string    // recording output directory
	Output   io.Writer // human render target
}

// Sync steps every environment in lockstep on the calling goroutine.
// Environments that terminate are reset immediately and their returned
// observation is the first observation of the next episode.
type Sync struct {
	envs     []sim.Env
	rng      *rand.Rand
	obsSpace sim.Box
	actSpace sim.Box
	session  string
	closed   bool
}

// Make builds n copies of the registered environment id.
func Make(id string, n int, seed uint64, opts Options) (*Sync, error) {
	if n < 1 {
		return nil, fmt.Errorf("num envs must be >= 1, got %d", n)
	}

	session := uuid.NewString()
	envs := make([]sim.Env, n)
	for i := range envs {
		env, err := classic.Make(id)
		if err != nil {
			return nil, err
		}
		switch opts.Render {
		case RenderNone:
		case RenderRecord:
			env = Record(env, opts.VideoDir, session, i)
		case RenderHuman:
			env = Human(env, opts.Output, i)
		default:
			return nil, fmt.Errorf("unknown render mode %q", opts.Render)
		}
		envs[i] = env
	}

	s, err := NewSync(envs, seed)
	if err != nil {
		return nil, err
	}
	s.session = session
	return s, nil
}

// NewSync batches envs, which must share observation and action shapes.
func NewSync(envs []sim.Env, seed uint64) (*Sync, error) {
	if len(envs) == 0 {
		return nil, errors.New("no environments")
	}
	obs, act := envs[0].ObservationSpace(), envs[0].ActionSpace()
	for i, e := range envs[1:] {
		if e.ObservationSpace().Dim() != obs.Dim() || e.ActionSpace().Dim() != act.Dim() {
			return nil, fmt.Errorf("env %d: space shape differs from env 0", i+1)
		}
	}
	return &Sync{
		envs:     envs,
		rng:      rand.New(rand.NewPCG(seed, seed+1)),
		obsSpace: obs.Batched(len(envs)),
		actSpace: act.Batched(len(envs)),
	}, nil
}

// NumEnvs returns the batch size.
func (s *Sync) NumEnvs() int { return len(s.envs) }

// Session identifies the recording session of this batch.
func (s *Sync) Session() string { return s.session }

// ObservationSpace returns the batched observation space.
func (s *Sync) ObservationSpace() sim.Box { return s.obsSpace }

// ActionSpace returns the batched action space.
func (s *Sync) ActionSpace() sim.Box { return s.actSpace }

// SampleAction draws a uniform action for every environment.
func (s *Sync) SampleAction() *mat.Dense {
	return s.actSpace.Sample(s.rng)
}

// Reset resets every environment.
func (s *Sync) Reset(ctx context.Context) (*mat.Dense, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	obs := mat.NewDense(len(s.envs), s.obsSpace.Dim(), nil)
	for i, e := range s.envs {
		obs.SetRow(i, e.Reset(s.rng))
	}
	return obs, nil
}

// Step applies one row of actions to each environment.
func (s *Sync) Step(ctx context.Context, actions *mat.Dense) (*mat.Dense, []float64, []bool, error) {
	if s.closed {
		return nil, nil, nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, nil, err
	}
	r, c := actions.Dims()
	if r != len(s.envs) || c != s.actSpace.Dim() {
		return nil, nil, nil, fmt.Errorf("action shape (%d, %d), want (%d, %d)", r, c, len(s.envs), s.actSpace.Dim())
	}

	obs := mat.NewDense(len(s.envs), s.obsSpace.Dim(), nil)
	reward := make([]float64, len(s.envs))
	done := make([]bool, len(s.envs))
	for i, e := range s.envs {
		o, rew, term := e.Step(actions.RawRowView(i))
		if term {
			o = e.Reset(s.rng)
		}
		obs.SetRow(i, o)
		reward[i] = rew
		done[i] = term
	}
	return obs, reward, done, nil
}

// Close releases every environment. Wrappers that buffer output, such as
// recorders, flush here. Close is idempotent.
func (s *Sync) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	for i, e := range s.envs {
		if c, ok := e.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("env %d: %w", i, err))
			}
		}
	}
	return errors.Join(errs...)
}
