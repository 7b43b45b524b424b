// Package batch holds the numeric containers exchanged between drivers,
// agents and replay buffers. Every batch has one row per environment.
package batch

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Hidden-state initialization modes.
const (
	HiddenZero   = "zero"
	HiddenNormal = "normal"
)

// hiddenScale is the standard deviation of normally initialized hidden state.
const hiddenScale = 0.01

// Info carries scalar training diagnostics keyed by name.
type Info map[string]float64

// Transition is one batched environment step as stored by the replay buffer.
type Transition struct {
	Obs    *mat.Dense // (num_envs, obs_dim)
	Reward []float64  // (num_envs)
	Cont   []float64  // 1 - done
	Action *mat.Dense // (num_envs, act_dim)
}

// NewTransition assembles a transition, deriving Cont from done.
func NewTransition(obs *mat.Dense, reward []float64, done []bool, action *mat.Dense) Transition {
	return Transition{
		Obs:    obs,
		Reward: reward,
		Cont:   ContFromDone(done),
		Action: action,
	}
}

// NumEnvs returns the batch size of the transition.
func (t Transition) NumEnvs() int {
	r, _ := t.Obs.Dims()
	return r
}

// Validate checks that every field agrees on the batch size.
func (t Transition) Validate() error {
	if t.Obs == nil || t.Action == nil {
		return fmt.Errorf("transition missing obs or action")
	}
	n, _ := t.Obs.Dims()
	if r, _ := t.Action.Dims(); r != n {
		return fmt.Errorf("action rows %d != obs rows %d", r, n)
	}
	if len(t.Reward) != n || len(t.Cont) != n {
		return fmt.Errorf("reward/cont length %d/%d != obs rows %d", len(t.Reward), len(t.Cont), n)
	}
	return nil
}

// ContFromDone maps done flags to continuation flags (1 - done).
func ContFromDone(done []bool) []float64 {
	cont := make([]float64, len(done))
	for i, d := range done {
		if !d {
			cont[i] = 1
		}
	}
	return cont
}

// AnyDone reports whether any environment in the batch terminated.
func AnyDone(done []bool) bool {
	for _, d := range done {
		if d {
			return true
		}
	}
	return false
}

// InitHidden returns a fresh (n, dim) hidden state. Mode zero yields all
// zeros; mode normal draws each entry from 0.01 * N(0, 1).
func InitHidden(mode string, n, dim int, rng *rand.Rand) (*mat.Dense, error) {
	h := mat.NewDense(n, dim, nil)
	switch mode {
	case HiddenZero:
	case HiddenNormal:
		if rng == nil {
			return nil, fmt.Errorf("normal hidden init requires a random source")
		}
		FillNormal(h, hiddenScale, rng)
	default:
		return nil, fmt.Errorf("unknown hidden init mode %q", mode)
	}
	return h, nil
}

// FillNormal overwrites m with independent scale * N(0, 1) draws.
func FillNormal(m *mat.Dense, scale float64, rng *rand.Rand) {
	raw := m.RawMatrix()
	for i := 0; i < raw.Rows; i++ {
		row := raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols]
		for j := range row {
			row[j] = scale * rng.NormFloat64()
		}
	}
}

// Clip bounds every entry of m to [-bound, bound] in place.
func Clip(m *mat.Dense, bound float64) {
	m.Apply(func(_, _ int, v float64) float64 {
		return min(max(v, -bound), bound)
	}, m)
}

// NewRand returns a deterministic PCG source for seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
