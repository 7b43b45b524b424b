// Package sim defines the single-environment contract shared by the bundled
// simulators and the space descriptors used to size batches.
package sim

import (
	"errors"
	"fmt"
	"image"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// ErrUnknownEnv is returned when no simulator is registered for an id.
var ErrUnknownEnv = errors.New("unknown environment")

// Env is one simulated control environment with continuous actions.
type Env interface {
	// Reset starts a new episode and returns the first observation.
	Reset(rng *rand.Rand) []float64
	// Step applies action for one tick.
	Step(action []float64) (obs []float64, reward float64, terminated bool)
	ObservationSpace() Box
	ActionSpace() Box
	// Frame rasterizes the current state.
	Frame() *image.RGBA
	// Text renders the current state as a single line for terminals.
	Text() string
	// FPS is the playback rate of rendered frames.
	FPS() int
}

// Box is a bounded continuous space. Low and High have one row per
// environment; a single environment's space has one row.
type Box struct {
	Low  *mat.Dense
	High *mat.Dense
}

// NewBox builds a single-row box.
func NewBox(low, high []float64) Box {
	if len(low) != len(high) {
		panic(fmt.Sprintf("sim: box bounds length mismatch %d != %d", len(low), len(high)))
	}
	return Box{
		Low:  mat.NewDense(1, len(low), append([]float64(nil), low...)),
		High: mat.NewDense(1, len(high), append([]float64(nil), high...)),
	}
}

// Batched stacks n copies of a single-row box.
func (b Box) Batched(n int) Box {
	_, dim := b.Low.Dims()
	low := mat.NewDense(n, dim, nil)
	high := mat.NewDense(n, dim, nil)
	for i := 0; i < n; i++ {
		low.SetRow(i, b.Low.RawRowView(0))
		high.SetRow(i, b.High.RawRowView(0))
	}
	return Box{Low: low, High: high}
}

// Dims returns (rows, dim).
func (b Box) Dims() (int, int) {
	return b.Low.Dims()
}

// Dim returns the per-environment dimensionality.
func (b Box) Dim() int {
	_, c := b.Low.Dims()
	return c
}

// Sample draws uniformly inside the bounds. Unbounded dimensions are
// sampled from N(0, 1).
func (b Box) Sample(rng *rand.Rand) *mat.Dense {
	r, c := b.Low.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			lo, hi := b.Low.At(i, j), b.High.At(i, j)
			if math.IsInf(lo, 0) || math.IsInf(hi, 0) {
				out.Set(i, j, rng.NormFloat64())
				continue
			}
			out.Set(i, j, lo+rng.Float64()*(hi-lo))
		}
	}
	return out
}

// Contains reports whether every row of m lies inside the bounds.
func (b Box) Contains(m mat.Matrix) bool {
	r, c := m.Dims()
	br, bc := b.Low.Dims()
	if r != br || c != bc {
		return false
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if v < b.Low.At(i, j) || v > b.High.At(i, j) {
				return false
			}
		}
	}
	return true
}
