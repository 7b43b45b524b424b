package driver

import (
	"context"
	"errors"

	"gonum.org/v1/gonum/mat"

	"github.com/fyrsmithlabs/worldmodel/internal/sim"
	"github.com/fyrsmithlabs/worldmodel/internal/sim/vector"
)

// fakeVector counts ticks and rewards each tick with its ordinal.
type fakeVector struct {
	numEnvs, obsDim, actDim int
	high                    float64
	ticks                   int
	doneAt                  int // tick on which env 0 reports done; 0 never
	closed                  int
	opts                    vector.Options
	stepErr                 error
}

func (f *fakeVector) Reset(context.Context) (*mat.Dense, error) {
	return mat.NewDense(f.numEnvs, f.obsDim, nil), nil
}

func (f *fakeVector) Step(_ context.Context, action *mat.Dense) (*mat.Dense, []float64, []bool, error) {
	if f.stepErr != nil {
		return nil, nil, nil, f.stepErr
	}
	f.ticks++
	obs := mat.NewDense(f.numEnvs, f.obsDim, nil)
	obs.Set(0, 0, float64(f.ticks))
	reward := make([]float64, f.numEnvs)
	done := make([]bool, f.numEnvs)
	for i := range reward {
		reward[i] = float64(f.ticks)
	}
	done[0] = f.doneAt != 0 && f.ticks == f.doneAt
	return obs, reward, done, nil
}

func (f *fakeVector) ObservationSpace() sim.Box {
	lo := make([]float64, f.obsDim)
	return sim.NewBox(lo, lo).Batched(f.numEnvs)
}

func (f *fakeVector) ActionSpace() sim.Box {
	lo, hi := make([]float64, f.actDim), make([]float64, f.actDim)
	for i := range lo {
		lo[i], hi[i] = -f.high, f.high
	}
	return sim.NewBox(lo, hi).Batched(f.numEnvs)
}

func (f *fakeVector) SampleAction() *mat.Dense {
	return mat.NewDense(f.numEnvs, f.actDim, nil)
}

func (f *fakeVector) Close() error {
	f.closed++
	return nil
}

// vectorFactory records every backend it builds.
type vectorFactory struct {
	built []*fakeVector
	err   error
}

func (vf *vectorFactory) make(_ string, n int, _ uint64, opts vector.Options) (VectorEnv, error) {
	if vf.err != nil {
		return nil, vf.err
	}
	f := &fakeVector{numEnvs: n, obsDim: 3, actDim: 2, high: 2, opts: opts}
	vf.built = append(vf.built, f)
	return f, nil
}

// fakePhysics mirrors the physics simulator surface.
type fakePhysics struct {
	numEnvs     int
	ticks       int
	resets      int
	visual      bool
	visualOns   int
	closed      int
	sceneYAML   string
	resourceDir string
}

func (f *fakePhysics) Reset() error { f.resets++; return nil }

func (f *fakePhysics) Observe() *mat.Dense {
	obs := mat.NewDense(f.numEnvs, 6, nil)
	obs.Set(0, 0, float64(f.ticks))
	return obs
}

func (f *fakePhysics) Step(*mat.Dense) ([]float64, []bool, error) {
	f.ticks++
	reward := make([]float64, f.numEnvs)
	for i := range reward {
		reward[i] = float64(f.ticks) * 10
	}
	return reward, make([]bool, f.numEnvs), nil
}

func (f *fakePhysics) NumEnvs() int          { return f.numEnvs }
func (f *fakePhysics) NumObs() int           { return 6 }
func (f *fakePhysics) NumActs() int          { return 2 }
func (f *fakePhysics) TurnOnVisualization()  { f.visual = true; f.visualOns++ }
func (f *fakePhysics) TurnOffVisualization() { f.visual = false }
func (f *fakePhysics) Close() error          { f.closed++; return nil }

func (f *fakePhysics) RewardInfo() []map[string]float64 {
	out := make([]map[string]float64, f.numEnvs)
	for i := range out {
		out[i] = map[string]float64{"total": float64(f.ticks) * 10}
	}
	return out
}

var errBackend = errors.New("backend exploded")
