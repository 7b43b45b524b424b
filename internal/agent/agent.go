// Package agent provides a baseline recurrent agent.
//
// The agent keeps a fixed random recurrent projection of observations as its
// hidden state and acts through a fixed random readout with Gaussian
// exploration noise. The only trained part is a linear reward head fitted to
// replayed (observation, action, reward) triples by gradient descent, which
// gives the training loop real work and a loss to report.
package agent

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/fyrsmithlabs/worldmodel/internal/batch"
	"github.com/fyrsmithlabs/worldmodel/internal/config"
	"github.com/fyrsmithlabs/worldmodel/internal/replay"
)

// Info keys reported by TrainStep and TrainStepZeroShot.
const (
	InfoRewardLoss = "reward_loss"
	InfoGradNorm   = "grad_norm"
	InfoUpdates    = "updates"
	InfoTrained    = "trained"
	InfoSkipped    = "skipped"
	InfoZeroShot   = "zero_shot"
)

// Spec sizes the agent.
type Spec struct {
	ObsDim   int
	ActDim   int
	ActBound float64
}

// Baseline is the bundled agent.
type Baseline struct {
	spec        Spec
	hDim        int
	exploration float64
	lr          float64
	batchSize   int
	seqLen      int
	rng         *rand.Rand

	wh   *mat.Dense    // (h, h) recurrence
	wo   *mat.Dense    // (obs, h) input projection
	wa   *mat.Dense    // (h, act) readout
	head *mat.VecDense // (obs+act) reward weights
	bias float64

	updates  int
	lastLoss float64
}

// New creates an agent with freshly drawn projections.
func New(spec Spec, model config.ModelConfig, rc config.ReplayConfig, seed uint64) (*Baseline, error) {
	if spec.ObsDim <= 0 || spec.ActDim <= 0 || spec.ActBound <= 0 {
		return nil, fmt.Errorf("invalid agent spec %+v", spec)
	}
	rng := batch.NewRand(seed)
	a := &Baseline{
		spec:        spec,
		hDim:        model.HDim,
		exploration: model.Exploration,
		lr:          model.LR,
		batchSize:   rc.BatchSize,
		seqLen:      rc.SeqLen,
		rng:         rng,
		wh:          mat.NewDense(model.HDim, model.HDim, nil),
		wo:          mat.NewDense(spec.ObsDim, model.HDim, nil),
		wa:          mat.NewDense(model.HDim, spec.ActDim, nil),
		head:        mat.NewVecDense(spec.ObsDim+spec.ActDim, nil),
		lastLoss:    math.NaN(),
	}
	// Scaled so the recurrence stays contractive.
	batch.FillNormal(a.wh, 0.5/math.Sqrt(float64(model.HDim)), rng)
	batch.FillNormal(a.wo, 1/math.Sqrt(float64(spec.ObsDim)), rng)
	batch.FillNormal(a.wa, 1/math.Sqrt(float64(model.HDim)), rng)
	return a, nil
}

// Spec returns the dimensions the agent was built for.
func (a *Baseline) Spec() Spec { return a.spec }

// Act advances the hidden state with obs and picks the next action:
// h' = tanh(h Wh + obs Wo), action = clip(bound * (tanh(h' Wa) + noise)).
func (a *Baseline) Act(ctx context.Context, hidden, obs *mat.Dense) (*mat.Dense, *mat.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	n, hc := hidden.Dims()
	on, oc := obs.Dims()
	if hc != a.hDim || oc != a.spec.ObsDim || on != n {
		return nil, nil, fmt.Errorf("act: hidden (%d, %d) / obs (%d, %d) do not match h_dim %d obs_dim %d",
			n, hc, on, oc, a.hDim, a.spec.ObsDim)
	}

	var next, in mat.Dense
	next.Mul(hidden, a.wh)
	in.Mul(obs, a.wo)
	next.Add(&next, &in)
	next.Apply(func(_, _ int, v float64) float64 { return math.Tanh(v) }, &next)

	action := mat.NewDense(n, a.spec.ActDim, nil)
	action.Mul(&next, a.wa)
	bound := a.spec.ActBound
	action.Apply(func(_, _ int, v float64) float64 {
		return bound * (math.Tanh(v) + a.exploration*a.rng.NormFloat64())
	}, action)
	batch.Clip(action, bound)

	return &next, action, nil
}

// TrainStep runs one update of the reward head when train is set. The
// returned info always carries the latest loss.
func (a *Baseline) TrainStep(ctx context.Context, step int, data replay.Sampler, train bool) (batch.Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !train {
		return a.info(0), nil
	}
	return a.update(data)
}

// TrainStepZeroShot runs one update purely from stored data.
func (a *Baseline) TrainStepZeroShot(ctx context.Context, data replay.Sampler) (batch.Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := a.update(data)
	if err != nil {
		return nil, err
	}
	info[InfoZeroShot] = 1
	return info, nil
}

// PredictReward evaluates the reward head on one batch.
func (a *Baseline) PredictReward(obs, action *mat.Dense) []float64 {
	x := features(obs, action)
	n, _ := x.Dims()
	var pred mat.VecDense
	pred.MulVec(x, a.head)
	out := make([]float64, n)
	for i := range out {
		out[i] = pred.AtVec(i) + a.bias
	}
	return out
}

func (a *Baseline) update(data replay.Sampler) (batch.Info, error) {
	seq, err := data.Sample(a.batchSize, a.seqLen)
	if errors.Is(err, replay.ErrNotEnoughData) {
		info := a.info(0)
		info[InfoSkipped] = 1
		return info, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sample: %w", err)
	}

	// Stack every (t, b) pair into one design matrix.
	rows := seq.SeqLen() * seq.BatchSize()
	x := mat.NewDense(rows, a.spec.ObsDim+a.spec.ActDim, nil)
	y := mat.NewVecDense(rows, nil)
	for t := 0; t < seq.SeqLen(); t++ {
		ft := features(seq.Obs[t], seq.Action[t])
		for b := 0; b < seq.BatchSize(); b++ {
			r := t*seq.BatchSize() + b
			x.SetRow(r, ft.RawRowView(b))
			y.SetVec(r, seq.Reward.At(t, b))
		}
	}

	var resid mat.VecDense
	resid.MulVec(x, a.head)
	resid.AddVec(&resid, constVec(rows, a.bias))
	resid.SubVec(&resid, y)

	loss := mat.Dot(&resid, &resid) / float64(rows)

	var grad mat.VecDense
	grad.MulVec(x.T(), &resid)
	grad.ScaleVec(2/float64(rows), &grad)
	gradBias := 2 * mat.Sum(&resid) / float64(rows)

	a.head.AddScaledVec(a.head, -a.lr, &grad)
	a.bias -= a.lr * gradBias
	a.updates++
	a.lastLoss = loss

	info := a.info(1)
	info[InfoGradNorm] = math.Hypot(mat.Norm(&grad, 2), gradBias)
	return info, nil
}

func (a *Baseline) info(trained float64) batch.Info {
	return batch.Info{
		InfoRewardLoss: a.lastLoss,
		InfoUpdates:    float64(a.updates),
		InfoTrained:    trained,
	}
}

func features(obs, action *mat.Dense) *mat.Dense {
	n, oc := obs.Dims()
	_, ac := action.Dims()
	x := mat.NewDense(n, oc+ac, nil)
	x.Slice(0, n, 0, oc).(*mat.Dense).Copy(obs)
	x.Slice(0, n, oc, oc+ac).(*mat.Dense).Copy(action)
	return x
}

func constVec(n int, v float64) *mat.VecDense {
	data := make([]float64, n)
	for i := range data {
		data[i] = v
	}
	return mat.NewVecDense(n, data)
}
