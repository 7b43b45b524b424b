package replay

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Sequences is a batch of training sequences, time-major. Obs[t] and
// Action[t] are (batch, dim); Reward and Cont are (seq_len, batch).
type Sequences struct {
	Obs    []*mat.Dense
	Action []*mat.Dense
	Reward *mat.Dense
	Cont   *mat.Dense
}

// SeqLen returns the number of time steps.
func (s Sequences) SeqLen() int { return len(s.Obs) }

// BatchSize returns the number of sequences.
func (s Sequences) BatchSize() int {
	_, c := s.Reward.Dims()
	return c
}

// Sample draws batchSize sequences of seqLen consecutive steps. Each
// sequence follows one environment of one completed episode, chosen
// uniformly among episodes at least seqLen long.
func (b *Buffer) Sample(batchSize, seqLen int) (Sequences, error) {
	if batchSize <= 0 || seqLen <= 0 {
		return Sequences{}, fmt.Errorf("batch size and seq len must be positive, got %d/%d", batchSize, seqLen)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var eligible []episode
	for _, ep := range b.episodes {
		if len(ep) >= seqLen {
			eligible = append(eligible, ep)
		}
	}
	if len(eligible) == 0 {
		return Sequences{}, fmt.Errorf("%w: no completed episode with >= %d steps", ErrNotEnoughData, seqLen)
	}

	out := Sequences{
		Obs:    make([]*mat.Dense, seqLen),
		Action: make([]*mat.Dense, seqLen),
		Reward: mat.NewDense(seqLen, batchSize, nil),
		Cont:   mat.NewDense(seqLen, batchSize, nil),
	}
	for t := 0; t < seqLen; t++ {
		out.Obs[t] = mat.NewDense(batchSize, b.dims.Obs, nil)
		out.Action[t] = mat.NewDense(batchSize, b.dims.Action, nil)
	}

	for i := 0; i < batchSize; i++ {
		ep := eligible[b.rng.IntN(len(eligible))]
		env := b.rng.IntN(b.numEnvs)
		start := b.rng.IntN(len(ep) - seqLen + 1)
		for t := 0; t < seqLen; t++ {
			tr := ep[start+t]
			out.Obs[t].SetRow(i, tr.Obs.RawRowView(env))
			out.Action[t].SetRow(i, tr.Action.RawRowView(env))
			out.Reward.Set(t, i, tr.Reward[env])
			out.Cont.Set(t, i, tr.Cont[env])
		}
	}
	return out, nil
}

// Sampler is the read side of a buffer used by training code.
type Sampler interface {
	Sample(batchSize, seqLen int) (Sequences, error)
}
