package replay

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/fyrsmithlabs/worldmodel/internal/batch"
	"github.com/fyrsmithlabs/worldmodel/internal/snapshot"
)

// SnapshotKind tags replay snapshots.
const SnapshotKind = "replay"

type state struct {
	Capacity int
	Dims     Dims
	NumEnvs  int
	Added    int
	Episodes []episodeState
	Pending  episodeState
}

// episodeState flattens an episode row-major: step, env, field.
type episodeState struct {
	Steps  int
	Obs    []float64
	Action []float64
	Reward []float64
	Cont   []float64
}

// Save writes the buffer, including the episode in progress, to path.
func (b *Buffer) Save(path string) error {
	b.mu.Lock()
	st := state{
		Capacity: b.capacity,
		Dims:     b.dims,
		NumEnvs:  b.numEnvs,
		Added:    b.added,
		Episodes: make([]episodeState, len(b.episodes)),
		Pending:  flatten(b.pending),
	}
	for i, ep := range b.episodes {
		st.Episodes[i] = flatten(ep)
	}
	b.mu.Unlock()

	return snapshot.WriteFile(path, SnapshotKind, st)
}

// Load restores a buffer saved by Save. seed drives future sampling.
func Load(path string, seed uint64) (*Buffer, error) {
	var st state
	if err := snapshot.ReadFile(path, SnapshotKind, &st); err != nil {
		return nil, err
	}
	b, err := New(st.Capacity, st.Dims, seed)
	if err != nil {
		return nil, fmt.Errorf("restore replay: %w", err)
	}
	b.numEnvs = st.NumEnvs
	b.added = st.Added
	for _, es := range st.Episodes {
		ep, err := unflatten(es, st.NumEnvs, st.Dims)
		if err != nil {
			return nil, err
		}
		b.episodes = append(b.episodes, ep)
		b.size += len(ep)
	}
	if b.pending, err = unflatten(st.Pending, st.NumEnvs, st.Dims); err != nil {
		return nil, err
	}
	b.size += len(b.pending)
	return b, nil
}

func flatten(ep episode) episodeState {
	es := episodeState{Steps: len(ep)}
	for _, t := range ep {
		es.Obs = append(es.Obs, t.Obs.RawMatrix().Data...)
		es.Action = append(es.Action, t.Action.RawMatrix().Data...)
		es.Reward = append(es.Reward, t.Reward...)
		es.Cont = append(es.Cont, t.Cont...)
	}
	return es
}

func unflatten(es episodeState, numEnvs int, dims Dims) (episode, error) {
	if es.Steps == 0 {
		return nil, nil
	}
	if len(es.Obs) != es.Steps*numEnvs*dims.Obs ||
		len(es.Action) != es.Steps*numEnvs*dims.Action ||
		len(es.Reward) != es.Steps*numEnvs ||
		len(es.Cont) != es.Steps*numEnvs {
		return nil, fmt.Errorf("%w: corrupt episode of %d steps", ErrShapeMismatch, es.Steps)
	}

	ep := make(episode, es.Steps)
	for s := range ep {
		o := s * numEnvs
		ep[s] = batch.Transition{
			Obs:    mat.NewDense(numEnvs, dims.Obs, es.Obs[o*dims.Obs:(o+numEnvs)*dims.Obs]),
			Action: mat.NewDense(numEnvs, dims.Action, es.Action[o*dims.Action:(o+numEnvs)*dims.Action]),
			Reward: es.Reward[o : o+numEnvs],
			Cont:   es.Cont[o : o+numEnvs],
		}
	}
	return ep, nil
}
