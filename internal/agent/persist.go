package agent

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/fyrsmithlabs/worldmodel/internal/snapshot"
)

// SnapshotKind tags agent snapshots.
const SnapshotKind = "agent"

type params struct {
	Spec     Spec
	HDim     int
	Wh       []float64
	Wo       []float64
	Wa       []float64
	Head     []float64
	Bias     float64
	Updates  int
	LastLoss float64
}

// Save writes the agent parameters to path.
func (a *Baseline) Save(path string) error {
	return snapshot.WriteFile(path, SnapshotKind, params{
		Spec:     a.spec,
		HDim:     a.hDim,
		Wh:       a.wh.RawMatrix().Data,
		Wo:       a.wo.RawMatrix().Data,
		Wa:       a.wa.RawMatrix().Data,
		Head:     a.head.RawVector().Data,
		Bias:     a.bias,
		Updates:  a.updates,
		LastLoss: a.lastLoss,
	})
}

// Load replaces the parameters with those saved at path. The snapshot must
// have been written by an agent of the same dimensions.
func (a *Baseline) Load(path string) error {
	var p params
	if err := snapshot.ReadFile(path, SnapshotKind, &p); err != nil {
		return err
	}
	if p.Spec != a.spec || p.HDim != a.hDim {
		return fmt.Errorf("agent snapshot %s has spec %+v h_dim %d, want %+v h_dim %d",
			path, p.Spec, p.HDim, a.spec, a.hDim)
	}
	if len(p.Wh) != a.hDim*a.hDim || len(p.Wo) != a.spec.ObsDim*a.hDim ||
		len(p.Wa) != a.hDim*a.spec.ActDim || len(p.Head) != a.spec.ObsDim+a.spec.ActDim {
		return fmt.Errorf("agent snapshot %s: corrupt parameter sizes", path)
	}

	a.wh = mat.NewDense(a.hDim, a.hDim, p.Wh)
	a.wo = mat.NewDense(a.spec.ObsDim, a.hDim, p.Wo)
	a.wa = mat.NewDense(a.hDim, a.spec.ActDim, p.Wa)
	a.head = mat.NewVecDense(len(p.Head), p.Head)
	a.bias = p.Bias
	a.updates = p.Updates
	a.lastLoss = p.LastLoss
	return nil
}
