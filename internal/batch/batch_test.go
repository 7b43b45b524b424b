package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

func TestContFromDone(t *testing.T) {
	assert.Equal(t, []float64{1, 0, 1}, ContFromDone([]bool{false, true, false}))
	assert.Empty(t, ContFromDone(nil))
}

func TestAnyDone(t *testing.T) {
	assert.False(t, AnyDone([]bool{false, false}))
	assert.True(t, AnyDone([]bool{false, true}))
	assert.False(t, AnyDone(nil))
}

func TestInitHidden_Zero(t *testing.T) {
	h, err := InitHidden(HiddenZero, 3, 4, nil)
	require.NoError(t, err)
	r, c := h.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 4, c)
	assert.True(t, mat.Equal(h, mat.NewDense(3, 4, nil)))
}

func TestInitHidden_NormalStatistics(t *testing.T) {
	h, err := InitHidden(HiddenNormal, 200, 50, NewRand(7))
	require.NoError(t, err)

	data := h.RawMatrix().Data
	mean, std := stat.MeanStdDev(data, nil)
	assert.InDelta(t, 0, mean, 0.001)
	assert.InDelta(t, 0.01, std, 0.001)
}

func TestInitHidden_Errors(t *testing.T) {
	_, err := InitHidden("ones", 1, 1, NewRand(1))
	assert.Error(t, err)

	_, err = InitHidden(HiddenNormal, 1, 1, nil)
	assert.Error(t, err)
}

func TestNewRand_Deterministic(t *testing.T) {
	a, b := NewRand(3), NewRand(3)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Float64(), b.Float64())
	}
}

func TestClip(t *testing.T) {
	m := mat.NewDense(1, 3, []float64{-5, 0.5, 5})
	Clip(m, 2)
	assert.Equal(t, []float64{-2, 0.5, 2}, m.RawRowView(0))
}

func TestTransition_Validate(t *testing.T) {
	obs := mat.NewDense(2, 3, nil)
	act := mat.NewDense(2, 1, nil)
	tr := NewTransition(obs, []float64{1, 2}, []bool{false, true}, act)
	require.NoError(t, tr.Validate())
	assert.Equal(t, []float64{1, 0}, tr.Cont)
	assert.Equal(t, 2, tr.NumEnvs())

	tr.Reward = []float64{1}
	assert.Error(t, tr.Validate())

	tr = NewTransition(obs, []float64{1, 2}, []bool{false, false}, mat.NewDense(3, 1, nil))
	assert.Error(t, tr.Validate())

	assert.Error(t, Transition{}.Validate())
}
