package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersOnPrivateRegistry(t *testing.T) {
	a, b := New(), New()

	a.EnvStepsTotal.WithLabelValues("prefill").Add(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(a.EnvStepsTotal.WithLabelValues("prefill")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.EnvStepsTotal.WithLabelValues("prefill")))

	families, err := a.Registry.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "worldmodel_run_env_steps_total")
	assert.Contains(t, names, "go_goroutines")
}

func TestSetPhase(t *testing.T) {
	m := New()
	m.SetPhase("prefill")
	m.SetPhase("online")

	assert.Equal(t, 1, testutil.CollectAndCount(m.Phase))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Phase.WithLabelValues("online")))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.SetPhase("online") })
}
