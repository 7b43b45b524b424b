package cadence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGate_Due(t *testing.T) {
	tests := []struct {
		name  string
		every int
		steps int
		want  []int
	}{
		{"every 5", 5, 20, []int{0, 5, 10, 15}},
		{"every 10", 10, 20, []int{0, 10}},
		{"every step", 1, 4, []int{0, 1, 2, 3}},
		{"period longer than run", 100, 20, []int{0}},
		{"zero never fires", 0, 20, nil},
		{"negative never fires", -3, 20, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(tt.every)
			var fired []int
			for step := 0; step < tt.steps; step++ {
				if g.Due(step) {
					fired = append(fired, step)
				}
			}
			assert.Equal(t, tt.want, fired)
			assert.Equal(t, len(tt.want), g.Count(tt.steps))
		})
	}
}

func TestGate_Enabled(t *testing.T) {
	assert.True(t, New(1).Enabled())
	assert.False(t, New(0).Enabled())
	assert.False(t, Gate{}.Enabled())
	assert.False(t, Gate{}.Due(0))
}

func TestGate_String(t *testing.T) {
	assert.Equal(t, "every 5", New(5).String())
	assert.Equal(t, "never", New(0).String())
	assert.Equal(t, 5, New(5).Every())
}
