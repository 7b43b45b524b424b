// Package cadence decides when periodic side effects of a run fire.
//
// A Gate with period n fires at every step that is a multiple of n, step 0
// included. A period of zero or less disables the gate: it never fires.
package cadence

import "fmt"

// Gate is a step-periodic predicate. The zero value never fires.
type Gate struct {
	every int
}

// New creates a gate firing every n steps.
func New(n int) Gate {
	return Gate{every: n}
}

// Due reports whether the periodic action fires at step.
func (g Gate) Due(step int) bool {
	if g.every <= 0 {
		return false
	}
	return step%g.every == 0
}

// Enabled reports whether the gate can fire at all.
func (g Gate) Enabled() bool {
	return g.every > 0
}

// Every returns the configured period.
func (g Gate) Every() int {
	return g.every
}

// Count returns how many steps in [0, steps) the gate fires at.
func (g Gate) Count(steps int) int {
	if g.every <= 0 || steps <= 0 {
		return 0
	}
	return (steps-1)/g.every + 1
}

func (g Gate) String() string {
	if !g.Enabled() {
		return "never"
	}
	return fmt.Sprintf("every %d", g.every)
}
