// Package classic provides Go-native classic-control simulators.
package classic

import (
	"fmt"
	"sort"
	"sync"

	"github.com/fyrsmithlabs/worldmodel/internal/sim"
)

// Factory builds a fresh environment instance.
type Factory func() sim.Env

var (
	mu       sync.RWMutex
	registry = map[string]Factory{
		CartPoleID: func() sim.Env { return NewCartPole() },
		PendulumID: func() sim.Env { return NewPendulum() },
	}
)

// Register adds or replaces the factory for id.
func Register(id string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[id] = f
}

// Make builds the environment registered under id.
func Make(id string) (sim.Env, error) {
	mu.RLock()
	f, ok := registry[id]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", sim.ErrUnknownEnv, id, IDs())
	}
	return f(), nil
}

// IDs lists registered environment ids in sorted order.
func IDs() []string {
	mu.RLock()
	defer mu.RUnlock()
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
