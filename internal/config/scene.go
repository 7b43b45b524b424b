package config

import (
	"errors"
	"fmt"

	"go.yaml.in/yaml/v3"
)

// SceneConfig is the physics backend configuration. It is serialized to YAML
// and handed to the simulator together with ResourceDir.
type SceneConfig struct {
	ResourceDir  string        `koanf:"resource_dir" yaml:"-"`
	NumThreads   int           `koanf:"num_threads" yaml:"num_threads"`
	SimulationDt float64       `koanf:"simulation_dt" yaml:"simulation_dt"`
	ControlDt    float64       `koanf:"control_dt" yaml:"control_dt"`
	MaxTime      float64       `koanf:"max_time" yaml:"max_time"`
	Reward       RewardWeights `koanf:"reward" yaml:"reward"`
}

// RewardWeights scales each reward component reported by the simulator.
type RewardWeights struct {
	Progress float64 `koanf:"progress" yaml:"progress"`
	Effort   float64 `koanf:"effort" yaml:"effort"`
	Alive    float64 `koanf:"alive" yaml:"alive"`
}

// DefaultSceneConfig returns the scene used when no physics section is given.
func DefaultSceneConfig() SceneConfig {
	return SceneConfig{
		ResourceDir:  "rsc",
		NumThreads:   1,
		SimulationDt: 0.0025,
		ControlDt:    0.01,
		MaxTime:      10,
		Reward: RewardWeights{
			Progress: 10,
			Effort:   -0.01,
			Alive:    0.1,
		},
	}
}

// Validate checks the scene for physically meaningful values.
func (s SceneConfig) Validate() error {
	var errs []error
	if s.ResourceDir == "" {
		errs = append(errs, errors.New("resource_dir must be set"))
	}
	if s.NumThreads < 1 {
		errs = append(errs, fmt.Errorf("num_threads must be >= 1, got %d", s.NumThreads))
	}
	if s.SimulationDt <= 0 {
		errs = append(errs, fmt.Errorf("simulation_dt must be > 0, got %g", s.SimulationDt))
	}
	if s.ControlDt < s.SimulationDt {
		errs = append(errs, fmt.Errorf("control_dt (%g) must be >= simulation_dt (%g)", s.ControlDt, s.SimulationDt))
	}
	if s.MaxTime <= 0 {
		errs = append(errs, fmt.Errorf("max_time must be > 0, got %g", s.MaxTime))
	}
	return errors.Join(errs...)
}

// sceneDocument is the layout the simulator reads: everything nested under
// an "environment" key, with the batch size and seed filled in from the run.
type sceneDocument struct {
	Environment sceneEnvironment `yaml:"environment"`
}

type sceneEnvironment struct {
	NumEnvs     int    `yaml:"num_envs"`
	Seed        uint64 `yaml:"seed"`
	SceneConfig `yaml:",inline"`
}

// MarshalScene serializes the scene for the simulator.
func MarshalScene(s SceneConfig, numEnvs int, seed uint64) (string, error) {
	out, err := yaml.Marshal(sceneDocument{
		Environment: sceneEnvironment{
			NumEnvs:     numEnvs,
			Seed:        seed,
			SceneConfig: s,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal scene: %w", err)
	}
	return string(out), nil
}

// ParseScene reads a document produced by MarshalScene.
func ParseScene(doc string) (scene SceneConfig, numEnvs int, seed uint64, err error) {
	var d sceneDocument
	if err := yaml.Unmarshal([]byte(doc), &d); err != nil {
		return SceneConfig{}, 0, 0, fmt.Errorf("parse scene: %w", err)
	}
	if d.Environment.NumEnvs < 1 {
		return SceneConfig{}, 0, 0, fmt.Errorf("parse scene: environment.num_envs must be >= 1, got %d", d.Environment.NumEnvs)
	}
	return d.Environment.SceneConfig, d.Environment.NumEnvs, d.Environment.Seed, nil
}
