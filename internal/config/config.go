// Package config provides configuration loading for training runs.
//
// A run is configured by one YAML document holding a `defaults` section and
// optional per-environment overrides under `envs.<name>`. Environment
// variables prefixed with WORLDMODEL_ override both. The resulting Config is
// validated once and treated as read-only for the lifetime of the run.
package config

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fyrsmithlabs/worldmodel/internal/logging"
	"github.com/fyrsmithlabs/worldmodel/internal/telemetry"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Hidden-state initialization modes.
const (
	InitZero   = "zero"
	InitNormal = "normal"
)

// Config holds the complete run configuration.
type Config struct {
	Device    string            `koanf:"device"`
	Env       EnvConfig         `koanf:"env"`
	Model     ModelConfig       `koanf:"model"`
	Run       RunConfig         `koanf:"run"`
	Replay    ReplayConfig      `koanf:"replay"`
	Physics   SceneConfig       `koanf:"physics"`
	Metrics   MetricsConfig     `koanf:"metrics"`
	Logging   *logging.Config   `koanf:"logging"`
	Telemetry *telemetry.Config `koanf:"telemetry"`
}

// EnvConfig describes the simulated environment batch.
type EnvConfig struct {
	Name         string  `koanf:"name"`
	NumEnvs      int     `koanf:"num_envs"`
	ActionRepeat int     `koanf:"action_repeat"`
	TimeLimit    int     `koanf:"time_limit"`
	ActionClip   float64 `koanf:"action_clip"`
	Record       bool    `koanf:"record"`
	Render       bool    `koanf:"render"`
	Seed         uint64  `koanf:"seed"`
	LogDir       string  `koanf:"log_dir"`
}

// ModelConfig holds the agent configuration.
type ModelConfig struct {
	HDim        int     `koanf:"h_dim"`
	InitDeter   string  `koanf:"init_deter"`
	Exploration float64 `koanf:"exploration"`
	LR          float64 `koanf:"lr"`
}

// RunConfig holds phase lengths and cadences.
// A cadence <= 0 disables the corresponding periodic action.
type RunConfig struct {
	Prefill      int  `koanf:"prefill"`
	Pretrain     int  `koanf:"pretrain"`
	Steps        int  `koanf:"steps"`
	TrainEvery   int  `koanf:"train_every"`
	LogEvery     int  `koanf:"log_every"`
	EvalEvery    int  `koanf:"eval_every"`
	EvalEpisodes int  `koanf:"eval_episodes"`
	ZeroShot     bool `koanf:"zero_shot"`
}

// ReplayConfig sizes the replay buffer and its training batches.
type ReplayConfig struct {
	Capacity  int `koanf:"capacity"`
	BatchSize int `koanf:"batch_size"`
	SeqLen    int `koanf:"seq_len"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `koanf:"addr"` // empty disables the endpoint
}

// Default returns a configuration that runs the bundled physics backend on CPU.
func Default() *Config {
	return &Config{
		Device: "cpu",
		Env: EnvConfig{
			Name:         "physics",
			NumEnvs:      16,
			ActionRepeat: 2,
			TimeLimit:    500,
			ActionClip:   1.0,
			Seed:         1,
			LogDir:       "logs",
		},
		Model: ModelConfig{
			HDim:        64,
			InitDeter:   InitZero,
			Exploration: 0.3,
			LR:          0.01,
		},
		Run: RunConfig{
			Prefill:      2500,
			Pretrain:     100,
			Steps:        1e5,
			TrainEvery:   5,
			LogEvery:     1000,
			EvalEvery:    10000,
			EvalEpisodes: 1,
		},
		Replay: ReplayConfig{
			Capacity:  1_000_000,
			BatchSize: 16,
			SeqLen:    64,
		},
		Physics:   DefaultSceneConfig(),
		Logging:   logging.NewDefaultConfig(),
		Telemetry: telemetry.NewDefaultConfig(),
	}
}

// VideoDir returns the directory recordings for this environment are written to.
func (c *Config) VideoDir() string {
	return filepath.Join(c.Env.LogDir, c.Env.Name, "videos")
}

// Validate checks every field and reports all violations at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Device != "", "device must be set")
	check(c.Env.Name != "", "env.name must be set")
	check(c.Env.NumEnvs >= 1, "env.num_envs must be >= 1, got %d", c.Env.NumEnvs)
	check(c.Env.ActionRepeat >= 1, "env.action_repeat must be >= 1, got %d", c.Env.ActionRepeat)
	check(c.Env.TimeLimit >= 1, "env.time_limit must be >= 1, got %d", c.Env.TimeLimit)
	check(c.Env.ActionClip > 0, "env.action_clip must be > 0, got %g", c.Env.ActionClip)
	check(!(c.Env.Record && c.Env.Render), "env.record and env.render are mutually exclusive")
	check(c.Model.HDim >= 1, "model.h_dim must be >= 1, got %d", c.Model.HDim)
	check(c.Model.InitDeter == InitZero || c.Model.InitDeter == InitNormal,
		"model.init_deter must be %q or %q, got %q", InitZero, InitNormal, c.Model.InitDeter)
	check(c.Model.Exploration >= 0, "model.exploration must be >= 0")
	check(c.Model.LR > 0, "model.lr must be > 0")
	check(c.Run.Prefill >= 0, "run.prefill must be >= 0")
	check(c.Run.Pretrain >= 0, "run.pretrain must be >= 0")
	check(c.Run.Steps >= 0, "run.steps must be >= 0")
	check(c.Run.EvalEpisodes >= 1, "run.eval_episodes must be >= 1")
	check(c.Replay.Capacity >= 1, "replay.capacity must be >= 1")
	// Eviction would keep the buffer below the prefill target forever.
	check(c.Replay.Capacity >= c.Run.Prefill,
		"replay.capacity must be >= run.prefill, got %d < %d", c.Replay.Capacity, c.Run.Prefill)
	check(c.Replay.BatchSize >= 1, "replay.batch_size must be >= 1")
	check(c.Replay.SeqLen >= 1, "replay.seq_len must be >= 1")

	if err := c.Physics.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("physics: %w", err))
	}
	if c.Logging == nil {
		errs = append(errs, errors.New("logging section missing"))
	} else if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}
	if c.Telemetry == nil {
		errs = append(errs, errors.New("telemetry section missing"))
	} else if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}
