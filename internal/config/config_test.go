package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty env name", func(c *Config) { c.Env.Name = "" }, "env.name"},
		{"zero time limit", func(c *Config) { c.Env.TimeLimit = 0 }, "env.time_limit"},
		{"zero clip", func(c *Config) { c.Env.ActionClip = 0 }, "env.action_clip"},
		{"record and render", func(c *Config) { c.Env.Record = true; c.Env.Render = true }, "mutually exclusive"},
		{"bad init", func(c *Config) { c.Model.InitDeter = "ones" }, "model.init_deter"},
		{"zero hidden", func(c *Config) { c.Model.HDim = 0 }, "model.h_dim"},
		{"negative prefill", func(c *Config) { c.Run.Prefill = -1 }, "run.prefill"},
		{"zero eval episodes", func(c *Config) { c.Run.EvalEpisodes = 0 }, "run.eval_episodes"},
		{"zero capacity", func(c *Config) { c.Replay.Capacity = 0 }, "replay.capacity"},
		{"capacity below prefill", func(c *Config) { c.Replay.Capacity = 8; c.Run.Prefill = 10 }, "replay.capacity must be >= run.prefill"},
		{"bad scene", func(c *Config) { c.Physics.ControlDt = 0.0001 }, "control_dt"},
		{"missing logging", func(c *Config) { c.Logging = nil }, "logging section missing"},
		{"bad logging", func(c *Config) { c.Logging.Format = "xml" }, "logging"},
		{"bad telemetry", func(c *Config) { c.Telemetry.Enabled = true; c.Telemetry.Endpoint = "" }, "telemetry"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_CapacityEqualToPrefillIsValid(t *testing.T) {
	cfg := Default()
	cfg.Replay.Capacity = 10
	cfg.Run.Prefill = 10
	assert.NoError(t, cfg.Validate())
}

func TestConfig_ZeroCadencesAreValid(t *testing.T) {
	cfg := Default()
	cfg.Run.TrainEvery = 0
	cfg.Run.LogEvery = -1
	cfg.Run.EvalEvery = 0
	assert.NoError(t, cfg.Validate())
}

func TestConfig_VideoDir(t *testing.T) {
	cfg := Default()
	cfg.Env.LogDir = "/tmp/runs"
	cfg.Env.Name = "Pendulum-v1"
	assert.Equal(t, filepath.Join("/tmp/runs", "Pendulum-v1", "videos"), cfg.VideoDir())
}

func TestScene_RoundTrip(t *testing.T) {
	scene := DefaultSceneConfig()
	scene.ControlDt = 0.02

	doc, err := MarshalScene(scene, 8, 7)
	require.NoError(t, err)
	assert.Contains(t, doc, "environment:")
	assert.Contains(t, doc, "num_envs: 8")
	assert.NotContains(t, doc, "resource_dir")

	got, numEnvs, seed, err := ParseScene(doc)
	require.NoError(t, err)
	assert.Equal(t, 8, numEnvs)
	assert.Equal(t, uint64(7), seed)
	assert.InDelta(t, 0.02, got.ControlDt, 1e-12)
	assert.Equal(t, scene.Reward, got.Reward)
	assert.Empty(t, got.ResourceDir)
}

func TestParseScene_Errors(t *testing.T) {
	_, _, _, err := ParseScene("environment: [")
	require.Error(t, err)

	_, _, _, err = ParseScene("environment:\n  num_envs: 0\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "num_envs")
}

func TestSceneConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultSceneConfig().Validate())

	s := DefaultSceneConfig()
	s.ResourceDir = ""
	s.NumThreads = 0
	s.MaxTime = 0
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resource_dir")
	assert.Contains(t, err.Error(), "num_threads")
	assert.Contains(t, err.Error(), "max_time")
}
