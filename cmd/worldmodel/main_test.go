package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/worldmodel/internal/orchestrator"
)

// writeConfig writes a small Pendulum configuration and returns its path.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	content := `
defaults:
  device: cpu
  env:
    name: Pendulum-v1
    num_envs: 2
    action_repeat: 1
    time_limit: 8
    log_dir: ` + filepath.Join(dir, "logs") + `
  model:
    h_dim: 8
  run:
    prefill: 16
    pretrain: 2
    steps: 12
    train_every: 4
    log_every: 6
    eval_every: 0
  replay:
    capacity: 1000
    batch_size: 2
    seq_len: 4
envs:
  CartPoleContinuous-v0:
    env:
      time_limit: 6
`
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "absent.env")))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version:    dev")
}

func TestEnvInfoCommand(t *testing.T) {
	cfgPath := writeConfig(t)

	out, err := execute(t, "envinfo", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Pendulum-v1 obs_dim=3 act_dim=1 act_bound=2")

	out, err = execute(t, "envinfo", "--config", cfgPath, "--env", "CartPoleContinuous-v0")
	require.NoError(t, err)
	assert.Contains(t, out, "CartPoleContinuous-v0 obs_dim=4 act_dim=1 act_bound=1")
}

func TestEnvInfoCommand_UnknownEnv(t *testing.T) {
	_, err := execute(t, "envinfo", "--config", writeConfig(t), "--env", "Nope-v0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Nope-v0")
}

func TestTrainCommand_SavesSnapshots(t *testing.T) {
	cfgPath := writeConfig(t)
	dir := t.TempDir()
	agentPath := filepath.Join(dir, "agent.snap")
	replayPath := filepath.Join(dir, "replay.snap")

	_, err := execute(t, "train", "--config", cfgPath, "--no-progress",
		"--save-agent", agentPath, "--save-replay", replayPath)
	require.NoError(t, err)
	assert.FileExists(t, agentPath)
	assert.FileExists(t, replayPath)

	// The snapshots resume a second run.
	_, err = execute(t, "train", "--config", cfgPath, "--no-progress",
		"--agent", agentPath, "--replay", replayPath)
	require.NoError(t, err)
}

func TestTrainCommand_InvalidConfig(t *testing.T) {
	t.Setenv("WORLDMODEL_ENV_NUM_ENVS", "0")

	_, err := execute(t, "train", "--config", writeConfig(t), "--no-progress")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "env.num_envs")
}

func TestTrainCommand_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runTrain(ctx, writeConfig(t), &trainOptions{noProgress: true}, &bytes.Buffer{}, &bytes.Buffer{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("WORLDMODEL_TEST_DOTENV=loaded\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("WORLDMODEL_TEST_DOTENV") })

	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "loaded", os.Getenv("WORLDMODEL_TEST_DOTENV"))

	assert.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
	assert.NoError(t, loadEnvFile(""))
}

func TestStatusTracker(t *testing.T) {
	s := newStatusTracker("physics")
	assert.Equal(t, "starting", s.snapshot().Status)

	s.update(orchestrator.PhaseProgress{Phase: orchestrator.PhaseOnline, Status: orchestrator.StatusInProgress, Current: 5, Total: 20})
	got := s.snapshot()
	assert.Equal(t, "running", got.Status)
	assert.Equal(t, "online", got.Phase)
	assert.Equal(t, 25, got.Progress)

	s.finish(nil)
	got = s.snapshot()
	assert.Equal(t, "completed", got.Status)
	assert.Equal(t, "done", got.Phase)

	s.finish(context.Canceled)
	assert.Equal(t, "failed", s.snapshot().Status)
}

func TestProgressBars(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressBars(&buf)

	p.update(orchestrator.PhaseProgress{Phase: orchestrator.PhasePrefill, Status: orchestrator.StatusInProgress, Total: 10})
	p.update(orchestrator.PhaseProgress{Phase: orchestrator.PhasePrefill, Status: orchestrator.StatusInProgress, Current: 4, Total: 10})
	p.update(orchestrator.PhaseProgress{Phase: orchestrator.PhasePrefill, Status: orchestrator.StatusCompleted, Current: 10, Total: 10})
	assert.Nil(t, p.bar)
	assert.Contains(t, buf.String(), "prefill")

	var nilBars *progressBars
	assert.NotPanics(t, func() {
		nilBars.update(orchestrator.PhaseProgress{Phase: orchestrator.PhaseOnline})
		nilBars.finish()
	})
}
