package logging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	cfg := NewDefaultConfig()

	logger, err := NewLogger(cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, logger)

	assert.NotNil(t, logger.zap)
	assert.Equal(t, cfg, logger.config)
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"

	_, err := NewLogger(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestLogger_ContextAwareMethods(t *testing.T) {
	core, observed := observer.New(TraceLevel)
	logger := &Logger{
		zap:    zap.New(core),
		config: NewDefaultConfig(),
	}

	ctx := WithRunID(context.Background(), "run-1")

	tests := []struct {
		name    string
		logFunc func()
		level   zapcore.Level
		message string
	}{
		{"trace", func() { logger.Trace(ctx, "trace message") }, TraceLevel, "trace message"},
		{"debug", func() { logger.Debug(ctx, "debug message") }, zapcore.DebugLevel, "debug message"},
		{"info", func() { logger.Info(ctx, "info message") }, zapcore.InfoLevel, "info message"},
		{"warn", func() { logger.Warn(ctx, "warn message") }, zapcore.WarnLevel, "warn message"},
		{"error", func() { logger.Error(ctx, "error message") }, zapcore.ErrorLevel, "error message"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			observed.TakeAll()
			tt.logFunc()

			logs := observed.All()
			require.Len(t, logs, 1)
			assert.Equal(t, tt.level, logs[0].Level)
			assert.Equal(t, tt.message, logs[0].Message)
			assert.Equal(t, "run-1", logs[0].ContextMap()["run.id"])
		})
	}
}

func TestLogger_TraceDisabledAtInfo(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	logger := &Logger{zap: zap.New(core), config: NewDefaultConfig()}

	logger.Trace(context.Background(), "per-step")

	assert.Empty(t, observed.All())
	assert.False(t, logger.Enabled(TraceLevel))
}

func TestLogger_WithAndNamed(t *testing.T) {
	tl := NewTestLogger()

	child := tl.Named("driver").With(zap.String("backend", "physics"))
	child.Info(context.Background(), "reset")

	logs := tl.All()
	require.Len(t, logs, 1)
	assert.Equal(t, "driver", logs[0].LoggerName)
	assert.Equal(t, "physics", logs[0].ContextMap()["backend"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"trace", TraceLevel, false},
		{"TRACE", TraceLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"", zapcore.InfoLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"loud", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid default config", func(*Config) {}, ""},
		{"trace level", func(c *Config) { c.Level = "trace" }, ""},
		{"otel only", func(c *Config) { c.Stream = "none"; c.OTEL = true }, ""},
		{"bad level", func(c *Config) { c.Level = "verbose" }, "unknown log level"},
		{"bad stacktrace level", func(c *Config) { c.StacktraceLevel = "x" }, "stacktrace_level"},
		{"invalid format", func(c *Config) { c.Format = "xml" }, "format must be json or console"},
		{"no output", func(c *Config) { c.Stream = "none" }, "no log output"},
		{"bad stream", func(c *Config) { c.Stream = "file" }, "stream must be"},
		{"zero tick", func(c *Config) { c.Sampling.Tick = 0 }, "sampling needs tick"},
		{"empty field value", func(c *Config) { c.Fields["host"] = "" }, "must have key and value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestNewSampledCore_WarningsNeverSampled(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	sampled := newSampledCore(core, SamplingConfig{
		Enabled:    true,
		Tick:       time.Second,
		Initial:    1,
		Thereafter: 0,
	})
	logger := &Logger{zap: zap.New(sampled), config: NewDefaultConfig()}

	for i := 0; i < 50; i++ {
		logger.Error(context.Background(), "step failed")
		logger.Warn(context.Background(), "slow step")
		logger.Info(context.Background(), "step ok")
	}

	assert.Len(t, observed.FilterMessage("step failed").All(), 50)
	assert.Len(t, observed.FilterMessage("slow step").All(), 50)
	assert.Len(t, observed.FilterMessage("step ok").All(), 1)
}

func TestNewSampledCore_WithKeepsSampling(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	sampled := newSampledCore(core, SamplingConfig{Enabled: true, Tick: time.Second, Initial: 2})
	logger := (&Logger{zap: zap.New(sampled), config: NewDefaultConfig()}).With(zap.String("env", "pendulum"))

	for i := 0; i < 10; i++ {
		logger.Info(context.Background(), "collect")
	}

	logs := observed.All()
	require.Len(t, logs, 2)
	assert.Equal(t, "pendulum", logs[0].ContextMap()["env"])
}

func TestNewSampledCore_Disabled(t *testing.T) {
	core, _ := observer.New(zapcore.InfoLevel)
	assert.Equal(t, core, newSampledCore(core, SamplingConfig{Enabled: false}))
}

func TestNewCore_OtelWithoutProvider(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Stream = "none"
	cfg.OTEL = true

	_, err := newCore(cfg, nil)
	assert.ErrorIs(t, err, errNoOutput)

	_, err = NewLogger(cfg, nil)
	assert.ErrorIs(t, err, errNoOutput)
}

func TestEncodeLevel_NamesTrace(t *testing.T) {
	enc := encoderFor("json")
	buf, err := enc.EncodeEntry(zapcore.Entry{Level: TraceLevel, Message: "tick"}, nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"level":"trace"`)
	assert.Contains(t, buf.String(), `"msg":"tick"`)
}

func TestContextFields(t *testing.T) {
	ctx := WithEnv(WithPhase(WithRunID(context.Background(), "abc"), "online"), "Pendulum-v1")

	fields := ContextFields(ctx)
	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, f.Key)
	}

	assert.ElementsMatch(t, []string{"run.id", "run.phase", "env.name"}, keys)
	assert.Empty(t, ContextFields(context.Background()))
}

func TestFromContext(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)

	assert.Same(t, tl.Logger, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestTestLogger_AssertField(t *testing.T) {
	tl := NewTestLogger()
	tl.Info(context.Background(), "flushed", zap.Int("episodes", 3))

	tl.AssertLogged(t, zapcore.InfoLevel, "flushed")
	tl.AssertNotLogged(t, zapcore.ErrorLevel, "flushed")
	tl.AssertField(t, "flushed", "episodes", int64(3))
}
