package logging

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

// TraceLevel sits below Debug and is meant for per-step environment output.
const TraceLevel = zapcore.DebugLevel - 1

// Config selects level, encoding and destinations for run logs.
type Config struct {
	Level    string         `koanf:"level"`
	Format   string         `koanf:"format"`
	Stream   string         `koanf:"stream"`
	OTEL     bool           `koanf:"otel"`
	Sampling SamplingConfig `koanf:"sampling"`

	// Caller adds file:line of the call site.
	Caller          bool              `koanf:"caller"`
	StacktraceLevel string            `koanf:"stacktrace_level"`
	Fields          map[string]string `koanf:"fields"`
}

// SamplingConfig bounds repeated messages below Warn. Inside every Tick
// the first Initial copies of a message pass, then one in Thereafter.
type SamplingConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Tick       time.Duration `koanf:"tick"`
	Initial    int           `koanf:"initial"`
	Thereafter int           `koanf:"thereafter"`
}

// NewDefaultConfig returns JSON logs on stderr at info. Stdout stays free
// for command output.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: "json",
		Stream: "stderr",
		Sampling: SamplingConfig{
			Enabled:    true,
			Tick:       time.Second,
			Initial:    50,
			Thereafter: 50,
		},
		Caller:          true,
		StacktraceLevel: "error",
		Fields:          map[string]string{"service": "worldmodel"},
	}
}

// ParseLevel understands the zap level names plus "trace". An empty
// string means info.
func ParseLevel(s string) (zapcore.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return zapcore.InfoLevel, nil
	case "trace":
		return TraceLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
	return lvl, nil
}

// Validate reports the first problem found.
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.Level); err != nil {
		return err
	}
	if c.StacktraceLevel != "" {
		if _, err := ParseLevel(c.StacktraceLevel); err != nil {
			return fmt.Errorf("stacktrace_level: %w", err)
		}
	}
	switch c.Format {
	case "json", "console":
	default:
		return fmt.Errorf("format must be json or console, got %q", c.Format)
	}
	switch c.Stream {
	case "stdout", "stderr":
	case "none", "":
		if !c.OTEL {
			return errors.New("no log output: stream is none and otel is off")
		}
	default:
		return fmt.Errorf("stream must be stdout, stderr or none, got %q", c.Stream)
	}
	if s := c.Sampling; s.Enabled && (s.Tick <= 0 || s.Initial < 0 || s.Thereafter < 0) {
		return fmt.Errorf("sampling needs tick > 0 and non-negative counts, got %+v", s)
	}
	for k, v := range c.Fields {
		if k == "" || v == "" {
			return fmt.Errorf("static field %q=%q must have key and value", k, v)
		}
	}
	return nil
}

func (c *Config) level() zapcore.Level {
	lvl, _ := ParseLevel(c.Level)
	return lvl
}
