package logging

import "go.uber.org/zap/zapcore"

// newSampledCore thins out repeated step-loop messages. Warn and above
// bypass the sampler so failures are never dropped.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}
	return &splitCore{
		Core:    core,
		sampled: zapcore.NewSamplerWithOptions(core, cfg.Tick, cfg.Initial, cfg.Thereafter),
		above:   zapcore.WarnLevel,
	}
}

// splitCore routes entries below `above` through the sampler.
type splitCore struct {
	zapcore.Core
	sampled zapcore.Core
	above   zapcore.Level
}

func (c *splitCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if e.Level >= c.above {
		return c.Core.Check(e, ce)
	}
	return c.sampled.Check(e, ce)
}

func (c *splitCore) With(fields []zapcore.Field) zapcore.Core {
	return &splitCore{
		Core:    c.Core.With(fields),
		sampled: c.sampled.With(fields),
		above:   c.above,
	}
}
