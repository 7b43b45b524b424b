package logging

import (
	"errors"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const scopeName = "github.com/fyrsmithlabs/worldmodel"

var errNoOutput = errors.New("no log output available")

// newCore assembles the stream core and, when a provider is given, the
// otel bridge, then applies sampling to the result.
func newCore(cfg *Config, provider log.LoggerProvider) (zapcore.Core, error) {
	var cores []zapcore.Core
	if w := streamWriter(cfg.Stream); w != nil {
		cores = append(cores, zapcore.NewCore(encoderFor(cfg.Format), w, cfg.level()))
	}
	if cfg.OTEL && provider != nil {
		cores = append(cores, otelzap.NewCore(scopeName, otelzap.WithLoggerProvider(provider)))
	}

	switch len(cores) {
	case 0:
		return nil, errNoOutput
	case 1:
		return newSampledCore(cores[0], cfg.Sampling), nil
	default:
		return newSampledCore(zapcore.NewTee(cores...), cfg.Sampling), nil
	}
}

func streamWriter(stream string) zapcore.WriteSyncer {
	switch stream {
	case "stdout":
		return zapcore.Lock(os.Stdout)
	case "stderr":
		return zapcore.Lock(os.Stderr)
	}
	return nil
}

func encoderFor(format string) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "ts"
	ec.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	ec.EncodeDuration = zapcore.StringDurationEncoder
	ec.EncodeLevel = encodeLevel(zapcore.LowercaseLevelEncoder)
	if format == "console" {
		ec.EncodeLevel = encodeLevel(zapcore.CapitalColorLevelEncoder)
		return zapcore.NewConsoleEncoder(ec)
	}
	return zapcore.NewJSONEncoder(ec)
}

// encodeLevel names TraceLevel instead of printing "Level(-2)".
func encodeLevel(next zapcore.LevelEncoder) zapcore.LevelEncoder {
	return func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		if l == TraceLevel {
			enc.AppendString("trace")
			return
		}
		next(l, enc)
	}
}
