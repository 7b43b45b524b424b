// Package logging is the structured logger shared by every part of a run.
//
// Entries carry the run id, current phase and environment name taken from
// the context, plus trace and span ids when a span is active:
//
//	ctx = logging.WithRunID(ctx, runID)
//	ctx = logging.WithPhase(ctx, "prefill")
//	logger.Info(ctx, "episode flushed", zap.Int("replay_len", n))
//
// A Trace level below Debug exists for output emitted on every environment
// step. Messages below Warn are sampled per second so tight step loops
// cannot flood the stream. Output goes to stdout or stderr, and optionally
// to an otel LoggerProvider through the otelzap bridge.
//
// NewTestLogger records entries in memory for assertions.
package logging
