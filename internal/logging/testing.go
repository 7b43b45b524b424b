package logging

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger records every entry, Trace included, in memory.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

func NewTestLogger() *TestLogger {
	core, observed := observer.New(TraceLevel)
	return &TestLogger{
		Logger:   &Logger{zap: zap.New(core), config: NewDefaultConfig()},
		observed: observed,
	}
}

func (t *TestLogger) All() []observer.LoggedEntry { return t.observed.All() }

// FilterMessage returns entries whose message equals msg.
func (t *TestLogger) FilterMessage(msg string) *observer.ObservedLogs {
	return t.observed.FilterMessage(msg)
}

func (t *TestLogger) Reset() { t.observed.TakeAll() }

func (t *TestLogger) matching(level zapcore.Level, substr string) []observer.LoggedEntry {
	return t.observed.Filter(func(e observer.LoggedEntry) bool {
		return e.Level == level && strings.Contains(e.Message, substr)
	}).All()
}

// AssertLogged fails unless some entry at level contains substr.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, substr string) bool {
	tb.Helper()
	return assert.NotEmpty(tb, t.matching(level, substr), "no %s entry containing %q", level, substr)
}

// AssertNotLogged fails if any entry at level contains substr.
func (t *TestLogger) AssertNotLogged(tb testing.TB, level zapcore.Level, substr string) bool {
	tb.Helper()
	return assert.Empty(tb, t.matching(level, substr), "unexpected %s entry containing %q", level, substr)
}

// AssertField fails unless an entry with message msg has key == want.
// Integers are decoded as int64 by the observer.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, want any) bool {
	tb.Helper()
	var seen []any
	for _, e := range t.observed.FilterMessage(msg).All() {
		v, ok := e.ContextMap()[key]
		if !ok {
			continue
		}
		if assert.ObjectsAreEqual(want, v) {
			return true
		}
		seen = append(seen, v)
	}
	return assert.Fail(tb, "field not found", "%q=%v not in %q entries, saw %v", key, want, msg, seen)
}
