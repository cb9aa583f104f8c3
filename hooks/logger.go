// Package hooks provides Hook, Listener, Logger and MetricsCollector
// implementations for the loader.
package hooks

import (
	"log/slog"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Skryldev/image-loader/core"
)

// ── Structured logger adapters ────────────────────────────────────────────────

// SlogLogger wraps the standard library slog.Logger to satisfy core.Logger.
type SlogLogger struct {
	log *slog.Logger
}

// NewSlogLogger creates a logger backed by slog.
func NewSlogLogger(l *slog.Logger) *SlogLogger { return &SlogLogger{log: l} }

func (s *SlogLogger) Debug(msg string, fields ...interface{}) { s.log.Debug(msg, fields...) }
func (s *SlogLogger) Info(msg string, fields ...interface{})  { s.log.Info(msg, fields...) }
func (s *SlogLogger) Warn(msg string, fields ...interface{})  { s.log.Warn(msg, fields...) }
func (s *SlogLogger) Error(msg string, fields ...interface{}) { s.log.Error(msg, fields...) }

// LogrusLogger adapts a logrus entry. Fields are alternating key/value pairs;
// a trailing key without a value is logged under "!BADKEY".
type LogrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger wraps l. A nil l uses a text logger on stderr.
func NewLogrusLogger(l *logrus.Logger) *LogrusLogger {
	if l == nil {
		l = logrus.New()
		l.SetOutput(os.Stderr)
	}
	return &LogrusLogger{entry: logrus.NewEntry(l)}
}

// NewLeveledLogger builds a logrus logger honouring a config.LogLevel string.
// Unknown levels fall back to info.
func NewLeveledLogger(level string) *LogrusLogger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return &LogrusLogger{entry: logrus.NewEntry(l)}
}

// With returns a logger that adds fields to every entry.
func (s *LogrusLogger) With(fields ...interface{}) *LogrusLogger {
	return &LogrusLogger{entry: s.entry.WithFields(toFields(fields))}
}

func (s *LogrusLogger) Debug(msg string, fields ...interface{}) {
	s.entry.WithFields(toFields(fields)).Debug(msg)
}

func (s *LogrusLogger) Info(msg string, fields ...interface{}) {
	s.entry.WithFields(toFields(fields)).Info(msg)
}

func (s *LogrusLogger) Warn(msg string, fields ...interface{}) {
	s.entry.WithFields(toFields(fields)).Warn(msg)
}

func (s *LogrusLogger) Error(msg string, fields ...interface{}) {
	s.entry.WithFields(toFields(fields)).Error(msg)
}

func toFields(kv []interface{}) logrus.Fields {
	out := make(logrus.Fields, len(kv)/2+1)
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = "!BADKEY"
		}
		if i+1 >= len(kv) {
			out["!BADKEY"] = kv[i]
			break
		}
		out[key] = kv[i+1]
	}
	return out
}

var (
	_ core.Logger = (*SlogLogger)(nil)
	_ core.Logger = (*LogrusLogger)(nil)
)
