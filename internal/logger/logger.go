// Package logger provides a thin structured-logging facade over log/slog.
// Packages depend on the Logger interface and the field helpers so that the
// backing handler can be swapped (or discarded entirely in tests) without
// touching call sites.
package logger

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// LogLevel controls the minimum level emitted by a Logger.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// Field is a typed key/value pair attached to a log record.
type Field struct {
	Key   string
	Value any
}

// String creates a string field.
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an int field.
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates an int64 field.
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Uint64 creates a uint64 field.
func Uint64(key string, value uint64) Field {
	return Field{Key: key, Value: value}
}

// Float64 creates a float64 field.
func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a bool field.
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a duration field.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Time creates a time field.
func Time(key string, value time.Time) Field {
	return Field{Key: key, Value: value}
}

// Error creates a field under the conventional "error" key.
// A nil error produces an empty string value.
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: ""}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Any creates a field with an arbitrary value.
func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Logger is the logging interface consumed by the rest of the codebase.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

type slogLogger struct {
	sl *slog.Logger
}

// NewSlogLogger creates a Logger backed by a slog text handler writing to w.
// attrs, if non-nil, are attached to every record.
func NewSlogLogger(w io.Writer, level LogLevel, attrs []slog.Attr) Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: slogLevel(level)})
	sl := slog.New(handler)
	if len(attrs) > 0 {
		args := make([]any, 0, len(attrs))
		for _, a := range attrs {
			args = append(args, a)
		}
		sl = sl.With(args...)
	}
	return &slogLogger{sl: sl}
}

// NewDefault creates a Logger writing to stderr at info level.
func NewDefault() Logger {
	return NewSlogLogger(os.Stderr, LogLevelInfo, nil)
}

// ParseLevel maps a level name to its LogLevel, defaulting to info.
func ParseLevel(s string) LogLevel {
	switch s {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

func slogLevel(level LogLevel) slog.Level {
	switch level {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *slogLogger) log(fn func(string, ...any), msg string, fields []Field) {
	args := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		args = append(args, f.Key, f.Value)
	}
	fn(msg, args...)
}

func (l *slogLogger) Debug(msg string, fields ...Field) { l.log(l.sl.Debug, msg, fields) }
func (l *slogLogger) Info(msg string, fields ...Field)  { l.log(l.sl.Info, msg, fields) }
func (l *slogLogger) Warn(msg string, fields ...Field)  { l.log(l.sl.Warn, msg, fields) }
func (l *slogLogger) Error(msg string, fields ...Field) { l.log(l.sl.Error, msg, fields) }

func (l *slogLogger) With(fields ...Field) Logger {
	args := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		args = append(args, f.Key, f.Value)
	}
	return &slogLogger{sl: l.sl.With(args...)}
}
