package logging

import (
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a thin wrapper over zerolog that accepts alternating
// key-value fields, the way the rest of the engine logs.
type Logger struct {
	zl zerolog.Logger
}

var global atomic.Pointer[Logger]

func init() {
	global.Store(NewDevelopment())
}

// NewDevelopment creates a debug-level logger with pretty console
// output. Tests and tools default to it.
func NewDevelopment() *Logger {
	out := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	return NewWithWriter(out, zerolog.DebugLevel)
}

// NewWithWriter creates a logger writing structured JSON to w, unless w
// is itself a console writer.
func NewWithWriter(w io.Writer, level zerolog.Level) *Logger {
	zl := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Logger()
	return &Logger{zl: zl}
}

// SetGlobal replaces the process-wide logger. Call it once during
// startup, before anything else logs.
func SetGlobal(logger *Logger) {
	global.Store(logger)
}

// Global returns the process-wide logger.
func Global() *Logger {
	return global.Load()
}

// emit applies alternating key-value fields to an event. Error values
// under the "error" key go through zerolog's error field; a trailing
// key without a value is dropped.
func emit(e *zerolog.Event, msg string, fields []any) {
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		if err, isErr := fields[i+1].(error); isErr && key == "error" {
			e.Err(err)
			continue
		}
		e.Interface(key, fields[i+1])
	}
	e.Msg(msg)
}

func (l *Logger) Debug(msg string, fields ...any) { emit(l.zl.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields ...any)  { emit(l.zl.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields ...any)  { emit(l.zl.Warn(), msg, fields) }
func (l *Logger) Error(msg string, fields ...any) { emit(l.zl.Error(), msg, fields) }

// Fatal logs the message and exits the process.
func (l *Logger) Fatal(msg string, fields ...any) { emit(l.zl.Fatal(), msg, fields) }

// With returns a child logger carrying the given fields on every later
// message.
func (l *Logger) With(fields ...any) *Logger {
	zc := l.zl.With()
	for i := 0; i+1 < len(fields); i += 2 {
		if key, ok := fields[i].(string); ok {
			zc = zc.Interface(key, fields[i+1])
		}
	}
	return &Logger{zl: zc.Logger()}
}

// Package-level forms log through the global logger.

func Debug(msg string, fields ...any) { Global().Debug(msg, fields...) }
func Info(msg string, fields ...any)  { Global().Info(msg, fields...) }
func Warn(msg string, fields ...any)  { Global().Warn(msg, fields...) }
func Error(msg string, fields ...any) { Global().Error(msg, fields...) }
func Fatal(msg string, fields ...any) { Global().Fatal(msg, fields...) }
