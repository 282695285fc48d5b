// Package logger provides leveled logging for ChronoDB, backed by zerolog.
package logger

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel maps a config string to a Level. Unknown strings mean info.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger wraps zerolog behind the printf-style API the engine uses.
type Logger struct {
	mu   sync.Mutex
	zlog zerolog.Logger
}

func New(out io.Writer, level Level, component string) *Logger {
	zlog := zerolog.New(out).
		Level(level.zerolog()).
		With().
		Timestamp().
		Str("service", "chronodb").
		Str("component", component).
		Logger()
	return &Logger{zlog: zlog}
}

// NewConsole returns a logger with human-readable output, for the daemon
// and shell.
func NewConsole(level Level, component string) *Logger {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return New(out, level, component)
}

func Default() *Logger {
	return New(os.Stderr, LevelInfo, "chronodb")
}

// NewLogger keeps the (component, level) constructor shape used by tests.
func NewLogger(component string, level Level) *Logger {
	return New(os.Stderr, level, component)
}

func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.zlog = l.zlog.Level(level.zerolog())
}

func (l *Logger) SetOutput(out io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.zlog = l.zlog.Output(out)
}

// With returns a child logger carrying an extra component field.
func (l *Logger) With(component string) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &Logger{zlog: l.zlog.With().Str("component", component).Logger()}
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.zlog.Debug().Msgf(format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.zlog.Info().Msgf(format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.zlog.Warn().Msgf(format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.zlog.Error().Msgf(format, args...)
}
