// Package logger is the process-wide leveled logger.
//
// It keeps a printf-style API so call sites stay short, and encodes through
// zap. Output goes to stderr until SetOutput redirects it (the interactive
// client sends it to a rotating file so logs never interleave with the chat).
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level is the verbosity threshold. Lower values are more verbose.
type Level int

const (
	// LevelTrace enables per-input actor logs and wire dumps.
	LevelTrace Level = iota
	// LevelDebug enables verbose logs intended for debugging.
	LevelDebug
	// LevelInfo enables informational logs (default).
	LevelInfo
	// LevelWarn enables only warnings and errors.
	LevelWarn
	// LevelError enables only error logs.
	LevelError
)

// String returns the lower-case level name.
func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

var (
	mu    sync.RWMutex
	level = LevelInfo
	sugar = build(os.Stderr)
)

func build(w io.Writer) *zap.SugaredLogger {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), zapcore.DebugLevel)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
}

// ParseLevel parses a level name. Matching is case-insensitive.
func ParseLevel(raw string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", raw)
	}
}

// SetLevel sets the global threshold.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

// Enabled reports whether a level would be emitted.
func Enabled(l Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return l >= level
}

// SetOutput replaces the writer used by the global logger.
func SetOutput(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	next := build(w)
	mu.Lock()
	prev := sugar
	sugar = next
	mu.Unlock()
	_ = prev.Sync()
}

// RotatingFile returns a size-rotated log file writer suitable for
// SetOutput. The caller closes it on shutdown.
func RotatingFile(path string) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     14, // days
		Compress:   true,
	}
}

// Sync flushes buffered entries.
func Sync() error {
	mu.RLock()
	s := sugar
	mu.RUnlock()
	return s.Sync()
}

func current(l Level) *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	if l < level {
		return nil
	}
	return sugar
}

// Tracef logs at TRACE level.
func Tracef(format string, args ...any) {
	if s := current(LevelTrace); s != nil {
		s.Debugf("[trace] "+format, args...)
	}
}

// Debugf logs at DEBUG level.
func Debugf(format string, args ...any) {
	if s := current(LevelDebug); s != nil {
		s.Debugf(format, args...)
	}
}

// Infof logs at INFO level.
func Infof(format string, args ...any) {
	if s := current(LevelInfo); s != nil {
		s.Infof(format, args...)
	}
}

// Warnf logs at WARN level.
func Warnf(format string, args ...any) {
	if s := current(LevelWarn); s != nil {
		s.Warnf(format, args...)
	}
}

// Errorf logs at ERROR level.
func Errorf(format string, args ...any) {
	if s := current(LevelError); s != nil {
		s.Errorf(format, args...)
	}
}
