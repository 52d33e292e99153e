// Package logging provides structured logging for kcore, built on zerolog.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// LogLevel mirrors zerolog's levels so callers never need to import zerolog.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) zerolog() zerolog.Level {
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

// Config holds logger configuration.
type Config struct {
	Level   LogLevel
	Format  string // "json" (default) or "text"
	Output  io.Writer
	NoColor bool
}

// DefaultConfig returns a sensible default configuration: info level,
// JSON output to stderr.
func DefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Format: "json",
		Output: os.Stderr,
	}
}

// Logger wraps a zerolog.Logger with kcore's component/id conventions and
// the args-as-kv-pairs call style used throughout the kernel.
type Logger struct {
	zl zerolog.Logger
}

var (
	mu            sync.RWMutex
	defaultLogger *Logger
)

// NewLogger builds a Logger from Config. A nil Config yields DefaultConfig().
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	out := config.Output
	if out == nil {
		out = os.Stderr
	}
	if config.Format == "text" {
		out = zerolog.ConsoleWriter{Out: out, NoColor: config.NoColor}
	}
	zl := zerolog.New(out).Level(config.Level.zerolog()).With().Timestamp().Logger()
	return &Logger{zl: zl}
}

// Default returns the process-wide default logger, creating it on first use.
func Default() *Logger {
	mu.RLock()
	if defaultLogger != nil {
		defer mu.RUnlock()
		return defaultLogger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault replaces the process-wide default logger.
func SetDefault(l *Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = l
}

// WithDevice tags subsequent log lines with a kernel-object id (task,
// address space, phone...). Named after the field it sets, "device_id",
// to keep call sites short; callers pick the id that matters to them.
func (l *Logger) WithDevice(id uint64) *Logger {
	return &Logger{zl: l.zl.With().Uint64("device_id", id).Logger()}
}

// WithComponent tags subsequent log lines with the owning subsystem
// name (e.g. "frame", "sched", "ipc").
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{zl: l.zl.With().Str("component", name).Logger()}
}

// WithQueue tags subsequent log lines with a CPU/queue index.
func (l *Logger) WithQueue(id int) *Logger {
	return &Logger{zl: l.zl.With().Int("queue_id", id).Logger()}
}

// WithRequest tags subsequent log lines with an IPC call tag and method op.
func (l *Logger) WithRequest(tag uint64, op string) *Logger {
	return &Logger{zl: l.zl.With().Uint64("tag", tag).Str("op", op).Logger()}
}

// WithError attaches an error to subsequent log lines.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{zl: l.zl.With().Err(err).Logger()}
}

func withKV(ev *zerolog.Event, args []any) *zerolog.Event {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", args[i])
		}
		ev = ev.Interface(key, args[i+1])
	}
	return ev
}

func (l *Logger) Debug(msg string, args ...any) { withKV(l.zl.Debug(), args).Msg(msg) }
func (l *Logger) Info(msg string, args ...any)  { withKV(l.zl.Info(), args).Msg(msg) }
func (l *Logger) Warn(msg string, args ...any)  { withKV(l.zl.Warn(), args).Msg(msg) }
func (l *Logger) Error(msg string, args ...any) { withKV(l.zl.Error(), args).Msg(msg) }

// Printf-style logging.
func (l *Logger) Debugf(format string, args ...any) { l.zl.Debug().Msgf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.zl.Info().Msgf(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.zl.Warn().Msgf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.zl.Error().Msgf(format, args...) }

// Printf is kept for call sites that want a familiar printf-style entry
// point at info level.
func (l *Logger) Printf(format string, args ...any) { l.Infof(format, args...) }

// Package-level convenience functions operate on the default logger.
func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }
