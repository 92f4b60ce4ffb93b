package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Logger is a zerolog logger tagged with the service it runs in.
type Logger struct {
	zl      zerolog.Logger
	service string
}

// New builds a logger from cfg. Unknown levels fall back to info.
func New(cfg *Config, serviceName string) *Logger {
	return build(cfg, serviceName, outputWriter(cfg.Output))
}

// NewWithWriter builds a JSON logger writing to w.
func NewWithWriter(w io.Writer, level, serviceName string) *Logger {
	return build(&Config{Level: level, Format: "json"}, serviceName, w)
}

// NewDefault builds a console logger at info level.
func NewDefault(serviceName string) *Logger {
	cfg := Config{}
	cfg.ApplyDefaults()
	return New(&cfg, serviceName)
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

func build(cfg *Config, serviceName string, out io.Writer) *Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	switch strings.ToLower(cfg.Format) {
	case "console", "pretty":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05", NoColor: cfg.NoColor}
	}

	zc := zerolog.New(out).Level(level).With()
	if cfg.Timestamp {
		zc = zc.Timestamp()
	}
	if cfg.Caller {
		zc = zc.Caller()
	}
	if serviceName != "" && serviceName != "default" {
		zc = zc.Str("service", serviceName)
	}
	return &Logger{zl: zc.Logger(), service: serviceName}
}

func outputWriter(output string) io.Writer {
	switch strings.ToLower(output) {
	case "stderr":
		return os.Stderr
	case "discard":
		return io.Discard
	default:
		return os.Stdout
	}
}

// derive returns a child logger with extra context fields.
func (l *Logger) derive(with func(zerolog.Context) zerolog.Context) *Logger {
	return &Logger{zl: with(l.zl.With()).Logger(), service: l.service}
}

// WithComponent tags every line with the component that emitted it.
func (l *Logger) WithComponent(name string) *Logger {
	return l.derive(func(c zerolog.Context) zerolog.Context { return c.Str(FieldComponent, name) })
}

// WithFields attaches fields to every line.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	return l.derive(func(c zerolog.Context) zerolog.Context { return c.Fields(fields) })
}

// WithError attaches err under the "error" key.
func (l *Logger) WithError(err error) *Logger {
	return l.derive(func(c zerolog.Context) zerolog.Context { return c.Err(err) })
}

type requestIDKey struct{}

// ContextWithRequestID stores the correlation ID of a query or dispatch.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// WithContext adds the correlation ID stored in ctx, if any. Without one
// it returns l itself.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	id, ok := ctx.Value(requestIDKey{}).(string)
	if !ok {
		return l
	}
	return l.derive(func(c zerolog.Context) zerolog.Context { return c.Str(FieldRequestID, id) })
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, fields ...map[string]any) { emit(l.zl.Debug(), msg, fields) }

// Info logs at info level.
func (l *Logger) Info(msg string, fields ...map[string]any) { emit(l.zl.Info(), msg, fields) }

// Warn logs at warn level.
func (l *Logger) Warn(msg string, fields ...map[string]any) { emit(l.zl.Warn(), msg, fields) }

// Error logs at error level.
func (l *Logger) Error(msg string, fields ...map[string]any) { emit(l.zl.Error(), msg, fields) }

func emit(ev *zerolog.Event, msg string, fields []map[string]any) {
	if ev == nil {
		return
	}
	for _, f := range fields {
		ev = ev.Fields(f)
	}
	ev.Msg(msg)
}

var global atomic.Pointer[Logger]

// Init replaces the process-wide logger.
func Init(cfg Config) {
	cfg.ApplyDefaults()
	name := cfg.ServiceName
	if name == "" {
		name = "default"
	}
	global.Store(New(&cfg, name))
}

// GetGlobalLogger returns the process-wide logger, building a default one
// on first use.
func GetGlobalLogger() *Logger {
	if l := global.Load(); l != nil {
		return l
	}
	global.CompareAndSwap(nil, NewDefault("default"))
	return global.Load()
}

// WithComponent returns a component logger derived from the global one.
func WithComponent(name string) *Logger { return GetGlobalLogger().WithComponent(name) }

func Debug(msg string, fields ...map[string]any) { GetGlobalLogger().Debug(msg, fields...) }

func Info(msg string, fields ...map[string]any) { GetGlobalLogger().Info(msg, fields...) }

func Warn(msg string, fields ...map[string]any) { GetGlobalLogger().Warn(msg, fields...) }

func Error(msg string, fields ...map[string]any) { GetGlobalLogger().Error(msg, fields...) }
