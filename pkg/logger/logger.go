// Package logger is the structured logger shared by every TC component.
// It wraps log/slog, adds trace correlation and hides provider secrets.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Level is a logging threshold.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levelNames = map[Level]string{
	DebugLevel: "debug",
	InfoLevel:  "info",
	WarnLevel:  "warn",
	ErrorLevel: "error",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "unknown"
}

// ParseLevel maps a config value to a Level. Unknown values mean info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func (l Level) slog() slog.Level {
	switch l {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func fromSlog(l slog.Level) Level {
	switch {
	case l <= slog.LevelDebug:
		return DebugLevel
	case l >= slog.LevelError:
		return ErrorLevel
	case l >= slog.LevelWarn:
		return WarnLevel
	default:
		return InfoLevel
	}
}

// Config holds logger configuration.
type Config struct {
	Level  Level
	Format string // "json" or "text"
	Output string // "stdout", "stderr", or file path
	// Writer overrides Output when set.
	Writer io.Writer
}

// Logger is the logging interface handed to components.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)

	With(args ...any) Logger
	WithContext(ctx context.Context) context.Context

	SetLevel(level Level)
	GetLevel() Level

	// Close releases the log file, if any.
	Close() error
}

// SlogLogger implements Logger on log/slog. Loggers derived with With
// share the level of their parent.
type SlogLogger struct {
	*slog.Logger
	level  *slog.LevelVar
	closer io.Closer
}

// New builds a logger. A nil cfg logs JSON at info to stdout.
func New(cfg *Config) Logger {
	if cfg == nil {
		cfg = &Config{Level: InfoLevel, Format: "json", Output: "stdout"}
	}

	level := &slog.LevelVar{}
	level.Set(cfg.Level.slog())

	w, closer := getWriter(cfg.Output)
	if cfg.Writer != nil {
		w, closer = cfg.Writer, nil
	}

	opts := &slog.HandlerOptions{Level: level, AddSource: true, ReplaceAttr: replaceAttr}
	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}

	return &SlogLogger{Logger: slog.New(traceHandler{h}), level: level, closer: closer}
}

// getWriter opens the configured output. An unwritable file path falls
// back to stdout. Only files get a closer.
func getWriter(output string) (io.Writer, io.Closer) {
	switch output {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return os.Stdout, nil
	}
	return f, f
}

func (l *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{Logger: l.Logger.With(args...), level: l.level}
}

// WithContext stores l in ctx for FromContext.
func (l *SlogLogger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// SetLevel changes the threshold of l and every logger derived from it.
func (l *SlogLogger) SetLevel(level Level) {
	l.level.Set(level.slog())
}

func (l *SlogLogger) GetLevel() Level {
	return fromSlog(l.level.Level())
}

// Close closes the log file. Derived loggers never own it.
func (l *SlogLogger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
