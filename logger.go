package cruxmod

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with cruxmod-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithModule adds a module name field to the logger.
func (l *Logger) WithModule(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("module", name),
	}
}

// WithBlock adds a block name field to the logger.
func (l *Logger) WithBlock(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("block", name),
	}
}

// LogWrite logs a module serialization.
func (l *Logger) LogWrite(ctx context.Context, module string, decls, types int, bytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "module write failed",
			"module", module,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "module written",
			"module", module,
			"decls", decls,
			"types", types,
			"bytes", bytes,
		)
	}
}

// LogFallback logs the write of a fallback-to-source marker.
func (l *Logger) LogFallback(ctx context.Context, module string) {
	l.WarnContext(ctx, "module not serializable, wrote fallback marker",
		"module", module,
	)
}

// LogOpen logs a container open.
func (l *Logger) LogOpen(ctx context.Context, module string, bytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "module open failed",
			"module", module,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "module opened",
			"module", module,
			"bytes", bytes,
		)
	}
}

// LogMaterialize logs the materialization of one node.
func (l *Logger) LogMaterialize(ctx context.Context, space string, id uint32, err error) {
	if err != nil {
		l.ErrorContext(ctx, "materialization failed",
			"space", space,
			"id", id,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "materialized",
			"space", space,
			"id", id,
		)
	}
}

// LogResolve logs a cross-module reference resolution.
func (l *Logger) LogResolve(ctx context.Context, module string, path []string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "cross-reference resolution failed",
			"module", module,
			"path", path,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "cross-reference resolved",
			"module", module,
			"path", path,
		)
	}
}
