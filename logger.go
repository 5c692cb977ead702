package leanvec

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with leanvec-specific helpers.
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

// LogBuild logs an index build.
func (l *Logger) LogBuild(ctx context.Context, dir string, chunks int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "build failed",
			"dir", dir,
			"chunks", chunks,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "build completed",
			"dir", dir,
			"chunks", chunks,
			"duration", duration,
		)
	}
}

// LogOpen logs an index open.
func (l *Logger) LogOpen(ctx context.Context, dir string, chunks int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "open failed",
			"dir", dir,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "index opened",
			"dir", dir,
			"chunks", chunks,
		)
	}
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, k, found, visited int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"k", k,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"k", k,
			"results", found,
			"visited", visited,
		)
	}
}

// LogRecomputeSkip logs a node whose vector could not be recomputed
// during a search.
func (l *Logger) LogRecomputeSkip(ctx context.Context, node uint64, err error) {
	l.WarnContext(ctx, "node recompute failed, skipping",
		"node", node,
		"error", err,
	)
}

// LogEmbedBatch logs one embedding batch during a build.
func (l *Logger) LogEmbedBatch(ctx context.Context, start, count int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "embed batch failed",
			"start", start,
			"count", count,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "embed batch completed",
			"start", start,
			"count", count,
		)
	}
}
