package termdex

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with termdex-specific context.
// Every writer event is logged with the same field names.
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
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithSegment adds a segment field to the logger.
func (l *Logger) WithSegment(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("segment", name),
	}
}

// WithField adds a field name to the logger.
func (l *Logger) WithField(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("field", name),
	}
}

// LogFlush logs a flush of the document buffer.
func (l *Logger) LogFlush(ctx context.Context, segment string, docs int, d time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "flush failed",
			"segment", segment,
			"docs", docs,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "flush completed",
		"segment", segment,
		"docs", docs,
		"duration", d,
	)
}

// LogCommit logs a commit.
func (l *Logger) LogCommit(ctx context.Context, generation int64, segments, deleted int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "commit failed",
			"generation", generation,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "commit completed",
		"generation", generation,
		"segments", segments,
		"deleted", deleted,
	)
}

// LogMerge logs a merge of segments into one.
func (l *Logger) LogMerge(ctx context.Context, segment string, merged, docs int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "merge failed",
			"segment", segment,
			"merged", merged,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "merge completed",
		"segment", segment,
		"merged", merged,
		"docs", docs,
	)
}

// LogReopen logs a reader reopen.
func (l *Logger) LogReopen(ctx context.Context, generation int64, shared bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "reopen failed",
			"generation", generation,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "reader reopened",
		"generation", generation,
		"unchanged", shared,
	)
}

// LogAbort logs discarded buffered documents.
func (l *Logger) LogAbort(ctx context.Context, docs int) {
	l.WarnContext(ctx, "buffered documents discarded",
		"docs", docs,
	)
}

// LogBackup logs a written backup archive.
func (l *Logger) LogBackup(ctx context.Context, generation int64, files int, bytes int64, compression string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "backup failed",
			"generation", generation,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "backup written",
		"generation", generation,
		"files", files,
		"bytes", bytes,
		"compression", compression,
	)
}
