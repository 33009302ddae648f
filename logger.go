package walset

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger is the slog.Logger a Set and the manifest package report through.
// The Log* methods fix the message text and field names of each event.
type Logger struct {
	*slog.Logger
}

// NewLogger wraps handler. A nil handler logs text at info level to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, nil)
	}
	return &Logger{Logger: slog.New(handler)}
}

// NoopLogger discards everything.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(1 << 10)}))
}

// outcome logs msg+" applied" at debug, or msg+" rejected" at warn with the
// error attached.
func (l *Logger) outcome(msg string, err error, args ...any) {
	if err != nil {
		l.Warn(msg+" rejected", append(args, "error", err)...)
		return
	}
	l.Debug(msg+" applied", args...)
}

// LogAddWal reports the outcome of Set.AddWal for wal.
func (l *Logger) LogAddWal(wal Addition, err error) { l.outcome("add wal", err, "wal", wal) }

// LogDeleteWal reports the outcome of Set.DeleteWal for wal.
func (l *Logger) LogDeleteWal(wal Deletion, err error) { l.outcome("delete wal", err, "wal", wal) }

// LogReset reports that a Set was cleared, dropping that many WALs.
func (l *Logger) LogReset(dropped int) {
	l.Debug("wal set reset", "dropped", dropped)
}

// LogReplay reports the end of a manifest replay.
func (l *Logger) LogReplay(ctx context.Context, editsReplayed, tracked int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "manifest replay failed", "edits_replayed", editsReplayed, "error", err)
		return
	}
	l.InfoContext(ctx, "manifest replay completed", "edits_replayed", editsReplayed, "wals_tracked", tracked)
}

// LogCheckpoint reports a checkpoint save.
func (l *Logger) LogCheckpoint(ctx context.Context, name string, wals int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "checkpoint failed", "name", name, "error", err)
		return
	}
	l.InfoContext(ctx, "checkpoint saved", "name", name, "wals", wals)
}
