package manifest

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/hupe1980/walset"
	"github.com/hupe1980/walset/internal/fs"
)

// RecoverOptions configures Recover.
type RecoverOptions struct {
	// FS is the file system holding the log. Defaults to fs.Default.
	FS fs.FileSystem
	// LogPath is the manifest log to replay.
	LogPath string
	// Checkpoints, if set, provides the starting point of the replay.
	Checkpoints *CheckpointStore
	// Logger defaults to a no-op logger.
	Logger *walset.Logger
}

// RecoverStats describes a completed recovery.
type RecoverStats struct {
	// CheckpointID is the checkpoint recovery started from, or 0.
	CheckpointID uint64
	// EditsReplayed counts log edits applied after the checkpoint.
	EditsReplayed int
	// LogOffset is the offset just past the last replayed record.
	LogOffset int64
	// WalsTracked is the number of WALs in the set afterwards.
	WalsTracked int
}

// Recover rebuilds set from the latest checkpoint, if any, and the manifest
// log tail that follows it. The set is reset first.
//
// A missing log is treated as empty unless a checkpoint was loaded.
func Recover(ctx context.Context, set *walset.Set, opts RecoverOptions) (RecoverStats, error) {
	logger := opts.Logger
	if logger == nil {
		logger = walset.NoopLogger()
	}
	fsys := fs.Or(opts.FS)

	var stats RecoverStats
	set.Reset()

	start := int64(logHeaderSize)
	if opts.Checkpoints != nil {
		cp, err := opts.Checkpoints.LoadLatest(ctx, set)
		switch {
		case err == nil:
			stats.CheckpointID = cp.ID
			if cp.LogOffset > start {
				start = cp.LogOffset
			}
			logger.DebugContext(ctx, "checkpoint loaded", "name", cp.Name(), "log_offset", cp.LogOffset, "wals", set.Len())
		case errors.Is(err, ErrNoCheckpoint):
		default:
			err = fmt.Errorf("load checkpoint: %w", err)
			logger.LogReplay(ctx, 0, set.Len(), err)
			return stats, err
		}
	}
	stats.LogOffset = start

	err := replayLog(ctx, set, fsys, opts.LogPath, start, &stats)
	if errors.Is(err, os.ErrNotExist) && stats.CheckpointID == 0 {
		err = nil
		stats.LogOffset = 0
	}
	stats.WalsTracked = set.Len()
	logger.LogReplay(ctx, stats.EditsReplayed, stats.WalsTracked, err)
	return stats, err
}

func replayLog(ctx context.Context, set *walset.Set, fsys fs.FileSystem, path string, start int64, stats *RecoverStats) error {
	r, err := OpenReader(fsys, path)
	if err != nil {
		return err
	}
	defer r.Close()

	if start != r.Offset() {
		if err := r.Seek(start); err != nil {
			return err
		}
	}

	return r.Replay(func(e *Edit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.Apply(set); err != nil {
			return fmt.Errorf("apply edit at offset %d: %w", stats.LogOffset, err)
		}
		stats.EditsReplayed++
		stats.LogOffset = r.Offset()
		return nil
	})
}
