package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/walset"
	"github.com/hupe1980/walset/manifest"
)

func newWalsCmd(a *app) *cobra.Command {
	var noCheckpoint bool

	cmd := &cobra.Command{
		Use:   "wals <log>",
		Short: "List the live WALs recorded in a manifest log",
		Long: `Rebuild the WAL set by replaying a manifest log and list the WALs
it tracks.

With a checkpoint backend configured, recovery starts from the latest
checkpoint and replays only the log tail after it.

Examples:
  walsetctl wals /var/lib/db/MANIFEST
  walsetctl wals /var/lib/db/MANIFEST --checkpoint-backend local --checkpoint-dir /var/lib/db/checkpoints`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWals(cmd, args[0], noCheckpoint)
		},
	}
	cmd.Flags().BoolVar(&noCheckpoint, "no-checkpoint", false, "Ignore checkpoints and replay the whole log")
	return cmd
}

func (a *app) runWals(cmd *cobra.Command, path string, noCheckpoint bool) error {
	ctx := cmd.Context()

	var cps *manifest.CheckpointStore
	if !noCheckpoint {
		var err error
		if cps, err = a.checkpoints(ctx); err != nil {
			return err
		}
	}

	set, stats, err := a.recover(cmd, path, cps)
	if err != nil {
		return err
	}

	view := recoveryView{
		Checkpoint:    stats.CheckpointID,
		EditsReplayed: stats.EditsReplayed,
		LogOffset:     stats.LogOffset,
		Wals:          newWalList(set),
	}
	return a.print(cmd.OutOrStdout(), view, len(view.Wals) == 0, "No live WALs.", view.Wals)
}

// recover rebuilds a set from cps, which may be nil, and the log at path.
func (a *app) recover(cmd *cobra.Command, path string, cps *manifest.CheckpointStore) (*walset.Set, manifest.RecoverStats, error) {
	set := walset.New(walset.WithLogger(a.logger))
	stats, err := manifest.Recover(cmd.Context(), set, manifest.RecoverOptions{
		LogPath:     path,
		Checkpoints: cps,
		Logger:      a.logger,
	})
	if err != nil {
		return nil, stats, fmt.Errorf("failed to recover WAL set: %w", err)
	}
	return set, stats, nil
}
