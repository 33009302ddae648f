package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hupe1980/walset"
	"github.com/hupe1980/walset/manifest"
)

func newCheckpointCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Manage WAL set checkpoints",
		Long: `Save, list, inspect and delete checkpoints of the WAL set.

All subcommands need a checkpoint backend (--checkpoint-backend or
checkpoints.backend in the config file).`,
	}
	cmd.AddCommand(newCheckpointSaveCmd(a))
	cmd.AddCommand(newCheckpointListCmd(a))
	cmd.AddCommand(newCheckpointShowCmd(a))
	cmd.AddCommand(newCheckpointDeleteCmd(a))
	return cmd
}

func newCheckpointSaveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "save <log>",
		Short: "Checkpoint the WAL set recorded in a manifest log",
		Long: `Recover the WAL set from the latest checkpoint and the manifest log,
then store it as a new checkpoint and make it current.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := args[0]

			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("failed to open manifest log: %w", err)
			}
			cps, err := a.requireCheckpoints(ctx)
			if err != nil {
				return err
			}

			set, stats, err := a.recover(cmd, path, cps)
			if err != nil {
				return err
			}
			cp, err := cps.Save(ctx, set, stats.LogOffset)
			if err != nil {
				return fmt.Errorf("failed to save checkpoint: %w", err)
			}

			list := checkpointList{newCheckpointView(cp, cp.ID)}
			return a.print(cmd.OutOrStdout(), list[0], false, "", list)
		},
	}
}

func newCheckpointListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored checkpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cps, err := a.requireCheckpoints(ctx)
			if err != nil {
				return err
			}

			current, err := currentID(ctx, cps)
			if err != nil {
				return err
			}
			versions, err := cps.ListVersions(ctx)
			if err != nil {
				return fmt.Errorf("failed to list checkpoints: %w", err)
			}

			list := make(checkpointList, 0, len(versions))
			for _, cp := range versions {
				list = append(list, newCheckpointView(cp, current))
			}
			return a.print(cmd.OutOrStdout(), list, len(list) == 0, "No checkpoints found.", list)
		},
	}
}

func newCheckpointShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "List the WALs stored in a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			cps, err := a.requireCheckpoints(ctx)
			if err != nil {
				return err
			}

			set := walset.New(walset.WithLogger(a.logger))
			cp, err := cps.LoadVersion(ctx, id, set)
			if err != nil {
				return fmt.Errorf("failed to load checkpoint %d: %w", id, err)
			}

			view := recoveryView{
				Checkpoint: cp.ID,
				LogOffset:  cp.LogOffset,
				Wals:       newWalList(set),
			}
			return a.print(cmd.OutOrStdout(), view, len(view.Wals) == 0, "No WALs in checkpoint.", view.Wals)
		},
	}
}

func newCheckpointDeleteCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored checkpoint",
		Long: `Delete a stored checkpoint.

The current checkpoint is needed for recovery and is only deleted with
--force.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			cps, err := a.requireCheckpoints(ctx)
			if err != nil {
				return err
			}

			current, err := currentID(ctx, cps)
			if err != nil {
				return err
			}
			if id == current && !force {
				return fmt.Errorf("checkpoint %d is current; use --force to delete it", id)
			}

			if err := cps.DeleteVersion(ctx, id); err != nil {
				return fmt.Errorf("failed to delete checkpoint %d: %w", id, err)
			}
			a.success(cmd.OutOrStdout(), "Checkpoint %d deleted.", id)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Allow deleting the current checkpoint")
	return cmd
}

// currentID returns the current checkpoint id, or 0 if none was committed.
func currentID(ctx context.Context, cps *manifest.CheckpointStore) (uint64, error) {
	id, err := cps.Current(ctx)
	if errors.Is(err, manifest.ErrNoCheckpoint) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read current checkpoint: %w", err)
	}
	return id, nil
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid checkpoint id %q", s)
	}
	return id, nil
}
