package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hupe1980/walset/internal/fs"
	"github.com/hupe1980/walset/manifest"
)

func newDumpCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dump <log>",
		Short: "Print every edit in a manifest log",
		Long: `Print every record of a manifest log in file order.

Reading stops with an error at the first corrupted record; the records
before it are still printed.

Examples:
  # Dump as table
  walsetctl dump /var/lib/db/MANIFEST

  # Dump as JSON
  walsetctl dump /var/lib/db/MANIFEST -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runDump(cmd, args[0])
		},
	}
}

func (a *app) runDump(cmd *cobra.Command, path string) error {
	r, err := manifest.OpenReader(fs.Default, path)
	if err != nil {
		return fmt.Errorf("failed to open manifest log: %w", err)
	}
	defer r.Close()

	edits := editList{}
	var readErr error
	for {
		offset := r.Offset()
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			readErr = err
			break
		}
		edits = append(edits, newEditView(offset, e))
	}

	if err := a.print(cmd.OutOrStdout(), edits, len(edits) == 0, "No edits found.", edits); err != nil {
		return err
	}
	if readErr != nil {
		return fmt.Errorf("failed to read manifest log: %w", readErr)
	}
	return nil
}
