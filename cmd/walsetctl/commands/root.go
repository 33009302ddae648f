// Package commands implements the walsetctl CLI.
package commands

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/walset"
	"github.com/hupe1980/walset/internal/cli/output"
	"github.com/hupe1980/walset/internal/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// app carries state shared by all subcommands of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string

	cfg    *config.Config
	format output.Format
	logger *walset.Logger
}

// NewRootCmd builds the command tree. Each call returns independent state.
func NewRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	rootCmd := &cobra.Command{
		Use:   "walsetctl",
		Short: "Inspect walset manifest logs and checkpoints",
		Long: `walsetctl reads manifest logs, rebuilds the set of live WALs and
manages checkpoints of that set.

Configuration is read from --config (default ./walsetctl.yaml), from
WALSETCTL_* environment variables and from flags.

Use "walsetctl [command] --help" for more information about a command.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return a.setup(cmd) },
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "Config file (default ./walsetctl.yaml)")
	flags.StringP("output", "o", "table", "Output format (table|json|yaml)")
	flags.String("log-level", "warn", "Log level (debug|info|warn|error)")
	flags.String("checkpoint-backend", "", "Checkpoint backend (local|minio|s3)")
	flags.String("checkpoint-dir", "", "Checkpoint directory for the local backend")
	flags.String("compression", "zstd", "Checkpoint compression (none|lz4|zstd)")

	bind := map[string]string{
		"output":                  "output",
		"log_level":               "log-level",
		"checkpoints.backend":     "checkpoint-backend",
		"checkpoints.local.dir":   "checkpoint-dir",
		"checkpoints.compression": "compression",
	}
	for key, name := range bind {
		_ = a.v.BindPFlag(key, flags.Lookup(name))
	}

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newDumpCmd(a))
	rootCmd.AddCommand(newWalsCmd(a))
	rootCmd.AddCommand(newCheckpointCmd(a))

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	return rootCmd
}

// Execute runs the CLI with os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	format, err := output.ParseFormat(cfg.Output)
	if err != nil {
		return err
	}
	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.format = format
	a.logger = walset.NewLogger(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return nil
}

// print writes data to the command's output in the configured format.
func (a *app) print(w io.Writer, data any, isEmpty bool, emptyMsg string, table output.TableRenderer) error {
	return output.PrintOutput(w, a.format, data, isEmpty, emptyMsg, table)
}

// success prints a confirmation line for table output only.
func (a *app) success(w io.Writer, format string, args ...any) {
	if a.format != output.FormatTable {
		return
	}
	_, _ = fmt.Fprintf(w, format+"\n", args...)
}
