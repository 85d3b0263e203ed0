// Package commands implements the probdir command line.
package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/marmos91/probdir/cmd/probdir/cmdutil"
	"github.com/marmos91/probdir/cmd/probdir/commands/config"
	"github.com/marmos91/probdir/internal/logger"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "probdir",
	Short: "Inspect and manage crash problem directories",
	Long: `probdir creates, inspects and maintains problem directories: the
on-disk records crash collectors write for every crash they catch.

Problem directories may be given as paths or as bare names, which are
looked up under the configured base directory.

Use "probdir [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _, err := cmdutil.GetOutputFormatParsed(); err != nil {
			return err
		}
		cmd.SetContext(logger.WithContext(cmd.Context(), logger.NewOpContext(cmd.Name())))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if oc := logger.FromContext(cmd.Context()); oc != nil {
			logger.DebugCtx(cmd.Context(), "command finished", logger.KeyDurationMs, oc.DurationMs())
		}
	},
}

// Execute runs the root command. Cancelling ctx interrupts lock waits and
// stops watch.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cmdutil.Flags.ConfigFile, "config", "", "config file (default: $XDG_CONFIG_HOME/probdir/config.yaml)")
	flags.StringVar(&cmdutil.Flags.LogLevel, "log-level", "", "override the configured log level (DEBUG|INFO|WARN|ERROR)")
	flags.StringVarP(&cmdutil.Flags.Output, "output", "o", "table", "output format (table|json|yaml)")
	flags.BoolVar(&cmdutil.Flags.NoColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(catCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(rmItemCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(chownCmd)
	rootCmd.AddCommand(statCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(reportedToCmd)
	rootCmd.AddCommand(notReportableCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(config.Cmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
