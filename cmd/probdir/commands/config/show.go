package config

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/probdir/cmd/probdir/cmdutil"
	"github.com/marmos91/probdir/internal/cli/output"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration",
	Long: `Display the configuration after defaults, the configuration file and
PROBDIR_* environment variables are applied.

Prints YAML unless --output json is given.

Examples:
  probdir config show
  probdir config show -o json
  PROBDIR_ARCHIVE_CODEC=zstd probdir config show`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := cmdutil.LoadConfig()
	if err != nil {
		return err
	}

	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil {
		return err
	}
	if format == output.FormatJSON {
		return output.PrintJSON(cmd.OutOrStdout(), cfg)
	}
	return output.PrintYAML(cmd.OutOrStdout(), cfg)
}
