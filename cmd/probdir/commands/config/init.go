package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/probdir/cmd/probdir/cmdutil"
	"github.com/marmos91/probdir/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample configuration file",
	Long: `Write a commented sample configuration file.

By default, the file is created at $XDG_CONFIG_HOME/probdir/config.yaml.
Use --config to choose another path.

Examples:
  probdir config init
  probdir config init --config /etc/probdir/config.yaml
  probdir config init --force`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := cmdutil.Flags.ConfigFile

	var err error
	if configPath != "" {
		err = config.InitConfigToPath(configPath, initForce)
	} else {
		configPath, err = config.InitConfig(initForce)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration file created at: %s\n", configPath)
	fmt.Fprintln(out, "\nEvery process sharing a base directory must use the same lock timings.")
	fmt.Fprintln(out, "Override single keys with PROBDIR_<SECTION>_<KEY> environment variables.")
	return nil
}
