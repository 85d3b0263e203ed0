package commands

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/marmos91/probdir/cmd/probdir/cmdutil"
	"github.com/marmos91/probdir/internal/logger"
)

var deleteForce bool

var deleteCmd = &cobra.Command{
	Use:     "delete DIR...",
	Aliases: []string{"rm"},
	Short:   "Delete problem directories",
	Long: `Delete problem directories. Each directory is locked first so a
problem being written or reported is never removed under its owner.

Examples:
  probdir delete CCpp-2024-03-05-14:07:09.123456-4242
  probdir delete --force /var/spool/abrt/Python-*`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "do not ask for confirmation")
}

func runDelete(cmd *cobra.Command, args []string) error {
	cfg, s, err := cmdutil.Setup()
	if err != nil {
		return err
	}

	question := fmt.Sprintf("Delete problem directory '%s'?", args[0])
	if len(args) > 1 {
		question = fmt.Sprintf("Delete %d problem directories?", len(args))
	}

	return cmdutil.RunWithConfirmation(question, deleteForce, func() error {
		var result *multierror.Error
		deleted := 0
		for _, arg := range args {
			path := cmdutil.ResolveDir(cfg, arg)
			if err := s.DeletePath(cmd.Context(), path); err != nil {
				logger.WarnCtx(cmd.Context(), "can't delete problem directory", logger.Dir(path), logger.Err(err))
				result = multierror.Append(result, err)
				continue
			}
			deleted++
		}
		if deleted > 0 {
			cmdutil.PrintSuccess(fmt.Sprintf("Deleted %d problem director%s", deleted, plural(deleted, "y", "ies")))
		}
		return result.ErrorOrNil()
	})
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
