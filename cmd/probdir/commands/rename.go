package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/marmos91/probdir/cmd/probdir/cmdutil"
)

var renameCmd = &cobra.Command{
	Use:   "rename DIR NEWPATH",
	Short: "Rename a locked problem directory",
	Long: `Rename a problem directory. A NEWPATH without a slash is taken
relative to the directory's parent.`,
	Args: cobra.ExactArgs(2),
	RunE: runRename,
}

func runRename(cmd *cobra.Command, args []string) error {
	cfg, s, err := cmdutil.Setup()
	if err != nil {
		return err
	}
	d, err := cmdutil.OpenDir(cmd.Context(), cfg, s, args[0], false)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()

	target := args[1]
	if filepath.Base(target) == target {
		target = filepath.Join(filepath.Dir(d.Path()), target)
	}
	if err := d.Rename(target); err != nil {
		return err
	}
	cmdutil.PrintSuccess(fmt.Sprintf("Renamed to %s", d.Path()))
	return nil
}
