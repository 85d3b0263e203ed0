package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/probdir/cmd/probdir/cmdutil"
)

var rmItemForce bool

var rmItemCmd = &cobra.Command{
	Use:   "rm-item DIR ELEMENT...",
	Short: "Remove elements from a problem directory",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runRmItem,
}

func init() {
	rmItemCmd.Flags().BoolVarP(&rmItemForce, "force", "f", false, "do not ask for confirmation")
}

func runRmItem(cmd *cobra.Command, args []string) error {
	cfg, s, err := cmdutil.Setup()
	if err != nil {
		return err
	}
	names := args[1:]
	question := fmt.Sprintf("Remove %s from %s?", strings.Join(names, ", "), args[0])

	return cmdutil.RunWithConfirmation(question, rmItemForce, func() error {
		d, err := cmdutil.OpenDir(cmd.Context(), cfg, s, args[0], false)
		if err != nil {
			return err
		}
		defer func() { _ = d.Close() }()

		for _, name := range names {
			if err := d.DeleteItem(name); err != nil {
				return err
			}
		}
		cmdutil.PrintSuccess(fmt.Sprintf("Removed %d element(s)", len(names)))
		return nil
	})
}
