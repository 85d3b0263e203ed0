package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/probdir/cmd/probdir/cmdutil"
)

var notReportableCmd = &cobra.Command{
	Use:   "not-reportable DIR REASON",
	Short: "Mark a problem as not reportable",
	Long: `Record why a problem must not be reported, e.g. because it
contains sensitive data or comes from an unsupported package.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, s, err := cmdutil.Setup()
		if err != nil {
			return err
		}
		d, err := cmdutil.OpenDir(cmd.Context(), cfg, s, args[0], false)
		if err != nil {
			return err
		}
		defer func() { _ = d.Close() }()

		if err := d.MarkNotReportable(args[1]); err != nil {
			return err
		}
		cmdutil.PrintSuccess("Marked " + d.Path() + " as not reportable")
		return nil
	},
}
