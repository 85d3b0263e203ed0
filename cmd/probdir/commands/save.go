package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/probdir/cmd/probdir/cmdutil"
	"github.com/marmos91/probdir/pkg/problemdata"
)

var (
	saveValue        string
	saveFile         string
	saveBinary       bool
	saveFromSnapshot string
	saveBase         string
	saveUID          int
)

var saveCmd = &cobra.Command{
	Use:   "save DIR NAME | save --from-snapshot FILE",
	Short: "Write an element, or create a problem from a snapshot",
	Long: `Write the element NAME of a locked problem directory. The content
comes from --value, --file or standard input.

With --from-snapshot, create a new problem directory from a snapshot
written by 'probdir cat --snapshot'.

Examples:
  probdir save CCpp-... comment --value "crashed while printing"
  dmesg | probdir save CCpp-... dmesg
  probdir save CCpp-... coredump --file core.4242 --binary
  probdir save --from-snapshot problem.cbor --base /var/tmp/abrt`,
	Args: func(cmd *cobra.Command, args []string) error {
		if saveFromSnapshot != "" {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(2)(cmd, args)
	},
	RunE: runSave,
}

func init() {
	saveCmd.Flags().StringVar(&saveValue, "value", "", "element content")
	saveCmd.Flags().StringVar(&saveFile, "file", "", "read the content from FILE")
	saveCmd.Flags().BoolVar(&saveBinary, "binary", false, "store the content verbatim")
	saveCmd.Flags().StringVar(&saveFromSnapshot, "from-snapshot", "", "create a problem from a snapshot FILE ('-' for stdin)")
	saveCmd.Flags().StringVar(&saveBase, "base", "", "base directory for --from-snapshot (default: store.base_dir)")
	saveCmd.Flags().IntVar(&saveUID, "uid", -1, "owner uid for --from-snapshot (-1: unknown)")
	saveCmd.MarkFlagsMutuallyExclusive("value", "file")
	saveCmd.MarkFlagsMutuallyExclusive("value", "from-snapshot")
	saveCmd.MarkFlagsMutuallyExclusive("file", "from-snapshot")
}

func runSave(cmd *cobra.Command, args []string) error {
	if saveFromSnapshot != "" {
		return restoreSnapshot(cmd)
	}

	cfg, s, err := cmdutil.Setup()
	if err != nil {
		return err
	}

	data, err := readSaveContent(cmd)
	if err != nil {
		return err
	}

	d, err := cmdutil.OpenDir(cmd.Context(), cfg, s, args[0], false)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()

	name := args[1]
	if saveBinary {
		err = d.SaveBinary(name, data)
	} else {
		err = d.SaveText(name, string(data))
	}
	if err != nil {
		return err
	}
	cmdutil.PrintSuccess(fmt.Sprintf("Saved %s (%d bytes)", name, len(data)))
	return nil
}

func readSaveContent(cmd *cobra.Command) ([]byte, error) {
	switch {
	case cmd.Flags().Changed("value"):
		return []byte(saveValue), nil
	case saveFile != "":
		return os.ReadFile(saveFile)
	default:
		return io.ReadAll(cmd.InOrStdin())
	}
}

func restoreSnapshot(cmd *cobra.Command) error {
	cfg, s, err := cmdutil.Setup()
	if err != nil {
		return err
	}

	var r io.Reader = cmd.InOrStdin()
	if saveFromSnapshot != "-" {
		f, err := os.Open(saveFromSnapshot)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	c, err := problemdata.DecodeSnapshot(r)
	if err != nil {
		return err
	}

	base := saveBase
	if base == "" {
		base = cfg.Store.BaseDir
	}
	d, err := c.CreateDumpDir(cmd.Context(), s, base, saveUID)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()

	return printPath(cmd, d.Path())
}
