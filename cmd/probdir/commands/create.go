package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/probdir/cmd/probdir/cmdutil"
	"github.com/marmos91/probdir/pkg/dumpdir"
	"github.com/marmos91/probdir/pkg/problemdata"
)

var (
	createType   string
	createUID    int
	createBase   string
	createReason string
	createItems  []string
	createFiles  []string
)

var createCmd = &cobra.Command{
	Use:   "create --type TYPE [flags]",
	Short: "Create a problem directory",
	Long: `Create a new problem directory under the base directory.

The directory is built under a ".new" name and published only once every
element is written. Host information (kernel, hostname, os_release, ...)
is added automatically.

Examples:
  # Minimal problem
  probdir create --type Python --reason "TypeError in foo.py"

  # With extra text elements and a core dump copied from a file
  probdir create --type CCpp --uid 1000 \
      --item executable=/usr/bin/foo --file coredump=/tmp/core.1234`,
	Args: cobra.NoArgs,
	RunE: runCreate,
}

func init() {
	createCmd.Flags().StringVarP(&createType, "type", "t", "", "problem type (required)")
	createCmd.Flags().IntVar(&createUID, "uid", -1, "uid of the user the problem belongs to (-1: unknown)")
	createCmd.Flags().StringVar(&createBase, "base", "", "base directory (default: store.base_dir)")
	createCmd.Flags().StringVarP(&createReason, "reason", "r", "", "one line description of the problem")
	createCmd.Flags().StringArrayVar(&createItems, "item", nil, "text element as name=value (repeatable)")
	createCmd.Flags().StringArrayVar(&createFiles, "file", nil, "binary element copied from name=path (repeatable)")
	_ = createCmd.MarkFlagRequired("type")
}

func runCreate(cmd *cobra.Command, args []string) error {
	cfg, s, err := cmdutil.Setup()
	if err != nil {
		return err
	}

	c := problemdata.New()
	c.AddText(dumpdir.ElementAnalyzer, createType, false)
	if createReason != "" {
		c.AddText(dumpdir.ElementReason, createReason, false)
	}
	for _, item := range createItems {
		name, value, err := splitAssignment(item)
		if err != nil {
			return err
		}
		c.AddText(name, value, problemdata.IsEditable(name))
	}
	for _, item := range createFiles {
		name, path, err := splitAssignment(item)
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("--file %s: %w", name, err)
		}
		c.AddFile(name, path)
	}
	c.AddBasics()

	base := createBase
	if base == "" {
		base = cfg.Store.BaseDir
	}
	d, err := c.CreateDumpDir(cmd.Context(), s, base, createUID)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()

	return printPath(cmd, d.Path())
}

func splitAssignment(s string) (string, string, error) {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return "", "", fmt.Errorf("expected name=value, got %q", s)
	}
	if !dumpdir.IsValidElementName(name) {
		return "", "", fmt.Errorf("invalid element name %q", name)
	}
	return name, value, nil
}

// printPath prints a created directory: the bare path in table format so
// scripts can capture it.
func printPath(cmd *cobra.Command, path string) error {
	p, err := cmdutil.Printer(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if p.Structured() {
		return p.Print(map[string]string{"path": path})
	}
	p.Println(path)
	return nil
}
