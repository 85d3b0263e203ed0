package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/probdir/cmd/probdir/cmdutil"
	"github.com/marmos91/probdir/pkg/bufpool"
	"github.com/marmos91/probdir/pkg/dumpdir"
	dderrors "github.com/marmos91/probdir/pkg/dumpdir/errors"
	"github.com/marmos91/probdir/pkg/problemdata"
)

var (
	catBinary   bool
	catSnapshot string
)

var catCmd = &cobra.Command{
	Use:   "cat DIR [ELEMENT...]",
	Short: "Print elements of a problem directory",
	Long: `Print the named elements of a problem directory, or every text
element when no name is given.

Binary elements are refused unless --binary is set. --snapshot writes the
whole problem as a snapshot that 'probdir save --from-snapshot' reads
back; binary elements are recorded by path.

Examples:
  probdir cat CCpp-2024-03-05-14:07:09.123456-4242 reason backtrace
  probdir cat /var/spool/abrt/CCpp-... coredump --binary > core
  probdir cat CCpp-... --snapshot problem.cbor`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCat,
}

func init() {
	catCmd.Flags().BoolVar(&catBinary, "binary", false, "write binary elements verbatim")
	catCmd.Flags().StringVar(&catSnapshot, "snapshot", "", "write a snapshot of the problem to FILE ('-' for stdout)")
}

func runCat(cmd *cobra.Command, args []string) error {
	cfg, s, err := cmdutil.Setup()
	if err != nil {
		return err
	}
	d, err := cmdutil.OpenDir(cmd.Context(), cfg, s, args[0], true)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()

	out := cmd.OutOrStdout()
	if catSnapshot != "" {
		return writeSnapshot(d, catSnapshot, out)
	}
	if len(args) == 1 {
		return printTextElements(cmd, d)
	}

	for _, name := range args[1:] {
		if err := catElement(d, name, out); err != nil {
			return err
		}
	}
	return nil
}

func catElement(d *dumpdir.Dir, name string, out io.Writer) error {
	el, err := d.Load(name, dumpdir.LoadOptions{})
	if err != nil {
		return err
	}
	if el.Kind == dumpdir.KindText {
		_, err := fmt.Fprintln(out, el.Text)
		return err
	}
	if !catBinary {
		return dderrors.New(dderrors.ErrInvalidArgument, "cat", el.Path, "binary element, use --binary to print it")
	}
	f, err := d.OpenItem(name, dumpdir.ItemReadOnly)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = bufpool.Copy(out, f, el.Size)
	return err
}

func printTextElements(cmd *cobra.Command, d *dumpdir.Dir) error {
	c, err := problemdata.FromDumpDir(d)
	if err != nil {
		return err
	}

	texts := map[string]string{}
	var names []string
	for _, name := range c.Names() {
		it, _ := c.Get(name)
		if it.Kind != problemdata.KindText {
			continue
		}
		names = append(names, name)
		texts[name] = it.Content
		if formatted, ok := it.Format(); ok {
			texts[name] = formatted
		}
	}

	p, err := cmdutil.Printer(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if p.Structured() {
		return p.Print(texts)
	}
	for _, name := range names {
		text := texts[name]
		if !strings.Contains(text, "\n") {
			p.Printf("%-16s %s\n", name+":", text)
			continue
		}
		p.Printf("%s:\n", name)
		for _, line := range strings.Split(text, "\n") {
			p.Printf(":%s\n", line)
		}
	}
	return nil
}

func writeSnapshot(d *dumpdir.Dir, path string, stdout io.Writer) error {
	c, err := problemdata.FromDumpDir(d)
	if err != nil {
		return err
	}
	if path == "-" {
		return c.EncodeSnapshot(stdout)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := c.EncodeSnapshot(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
