package commands

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/marmos91/probdir/cmd/probdir/cmdutil"
	"github.com/marmos91/probdir/internal/cli/timeutil"
	"github.com/marmos91/probdir/internal/logger"
	"github.com/marmos91/probdir/pkg/config"
	"github.com/marmos91/probdir/pkg/dumpdir"
	dderrors "github.com/marmos91/probdir/pkg/dumpdir/errors"
	"github.com/marmos91/probdir/pkg/problemdata"
)

var lsBase string

var lsCmd = &cobra.Command{
	Use:   "ls [DIR]",
	Short: "List problem directories or the elements of one",
	Long: `Without an argument, list the problem directories under the base
directory, newest first. With a problem directory, list its elements.

Examples:
  probdir ls
  probdir ls --base /var/tmp/abrt -o json
  probdir ls CCpp-2024-03-05-14:07:09.123456-4242`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLs,
}

func init() {
	lsCmd.Flags().StringVar(&lsBase, "base", "", "base directory (default: store.base_dir)")
}

type problemEntry struct {
	Name   string    `json:"name" yaml:"name"`
	Type   string    `json:"type" yaml:"type"`
	Time   time.Time `json:"time" yaml:"time"`
	Owner  int       `json:"owner" yaml:"owner"`
	Size   int64     `json:"size" yaml:"size"`
	Reason string    `json:"reason,omitempty" yaml:"reason,omitempty"`
	Busy   bool      `json:"busy,omitempty" yaml:"busy,omitempty"`
}

type problemList []problemEntry

func (l problemList) Headers() []string {
	return []string{"NAME", "TYPE", "AGE", "OWNER", "SIZE", "REASON"}
}

func (l problemList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, e := range l {
		if e.Busy {
			rows = append(rows, []string{e.Name, "-", "-", "-", "-", "(locked)"})
			continue
		}
		rows = append(rows, []string{
			e.Name, e.Type, timeutil.FormatAge(e.Time), strconv.Itoa(e.Owner),
			humanize.IBytes(uint64(e.Size)), cmdutil.EmptyOr(e.Reason, "-"),
		})
	}
	return rows
}

type elementEntry struct {
	Name string `json:"name" yaml:"name"`
	Kind string `json:"kind" yaml:"kind"`
	Size int64  `json:"size" yaml:"size"`
}

type elementList []elementEntry

func (l elementList) Headers() []string { return []string{"NAME", "KIND", "SIZE"} }

func (l elementList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, e := range l {
		rows = append(rows, []string{e.Name, e.Kind, humanize.IBytes(uint64(e.Size))})
	}
	return rows
}

func runLs(cmd *cobra.Command, args []string) error {
	cfg, s, err := cmdutil.Setup()
	if err != nil {
		return err
	}
	if len(args) == 1 {
		return listElements(cmd, cfg, s, args[0])
	}

	base := lsBase
	if base == "" {
		base = cfg.Store.BaseDir
	}
	list, err := listProblems(cmd, s, base)
	if err != nil {
		return err
	}
	return cmdutil.PrintOutput(cmd.OutOrStdout(), list, len(list) == 0, "No problems found.", list)
}

func listProblems(cmd *cobra.Command, s *dumpdir.Store, base string) (problemList, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return problemList{}, nil
		}
		return nil, dderrors.FromOS("list", base, err)
	}

	list := problemList{}
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || strings.HasPrefix(name, ".") || strings.HasSuffix(name, dumpdir.NewSuffix) {
			continue
		}
		d, err := s.Open(cmd.Context(), filepath.Join(base, name), dumpdir.OpenOptions{
			ReadOnly:        true,
			DontWaitForLock: true,
		})
		if dderrors.IsBusyError(err) {
			list = append(list, problemEntry{Name: name, Busy: true})
			continue
		}
		if err != nil {
			logger.Debug("skipping directory", logger.Dir(name), logger.Err(err))
			continue
		}
		pi, err := describe(d)
		_ = d.Close()
		if err != nil {
			logger.Warn("can't describe problem", logger.Dir(name), logger.Err(err))
			continue
		}
		list = append(list, problemEntry{
			Name:   name,
			Type:   pi.Type,
			Time:   pi.Time,
			Owner:  pi.Owner,
			Size:   pi.Size,
			Reason: pi.Reason,
		})
	}

	sort.SliceStable(list, func(i, j int) bool { return list[i].Time.After(list[j].Time) })
	return list, nil
}

func listElements(cmd *cobra.Command, cfg *config.Config, s *dumpdir.Store, arg string) error {
	d, err := cmdutil.OpenDir(cmd.Context(), cfg, s, arg, true)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()

	names, err := d.Elements()
	if err != nil {
		return err
	}
	sort.Strings(names)

	list := make(elementList, 0, len(names))
	for _, name := range names {
		item, err := problemdata.LoadElement(d, name, int64(cfg.Store.MaxTextSize))
		if err != nil {
			logger.Debug("skipping element", logger.Element(name), logger.Err(err))
			continue
		}
		size, err := d.ItemSize(name)
		if err != nil {
			continue
		}
		list = append(list, elementEntry{Name: name, Kind: item.Kind.String(), Size: size})
	}
	return cmdutil.PrintOutput(cmd.OutOrStdout(), list, len(list) == 0, "No elements.", list)
}
