package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/marmos91/probdir/cmd/probdir/cmdutil"
	"github.com/marmos91/probdir/internal/cli/output"
	"github.com/marmos91/probdir/internal/cli/timeutil"
	"github.com/marmos91/probdir/pkg/dumpdir"
	dderrors "github.com/marmos91/probdir/pkg/dumpdir/errors"
)

var infoCmd = &cobra.Command{
	Use:   "info DIR",
	Short: "Show a summary of a problem directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

type problemInfo struct {
	Path          string    `json:"path" yaml:"path"`
	Type          string    `json:"type" yaml:"type"`
	Time          time.Time `json:"time" yaml:"time"`
	Owner         int       `json:"owner" yaml:"owner"`
	UID           int       `json:"uid" yaml:"uid"`
	GID           int       `json:"gid" yaml:"gid"`
	Mode          string    `json:"mode" yaml:"mode"`
	Size          int64     `json:"size" yaml:"size"`
	Elements      int       `json:"elements" yaml:"elements"`
	Reason        string    `json:"reason,omitempty" yaml:"reason,omitempty"`
	ReportedTo    int       `json:"reported_to" yaml:"reported_to"`
	NotReportable string    `json:"not_reportable,omitempty" yaml:"not_reportable,omitempty"`
	ReadOnly      bool      `json:"read_only" yaml:"read_only"`
}

func (pi problemInfo) keyValues() output.KeyValues {
	return output.KeyValues{
		{"Path", pi.Path},
		{"Type", pi.Type},
		{"Time", fmt.Sprintf("%s (%s)", timeutil.FormatTime(pi.Time), timeutil.FormatAge(pi.Time))},
		{"Owner", strconv.Itoa(pi.Owner)},
		{"Directory uid:gid", fmt.Sprintf("%d:%d", pi.UID, pi.GID)},
		{"Element mode", pi.Mode},
		{"Size", humanize.IBytes(uint64(pi.Size))},
		{"Elements", strconv.Itoa(pi.Elements)},
		{"Reason", cmdutil.EmptyOr(pi.Reason, "-")},
		{"Reported to", strconv.Itoa(pi.ReportedTo)},
		{"Not reportable", cmdutil.EmptyOr(pi.NotReportable, "-")},
		{"Read-only", cmdutil.BoolToYesNo(pi.ReadOnly)},
	}
}

func runInfo(cmd *cobra.Command, args []string) error {
	cfg, s, err := cmdutil.Setup()
	if err != nil {
		return err
	}
	d, err := cmdutil.OpenDir(cmd.Context(), cfg, s, args[0], true)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()

	pi, err := describe(d)
	if err != nil {
		return err
	}
	return cmdutil.PrintOutput(cmd.OutOrStdout(), pi, false, "", pi.keyValues())
}

func describe(d *dumpdir.Dir) (problemInfo, error) {
	pi := problemInfo{
		Path:     d.Path(),
		Type:     d.Type(),
		Time:     d.Time(),
		UID:      d.UID(),
		GID:      d.GID(),
		Mode:     fmt.Sprintf("%04o", uint32(d.Mode())),
		ReadOnly: d.ReadOnly(),
	}

	var err error
	if pi.Owner, err = d.Owner(); err != nil {
		return pi, err
	}
	if pi.Size, err = d.ComputeSize(); err != nil {
		return pi, err
	}
	names, err := d.Elements()
	if err != nil {
		return pi, err
	}
	pi.Elements = len(names)

	if pi.Reason, err = optionalText(d, dumpdir.ElementReason); err != nil {
		return pi, err
	}
	if pi.NotReportable, err = optionalText(d, dumpdir.ElementNotReportable); err != nil {
		return pi, err
	}
	reports, err := d.ReadReportedTo()
	if err != nil {
		return pi, err
	}
	pi.ReportedTo = len(reports)
	return pi, nil
}

// optionalText loads a text element, returning "" when it is missing.
func optionalText(d *dumpdir.Dir, name string) (string, error) {
	text, err := d.LoadText(name)
	if dderrors.IsNotFoundError(err) {
		return "", nil
	}
	return text, err
}
