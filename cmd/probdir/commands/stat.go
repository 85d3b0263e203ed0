package commands

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/probdir/cmd/probdir/cmdutil"
	"github.com/marmos91/probdir/internal/cli/output"
)

var statUser string

var statCmd = &cobra.Command{
	Use:   "stat DIR",
	Short: "Show what a user may do with a problem directory",
	Long: `Report whether a user can access a problem directory, owns it, or
sees it because it was handed to nobody. The directory is not locked.

Examples:
  probdir stat CCpp-...
  probdir stat CCpp-... --user alice -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runStat,
}

func init() {
	statCmd.Flags().StringVarP(&statUser, "user", "u", "", "user name or uid (default: the caller)")
}

type accessReport struct {
	Path       string `json:"path" yaml:"path"`
	UID        int    `json:"uid" yaml:"uid"`
	Accessible bool   `json:"accessible" yaml:"accessible"`
	Owned      bool   `json:"owned" yaml:"owned"`
	NoOwner    bool   `json:"no_owner" yaml:"no_owner"`
}

func runStat(cmd *cobra.Command, args []string) error {
	cfg, s, err := cmdutil.Setup()
	if err != nil {
		return err
	}

	uid := os.Getuid()
	if statUser != "" {
		if uid, err = lookupUID(statUser); err != nil {
			return err
		}
	}

	path := cmdutil.ResolveDir(cfg, args[0])
	flags, err := s.StatForUID(path, uid)
	if err != nil {
		return err
	}

	report := accessReport{
		Path:       path,
		UID:        uid,
		Accessible: flags.Accessible,
		Owned:      flags.Owned,
		NoOwner:    flags.NoOwner,
	}
	kv := output.KeyValues{
		{"Path", report.Path},
		{"UID", strconv.Itoa(report.UID)},
		{"Accessible", cmdutil.BoolToYesNo(report.Accessible)},
		{"Owned", cmdutil.BoolToYesNo(report.Owned)},
		{"No owner", cmdutil.BoolToYesNo(report.NoOwner)},
	}
	return cmdutil.PrintOutput(cmd.OutOrStdout(), report, false, "", kv)
}
