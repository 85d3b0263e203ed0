package commands

import (
	"errors"
	"fmt"
	"os/user"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/probdir/cmd/probdir/cmdutil"
)

var (
	chownNoOwner  bool
	chownSanitize bool
	chownReset    bool
)

var chownCmd = &cobra.Command{
	Use:   "chown DIR [USER|UID]",
	Short: "Change who owns a problem directory",
	Long: `Hand a problem directory to another user.

Depending on store.service_owned the user either becomes the owner of the
directory or gets access through their primary group. The logical owner
recorded in the metadata follows.

Examples:
  probdir chown CCpp-... alice
  probdir chown CCpp-... --no-owner      # public, owned by nobody
  probdir chown CCpp-... --sanitize      # reapply mode and owner to elements`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runChown,
}

func init() {
	chownCmd.Flags().BoolVar(&chownNoOwner, "no-owner", false, "hand the problem to nobody, making it public")
	chownCmd.Flags().BoolVar(&chownSanitize, "sanitize", false, "reapply the directory mode and owner to every element")
	chownCmd.Flags().BoolVar(&chownReset, "reset", false, "reapply the owner and group chosen at creation")
}

func runChown(cmd *cobra.Command, args []string) error {
	if len(args) == 1 && !chownNoOwner && !chownSanitize && !chownReset {
		return errors.New("a user, --no-owner, --sanitize or --reset is required")
	}

	cfg, s, err := cmdutil.Setup()
	if err != nil {
		return err
	}
	d, err := cmdutil.OpenDir(cmd.Context(), cfg, s, args[0], false)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()

	if len(args) == 2 {
		uid, err := lookupUID(args[1])
		if err != nil {
			return err
		}
		if err := d.Chown(uid); err != nil {
			return err
		}
	}
	if chownNoOwner {
		if err := d.SetNoOwner(); err != nil {
			return err
		}
	}
	if chownReset {
		if err := d.ResetOwnership(); err != nil {
			return err
		}
	}
	if chownSanitize {
		if err := d.SanitizeModeAndOwner(); err != nil {
			return err
		}
	}

	owner, err := d.Owner()
	if err != nil {
		return err
	}
	cmdutil.PrintSuccess(fmt.Sprintf("%s is owned by uid %d", d.Path(), owner))
	return nil
}

// lookupUID accepts a numeric uid or a user name.
func lookupUID(s string) (int, error) {
	if uid, err := strconv.Atoi(s); err == nil {
		if uid < 0 {
			return 0, fmt.Errorf("invalid uid %d", uid)
		}
		return uid, nil
	}
	u, err := user.Lookup(s)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(u.Uid)
}
