package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/probdir/cmd/probdir/cmdutil"
	"github.com/marmos91/probdir/internal/cli/timeutil"
	dderrors "github.com/marmos91/probdir/pkg/dumpdir/errors"
	"github.com/marmos91/probdir/pkg/reportedto"
)

var reportedToCmd = &cobra.Command{
	Use:   "reported-to",
	Short: "Read and record where a problem was reported",
	Long: `Manage the reported_to element, the log of bug trackers and other
destinations a problem was reported to.

Subcommands:
  list  Show every record
  add   Append a record
  find  Show the latest record for a label`,
}

var reportedToListCmd = &cobra.Command{
	Use:   "list DIR",
	Short: "Show every reported_to record",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportedToList,
}

var (
	rtURL      string
	rtBTHash   string
	rtWorkflow string
	rtMessage  string
	rtNoTime   bool
)

var reportedToAddCmd = &cobra.Command{
	Use:   "add DIR LABEL",
	Short: "Append a reported_to record",
	Long: `Append a record to reported_to. A record identical to an existing
line is not added twice.

Examples:
  probdir reported-to add CCpp-... Bugzilla --url https://bugzilla.example.com/123
  probdir reported-to add CCpp-... uReport --bthash 6b6f... --msg "known issue"`,
	Args: cobra.ExactArgs(2),
	RunE: runReportedToAdd,
}

var reportedToFindCmd = &cobra.Command{
	Use:   "find DIR LABEL",
	Short: "Show the latest reported_to record for a label",
	Args:  cobra.ExactArgs(2),
	RunE:  runReportedToFind,
}

func init() {
	reportedToAddCmd.Flags().StringVar(&rtURL, "url", "", "URL of the report")
	reportedToAddCmd.Flags().StringVar(&rtBTHash, "bthash", "", "backtrace hash known to the destination")
	reportedToAddCmd.Flags().StringVar(&rtWorkflow, "workflow", "", "workflow that produced the report")
	reportedToAddCmd.Flags().StringVar(&rtMessage, "msg", "", "free text message")
	reportedToAddCmd.Flags().BoolVar(&rtNoTime, "no-time", false, "do not record the current time")

	reportedToCmd.AddCommand(reportedToListCmd)
	reportedToCmd.AddCommand(reportedToAddCmd)
	reportedToCmd.AddCommand(reportedToFindCmd)
}

type reportRecord struct {
	Label    string    `json:"label" yaml:"label"`
	Time     time.Time `json:"time,omitempty" yaml:"time,omitempty"`
	URL      string    `json:"url,omitempty" yaml:"url,omitempty"`
	BTHash   string    `json:"bthash,omitempty" yaml:"bthash,omitempty"`
	Workflow string    `json:"workflow,omitempty" yaml:"workflow,omitempty"`
	Message  string    `json:"msg,omitempty" yaml:"msg,omitempty"`
}

type reportList []reportRecord

func (l reportList) Headers() []string {
	return []string{"LABEL", "TIME", "URL", "BTHASH", "WORKFLOW", "MSG"}
}

func (l reportList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, r := range l {
		rows = append(rows, []string{
			r.Label,
			timeutil.FormatTime(r.Time),
			cmdutil.EmptyOr(r.URL, "-"),
			cmdutil.EmptyOr(r.BTHash, "-"),
			cmdutil.EmptyOr(r.Workflow, "-"),
			cmdutil.EmptyOr(r.Message, "-"),
		})
	}
	return rows
}

func toRecord(r reportedto.Result) reportRecord {
	return reportRecord{
		Label:    r.Label,
		Time:     r.Time,
		URL:      r.URL,
		BTHash:   r.BTHash,
		Workflow: r.Workflow,
		Message:  r.Message,
	}
}

func runReportedToList(cmd *cobra.Command, args []string) error {
	cfg, s, err := cmdutil.Setup()
	if err != nil {
		return err
	}
	d, err := cmdutil.OpenDir(cmd.Context(), cfg, s, args[0], true)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()

	results, err := d.ReadReportedTo()
	if err != nil {
		return err
	}
	list := make(reportList, 0, len(results))
	for _, r := range results {
		list = append(list, toRecord(r))
	}
	return cmdutil.PrintOutput(cmd.OutOrStdout(), list, len(list) == 0, "Not reported yet.", list)
}

func runReportedToAdd(cmd *cobra.Command, args []string) error {
	r, err := reportedto.New(args[1])
	if err != nil {
		return err
	}
	if !rtNoTime {
		r.Time = time.Now()
	}
	r.URL = rtURL
	r.BTHash = rtBTHash
	r.Workflow = rtWorkflow
	r.Message = rtMessage

	cfg, s, err := cmdutil.Setup()
	if err != nil {
		return err
	}
	d, err := cmdutil.OpenDir(cmd.Context(), cfg, s, args[0], false)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()

	if err := d.AddReportedToResult(r); err != nil {
		return err
	}
	return cmdutil.PrintResourceWithSuccess(cmd.OutOrStdout(), toRecord(r), "Recorded: "+r.String())
}

func runReportedToFind(cmd *cobra.Command, args []string) error {
	cfg, s, err := cmdutil.Setup()
	if err != nil {
		return err
	}
	d, err := cmdutil.OpenDir(cmd.Context(), cfg, s, args[0], true)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()

	r, ok, err := d.FindReportedTo(args[1])
	if err != nil {
		return err
	}
	if !ok {
		return dderrors.NewNotFoundError(d.Path(), "reported_to record '"+args[1]+"'")
	}
	list := reportList{toRecord(r)}
	return cmdutil.PrintOutput(cmd.OutOrStdout(), list[0], false, "", list)
}
