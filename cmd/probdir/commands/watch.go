package commands

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/marmos91/probdir/cmd/probdir/cmdutil"
	"github.com/marmos91/probdir/internal/cli/output"
	"github.com/marmos91/probdir/internal/logger"
	"github.com/marmos91/probdir/internal/telemetry"
	"github.com/marmos91/probdir/pkg/dumpdir"
	"github.com/marmos91/probdir/pkg/metrics"
	"github.com/marmos91/probdir/pkg/watch"
)

var (
	watchBase        string
	watchMetricsAddr string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Report problem directories as they appear and disappear",
	Long: `Watch the base directory and print one line per published or
removed problem directory until interrupted. New problems are opened to
show their type and reason.

With --metrics-addr (or metrics.enabled), Prometheus metrics of the
engine are served at http://ADDR/metrics while watching.

Examples:
  probdir watch
  probdir watch --base /var/tmp/abrt -o json
  probdir watch --metrics-addr 127.0.0.1:9464`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchBase, "base", "", "base directory (default: store.base_dir)")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
}

type watchEvent struct {
	Event  string    `json:"event" yaml:"event"`
	Path   string    `json:"path" yaml:"path"`
	Time   time.Time `json:"time" yaml:"time"`
	Type   string    `json:"type,omitempty" yaml:"type,omitempty"`
	Reason string    `json:"reason,omitempty" yaml:"reason,omitempty"`
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := cmdutil.LoadConfig()
	if err != nil {
		return err
	}

	// The registry must exist before the engine is built so its metrics
	// are attached.
	addr := watchMetricsAddr
	if addr == "" && cfg.Metrics.Enabled {
		addr = cfg.Metrics.Address
	}
	if addr != "" {
		metrics.InitRegistry()
	}

	s, err := cmdutil.NewStore(cfg)
	if err != nil {
		return err
	}
	p, err := cmdutil.Printer(cmd.OutOrStdout())
	if err != nil {
		return err
	}

	base := watchBase
	if base == "" {
		base = cfg.Store.BaseDir
	}
	w, err := watch.New(base, cfg.WatchOptions())
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	g, ctx := errgroup.WithContext(cmd.Context())
	if addr != "" {
		srv := metrics.NewServer(metrics.ServerConfig{Address: addr})
		g.Go(func() error { return srv.Start(ctx) })
	}
	g.Go(func() error {
		err := w.Run(ctx, func(ev watch.Event) {
			printEvent(ctx, p, s, ev)
		})
		// stop the metrics server with the watch
		if err == nil {
			err = context.Canceled
		}
		return err
	})

	logger.InfoCtx(cmd.Context(), "watching for problems", logger.Dir(base))
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func printEvent(ctx context.Context, p *output.Printer, s *dumpdir.Store, ev watch.Event) {
	ctx, span := telemetry.StartDirSpan(ctx, telemetry.SpanWatchEvent, ev.Path,
		telemetry.WatchEvent(ev.Kind.String()))
	defer span.End()

	we := watchEvent{Event: ev.Kind.String(), Path: ev.Path, Time: ev.Time}
	if ev.Kind == watch.Created {
		d, err := s.Open(ctx, ev.Path, dumpdir.OpenOptions{ReadOnly: true})
		if err != nil {
			logger.Debug("can't open new problem", logger.Dir(ev.Path), logger.Err(err))
			span.RecordError(err)
		} else {
			we.Type = d.Type()
			span.SetAttributes(telemetry.Type(we.Type))
			we.Reason, _ = optionalText(d, dumpdir.ElementReason)
			_ = d.Close()
		}
	}

	if p.Structured() {
		_ = p.Print(we)
		return
	}
	p.Printf("%s  %-8s %s", we.Time.Format(time.TimeOnly), we.Event, we.Path)
	if we.Type != "" {
		p.Printf("  [%s] %s", we.Type, we.Reason)
	}
	p.Println()
}
