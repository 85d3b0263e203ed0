package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marmos91/probdir/cmd/probdir/cmdutil"
	"github.com/marmos91/probdir/cmd/probdir/commands"
	dderrors "github.com/marmos91/probdir/pkg/dumpdir/errors"

	// Import prometheus metrics to register init() functions
	_ "github.com/marmos91/probdir/pkg/metrics/prometheus"
)

// Build-time variables injected via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date
	cmdutil.ServiceVersion = version

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := commands.Execute(ctx)
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if serr := cmdutil.ShutdownTelemetry(shutdownCtx); serr != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to flush traces: %v\n", serr)
	}
	cancel()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode distinguishes a busy directory (retry later) from other
// failures.
func exitCode(err error) int {
	switch {
	case dderrors.IsBusyError(err):
		return 2
	case dderrors.IsNotFoundError(err), dderrors.IsNotDumpDirectoryError(err):
		return 3
	}
	return 1
}
