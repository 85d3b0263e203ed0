// Package cmdutil provides shared utilities for probdir commands.
package cmdutil

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/marmos91/probdir/internal/cli/output"
	"github.com/marmos91/probdir/internal/cli/prompt"
	"github.com/marmos91/probdir/internal/logger"
	"github.com/marmos91/probdir/internal/telemetry"
	"github.com/marmos91/probdir/pkg/config"
	"github.com/marmos91/probdir/pkg/dumpdir"
	"github.com/marmos91/probdir/pkg/metrics"
)

// Flags stores global flag values accessible by subcommands.
var Flags = &GlobalFlags{}

// GlobalFlags holds the global flag values.
type GlobalFlags struct {
	ConfigFile string
	LogLevel   string
	Output     string
	NoColor    bool
}

// ServiceVersion is reported to the trace collector.
var ServiceVersion = "dev"

var (
	loaded          *config.Config
	shutdownTracing func(context.Context) error
)

// LoadConfig loads the configuration once and initializes the logger and
// tracing. --log-level overrides the configured level.
func LoadConfig() (*config.Config, error) {
	if loaded != nil {
		return loaded, nil
	}

	cfg, err := config.Load(Flags.ConfigFile)
	if err != nil {
		return nil, err
	}
	if Flags.LogLevel != "" {
		if _, ok := logger.ParseLevel(Flags.LogLevel); !ok {
			return nil, fmt.Errorf("invalid log level %q (valid: DEBUG, INFO, WARN, ERROR)", Flags.LogLevel)
		}
		cfg.Logging.Level = strings.ToUpper(Flags.LogLevel)
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	shutdown, err := telemetry.Init(context.Background(), cfg.TelemetryConfig(ServiceVersion))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	shutdownTracing = shutdown
	if cfg.Telemetry.Enabled {
		logger.Debug("tracing enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}

	loaded = cfg
	return cfg, nil
}

// ShutdownTelemetry flushes pending spans. It is a no-op when no
// configuration was loaded.
func ShutdownTelemetry(ctx context.Context) error {
	if shutdownTracing == nil {
		return nil
	}
	err := shutdownTracing(ctx)
	shutdownTracing = nil
	return err
}

// NewStore builds the engine from the configuration. Metrics are attached
// when the registry was initialized beforehand.
func NewStore(cfg *config.Config) (*dumpdir.Store, error) {
	dc, err := cfg.DumpDirConfig()
	if err != nil {
		return nil, err
	}
	dc.Metrics = metrics.NewDumpDirMetrics()
	return dumpdir.New(dc), nil
}

// Setup loads the configuration and builds the engine.
func Setup() (*config.Config, *dumpdir.Store, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	s, err := NewStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, s, nil
}

// ResolveDir turns a command argument into a problem directory path. A bare
// name that does not exist in the working directory is looked up under the
// base directory.
func ResolveDir(cfg *config.Config, arg string) string {
	if strings.ContainsRune(arg, filepath.Separator) || arg == "." || arg == ".." {
		return arg
	}
	if _, err := os.Lstat(arg); err == nil {
		return arg
	}
	return filepath.Join(cfg.Store.BaseDir, arg)
}

// OpenDir opens and locks the problem directory named by arg. With
// readOnly an unlocked handle is accepted when locking is not permitted.
func OpenDir(ctx context.Context, cfg *config.Config, s *dumpdir.Store, arg string, readOnly bool) (*dumpdir.Dir, error) {
	return s.Open(ctx, ResolveDir(cfg, arg), dumpdir.OpenOptions{ReadOnly: readOnly})
}

// GetOutputFormatParsed returns the parsed output format.
func GetOutputFormatParsed() (output.Format, error) {
	return output.ParseFormat(Flags.Output)
}

// Printer returns a printer for the --output format writing to w.
func Printer(w io.Writer) (*output.Printer, error) {
	format, err := GetOutputFormatParsed()
	if err != nil {
		return nil, err
	}
	return output.NewPrinter(w, format, !Flags.NoColor), nil
}

// PrintOutput prints data in the selected format. In table format emptyMsg
// replaces an empty result.
func PrintOutput(w io.Writer, data any, isEmpty bool, emptyMsg string, tableRenderer any) error {
	p, err := Printer(w)
	if err != nil {
		return err
	}
	if p.Structured() {
		return p.Print(data)
	}
	if isEmpty {
		p.Println(emptyMsg)
		return nil
	}
	return p.Print(tableRenderer)
}

// PrintSuccess prints a success message in table format only.
func PrintSuccess(msg string) {
	p, err := Printer(os.Stdout)
	if err != nil || p.Structured() {
		return
	}
	p.Success(msg)
}

// PrintResourceWithSuccess prints data in JSON or YAML, or msg in table
// format.
func PrintResourceWithSuccess(w io.Writer, data any, msg string) error {
	p, err := Printer(w)
	if err != nil {
		return err
	}
	if p.Structured() {
		return p.Print(data)
	}
	p.Success(msg)
	return nil
}

// RunWithConfirmation asks before running fn unless force is set. A refusal
// is not an error.
func RunWithConfirmation(question string, force bool, fn func() error) error {
	confirmed, err := prompt.ConfirmWithForce(question, force)
	if err != nil {
		if prompt.IsAborted(err) {
			fmt.Println("\nAborted.")
			return nil
		}
		return err
	}
	if !confirmed {
		fmt.Println("Aborted.")
		return nil
	}
	return fn()
}

// BoolToYesNo converts a boolean to "yes" or "no".
func BoolToYesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// EmptyOr returns value, or fallback when value is empty.
func EmptyOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
