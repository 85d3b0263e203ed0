package config

import (
	"strings"
	"time"

	"github.com/marmos91/probdir/pkg/dumpdir"
	"github.com/marmos91/probdir/pkg/metrics"
)

// DefaultBaseDir is where crash collectors store problem directories.
const DefaultBaseDir = "/var/spool/abrt"

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values are replaced with defaults; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyStoreDefaults(&cfg.Store)
	applyLockDefaults(&cfg.Lock)
	applyArchiveDefaults(&cfg.Archive)
	applyMetricsDefaults(&cfg.Metrics)
	applyWatchDefaults(&cfg.Watch)
	applyTelemetryDefaults(&cfg.Telemetry)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applyStoreDefaults(cfg *StoreConfig) {
	if cfg.BaseDir == "" {
		cfg.BaseDir = DefaultBaseDir
	}
	if cfg.ElementMode == "" {
		cfg.ElementMode = "0640"
	}
	if cfg.ServiceUser == "" {
		cfg.ServiceUser = "abrt"
	}
	if cfg.ServiceGroup == "" {
		cfg.ServiceGroup = "abrt"
	}
	// 0 is root, never a sensible "nobody"
	if cfg.NobodyUID == 0 {
		cfg.NobodyUID = -1
	}
	if cfg.MaxTextSize == 0 {
		cfg.MaxTextSize = ByteSize(dumpdir.DefaultMaxTextSize)
	}
}

// applyLockDefaults fills the timings every cooperating process uses.
func applyLockDefaults(cfg *LockConfig) {
	t := dumpdir.DefaultTiming()
	if cfg.SymlinkRetry == 0 {
		cfg.SymlinkRetry = t.SymlinkRetry
	}
	if cfg.OpenContention == 0 {
		cfg.OpenContention = t.OpenContention
	}
	if cfg.CreateContention == 0 {
		cfg.CreateContention = t.CreateContention
	}
	if cfg.NoTimeFileRetry == 0 {
		cfg.NoTimeFileRetry = t.NoTimeFileRetry
	}
	if cfg.NoTimeFileCount == 0 {
		cfg.NoTimeFileCount = t.NoTimeFileCount
	}
	if cfg.RmdirRetry == 0 {
		cfg.RmdirRetry = t.RmdirRetry
	}
	if cfg.RmdirCount == 0 {
		cfg.RmdirCount = t.RmdirCount
	}
}

func applyArchiveDefaults(cfg *ArchiveConfig) {
	if cfg.Codec == "" {
		cfg.Codec = "gzip"
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false (opt-in for metrics)
	if cfg.Address == "" {
		cfg.Address = metrics.DefaultAddress
	}
}

func applyWatchDefaults(cfg *WatchConfig) {
	if cfg.Debounce == 0 {
		cfg.Debounce = 100 * time.Millisecond
	}
}

// applyTelemetryDefaults sets tracing defaults. Tracing stays opt-in.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	// 0 is treated as unset
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
