package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/probdir/internal/telemetry"
	"github.com/marmos91/probdir/pkg/dumpdir"
	"github.com/marmos91/probdir/pkg/dumpdir/archive"
	"github.com/marmos91/probdir/pkg/watch"
)

// Config represents the probdir configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (PROBDIR_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Store locates problem directories and sets their ownership scheme
	Store StoreConfig `mapstructure:"store" yaml:"store"`

	// Lock tunes the lock protocol. Every process sharing a base directory
	// should use the same values.
	Lock LockConfig `mapstructure:"lock" yaml:"lock"`

	// Archive sets the defaults of 'probdir archive'
	Archive ArchiveConfig `mapstructure:"archive" yaml:"archive"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Watch configures 'probdir watch'
	Watch WatchConfig `mapstructure:"watch" yaml:"watch"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// StoreConfig describes where problem directories live and who owns them.
type StoreConfig struct {
	// BaseDir is the directory holding problem directories
	// Default: /var/spool/abrt
	BaseDir string `mapstructure:"base_dir" validate:"required" yaml:"base_dir"`

	// ElementMode is the octal mode of new elements
	// Default: "0640"
	ElementMode string `mapstructure:"element_mode" validate:"required" yaml:"element_mode"`

	// SuperUserUID can access every problem directory
	SuperUserUID int `mapstructure:"superuser_uid" validate:"gte=0" yaml:"superuser_uid"`

	// ServiceUser and ServiceGroup are the accounts of the crash collector
	// Default: abrt
	ServiceUser  string `mapstructure:"service_user" validate:"required" yaml:"service_user"`
	ServiceGroup string `mapstructure:"service_group" validate:"required" yaml:"service_group"`

	// ServiceOwned selects the ownership scheme of new directories: the
	// service user owns them and the crashed user's group may read them.
	// When false (the default) the crashed user owns them.
	ServiceOwned bool `mapstructure:"service_owned" yaml:"service_owned"`

	// NobodyUID is recorded as the owner of problems accessible to anyone
	// -1 looks up the "nobody" user
	NobodyUID int `mapstructure:"nobody_uid" validate:"gte=-1" yaml:"nobody_uid"`

	// MaxTextSize is the largest element loaded as text
	// Supports human-readable formats: "8MiB", "512KB"
	// Default: 8MiB
	MaxTextSize ByteSize `mapstructure:"max_text_size" yaml:"max_text_size"`
}

// LockConfig mirrors dumpdir.Timing.
type LockConfig struct {
	SymlinkRetry     time.Duration `mapstructure:"symlink_retry" validate:"gt=0" yaml:"symlink_retry"`
	OpenContention   time.Duration `mapstructure:"open_contention" validate:"gt=0" yaml:"open_contention"`
	CreateContention time.Duration `mapstructure:"create_contention" validate:"gt=0" yaml:"create_contention"`
	NoTimeFileRetry  time.Duration `mapstructure:"no_time_file_retry" validate:"gt=0" yaml:"no_time_file_retry"`
	NoTimeFileCount  int           `mapstructure:"no_time_file_count" validate:"gt=0" yaml:"no_time_file_count"`
	RmdirRetry       time.Duration `mapstructure:"rmdir_retry" validate:"gt=0" yaml:"rmdir_retry"`
	RmdirCount       int           `mapstructure:"rmdir_count" validate:"gt=0" yaml:"rmdir_count"`
}

// ArchiveConfig sets archive defaults.
type ArchiveConfig struct {
	// Codec is used when the archive name has no known suffix
	// Valid values: none, gzip, zstd, lz4, xz, bzip2
	Codec string `mapstructure:"codec" validate:"required,oneof=none gzip zstd lz4 xz bzip2" yaml:"codec"`

	// XZPath and Bzip2Path override the filter programs looked up in $PATH
	XZPath    string `mapstructure:"xz_path" yaml:"xz_path,omitempty"`
	Bzip2Path string `mapstructure:"bzip2_path" yaml:"bzip2_path,omitempty"`

	// Exclude lists elements never archived
	Exclude []string `mapstructure:"exclude" yaml:"exclude,omitempty"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Address is the host:port of the /metrics endpoint
	// Default: 127.0.0.1:9464
	Address string `mapstructure:"address" validate:"omitempty,hostname_port" yaml:"address"`
}

// WatchConfig configures the directory watcher.
type WatchConfig struct {
	// Debounce suppresses repeated events for the same directory
	// Default: 100ms
	Debounce time.Duration `mapstructure:"debounce" validate:"gte=0" yaml:"debounce"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// Spans cover lock acquisition, directory creation and deletion, archive
// export and watch events.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector endpoint (host:port)
	// Default: "localhost:4317"
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,hostname_port" yaml:"endpoint"`

	// Insecure disables TLS towards the collector
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate is the fraction of traces sampled (0.0 to 1.0)
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`
}

// ByteSize is a size in bytes written as a human-readable string in
// configuration files.
type ByteSize uint64

// String renders b with IEC units, e.g. "8.0 MiB".
func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

// MarshalYAML writes b in human-readable form.
func (b ByteSize) MarshalYAML() (interface{}, error) {
	return b.String(), nil
}

// UnmarshalYAML accepts "8MiB", "512 KB" or a plain number.
func (b *ByteSize) UnmarshalYAML(node *yaml.Node) error {
	n, err := humanize.ParseBytes(node.Value)
	if err != nil {
		return fmt.Errorf("invalid byte size %q: %w", node.Value, err)
	}
	*b = ByteSize(n)
	return nil
}

// ParseElementMode parses the octal element mode.
func (s StoreConfig) ParseElementMode() (os.FileMode, error) {
	m, err := strconv.ParseUint(s.ElementMode, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("store.element_mode: invalid octal mode %q", s.ElementMode)
	}
	if m&^0o666 != 0 {
		return 0, fmt.Errorf("store.element_mode: %q has bits outside 0666", s.ElementMode)
	}
	return os.FileMode(m), nil
}

// DumpDirConfig converts the configuration into an engine configuration.
// Process identity and clock come from dumpdir.DefaultConfig.
func (c *Config) DumpDirConfig() (dumpdir.Config, error) {
	mode, err := c.Store.ParseElementMode()
	if err != nil {
		return dumpdir.Config{}, err
	}

	dc := dumpdir.DefaultConfig()
	dc.SuperUserUID = c.Store.SuperUserUID
	dc.ServiceUserName = c.Store.ServiceUser
	dc.ServiceGroupName = c.Store.ServiceGroup
	dc.OwnedByUser = !c.Store.ServiceOwned
	dc.NobodyUID = c.Store.NobodyUID
	dc.ElementMode = mode
	dc.MaxTextSize = int64(c.Store.MaxTextSize)
	dc.Timing = dumpdir.Timing{
		SymlinkRetry:     c.Lock.SymlinkRetry,
		OpenContention:   c.Lock.OpenContention,
		CreateContention: c.Lock.CreateContention,
		NoTimeFileRetry:  c.Lock.NoTimeFileRetry,
		NoTimeFileCount:  c.Lock.NoTimeFileCount,
		RmdirRetry:       c.Lock.RmdirRetry,
		RmdirCount:       c.Lock.RmdirCount,
	}
	return dc, nil
}

// ArchiveOptions returns the export options configured for archives.
func (c *Config) ArchiveOptions() archive.Options {
	opts := archive.Options{
		Exclude: c.Archive.Exclude,
		Filters: map[archive.Codec]string{},
	}
	if c.Archive.XZPath != "" {
		opts.Filters[archive.CodecXZ] = c.Archive.XZPath
	}
	if c.Archive.Bzip2Path != "" {
		opts.Filters[archive.CodecBzip2] = c.Archive.Bzip2Path
	}
	return opts
}

// WatchOptions returns the watcher options.
func (c *Config) WatchOptions() watch.Options {
	return watch.Options{Debounce: c.Watch.Debounce}
}

// TelemetryConfig converts the tracing section into a telemetry.Config.
func (c *Config) TelemetryConfig(version string) telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.Enabled = c.Telemetry.Enabled
	tc.Endpoint = c.Telemetry.Endpoint
	tc.Insecure = c.Telemetry.Insecure
	tc.SampleRate = c.Telemetry.SampleRate
	if version != "" {
		tc.ServiceVersion = version
	}
	return tc
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (PROBDIR_*)
//  2. Configuration file
//  3. Default values
//
// A missing configuration file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Seed every key with its default so environment variables apply
	// even without a configuration file.
	if err := seedDefaults(v); err != nil {
		return nil, err
	}

	setupViper(v, configPath)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func seedDefaults(v *viper.Viper) error {
	data, err := yaml.Marshal(GetDefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal defaults: %w", err)
	}
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to load defaults: %w", err)
	}
	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: PROBDIR_STORE_BASE_DIR=/var/tmp/abrt
	v.SetEnvPrefix("PROBDIR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/probdir/config.yaml
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile merges the configuration file into the defaults.
// Returns (fileFound, error).
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.MergeInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and numbers to ByteSize.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			n, err := humanize.ParseBytes(v)
			if err != nil {
				return nil, err
			}
			return ByteSize(n), nil
		case int:
			return ByteSize(v), nil
		case int64:
			return ByteSize(v), nil
		case uint64:
			return ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings like "30s" to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns $XDG_CONFIG_HOME/probdir, ~/.config/probdir, or "."
// when no home directory is known.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "probdir")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "probdir")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
