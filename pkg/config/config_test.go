package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/probdir/pkg/dumpdir/archive"
)

// yamlSafePath converts a filesystem path to a YAML-safe representation.
func yamlSafePath(p string) string {
	return filepath.ToSlash(p)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return configPath
}

func TestLoad_DefaultConfig(t *testing.T) {
	base := t.TempDir()
	configPath := writeConfig(t, `
logging:
  level: "INFO"

store:
  base_dir: "`+yamlSafePath(base)+`"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Store.BaseDir != yamlSafePath(base) {
		t.Errorf("Expected base dir %q, got %q", base, cfg.Store.BaseDir)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stderr" {
		t.Errorf("Expected default output 'stderr', got %q", cfg.Logging.Output)
	}
	if cfg.Store.ElementMode != "0640" {
		t.Errorf("Expected default element mode '0640', got %q", cfg.Store.ElementMode)
	}
	if cfg.Archive.Codec != "gzip" {
		t.Errorf("Expected default codec 'gzip', got %q", cfg.Archive.Codec)
	}
	if cfg.Lock.OpenContention != 500*time.Millisecond {
		t.Errorf("Expected default open contention 500ms, got %v", cfg.Lock.OpenContention)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	nonExistentPath := filepath.Join(t.TempDir(), "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error when loading default config, got: %v", err)
	}
	if cfg == nil {
		t.Fatal("Expected default config to be returned")
	}
	if cfg.Store.BaseDir != DefaultBaseDir {
		t.Errorf("Expected default base dir %q, got %q", DefaultBaseDir, cfg.Store.BaseDir)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, `
logging:
  level: INFO
  invalid yaml here [[[
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error with invalid YAML, got nil")
	}
}

func TestLoad_ParsesSizesAndDurations(t *testing.T) {
	configPath := writeConfig(t, `
store:
  max_text_size: "512KiB"
  element_mode: "0600"
lock:
  symlink_retry: "5ms"
  rmdir_count: 7
watch:
  debounce: "1s"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Store.MaxTextSize != 512*1024 {
		t.Errorf("Expected max text size 512KiB, got %v", cfg.Store.MaxTextSize)
	}
	if cfg.Lock.SymlinkRetry != 5*time.Millisecond {
		t.Errorf("Expected symlink retry 5ms, got %v", cfg.Lock.SymlinkRetry)
	}
	if cfg.Lock.RmdirCount != 7 {
		t.Errorf("Expected rmdir count 7, got %d", cfg.Lock.RmdirCount)
	}
	if cfg.Watch.Debounce != time.Second {
		t.Errorf("Expected debounce 1s, got %v", cfg.Watch.Debounce)
	}

	dc, err := cfg.DumpDirConfig()
	if err != nil {
		t.Fatalf("DumpDirConfig failed: %v", err)
	}
	if dc.ElementMode != 0o600 {
		t.Errorf("Expected element mode 0600, got %o", dc.ElementMode)
	}
	if dc.MaxTextSize != 512*1024 {
		t.Errorf("Expected engine max text size 512KiB, got %d", dc.MaxTextSize)
	}
	if dc.Timing.RmdirCount != 7 {
		t.Errorf("Expected engine rmdir count 7, got %d", dc.Timing.RmdirCount)
	}
	if !dc.OwnedByUser {
		t.Error("Expected problems owned by the crashed user by default")
	}
}

func TestLoad_InvalidCodec(t *testing.T) {
	configPath := writeConfig(t, `
archive:
  codec: "rar"
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected validation error for unknown codec")
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	base := t.TempDir()
	t.Setenv("PROBDIR_LOGGING_LEVEL", "ERROR")
	t.Setenv("PROBDIR_STORE_BASE_DIR", base)
	t.Setenv("PROBDIR_STORE_SERVICE_OWNED", "true")

	configPath := writeConfig(t, `
logging:
  level: "INFO"
store:
  base_dir: "/somewhere/else"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level 'ERROR' from env var, got %q", cfg.Logging.Level)
	}
	if cfg.Store.BaseDir != base {
		t.Errorf("Expected base dir %q from env var, got %q", base, cfg.Store.BaseDir)
	}
	if !cfg.Store.ServiceOwned {
		t.Error("Expected service_owned from env var")
	}
}

func TestLoad_EnvironmentWithoutFile(t *testing.T) {
	t.Setenv("PROBDIR_ARCHIVE_CODEC", "zstd")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Archive.Codec != "zstd" {
		t.Errorf("Expected codec 'zstd' from env var, got %q", cfg.Archive.Codec)
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Store.MaxTextSize = 3 * 1024 * 1024
	cfg.Archive.Exclude = []string{"coredump"}

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}
	if loaded.Store.MaxTextSize != cfg.Store.MaxTextSize {
		t.Errorf("Expected max text size %v, got %v", cfg.Store.MaxTextSize, loaded.Store.MaxTextSize)
	}
	if len(loaded.Archive.Exclude) != 1 || loaded.Archive.Exclude[0] != "coredump" {
		t.Errorf("Expected exclude [coredump], got %v", loaded.Archive.Exclude)
	}
}

func TestArchiveOptions(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Archive.XZPath = "/opt/bin/xz"
	cfg.Archive.Exclude = []string{"coredump"}

	opts := cfg.ArchiveOptions()
	if opts.Filters[archive.CodecXZ] != "/opt/bin/xz" {
		t.Errorf("Expected xz filter override, got %q", opts.Filters[archive.CodecXZ])
	}
	if _, ok := opts.Filters[archive.CodecBzip2]; ok {
		t.Error("Expected no bzip2 override")
	}
	if len(opts.Exclude) != 1 {
		t.Errorf("Expected one excluded element, got %v", opts.Exclude)
	}
}

func TestLoad_Telemetry(t *testing.T) {
	configPath := writeConfig(t, `
store:
  base_dir: "`+yamlSafePath(t.TempDir())+`"

telemetry:
  enabled: true
  endpoint: "tempo.example.com:4317"
  sample_rate: 0.5
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	tc := cfg.TelemetryConfig("1.2.3")
	if !tc.Enabled {
		t.Error("Expected tracing enabled")
	}
	if tc.Endpoint != "tempo.example.com:4317" {
		t.Errorf("Expected endpoint 'tempo.example.com:4317', got %q", tc.Endpoint)
	}
	if tc.SampleRate != 0.5 {
		t.Errorf("Expected sample rate 0.5, got %v", tc.SampleRate)
	}
	if tc.ServiceName != "probdir" || tc.ServiceVersion != "1.2.3" {
		t.Errorf("Expected service probdir/1.2.3, got %s/%s", tc.ServiceName, tc.ServiceVersion)
	}
}

func TestByteSize_String(t *testing.T) {
	if got := ByteSize(8 * 1024 * 1024).String(); got != "8.0 MiB" {
		t.Errorf("Expected '8.0 MiB', got %q", got)
	}
}

func TestParseElementMode(t *testing.T) {
	tests := []struct {
		mode    string
		want    os.FileMode
		wantErr bool
	}{
		{"0640", 0o640, false},
		{"600", 0o600, false},
		{"0755", 0, true},
		{"rw-r-----", 0, true},
	}
	for _, tt := range tests {
		got, err := StoreConfig{ElementMode: tt.mode}.ParseElementMode()
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseElementMode(%q) error = %v, wantErr %v", tt.mode, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseElementMode(%q) = %o, want %o", tt.mode, got, tt.want)
		}
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	path := GetDefaultConfigPath()

	if !filepath.IsAbs(path) {
		t.Errorf("Expected absolute path, got %q", path)
	}
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("Expected filename 'config.yaml', got %q", filepath.Base(path))
	}
}

func TestGetConfigDir(t *testing.T) {
	dir := GetConfigDir()

	if filepath.Base(dir) != "probdir" {
		t.Errorf("Expected directory name 'probdir', got %q", filepath.Base(dir))
	}
}

func TestDefaultConfigExists(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if DefaultConfigExists() {
		t.Fatal("Expected no config in a fresh config home")
	}
	if _, err := InitConfig(false); err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}
	if !DefaultConfigExists() {
		t.Error("Expected config to exist after InitConfig")
	}
}
