package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// configTemplate is the commented sample written by InitConfig. Keep it in
// sync with GetDefaultConfig.
const configTemplate = `# probdir Configuration File
#
# Every key can be overridden with an environment variable:
# PROBDIR_<SECTION>_<KEY>, e.g. PROBDIR_STORE_BASE_DIR=/var/tmp/abrt

logging:
  # DEBUG, INFO, WARN or ERROR
  level: "INFO"
  # text or json
  format: "text"
  # stdout, stderr or a file path
  output: "stderr"

store:
  base_dir: "%s"
  # octal, quoted
  element_mode: "0640"
  superuser_uid: 0
  service_user: "abrt"
  service_group: "abrt"
  # true: the service user owns new problems and the crashed user's group
  # may read them. false: the crashed user owns them.
  service_owned: false
  # -1 looks up the "nobody" user
  nobody_uid: -1
  max_text_size: "8MiB"

# Every process sharing a base directory must use the same timings.
lock:
  symlink_retry: "10ms"
  open_contention: "500ms"
  create_contention: "10ms"
  no_time_file_retry: "50ms"
  no_time_file_count: 10
  rmdir_retry: "10ms"
  rmdir_count: 50

archive:
  # none, gzip, zstd, lz4, xz or bzip2
  codec: "gzip"
  exclude: []

metrics:
  enabled: false
  address: "127.0.0.1:9464"

watch:
  debounce: "100ms"

telemetry:
  # OTLP gRPC tracing of lock, create, delete, archive and watch operations
  enabled: false
  endpoint: "localhost:4317"
  insecure: true
  sample_rate: 1.0
`

// InitConfig writes a sample configuration to the default location and
// returns its path. An existing file is kept unless force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a sample configuration to path.
func InitConfigToPath(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(configTemplate, DefaultBaseDir)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
