package config

import (
	"strings"
	"testing"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for invalid log format")
	}
}

func TestValidate_MissingBaseDir(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Store.BaseDir = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for missing base dir")
	}
	if !strings.Contains(err.Error(), "BaseDir") {
		t.Errorf("Expected error about BaseDir, got: %v", err)
	}
}

func TestValidate_InvalidElementMode(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Store.ElementMode = "0777"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for executable element mode")
	}
	if !strings.Contains(err.Error(), "element_mode") {
		t.Errorf("Expected error about element_mode, got: %v", err)
	}
}

func TestValidate_NobodyUIDRange(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Store.NobodyUID = -2

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for nobody uid below -1")
	}
}

func TestValidate_EqualContention(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Lock.CreateContention = cfg.Lock.OpenContention

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for equal contention intervals")
	}
	if !strings.Contains(err.Error(), "must differ") {
		t.Errorf("Expected 'must differ' error, got: %v", err)
	}
}

func TestValidate_ZeroLockCount(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Lock.RmdirCount = 0

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for zero rmdir count")
	}
}

func TestValidate_InvalidCodec(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Archive.Codec = "rar"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for unknown codec")
	}
}

func TestValidate_EmptyExclude(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Archive.Exclude = []string{"coredump", ""}

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for empty exclude entry")
	}
}

func TestValidate_MetricsAddress(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Metrics.Address = "not an address"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for malformed metrics address")
	}
}

func TestValidate_TelemetrySampleRate(t *testing.T) {
	for _, rate := range []float64{-0.1, 1.5} {
		cfg := GetDefaultConfig()
		cfg.Telemetry.SampleRate = rate

		if err := Validate(cfg); err == nil {
			t.Errorf("Expected validation error for sample rate %v", rate)
		}
	}
}

func TestValidate_TelemetryEndpoint(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.Endpoint = "collector"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for endpoint without port")
	}
}

func TestValidate_LogLevelNormalization(t *testing.T) {
	testCases := []string{"info", "INFO", "debug", "DEBUG", "warn", "WARN", "error", "ERROR"}

	for _, level := range testCases {
		cfg := GetDefaultConfig()
		cfg.Logging.Level = level

		if err := Validate(cfg); err != nil {
			t.Errorf("Validation failed for level %q: %v", level, err)
		}

		// Validation should NOT normalize
		if cfg.Logging.Level != level {
			t.Errorf("Expected level to remain %q after validation, got %q", level, cfg.Logging.Level)
		}
	}

	cfg := &Config{Logging: LoggingConfig{Level: "info"}}
	ApplyDefaults(cfg)
	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected ApplyDefaults to normalize 'info' to 'INFO', got %q", cfg.Logging.Level)
	}
}
