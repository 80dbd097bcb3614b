package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dl-alexandre/docsync/internal/types"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.DefaultOutputFormat != types.OutputFormatJSON {
		t.Errorf("Expected default output format 'json', got '%s'", cfg.DefaultOutputFormat)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("Expected max retries 3, got %d", cfg.MaxRetries)
	}
	if cfg.LogLevel != "normal" {
		t.Errorf("Expected log level 'normal', got '%s'", cfg.LogLevel)
	}
	if cfg.Workers != 4 {
		t.Errorf("Expected 4 workers, got %d", cfg.Workers)
	}
	if cfg.ChecksumAlgorithm != "md5" {
		t.Errorf("Expected md5 checksums, got '%s'", cfg.ChecksumAlgorithm)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		errorMsg string
	}{
		{name: "valid default config", mutate: func(*Config) {}},
		{name: "invalid output format", mutate: func(c *Config) { c.DefaultOutputFormat = "yaml" }, errorMsg: "invalid output format"},
		{name: "negative retries", mutate: func(c *Config) { c.MaxRetries = -1 }, errorMsg: "max retries"},
		{name: "too many retries", mutate: func(c *Config) { c.MaxRetries = 11 }, errorMsg: "max retries"},
		{name: "retry delay too small", mutate: func(c *Config) { c.RetryBaseDelay = 5 }, errorMsg: "retry base delay"},
		{name: "request timeout zero", mutate: func(c *Config) { c.RequestTimeout = 0 }, errorMsg: "request timeout"},
		{name: "invalid log level", mutate: func(c *Config) { c.LogLevel = "loud" }, errorMsg: "invalid log level"},
		{name: "zero workers", mutate: func(c *Config) { c.Workers = 0 }, errorMsg: "workers"},
		{name: "too many workers", mutate: func(c *Config) { c.Workers = 64 }, errorMsg: "workers"},
		{name: "interval too short", mutate: func(c *Config) { c.SyncInterval = 1 }, errorMsg: "sync interval"},
		{name: "download attempts zero", mutate: func(c *Config) { c.DownloadAttempts = 0 }, errorMsg: "download attempts"},
		{name: "unknown checksum", mutate: func(c *Config) { c.ChecksumAlgorithm = "crc32" }, errorMsg: "checksum algorithm"},
		{name: "blake3 checksum", mutate: func(c *Config) { c.ChecksumAlgorithm = "blake3" }},
		{name: "unknown storage", mutate: func(c *Config) { c.CredentialStorage = "vault" }, errorMsg: "credential storage"},
		{name: "blank exclude", mutate: func(c *Config) { c.ExcludePatterns = []string{" "} }, errorMsg: "exclude patterns"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errorMsg == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.errorMsg)
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.errorMsg)
			}
		})
	}
}

func TestConfigDurationGetters(t *testing.T) {
	cfg := &Config{
		RetryBaseDelay: 1000,
		RequestTimeout: 60,
		SyncInterval:   30,
	}

	if d := cfg.GetRetryBaseDelay(); d != 1000*time.Millisecond {
		t.Errorf("Expected retry base delay 1000ms, got %v", d)
	}
	if d := cfg.GetRequestTimeout(); d != 60*time.Second {
		t.Errorf("Expected request timeout 60s, got %v", d)
	}
	if d := cfg.GetSyncInterval(); d != 30*time.Second {
		t.Errorf("Expected sync interval 30s, got %v", d)
	}
}

func TestConfigSaveAndLoad(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv(EnvPrefix+"CONFIG_DIR", tempDir)

	cfg := DefaultConfig()
	cfg.DefaultOutputFormat = types.OutputFormatTable
	cfg.MaxRetries = 5
	cfg.Workers = 8
	cfg.ChecksumAlgorithm = "sha256"
	cfg.ExcludePatterns = []string{"*.bak"}

	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(tempDir, ConfigFileName))
	if err != nil {
		t.Fatalf("Failed to read saved config: %v", err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("saved config is not JSON: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultOutputFormat != types.OutputFormatTable {
		t.Errorf("Expected output format 'table', got '%s'", loaded.DefaultOutputFormat)
	}
	if loaded.Workers != 8 {
		t.Errorf("Expected 8 workers, got %d", loaded.Workers)
	}
	if loaded.ChecksumAlgorithm != "sha256" {
		t.Errorf("Expected sha256, got '%s'", loaded.ChecksumAlgorithm)
	}
	if len(loaded.ExcludePatterns) != 1 || loaded.ExcludePatterns[0] != "*.bak" {
		t.Errorf("Expected exclude patterns [*.bak], got %v", loaded.ExcludePatterns)
	}
}

func TestLoadYAML(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv(EnvPrefix+"CONFIG_DIR", tempDir)

	yamlConfig := `
defaultOutputFormat: table
workers: 2
syncInterval: 60
checksumAlgorithm: blake3
excludePatterns:
  - "*.swp"
  - node_modules
`
	if err := os.WriteFile(filepath.Join(tempDir, YAMLConfigFileName), []byte(yamlConfig), 0600); err != nil {
		t.Fatalf("Failed to write yaml config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Workers != 2 || cfg.SyncInterval != 60 {
		t.Errorf("Expected workers=2 interval=60, got workers=%d interval=%d", cfg.Workers, cfg.SyncInterval)
	}
	if cfg.ChecksumAlgorithm != "blake3" {
		t.Errorf("Expected blake3, got '%s'", cfg.ChecksumAlgorithm)
	}
	if len(cfg.ExcludePatterns) != 2 {
		t.Errorf("Expected 2 exclude patterns, got %v", cfg.ExcludePatterns)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("Unset fields should keep defaults, got max retries %d", cfg.MaxRetries)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv(EnvPrefix+"OUTPUT_FORMAT", "table")
	t.Setenv(EnvPrefix+"MAX_RETRIES", "7")
	t.Setenv(EnvPrefix+"LOG_LEVEL", "debug")
	t.Setenv(EnvPrefix+"WORKERS", "12")
	t.Setenv(EnvPrefix+"CHECKSUM_ALGORITHM", "SHA256")
	t.Setenv(EnvPrefix+"EXCLUDE", "*.tmp, build ,")
	t.Setenv(EnvPrefix+"COLOR_OUTPUT", "off")

	cfg := DefaultConfig()
	cfg.loadFromEnv()

	if cfg.DefaultOutputFormat != types.OutputFormatTable {
		t.Errorf("Expected output format 'table', got '%s'", cfg.DefaultOutputFormat)
	}
	if cfg.MaxRetries != 7 {
		t.Errorf("Expected max retries 7, got %d", cfg.MaxRetries)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log level 'debug', got '%s'", cfg.LogLevel)
	}
	if cfg.Workers != 12 {
		t.Errorf("Expected 12 workers, got %d", cfg.Workers)
	}
	if cfg.ChecksumAlgorithm != "sha256" {
		t.Errorf("Expected sha256, got '%s'", cfg.ChecksumAlgorithm)
	}
	if len(cfg.ExcludePatterns) != 2 || cfg.ExcludePatterns[1] != "build" {
		t.Errorf("Expected [*.tmp build], got %v", cfg.ExcludePatterns)
	}
	if cfg.ColorOutput {
		t.Error("Expected color output disabled")
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"true", true},
		{"TRUE", true},
		{"1", true},
		{"yes", true},
		{"on", true},
		{"false", false},
		{"0", false},
		{"no", false},
		{"off", false},
		{"", false},
		{"invalid", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseBool(tt.input); got != tt.want {
				t.Errorf("parseBool(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
