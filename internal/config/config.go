package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dl-alexandre/docsync/internal/types"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the name of the JSON config file
	ConfigFileName = "config.json"
	// YAMLConfigFileName is read when no JSON config file exists
	YAMLConfigFileName = "config.yaml"
	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "DOCSYNC_"
)

// Config holds application configuration
type Config struct {
	// DefaultOutputFormat is the default output format (json, table)
	DefaultOutputFormat types.OutputFormat `json:"defaultOutputFormat" yaml:"defaultOutputFormat"`

	// MaxRetries is the maximum number of retries for remote calls
	MaxRetries int `json:"maxRetries" yaml:"maxRetries"`

	// RetryBaseDelay is the base delay for exponential backoff in milliseconds
	RetryBaseDelay int `json:"retryBaseDelay" yaml:"retryBaseDelay"`

	// RequestTimeout is the per-request timeout in seconds
	RequestTimeout int `json:"requestTimeout" yaml:"requestTimeout"`

	// LogLevel sets the logging verbosity (quiet, normal, verbose, debug)
	LogLevel string `json:"logLevel" yaml:"logLevel"`

	// ColorOutput enables color output for console logs
	ColorOutput bool `json:"colorOutput" yaml:"colorOutput"`

	// Workers caps the number of passes running at once
	Workers int `json:"workers" yaml:"workers"`

	// SyncInterval is the daemon's trigger period in seconds
	SyncInterval int `json:"syncInterval" yaml:"syncInterval"`

	// DownloadAttempts bounds checksum-mismatch retries per download
	DownloadAttempts int `json:"downloadAttempts" yaml:"downloadAttempts"`

	// ChecksumAlgorithm is md5, sha256 or blake3
	ChecksumAlgorithm string `json:"checksumAlgorithm" yaml:"checksumAlgorithm"`

	// CredentialStorage selects the vault backend (auto, keyring, encrypted-file, plain-file)
	CredentialStorage string `json:"credentialStorage" yaml:"credentialStorage"`

	// ExcludePatterns are extra local names never synced
	ExcludePatterns []string `json:"excludePatterns,omitempty" yaml:"excludePatterns,omitempty"`
}

var (
	validLogLevels         = []string{"quiet", "normal", "verbose", "debug"}
	validChecksums         = []string{"md5", "sha256", "blake3"}
	validCredentialStorage = []string{"auto", "keyring", "encrypted-file", "plain-file"}
)

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		DefaultOutputFormat: types.OutputFormatJSON,
		MaxRetries:          3,
		RetryBaseDelay:      1000, // 1 second
		RequestTimeout:      60,   // 60 seconds
		LogLevel:            "normal",
		ColorOutput:         true,
		Workers:             4,
		SyncInterval:        300, // 5 minutes
		DownloadAttempts:    3,
		ChecksumAlgorithm:   "md5",
		CredentialStorage:   "auto",
	}
}

// Load loads configuration with precedence: env vars > config file > defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.loadFromFile(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads config.json, falling back to config.yaml
func (c *Config) loadFromFile() error {
	configDir, err := GetConfigDir()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(filepath.Join(configDir, ConfigFileName))
	if err == nil {
		return json.Unmarshal(data, c)
	}
	if !os.IsNotExist(err) {
		return err
	}

	data, err = os.ReadFile(filepath.Join(configDir, YAMLConfigFileName))
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() {
	if v := os.Getenv(EnvPrefix + "OUTPUT_FORMAT"); v != "" {
		c.DefaultOutputFormat = types.OutputFormat(v)
	}
	envInt(EnvPrefix+"MAX_RETRIES", &c.MaxRetries)
	envInt(EnvPrefix+"RETRY_BASE_DELAY", &c.RetryBaseDelay)
	envInt(EnvPrefix+"REQUEST_TIMEOUT", &c.RequestTimeout)
	envInt(EnvPrefix+"WORKERS", &c.Workers)
	envInt(EnvPrefix+"SYNC_INTERVAL", &c.SyncInterval)
	envInt(EnvPrefix+"DOWNLOAD_ATTEMPTS", &c.DownloadAttempts)
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvPrefix + "COLOR_OUTPUT"); v != "" {
		c.ColorOutput = parseBool(v)
	}
	if v := os.Getenv(EnvPrefix + "CHECKSUM_ALGORITHM"); v != "" {
		c.ChecksumAlgorithm = strings.ToLower(v)
	}
	if v := os.Getenv(EnvPrefix + "CREDENTIAL_STORAGE"); v != "" {
		c.CredentialStorage = strings.ToLower(v)
	}
	if v := os.Getenv(EnvPrefix + "EXCLUDE"); v != "" {
		c.ExcludePatterns = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				c.ExcludePatterns = append(c.ExcludePatterns, p)
			}
		}
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Save writes the configuration as config.json
func (c *Config) Save() error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.DefaultOutputFormat != types.OutputFormatJSON &&
		c.DefaultOutputFormat != types.OutputFormatTable {
		return fmt.Errorf("invalid output format: %s (must be 'json' or 'table')", c.DefaultOutputFormat)
	}

	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("max retries must be between 0 and 10, got: %d", c.MaxRetries)
	}

	if c.RetryBaseDelay < 10 || c.RetryBaseDelay > 60000 {
		return fmt.Errorf("retry base delay must be between 10ms and 60000ms, got: %d", c.RetryBaseDelay)
	}

	if c.RequestTimeout < 1 || c.RequestTimeout > 3600 {
		return fmt.Errorf("request timeout must be between 1 and 3600 seconds, got: %d", c.RequestTimeout)
	}

	if !contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if c.Workers < 1 || c.Workers > 32 {
		return fmt.Errorf("workers must be between 1 and 32, got: %d", c.Workers)
	}

	if c.SyncInterval < 5 {
		return fmt.Errorf("sync interval must be at least 5 seconds, got: %d", c.SyncInterval)
	}

	if c.DownloadAttempts < 1 || c.DownloadAttempts > 10 {
		return fmt.Errorf("download attempts must be between 1 and 10, got: %d", c.DownloadAttempts)
	}

	if !contains(validChecksums, c.ChecksumAlgorithm) {
		return fmt.Errorf("invalid checksum algorithm: %s (must be one of: %s)", c.ChecksumAlgorithm, strings.Join(validChecksums, ", "))
	}

	if !contains(validCredentialStorage, c.CredentialStorage) {
		return fmt.Errorf("invalid credential storage: %s (must be one of: %s)", c.CredentialStorage, strings.Join(validCredentialStorage, ", "))
	}

	for _, p := range c.ExcludePatterns {
		if strings.TrimSpace(p) == "" {
			return errors.New("exclude patterns must not be empty")
		}
	}

	return nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// GetRetryBaseDelay returns the retry base delay as a duration
func (c *Config) GetRetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelay) * time.Millisecond
}

// GetRequestTimeout returns the request timeout as a duration
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// GetSyncInterval returns the daemon trigger period as a duration
func (c *Config) GetSyncInterval() time.Duration {
	return time.Duration(c.SyncInterval) * time.Second
}

// GetConfigPath returns the path to the JSON config file
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, ConfigFileName), nil
}

// GetConfigDir returns the path to the config directory
func GetConfigDir() (string, error) {
	if dir := os.Getenv(EnvPrefix + "CONFIG_DIR"); dir != "" {
		return homedir.Expand(dir)
	}
	homeDir, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "docsync"), nil
}

// parseBool parses a boolean value from a string
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
