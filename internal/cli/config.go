package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dl-alexandre/docsync/internal/config"
	"github.com/dl-alexandre/docsync/internal/types"
	"github.com/dl-alexandre/docsync/internal/utils"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long:  "Commands for managing docsync configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the effective configuration, including environment overrides",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Use 'config show' to see available keys",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

var configResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset configuration to defaults",
	Long:  "Reset all configuration settings to their default values",
	RunE:  runConfigReset,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration directory",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configResetCmd)
	configCmd.AddCommand(configPathCmd)
}

type configView struct {
	*config.Config
}

func (v configView) Headers() []string {
	return []string{"Key", "Value"}
}

func (v configView) Rows() [][]string {
	c := v.Config
	return [][]string{
		{"defaultOutputFormat", string(c.DefaultOutputFormat)},
		{"maxRetries", strconv.Itoa(c.MaxRetries)},
		{"retryBaseDelay", strconv.Itoa(c.RetryBaseDelay)},
		{"requestTimeout", strconv.Itoa(c.RequestTimeout)},
		{"logLevel", c.LogLevel},
		{"colorOutput", strconv.FormatBool(c.ColorOutput)},
		{"workers", strconv.Itoa(c.Workers)},
		{"syncInterval", strconv.Itoa(c.SyncInterval)},
		{"downloadAttempts", strconv.Itoa(c.DownloadAttempts)},
		{"checksumAlgorithm", c.ChecksumAlgorithm},
		{"credentialStorage", c.CredentialStorage},
		{"excludePatterns", strings.Join(c.ExcludePatterns, ",")},
	}
}

func (v configView) EmptyMessage() string {
	return ""
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := newOutput()

	cfg, err := config.Load()
	if err != nil {
		return out.Fail("config.show", utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).Err())
	}

	return out.WriteSuccess("config.show", configView{cfg})
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	out := newOutput()

	key := args[0]
	value := args[1]

	cfg, err := config.Load()
	if err != nil {
		return out.Fail("config.set", utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).Err())
	}

	if err := setConfigValue(cfg, key, value); err != nil {
		return out.Fail("config.set", err)
	}
	if err := cfg.Validate(); err != nil {
		return out.Fail("config.set", utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).
			WithContext("key", key).
			Err())
	}

	if err := cfg.Save(); err != nil {
		return out.Fail("config.set", utils.NewCLIError(utils.ErrCodeUnknown,
			fmt.Sprintf("Failed to save configuration: %v", err)).Err())
	}

	out.Log("Configuration updated: %s = %s", key, value)
	return out.WriteSuccess("config.set", map[string]interface{}{
		"key":   key,
		"value": value,
	})
}

// setConfigValue assigns value to the named key. Range checks are left to
// Config.Validate.
func setConfigValue(cfg *config.Config, key, value string) error {
	intValue := func(dst *int) error {
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return utils.NewCLIError(utils.ErrCodeInvalidArgument,
				fmt.Sprintf("%s must be an integer", key)).Err()
		}
		*dst = n
		return nil
	}

	switch strings.ToLower(key) {
	case "defaultoutputformat":
		cfg.DefaultOutputFormat = types.OutputFormat(value)
	case "maxretries":
		return intValue(&cfg.MaxRetries)
	case "retrybasedelay":
		return intValue(&cfg.RetryBaseDelay)
	case "requesttimeout":
		return intValue(&cfg.RequestTimeout)
	case "loglevel":
		cfg.LogLevel = strings.ToLower(value)
	case "coloroutput":
		cfg.ColorOutput = parseBool(value)
	case "workers":
		return intValue(&cfg.Workers)
	case "syncinterval":
		return intValue(&cfg.SyncInterval)
	case "downloadattempts":
		return intValue(&cfg.DownloadAttempts)
	case "checksumalgorithm":
		cfg.ChecksumAlgorithm = strings.ToLower(value)
	case "credentialstorage":
		cfg.CredentialStorage = strings.ToLower(value)
	case "excludepatterns":
		cfg.ExcludePatterns = nil
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.ExcludePatterns = append(cfg.ExcludePatterns, p)
			}
		}
	default:
		return utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("Unknown configuration key: %s", key)).Err()
	}
	return nil
}

func runConfigReset(cmd *cobra.Command, args []string) error {
	out := newOutput()

	cfg := config.DefaultConfig()
	if err := cfg.Save(); err != nil {
		return out.Fail("config.reset", utils.NewCLIError(utils.ErrCodeUnknown,
			fmt.Sprintf("Failed to reset configuration: %v", err)).Err())
	}

	out.Log("Configuration reset to defaults")
	return out.WriteSuccess("config.reset", configView{cfg})
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := newOutput()
	dir, err := config.GetConfigDir()
	if err != nil {
		return out.Fail("config.path", err)
	}
	return out.WriteSuccess("config.path", map[string]string{"configDir": dir})
}

// parseBool parses a boolean value from a string
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
