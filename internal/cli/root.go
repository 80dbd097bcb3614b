package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/dl-alexandre/docsync/internal/config"
	"github.com/dl-alexandre/docsync/internal/logging"
	"github.com/dl-alexandre/docsync/internal/types"
	"github.com/dl-alexandre/docsync/internal/utils"
	"github.com/dl-alexandre/docsync/pkg/version"
	"github.com/spf13/cobra"
)

var (
	globalFlags types.GlobalFlags
	logger      logging.Logger = logging.NewNoOpLogger()
	debugRT     *logging.DebugTransport
)

var rootCmd = &cobra.Command{
	Use:   "docsync",
	Short: "Keep local folders in sync with remote document servers",
	Long: `docsync mirrors folders on remote document servers into local
directories, in both directions, across several accounts.

All commands support JSON output for automation and scripting.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if globalFlags.Config != "" {
			if err := os.Setenv(config.EnvPrefix+"CONFIG_DIR", globalFlags.Config); err != nil {
				return err
			}
		}
		if err := validateGlobalFlags(cmd); err != nil {
			return err
		}

		logConfig := logging.LogConfig{
			Level:           logging.INFO,
			OutputFile:      globalFlags.LogFile,
			EnableConsole:   !globalFlags.Quiet,
			EnableDebug:     globalFlags.Debug,
			RedactSensitive: true,
			EnableColor:     true,
			EnableTimestamp: true,
		}
		if cfg, err := config.Load(); err == nil {
			logConfig.EnableColor = cfg.ColorOutput
			logConfig.Level = logging.ParseLevel(cfg.LogLevel)
		}
		if globalFlags.Verbose {
			logConfig.Level = logging.DEBUG
		}
		if globalFlags.OutputFormat == types.OutputFormatJSON && !globalFlags.Verbose && !globalFlags.Debug {
			logConfig.EnableConsole = false
		}

		var err error
		logger, debugRT, err = logging.NewDebugLoggerWithTransport(logConfig)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Close()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "Print version, commit and build information of docsync",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := newOutput()
		if globalFlags.OutputFormat == types.OutputFormatTable && globalFlags.Quiet {
			fmt.Println(version.Version)
			return nil
		}
		return out.WriteSuccess("version", version.Get())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalFlags.Account, "account", "", "Account id, email or name (defaults to the active account)")
	rootCmd.PersistentFlags().StringVar((*string)(&globalFlags.OutputFormat), "output", "table", "Output format (json, table)")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Quiet, "quiet", "q", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.Debug, "debug", false, "Log every remote request")
	rootCmd.PersistentFlags().StringVar(&globalFlags.Config, "config", "", "Configuration directory")
	rootCmd.PersistentFlags().StringVar(&globalFlags.LogFile, "log-file", "", "Path to log file")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.JSON, "json", false, "Output in JSON format (alias for --output json)")

	rootCmd.AddCommand(versionCmd)
}

func validateGlobalFlags(cmd *cobra.Command) error {
	if globalFlags.JSON {
		globalFlags.OutputFormat = types.OutputFormatJSON
	} else if !cmd.Flags().Changed("output") {
		if cfg, err := config.Load(); err == nil && cfg.DefaultOutputFormat != "" {
			globalFlags.OutputFormat = cfg.DefaultOutputFormat
		}
	}

	if globalFlags.OutputFormat != types.OutputFormatJSON && globalFlags.OutputFormat != types.OutputFormatTable {
		return utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("invalid output format: %s", globalFlags.OutputFormat)).Err()
	}
	return nil
}

// reportedError marks a failure whose envelope was already written
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// Execute runs the root command and exits with the code of the failure
func Execute() error {
	err := rootCmd.Execute()
	if err == nil {
		return nil
	}
	var reported *reportedError
	if !errors.As(err, &reported) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(utils.GetExitCode(utils.CodeOf(err)))
	return err
}

// GetGlobalFlags returns the global flags
func GetGlobalFlags() types.GlobalFlags {
	return globalFlags
}

// GetLogger returns the global logger
func GetLogger() logging.Logger {
	return logger
}
