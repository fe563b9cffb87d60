package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/moolen/faultline/internal/config"
	"github.com/moolen/faultline/internal/logging"
)

const Version = "0.1.0"

var (
	logLevelFlags []string // Supports multiple --log-level flags
	configPath    string
)

var rootCmd = &cobra.Command{
	Use:   "faultline",
	Short: "faultline - CI failure analysis",
	Long: `faultline turns failed CI logs into incidents: it isolates the failure signal,
fingerprints and clusters it, asks a language model for a root cause analysis and
flags regressions of earlier incidents.`,
	Version:      Version,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Supports per-package log levels: --log-level debug --log-level pipeline=debug
	rootCmd.PersistentFlags().StringSliceVar(&logLevelFlags, "log-level",
		[]string{"info"},
		"Log level for packages. Use 'default=level' for default, or 'package.name=level' for per-package.\n"+
			"Examples: --log-level debug (all), --log-level pipeline=debug --log-level vectorindex.*=warn")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to a YAML configuration file (FAULTLINE_* environment variables override it)")

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(fingerprintCmd)
	rootCmd.AddCommand(mcpCmd)
}

// HandleError prints error and exits
func HandleError(err error, msg string) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and initializes logging. The --log-level flag wins
// over log_level from the configuration when it was given explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	flags := logLevelFlags
	if !cmd.Flags().Changed("log-level") {
		flags = []string{cfg.LogLevel}
	}
	if err := setupLog(flags); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLog initializes the logging system with parsed log level flags.
// Priority: CLI flags > LOG_LEVEL_* environment variables.
func setupLog(flags []string) error {
	defaultLevel, packageLevels, err := parseLogLevelFlags(flags)
	if err != nil {
		return err
	}
	return logging.Initialize(defaultLevel, packageLevels)
}

// parseLogLevelFlags merges LOG_LEVEL_* variables and flags.
//
// Flag format: ["debug"], ["default=info", "pipeline=debug"].
// Env format: LOG_LEVEL_VECTORINDEX_FALKORDB=debug (package name uppercased, dots to underscores).
func parseLogLevelFlags(flags []string) (string, map[string]string, error) {
	result := make(map[string]string)

	for _, envPair := range os.Environ() {
		if !strings.HasPrefix(envPair, "LOG_LEVEL_") {
			continue
		}
		key, level, ok := strings.Cut(envPair, "=")
		if !ok {
			continue
		}
		result[convertEnvKeyToPackageName(key)] = level
	}

	for _, flag := range flags {
		if pkg, level, ok := strings.Cut(flag, "="); ok {
			result[pkg] = level
		} else {
			result["default"] = flag
		}
	}

	defaultLevel := "info"
	if level, exists := result["default"]; exists {
		defaultLevel = level
		delete(result, "default")
	}
	if err := logging.ValidateLevel(defaultLevel); err != nil {
		return "", nil, err
	}
	for pkg, level := range result {
		if err := logging.ValidateLevel(level); err != nil {
			return "", nil, fmt.Errorf("invalid log level for package %q: %w", pkg, err)
		}
	}
	return defaultLevel, result, nil
}

// convertEnvKeyToPackageName converts LOG_LEVEL_VECTORINDEX_FALKORDB -> vectorindex.falkordb
func convertEnvKeyToPackageName(envKey string) string {
	name := strings.TrimPrefix(envKey, "LOG_LEVEL_")
	return strings.ToLower(strings.ReplaceAll(name, "_", "."))
}
