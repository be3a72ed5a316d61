package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/abilityd/internal/config"
	"github.com/harun/abilityd/internal/logger"
)

const version = "0.1.0"

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "abilityd",
	Short: "abilityd - ability registry and tool server",
	Long: `abilityd registers abilities with schema-validated input and output,
gates them behind permission rules, and exposes them as tools over HTTP,
the Model Context Protocol and websockets.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.abilityd/abilityd.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	// Version template
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}

// loadConfig loads and validates the configuration. An explicit --log-level
// overrides the configured level.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if flag := cmd.Flags().Lookup("log-level"); flag != nil && flag.Changed {
		cfg.Logging.Level = logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(cfg.Logging, "abilityd")
}
