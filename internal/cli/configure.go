package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harun/abilityd/internal/config"
)

var (
	configureForce      bool
	configureListen     string
	configureTransports []string
	configureBaseURL    string
	configureDataDir    string
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write a configuration file",
	Long: `Write a configuration file populated with defaults.
Flags override individual settings; an existing file is only replaced with --force.`,
	Args: cobra.NoArgs,
	RunE: runConfigure,
}

func init() {
	configureCmd.Flags().BoolVar(&configureForce, "force", false, "overwrite an existing configuration file")
	configureCmd.Flags().StringVar(&configureListen, "listen", "", "HTTP listen address (host:port)")
	configureCmd.Flags().StringSliceVar(&configureTransports, "transports", nil, "tool server transports (http, mcp, websocket)")
	configureCmd.Flags().StringVar(&configureBaseURL, "base-url", "", "site base URL used in post permalinks")
	configureCmd.Flags().StringVar(&configureDataDir, "data-dir", "", "data directory (default is $HOME/.abilityd)")
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	configPath := loader.GetConfigPath()

	if _, err := os.Stat(configPath); err == nil && !configureForce {
		return fmt.Errorf("configuration already exists at %s (use --force to overwrite)", configPath)
	}

	cfg := config.DefaultConfig()
	if configureListen != "" {
		cfg.HTTP.Listen = configureListen
	}
	if len(configureTransports) > 0 {
		transports := make([]string, 0, len(configureTransports))
		for _, t := range configureTransports {
			transports = append(transports, strings.TrimSpace(t))
		}
		cfg.Server.Transports = transports
	}
	if configureBaseURL != "" {
		cfg.Posts.BaseURL = configureBaseURL
	}
	if configureDataDir != "" {
		cfg.DataDir = configureDataDir
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Save configuration
	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration saved to: %s\n", configPath)
	fmt.Fprintln(out, "You can now start abilityd with: abilityd serve")

	return nil
}
