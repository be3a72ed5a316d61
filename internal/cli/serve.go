package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harun/abilityd/internal/daemon"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"start"},
	Short:   "Run the abilityd daemon in the foreground",
	Long: `Run the abilityd daemon in the foreground.
Registers categories and abilities, binds the tool server and serves it until
interrupted with SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if pid, alive := daemon.NewPIDFile(cfg.DataDir).Owner(); alive {
		return fmt.Errorf("%w (PID %d)", daemon.ErrAlreadyRunning, pid)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	d, err := daemon.New(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return d.Run(ctx)
}

// pidFile resolves the PID file from the configured data directory
func pidFile(cmd *cobra.Command) (*daemon.PIDFile, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return daemon.NewPIDFile(cfg.DataDir), nil
}
