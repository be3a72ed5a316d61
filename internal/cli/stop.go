package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/abilityd/internal/daemon"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the abilityd daemon",
	Long: `Stop the abilityd daemon recorded in the data directory's PID file.
The daemon gets SIGTERM and the grace period set by --timeout to drain
in-flight calls; after that it is killed.`,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().Duration("timeout", 30*time.Second, "grace period before the daemon is killed")
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	grace, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return err
	}

	pf, err := pidFile(cmd)
	if err != nil {
		return err
	}

	pid, err := pf.Signal(syscall.SIGTERM)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Sent SIGTERM to %d, waiting up to %s\n", pid, grace)

	ctx, cancel := context.WithTimeout(cmd.Context(), grace)
	defer cancel()

	err = daemon.WaitExit(ctx, pid)
	switch {
	case err == nil:
		fmt.Fprintln(out, "Daemon stopped")
		return nil
	case !errors.Is(err, context.DeadlineExceeded):
		return err
	}

	if _, err := pf.Signal(syscall.SIGKILL); err != nil {
		if errors.Is(err, daemon.ErrNotRunning) {
			fmt.Fprintln(out, "Daemon stopped")
			return nil
		}
		return err
	}
	// A killed daemon cannot release its own PID file
	if err := os.Remove(pf.Path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}

	fmt.Fprintln(out, "Grace period expired, daemon killed")
	return nil
}
