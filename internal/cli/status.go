package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long:  `Show the current status of the abilityd daemon.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	pf, err := pidFile(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	pid, alive := pf.Owner()
	if !alive {
		fmt.Fprintln(out, "Status: stopped")
		return nil
	}

	fmt.Fprintf(out, "Status: running\n")
	fmt.Fprintf(out, "PID: %d\n", pid)

	// The PID file is written at startup, so its mtime approximates uptime
	if fileInfo, err := os.Stat(pf.Path()); err == nil {
		fmt.Fprintf(out, "Uptime: %s\n", formatDuration(time.Since(fileInfo.ModTime())))
	}

	return nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
