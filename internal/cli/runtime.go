package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/abilityd/internal/daemon"
	"github.com/harun/abilityd/internal/metrics"
)

// openRuntime builds the ability runtime without listening. The returned
// close func releases the runtime and the logger.
func openRuntime(cmd *cobra.Command) (*daemon.Runtime, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	rt, err := daemon.NewRuntime(cmd.Context(), cfg, log.Logger, metrics.NewMetrics())
	if err != nil {
		log.Close()
		return nil, nil, err
	}

	return rt, func() {
		rt.Close()
		log.Close()
	}, nil
}
