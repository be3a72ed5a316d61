package daemon

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/abilityd/internal/config"
	"github.com/harun/abilityd/pkg/hooks"
)

const defaultHookTimeout = 5 * time.Second

func newHookManager(entries []config.HookConfig, logger zerolog.Logger) (*hooks.Manager, error) {
	scripts := make([]hooks.Script, 0, len(entries))
	for _, entry := range entries {
		timeout := time.Duration(entry.TimeoutSeconds) * time.Second
		if entry.TimeoutSeconds <= 0 {
			timeout = defaultHookTimeout
		}
		scripts = append(scripts, hooks.Script{
			ID:      strings.TrimSpace(entry.ID),
			Event:   hooks.Event(strings.TrimSpace(entry.Event)),
			Command: strings.TrimSpace(entry.Command),
			Timeout: timeout,
			Enabled: entry.Enabled,
		})
	}

	return hooks.NewManager(hooks.Config{
		Scripts: scripts,
		Logger:  logger,
	})
}

func (d *Daemon) triggerReadyHooks(addr string) {
	if err := d.runtime.Hooks.Trigger(context.Background(), hooks.EventServerReady, map[string]interface{}{
		"pid":       os.Getpid(),
		"addr":      addr,
		"server_id": d.runtime.Server.ID(),
		"base_path": d.runtime.Server.BasePath(),
	}); err != nil {
		d.logger.Warn().Err(err).Msg("server_ready hooks failed")
	}
}
