// Package hooks orders registration into phases. Categories register during
// categories_init, abilities during abilities_init and tool servers during
// server_init, so an ability can always rely on its category existing.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event names a lifecycle phase
type Event string

const (
	EventCategoriesInit Event = "categories_init"
	EventAbilitiesInit  Event = "abilities_init"
	EventServerInit     Event = "server_init"
	// EventServerReady fires once the tool server is serving. Only scripts
	// usually listen to it.
	EventServerReady Event = "server_ready"
)

// InitPhases are triggered by Init, in order
var InitPhases = []Event{EventCategoriesInit, EventAbilitiesInit, EventServerInit}

// DefaultPriority is the priority callbacks usually register with
const DefaultPriority = 10

// Func is an in-process hook callback
type Func func(ctx context.Context) error

// Script is an external command run when an event fires
type Script struct {
	ID      string
	Event   Event
	Command string
	Timeout time.Duration
	Enabled bool
}

// Config configures a hook manager
type Config struct {
	Scripts []Script
	Logger  zerolog.Logger
}

type callback struct {
	priority int
	seq      int
	fn       Func
}

// Manager runs callbacks and scripts for lifecycle events
type Manager struct {
	logger zerolog.Logger

	mu        sync.RWMutex
	seq       int
	callbacks map[Event][]callback
	scripts   map[Event][]Script
}

// NewManager creates a hook manager
func NewManager(cfg Config) (*Manager, error) {
	manager := &Manager{
		logger:    cfg.Logger.With().Str("component", "hooks").Logger(),
		callbacks: make(map[Event][]callback),
		scripts:   make(map[Event][]Script),
	}

	for _, script := range cfg.Scripts {
		if !script.Enabled {
			continue
		}
		event := Event(strings.TrimSpace(string(script.Event)))
		if event == "" {
			return nil, fmt.Errorf("hook event is required")
		}
		if strings.TrimSpace(script.Command) == "" {
			return nil, fmt.Errorf("hook command is required for event %q", event)
		}
		manager.scripts[event] = append(manager.scripts[event], script)
	}

	return manager, nil
}

// On registers fn for event. Lower priorities run first; equal priorities
// run in registration order.
func (m *Manager) On(event Event, priority int, fn Func) error {
	if event == "" {
		return fmt.Errorf("event is required")
	}
	if fn == nil {
		return fmt.Errorf("hook callback for %q cannot be nil", event)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	m.callbacks[event] = append(m.callbacks[event], callback{priority: priority, seq: m.seq, fn: fn})
	return nil
}

// Trigger runs the callbacks for event, stopping at the first failure, then
// runs its scripts. Script failures are joined.
func (m *Manager) Trigger(ctx context.Context, event Event, data map[string]interface{}) error {
	if ctx == nil {
		ctx = context.Background()
	}

	m.mu.RLock()
	callbacks := append([]callback(nil), m.callbacks[event]...)
	scripts := append([]Script(nil), m.scripts[event]...)
	m.mu.RUnlock()

	sort.SliceStable(callbacks, func(i, j int) bool {
		if callbacks[i].priority != callbacks[j].priority {
			return callbacks[i].priority < callbacks[j].priority
		}
		return callbacks[i].seq < callbacks[j].seq
	})

	for _, cb := range callbacks {
		if err := runCallback(ctx, cb.fn); err != nil {
			return fmt.Errorf("%s hook failed: %w", event, err)
		}
	}

	var errs []error
	for _, script := range scripts {
		if err := m.executeScript(ctx, event, script, data); err != nil {
			errs = append(errs, err)
		}
	}

	m.logger.Debug().
		Str("event", string(event)).
		Int("callbacks", len(callbacks)).
		Int("scripts", len(scripts)).
		Msg("Hook event triggered")

	return errors.Join(errs...)
}

// Init triggers every phase in InitPhases, aborting on the first error
func (m *Manager) Init(ctx context.Context) error {
	for _, event := range InitPhases {
		if err := m.Trigger(ctx, event, nil); err != nil {
			return err
		}
	}
	return nil
}

func runCallback(ctx context.Context, fn Func) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback panicked: %v", r)
		}
	}()
	return fn(ctx)
}

func (m *Manager) executeScript(ctx context.Context, event Event, script Script, data map[string]interface{}) error {
	scriptID := script.ID
	if strings.TrimSpace(scriptID) == "" {
		scriptID = string(event)
	}

	runCtx := ctx
	cancel := func() {}
	if script.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, script.Timeout)
	}
	defer cancel()

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", script.Command)
	cmd.Env = scriptEnvironment(event, data)

	output, err := cmd.CombinedOutput()
	outputText := strings.TrimSpace(string(output))
	if err != nil {
		if outputText != "" {
			return fmt.Errorf("hook %s failed: %w: %s", scriptID, err, outputText)
		}
		return fmt.Errorf("hook %s failed: %w", scriptID, err)
	}

	if outputText != "" {
		m.logger.Debug().
			Str("event", string(event)).
			Str("hook_id", scriptID).
			Str("output", outputText).
			Msg("Hook script executed")
	}

	return nil
}

func scriptEnvironment(event Event, data map[string]interface{}) []string {
	env := append([]string{}, os.Environ()...)
	env = append(env, "ABILITYD_HOOK_EVENT="+string(event))

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		env = append(env, "ABILITYD_HOOK_DATA_"+envKey(key)+"="+fmt.Sprintf("%v", data[key]))
	}
	return env
}

func envKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "UNKNOWN"
	}

	return strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, strings.ToUpper(key))
}
