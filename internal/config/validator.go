package config

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

var (
	segmentPattern   = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
	abilityIDPattern = regexp.MustCompile(`^[a-z0-9-]+/[a-z0-9-]+$`)
)

func oneOf(kind, value string, valid []string) error {
	for _, v := range valid {
		if value == v {
			return nil
		}
	}
	return fmt.Errorf("invalid %s: %s (must be one of: %s)", kind, value, strings.Join(valid, ", "))
}

// ValidateListen validates a host:port listen address
func (v *Validator) ValidateListen(addr string) error {
	if addr == "" {
		return fmt.Errorf("listen address cannot be empty")
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	return nil
}

// ValidateSegment validates a namespace or route prefix
func (v *Validator) ValidateSegment(kind, segment string) error {
	if !segmentPattern.MatchString(segment) {
		return fmt.Errorf("invalid %s %q (lowercase letters, digits, '-' and '_')", kind, segment)
	}
	return nil
}

// ValidateTransport validates a transport name
func (v *Validator) ValidateTransport(transport string) error {
	return oneOf("transport", transport, []string{"http", "mcp", "websocket"})
}

// ValidateErrorHandler validates an error handler name
func (v *Validator) ValidateErrorHandler(name string) error {
	return oneOf("error handler", name, []string{"error_log", "null"})
}

// ValidateObservability validates an observability handler name
func (v *Validator) ValidateObservability(name string) error {
	return oneOf("observability handler", name, []string{"null", "log", "metrics"})
}

// ValidateBindPolicy validates a bind policy
func (v *Validator) ValidateBindPolicy(policy string) error {
	return oneOf("bind policy", policy, []string{"strict", "lenient"})
}

// ValidateAbilityID validates a namespaced ability id
func (v *Validator) ValidateAbilityID(id string) error {
	if !abilityIDPattern.MatchString(id) {
		return fmt.Errorf("invalid ability id %q (expected <namespace>/<name>)", id)
	}
	return nil
}

// ValidateLogLevel validates a log level
func (v *Validator) ValidateLogLevel(level string) error {
	return oneOf("log level", level, []string{"trace", "debug", "info", "warn", "error", "fatal", "panic"})
}

// ValidateBaseURL validates an absolute http(s) URL
func (v *Validator) ValidateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid base url %q (must be an absolute http or https url)", raw)
	}
	return nil
}

// ValidateTraceExporter validates a trace exporter name
func (v *Validator) ValidateTraceExporter(name string) error {
	return oneOf("trace exporter", name, []string{"none", "stdout"})
}

// ValidateHookEvent validates a hook event name
func (v *Validator) ValidateHookEvent(event string) error {
	return oneOf("hook event", event, []string{"categories_init", "abilities_init", "server_init", "server_ready"})
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error
	add := func(err error) {
		if err != nil {
			errors = append(errors, err)
		}
	}

	// Server
	if strings.TrimSpace(cfg.Server.ID) == "" {
		add(fmt.Errorf("server.id is required"))
	}
	add(v.ValidateSegment("server.namespace", cfg.Server.Namespace))
	add(v.ValidateSegment("server.route_prefix", cfg.Server.RoutePrefix))
	if len(cfg.Server.Transports) == 0 {
		add(fmt.Errorf("server.transports must list at least one transport"))
	}
	for _, t := range cfg.Server.Transports {
		add(v.ValidateTransport(t))
	}
	add(v.ValidateErrorHandler(cfg.Server.ErrorHandler))
	add(v.ValidateObservability(cfg.Server.Observability))
	add(v.ValidateBindPolicy(cfg.Server.BindPolicy))
	for _, id := range cfg.Server.Abilities {
		add(v.ValidateAbilityID(id))
	}

	// HTTP
	add(v.ValidateListen(cfg.HTTP.Listen))
	if cfg.HTTP.RequestTimeoutSeconds < 0 {
		add(fmt.Errorf("http.request_timeout_seconds must be >= 0"))
	}
	if cfg.HTTP.ShutdownTimeoutSeconds < 0 {
		add(fmt.Errorf("http.shutdown_timeout_seconds must be >= 0"))
	}

	// Engine
	if cfg.Engine.TimeoutMs < 0 {
		add(fmt.Errorf("engine.timeout_ms must be >= 0"))
	}

	// Posts
	if cfg.Posts.Enabled {
		add(v.ValidateBaseURL(cfg.Posts.BaseURL))
	}

	// Hooks
	for i, h := range cfg.Hooks {
		if !h.Enabled {
			continue
		}
		if err := v.ValidateHookEvent(h.Event); err != nil {
			add(fmt.Errorf("hooks[%d]: %w", i, err))
		}
		if strings.TrimSpace(h.Command) == "" {
			add(fmt.Errorf("hooks[%d]: command is required", i))
		}
		if h.TimeoutSeconds < 0 {
			add(fmt.Errorf("hooks[%d]: timeout_seconds must be >= 0", i))
		}
	}

	// Logging
	add(v.ValidateLogLevel(cfg.Logging.Level))

	// Tracing
	if cfg.Tracing.Enabled {
		add(v.ValidateTraceExporter(cfg.Tracing.Exporter))
		if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
			add(fmt.Errorf("tracing.sample_ratio must be between 0 and 1"))
		}
	}

	// Audit
	if cfg.Audit.Enabled && strings.TrimSpace(cfg.Audit.Path) == "" {
		add(fmt.Errorf("audit.path is required when audit is enabled"))
	}

	return errors
}
