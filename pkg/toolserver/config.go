package toolserver

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

// TransportKind names a wire protocol a tool server speaks
type TransportKind string

const (
	TransportHTTP      TransportKind = "http"
	TransportMCP       TransportKind = "mcp"
	TransportWebsocket TransportKind = "websocket"
)

// IsValid reports whether the transport kind is supported
func (t TransportKind) IsValid() bool {
	switch t {
	case TransportHTTP, TransportMCP, TransportWebsocket:
		return true
	}
	return false
}

// BindPolicy decides what happens to ability ids that cannot be bound
type BindPolicy string

const (
	// BindStrict fails the whole bind on the first unbindable id
	BindStrict BindPolicy = "strict"
	// BindLenient skips unbindable ids with a warning
	BindLenient BindPolicy = "lenient"
)

// IsValid reports whether the policy is known
func (p BindPolicy) IsValid() bool {
	return p == BindStrict || p == BindLenient
}

var segmentPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Config is the construction-time surface of a tool server. It is read once;
// changing it after New has no effect.
type Config struct {
	ID          string
	Namespace   string
	RoutePrefix string
	Name        string
	Description string
	Version     string

	Transports []TransportKind

	ErrorHandler  ErrorHandler
	Observability ObservabilityHandler

	// Abilities lists the ability ids to expose as tools, in order
	Abilities []string
	Policy    BindPolicy

	// ContextFunc derives the caller identity from an inbound request
	ContextFunc ContextFunc

	Logger zerolog.Logger
}

// BasePath returns the route every transport is mounted under
func (c Config) BasePath() string {
	return "/" + c.Namespace + "/" + c.RoutePrefix
}

func (c *Config) normalize() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("server id is required")
	}
	if !segmentPattern.MatchString(c.Namespace) {
		return fmt.Errorf("invalid namespace %q", c.Namespace)
	}
	if !segmentPattern.MatchString(c.RoutePrefix) {
		return fmt.Errorf("invalid route prefix %q", c.RoutePrefix)
	}
	if c.Name == "" {
		c.Name = c.ID
	}
	if c.Version == "" {
		c.Version = "1.0.0"
	}

	if len(c.Transports) == 0 {
		return fmt.Errorf("at least one transport is required")
	}
	seen := make(map[TransportKind]bool, len(c.Transports))
	transports := make([]TransportKind, 0, len(c.Transports))
	for _, t := range c.Transports {
		if !t.IsValid() {
			return fmt.Errorf("unsupported transport %q", t)
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		transports = append(transports, t)
	}
	c.Transports = transports

	if c.Policy == "" {
		c.Policy = BindStrict
	}
	if !c.Policy.IsValid() {
		return fmt.Errorf("invalid bind policy %q", c.Policy)
	}

	if c.ErrorHandler == nil {
		c.ErrorHandler = NewErrorLogHandler(c.Logger)
	}
	if c.Observability == nil {
		c.Observability = NullObservabilityHandler{}
	}
	if c.ContextFunc == nil {
		c.ContextFunc = HeaderContextFunc
	}

	return nil
}
