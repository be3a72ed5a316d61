package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Config represents the main abilityd configuration
type Config struct {
	// Tool server identity and bindings
	Server ServerConfig `json:"server" mapstructure:"server"`

	// HTTP listener
	HTTP HTTPConfig `json:"http" mapstructure:"http"`

	// Execution engine
	Engine EngineConfig `json:"engine" mapstructure:"engine"`

	// Demo content provider
	Posts PostsConfig `json:"posts" mapstructure:"posts"`

	// Lifecycle hook scripts
	Hooks []HookConfig `json:"hooks" mapstructure:"hooks"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Tracing
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`

	// Invocation audit trail
	Audit AuditConfig `json:"audit" mapstructure:"audit"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig mirrors the tool server construction surface
type ServerConfig struct {
	ID            string   `json:"id" mapstructure:"id"`
	Namespace     string   `json:"namespace" mapstructure:"namespace"`
	RoutePrefix   string   `json:"route_prefix" mapstructure:"route_prefix"`
	Name          string   `json:"name" mapstructure:"name"`
	Description   string   `json:"description" mapstructure:"description"`
	Version       string   `json:"version" mapstructure:"version"`
	Transports    []string `json:"transports" mapstructure:"transports"`       // http, mcp, websocket
	ErrorHandler  string   `json:"error_handler" mapstructure:"error_handler"` // error_log, null
	Observability string   `json:"observability" mapstructure:"observability"` // null, log, metrics
	Abilities     []string `json:"abilities" mapstructure:"abilities"`
	BindPolicy    string   `json:"bind_policy" mapstructure:"bind_policy"` // strict, lenient
}

// HTTPConfig holds the listener configuration
type HTTPConfig struct {
	Listen                 string `json:"listen" mapstructure:"listen"`
	RequestTimeoutSeconds  int    `json:"request_timeout_seconds" mapstructure:"request_timeout_seconds"`
	ShutdownTimeoutSeconds int    `json:"shutdown_timeout_seconds" mapstructure:"shutdown_timeout_seconds"`
}

// EngineConfig holds execution engine settings
type EngineConfig struct {
	TimeoutMs   int  `json:"timeout_ms" mapstructure:"timeout_ms"`
	StrictInput bool `json:"strict_input" mapstructure:"strict_input"`
}

// PostsConfig configures the demo content provider
type PostsConfig struct {
	Enabled           bool   `json:"enabled" mapstructure:"enabled"`
	DatabasePath      string `json:"database_path" mapstructure:"database_path"`
	BaseURL           string `json:"base_url" mapstructure:"base_url"`
	RequireCapability string `json:"require_capability" mapstructure:"require_capability"`
}

// HookConfig is an external command run on a lifecycle event
type HookConfig struct {
	ID             string `json:"id" mapstructure:"id"`
	Event          string `json:"event" mapstructure:"event"`
	Command        string `json:"command" mapstructure:"command"`
	TimeoutSeconds int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	Enabled        bool   `json:"enabled" mapstructure:"enabled"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	ServiceName string  `json:"service_name" mapstructure:"service_name"`
	Exporter    string  `json:"exporter" mapstructure:"exporter"`         // none, stdout
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"` // 0..1, for root spans
}

// AuditConfig controls the invocation audit trail
type AuditConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Path    string `json:"path" mapstructure:"path"` // defaults to <data_dir>/audit.log
}

// DefaultConfig returns a config with default values. The server identity
// is the site content server the demo provider ships with.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ID:            "site-content-server",
			Namespace:     "site-content-server",
			RoutePrefix:   "mcp",
			Name:          "Site Content Server",
			Description:   "MCP server for creating posts.",
			Version:       "1.0.0",
			Transports:    []string{"http"},
			ErrorHandler:  "error_log",
			Observability: "null",
			Abilities:     []string{"wpv/create-post"},
			BindPolicy:    "strict",
		},
		HTTP: HTTPConfig{
			Listen:                 "127.0.0.1:8080",
			RequestTimeoutSeconds:  30,
			ShutdownTimeoutSeconds: 10,
		},
		Engine: EngineConfig{
			TimeoutMs: 30000,
		},
		Posts: PostsConfig{
			Enabled: true,
			BaseURL: "http://localhost:8080",
		},
		Hooks: []HookConfig{},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    true,
			Redaction: true,
		},
		Tracing: TracingConfig{
			Enabled:     true,
			ServiceName: "abilityd",
			Exporter:    "none",
			SampleRatio: 1,
		},
	}
}

// EngineTimeout returns the per-invocation timeout
func (c *Config) EngineTimeout() time.Duration {
	return time.Duration(c.Engine.TimeoutMs) * time.Millisecond
}

// RequestTimeout returns the HTTP request timeout
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.RequestTimeoutSeconds) * time.Second
}

// ShutdownTimeout returns the graceful shutdown budget
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.HTTP.ShutdownTimeoutSeconds) * time.Second
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	errs := NewValidator().ValidateConfig(c)
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
}
