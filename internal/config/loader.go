package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. ABILITYD_HTTP_LISTEN
const EnvPrefix = "ABILITYD"

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load loads the configuration from file, applies environment overrides and
// fills derived paths. A missing file yields the defaults.
func (l *Loader) Load() (*Config, error) {
	configPath, err := l.resolvePath()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".abilityd")
	}

	if cfg.Posts.DatabasePath == "" {
		cfg.Posts.DatabasePath = filepath.Join(cfg.DataDir, "posts.db")
	}

	if cfg.Audit.Path == "" {
		cfg.Audit.Path = filepath.Join(cfg.DataDir, "audit.log")
	}

	return cfg, nil
}

// bindEnv registers scalar keys so AutomaticEnv can override them even when
// the config file does not mention them.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"data_dir",
		"http.listen",
		"http.request_timeout_seconds",
		"http.shutdown_timeout_seconds",
		"engine.timeout_ms",
		"engine.strict_input",
		"posts.enabled",
		"posts.database_path",
		"posts.base_url",
		"posts.require_capability",
		"logging.level",
		"logging.file",
		"server.observability",
		"server.bind_policy",
		"tracing.enabled",
		"tracing.exporter",
		"tracing.sample_ratio",
		"audit.enabled",
		"audit.path",
	} {
		_ = v.BindEnv(key)
	}
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath, err := l.resolvePath()
	if err != nil {
		return err
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("server", cfg.Server)
	v.Set("http", cfg.HTTP)
	v.Set("engine", cfg.Engine)
	v.Set("posts", cfg.Posts)
	v.Set("hooks", cfg.Hooks)
	v.Set("logging", cfg.Logging)
	v.Set("tracing", cfg.Tracing)
	v.Set("audit", cfg.Audit)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	path, err := l.resolvePath()
	if err != nil {
		return ""
	}
	return path
}

func (l *Loader) resolvePath() (string, error) {
	if l.configPath != "" {
		return l.configPath, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".abilityd", "abilityd.json"), nil
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}
