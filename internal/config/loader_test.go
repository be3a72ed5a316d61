package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/path/to/config.json")
	assert.NotNil(t, loader)
	assert.Equal(t, "/path/to/config.json", loader.configPath)
}

func TestLoaderLoad(t *testing.T) {
	t.Run("load default config when file doesn't exist", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "nonexistent.json")

		cfg, err := NewLoader(configPath).Load()

		require.NoError(t, err)
		assert.Equal(t, "site-content-server", cfg.Server.ID)
		assert.Equal(t, []string{"wpv/create-post"}, cfg.Server.Abilities)
	})

	t.Run("load config from file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		testConfig := `{
			"server": {
				"id": "blog-server",
				"transports": ["http", "mcp"],
				"bind_policy": "lenient"
			},
			"posts": {
				"base_url": "https://blog.example.com"
			}
		}`
		require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0644))

		cfg, err := NewLoader(configPath).Load()

		require.NoError(t, err)
		assert.Equal(t, "blog-server", cfg.Server.ID)
		assert.Equal(t, []string{"http", "mcp"}, cfg.Server.Transports)
		assert.Equal(t, "lenient", cfg.Server.BindPolicy)
		assert.Equal(t, "https://blog.example.com", cfg.Posts.BaseURL)

		// Untouched keys keep their defaults
		assert.Equal(t, "mcp", cfg.Server.RoutePrefix)
		assert.Equal(t, "127.0.0.1:8080", cfg.HTTP.Listen)
		assert.True(t, cfg.Posts.Enabled)
	})

	t.Run("set default paths", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")
		require.NoError(t, os.WriteFile(configPath, []byte(`{"data_dir": "`+tmpDir+`"}`), 0644))

		cfg, err := NewLoader(configPath).Load()

		require.NoError(t, err)
		assert.Equal(t, tmpDir, cfg.DataDir)
		assert.Equal(t, filepath.Join(tmpDir, "posts.db"), cfg.Posts.DatabasePath)
		assert.Equal(t, filepath.Join(tmpDir, "audit.log"), cfg.Audit.Path)
		assert.False(t, cfg.Audit.Enabled)
	})

	t.Run("environment overrides", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Setenv("ABILITYD_HTTP_LISTEN", "0.0.0.0:9090")
		t.Setenv("ABILITYD_ENGINE_TIMEOUT_MS", "500")
		t.Setenv("ABILITYD_DATA_DIR", tmpDir)
		t.Setenv("ABILITYD_TRACING_EXPORTER", "stdout")
		t.Setenv("ABILITYD_TRACING_SAMPLE_RATIO", "0.25")

		cfg, err := NewLoader(filepath.Join(tmpDir, "missing.json")).Load()

		require.NoError(t, err)
		assert.Equal(t, "0.0.0.0:9090", cfg.HTTP.Listen)
		assert.Equal(t, 500, cfg.Engine.TimeoutMs)
		assert.Equal(t, tmpDir, cfg.DataDir)
		assert.Equal(t, 10, cfg.HTTP.ShutdownTimeoutSeconds)
		assert.Equal(t, "stdout", cfg.Tracing.Exporter)
		assert.Equal(t, 0.25, cfg.Tracing.SampleRatio)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "invalid.json")
		require.NoError(t, os.WriteFile(configPath, []byte("invalid json"), 0644))

		_, err := NewLoader(configPath).Load()

		assert.Error(t, err)
	})
}

func TestLoaderSave(t *testing.T) {
	t.Run("save config to file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		cfg := DefaultConfig()
		cfg.Server.Transports = []string{"http", "websocket"}
		cfg.Posts.BaseURL = "https://example.com"
		cfg.DataDir = tmpDir

		require.NoError(t, NewLoader(configPath).Save(cfg))

		_, err := os.Stat(configPath)
		assert.NoError(t, err)

		loaded, err := NewLoader(configPath).Load()
		require.NoError(t, err)
		assert.Equal(t, []string{"http", "websocket"}, loaded.Server.Transports)
		assert.Equal(t, "https://example.com", loaded.Posts.BaseURL)
		assert.Equal(t, "Site Content Server", loaded.Server.Name)
	})

	t.Run("create directory if not exists", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "subdir", "config.json")

		require.NoError(t, NewLoader(configPath).Save(DefaultConfig()))

		_, err := os.Stat(filepath.Dir(configPath))
		assert.NoError(t, err)
	})
}

func TestLoaderGetConfigPath(t *testing.T) {
	t.Run("custom path", func(t *testing.T) {
		loader := NewLoader("/custom/path/config.json")
		assert.Equal(t, "/custom/path/config.json", loader.GetConfigPath())
	})

	t.Run("default path", func(t *testing.T) {
		path := NewLoader("").GetConfigPath()
		assert.NotEmpty(t, path)
		assert.Contains(t, path, filepath.Join(".abilityd", "abilityd.json"))
	})
}
