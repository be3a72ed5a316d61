package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/abilityd/internal/config"
)

func readLog(t *testing.T, l *Logger, path string) string {
	t.Helper()
	require.NoError(t, l.Close())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestNew(t *testing.T) {
	t.Run("console only", func(t *testing.T) {
		l, err := New(config.LoggingConfig{Level: "info", Console: true}, "abilityd")
		require.NoError(t, err)
		assert.NoError(t, l.Close())
	})

	t.Run("file output carries service", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "abilityd.log")

		l, err := New(config.LoggingConfig{Level: "debug", File: path}, "abilityd")
		require.NoError(t, err)
		l.Debug().Msg("test message")

		out := readLog(t, l, path)
		assert.Contains(t, out, "test message")
		assert.Contains(t, out, `"service":"abilityd"`)
	})

	t.Run("redaction", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "abilityd.log")

		l, err := New(config.LoggingConfig{Level: "info", File: path, Redaction: true}, "")
		require.NoError(t, err)
		l.Info().Str("header", "Bearer abc.def.ghi").Msg("request")

		out := readLog(t, l, path)
		assert.NotContains(t, out, "abc.def.ghi")
		assert.NotContains(t, out, `"service"`)
	})

	t.Run("level filters", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "abilityd.log")

		l, err := New(config.LoggingConfig{Level: "warn", File: path}, "abilityd")
		require.NoError(t, err)
		l.Info().Msg("dropped")
		l.Warn().Msg("kept")

		out := readLog(t, l, path)
		assert.NotContains(t, out, "dropped")
		assert.Contains(t, out, "kept")
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		l, err := New(config.LoggingConfig{Level: "loud"}, "abilityd")
		require.NoError(t, err)
		defer l.Close()

		assert.Equal(t, zerolog.InfoLevel, l.GetLevel())
	})

	t.Run("installs global logger", func(t *testing.T) {
		l, err := New(config.LoggingConfig{Level: "error"}, "abilityd")
		require.NoError(t, err)
		defer l.Close()

		assert.Equal(t, zerolog.ErrorLevel, log.Logger.GetLevel())
	})
}

func TestComponent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abilityd.log")

	l, err := New(config.LoggingConfig{Level: "info", File: path}, "abilityd")
	require.NoError(t, err)

	child := l.Component("toolserver")
	child.Info().Msg("bound")

	assert.Contains(t, readLog(t, l, path), `"component":"toolserver"`)
}

func TestClose_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abilityd.log")

	l, err := New(config.LoggingConfig{Level: "info", File: path}, "abilityd")
	require.NoError(t, err)

	assert.NoError(t, l.Close())
	assert.NoError(t, l.Close())
}
