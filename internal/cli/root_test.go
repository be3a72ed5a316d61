package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetFlags restores every flag of the global command tree so that
// consecutive Execute calls do not leak state into each other.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := GetRootCmd()
	resetFlags(cmd)
	t.Cleanup(func() { resetFlags(cmd) })

	output := &bytes.Buffer{}
	cmd.SetOut(output)
	cmd.SetErr(output)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return output.String(), err
}

// writeTestConfig writes a config file keeping every path inside a temp dir
func writeTestConfig(t *testing.T, extra map[string]interface{}) string {
	t.Helper()
	tmpDir := t.TempDir()

	cfg := map[string]interface{}{
		"data_dir": tmpDir,
		"posts": map[string]interface{}{
			"database_path": filepath.Join(tmpDir, "posts.db"),
			"base_url":      "https://blog.example.com",
		},
		"logging": map[string]interface{}{
			"level":   "info",
			"console": false,
		},
		"tracing": map[string]interface{}{
			"enabled": false,
		},
	}
	for k, v := range extra {
		cfg[k] = v
	}

	data, err := json.Marshal(cfg)
	require.NoError(t, err)

	path := filepath.Join(tmpDir, "abilityd.json")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestRootCommand(t *testing.T) {
	t.Run("version flag", func(t *testing.T) {
		output, err := execute(t, "--version")
		require.NoError(t, err)

		assert.Contains(t, output, "abilityd version")
		assert.Contains(t, output, GetVersion())
	})

	t.Run("help flag", func(t *testing.T) {
		output, err := execute(t, "--help")
		require.NoError(t, err)

		assert.Contains(t, output, "abilityd")
		assert.Contains(t, output, "Model Context Protocol")
	})

	t.Run("global flags", func(t *testing.T) {
		cmd := GetRootCmd()

		configFlag := cmd.PersistentFlags().Lookup("config")
		require.NotNil(t, configFlag)
		assert.Equal(t, "", configFlag.DefValue)

		logLevelFlag := cmd.PersistentFlags().Lookup("log-level")
		require.NotNil(t, logLevelFlag)
		assert.Equal(t, "info", logLevelFlag.DefValue)
	})

	t.Run("subcommands", func(t *testing.T) {
		names := map[string]bool{}
		for _, c := range GetRootCmd().Commands() {
			names[c.Name()] = true
		}
		for _, want := range []string{"serve", "abilities", "invoke", "configure", "status", "stop", "version"} {
			assert.True(t, names[want], "%s command should exist", want)
		}
	})
}

func TestGetVersion(t *testing.T) {
	version := GetVersion()
	assert.NotEmpty(t, version)
	assert.True(t, strings.HasPrefix(version, "0."))
}

func TestVersionCommand(t *testing.T) {
	output, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, output, "abilityd version "+GetVersion())
}

func TestLoadConfig_LogLevelOverride(t *testing.T) {
	path := writeTestConfig(t, nil)

	_, err := execute(t, "status", "--config", path, "--log-level", "verbose")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}
