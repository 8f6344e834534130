package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benmeehan/locator/pkg/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_MissingFileYieldsDefaults(t *testing.T) {
	config, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"), file.NewFileService())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), config)
}

func TestLoadConfig_FillsUnsetFields(t *testing.T) {
	path := writeConfig(t, `
state_dir: /tmp/locator
location:
  provider: static
  permission: granted
  static:
    latitude: 52.5
    longitude: 13.4
background:
  poll_interval: 10s
`)

	config, err := LoadConfig(path, file.NewFileService())
	require.NoError(t, err)

	assert.Equal(t, "/tmp/locator", config.StateDir)
	assert.Equal(t, ProviderStatic, config.Location.Provider)
	assert.Equal(t, 52.5, config.Location.Static.Latitude)
	assert.Equal(t, 10*time.Second, config.Background.PollInterval)
	assert.Equal(t, 25*time.Second, config.Background.TaskTimeout)
	assert.True(t, config.Background.Enabled)
	assert.Equal(t, 30*time.Second, config.Location.FixTimeout)
	assert.Equal(t, "/tmp/locator/tasks.json", config.RegistrationFile())
	assert.Equal(t, "/tmp/locator/run.lock", config.RunLockFile())
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]string{
		"provider":   "location:\n  provider: carrier-pigeon\n",
		"permission": "location:\n  permission: sometimes\n",
		"broker":     "status:\n  enabled: true\n",
		"yaml":       "location: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body), file.NewFileService())
			assert.Error(t, err)
		})
	}
}

func TestNewLogger(t *testing.T) {
	config := DefaultConfig()
	config.Log.Level = "warn"

	var buf bytes.Buffer
	logger, err := NewLogger(config, &buf)
	require.NoError(t, err)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"message":"shown"`)

	config.Log.Level = "loud"
	_, err = NewLogger(config, &buf)
	assert.Error(t, err)

	config.Log.Level = "info"
	config.Log.Format = "xml"
	_, err = NewLogger(config, &buf)
	assert.Error(t, err)
}
