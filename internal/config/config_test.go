package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parley.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "recognizer:\n  api_key: abc\n")

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, path, loaded.Path)
	require.Equal(t, "nova-2", loaded.Config.Recognizer.Model)
	require.Equal(t, "en-US", loaded.Config.Recognizer.Language)
	require.Equal(t, "http://localhost:8000", loaded.Config.Backend.BaseURL)
	require.Equal(t, "30s", loaded.Config.Backend.Timeout)
	require.InEpsilon(t, 0.9, loaded.Config.Speech.Rate, 0.0001)
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("PARLEY_TEST_KEY", "secret-token")
	path := writeConfig(t, "recognizer:\n  api_key: ${PARLEY_TEST_KEY}\n")

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "secret-token", loaded.Config.Recognizer.APIKey)
}

func TestLoadMissingExplicitPathFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "read config file")
}

func TestLoadMissingDefaultPathYieldsDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	loaded, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8000", loaded.Config.Backend.BaseURL)
}

func TestLoadRejectsBadTimeout(t *testing.T) {
	path := writeConfig(t, "backend:\n  timeout: soon\n")

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "backend.timeout")
}

func TestLoadRejectsNonHTTPBackend(t *testing.T) {
	path := writeConfig(t, "backend:\n  base_url: ftp://example.com\n")

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "backend.base_url")
}

func TestTimeoutDuration(t *testing.T) {
	d, err := BackendConfig{Timeout: "2s"}.TimeoutDuration()
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, d)

	d, err = BackendConfig{}.TimeoutDuration()
	require.NoError(t, err)
	require.Zero(t, d)

	_, err = BackendConfig{Timeout: "-1s"}.TimeoutDuration()
	require.Error(t, err)
}

func TestDefaultPathUsesXDGConfigHome(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	path, err := defaultPath()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(xdg, "parley", "parley.yaml"), path)
}
