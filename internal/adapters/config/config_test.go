package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromWritesDefaultFileOnFirstRun(t *testing.T) {
	home := t.TempDir()
	managerDir := filepath.Join(home, ".codex-manager")

	cfg, err := LoadFrom(managerDir, home)
	require.NoError(t, err)

	assert.Equal(t, "https://auth.openai.com", cfg.Auth.Issuer)
	assert.Equal(t, "app_EMoamEEZ73f0CkXaXp7hrann", cfg.Auth.ClientID)
	assert.Equal(t, "127.0.0.1:1455", cfg.Auth.ListenAddr)
	assert.Equal(t, 180*time.Second, cfg.Auth.ListenerTimeout())
	assert.Equal(t, "https://chatgpt.com/backend-api", cfg.Usage.BaseURL)
	assert.Equal(t, filepath.Join(managerDir, "accounts.json"), cfg.Storage.AccountsPath)
	assert.Equal(t, filepath.Join(managerDir, "state.json"), cfg.Storage.StatePath)
	assert.Equal(t, filepath.Join(home, ".codex", "auth.json"), cfg.Storage.CredentialPath)
	assert.Equal(t, "info", cfg.Log.Level)

	info, err := os.Stat(filepath.Join(managerDir, "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// A second load reads the file it just wrote.
	again, err := LoadFrom(managerDir, home)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadFromReadsFileValues(t *testing.T) {
	home := t.TempDir()
	managerDir := filepath.Join(home, ".codex-manager")
	require.NoError(t, os.MkdirAll(managerDir, 0o700))

	raw := `
[auth]
issuer = "https://auth.example.com"
listener_timeout_sec = 30

[log]
level = "debug"
`
	require.NoError(t, os.WriteFile(filepath.Join(managerDir, "config.toml"), []byte(raw), 0o600))

	cfg, err := LoadFrom(managerDir, home)
	require.NoError(t, err)

	assert.Equal(t, "https://auth.example.com", cfg.Auth.Issuer)
	assert.Equal(t, 30, cfg.Auth.ListenerTimeoutSec)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Unset keys fall back to defaults.
	assert.Equal(t, "app_EMoamEEZ73f0CkXaXp7hrann", cfg.Auth.ClientID)
	assert.Equal(t, "127.0.0.1:1455", cfg.Auth.ListenAddr)
}

func TestLoadFromEnvironmentOverride(t *testing.T) {
	home := t.TempDir()
	managerDir := filepath.Join(home, ".codex-manager")

	t.Setenv("CAM_AUTH_ISSUER", "https://env.example.com")
	t.Setenv("CAM_LOG_LEVEL", "trace")

	cfg, err := LoadFrom(managerDir, home)
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com", cfg.Auth.Issuer)
	assert.Equal(t, "trace", cfg.Log.Level)
}

func TestLoadFromCodexHomeOverridesCredentialPath(t *testing.T) {
	home := t.TempDir()
	codexHome := filepath.Join(home, "elsewhere")
	t.Setenv("CODEX_HOME", codexHome)

	cfg, err := LoadFrom(filepath.Join(home, ".codex-manager"), home)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(codexHome, "auth.json"), cfg.Storage.CredentialPath)
}

func TestLoadFromRejectsInvalidValues(t *testing.T) {
	home := t.TempDir()
	managerDir := filepath.Join(home, ".codex-manager")
	require.NoError(t, os.MkdirAll(managerDir, 0o700))

	raw := `
[auth]
listener_timeout_sec = 0
`
	require.NoError(t, os.WriteFile(filepath.Join(managerDir, "config.toml"), []byte(raw), 0o600))

	_, err := LoadFrom(managerDir, home)
	assert.ErrorContains(t, err, "listener_timeout_sec")
}

func TestLoadFromMalformedFileIsAnError(t *testing.T) {
	home := t.TempDir()
	managerDir := filepath.Join(home, ".codex-manager")
	require.NoError(t, os.MkdirAll(managerDir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(managerDir, "config.toml"), []byte(`[auth`), 0o600))

	_, err := LoadFrom(managerDir, home)
	assert.Error(t, err)
}
