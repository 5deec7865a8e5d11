package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "/etc/zypp/repos.d", cfg.ReposDir)
	assert.Equal(t, "local", cfg.Storage.Type)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
listen: 127.0.0.1:9000
root: /mnt
arch: aarch64
storage:
  type: mindb
auth:
  enabled: true
  token: secret
autorefresh-schedule: "@every 1h"
debug: true
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
	assert.Equal(t, "/mnt/etc/zypp/repos.d", cfg.ReposDir)
	assert.Equal(t, "/mnt/var/cache/pkgbind/raw", cfg.Storage.Path)
	assert.Equal(t, "mindb", cfg.Storage.Type)
	assert.Equal(t, "aarch64", cfg.Arch)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, "@every 1h", cfg.AutorefreshSchedule)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unterminated"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestSetRoot(t *testing.T) {
	cfg := Default().Complete()
	cfg.SetRoot("/tmp/inst")
	assert.Equal(t, "/tmp/inst/etc/zypp/repos.d", cfg.ReposDir)
	assert.Equal(t, "/tmp/inst/var/lib/pkgbind/keyring", cfg.KeyringDir)
	assert.Equal(t, "/tmp/inst/var/lib/pkgbind/locks.yaml", cfg.LocksFile)
}
