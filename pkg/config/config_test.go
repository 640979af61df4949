package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, defaultCacheTimeout, cfg.Client.CacheTimeout)
	require.True(t, *cfg.Client.Reconnect)
	require.Equal(t, defaultLogLevel, cfg.Logging.Level)
}

func TestLoadReadsYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sftpws.yaml")
	content := `
logging:
  level: DEBUG
  format: json
  output: stderr
client:
  server_url: wss://example.test/sftp
  cache_timeout: 45s
  reconnect: false
server:
  listen_addr: ":9022"
  virtual_root: /srv/export
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "DEBUG", cfg.Logging.Level)
	require.Equal(t, 45*time.Second, cfg.Client.CacheTimeout)
	require.False(t, *cfg.Client.Reconnect)
	require.Equal(t, "/srv/export", cfg.Server.VirtualRoot)
}

func TestSaveConfigThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sftpws.yaml")
	cfg := GetDefaultConfig()
	cfg.Client.ServerURL = "wss://example.test/sftp"
	cfg.Server.VirtualRoot = "/srv/export"

	require.NoError(t, SaveConfig(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Client.ServerURL, loaded.Client.ServerURL)
	require.Equal(t, cfg.Server.VirtualRoot, loaded.Server.VirtualRoot)
}

func TestGetDefaultConfigPathPrefersXDGConfigHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdgtest")
	require.Equal(t, "/tmp/xdgtest/sftpws/sftpws.yaml", GetDefaultConfigPath())
}
